// Package drive is a thin client over the Google Drive REST endpoints the
// transfer flows use: media upload, rename, media download, and the
// storage quota query.
package drive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

const DefaultBaseURL = "https://www.googleapis.com"

type Client struct {
	hc   *http.Client
	base string
}

func New() *Client {
	return &Client{
		hc:   &http.Client{Timeout: 5 * time.Minute},
		base: DefaultBaseURL,
	}
}

// NewWithBase builds a client against an alternate endpoint, used by
// tests to point at an httptest server.
func NewWithBase(base string, hc *http.Client) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{hc: hc, base: base}
}

type fileResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Upload POSTs raw file bytes to the media upload endpoint and returns
// the created file's id. Drive names media uploads "Untitled"; callers
// follow up with Rename.
func (c *Client) Upload(ctx context.Context, body io.Reader, size int64, contentType, token string) (string, error) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.base+"/upload/drive/v3/files?uploadType=media", body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Content-Length", strconv.FormatInt(size, 10))
	req.Header.Set("Authorization", "Bearer "+token)
	req.ContentLength = size

	resp, err := c.hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("drive upload failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("drive API returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var fileResp fileResponse
	if err := json.NewDecoder(resp.Body).Decode(&fileResp); err != nil {
		return "", err
	}
	return fileResp.ID, nil
}

// Rename PATCHes the display name of an uploaded file. The body is real
// JSON, so names with quotes or control characters survive.
func (c *Client) Rename(ctx context.Context, fileID, newName, token string) error {
	payload, err := json.Marshal(map[string]string{"name": newName})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch,
		c.base+"/drive/v3/files/"+fileID, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("drive rename failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("drive API returned status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// DownloadURL builds the media download URL stored in download records.
func (c *Client) DownloadURL(fileID string) string {
	return fmt.Sprintf("%s/drive/v2/files/%s?alt=media&source=downloadUrl", c.base, fileID)
}

// Download GETs a stored download URL with the bearer header. The caller
// owns the returned body.
func (c *Client) Download(ctx context.Context, url, token string) (io.ReadCloser, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("drive download failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, 0, fmt.Errorf("drive API returned status %d: %s", resp.StatusCode, string(respBody))
	}
	return resp.Body, resp.ContentLength, nil
}

// StorageQuota is the storage section of the Drive "about" resource.
type StorageQuota struct {
	Limit int64 `json:"limit"`
	Usage int64 `json:"usage"`
	Free  int64 `json:"free"`
}

type aboutResponse struct {
	StorageQuota struct {
		Limit int64 `json:"limit,string"`
		Usage int64 `json:"usage,string"`
	} `json:"storageQuota"`
}

// Quota queries available storage for the account behind the token.
func (c *Client) Quota(ctx context.Context, token string) (*StorageQuota, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.base+"/drive/v3/about?fields=storageQuota", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("drive API call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("drive API returned status %d", resp.StatusCode)
	}

	var about aboutResponse
	if err := json.NewDecoder(resp.Body).Decode(&about); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &StorageQuota{
		Limit: about.StorageQuota.Limit,
		Usage: about.StorageQuota.Usage,
		Free:  about.StorageQuota.Limit - about.StorageQuota.Usage,
	}, nil
}
