package codehandlers

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MardaxTech/DriveTransferCode/internal/drive"
	"github.com/MardaxTech/DriveTransferCode/internal/oauth"
	"github.com/MardaxTech/DriveTransferCode/internal/registry"
	"github.com/MardaxTech/DriveTransferCode/internal/transfer"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// fake registry speaking plaintext codes

type memRegistry struct {
	recs map[string]*registry.Record
}

func newMemRegistry() *memRegistry { return &memRegistry{recs: map[string]*registry.Record{}} }

func (m *memRegistry) key(email, code string) string { return email + "/" + code }

func (m *memRegistry) Clear(ctx context.Context, email string) error {
	for k := range m.recs {
		if strings.HasPrefix(k, email+"/") {
			delete(m.recs, k)
		}
	}
	return nil
}

func (m *memRegistry) RegisterUploadGrant(ctx context.Context, email, code, token string) error {
	m.recs[m.key(email, code)] = &registry.Record{Kind: "upload", Token: token}
	return nil
}

func (m *memRegistry) RegisterDownload(ctx context.Context, email, code, token string, urls, filenames []string) error {
	m.recs[m.key(email, code)] = &registry.Record{Kind: "download", Token: token, URLs: urls, Filenames: filenames}
	return nil
}

func (m *memRegistry) Resolve(ctx context.Context, email, code string) (*registry.Record, error) {
	rec, ok := m.recs[m.key(email, code)]
	if !ok {
		return nil, registry.ErrCodeNotFound
	}
	return rec, nil
}

func (m *memRegistry) Delete(ctx context.Context, email, code string) error {
	delete(m.recs, m.key(email, code))
	return nil
}

type staticTokens struct{ token string }

func (s staticTokens) Token(ctx context.Context, userID primitive.ObjectID) (string, error) {
	return s.token, nil
}

type nopEvents struct{}

func (nopEvents) Log(name string, params map[string]any) {}

// driveServer fakes the two Drive endpoints the handlers hit.
func driveServer(t *testing.T, contents map[string]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/upload/drive/v3/files":
			json.NewEncoder(w).Encode(map[string]string{"id": "up-1"})
		case r.Method == http.MethodPatch:
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodGet:
			// /drive/v2/files/{id}
			parts := strings.Split(r.URL.Path, "/")
			id := parts[len(parts)-1]
			body, ok := contents[id]
			if !ok {
				http.Error(w, "not found", http.StatusNotFound)
				return
			}
			io.WriteString(w, body)
		default:
			http.Error(w, "unexpected", http.StatusInternalServerError)
		}
	}))
}

func newTestHandler(t *testing.T, reg transfer.Registry, srv *httptest.Server) *Handler {
	t.Helper()
	cipher, err := oauth.NewCipher(bytes.Repeat([]byte{9}, 32))
	require.NoError(t, err)

	drv := drive.NewWithBase(srv.URL, srv.Client())
	svc := transfer.NewService(reg, drv, staticTokens{token: "tok"}, nopEvents{})
	return New(svc, drv, cipher)
}

func postUseCode(h *Handler, email, code string) *httptest.ResponseRecorder {
	body, _ := json.Marshal(map[string]string{"email": email, "code": code})
	r := httptest.NewRequest(http.MethodPost, "/api/codes/use", bytes.NewReader(body))
	w := httptest.NewRecorder()
	h.UseCode(w, r)
	return w
}

func TestUseCodeSingleFileStream(t *testing.T) {
	srv := driveServer(t, map[string]string{"f1": "file-one-bytes"})
	defer srv.Close()

	reg := newMemRegistry()
	h := newTestHandler(t, reg, srv)
	drv := drive.NewWithBase(srv.URL, srv.Client())
	require.NoError(t, reg.RegisterDownload(context.Background(), "a@example.com", "7X2CADE1", "tok",
		[]string{drv.DownloadURL("f1")}, []string{"report.pdf"}))

	w := postUseCode(h, "a@example.com", "7X2CADE1")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "report.pdf")
	assert.Equal(t, "file-one-bytes", w.Body.String())

	// one-time use
	w = postUseCode(h, "a@example.com", "7X2CADE1")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUseCodeZipStream(t *testing.T) {
	srv := driveServer(t, map[string]string{"f1": "one", "f2": "two"})
	defer srv.Close()

	reg := newMemRegistry()
	h := newTestHandler(t, reg, srv)
	drv := drive.NewWithBase(srv.URL, srv.Client())
	require.NoError(t, reg.RegisterDownload(context.Background(), "a@example.com", "7X2CADE1", "tok",
		[]string{drv.DownloadURL("f1"), drv.DownloadURL("f2")},
		[]string{"report.pdf", "notes.txt"}))

	w := postUseCode(h, "a@example.com", "7X2CADE1")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/zip", w.Header().Get("Content-Type"))

	zr, err := zip.NewReader(bytes.NewReader(w.Body.Bytes()), int64(w.Body.Len()))
	require.NoError(t, err)
	require.Len(t, zr.File, 2)
	assert.Equal(t, "report.pdf", zr.File[0].Name)
	assert.Equal(t, "notes.txt", zr.File[1].Name)

	rc, err := zr.File[0].Open()
	require.NoError(t, err)
	b, _ := io.ReadAll(rc)
	rc.Close()
	assert.Equal(t, "one", string(b))
}

func TestUseCodeCorruptWarning(t *testing.T) {
	srv := driveServer(t, map[string]string{"f1": "one"})
	defer srv.Close()

	reg := newMemRegistry()
	h := newTestHandler(t, reg, srv)
	drv := drive.NewWithBase(srv.URL, srv.Client())
	require.NoError(t, reg.RegisterDownload(context.Background(), "a@example.com", "7X2CADE1", "tok",
		[]string{drv.DownloadURL("f1"), drv.DownloadURL("f2")},
		[]string{"report.pdf"}))

	w := postUseCode(h, "a@example.com", "7X2CADE1")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Transfer-Warning"))
	assert.Equal(t, "one", w.Body.String())
}

func TestUseCodeValidation(t *testing.T) {
	srv := driveServer(t, nil)
	defer srv.Close()
	h := newTestHandler(t, newMemRegistry(), srv)

	tests := []struct {
		name      string
		email     string
		code      string
		wantField string
	}{
		{"bad code", "a@example.com", "nope", "codeinput"},
		{"bad email", "not-an-email", "K3Q9Z!7M", "emailInput"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postUseCode(h, tt.email, tt.code)
			require.Equal(t, http.StatusBadRequest, w.Code)

			var resp map[string]string
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantField, resp["field"])
		})
	}
}

func TestUseCodeUploadGrantFlow(t *testing.T) {
	srv := driveServer(t, nil)
	defer srv.Close()

	reg := newMemRegistry()
	h := newTestHandler(t, reg, srv)
	require.NoError(t, reg.RegisterUploadGrant(context.Background(), "a@example.com", "K3Q9Z!7M", "ya29.owner"))

	w := postUseCode(h, "a@example.com", "K3Q9Z!7M")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Mode  string `json:"mode"`
		Grant string `json:"grant"`
		View  struct {
			State string `json:"state"`
		} `json:"view"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "upload", resp.Mode)
	assert.Equal(t, "FileInput", resp.View.State)
	require.NotEmpty(t, resp.Grant)

	// the grant is opaque: the bearer token must not be readable from it
	assert.NotContains(t, resp.Grant, "ya29.owner")

	// second leg: post a file under the grant
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("grant", resp.Grant))
	fw, err := mw.CreateFormFile("files", "report.pdf")
	require.NoError(t, err)
	io.WriteString(fw, "pdf-bytes")
	require.NoError(t, mw.Close())

	r := httptest.NewRequest(http.MethodPost, "/api/codes/use/upload", &buf)
	r.Header.Set("Content-Type", mw.FormDataContentType())
	w2 := httptest.NewRecorder()
	h.UseCodeUpload(w2, r)

	require.Equal(t, http.StatusOK, w2.Code)
	var up struct {
		Message string `json:"message"`
		View    struct {
			State string `json:"state"`
			Next  string `json:"next"`
		} `json:"view"`
	}
	require.NoError(t, json.Unmarshal(w2.Body.Bytes(), &up))
	assert.Equal(t, "Finished", up.View.State)
	assert.Equal(t, "SignIn", up.View.Next)
}

func TestGrantExpiry(t *testing.T) {
	srv := driveServer(t, nil)
	defer srv.Close()
	h := newTestHandler(t, newMemRegistry(), srv)

	grant, err := h.sealGrant("tok")
	require.NoError(t, err)

	got, err := h.openGrant(grant)
	require.NoError(t, err)
	assert.Equal(t, "tok", got)

	h.now = func() time.Time { return time.Now().Add(grantTTL + time.Minute) }
	_, err = h.openGrant(grant)
	assert.Error(t, err)

	_, err = h.openGrant("not-a-grant")
	assert.Error(t, err)
}

func TestUseCodeUploadRejectsBadGrant(t *testing.T) {
	srv := driveServer(t, nil)
	defer srv.Close()
	h := newTestHandler(t, newMemRegistry(), srv)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("grant", "garbage"))
	require.NoError(t, mw.Close())

	r := httptest.NewRequest(http.MethodPost, "/api/codes/use/upload", &buf)
	r.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	h.UseCodeUpload(w, r)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
