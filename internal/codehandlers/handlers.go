// Package codehandlers is the HTTP surface of the transfer flows.
package codehandlers

import (
	"archive/zip"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/MardaxTech/DriveTransferCode/internal/auth"
	"github.com/MardaxTech/DriveTransferCode/internal/drive"
	"github.com/MardaxTech/DriveTransferCode/internal/oauth"
	"github.com/MardaxTech/DriveTransferCode/internal/registry"
	"github.com/MardaxTech/DriveTransferCode/internal/transfer"
	"github.com/MardaxTech/DriveTransferCode/internal/view"
)

const (
	maxShareMemory = 64 << 20 // per-request multipart buffer

	// grantTTL bounds how long a consumer can sit on a resolved upload
	// grant before picking files.
	grantTTL = 15 * time.Minute
)

type Handler struct {
	svc    *transfer.Service
	drv    *drive.Client
	cipher *oauth.Cipher
	now    func() time.Time
}

func New(svc *transfer.Service, drv *drive.Client, cipher *oauth.Cipher) *Handler {
	return &Handler{svc: svc, drv: drv, cipher: cipher, now: time.Now}
}

type viewPayload struct {
	State      string   `json:"state"`
	Regions    []string `json:"regions"`
	Next       string   `json:"next,omitempty"`
	FinishedMS int64    `json:"finished_ms,omitempty"`
}

func viewOf(s view.State) viewPayload {
	return viewPayload{State: s.String(), Regions: s.Regions()}
}

// finishedView is the Finished projection plus where the client falls
// back to after the timeout.
func finishedView(signedIn bool) viewPayload {
	v := viewOf(view.Finished)
	v.Next = view.Next(view.Finished, signedIn).String()
	v.FinishedMS = view.FinishedTimeout.Milliseconds()
	return v
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeReauth(w http.ResponseWriter) {
	writeJSON(w, http.StatusUnauthorized, map[string]any{
		"error":     "drive authorization required",
		"auth_link": "/api/drive/link",
		"view":      viewOf(view.SignIn),
	})
}

// POST /api/codes/upload
// Registers an upload-request code for the signed-in user.
func (h *Handler) UploadCode(w http.ResponseWriter, r *http.Request) {
	uid, ok := auth.UserID(r.Context())
	email, ok2 := auth.Email(r.Context())
	if !ok || !ok2 {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	code, err := h.svc.UploadWCode(r.Context(), uid, email)
	if err != nil {
		if errors.Is(err, oauth.ErrReauthRequired) {
			writeReauth(w)
			return
		}
		log.Printf("upload-with-code failed for %s: %v", email, err)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"code": code,
		"view": finishedView(true),
	})
}

// POST /api/codes/share
// Uploads the posted files to the user's Drive and returns a download code.
func (h *Handler) ShareCode(w http.ResponseWriter, r *http.Request) {
	uid, ok := auth.UserID(r.Context())
	email, ok2 := auth.Email(r.Context())
	if !ok || !ok2 {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	if err := r.ParseMultipartForm(maxShareMemory); err != nil {
		http.Error(w, "failed to parse form", http.StatusBadRequest)
		return
	}

	headers := r.MultipartForm.File["files"]
	files := make([]transfer.File, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			http.Error(w, "failed to read file", http.StatusBadRequest)
			return
		}
		defer f.Close()
		files = append(files, transfer.File{
			Name:        fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Size:        fh.Size,
			Content:     f,
		})
	}

	code, err := h.svc.DownloadWCode(r.Context(), uid, email, files)
	if err != nil {
		switch {
		case errors.Is(err, transfer.ErrNoFiles):
			http.Error(w, "at least one file required", http.StatusBadRequest)
		case errors.Is(err, oauth.ErrReauthRequired):
			writeReauth(w)
		case errors.Is(err, transfer.ErrNothingUploaded):
			http.Error(w, "upload failed, please try again later", http.StatusBadGateway)
		default:
			log.Printf("share-with-code failed for %s: %v", email, err)
			http.Error(w, "server error", http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"code": code,
		"view": finishedView(true),
	})
}

type useCodeReq struct {
	Code  string `json:"code"`
	Email string `json:"email"`
}

// POST /api/codes/use
// Consumes a code: answers with an upload grant, or streams the shared
// files back (zipped when there is more than one).
func (h *Handler) UseCode(w http.ResponseWriter, r *http.Request) {
	var req useCodeReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	res, err := h.svc.UseCode(r.Context(), req.Email, req.Code)
	if err != nil {
		switch {
		case errors.Is(err, transfer.ErrInvalidCode):
			// field names the input region the client outlines red
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid code", "field": "codeinput"})
		case errors.Is(err, transfer.ErrInvalidEmail):
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid email", "field": "emailInput"})
		case errors.Is(err, registry.ErrCodeNotFound):
			http.Error(w, "code not found", http.StatusNotFound)
		default:
			log.Printf("use-code failed: %v", err)
			http.Error(w, "server error", http.StatusInternalServerError)
		}
		return
	}

	if res.UploadGrant {
		grant, err := h.sealGrant(res.Token)
		if err != nil {
			http.Error(w, "server error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"mode":  "upload",
			"grant": grant,
			"view":  viewOf(view.FileInput),
		})
		return
	}

	if len(res.Files) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid code"})
		return
	}

	if res.Corrupt {
		w.Header().Set("X-Transfer-Warning", "upload corrupted, please try re-uploading it")
	}

	if len(res.Files) == 1 {
		h.streamFile(w, r, res.Files[0], res.Token)
		return
	}
	h.streamZip(w, r, res.Files, res.Token)
}

func (h *Handler) streamFile(w http.ResponseWriter, r *http.Request, entry transfer.DownloadEntry, token string) {
	body, size, err := h.drv.Download(r.Context(), entry.URL, token)
	if err != nil {
		log.Printf("download %q failed: %v", entry.Name, err)
		http.Error(w, "download failed", http.StatusBadGateway)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": entry.Name}))
	if size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	}
	if _, err := io.Copy(w, body); err != nil {
		log.Printf("stream %q interrupted: %v", entry.Name, err)
	}
}

func (h *Handler) streamZip(w http.ResponseWriter, r *http.Request, entries []transfer.DownloadEntry, token string) {
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": "transfer.zip"}))

	zw := zip.NewWriter(w)
	defer zw.Close()

	// files fetched one at a time; a failed file is skipped so the rest
	// of the archive still arrives
	for _, entry := range entries {
		body, _, err := h.drv.Download(r.Context(), entry.URL, token)
		if err != nil {
			log.Printf("download %q failed: %v", entry.Name, err)
			continue
		}
		fw, err := zw.Create(entry.Name)
		if err != nil {
			body.Close()
			log.Printf("zip entry %q: %v", entry.Name, err)
			return
		}
		if _, err := io.Copy(fw, body); err != nil {
			log.Printf("stream %q interrupted: %v", entry.Name, err)
		}
		body.Close()
	}
}

// POST /api/codes/use/upload
// Second leg of an upload code: the consumer posts the picked files with
// the grant returned by UseCode.
func (h *Handler) UseCodeUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxShareMemory); err != nil {
		http.Error(w, "failed to parse form", http.StatusBadRequest)
		return
	}

	token, err := h.openGrant(r.FormValue("grant"))
	if err != nil {
		http.Error(w, "grant invalid or expired", http.StatusUnauthorized)
		return
	}

	headers := r.MultipartForm.File["files"]
	files := make([]transfer.File, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			http.Error(w, "failed to read file", http.StatusBadRequest)
			return
		}
		defer f.Close()
		files = append(files, transfer.File{
			Name:        fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Size:        fh.Size,
			Content:     f,
		})
	}

	if err := h.svc.ConsumeUpload(r.Context(), token, files); err != nil {
		switch {
		case errors.Is(err, transfer.ErrNoFiles):
			http.Error(w, "please select a file to upload", http.StatusBadRequest)
		case errors.Is(err, transfer.ErrNothingUploaded):
			http.Error(w, "upload failed, please try again later", http.StatusBadGateway)
		default:
			log.Printf("grant upload failed: %v", err)
			http.Error(w, "server error", http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "files uploaded",
		"view":    finishedView(false),
	})
}

// grant is the opaque handle carrying a resolved upload token between the
// two consumer requests. Sealed so the bearer token never travels in
// clear; expiring, but not single-use.
type grantPayload struct {
	Token string `json:"token"`
	Exp   int64  `json:"exp"`
}

func (h *Handler) sealGrant(token string) (string, error) {
	b, err := json.Marshal(grantPayload{Token: token, Exp: h.now().Add(grantTTL).Unix()})
	if err != nil {
		return "", err
	}
	enc, err := h.cipher.Seal(b)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(enc), nil
}

func (h *Handler) openGrant(grant string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(grant)
	if err != nil {
		return "", err
	}
	plain, err := h.cipher.Open(raw)
	if err != nil {
		return "", err
	}
	var p grantPayload
	if err := json.Unmarshal(plain, &p); err != nil {
		return "", err
	}
	if h.now().Unix() > p.Exp {
		return "", errors.New("grant expired")
	}
	return p.Token, nil
}
