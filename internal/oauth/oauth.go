package oauth

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"

	"crypto/rand"

	"github.com/MardaxTech/DriveTransferCode/internal/auth"
	"github.com/MardaxTech/DriveTransferCode/internal/models"
	"github.com/MardaxTech/DriveTransferCode/internal/store"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

var (
	oauthConf   *oauth2.Config
	tokenCipher *Cipher
)

func InitOAuthConfig() {
	// Decode base64-encoded TOKEN_ENC_KEY
	keyStr := os.Getenv("TOKEN_ENC_KEY")
	key, err := base64.StdEncoding.DecodeString(keyStr)
	if err != nil {
		log.Fatalf("TOKEN_ENC_KEY must be valid base64: %v", err)
	}
	tokenCipher, err = NewCipher(key)
	if err != nil {
		log.Fatalf("TOKEN_ENC_KEY: %v", err)
	}

	// Ensure BASE_URL doesn't have trailing slash
	baseURL := strings.TrimSuffix(os.Getenv("BASE_URL"), "/")

	oauthConf = &oauth2.Config{
		ClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		ClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
		Endpoint:     google.Endpoint,
		Scopes: []string{
			"https://www.googleapis.com/auth/drive.file",
			"https://www.googleapis.com/auth/userinfo.email",
		},
		RedirectURL: baseURL + "/oauth2/callback",
	}

	log.Printf("OAuth config initialized:")
	log.Printf("  - ClientID: %s", maskString(oauthConf.ClientID))
	log.Printf("  - RedirectURL: %s", oauthConf.RedirectURL)
	log.Printf("  - Scopes: %v", oauthConf.Scopes)
}

// TokenCipher returns the process-wide cipher for tokens at rest.
func TokenCipher() *Cipher {
	return tokenCipher
}

// GET /api/drive/link
// returns JSON { auth_url: ... }
func DriveLinkHandler(w http.ResponseWriter, r *http.Request) {
	uid, ok := auth.UserID(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	state, err := randomState()
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	// store state -> user
	if err := store.InsertOAuthState(r.Context(), &models.OAuthState{
		State:    state,
		UserID:   uid,
		Provider: "google",
	}); err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	// Offline access so refresh tokens keep the 65s leeway rule useful
	url := oauthConf.AuthCodeURL(
		state,
		oauth2.AccessTypeOffline,
		oauth2.ApprovalForce,
	)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"auth_url": url})
}

// GET /oauth2/callback?state=...&code=...
func OauthCallbackHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	state := q.Get("state")
	code := q.Get("code")
	errParam := q.Get("error")

	if errParam != "" {
		errDesc := q.Get("error_description")
		log.Printf("OAuth error: %s - %s", errParam, errDesc)
		http.Error(w, fmt.Sprintf("OAuth error: %s", errParam), http.StatusBadRequest)
		return
	}

	if state == "" || code == "" {
		http.Error(w, "missing params", http.StatusBadRequest)
		return
	}

	// lookup and delete state
	stored, err := store.FindAndDeleteState(r.Context(), state)
	if err != nil {
		log.Printf("Error finding state: %v", err)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	if stored == nil {
		http.Error(w, "invalid or expired state", http.StatusBadRequest)
		return
	}

	// exchange code for token
	tok, err := oauthConf.Exchange(r.Context(), code)
	if err != nil {
		log.Printf("Token exchange failed: %v", err)
		http.Error(w, "token exchange failed", http.StatusInternalServerError)
		return
	}

	b, err := json.Marshal(tok)
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	enc, err := tokenCipher.Seal(b)
	if err != nil {
		log.Printf("Encryption failed: %v", err)
		http.Error(w, "encrypt failed", http.StatusInternalServerError)
		return
	}

	acct := models.DriveAccount{
		Provider:       "google",
		DisplayName:    "Google Drive",
		EncryptedToken: enc,
	}

	if err := store.SetUserDriveAccount(r.Context(), stored.UserID, acct); err != nil {
		log.Printf("Failed to save drive account: %v", err)
		http.Error(w, "db save failed", http.StatusInternalServerError)
		return
	}

	log.Printf("Drive account linked for user %s", stored.UserID.Hex())

	http.Redirect(w, r, os.Getenv("BASE_URL")+"/oauth/finished", http.StatusSeeOther)
}

// utility to generate a random state (hex)
func randomState() (string, error) {
	b := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", b), nil
}

// Helper to mask sensitive strings for logging
func maskString(s string) string {
	if len(s) <= 8 {
		return "****"
	}
	return s[:4] + "****" + s[len(s)-4:]
}
