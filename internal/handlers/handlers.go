package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/MardaxTech/DriveTransferCode/internal/auth"
	"github.com/MardaxTech/DriveTransferCode/internal/drive"
	"github.com/MardaxTech/DriveTransferCode/internal/oauth"
	"github.com/MardaxTech/DriveTransferCode/internal/store"
)

type Handler struct {
	tokens *oauth.TokenProvider
	drv    *drive.Client
}

func New(tokens *oauth.TokenProvider, drv *drive.Client) *Handler {
	return &Handler{tokens: tokens, drv: drv}
}

// GET /api/drive/account
// Reports whether a Drive account is linked, without the stored token.
func (h *Handler) DriveAccount(w http.ResponseWriter, r *http.Request) {
	uid, ok := auth.UserID(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	u, err := store.FindUserByID(r.Context(), uid)
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if u == nil || u.Drive == nil {
		json.NewEncoder(w).Encode(map[string]any{"linked": false})
		return
	}
	json.NewEncoder(w).Encode(map[string]any{
		"linked":       true,
		"provider":     u.Drive.Provider,
		"display_name": u.Drive.DisplayName,
		"created_at":   u.Drive.CreatedAt,
	})
}

// GET /api/drive/space
// Storage quota of the linked Drive account.
func (h *Handler) DriveSpace(w http.ResponseWriter, r *http.Request) {
	uid, ok := auth.UserID(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	token, err := h.tokens.Token(r.Context(), uid)
	if err != nil {
		if errors.Is(err, oauth.ErrReauthRequired) {
			http.Error(w, "drive authorization required", http.StatusUnauthorized)
			return
		}
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	q, err := h.drv.Quota(r.Context(), token)
	if err != nil {
		log.Printf("quota query failed: %v", err)
		http.Error(w, "drive query failed", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(q)
}
