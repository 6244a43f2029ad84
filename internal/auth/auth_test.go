package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestJWTRoundTrip(t *testing.T) {
	jwtSecret = []byte("test-secret")

	uid := primitive.NewObjectID().Hex()
	tok, err := generateJWT(uid, "alice@example.com")
	require.NoError(t, err)

	gotID, gotEmail, err := parseJWT(tok)
	require.NoError(t, err)
	assert.Equal(t, uid, gotID)
	assert.Equal(t, "alice@example.com", gotEmail)
}

func TestParseJWTRejectsForgedToken(t *testing.T) {
	jwtSecret = []byte("test-secret")
	tok, err := generateJWT(primitive.NewObjectID().Hex(), "a@b.co")
	require.NoError(t, err)

	jwtSecret = []byte("other-secret")
	_, _, err = parseJWT(tok)
	assert.Error(t, err)
}

func TestAuthMiddleware(t *testing.T) {
	jwtSecret = []byte("test-secret")

	uid := primitive.NewObjectID()
	tok, err := generateJWT(uid.Hex(), "alice@example.com")
	require.NoError(t, err)

	var gotID primitive.ObjectID
	var gotEmail string
	handler := AuthMiddleware(func(w http.ResponseWriter, r *http.Request) {
		gotID, _ = UserID(r.Context())
		gotEmail, _ = Email(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name       string
		authHeader string
		wantStatus int
	}{
		{"valid token", "Bearer " + tok, http.StatusOK},
		{"missing header", "", http.StatusUnauthorized},
		{"garbage token", "Bearer not.a.jwt", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.authHeader != "" {
				r.Header.Set("Authorization", tt.authHeader)
			}
			w := httptest.NewRecorder()
			handler(w, r)
			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}

	assert.Equal(t, uid, gotID)
	assert.Equal(t, "alice@example.com", gotEmail)
}
