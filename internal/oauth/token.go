package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/MardaxTech/DriveTransferCode/internal/models"
	"github.com/MardaxTech/DriveTransferCode/internal/store"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/oauth2"
)

// tokenExpiryLeeway is the minimum remaining lifetime for a stored access
// token to be used as-is. Anything closer to expiry goes through a
// refresh first, so a token never dies mid-upload.
const tokenExpiryLeeway = 65 * time.Second

// ErrReauthRequired means no usable Drive token exists for the user and a
// fresh interactive consent flow is needed. Handlers answer 401 with the
// link endpoint; the client falls back to its sign-in view.
var ErrReauthRequired = errors.New("drive authorization required")

// AccountStore is the slice of the store the token provider needs.
type AccountStore interface {
	DriveAccount(ctx context.Context, userID primitive.ObjectID) (*models.DriveAccount, error)
	SaveDriveToken(ctx context.Context, userID primitive.ObjectID, encryptedToken []byte) error
	RemoveDriveAccount(ctx context.Context, userID primitive.ObjectID) error
}

type mongoAccounts struct{}

func (mongoAccounts) DriveAccount(ctx context.Context, userID primitive.ObjectID) (*models.DriveAccount, error) {
	u, err := store.FindUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, nil
	}
	return u.Drive, nil
}

func (mongoAccounts) SaveDriveToken(ctx context.Context, userID primitive.ObjectID, encryptedToken []byte) error {
	return store.UpdateDriveToken(ctx, userID, encryptedToken)
}

func (mongoAccounts) RemoveDriveAccount(ctx context.Context, userID primitive.ObjectID) error {
	return store.RemoveUserDriveAccount(ctx, userID)
}

// TokenProvider hands out usable Drive bearer tokens for a user, hiding
// the at-rest encryption and the refresh dance.
type TokenProvider struct {
	accounts AccountStore
	cipher   *Cipher
	now      func() time.Time
	refresh  func(ctx context.Context, tok *oauth2.Token) (*oauth2.Token, error)
}

// NewTokenProvider wires the provider to the Mongo store and the
// process-wide OAuth config. InitOAuthConfig must have run.
func NewTokenProvider() *TokenProvider {
	return &TokenProvider{
		accounts: mongoAccounts{},
		cipher:   tokenCipher,
		now:      time.Now,
		refresh: func(ctx context.Context, tok *oauth2.Token) (*oauth2.Token, error) {
			return oauthConf.TokenSource(ctx, tok).Token()
		},
	}
}

// Token returns a bearer token for the user's Drive account.
//
// A stored token whose expiry is at least 65 seconds away is returned
// without any network interaction. Otherwise the refresh token is
// exercised and the result persisted. When neither works the account is
// unlinked and ErrReauthRequired is returned; nothing is retried.
func (p *TokenProvider) Token(ctx context.Context, userID primitive.ObjectID) (string, error) {
	acct, err := p.accounts.DriveAccount(ctx, userID)
	if err != nil {
		return "", err
	}
	if acct == nil {
		return "", ErrReauthRequired
	}

	plain, err := p.cipher.Open(acct.EncryptedToken)
	if err != nil {
		log.Printf("stored drive token unreadable for user %s: %v", userID.Hex(), err)
		return "", ErrReauthRequired
	}

	var tok oauth2.Token
	if err := json.Unmarshal(plain, &tok); err != nil {
		log.Printf("stored drive token corrupt for user %s: %v", userID.Hex(), err)
		return "", ErrReauthRequired
	}

	if tok.Expiry.Sub(p.now()) >= tokenExpiryLeeway {
		return tok.AccessToken, nil
	}

	fresh, err := p.refresh(ctx, &tok)
	if err != nil || fresh.AccessToken == "" {
		log.Printf("drive token refresh failed for user %s: %v", userID.Hex(), err)
		// force re-consent; the stale grant is useless now
		if rmErr := p.accounts.RemoveDriveAccount(ctx, userID); rmErr != nil {
			log.Printf("unlink drive account for user %s: %v", userID.Hex(), rmErr)
		}
		return "", ErrReauthRequired
	}

	if b, err := json.Marshal(fresh); err == nil {
		if enc, err := p.cipher.Seal(b); err == nil {
			if err := p.accounts.SaveDriveToken(ctx, userID, enc); err != nil {
				log.Printf("persist refreshed token for user %s: %v", userID.Hex(), err)
			}
		}
	}

	return fresh.AccessToken, nil
}
