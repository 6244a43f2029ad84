// Package registry manages per-user transfer records keyed by the
// SHA-512 of their share code.
package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MardaxTech/DriveTransferCode/internal/codes"
	"github.com/MardaxTech/DriveTransferCode/internal/models"
	"github.com/MardaxTech/DriveTransferCode/internal/oauth"
	"github.com/MardaxTech/DriveTransferCode/internal/store"
)

// ErrCodeNotFound means no record exists for the (email, code) pair.
var ErrCodeNotFound = errors.New("code not found")

// Store is the slice of the document store the registry needs.
type Store interface {
	ClearCodes(ctx context.Context, email string) error
	PutCode(ctx context.Context, rec *models.TransferRecord) error
	GetCode(ctx context.Context, email, codeHash string) (*models.TransferRecord, error)
	DeleteCode(ctx context.Context, email, codeHash string) error
}

type mongoStore struct{}

func (mongoStore) ClearCodes(ctx context.Context, email string) error {
	return store.ClearCodes(ctx, email)
}

func (mongoStore) PutCode(ctx context.Context, rec *models.TransferRecord) error {
	return store.PutCode(ctx, rec)
}

func (mongoStore) GetCode(ctx context.Context, email, codeHash string) (*models.TransferRecord, error) {
	return store.GetCode(ctx, email, codeHash)
}

func (mongoStore) DeleteCode(ctx context.Context, email, codeHash string) error {
	return store.DeleteCode(ctx, email, codeHash)
}

// Record is a resolved transfer record with its bearer token unsealed.
type Record struct {
	Kind       string
	UploadTime time.Time
	Token      string
	URLs       []string
	Filenames  []string
}

// IsUploadGrant reports whether the record authorizes an upload under the
// owner's token rather than listing downloads.
func (r *Record) IsUploadGrant() bool {
	return r.Kind == models.RecordUpload
}

type Registry struct {
	store  Store
	cipher *oauth.Cipher
}

// New wires the registry to the Mongo store.
func New(cipher *oauth.Cipher) *Registry {
	return &Registry{store: mongoStore{}, cipher: cipher}
}

// NewWithStore is used by tests to run against a fake store.
func NewWithStore(st Store, cipher *oauth.Cipher) *Registry {
	return &Registry{store: st, cipher: cipher}
}

// Clear deletes every outstanding record for the email so a user holds at
// most one live code.
func (r *Registry) Clear(ctx context.Context, email string) error {
	return r.store.ClearCodes(ctx, email)
}

// RegisterUploadGrant stores an upload-request record carrying the
// owner's bearer token, sealed at rest.
func (r *Registry) RegisterUploadGrant(ctx context.Context, email, code, token string) error {
	enc, err := r.cipher.Seal([]byte(token))
	if err != nil {
		return fmt.Errorf("seal upload token: %w", err)
	}
	return r.store.PutCode(ctx, &models.TransferRecord{
		Email:          email,
		CodeHash:       codes.Hash(code),
		Kind:           models.RecordUpload,
		EncryptedToken: enc,
	})
}

// RegisterDownload stores a download record listing url/filename pairs
// plus the sealed token needed to fetch them.
func (r *Registry) RegisterDownload(ctx context.Context, email, code, token string, urls, filenames []string) error {
	enc, err := r.cipher.Seal([]byte(token))
	if err != nil {
		return fmt.Errorf("seal download token: %w", err)
	}
	return r.store.PutCode(ctx, &models.TransferRecord{
		Email:          email,
		CodeHash:       codes.Hash(code),
		Kind:           models.RecordDownload,
		EncryptedToken: enc,
		URLs:           urls,
		Filenames:      filenames,
	})
}

// Resolve fetches and unseals the record for the (email, code) pair.
// Returns ErrCodeNotFound when either the email or the code is unknown.
func (r *Registry) Resolve(ctx context.Context, email, code string) (*Record, error) {
	rec, err := r.store.GetCode(ctx, email, codes.Hash(code))
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrCodeNotFound
	}

	token, err := r.cipher.Open(rec.EncryptedToken)
	if err != nil {
		return nil, fmt.Errorf("unseal record token: %w", err)
	}

	return &Record{
		Kind:       rec.Kind,
		UploadTime: rec.UploadTime,
		Token:      string(token),
		URLs:       rec.URLs,
		Filenames:  rec.Filenames,
	}, nil
}

// Delete removes the record for the (email, code) pair. Used as
// best-effort cleanup after a code is consumed.
func (r *Registry) Delete(ctx context.Context, email, code string) error {
	return r.store.DeleteCode(ctx, email, codes.Hash(code))
}
