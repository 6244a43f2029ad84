package registry

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/MardaxTech/DriveTransferCode/internal/models"
	"github.com/MardaxTech/DriveTransferCode/internal/oauth"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory Store keyed by email + code hash.
type memStore struct {
	recs map[string]*models.TransferRecord
}

func newMemStore() *memStore {
	return &memStore{recs: make(map[string]*models.TransferRecord)}
}

func key(email, hash string) string { return email + "/" + hash }

func (m *memStore) ClearCodes(ctx context.Context, email string) error {
	for k, rec := range m.recs {
		if rec.Email == email {
			delete(m.recs, k)
		}
	}
	return nil
}

func (m *memStore) PutCode(ctx context.Context, rec *models.TransferRecord) error {
	rec.UploadTime = time.Now().UTC()
	m.recs[key(rec.Email, rec.CodeHash)] = rec
	return nil
}

func (m *memStore) GetCode(ctx context.Context, email, codeHash string) (*models.TransferRecord, error) {
	return m.recs[key(email, codeHash)], nil
}

func (m *memStore) DeleteCode(ctx context.Context, email, codeHash string) error {
	delete(m.recs, key(email, codeHash))
	return nil
}

func newTestRegistry(t *testing.T) (*Registry, *memStore) {
	t.Helper()
	cipher, err := oauth.NewCipher(bytes.Repeat([]byte{0x24}, 32))
	require.NoError(t, err)
	st := newMemStore()
	return NewWithStore(st, cipher), st
}

func TestUploadGrantRoundTrip(t *testing.T) {
	reg, st := newTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, reg.RegisterUploadGrant(ctx, "a@example.com", "K3Q9Z!7M", "ya29.owner-token"))

	// plaintext token never reaches the store
	for _, rec := range st.recs {
		assert.NotContains(t, string(rec.EncryptedToken), "ya29.owner-token")
	}

	rec, err := reg.Resolve(ctx, "a@example.com", "K3Q9Z!7M")
	require.NoError(t, err)
	assert.True(t, rec.IsUploadGrant())
	assert.Equal(t, "ya29.owner-token", rec.Token)
}

func TestDownloadRecordRoundTrip(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	urls := []string{"https://example.test/f1", "https://example.test/f2"}
	names := []string{"report.pdf", "notes.txt"}
	require.NoError(t, reg.RegisterDownload(ctx, "a@example.com", "7X2CADE1", "tok", urls, names))

	rec, err := reg.Resolve(ctx, "a@example.com", "7X2CADE1")
	require.NoError(t, err)
	assert.False(t, rec.IsUploadGrant())
	assert.Equal(t, urls, rec.URLs)
	assert.Equal(t, names, rec.Filenames)
	assert.Equal(t, "tok", rec.Token)
}

func TestResolveUnknown(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	_, err := reg.Resolve(ctx, "a@example.com", "K3Q9Z!7M")
	assert.ErrorIs(t, err, ErrCodeNotFound)

	// registered under a different email
	require.NoError(t, reg.RegisterUploadGrant(ctx, "a@example.com", "K3Q9Z!7M", "tok"))
	_, err = reg.Resolve(ctx, "b@example.com", "K3Q9Z!7M")
	assert.ErrorIs(t, err, ErrCodeNotFound)
}

func TestClearRemovesAllCodesForEmail(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, reg.RegisterUploadGrant(ctx, "a@example.com", "K3Q9Z!7M", "tok"))
	require.NoError(t, reg.RegisterUploadGrant(ctx, "b@example.com", "7X2CADE1", "tok"))

	require.NoError(t, reg.Clear(ctx, "a@example.com"))

	_, err := reg.Resolve(ctx, "a@example.com", "K3Q9Z!7M")
	assert.ErrorIs(t, err, ErrCodeNotFound)

	// other users unaffected
	_, err = reg.Resolve(ctx, "b@example.com", "7X2CADE1")
	assert.NoError(t, err)
}

func TestDelete(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, reg.RegisterUploadGrant(ctx, "a@example.com", "K3Q9Z!7M", "tok"))
	require.NoError(t, reg.Delete(ctx, "a@example.com", "K3Q9Z!7M"))

	_, err := reg.Resolve(ctx, "a@example.com", "K3Q9Z!7M")
	assert.ErrorIs(t, err, ErrCodeNotFound)

	// deleting an absent record is not an error
	assert.NoError(t, reg.Delete(ctx, "a@example.com", "K3Q9Z!7M"))
}

func TestDistinctCodesDistinctKeys(t *testing.T) {
	reg, st := newTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, reg.RegisterUploadGrant(ctx, "a@example.com", "K3Q9Z!7M", "t1"))
	require.NoError(t, reg.RegisterUploadGrant(ctx, "a@example.com", "K3Q9Z!7N", "t2"))
	assert.Len(t, st.recs, 2)
}
