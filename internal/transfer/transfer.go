// Package transfer sequences the three user journeys: requesting an
// upload from another device, sharing local files, and consuming a code.
package transfer

import (
	"context"
	"errors"
	"io"
	"log"
	"regexp"

	"github.com/MardaxTech/DriveTransferCode/internal/analytics"
	"github.com/MardaxTech/DriveTransferCode/internal/codes"
	"github.com/MardaxTech/DriveTransferCode/internal/registry"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	// ErrInvalidCode means the input is not 8 alphabet characters after
	// normalization. Rejected before any store interaction.
	ErrInvalidCode = errors.New("invalid code")
	// ErrInvalidEmail means the owner email failed the shape check.
	ErrInvalidEmail = errors.New("invalid email")
	// ErrNoFiles means a flow that needs files got none.
	ErrNoFiles = errors.New("no files provided")
	// ErrNothingUploaded means every file in the batch failed to upload.
	ErrNothingUploaded = errors.New("no file could be uploaded")
)

// same shape check the client applies to the owner email field
var emailPattern = regexp.MustCompile(`^\w+([.-]?\w+)*@\w+([.-]?\w+)*(\.\w{2,3})+$`)

// defaultDriveName is what Drive calls media uploads; files already named
// this are not renamed.
const defaultDriveName = "Untitled"

// Registry is the code registry the flows write and consume.
type Registry interface {
	Clear(ctx context.Context, email string) error
	RegisterUploadGrant(ctx context.Context, email, code, token string) error
	RegisterDownload(ctx context.Context, email, code, token string, urls, filenames []string) error
	Resolve(ctx context.Context, email, code string) (*registry.Record, error)
	Delete(ctx context.Context, email, code string) error
}

// Drive is the slice of the Drive client the flows call.
type Drive interface {
	Upload(ctx context.Context, body io.Reader, size int64, contentType, token string) (string, error)
	Rename(ctx context.Context, fileID, newName, token string) error
	DownloadURL(fileID string) string
}

// Tokens hands out usable bearer tokens for a user's Drive account.
type Tokens interface {
	Token(ctx context.Context, userID primitive.ObjectID) (string, error)
}

// Events is the fire-and-forget analytics sink.
type Events interface {
	Log(name string, params map[string]any)
}

// File is one file to move, already open for reading.
type File struct {
	Name        string
	ContentType string
	Size        int64
	Content     io.Reader
}

type Service struct {
	registry Registry
	drive    Drive
	tokens   Tokens
	events   Events
}

func NewService(reg Registry, drv Drive, tok Tokens, ev Events) *Service {
	return &Service{registry: reg, drive: drv, tokens: tok, events: ev}
}

// UploadWCode registers an upload-request record under a fresh code: the
// owner's bearer token, retrievable by anyone who learns the code and the
// owner email. Returns the code to hand out.
func (s *Service) UploadWCode(ctx context.Context, userID primitive.ObjectID, email string) (string, error) {
	code := codes.Generate()

	token, err := s.tokens.Token(ctx, userID)
	if err != nil {
		return "", err
	}

	if err := s.registry.Clear(ctx, email); err != nil {
		return "", err
	}
	if err := s.registry.RegisterUploadGrant(ctx, email, code, token); err != nil {
		return "", err
	}

	s.events.Log(analytics.EventUploadWCode, nil)
	return code, nil
}

// DownloadWCode uploads the given files to the owner's Drive and
// registers one download record listing them all, under a fresh code.
// Files are moved one at a time; a failed file is dropped from the record
// while its siblings proceed.
func (s *Service) DownloadWCode(ctx context.Context, userID primitive.ObjectID, email string, files []File) (string, error) {
	if len(files) == 0 {
		return "", ErrNoFiles
	}

	code := codes.Generate()

	token, err := s.tokens.Token(ctx, userID)
	if err != nil {
		return "", err
	}

	// one live code per user
	if err := s.registry.Clear(ctx, email); err != nil {
		return "", err
	}

	var urls, filenames []string
	for _, f := range files {
		fileID, err := s.drive.Upload(ctx, f.Content, f.Size, f.ContentType, token)
		if err != nil {
			log.Printf("upload %q failed: %v", f.Name, err)
			continue
		}

		urls = append(urls, s.drive.DownloadURL(fileID))
		filenames = append(filenames, f.Name)

		if f.Name != "" && f.Name != defaultDriveName {
			if err := s.drive.Rename(ctx, fileID, f.Name, token); err != nil {
				// the file stays reachable as "Untitled"
				log.Printf("rename %q failed: %v", f.Name, err)
			}
		}
	}

	if len(urls) == 0 {
		return "", ErrNothingUploaded
	}

	if err := s.registry.RegisterDownload(ctx, email, code, token, urls, filenames); err != nil {
		return "", err
	}

	s.events.Log(analytics.EventDownloadWCode, nil)
	return code, nil
}

// DownloadEntry is one fetchable file of a consumed download code.
type DownloadEntry struct {
	URL  string
	Name string
}

// Resolution is the outcome of consuming a code: either a grant to upload
// under the owner's token, or the list of files to fetch.
type Resolution struct {
	UploadGrant bool
	Token       string
	Files       []DownloadEntry
	// Corrupt flags a record whose urls and filenames disagree; the
	// matching pairs are still in Files.
	Corrupt bool
}

// UseCode validates and consumes a code. Input is normalized before
// validation; invalid input never reaches the registry. The record is
// deleted once resolved, whatever happens to the transfer afterwards.
func (s *Service) UseCode(ctx context.Context, email, rawCode string) (*Resolution, error) {
	s.events.Log(analytics.EventUsedCode, nil)

	code := codes.Normalize(rawCode)
	if !codes.Valid(code) {
		return nil, ErrInvalidCode
	}
	if !emailPattern.MatchString(email) {
		return nil, ErrInvalidEmail
	}

	rec, err := s.registry.Resolve(ctx, email, code)
	if err != nil {
		return nil, err
	}

	// one-time use: best-effort cleanup regardless of transfer outcome
	if err := s.registry.Delete(ctx, email, code); err != nil {
		log.Printf("delete consumed code: %v", err)
	}

	if rec.IsUploadGrant() {
		return &Resolution{UploadGrant: true, Token: rec.Token}, nil
	}

	res := &Resolution{Token: rec.Token}
	if len(rec.URLs) != len(rec.Filenames) {
		res.Corrupt = true
	}
	n := len(rec.URLs)
	if len(rec.Filenames) < n {
		n = len(rec.Filenames)
	}
	for i := 0; i < n; i++ {
		if rec.URLs[i] == "" || rec.Filenames[i] == "" {
			res.Corrupt = true
			continue
		}
		res.Files = append(res.Files, DownloadEntry{URL: rec.URLs[i], Name: rec.Filenames[i]})
	}
	return res, nil
}

// ConsumeUpload moves the picked files to the code owner's Drive under
// the granted token, serialized like every other flow.
func (s *Service) ConsumeUpload(ctx context.Context, token string, files []File) error {
	if len(files) == 0 {
		return ErrNoFiles
	}

	uploaded := 0
	for _, f := range files {
		fileID, err := s.drive.Upload(ctx, f.Content, f.Size, f.ContentType, token)
		if err != nil {
			log.Printf("upload %q failed: %v", f.Name, err)
			continue
		}
		uploaded++

		if f.Name != "" && f.Name != defaultDriveName {
			if err := s.drive.Rename(ctx, fileID, f.Name, token); err != nil {
				log.Printf("rename %q failed: %v", f.Name, err)
			}
		}
	}

	if uploaded == 0 {
		return ErrNothingUploaded
	}
	return nil
}
