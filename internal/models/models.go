package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DriveAccount is the linked Google Drive identity of a user. The OAuth
// token is stored as AES-GCM encrypted oauth2.Token JSON.
type DriveAccount struct {
	Provider       string    `bson:"provider" json:"provider"` // "google"
	DisplayName    string    `bson:"display_name,omitempty" json:"display_name"`
	EncryptedToken []byte    `bson:"encrypted_token" json:"-"`
	CreatedAt      time.Time `bson:"created_at" json:"created_at"`
}

// User is our standard user object stored in MongoDB. The registry keys
// transfer records by the account email.
type User struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Email        string             `bson:"email" json:"email"`
	PasswordHash []byte             `bson:"password_hash" json:"-"`
	Drive        *DriveAccount      `bson:"drive,omitempty" json:"drive,omitempty"`
	CreatedAt    time.Time          `bson:"created_at" json:"created_at"`
}

// OAuthState is used to temporarily store OAuth state values so the user
// can be tracked back after the consent flow. Expired by a TTL index.
type OAuthState struct {
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
	State     string             `bson:"state" json:"state"`
	UserID    primitive.ObjectID `bson:"user_id" json:"user_id"`
	Provider  string             `bson:"provider" json:"provider"`
}

// Transfer record kinds.
const (
	RecordUpload   = "upload"   // grants a second device an upload under the owner's token
	RecordDownload = "download" // lists Drive download URLs for shared files
)

// TransferRecord is one code registration. It lives under the owner's
// email at the SHA-512 of the code; the plaintext code is never stored.
// Upload grants carry the owner's bearer token, encrypted at rest like
// drive accounts. Download records carry the collected URLs and the
// original file names, index-aligned.
type TransferRecord struct {
	Email          string    `bson:"email" json:"-"`
	CodeHash       string    `bson:"code_hash" json:"-"`
	Kind           string    `bson:"kind" json:"kind"`
	UploadTime     time.Time `bson:"upload_time" json:"upload_time"`
	EncryptedToken []byte    `bson:"encrypted_token,omitempty" json:"-"`
	URLs           []string  `bson:"urls,omitempty" json:"urls,omitempty"`
	Filenames      []string  `bson:"filenames,omitempty" json:"filenames,omitempty"`
}
