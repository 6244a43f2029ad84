package store

import (
	"context"
	"errors"
	"time"

	"github.com/MardaxTech/DriveTransferCode/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var codesCol *mongo.Collection

func initCodesCollection(ctx context.Context) error {
	codesCol = db.Collection("transfer_codes")

	// One record per (owner, hashed code)
	_, err := codesCol.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}, {Key: "code_hash", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return err
	}

	// TTL index so abandoned codes expire server-side
	_, err = codesCol.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.M{"upload_time": 1},
		Options: options.Index().SetExpireAfterSeconds(int32(codeTTL() / time.Second)),
	})
	return err
}

// ClearCodes deletes every transfer record owned by the email, keeping at
// most one outstanding code per user. Not transactional; a concurrent
// registration can race.
func ClearCodes(ctx context.Context, email string) error {
	if codesCol == nil {
		return errors.New("codes collection not initialized")
	}
	_, err := codesCol.DeleteMany(ctx, bson.M{"email": email})
	return err
}

// PutCode writes a transfer record at its (email, code_hash) key,
// overwriting unconditionally.
func PutCode(ctx context.Context, rec *models.TransferRecord) error {
	if codesCol == nil {
		return errors.New("codes collection not initialized")
	}
	rec.UploadTime = time.Now().UTC()
	_, err := codesCol.ReplaceOne(ctx,
		bson.M{"email": rec.Email, "code_hash": rec.CodeHash},
		rec,
		options.Replace().SetUpsert(true),
	)
	return err
}

// GetCode fetches the record at (email, codeHash). Returns nil, nil when
// absent.
func GetCode(ctx context.Context, email, codeHash string) (*models.TransferRecord, error) {
	if codesCol == nil {
		return nil, errors.New("codes collection not initialized")
	}
	var rec models.TransferRecord
	err := codesCol.FindOne(ctx, bson.M{"email": email, "code_hash": codeHash}).Decode(&rec)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// DeleteCode removes the record at (email, codeHash). Deleting an absent
// record is not an error.
func DeleteCode(ctx context.Context, email, codeHash string) error {
	if codesCol == nil {
		return errors.New("codes collection not initialized")
	}
	_, err := codesCol.DeleteOne(ctx, bson.M{"email": email, "code_hash": codeHash})
	return err
}
