package store

import (
	"context"
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/MardaxTech/DriveTransferCode/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	mongoClient *mongo.Client
	db          *mongo.Database
	usersCol    *mongo.Collection
	stateCol    *mongo.Collection
)

func InitStore(ctx context.Context) error {
	uri := os.Getenv("MONGO_URI")
	clientOpts := options.Client().ApplyURI(uri)
	c, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return err
	}
	if err := c.Ping(ctx, nil); err != nil {
		return err
	}
	mongoClient = c
	db = c.Database("drive_transfer_code")
	usersCol = db.Collection("users")
	stateCol = db.Collection("oauth_states")

	// Initialize the transfer code registry collection
	if err := initCodesCollection(ctx); err != nil {
		return err
	}

	// Create TTL index for oauth states
	_, err = stateCol.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.M{"created_at": 1},
		Options: options.Index().SetExpireAfterSeconds(600),
	})
	if err != nil {
		return err
	}

	// Create unique index on email
	_, err = usersCol.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.M{"email": 1},
		Options: options.Index().SetUnique(true),
	})
	return err
}

func DisconnectStore(ctx context.Context) error {
	if mongoClient != nil {
		return mongoClient.Disconnect(ctx)
	}
	return nil
}

func FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	err := usersCol.FindOne(ctx, bson.M{"email": email}).Decode(&u)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

func FindUserByID(ctx context.Context, userID primitive.ObjectID) (*models.User, error) {
	var u models.User
	err := usersCol.FindOne(ctx, bson.M{"_id": userID}).Decode(&u)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

func CreateUser(ctx context.Context, u *models.User) error {
	u.CreatedAt = time.Now().UTC()
	u.ID = primitive.NewObjectID()
	_, err := usersCol.InsertOne(ctx, u)
	return err
}

func InsertOAuthState(ctx context.Context, state *models.OAuthState) error {
	state.CreatedAt = time.Now().UTC()
	_, err := stateCol.InsertOne(ctx, state)
	return err
}

func FindAndDeleteState(ctx context.Context, state string) (*models.OAuthState, error) {
	var s models.OAuthState
	err := stateCol.FindOneAndDelete(ctx, bson.M{"state": state}).Decode(&s)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// SetUserDriveAccount replaces the linked drive account of a user. A user
// has a single Google identity; relinking overwrites the stored token.
func SetUserDriveAccount(ctx context.Context, userID primitive.ObjectID, acct models.DriveAccount) error {
	acct.CreatedAt = time.Now().UTC()
	_, err := usersCol.UpdateOne(ctx, bson.M{"_id": userID}, bson.M{"$set": bson.M{"drive": acct}})
	return err
}

// UpdateDriveToken swaps the encrypted token blob after a refresh.
func UpdateDriveToken(ctx context.Context, userID primitive.ObjectID, encryptedToken []byte) error {
	_, err := usersCol.UpdateOne(ctx, bson.M{"_id": userID}, bson.M{"$set": bson.M{"drive.encrypted_token": encryptedToken}})
	return err
}

// RemoveUserDriveAccount unlinks the drive account, forcing a fresh
// consent flow the next time a token is needed.
func RemoveUserDriveAccount(ctx context.Context, userID primitive.ObjectID) error {
	_, err := usersCol.UpdateOne(ctx, bson.M{"_id": userID}, bson.M{"$unset": bson.M{"drive": ""}})
	return err
}

// codeTTL reads the registry record lifetime from env, default 24h.
func codeTTL() time.Duration {
	hours, _ := strconv.Atoi(os.Getenv("CODE_TTL_HOURS"))
	if hours <= 0 {
		hours = 24
	}
	return time.Duration(hours) * time.Hour
}
