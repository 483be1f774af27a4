package store

import (
	"context"
	"errors"
	"time"

	"github.com/jjudge-oj/accounts/types"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type accountDocument struct {
	ID            primitive.ObjectID `bson:"_id,omitempty"`
	types.Account `bson:",inline"`
}

func (d accountDocument) account() types.Account {
	account := d.Account
	account.ID = d.ID.Hex()
	return account
}

// MongoAccountRepository handles persistence for accounts in a MongoDB collection.
type MongoAccountRepository struct {
	collection *mongo.Collection
	now        func() time.Time
}

func NewMongoAccountRepository(collection *mongo.Collection) *MongoAccountRepository {
	return &MongoAccountRepository{collection: collection, now: time.Now}
}

// EnsureIndexes creates the unique email index.
func (r *MongoAccountRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("email_unique"),
	})
	return err
}

func (r *MongoAccountRepository) GetByID(ctx context.Context, id string) (types.Account, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return types.Account{}, ErrNotFound
	}
	return r.findOne(ctx, bson.M{"_id": oid})
}

func (r *MongoAccountRepository) GetByEmail(ctx context.Context, email string) (types.Account, error) {
	return r.findOne(ctx, bson.M{"email": types.NormalizeEmail(email)})
}

func (r *MongoAccountRepository) Create(ctx context.Context, account types.Account) (types.Account, error) {
	now := r.now().UTC().Truncate(time.Millisecond)
	account.Email = types.NormalizeEmail(account.Email)
	account.CreatedAt = now
	account.UpdatedAt = now

	doc := accountDocument{ID: primitive.NewObjectID(), Account: account}
	if _, err := r.collection.InsertOne(ctx, doc); err != nil {
		return types.Account{}, mongoWriteError(err)
	}
	return doc.account(), nil
}

// UpdateProfile overwrites every mutable profile field of the account.
func (r *MongoAccountRepository) UpdateProfile(ctx context.Context, id string, update types.ProfileUpdate) (types.Account, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return types.Account{}, ErrNotFound
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc accountDocument
	err = r.collection.FindOneAndUpdate(ctx, bson.M{"_id": oid}, profileUpdateDocument(update, r.now()), opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return types.Account{}, ErrNotFound
		}
		return types.Account{}, err
	}
	return doc.account(), nil
}

func (r *MongoAccountRepository) findOne(ctx context.Context, filter bson.M) (types.Account, error) {
	var doc accountDocument
	if err := r.collection.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return types.Account{}, ErrNotFound
		}
		return types.Account{}, err
	}
	return doc.account(), nil
}

// profileUpdateDocument sets every mutable field. A nil DateOfBirth is stored as null.
func profileUpdateDocument(update types.ProfileUpdate, now time.Time) bson.M {
	return bson.M{"$set": bson.M{
		"fullName":  update.FullName,
		"phone":     update.Phone,
		"address":   update.Address,
		"gender":    string(update.Gender),
		"dob":       update.DateOfBirth,
		"updatedAt": now.UTC().Truncate(time.Millisecond),
	}}
}

func mongoWriteError(err error) error {
	if mongo.IsDuplicateKeyError(err) {
		return ErrConflict
	}
	return err
}
