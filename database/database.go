package database

import (
	"context"
	"time"

	"finsite/logging"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	UsersCollection        = "users"
	PublicationsCollection = "publications"
	MediaCollection        = "media"
	CategoriesCollection   = "categories"
)

// DB bundles the client with the collections the repositories work on.
type DB struct {
	Client       *mongo.Client
	Database     *mongo.Database
	Users        *mongo.Collection
	Publications *mongo.Collection
	Media        *mongo.Collection
	Categories   *mongo.Collection

	// transactions requires a replica set, standalone servers reject them.
	transactions bool
}

// Connect dials MongoDB, pings it and binds the collections of dbName.
func Connect(ctx context.Context, uri, dbName string, transactions bool) (*DB, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, errors.Wrap(err, "connect to MongoDB")
	}

	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, errors.Wrap(err, "ping MongoDB")
	}

	return New(client, dbName, transactions), nil
}

func New(client *mongo.Client, dbName string, transactions bool) *DB {
	db := client.Database(dbName)
	return &DB{
		Client:       client,
		Database:     db,
		Users:        db.Collection(UsersCollection),
		Publications: db.Collection(PublicationsCollection),
		Media:        db.Collection(MediaCollection),
		Categories:   db.Collection(CategoriesCollection),
		transactions: transactions,
	}
}

// EnsureIndexes creates the unique and search indexes. Creating an index
// that already exists with the same keys and options is a no-op on the server.
func (db *DB) EnsureIndexes(ctx context.Context) error {
	indexes := map[*mongo.Collection][]mongo.IndexModel{
		db.Users: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		db.Publications: {
			{Keys: bson.D{{Key: "slug", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "title", Value: "text"}}},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "category", Value: 1}}},
			{Keys: bson.D{{Key: "authorId", Value: 1}}},
		},
		db.Media: {
			{Keys: bson.D{{Key: "publicationId", Value: 1}}},
			{Keys: bson.D{{Key: "fileType", Value: 1}, {Key: "_id", Value: -1}}},
		},
		db.Categories: {
			{Keys: bson.D{{Key: "slug", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "isActive", Value: 1}, {Key: "order", Value: 1}}},
		},
	}

	for coll, models := range indexes {
		if _, err := coll.Indexes().CreateMany(ctx, models); err != nil {
			return errors.Wrapf(err, "create indexes on %s", coll.Name())
		}
	}
	return nil
}

// WithTransaction runs fn inside a multi-document transaction when they are
// enabled. Otherwise fn runs directly and a failure half way leaves the
// earlier writes in place.
func (db *DB) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if !db.transactions {
		return fn(ctx)
	}

	return db.Client.UseSession(ctx, func(sc mongo.SessionContext) error {
		_, err := sc.WithTransaction(sc, func(txCtx mongo.SessionContext) (interface{}, error) {
			return nil, fn(txCtx)
		})
		return err
	})
}

func (db *DB) Disconnect() error {
	if db.Client == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.Client.Disconnect(ctx); err != nil {
		return err
	}

	logging.Log.Info("disconnected from MongoDB")
	return nil
}
