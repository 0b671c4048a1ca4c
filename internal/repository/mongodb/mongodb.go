// Package mongodb implements the repository interfaces on MongoDB.
//
// Users and posts live in two collections. The multi-document operations
// (post create and delete, which also maintain the owner's post set) run in
// a session transaction, so the server must be a replica set or a sharded
// cluster. A standalone mongod rejects them.
package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	usersCollection = "users"
	postsCollection = "posts"
)

// DB holds the client and the two collections the stores use.
type DB struct {
	client *mongo.Client
	users  *mongo.Collection
	posts  *mongo.Collection
}

// Connect dials uri, verifies the primary is reachable and makes sure the
// indexes exist.
func Connect(ctx context.Context, uri, database string) (*DB, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongodb: connecting: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("mongodb: pinging primary: %w", err)
	}

	mdb := client.Database(database)
	db := &DB{
		client: client,
		users:  mdb.Collection(usersCollection),
		posts:  mdb.Collection(postsCollection),
	}

	if err := db.ensureIndexes(ctx); err != nil {
		client.Disconnect(ctx)
		return nil, err
	}

	return db, nil
}

func (db *DB) ensureIndexes(ctx context.Context) error {
	if _, err := db.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("mongodb: creating users.email index: %w", err)
	}

	if _, err := db.posts.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "authorId", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "state", Value: 1}, {Key: "createdAt", Value: -1}}},
	}); err != nil {
		return fmt.Errorf("mongodb: creating posts indexes: %w", err)
	}

	return nil
}

// Users returns the user store.
func (db *DB) Users() *UserStore {
	return &UserStore{db: db}
}

// Posts returns the post store.
func (db *DB) Posts() *PostStore {
	return &PostStore{db: db}
}

// Ping checks that the primary still answers.
func (db *DB) Ping(ctx context.Context) error {
	return db.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the client.
func (db *DB) Close() error {
	return db.client.Disconnect(context.Background())
}

// withTx runs fn inside a session transaction. The error fn returns is
// handed back unchanged so apperror values survive.
func (db *DB) withTx(ctx context.Context, fn func(sc mongo.SessionContext) error) error {
	session, err := db.client.StartSession()
	if err != nil {
		return fmt.Errorf("mongodb: starting session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	return err
}
