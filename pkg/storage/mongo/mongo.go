// Package mongo implements storage.Storage on MongoDB. Images live in a GridFS bucket.
package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"

	"forum/pkg/storage"
)

const (
	usersColl    = "users"
	postsColl    = "posts"
	commentsColl = "comments"
	imagesBucket = "images"
)

// caseInsensitive matches emails and usernames regardless of letter case.
var caseInsensitive = &options.Collation{Locale: "en", Strength: 2}

type Storage struct {
	client *mongo.Client
	dbName string
	images *gridfs.Bucket
}

func New(ctx context.Context, conf *Config) (*Storage, error) {
	client, err := mongo.Connect(ctx, conf.Options())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrConnectDB, err)
	}

	s := Storage{client: client, dbName: conf.DBName}

	for _, name := range []string{usersColl, postsColl, commentsColl} {
		if err := s.createCollection(ctx, name); err != nil {
			return nil, err
		}
	}
	if err := s.createIndexes(ctx); err != nil {
		return nil, err
	}

	bucket, err := gridfs.NewBucket(s.db(), options.GridFSBucket().SetName(imagesBucket))
	if err != nil {
		return nil, err
	}
	s.images = bucket

	return &s, nil
}

func (s *Storage) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *Storage) Close(ctx context.Context) {
	s.client.Disconnect(ctx)
}

func (s *Storage) db() *mongo.Database {
	return s.client.Database(s.dbName)
}

func (s *Storage) coll(name string) *mongo.Collection {
	return s.db().Collection(name)
}

func (s *Storage) createIndexes(ctx context.Context) error {
	_, err := s.coll(usersColl).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetCollation(caseInsensitive),
		},
		{
			Keys:    bson.D{{Key: "username", Value: 1}},
			Options: options.Index().SetUnique(true).SetCollation(caseInsensitive),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create user indexes: %w", err)
	}

	_, err = s.coll(commentsColl).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "post", Value: 1}, {Key: "createdAt", Value: 1}}},
		{Keys: bson.D{{Key: "parentComment", Value: 1}}},
		{Keys: bson.D{{Key: "author", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create comment indexes: %w", err)
	}

	_, err = s.coll(postsColl).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "author", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create post indexes: %w", err)
	}

	return nil
}

// createCollection creates a collection with the given name in the database if it doesn't already exist.
func (s *Storage) createCollection(ctx context.Context, collName string) error {
	collExists, err := collectionExists(ctx, s.db(), collName)
	if err != nil {
		return err
	}

	if !collExists {
		err := s.db().CreateCollection(ctx, collName)
		if err != nil {
			return err
		}
	}

	return nil
}

// collectionExists checks if a collection with the given name exists in the database.
func collectionExists(ctx context.Context, db *mongo.Database, collName string) (bool, error) {
	names, err := db.ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return false, fmt.Errorf("failed to list collection names: %w", err)
	}

	for _, name := range names {
		if name == collName {
			return true, nil
		}
	}

	return false, nil
}

// notFound maps a missing document to the given sentinel and passes other errors through.
func notFound(err, sentinel error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return sentinel
	}
	return err
}
