package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const opTimeout = 5 * time.Second

// MongoDB wraps a MongoDB connection.
type MongoDB struct {
	client   *mongo.Client
	database *mongo.Database
}

// Connect opens a MongoDB connection and verifies it with a ping.
func Connect(uri, database string) (*MongoDB, error) {
	clientOptions := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(10 * time.Second).
		SetMaxPoolSize(100)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("connect to MongoDB: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(context.Background(), opTimeout)
	defer pingCancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		return nil, fmt.Errorf("ping MongoDB: %w", err)
	}

	log.Info().Str("uri", uri).Str("database", database).Msg("connected to MongoDB")
	return &MongoDB{
		client:   client,
		database: client.Database(database),
	}, nil
}

// Collection returns a collection handle.
func (m *MongoDB) Collection(name string) *mongo.Collection {
	return m.database.Collection(name)
}

// Close disconnects from MongoDB.
func (m *MongoDB) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := m.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("disconnect from MongoDB: %w", err)
	}
	return nil
}

// EnsureIndexes creates the unique name indexes and the message lookup index.
func (m *MongoDB) EnsureIndexes() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	userIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "key", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "last_activity", Value: -1}}},
	}
	if _, err := m.Collection("users").Indexes().CreateMany(ctx, userIndexes); err != nil {
		return fmt.Errorf("create user indexes: %w", err)
	}

	// Rooms key on _id (the lowercase name), which is indexed implicitly.

	messageIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "room_name", Value: 1}, {Key: "when", Value: -1}}},
	}
	if _, err := m.Collection("messages").Indexes().CreateMany(ctx, messageIndexes); err != nil {
		return fmt.Errorf("create message indexes: %w", err)
	}
	return nil
}
