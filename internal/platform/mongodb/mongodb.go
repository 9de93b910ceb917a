// Package mongodb connects to MongoDB for the document-store backend.
package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/medibook/medibook/internal/platform/db"
)

const (
	DoctorsCollection      = "doctors"
	UsersCollection        = "users"
	AppointmentsCollection = "appointments"
)

// Connect opens a client, pings the primary and returns the named database.
func Connect(ctx context.Context, uri, database string) (*mongo.Client, *mongo.Database, error) {
	opts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(10 * time.Second).
		SetServerSelectionTimeout(10 * time.Second)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("connect mongodb: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("ping mongodb: %w", err)
	}
	return client, client.Database(database), nil
}

// Check pings the client for the health endpoint.
func Check(client *mongo.Client) db.Check {
	return db.Check{
		Name: "mongodb",
		Ping: func(ctx context.Context) error {
			return client.Ping(ctx, readpref.Primary())
		},
	}
}

// EnsureIndexes creates the unique and lookup indexes the repositories rely
// on. It is idempotent.
func EnsureIndexes(ctx context.Context, database *mongo.Database) error {
	unique := options.Index().SetUnique(true)
	specs := map[string][]mongo.IndexModel{
		DoctorsCollection: {
			{Keys: bsonD("email", 1), Options: unique},
		},
		UsersCollection: {
			{Keys: bsonD("email", 1), Options: unique},
		},
		AppointmentsCollection: {
			{Keys: bsonD("userId", 1)},
			{Keys: bsonD("docId", 1)},
			{
				Keys: bsonD("docId", 1, "slotDate", 1, "slotTime", 1),
				Options: options.Index().
					SetUnique(true).
					SetPartialFilterExpression(map[string]interface{}{"cancelled": false}),
			},
		},
	}
	for coll, models := range specs {
		if _, err := database.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create %s indexes: %w", coll, err)
		}
	}
	return nil
}
