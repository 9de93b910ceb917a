// Package mongotest opens a throwaway MongoDB database with the repository
// indexes in place. Tests are skipped unless MONGODB_URI is set.
package mongotest

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/medibook/medibook/internal/platform/mongodb"
)

// EnvURI names the variable holding the test server connection string.
const EnvURI = "MONGODB_URI"

// Open connects, creates a uniquely named database and ensures its indexes.
// The database is dropped when the test ends.
func Open(t testing.TB) *mongo.Database {
	t.Helper()

	uri := os.Getenv(EnvURI)
	if uri == "" {
		t.Skipf("%s not set; skipping mongodb test", EnvURI)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	name := "medibook_test_" + strings.ReplaceAll(uuid.NewString()[:8], "-", "")
	client, database, err := mongodb.Connect(ctx, uri, name)
	if err != nil {
		t.Fatalf("connect test mongodb: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = database.Drop(ctx)
		_ = client.Disconnect(ctx)
	})

	if err := mongodb.EnsureIndexes(ctx, database); err != nil {
		t.Fatalf("ensure indexes: %v", err)
	}
	return database
}
