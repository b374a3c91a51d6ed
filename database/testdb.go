package database

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

const TestDBPrefix = "testonlydb_"

// CreateTempDB connects to MONGODB_TEST_URI and returns a DB bound to a fresh
// database with indexes in place. The test is skipped when no test server is
// configured. The database is dropped when the test finishes.
func CreateTempDB(t *testing.T) *DB {
	t.Helper()

	uri := os.Getenv("MONGODB_TEST_URI")
	if uri == "" {
		t.Skip("MONGODB_TEST_URI not set, skipping MongoDB test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	name := TestDBPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	db, err := Connect(ctx, uri, name, os.Getenv("MONGODB_TEST_TRANSACTIONS") == "true")
	if err != nil {
		t.Fatalf("cannot connect to test MongoDB: %v", err)
	}
	if err := db.EnsureIndexes(ctx); err != nil {
		t.Fatalf("cannot create indexes on %s: %v", name, err)
	}

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if strings.HasPrefix(db.Database.Name(), TestDBPrefix) {
			db.Database.Drop(ctx)
		}
		db.Client.Disconnect(ctx)
	})

	return db
}
