package db

import (
	"context"
	"os"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// These tests are integration tests and require a running MongoDB instance.
// Set MONGODB_URI in the environment before running them.

func newTestClient(t *testing.T) *Client {
	t.Helper()
	uri := os.Getenv("MONGODB_URI")
	if uri == "" {
		t.Skip("MONGODB_URI not set; skipping integration test")
	}

	ctx := context.Background()
	c, err := New(ctx, uri, "skillswap_db_test")
	if err != nil {
		t.Fatalf("failed to connect to DB: %v", err)
	}
	t.Cleanup(func() {
		// drop the testing database and close connection
		_ = c.db.Drop(context.Background())
		_ = c.Close(context.Background())
	})
	return c
}

func TestNewAndCreateIndexes(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	// should be able to create indexes without error, twice
	if err := c.CreateIndexes(ctx); err != nil {
		t.Fatalf("CreateIndexes failed: %v", err)
	}
	if err := c.CreateIndexes(ctx); err != nil {
		t.Fatalf("CreateIndexes second run failed: %v", err)
	}
	if err := c.Ping(ctx); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
}

func TestPendingMatchIndexIsPartial(t *testing.T) {
	c := newTestClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := c.CreateIndexes(ctx); err != nil {
		t.Fatalf("CreateIndexes failed: %v", err)
	}

	coll := c.MatchesCollection()
	doc := func(status string) bson.M {
		return bson.M{"pair_key": "a:b", "skill_key": "guitar", "status": status}
	}

	// two non-pending records for the same pair and skill are fine
	if _, err := coll.InsertOne(ctx, doc("declined")); err != nil {
		t.Fatalf("insert declined: %v", err)
	}
	if _, err := coll.InsertOne(ctx, doc("completed")); err != nil {
		t.Fatalf("insert completed: %v", err)
	}
	if _, err := coll.InsertOne(ctx, doc("pending")); err != nil {
		t.Fatalf("insert pending: %v", err)
	}

	// a second pending one is rejected
	_, err := coll.InsertOne(ctx, doc("pending"))
	if !mongo.IsDuplicateKeyError(err) {
		t.Fatalf("expected duplicate key error, got %v", err)
	}
}
