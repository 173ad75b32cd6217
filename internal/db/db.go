// Package db manages MongoDB connections and collections.
package db

import (
	"context" // For connection timeout/cancellation
	"fmt"     // Error formatting
	"time"    // Duration for timeouts

	"go.mongodb.org/mongo-driver/v2/bson"           // Index keys and filters
	"go.mongodb.org/mongo-driver/v2/mongo"          // MongoDB driver
	"go.mongodb.org/mongo-driver/v2/mongo/options"  // MongoDB options
	"go.mongodb.org/mongo-driver/v2/mongo/readpref" // MongoDB read preference
)

// DefaultDatabase is used when no database name is configured.
const DefaultDatabase = "skillswap"

// Client wraps mongo.Client and exposes collections.
type Client struct {
	// client is the underlying MongoDB connection (thread-safe, can be reused)
	client *mongo.Client

	// db is the marketplace database; every collection below lives in it
	db *mongo.Database
}

// New connects to MongoDB and returns a Client bound to database dbName.
func New(ctx context.Context, mongoURI, dbName string) (*Client, error) {
	if dbName == "" {
		dbName = DefaultDatabase
	}

	// SetConnectTimeout: fail fast if MongoDB is unreachable
	opts := options.Client().
		ApplyURI(mongoURI).                 // Parse connection string
		SetConnectTimeout(10 * time.Second) // Max time to connect

	// This doesn't actually connect yet, just creates the client
	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	// If ping doesn't complete in 5 seconds, fail
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	// Ping MongoDB to verify connection is working
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return &Client{
		client: client,                   // Keep reference to close connection later
		db:     client.Database(dbName), // Lazy-loaded: created on first write
	}, nil
}

// UsersCollection returns the users collection.
func (c *Client) UsersCollection() *mongo.Collection { return c.db.Collection("users") }

// SkillsCollection returns the skills collection.
func (c *Client) SkillsCollection() *mongo.Collection { return c.db.Collection("skills") }

// MatchesCollection returns the matches collection.
func (c *Client) MatchesCollection() *mongo.Collection { return c.db.Collection("matches") }

// MessagesCollection returns the messages collection.
func (c *Client) MessagesCollection() *mongo.Collection { return c.db.Collection("messages") }

// NotificationsCollection returns the notifications collection.
func (c *Client) NotificationsCollection() *mongo.Collection {
	return c.db.Collection("notifications")
}

// ReviewsCollection returns the reviews collection.
func (c *Client) ReviewsCollection() *mongo.Collection { return c.db.Collection("reviews") }

// Ping checks that the primary is reachable. Used by the health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx, readpref.Primary())
}

// Close disconnects from MongoDB.
func (c *Client) Close(ctx context.Context) error {
	// ctx can have timeout if you want to force shutdown after N seconds
	return c.client.Disconnect(ctx)
}

// CreateIndexes creates the indexes every store relies on. Creating an index
// that already exists with the same keys and options is a no-op, so this runs at startup.
func (c *Client) CreateIndexes(ctx context.Context) error {
	// ===== USERS =====
	// Unique email: prevents duplicate registration
	if _, err := c.UsersCollection().Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("failed to create users index: %w", err)
	}

	// ===== SKILLS =====
	skillIndexes := []mongo.IndexModel{
		// Candidate lookup: FindByNameAndType()
		{Keys: bson.D{{Key: "skill_key", Value: 1}, {Key: "type", Value: 1}}},
		// ListSkillsByUser()
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
	}
	if _, err := c.SkillsCollection().Indexes().CreateMany(ctx, skillIndexes); err != nil {
		return fmt.Errorf("failed to create skill indexes: %w", err)
	}

	// ===== MATCHES =====
	matchIndexes := []mongo.IndexModel{
		{
			// At most one pending match per unordered user pair and skill name.
			// Partial: declined/completed history for the same pair is allowed.
			Keys: bson.D{{Key: "pair_key", Value: 1}, {Key: "skill_key", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetName("uniq_pending_pair_skill").
				SetPartialFilterExpression(bson.D{{Key: "status", Value: "pending"}}),
		},
		{Keys: bson.D{{Key: "requester_id", Value: 1}, {Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "offerer_id", Value: 1}, {Key: "status", Value: 1}}},
		// Cascade delete: DeleteMatchesBySkill()
		{Keys: bson.D{{Key: "skill_id", Value: 1}}},
	}
	if _, err := c.MatchesCollection().Indexes().CreateMany(ctx, matchIndexes); err != nil {
		return fmt.Errorf("failed to create match indexes: %w", err)
	}

	// ===== MESSAGES =====
	messageIndexes := []mongo.IndexModel{
		{
			// Used by: GetMessageHistory() to find all messages between two users, ordered by time
			Keys: bson.D{{Key: "sender_id", Value: 1}, {Key: "receiver_id", Value: 1}, {Key: "timestamp", Value: -1}},
		},
		{
			// Used by: MarkRead() and the unread count in GetRecentChats()
			Keys: bson.D{{Key: "receiver_id", Value: 1}, {Key: "is_read", Value: 1}},
		},
	}
	if _, err := c.MessagesCollection().Indexes().CreateMany(ctx, messageIndexes); err != nil {
		return fmt.Errorf("failed to create message indexes: %w", err)
	}

	// ===== NOTIFICATIONS =====
	if _, err := c.NotificationsCollection().Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}},
	}); err != nil {
		return fmt.Errorf("failed to create notification index: %w", err)
	}

	// ===== REVIEWS =====
	reviewIndexes := []mongo.IndexModel{
		{
			// One review per reviewer per match
			Keys:    bson.D{{Key: "reviewer_id", Value: 1}, {Key: "match_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "target_user_id", Value: 1}, {Key: "created_at", Value: -1}}},
	}
	if _, err := c.ReviewsCollection().Indexes().CreateMany(ctx, reviewIndexes); err != nil {
		return fmt.Errorf("failed to create review indexes: %w", err)
	}

	return nil
}
