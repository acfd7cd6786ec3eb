// Package docstore wraps the document store collaborator of spec §6. The
// dispatcher only needs a database handle to pass opaquely to handlers
// (spec §6), so Client.Database exposes the raw *mongo.Database; the
// Insert/Find/Update/Delete helpers exist for handlers and tests that want
// a narrower surface than the full mongo-driver API, mirroring the
// teacher's document.Interface shape.
package docstore

import (
	"context"
	"time"

	apperrors "github.com/chris-alexander-pop/system-design-library/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// defaultServerSelectionTimeout bounds how long Connect waits for a usable
// server before giving up, per spec §5's connect-phase timeout budget.
const defaultServerSelectionTimeout = 10 * time.Second

// Config configures the connection to the document store.
type Config struct {
	// URI is the full connection string (spec's database_uri).
	URI string

	// Database is the database name to operate against (spec's db_name).
	Database string

	// ServerSelectionTimeout overrides defaultServerSelectionTimeout when
	// non-zero; tests use a short value to fail fast against unreachable hosts.
	ServerSelectionTimeout time.Duration
}

// Client owns the mongo-driver connection.
type Client struct {
	client *mongo.Client
	db     *mongo.Database
}

// Connect dials the document store and pings it. Per spec §4.4 step 2, a
// malformed URI/options is a CodeConfiguration error (fatal, no retry); a
// network/server-selection failure is CodeConnection (retried by the
// supervisor with backoff).
func Connect(ctx context.Context, cfg Config) (*Client, error) {
	timeout := cfg.ServerSelectionTimeout
	if timeout <= 0 {
		timeout = defaultServerSelectionTimeout
	}

	opts := options.Client().ApplyURI(cfg.URI).SetServerSelectionTimeout(timeout).SetConnectTimeout(timeout)
	if err := opts.Validate(); err != nil {
		return nil, apperrors.WrapCode(apperrors.CodeConfiguration, err, "invalid database uri")
	}

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, classifyConnectErr(err, "failed to construct document store client")
	}

	c := &Client{client: client, db: client.Database(cfg.Database)}
	if err := c.Ping(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return c, nil
}

// Ping verifies connectivity.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx, nil); err != nil {
		return classifyConnectErr(err, "failed to ping document store")
	}
	return nil
}

// Close disconnects the client.
func (c *Client) Close(ctx context.Context) error {
	if err := c.client.Disconnect(ctx); err != nil {
		return apperrors.Wrap(err, "failed to disconnect document store client")
	}
	return nil
}

// Database returns the raw handle handed opaquely to handlers.
func (c *Client) Database() *mongo.Database {
	return c.db
}

// Insert adds a new document to the collection.
func (c *Client) Insert(ctx context.Context, collection string, doc any) error {
	if _, err := c.db.Collection(collection).InsertOne(ctx, doc); err != nil {
		return apperrors.Wrap(err, "failed to insert document")
	}
	return nil
}

// Find retrieves documents matching query.
func (c *Client) Find(ctx context.Context, collection string, query map[string]any) ([]bson.M, error) {
	cursor, err := c.db.Collection(collection).Find(ctx, query)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to find documents")
	}
	defer cursor.Close(ctx)

	var docs []bson.M
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, apperrors.Wrap(err, "failed to decode documents")
	}
	return docs, nil
}

// Update applies update to every document matching filter. Non-operator
// updates (no "$"-prefixed keys) are wrapped in "$set".
func (c *Client) Update(ctx context.Context, collection string, filter, update map[string]any) error {
	updateDoc := update
	isOperator := false
	for k := range update {
		if len(k) > 0 && k[0] == '$' {
			isOperator = true
			break
		}
	}
	if !isOperator {
		updateDoc = map[string]any{"$set": update}
	}

	if _, err := c.db.Collection(collection).UpdateMany(ctx, filter, updateDoc); err != nil {
		return apperrors.Wrap(err, "failed to update documents")
	}
	return nil
}

// Delete removes every document matching filter.
func (c *Client) Delete(ctx context.Context, collection string, filter map[string]any) error {
	if _, err := c.db.Collection(collection).DeleteMany(ctx, filter); err != nil {
		return apperrors.Wrap(err, "failed to delete documents")
	}
	return nil
}

// classifyConnectErr wraps err as CodeConnection: by the time a caller
// reaches this helper, opts.Validate() has already ruled out a malformed
// URI/options (CodeConfiguration), so anything else at connect/ping time is
// a transient network or server-selection failure the supervisor retries.
func classifyConnectErr(err error, message string) *apperrors.AppError {
	if err == nil {
		return nil
	}
	return apperrors.WrapCode(apperrors.CodeConnection, err, message)
}
