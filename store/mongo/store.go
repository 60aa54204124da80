package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/makimoto/kuroko2/definition"
	"github.com/makimoto/kuroko2/instance"
	"github.com/makimoto/kuroko2/lock"
	"github.com/makimoto/kuroko2/token"
)

// Collection name constants.
const (
	colDefinitions = "kuroko2_definitions"
	colInstances   = "kuroko2_instances"
	colTokens      = "kuroko2_tokens"
	colLocks       = "kuroko2_locks"
)

// Ensure Store implements all subsystem interfaces at compile time.
var (
	_ definition.Store = (*Store)(nil)
	_ instance.Store   = (*Store)(nil)
	_ token.Store      = (*Store)(nil)
	_ lock.Store       = (*Store)(nil)
)

// Store is a MongoDB implementation of store.Store.
// The caller owns the client lifecycle; Store never closes it.
type Store struct {
	db     *mongod.Database
	logger *slog.Logger
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates a new MongoDB store on the given database. The caller owns
// the client lifecycle — the Store will not disconnect it on Close().
func New(db *mongod.Database, opts ...Option) *Store {
	s := &Store{
		db:     db,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB returns the underlying *mongo.Database for advanced usage.
func (s *Store) DB() *mongod.Database {
	return s.db
}

// Migrate creates indexes for all kuroko2 collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := map[string][]mongod.IndexModel{
		colInstances: {
			{Keys: bson.D{{Key: "definition_id", Value: 1}}},
		},
		colTokens: {
			{Keys: bson.D{{Key: "definition_id", Value: 1}}},
			{Keys: bson.D{{Key: "instance_id", Value: 1}, {Key: "seq", Value: 1}}},
		},
	}

	for col, models := range indexes {
		if _, err := s.db.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("kuroko2/mongo: create indexes for %s: %w", col, err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Client().Ping(ctx, nil)
}

// Close is a no-op — the caller owns the client lifecycle.
func (s *Store) Close() error { return nil }

// isNoDocuments returns true when err indicates no matching document.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongod.ErrNoDocuments)
}

// isDuplicateKey checks whether err is a unique index violation.
func isDuplicateKey(err error) bool {
	return mongod.IsDuplicateKeyError(err)
}
