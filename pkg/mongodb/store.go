package mongodb

import (
	"context"
	"errors"
	"fmt"

	"mongoinit/pkg/schema"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/x/mongo/driver"
	"go.mongodb.org/mongo-driver/x/mongo/driver/auth"
)

// Server error codes the tool reacts to.
const (
	codeUnauthorized         = 13
	codeAuthenticationFailed = 18
	codeNamespaceExists      = 48
	codeUserAlreadyExists    = 51003
)

// Store applies schema operations to one MongoDB database.
type Store struct {
	db *mongo.Database
}

// NewStore creates a Store for the given database handle
func NewStore(db *mongo.Database) *Store {
	return &Store{db: db}
}

// Name returns the database name
func (s *Store) Name() string {
	return s.db.Name()
}

// CreateCollection creates a collection. An existing collection yields an
// error wrapping schema.ErrCollectionExists.
func (s *Store) CreateCollection(ctx context.Context, name string) error {
	if err := s.db.CreateCollection(ctx, name); err != nil {
		return fmt.Errorf("create collection %s: %w", name, classify(err))
	}
	return nil
}

// CreateIndex creates the index and returns the name the server assigned.
// Re-creating an identical index is a no-op on the server.
func (s *Store) CreateIndex(ctx context.Context, idx schema.Index) (string, error) {
	name, err := s.db.Collection(idx.Collection).Indexes().CreateOne(ctx, indexModel(idx))
	if err != nil {
		return "", fmt.Errorf("create index %s on %s: %w", idx.Name(), idx.Collection, classify(err))
	}
	return name, nil
}

// CreateUser runs the createUser command on the store's database.
func (s *Store) CreateUser(ctx context.Context, u schema.User) error {
	if err := s.db.RunCommand(ctx, createUserCommand(u)).Err(); err != nil {
		return fmt.Errorf("create user %s: %w", u.Username, classify(err))
	}
	return nil
}

// ListCollections returns the names of all collections in the database.
func (s *Store) ListCollections(ctx context.Context) ([]string, error) {
	names, err := s.db.ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", classify(err))
	}
	return names, nil
}

// ListIndexes returns the indexes defined on a collection.
func (s *Store) ListIndexes(ctx context.Context, collection string) ([]schema.IndexInfo, error) {
	specs, err := s.db.Collection(collection).Indexes().ListSpecifications(ctx)
	if err != nil {
		return nil, fmt.Errorf("list indexes on %s: %w", collection, classify(err))
	}

	infos := make([]schema.IndexInfo, 0, len(specs))
	for _, spec := range specs {
		keys, err := keysFromRaw(spec.KeysDocument)
		if err != nil {
			return nil, fmt.Errorf("decode index %s on %s: %w", spec.Name, collection, err)
		}
		infos = append(infos, schema.IndexInfo{
			Name:   spec.Name,
			Keys:   keys,
			Unique: spec.Unique != nil && *spec.Unique,
		})
	}
	return infos, nil
}

func indexModel(idx schema.Index) mongo.IndexModel {
	keys := make(bson.D, 0, len(idx.Keys))
	for _, k := range idx.Keys {
		keys = append(keys, bson.E{Key: k.Field, Value: int32(k.Order)})
	}
	opts := options.Index()
	if idx.Unique {
		opts.SetUnique(true)
	}
	return mongo.IndexModel{Keys: keys, Options: opts}
}

func createUserCommand(u schema.User) bson.D {
	return bson.D{
		{Key: "createUser", Value: u.Username},
		{Key: "pwd", Value: u.Password},
		{Key: "roles", Value: bson.A{
			bson.D{{Key: "role", Value: u.Role}, {Key: "db", Value: u.Database}},
		}},
	}
}

// keysFromRaw decodes an index key document. Special index types ("text",
// "2dsphere", "hashed") have no direction and decode with Order 0.
func keysFromRaw(raw bson.Raw) ([]schema.Key, error) {
	elems, err := raw.Elements()
	if err != nil {
		return nil, err
	}
	keys := make([]schema.Key, 0, len(elems))
	for _, e := range elems {
		v := e.Value()
		var order schema.Order
		switch v.Type {
		case bsontype.Int32:
			order = schema.Order(v.Int32())
		case bsontype.Int64:
			order = schema.Order(v.Int64())
		case bsontype.Double:
			order = schema.Order(v.Double())
		}
		keys = append(keys, schema.Key{Field: e.Key(), Order: order})
	}
	return keys, nil
}

// classify wraps driver errors whose codes carry meaning for the setup run
// with the matching schema sentinel. Other errors pass through untouched.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var se mongo.ServerError
	if !errors.As(err, &se) {
		if isHandshakeAuthFailure(err) {
			return fmt.Errorf("%w: %w", schema.ErrUnauthorized, err)
		}
		return err
	}
	switch {
	case se.HasErrorCode(codeNamespaceExists):
		return fmt.Errorf("%w: %w", schema.ErrCollectionExists, err)
	case se.HasErrorCode(codeUserAlreadyExists):
		return fmt.Errorf("%w: %w", schema.ErrUserExists, err)
	case se.HasErrorCode(codeUnauthorized), se.HasErrorCode(codeAuthenticationFailed):
		return fmt.Errorf("%w: %w", schema.ErrUnauthorized, err)
	}
	return err
}

// isHandshakeAuthFailure detects credentials rejected while a connection is
// established. The driver reports these as topology.ConnectionError or
// topology.ServerSelectionError wrapping an auth.Error or the server's
// driver.Error, never as a mongo.ServerError.
func isHandshakeAuthFailure(err error) bool {
	var ae *auth.Error
	if errors.As(err, &ae) {
		return true
	}
	var de driver.Error
	if errors.As(err, &de) {
		return de.Code == codeAuthenticationFailed || de.Code == codeUnauthorized
	}
	return false
}
