// Package schema describes the collections, indexes and application account
// that an initialized database is expected to have.
package schema

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Collection names owned by the application.
const (
	CollectionUsers        = "users"
	CollectionTransactions = "transactions"
	CollectionGames        = "games"
)

// DefaultRole is the built-in role granted to the application account.
const DefaultRole = "readWrite"

var (
	// ErrCollectionExists is returned when a collection is already present.
	ErrCollectionExists = errors.New("collection already exists")
	// ErrUserExists is returned when the application account is already present.
	ErrUserExists = errors.New("user already exists")
	// ErrUnauthorized is returned when the connected principal lacks a privilege.
	ErrUnauthorized = errors.New("not authorized")
)

// Order is the direction of an index key: 1 ascending, -1 descending.
type Order int

const (
	Ascending  Order = 1
	Descending Order = -1
)

// Key is one field of an index.
type Key struct {
	Field string `json:"field"`
	Order Order  `json:"order"`
}

// Index declares an index on a collection.
type Index struct {
	Collection string `json:"collection"`
	Keys       []Key  `json:"keys"`
	Unique     bool   `json:"unique,omitempty"`
}

// Name returns the name MongoDB generates for the index when none is given,
// e.g. "createdAt_-1".
func (i Index) Name() string {
	parts := make([]string, 0, len(i.Keys)*2)
	for _, k := range i.Keys {
		parts = append(parts, k.Field, strconv.Itoa(int(k.Order)))
	}
	return strings.Join(parts, "_")
}

// User is a database-scoped credential.
type User struct {
	Username string `json:"username"`
	Password string `json:"-"`
	Role     string `json:"role"`
	Database string `json:"database"`
}

// Plan is everything an initialization run applies to one database.
type Plan struct {
	Database    string   `json:"database"`
	Collections []string `json:"collections"`
	Indexes     []Index  `json:"indexes"`
	// User is nil when provisioning is skipped.
	User *User `json:"user,omitempty"`
}

// DefaultPlan returns the application's schema for the given database:
// users keyed by a unique uid, transactions looked up by userId and games
// listed newest first.
func DefaultPlan(database string) Plan {
	return Plan{
		Database: database,
		Collections: []string{
			CollectionUsers,
			CollectionTransactions,
			CollectionGames,
		},
		Indexes: []Index{
			{Collection: CollectionUsers, Keys: []Key{{Field: "uid", Order: Ascending}}, Unique: true},
			{Collection: CollectionTransactions, Keys: []Key{{Field: "userId", Order: Ascending}}},
			{Collection: CollectionGames, Keys: []Key{{Field: "createdAt", Order: Descending}}},
		},
	}
}

// WithUser returns a copy of the plan that provisions the given account on
// the plan's database. An empty username leaves provisioning off.
func (p Plan) WithUser(username, password, role string) Plan {
	if username == "" {
		p.User = nil
		return p
	}
	if role == "" {
		role = DefaultRole
	}
	p.User = &User{
		Username: username,
		Password: password,
		Role:     role,
		Database: p.Database,
	}
	return p
}

// Validate reports the first structural problem in the plan.
func (p Plan) Validate() error {
	if p.Database == "" {
		return errors.New("plan: database name is empty")
	}

	declared := make(map[string]bool, len(p.Collections))
	for _, c := range p.Collections {
		if c == "" {
			return errors.New("plan: collection name is empty")
		}
		if strings.HasPrefix(c, "system.") || strings.Contains(c, "$") {
			return fmt.Errorf("plan: collection name %q is reserved", c)
		}
		if declared[c] {
			return fmt.Errorf("plan: collection %q declared twice", c)
		}
		declared[c] = true
	}

	names := make(map[string]bool, len(p.Indexes))
	for _, idx := range p.Indexes {
		if !declared[idx.Collection] {
			return fmt.Errorf("plan: index on undeclared collection %q", idx.Collection)
		}
		if len(idx.Keys) == 0 {
			return fmt.Errorf("plan: index on %q has no keys", idx.Collection)
		}
		for _, k := range idx.Keys {
			if k.Field == "" {
				return fmt.Errorf("plan: index on %q has an empty field", idx.Collection)
			}
			if k.Order != Ascending && k.Order != Descending {
				return fmt.Errorf("plan: index %s.%s has invalid order %d", idx.Collection, k.Field, k.Order)
			}
		}
		qualified := idx.Collection + "." + idx.Name()
		if names[qualified] {
			return fmt.Errorf("plan: index %s declared twice", qualified)
		}
		names[qualified] = true
	}

	if p.User != nil {
		if p.User.Password == "" {
			return fmt.Errorf("plan: user %q has no password", p.User.Username)
		}
		if p.User.Database != p.Database {
			return fmt.Errorf("plan: user %q is scoped to %q, not %q", p.User.Username, p.User.Database, p.Database)
		}
	}
	return nil
}
