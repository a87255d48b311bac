/**
 * @description
 * This file defines the interface for the bond data access layer and selects
 * a concrete implementation from the configured database URL.
 *
 * @notes
 * - Every read is scoped by the owning user; there is no query that returns
 *   bonds across owners.
 */
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/transfa/bond-service/internal/domain"
)

var (
	// ErrConnectionFailed is returned when the database cannot be reached.
	ErrConnectionFailed = errors.New("database connection failed")
	// ErrMigrationFailed is returned when schema migrations cannot be applied.
	ErrMigrationFailed = errors.New("database migration failed")
	// ErrUnsupportedDatabase is returned for a DATABASE_URL with an unknown scheme.
	ErrUnsupportedDatabase = errors.New("unsupported database url")
)

// Repository defines the contract for bond storage.
type Repository interface {
	// CreateBond inserts the bond and returns it with its assigned ID.
	CreateBond(ctx context.Context, bond *domain.Bond) (*domain.Bond, error)
	// ListBonds returns the bonds of userID in insertion order. A non-empty
	// legalNameFilter keeps only bonds whose legal name contains it,
	// ignoring case.
	ListBonds(ctx context.Context, userID, legalNameFilter string) ([]domain.Bond, error)
	Ping(ctx context.Context) error
	Close() error
}

// Open connects to the database behind databaseURL, applies migrations and
// returns the matching repository.
func Open(ctx context.Context, databaseURL string) (Repository, error) {
	var (
		repo Repository
		err  error
	)
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		repo, err = OpenPostgres(ctx, databaseURL)
	case strings.HasPrefix(databaseURL, "sqlite://"):
		repo, err = NewSQLiteRepository(strings.TrimPrefix(databaseURL, "sqlite://"))
	case strings.HasPrefix(databaseURL, "file:"), databaseURL == ":memory:":
		repo, err = NewSQLiteRepository(databaseURL)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDatabase, redactURL(databaseURL))
	}
	if err != nil {
		return nil, err
	}
	return repo, nil
}

// likePattern builds a LIKE pattern matching s anywhere, with LIKE
// metacharacters in s escaped by a backslash.
func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}

// redactURL hides everything after the scheme so credentials never reach logs.
func redactURL(raw string) string {
	if i := strings.Index(raw, "://"); i >= 0 {
		return raw[:i+3] + "..."
	}
	if len(raw) > 8 {
		return raw[:8] + "..."
	}
	return raw
}
