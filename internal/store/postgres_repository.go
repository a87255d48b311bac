/**
 * @description
 * This file implements the PostgreSQL data access layer for bonds.
 * It contains the SQL queries for inserting and listing a user's bonds.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5/pgxpool: The PostgreSQL driver.
 */
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/transfa/bond-service/internal/domain"
)

// PostgresRepository is the PostgreSQL implementation of Repository.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgresRepository on an existing pool.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// OpenPostgres runs migrations and opens a connection pool to databaseURL.
func OpenPostgres(ctx context.Context, databaseURL string) (*PostgresRepository, error) {
	if err := migratePostgres(databaseURL); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMigrationFailed, err)
	}

	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: unable to parse database URL: %v", ErrConnectionFailed, err)
	}

	poolConfig.MaxConns = 20
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// Simple protocol keeps the service usable behind PgBouncer transaction pooling.
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	return NewPostgresRepository(pool), nil
}

// CreateBond inserts a new bond record into the database.
func (r *PostgresRepository) CreateBond(ctx context.Context, bond *domain.Bond) (*domain.Bond, error) {
	query := `
        INSERT INTO bonds (user_id, isin, size, currency, maturity, lei, legal_name)
        VALUES ($1, $2, $3::numeric, $4, $5::date, $6, $7)
        RETURNING id
    `
	created := *bond
	err := r.db.QueryRow(ctx, query,
		bond.UserID,
		bond.ISIN,
		bond.Size.String(),
		bond.Currency,
		bond.Maturity.String(),
		bond.LEI,
		bond.LegalName,
	).Scan(&created.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to create bond: %w", err)
	}
	return &created, nil
}

// ListBonds retrieves the bonds owned by userID, optionally filtered by legal name.
func (r *PostgresRepository) ListBonds(ctx context.Context, userID, legalNameFilter string) ([]domain.Bond, error) {
	query := `
        SELECT id, user_id, isin, size::text, currency, maturity, lei, legal_name
        FROM bonds
        WHERE user_id = $1
    `
	args := []any{userID}
	if legalNameFilter != "" {
		query += ` AND legal_name ILIKE $2 ESCAPE '\'`
		args = append(args, likePattern(legalNameFilter))
	}
	query += ` ORDER BY id ASC`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bonds: %w", err)
	}
	defer rows.Close()

	bonds := []domain.Bond{}
	for rows.Next() {
		var (
			b        domain.Bond
			size     string
			maturity time.Time
		)
		if err := rows.Scan(&b.ID, &b.UserID, &b.ISIN, &size, &b.Currency, &maturity, &b.LEI, &b.LegalName); err != nil {
			return nil, fmt.Errorf("failed to scan bond row: %w", err)
		}
		if b.Size, err = decimal.NewFromString(size); err != nil {
			return nil, fmt.Errorf("invalid stored size for bond %d: %w", b.ID, err)
		}
		b.Maturity = domain.DateOf(maturity)
		bonds = append(bonds, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bond rows: %w", err)
	}

	return bonds, nil
}

// Ping checks that the database is reachable.
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

// Close releases the connection pool.
func (r *PostgresRepository) Close() error {
	r.db.Close()
	return nil
}
