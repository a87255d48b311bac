package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/transfa/bond-service/internal/domain"
)

// sqliteDriverName is go-sqlite3 with a unicode-aware casefold() function,
// since the built-in LIKE and lower() only fold ASCII.
const sqliteDriverName = "sqlite3_bonds"

func init() {
	sql.Register(sqliteDriverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return conn.RegisterFunc("casefold", strings.ToLower, true)
		},
	})
}

// SQLiteRepository implements Repository using SQLite. It backs local
// development and the test suites.
type SQLiteRepository struct {
	db *sqlx.DB
}

// NewSQLiteRepository opens the SQLite database at dsn and runs migrations.
func NewSQLiteRepository(dsn string) (*SQLiteRepository, error) {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	db, err := sqlx.Open(sqliteDriverName, dsn+sep+"_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	// A single connection serializes writers and keeps :memory: databases
	// shared across queries.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	if err := migrateSQLite(db.DB); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", ErrMigrationFailed, err)
	}

	return &SQLiteRepository{db: db}, nil
}

// bondRow represents a bond row in the database.
type bondRow struct {
	ID        int64   `db:"id"`
	UserID    string  `db:"user_id"`
	ISIN      string  `db:"isin"`
	Size      string  `db:"size"`
	Currency  string  `db:"currency"`
	Maturity  string  `db:"maturity"`
	LEI       string  `db:"lei"`
	LegalName *string `db:"legal_name"`
}

func (row bondRow) toDomain() (domain.Bond, error) {
	size, err := decimal.NewFromString(row.Size)
	if err != nil {
		return domain.Bond{}, fmt.Errorf("invalid stored size for bond %d: %w", row.ID, err)
	}
	maturity, err := domain.ParseDate(row.Maturity)
	if err != nil {
		return domain.Bond{}, fmt.Errorf("invalid stored maturity for bond %d: %w", row.ID, err)
	}
	return domain.Bond{
		ID:        row.ID,
		UserID:    row.UserID,
		ISIN:      row.ISIN,
		Size:      size,
		Currency:  row.Currency,
		Maturity:  maturity,
		LEI:       row.LEI,
		LegalName: row.LegalName,
	}, nil
}

// CreateBond inserts a new bond record into the database.
func (s *SQLiteRepository) CreateBond(ctx context.Context, bond *domain.Bond) (*domain.Bond, error) {
	row := bondRow{
		UserID:    bond.UserID,
		ISIN:      bond.ISIN,
		Size:      bond.Size.String(),
		Currency:  bond.Currency,
		Maturity:  bond.Maturity.String(),
		LEI:       bond.LEI,
		LegalName: bond.LegalName,
	}

	query := `
		INSERT INTO bonds (user_id, isin, size, currency, maturity, lei, legal_name)
		VALUES (:user_id, :isin, :size, :currency, :maturity, :lei, :legal_name)`

	result, err := s.db.NamedExecContext(ctx, query, row)
	if err != nil {
		return nil, fmt.Errorf("failed to create bond: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read bond id: %w", err)
	}

	created := *bond
	created.ID = id
	return &created, nil
}

// ListBonds retrieves the bonds owned by userID, optionally filtered by legal name.
func (s *SQLiteRepository) ListBonds(ctx context.Context, userID, legalNameFilter string) ([]domain.Bond, error) {
	query := `
		SELECT id, user_id, isin, size, currency, maturity, lei, legal_name
		FROM bonds
		WHERE user_id = ?`
	args := []any{userID}
	if legalNameFilter != "" {
		query += ` AND casefold(COALESCE(legal_name, '')) LIKE ? ESCAPE '\'`
		args = append(args, likePattern(strings.ToLower(legalNameFilter)))
	}
	query += ` ORDER BY id ASC`

	var rows []bondRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query bonds: %w", err)
	}

	bonds := make([]domain.Bond, 0, len(rows))
	for _, row := range rows {
		b, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		bonds = append(bonds, b)
	}
	return bonds, nil
}

// Ping checks that the database is reachable.
func (s *SQLiteRepository) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteRepository) Close() error {
	return s.db.Close()
}
