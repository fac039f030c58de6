// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/opensource-finance/riskservice/internal/domain"
	"github.com/opensource-finance/riskservice/internal/query"
)

var (
	ErrNotFound     = domain.ErrNotFound
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.RiskRepository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (*SQLRepository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := NewWithDB(db, cfg.Driver)

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

// NewWithDB wraps an already opened database. No migrations are run.
func NewWithDB(db *sql.DB, driver string) *SQLRepository {
	return &SQLRepository{
		db:     db,
		driver: driver,
	}
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas(r.driver) {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// Execute runs a read query against the risks table.
// Only projected columns are scanned; the key is always returned.
func (r *SQLRepository) Execute(ctx context.Context, q *query.Select) ([]*domain.Risk, error) {
	if q.From != domain.EntityRisks {
		return nil, fmt.Errorf("%w: entity %q is not stored locally", ErrInvalidInput, q.From)
	}
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	cols, err := projection(q.Columns)
	if err != nil {
		return nil, err
	}
	where, args, err := whereClause(q.Where, r.driver)
	if err != nil {
		return nil, err
	}
	orderBy, err := orderClause(q.OrderBy, r.driver)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	for i, c := range cols {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(c.column)
	}
	b.WriteString(" FROM risks")
	b.WriteString(where)
	b.WriteString(orderBy)
	if q.Limit > 0 {
		b.WriteString(" LIMIT ?")
		args = append(args, q.Limit)
	} else if q.Offset > 0 && r.driver != "postgres" {
		// SQLite only accepts OFFSET after a LIMIT
		b.WriteString(" LIMIT -1")
	}
	if q.Offset > 0 {
		b.WriteString(" OFFSET ?")
		args = append(args, q.Offset)
	}

	rows, err := r.db.QueryContext(ctx, r.rebind(b.String()), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	risks := []*domain.Risk{}
	for rows.Next() {
		var risk domain.Risk
		dest := make([]any, len(cols))
		for i, c := range cols {
			dest[i] = c.dest(&risk)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		risks = append(risks, &risk)
	}

	return risks, rows.Err()
}

// SaveRisk inserts or updates a risk.
// CreatedAt is kept from the first insert; ModifiedAt is always refreshed.
func (r *SQLRepository) SaveRisk(ctx context.Context, risk *domain.Risk) error {
	if risk.ID == "" {
		return fmt.Errorf("%w: risk ID is required", ErrInvalidInput)
	}
	if risk.PrioCode != "" && !validPriority(risk.PrioCode) {
		return fmt.Errorf("%w: unknown priority %q", ErrInvalidInput, risk.PrioCode)
	}

	now := time.Now().UTC()
	if risk.CreatedAt == nil {
		risk.CreatedAt = &now
	}
	risk.ModifiedAt = &now

	stmt := `
		INSERT INTO risks (
			id, title, owner, descr, prio_code, impact, bp_business_partner, created_at, modified_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			owner = excluded.owner,
			descr = excluded.descr,
			prio_code = excluded.prio_code,
			impact = excluded.impact,
			bp_business_partner = excluded.bp_business_partner,
			modified_at = excluded.modified_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(stmt),
		risk.ID, nullable(risk.Title), nullable(risk.Owner), nullable(risk.Descr),
		nullable(risk.PrioCode), risk.Impact, nullable(risk.BusinessPartnerID),
		*risk.CreatedAt, *risk.ModifiedAt,
	)
	return err
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(stmt string) string {
	if r.driver != "postgres" {
		return stmt
	}

	// Convert ? to $1, $2, etc.
	var result []byte
	n := 1
	for i := 0; i < len(stmt); i++ {
		if stmt[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, stmt[i])
		}
	}
	return string(result)
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func validPriority(code string) bool {
	switch code {
	case domain.PriorityHigh, domain.PriorityMedium, domain.PriorityLow:
		return true
	}
	return false
}
