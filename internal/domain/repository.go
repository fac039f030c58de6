// Package domain defines the core interfaces and types for the risk service.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/opensource-finance/riskservice/internal/query"
)

// ErrNotFound is returned when a single-record read matches nothing.
var ErrNotFound = errors.New("record not found")

// RiskRepository defines the local store that owns risk records.
type RiskRepository interface {
	// Execute runs a read query and returns the matching risks.
	// Only the projected columns are populated.
	Execute(ctx context.Context, q *query.Select) ([]*Risk, error)

	// SaveRisk inserts or updates a risk.
	SaveRisk(ctx context.Context, risk *Risk) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// PartnerGateway is the remote business partner API.
// Headers are sent as-is; the API key travels in APIKeyHeader.
type PartnerGateway interface {
	Send(ctx context.Context, q *query.Select, headers map[string]string) ([]*BusinessPartner, error)
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string `mapstructure:"driver" validate:"oneof=sqlite postgres"`

	// SQLite specific
	SQLitePath string `mapstructure:"sqlite_path"`

	// PostgreSQL specific
	PostgresHost     string `mapstructure:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password"`
	PostgresDB       string `mapstructure:"postgres_db"`
	PostgresSSLMode  string `mapstructure:"postgres_sslmode"`

	// Connection pool settings
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"gte=0"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}
