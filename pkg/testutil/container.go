// Package testutil provides testing utilities for the planner service:
// a PostgreSQL testcontainer with the planning schema, sqlmock wrappers,
// fixture factories and HTTP helpers.
package testutil

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// PostgresContainer wraps a testcontainers PostgreSQL instance
type PostgresContainer struct {
	*postgres.PostgresContainer
	DSN string
}

// PostgresContainerConfig configures the test PostgreSQL container
type PostgresContainerConfig struct {
	Database string
	Username string
	Password string
	Image    string // Optional: defaults to postgres:15-alpine
}

// DefaultPostgresConfig returns sensible defaults for test containers
func DefaultPostgresConfig() PostgresContainerConfig {
	return PostgresContainerConfig{
		Database: "rooster_test",
		Username: "test",
		Password: "test",
		Image:    "postgres:15-alpine",
	}
}

// NewPostgresContainer creates a new PostgreSQL test container.
//
// Usage:
//
//	func TestMain(m *testing.M) {
//	    ctx := context.Background()
//	    container, err := testutil.NewPostgresContainer(ctx, testutil.DefaultPostgresConfig())
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    defer container.Terminate(ctx)
//
//	    // Run tests
//	    code := m.Run()
//	    os.Exit(code)
//	}
func NewPostgresContainer(ctx context.Context, cfg PostgresContainerConfig) (*PostgresContainer, error) {
	if cfg.Image == "" {
		cfg.Image = "postgres:15-alpine"
	}
	if cfg.Database == "" {
		cfg.Database = "rooster_test"
	}
	if cfg.Username == "" {
		cfg.Username = "test"
	}
	if cfg.Password == "" {
		cfg.Password = "test"
	}

	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage(cfg.Image),
		postgres.WithDatabase(cfg.Database),
		postgres.WithUsername(cfg.Username),
		postgres.WithPassword(cfg.Password),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	return &PostgresContainer{
		PostgresContainer: container,
		DSN:               dsn,
	}, nil
}

// Connect returns a sqlx.DB connection to the container
func (c *PostgresContainer) Connect(ctx context.Context) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", c.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to test database: %w", err)
	}
	return db, nil
}

// Terminate stops and removes the container
func (c *PostgresContainer) Terminate(ctx context.Context) error {
	return c.PostgresContainer.Terminate(ctx)
}

// CreatePlanningSchema creates the planner's tables
func (c *PostgresContainer) CreatePlanningSchema(ctx context.Context, db *sqlx.DB) error {
	schema := `
		CREATE TABLE IF NOT EXISTS employees (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			team_id UUID NOT NULL,
			display_name VARCHAR(255) NOT NULL,
			fte DOUBLE PRECISION NOT NULL DEFAULT 1.0,
			available_for_incidents BOOLEAN NOT NULL DEFAULT FALSE,
			available_for_waakdienst BOOLEAN NOT NULL DEFAULT FALSE,
			hire_date TIMESTAMPTZ NOT NULL,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_employees_team ON employees(team_id);

		CREATE TABLE IF NOT EXISTS shift_templates (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			shift_type VARCHAR(50) NOT NULL,
			name VARCHAR(255) NOT NULL,
			start_time TIME NOT NULL,
			end_time TIME NOT NULL,
			notes TEXT,
			favourite BOOLEAN NOT NULL DEFAULT FALSE,
			usage_count INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_templates_type ON shift_templates(shift_type);

		CREATE TABLE IF NOT EXISTS shifts (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			template_id UUID NOT NULL REFERENCES shift_templates(id),
			shift_type VARCHAR(50) NOT NULL,
			employee_id UUID NOT NULL REFERENCES employees(id),
			team_id UUID NOT NULL,
			start_at TIMESTAMPTZ NOT NULL,
			end_at TIMESTAMPTZ NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'scheduled',
			auto_generated BOOLEAN NOT NULL DEFAULT FALSE,
			created_by UUID,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CHECK (start_at < end_at)
		);
		CREATE INDEX IF NOT EXISTS idx_shifts_employee_interval ON shifts(employee_id, start_at, end_at);
		CREATE INDEX IF NOT EXISTS idx_shifts_interval ON shifts(start_at, end_at);

		CREATE TABLE IF NOT EXISTS leave_records (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			employee_id UUID NOT NULL REFERENCES employees(id),
			start_date DATE NOT NULL,
			end_date DATE NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'pending',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CHECK (start_date <= end_date)
		);
		CREATE INDEX IF NOT EXISTS idx_leaves_employee ON leave_records(employee_id, start_date, end_date);

		CREATE TABLE IF NOT EXISTS planning_runs (
			id UUID PRIMARY KEY,
			team_id UUID NOT NULL,
			horizon_start TIMESTAMPTZ NOT NULL,
			horizon_end TIMESTAMPTZ NOT NULL,
			initiator UUID,
			requested_at TIMESTAMPTZ NOT NULL,
			mode VARCHAR(20) NOT NULL,
			committed BOOLEAN NOT NULL,
			outcome JSONB NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_runs_team ON planning_runs(team_id, requested_at);
	`

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create planning schema: %w", err)
	}

	return nil
}
