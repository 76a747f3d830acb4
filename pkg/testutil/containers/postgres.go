//go:build integration

// Package containers manages shared test containers for integration tests.
package containers

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"testing"

	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
)

// PostgresContainer wraps a testcontainers PostgreSQL instance.
type PostgresContainer struct {
	Container testcontainers.Container
	URL       string
	DB        *sql.DB
}

var (
	postgresOnce     sync.Once
	postgresInstance *PostgresContainer
	postgresErr      error
)

// GetPostgres returns the PostgreSQL container shared by all suites in the
// test binary, starting it on first use. Ryuk terminates the container when
// the binary exits, so no t.Cleanup is registered.
func GetPostgres(t *testing.T) *PostgresContainer {
	t.Helper()

	postgresOnce.Do(func() {
		ctx := context.Background()

		container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
			tcpostgres.WithDatabase("peermesh_test"),
			tcpostgres.WithUsername("peermesh"),
			tcpostgres.WithPassword("peermesh"),
			tcpostgres.BasicWaitStrategies(),
		)
		if err != nil {
			postgresErr = fmt.Errorf("start postgres container: %w", err)
			return
		}

		url, err := container.ConnectionString(ctx, "sslmode=disable")
		if err != nil {
			_ = container.Terminate(ctx)
			postgresErr = fmt.Errorf("get postgres connection string: %w", err)
			return
		}

		db, err := sql.Open("postgres", url)
		if err != nil {
			_ = container.Terminate(ctx)
			postgresErr = fmt.Errorf("open postgres: %w", err)
			return
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			_ = container.Terminate(ctx)
			postgresErr = fmt.Errorf("ping postgres: %w", err)
			return
		}

		postgresInstance = &PostgresContainer{Container: container, URL: url, DB: db}
	})

	if postgresErr != nil {
		t.Fatalf("postgres container unavailable: %v", postgresErr)
	}
	return postgresInstance
}

// ApplySchema executes a schema statement, typically once per suite.
func (p *PostgresContainer) ApplySchema(ctx context.Context, schema string) error {
	_, err := p.DB.ExecContext(ctx, schema)
	return err
}

// TruncateTables empties the given tables. Use between tests for isolation.
func (p *PostgresContainer) TruncateTables(ctx context.Context, tables ...string) error {
	if len(tables) == 0 {
		return nil
	}
	_, err := p.DB.ExecContext(ctx,
		fmt.Sprintf("TRUNCATE TABLE %s CASCADE", strings.Join(tables, ", ")))
	return err
}

// Exec runs an arbitrary statement against the container database.
func (p *PostgresContainer) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return p.DB.ExecContext(ctx, query, args...)
}
