package testhelpers

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver "pgx" for migrations
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-quality/pkg/database"
)

// PostgresImage is the catalog database image used by integration tests.
const PostgresImage = "postgres:16-alpine"

// QualityDB holds the shared catalog database with migrations applied.
type QualityDB struct {
	Container testcontainers.Container
	DB        *database.DB
	ConnStr   string
}

var (
	sharedQualityDB     *QualityDB
	sharedQualityDBOnce sync.Once
	sharedQualityDBErr  error
)

// GetQualityDB returns a shared PostgreSQL container for integration tests.
// The container is created once per test binary and reused across tests.
func GetQualityDB(t *testing.T) *QualityDB {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	sharedQualityDBOnce.Do(func() {
		sharedQualityDB, sharedQualityDBErr = setupQualityDB()
	})

	if sharedQualityDBErr != nil {
		t.Fatalf("Failed to setup test database: %v", sharedQualityDBErr)
	}

	return sharedQualityDB
}

func setupQualityDB() (*QualityDB, error) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        PostgresImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_DB":       "ekaya_quality_test",
			"POSTGRES_USER":     "ekaya",
			"POSTGRES_PASSWORD": "test_password",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start test container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return nil, fmt.Errorf("failed to get container port: %w", err)
	}

	connStr := fmt.Sprintf("postgres://ekaya:test_password@%s:%s/ekaya_quality_test?sslmode=disable",
		host, port.Port())

	db, err := database.NewConnection(ctx, &database.Config{
		URL:            connStr,
		MaxConnections: 5,
	}, zap.NewNop())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to test database: %w", err)
	}

	// golang-migrate needs database/sql
	sqlDB, err := sql.Open("pgx", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open sql connection: %w", err)
	}
	defer sqlDB.Close()

	if _, err := database.RunMigrations(sqlDB, zap.NewNop()); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &QualityDB{
		Container: container,
		DB:        db,
		ConnStr:   connStr,
	}, nil
}

// CreateScopedContext returns a context holding a pooled connection and
// registers its release with t.Cleanup.
func (q *QualityDB) CreateScopedContext(t *testing.T) context.Context {
	t.Helper()

	ctx, cleanup, err := q.DB.WithScope(context.Background())
	if err != nil {
		t.Fatalf("Failed to acquire scope: %v", err)
	}
	t.Cleanup(cleanup)
	return ctx
}

// Truncate empties every catalog table so a test starts from a clean slate.
func (q *QualityDB) Truncate(t *testing.T) {
	t.Helper()

	_, err := q.DB.Exec(context.Background(), `
		TRUNCATE dq_lineage_runs, dq_lineage_edges, dq_schema_changes,
		         dq_issues, dq_profiles, dq_columns, dq_tables CASCADE`)
	if err != nil {
		t.Fatalf("Failed to truncate tables: %v", err)
	}
}
