package database

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
)

// Driver names as registered with database/sql
const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
)

// New creates a new database connection (supports both MySQL and PostgreSQL)
func New(databaseURL string) (*sqlx.DB, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable not set")
	}

	driver, dsn, err := ParseURL(databaseURL)
	if err != nil {
		return nil, err
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool settings
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// ParseURL auto-detects the driver from the URL scheme. postgres:// URLs are
// passed to lib/pq untouched; mysql:// URLs are converted to a go-sql-driver DSN.
// Anything else is taken as a raw MySQL DSN. MySQL DSNs always get parseTime so
// DATETIME columns scan into time.Time.
func ParseURL(databaseURL string) (driver, dsn string, err error) {
	if strings.HasPrefix(databaseURL, DriverPostgres) {
		return DriverPostgres, databaseURL, nil
	}
	if !strings.HasPrefix(databaseURL, "mysql://") {
		cfg, err := mysql.ParseDSN(databaseURL)
		if err != nil {
			return "", "", fmt.Errorf("invalid MySQL DSN: %w", err)
		}
		cfg.ParseTime = true
		return DriverMySQL, cfg.FormatDSN(), nil
	}

	u, err := url.Parse(databaseURL)
	if err != nil {
		return "", "", fmt.Errorf("invalid DATABASE_URL: %w", err)
	}

	cfg := mysql.NewConfig()
	cfg.Net = "tcp"
	cfg.Addr = u.Host
	cfg.DBName = strings.TrimPrefix(u.Path, "/")
	cfg.ParseTime = true
	if u.User != nil {
		cfg.User = u.User.Username()
		cfg.Passwd, _ = u.User.Password()
	}
	if query := u.Query(); len(query) > 0 {
		cfg.Params = make(map[string]string, len(query))
		for key := range query {
			if key == "parseTime" {
				continue
			}
			cfg.Params[key] = query.Get(key)
		}
	}

	return DriverMySQL, cfg.FormatDSN(), nil
}

// ExecuteReadOnlyQuery executes a query within a read-only transaction for extra safety
func ExecuteReadOnlyQuery(ctx context.Context, db *sqlx.DB, dest interface{}, query string, args ...interface{}) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin read-only transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil {
			// Log but don't fail - rollback errors in read-only transactions are usually harmless
			fmt.Printf("Warning: Error rolling back read-only transaction: %v\n", err)
		}
	}() // Always rollback, we never commit read-only transactions

	err = tx.SelectContext(ctx, dest, db.Rebind(query), args...)
	if err != nil {
		return fmt.Errorf("failed to execute read-only query: %w", err)
	}

	return nil
}

// ExecuteReadOnlyQuerySingle executes a single-row query within a read-only transaction.
// A missing row surfaces as a wrapped sql.ErrNoRows.
func ExecuteReadOnlyQuerySingle(ctx context.Context, db *sqlx.DB, dest interface{}, query string, args ...interface{}) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin read-only transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil {
			fmt.Printf("Warning: Error rolling back read-only transaction: %v\n", err)
		}
	}()

	err = tx.GetContext(ctx, dest, db.Rebind(query), args...)
	if err != nil {
		return fmt.Errorf("failed to execute read-only query: %w", err)
	}

	return nil
}

// ExecuteReadOnlyPing executes a ping within a read-only transaction
func ExecuteReadOnlyPing(ctx context.Context, db *sqlx.DB) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin read-only transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil {
			fmt.Printf("Warning: Error rolling back read-only transaction: %v\n", err)
		}
	}()

	// Execute a simple query to test the connection in read-only mode
	var result int
	err = tx.GetContext(ctx, &result, "SELECT 1")
	if err != nil {
		return fmt.Errorf("failed to execute read-only ping query: %w", err)
	}

	return nil
}
