// Package databasetest connects tests to a real Postgres. Tests that need it
// are skipped when no server is reachable.
package databasetest

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"libraloans/internal/database"
)

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func connString(extra string) string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable%s",
		getenv("PGHOST", "localhost"),
		getenv("PGPORT", "5432"),
		getenv("PGUSER", "postgres"),
		getenv("PGPASSWORD", "postgres"),
		getenv("PGDATABASE", "libraloans_test"),
		extra,
	)
}

// Open returns a pool whose search_path is a schema private to the calling
// package, so package test binaries running in parallel do not share tables.
// The schema is migrated and emptied before returning.
func Open(t testing.TB, schemaName string) *sqlx.DB {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	admin, err := sqlx.Open("postgres", connString(""))
	if err != nil {
		t.Fatalf("failed to open database connection: %v", err)
	}
	defer admin.Close()

	if err := admin.PingContext(ctx); err != nil {
		t.Skipf("skipping database tests: could not connect to postgres: %v", err)
	}

	if _, err := admin.ExecContext(ctx, fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %q`, schemaName)); err != nil {
		t.Fatalf("failed to create schema %s: %v", schemaName, err)
	}

	db, err := database.Open(ctx, connString(" search_path="+schemaName), database.PoolConfig{MaxOpenConns: 20})
	if err != nil {
		t.Fatalf("failed to open schema %s: %v", schemaName, err)
	}
	t.Cleanup(func() { db.Close() })

	if err := database.Migrate(ctx, db); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	Reset(t, db)

	return db
}

// Reset empties both tables and restarts their id sequences.
func Reset(t testing.TB, db *sqlx.DB) {
	t.Helper()
	if _, err := db.Exec(`TRUNCATE TABLE loans, books RESTART IDENTITY CASCADE`); err != nil {
		t.Fatalf("failed to truncate tables: %v", err)
	}
}

// InsertBook stores a book and returns its id.
func InsertBook(t testing.TB, db *sqlx.DB, title, author, code string, available bool) int64 {
	t.Helper()
	var id int64
	err := db.QueryRow(
		`INSERT INTO books (title, author, code, available) VALUES ($1, $2, $3, $4) RETURNING id`,
		title, author, code, available,
	).Scan(&id)
	if err != nil {
		t.Fatalf("failed to insert book: %v", err)
	}
	return id
}

// InsertLoan stores a loan with explicit dates (YYYY-MM-DD) and marks the book unavailable.
func InsertLoan(t testing.TB, db *sqlx.DB, bookID int64, loanDate, returnDate string, days int) int64 {
	t.Helper()
	var id int64
	err := db.QueryRow(`
		INSERT INTO loans (book_id, loan_date, return_date, days_requested, reader_first_name, reader_last_name)
		VALUES ($1, $2, $3, $4, 'Ada', 'Lovelace')
		RETURNING id
	`, bookID, loanDate, returnDate, days).Scan(&id)
	if err != nil {
		t.Fatalf("failed to insert loan: %v", err)
	}
	if _, err := db.Exec(`UPDATE books SET available = false WHERE id = $1`, bookID); err != nil {
		t.Fatalf("failed to mark book unavailable: %v", err)
	}
	return id
}
