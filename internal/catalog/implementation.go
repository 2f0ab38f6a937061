// internal/catalog/implementation.go
package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/jmoiron/sqlx"

	"libraloans/internal/database"
	domainerrors "libraloans/internal/errors"
)

const (
	dialectPostgres = "postgres"
	tableBooks      = "books"
	colID           = "id"
	colTitle        = "title"
	colAuthor       = "author"
	colCode         = "code"
	colAvailable    = "available"
)

var bookColumns = []any{colID, colTitle, colAuthor, colCode, colAvailable}

// Store reads and writes book rows. It never opens transactions itself; bind
// it to one with WithTx when the caller needs atomicity.
type Store struct {
	db sqlx.ExtContext
}

// NewStore creates a catalog store on top of a pool or a transaction.
func NewStore(db sqlx.ExtContext) *Store {
	return &Store{db: db}
}

// WithTx returns a store that runs every query inside tx.
func (s *Store) WithTx(tx *sqlx.Tx) *Store {
	return &Store{db: tx}
}

func (s *Store) builder() *goqu.SelectDataset {
	return goqu.Dialect(dialectPostgres).From(tableBooks).Prepared(true).Select(bookColumns...)
}

// FindByID returns the book, or nil when no book has that id.
func (s *Store) FindByID(ctx context.Context, id int64) (*Book, error) {
	query, args, err := s.builder().Where(goqu.C(colID).Eq(id)).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build find query: %w", err)
	}

	book := &Book{}
	if err := sqlx.GetContext(ctx, s.db, book, query, args...); err != nil {
		if database.IsNoRows(err) {
			return nil, nil
		}
		return nil, domainerrors.Store(err, "failed to get book")
	}
	return book, nil
}

// Search matches term case-insensitively as a substring of title, author or
// code, ordered by title.
func (s *Store) Search(ctx context.Context, term string) ([]Book, error) {
	query, args, err := buildSearchQuery(term)
	if err != nil {
		return nil, fmt.Errorf("build search query: %w", err)
	}
	return s.selectBooks(ctx, query, args, "failed to search books")
}

// All returns the whole catalog ordered by title.
func (s *Store) All(ctx context.Context) ([]Book, error) {
	query, args, err := s.builder().Order(goqu.C(colTitle).Asc()).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build list query: %w", err)
	}
	return s.selectBooks(ctx, query, args, "failed to list books")
}

func (s *Store) selectBooks(ctx context.Context, query string, args []any, msg string) ([]Book, error) {
	books := []Book{}
	if err := sqlx.SelectContext(ctx, s.db, &books, query, args...); err != nil {
		return nil, domainerrors.Store(err, msg)
	}
	return books, nil
}

// SetAvailability overwrites the availability flag.
func (s *Store) SetAvailability(ctx context.Context, id int64, available bool) error {
	query, args, err := goqu.Dialect(dialectPostgres).
		Update(tableBooks).
		Prepared(true).
		Set(goqu.Record{colAvailable: available}).
		Where(goqu.C(colID).Eq(id)).
		ToSQL()
	if err != nil {
		return fmt.Errorf("build update query: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return domainerrors.Store(err, "failed to update book availability")
	}
	return nil
}

// LockAvailability reads the availability flag with FOR UPDATE, holding the
// row lock until the surrounding transaction ends. Concurrent callers for the
// same book block here and then observe the committed value.
func (s *Store) LockAvailability(ctx context.Context, id int64) (available bool, found bool, err error) {
	query, args, err := goqu.Dialect(dialectPostgres).
		From(tableBooks).
		Prepared(true).
		Select(colAvailable).
		Where(goqu.C(colID).Eq(id)).
		ForUpdate(goqu.Wait).
		ToSQL()
	if err != nil {
		return false, false, fmt.Errorf("build lock query: %w", err)
	}

	if err := sqlx.GetContext(ctx, s.db, &available, query, args...); err != nil {
		if database.IsNoRows(err) {
			return false, false, nil
		}
		return false, false, domainerrors.Store(err, "failed to lock book")
	}
	return available, true, nil
}

func buildSearchQuery(term string) (string, []any, error) {
	pattern := "%" + escapeLike(term) + "%"
	return goqu.Dialect(dialectPostgres).
		From(tableBooks).
		Prepared(true).
		Select(bookColumns...).
		Where(goqu.Or(
			goqu.C(colTitle).ILike(pattern),
			goqu.C(colAuthor).ILike(pattern),
			goqu.C(colCode).ILike(pattern),
		)).
		Order(goqu.C(colTitle).Asc()).
		ToSQL()
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike makes LIKE wildcards in user input match literally.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
