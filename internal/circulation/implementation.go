// internal/circulation/implementation.go
package circulation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"libraloans/internal/catalog"
	"libraloans/internal/database"
	domainerrors "libraloans/internal/errors"
	"libraloans/internal/validation"
)

const instrumentationName = "libraloans/circulation"

const loanColumns = `l.id, l.book_id, l.loan_date, l.return_date, l.days_requested,
	l.reader_first_name, l.reader_last_name`

const (
	insertLoanSQL = `
		INSERT INTO loans (book_id, loan_date, return_date, days_requested, reader_first_name, reader_last_name)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, book_id, loan_date, return_date, days_requested, reader_first_name, reader_last_name`

	selectLoanBookSQL = `
		SELECT l.book_id
		FROM loans l
		JOIN books b ON b.id = l.book_id
		WHERE l.id = $1`

	deleteLoanSQL = `DELETE FROM loans WHERE id = $1`

	listLoansSQL = `
		SELECT ` + loanColumns + `, b.title, b.author, b.code
		FROM loans l
		JOIN books b ON b.id = l.book_id
		ORDER BY l.loan_date DESC, l.id DESC`

	listActiveLoansSQL = `
		SELECT ` + loanColumns + `, b.title, b.author, b.code
		FROM loans l
		JOIN books b ON b.id = l.book_id
		WHERE l.return_date >= $1
		ORDER BY l.return_date ASC, l.id ASC`

	statisticsSQL = `
		SELECT
			(SELECT COUNT(*) FROM books)                          AS total_books,
			(SELECT COUNT(*) FROM books WHERE available)          AS available_books,
			(SELECT COUNT(*) FROM books WHERE NOT available)      AS loaned_books,
			(SELECT COUNT(*) FROM loans WHERE return_date >= $1)  AS active_loans,
			(SELECT COUNT(*) FROM loans WHERE return_date < $1)   AS overdue_loans`
)

// Option customises a service built by NewService.
type Option func(*service)

// WithClock replaces time.Now as the source of "today".
func WithClock(now func() time.Time) Option {
	return func(s *service) { s.now = now }
}

// WithLocation sets the zone in which "today" is read off the clock.
func WithLocation(loc *time.Location) Option {
	return func(s *service) {
		if loc != nil {
			s.location = loc
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *service) { s.logger = logger }
}

type service struct {
	db        *sqlx.DB
	books     *catalog.Store
	validator *validation.Validator
	now       func() time.Time
	location  *time.Location
	logger    *slog.Logger

	tracer    trace.Tracer
	created   metric.Int64Counter
	returned  metric.Int64Counter
	conflicts metric.Int64Counter
}

// NewService creates the loan lifecycle manager. books must not be bound to a
// transaction; the manager binds it to its own.
func NewService(db *sqlx.DB, books *catalog.Store, opts ...Option) (Service, error) {
	s := &service{
		db:        db,
		books:     books,
		validator: validation.New(),
		now:       time.Now,
		location:  time.Local,
		logger:    slog.Default(),
		tracer:    otel.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "circulation")

	meter := otel.Meter(instrumentationName)
	var err error
	if s.created, err = meter.Int64Counter("loans.created",
		metric.WithDescription("Loans created")); err != nil {
		return nil, fmt.Errorf("create loans.created counter: %w", err)
	}
	if s.returned, err = meter.Int64Counter("loans.returned",
		metric.WithDescription("Loans returned")); err != nil {
		return nil, fmt.Errorf("create loans.returned counter: %w", err)
	}
	if s.conflicts, err = meter.Int64Counter("loans.conflicts",
		metric.WithDescription("Create-loan attempts rejected because the book was on loan")); err != nil {
		return nil, fmt.Errorf("create loans.conflicts counter: %w", err)
	}

	return s, nil
}

func (s *service) today() Date {
	return Today(s.now(), s.location)
}

// CreateLoan validates req, then inside one transaction locks the book row,
// inserts the loan and marks the book unavailable.
func (s *service) CreateLoan(ctx context.Context, req CreateLoanRequest) (*LoanDetails, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.create_loan",
		trace.WithAttributes(
			attribute.Int64("book.id", req.BookID),
			attribute.Int("loan.days_requested", req.DaysRequested),
		),
	)
	defer span.End()

	req.ReaderFirstName = strings.TrimSpace(req.ReaderFirstName)
	req.ReaderLastName = strings.TrimSpace(req.ReaderLastName)
	if err := s.validator.Validate(req); err != nil {
		return nil, s.fail(span, err)
	}

	var details *LoanDetails
	err := database.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		books := s.books.WithTx(tx)

		book, err := books.FindByID(ctx, req.BookID)
		if err != nil {
			return err
		}
		if book == nil {
			return domainerrors.NotFound("book does not exist")
		}

		// The locked read is authoritative: another transaction may have
		// committed a loan after FindByID.
		available, found, err := books.LockAvailability(ctx, req.BookID)
		if err != nil {
			return err
		}
		if !found {
			return domainerrors.NotFound("book does not exist")
		}
		if !available {
			return domainerrors.Conflict("book not available")
		}

		loanDate := s.today()
		var loan Loan
		err = tx.QueryRowxContext(ctx, insertLoanSQL,
			req.BookID,
			loanDate,
			ReturnDate(loanDate, req.DaysRequested),
			req.DaysRequested,
			req.ReaderFirstName,
			req.ReaderLastName,
		).StructScan(&loan)
		if err != nil {
			return database.Classify(err, "failed to create loan")
		}

		if err := books.SetAvailability(ctx, req.BookID, false); err != nil {
			return err
		}

		book.Available = false
		details = &LoanDetails{Loan: loan, Book: *book}
		return nil
	})
	if err != nil {
		if domainerrors.Is(err, domainerrors.ErrConflict) {
			s.conflicts.Add(ctx, 1)
		}
		return nil, s.fail(span, err)
	}

	s.created.Add(ctx, 1)
	span.SetAttributes(
		attribute.Int64("loan.id", details.ID),
		attribute.String("loan.return_date", details.ReturnDate.String()),
	)
	s.logger.Info("loan created",
		"loan_id", details.ID,
		"book_id", details.BookID,
		"return_date", details.ReturnDate.String(),
	)
	return details, nil
}

// ReturnLoan deletes the loan and makes its book available again, atomically.
// A loan deleted by a concurrent return is reported as not found.
func (s *service) ReturnLoan(ctx context.Context, loanID int64) (*ReturnResult, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.return_loan",
		trace.WithAttributes(attribute.Int64("loan.id", loanID)),
	)
	defer span.End()

	// Ids start at 1, so no row can match.
	if loanID <= 0 {
		return nil, s.fail(span, domainerrors.NotFound("loan not found"))
	}

	var bookID int64
	err := database.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if err := tx.GetContext(ctx, &bookID, selectLoanBookSQL, loanID); err != nil {
			if database.IsNoRows(err) {
				return domainerrors.NotFound("loan not found")
			}
			return database.Classify(err, "failed to get loan")
		}

		if err := s.books.WithTx(tx).SetAvailability(ctx, bookID, true); err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx, deleteLoanSQL, loanID)
		if err != nil {
			return database.Classify(err, "failed to delete loan")
		}
		n, err := res.RowsAffected()
		if err != nil {
			return database.Classify(err, "failed to delete loan")
		}
		if n == 0 {
			return domainerrors.NotFound("loan not found")
		}
		return nil
	})
	if err != nil {
		return nil, s.fail(span, err)
	}

	s.returned.Add(ctx, 1)
	s.logger.Info("loan returned", "loan_id", loanID, "book_id", bookID)
	return &ReturnResult{LoanID: loanID, BookID: bookID}, nil
}

func (s *service) ListLoans(ctx context.Context) ([]LoanView, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.list_loans")
	defer span.End()

	loans := []LoanView{}
	if err := s.db.SelectContext(ctx, &loans, listLoansSQL); err != nil {
		return nil, s.fail(span, domainerrors.Store(err, "failed to list loans"))
	}
	return loans, nil
}

// ListActiveLoans lists loans due yesterday or later, labelled against today.
func (s *service) ListActiveLoans(ctx context.Context) ([]ActiveLoan, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.list_active_loans")
	defer span.End()

	today := s.today()
	loans := []ActiveLoan{}
	if err := s.db.SelectContext(ctx, &loans, listActiveLoansSQL, today.AddDays(-1)); err != nil {
		return nil, s.fail(span, domainerrors.Store(err, "failed to list active loans"))
	}
	for i := range loans {
		loans[i].Status = StatusFor(loans[i].ReturnDate, today)
	}
	return loans, nil
}

func (s *service) Statistics(ctx context.Context) (*Statistics, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.statistics")
	defer span.End()

	var stats Statistics
	if err := s.db.GetContext(ctx, &stats, statisticsSQL, s.today()); err != nil {
		return nil, s.fail(span, domainerrors.Store(err, "failed to get statistics"))
	}
	return &stats, nil
}

// fail records err on the span. Client errors leave the span status unset.
func (s *service) fail(span trace.Span, err error) error {
	span.RecordError(err)
	if !domainerrors.IsClient(err) {
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
