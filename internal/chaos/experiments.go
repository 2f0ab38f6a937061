// internal/chaos/experiments.go
package chaos

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"libraloans/internal/circulation"
	"libraloans/internal/database"
)

// LoanAPI is the part of the loan surface the experiments drive. Both the
// HTTP client and the in-process service satisfy it.
type LoanAPI interface {
	CreateLoan(ctx context.Context, req circulation.CreateLoanRequest) (*circulation.LoanDetails, error)
	ReturnLoan(ctx context.Context, loanID int64) (*circulation.ReturnResult, error)
}

// Querier runs a single-row query. *sqlx.DB satisfies it.
type Querier interface {
	GetContext(ctx context.Context, dest any, query string, args ...any) error
}

const (
	availabilityMismatchSQL = `
		SELECT COUNT(*) FROM books b
		WHERE b.available = EXISTS (SELECT 1 FROM loans l WHERE l.book_id = b.id)`

	multipleLoansSQL = `
		SELECT COUNT(*) FROM (
			SELECT book_id FROM loans GROUP BY book_id HAVING COUNT(*) > 1
		) AS doubled`
)

// Suite builds the loan experiments against one fixture book.
type Suite struct {
	API         LoanAPI
	DB          Querier
	BookID      int64
	Concurrency int
	Duration    time.Duration
	Interval    time.Duration
}

// Register adds every experiment of the suite to the engine.
func (s Suite) Register(e *Engine) {
	e.Register(s.DoubleBookingExperiment())
	e.Register(s.DoubleReturnExperiment())
}

func (s Suite) concurrency() int {
	if s.Concurrency < 2 {
		return 2
	}
	return s.Concurrency
}

func (s Suite) consistencyMetrics() []Metric {
	return []Metric{
		{
			Name:      "availability_mismatches",
			Query:     s.count(availabilityMismatchSQL),
			Threshold: Threshold{Operator: "==", Value: 0},
		},
		{
			Name:      "books_with_multiple_loans",
			Query:     s.count(multipleLoansSQL),
			Threshold: Threshold{Operator: "==", Value: 0},
		},
	}
}

func (s Suite) count(query string) func(context.Context) (float64, error) {
	return func(ctx context.Context) (float64, error) {
		var n int64
		if err := s.DB.GetContext(ctx, &n, query); err != nil {
			return 0, err
		}
		return float64(n), nil
	}
}

func (s Suite) loanRequest(days int) circulation.CreateLoanRequest {
	return circulation.CreateLoanRequest{
		BookID:          s.BookID,
		DaysRequested:   days,
		ReaderFirstName: "Chaos",
		ReaderLastName:  "Monkey",
	}
}

// DoubleBookingExperiment fires concurrent create-loan requests for the same
// book. Exactly one may succeed.
func (s Suite) DoubleBookingExperiment() Experiment {
	var (
		successes atomic.Int64
		mu        sync.Mutex
		loanIDs   []int64
	)

	return Experiment{
		Name:       "concurrent-loan-race-condition",
		Hypothesis: "Simultaneous loan requests for one book never double-book it",
		SteadyState: append(s.consistencyMetrics(), Metric{
			Name:      "concurrent_loan_successes",
			Query:     func(context.Context) (float64, error) { return float64(successes.Load()), nil },
			Threshold: Threshold{Operator: "<=", Value: 1},
		}),
		Method: []Action{
			{
				Type:   "concurrent-requests",
				Target: "loans",
				Execute: func(ctx context.Context) error {
					successes.Store(0)
					loanIDs = nil
					failures := burst(ctx, s.concurrency(), func(ctx context.Context) error {
						loan, err := s.API.CreateLoan(ctx, s.loanRequest(3))
						if err != nil {
							return err
						}
						successes.Add(1)
						mu.Lock()
						loanIDs = append(loanIDs, loan.ID)
						mu.Unlock()
						return nil
					})
					if n := successes.Load(); n != 1 {
						return fmt.Errorf("%d of %d concurrent loans succeeded (%d failed)", n, s.concurrency(), failures)
					}
					return nil
				},
			},
		},
		Rollback: []Action{
			{
				Type:   "return-loans",
				Target: "loans",
				Execute: func(ctx context.Context) error {
					mu.Lock()
					ids := append([]int64(nil), loanIDs...)
					mu.Unlock()

					var errs []error
					for _, id := range ids {
						if _, err := s.API.ReturnLoan(ctx, id); err != nil {
							errs = append(errs, fmt.Errorf("return loan %d: %w", id, err))
						}
					}
					return errors.Join(errs...)
				},
			},
		},
		Validation: []Assertion{
			{
				Metric:    "concurrent_loan_successes",
				Condition: func(v float64) bool { return v == 1 },
				Message:   "Exactly one concurrent loan should succeed",
			},
			{
				Metric:    "books_with_multiple_loans",
				Condition: func(v float64) bool { return v == 0 },
				Message:   "No book should carry more than one loan",
			},
			{
				Metric:    "availability_mismatches",
				Condition: func(v float64) bool { return v == 0 },
				Message:   "Availability flags should match outstanding loans",
			},
		},
		Duration: s.Duration,
		Interval: s.Interval,
	}
}

// DoubleReturnExperiment creates one loan and returns it concurrently.
// Exactly one return may succeed and the book must end up available.
func (s Suite) DoubleReturnExperiment() Experiment {
	var successes atomic.Int64

	return Experiment{
		Name:       "concurrent-return-race-condition",
		Hypothesis: "Simultaneous returns of one loan succeed once and leave the book available",
		SteadyState: append(s.consistencyMetrics(), Metric{
			Name:      "concurrent_return_successes",
			Query:     func(context.Context) (float64, error) { return float64(successes.Load()), nil },
			Threshold: Threshold{Operator: "<=", Value: 1},
		}),
		Method: []Action{
			{
				Type:   "concurrent-requests",
				Target: "loans",
				Execute: func(ctx context.Context) error {
					successes.Store(0)
					loan, err := s.API.CreateLoan(ctx, s.loanRequest(1))
					if err != nil {
						return fmt.Errorf("create loan to return: %w", err)
					}
					burst(ctx, s.concurrency(), func(ctx context.Context) error {
						if _, err := s.API.ReturnLoan(ctx, loan.ID); err != nil {
							return err
						}
						successes.Add(1)
						return nil
					})
					if n := successes.Load(); n != 1 {
						return fmt.Errorf("%d of %d concurrent returns succeeded", n, s.concurrency())
					}
					return nil
				},
			},
		},
		Validation: []Assertion{
			{
				Metric:    "concurrent_return_successes",
				Condition: func(v float64) bool { return v == 1 },
				Message:   "Exactly one concurrent return should succeed",
			},
			{
				Metric:    "availability_mismatches",
				Condition: func(v float64) bool { return v == 0 },
				Message:   "Availability flags should match outstanding loans",
			},
		},
		Duration: s.Duration,
		Interval: s.Interval,
	}
}

// burst runs fn n times concurrently, released together, and returns how
// many calls failed.
func burst(ctx context.Context, n int, fn func(context.Context) error) int {
	var (
		wg       sync.WaitGroup
		failures atomic.Int64
	)
	start := make(chan struct{})
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if err := fn(ctx); err != nil {
				failures.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()
	return int(failures.Load())
}

// CreateFixtureBook inserts an available book with a unique code for the
// experiments to fight over.
func CreateFixtureBook(ctx context.Context, db *sqlx.DB) (int64, error) {
	var id int64
	err := db.GetContext(ctx, &id,
		`INSERT INTO books (title, author, code, available) VALUES ($1, $2, $3, TRUE) RETURNING id`,
		"Chaos Fixture", "Game Day", "CHAOS-"+uuid.NewString(),
	)
	if err != nil {
		return 0, fmt.Errorf("insert fixture book: %w", err)
	}
	return id, nil
}

// RemoveFixtureBook deletes the fixture book and any loan left on it.
func RemoveFixtureBook(ctx context.Context, db *sqlx.DB, id int64) error {
	return database.WithTx(ctx, db, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM loans WHERE book_id = $1`, id); err != nil {
			return fmt.Errorf("delete fixture loans: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM books WHERE id = $1`, id); err != nil {
			return fmt.Errorf("delete fixture book: %w", err)
		}
		return nil
	})
}
