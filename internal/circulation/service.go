// internal/circulation/service.go
package circulation

import (
	"context"
)

// Service manages the loan lifecycle. Create and return each run in a single
// transaction that also flips the book's availability.
type Service interface {
	CreateLoan(ctx context.Context, req CreateLoanRequest) (*LoanDetails, error)
	ReturnLoan(ctx context.Context, loanID int64) (*ReturnResult, error)
	ListLoans(ctx context.Context) ([]LoanView, error)
	ListActiveLoans(ctx context.Context) ([]ActiveLoan, error)
	Statistics(ctx context.Context) (*Statistics, error)
}
