// internal/circulation/domain.go
package circulation

import (
	"libraloans/internal/catalog"
)

// Loan is an active loan of one book. Returned loans are deleted.
type Loan struct {
	ID              int64  `json:"id" db:"id"`
	BookID          int64  `json:"book_id" db:"book_id"`
	LoanDate        Date   `json:"loan_date" db:"loan_date"`
	ReturnDate      Date   `json:"return_date" db:"return_date"`
	DaysRequested   int    `json:"days_requested" db:"days_requested"`
	ReaderFirstName string `json:"reader_first_name" db:"reader_first_name"`
	ReaderLastName  string `json:"reader_last_name" db:"reader_last_name"`
}

// LoanDetails is a freshly created loan with the book it reserved.
type LoanDetails struct {
	Loan
	Book catalog.Book `json:"book"`
}

// LoanView is a loan joined with the descriptive columns of its book.
type LoanView struct {
	Loan
	Title  string `json:"title" db:"title"`
	Author string `json:"author" db:"author"`
	Code   string `json:"code" db:"code"`
}

// ActiveLoan carries the status label computed against today.
type ActiveLoan struct {
	LoanView
	Status string `json:"status" db:"-"`
}

type Statistics struct {
	TotalBooks     int64 `json:"total_books" db:"total_books"`
	AvailableBooks int64 `json:"available_books" db:"available_books"`
	LoanedBooks    int64 `json:"loaned_books" db:"loaned_books"`
	ActiveLoans    int64 `json:"active_loans" db:"active_loans"`
	OverdueLoans   int64 `json:"overdue_loans" db:"overdue_loans"`
}

// CreateLoanRequest is validated after the reader names are trimmed.
type CreateLoanRequest struct {
	BookID          int64  `json:"bookId" validate:"gt=0"`
	DaysRequested   int    `json:"daysRequested" validate:"gte=1,lte=15"`
	ReaderFirstName string `json:"readerFirstName" validate:"required"`
	ReaderLastName  string `json:"readerLastName" validate:"required"`
}

type ReturnResult struct {
	LoanID int64 `json:"loan_id"`
	BookID int64 `json:"book_id"`
}
