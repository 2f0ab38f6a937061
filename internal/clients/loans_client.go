// internal/clients/loans_client.go
package clients

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"libraloans/internal/catalog"
	"libraloans/internal/circulation"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// APIError is a non-2xx answer from the loan API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

type envelope struct {
	Success bool                `json:"success"`
	Data    jsoniter.RawMessage `json:"data"`
	Message string              `json:"message"`
}

// LoansClient talks to the loan API over HTTP.
type LoansClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewLoansClient creates a client for the API rooted at baseURL
// (for example http://localhost:3000).
func NewLoansClient(baseURL string, httpClient *http.Client) *LoansClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &LoansClient{baseURL: strings.TrimRight(baseURL, "/"), httpClient: httpClient}
}

type createLoanPayload struct {
	BookID          int64  `json:"bookId"`
	DaysRequested   int    `json:"daysRequested"`
	ReaderFirstName string `json:"readerFirstName"`
	ReaderLastName  string `json:"readerLastName"`
}

func (c *LoansClient) CreateLoan(ctx context.Context, req circulation.CreateLoanRequest) (*circulation.LoanDetails, error) {
	var loan circulation.LoanDetails
	err := c.do(ctx, http.MethodPost, "/api/loans", createLoanPayload(req), &loan)
	if err != nil {
		return nil, err
	}
	return &loan, nil
}

func (c *LoansClient) ReturnLoan(ctx context.Context, loanID int64) (*circulation.ReturnResult, error) {
	var result circulation.ReturnResult
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/loans/return/%d", loanID), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *LoansClient) GetBook(ctx context.Context, id int64) (*catalog.Book, error) {
	var book catalog.Book
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/books/%d", id), nil, &book); err != nil {
		return nil, err
	}
	return &book, nil
}

func (c *LoansClient) SearchBooks(ctx context.Context, query string) ([]catalog.Book, error) {
	var books []catalog.Book
	path := "/api/books/search?query=" + url.QueryEscape(query)
	if err := c.do(ctx, http.MethodGet, path, nil, &books); err != nil {
		return nil, err
	}
	return books, nil
}

func (c *LoansClient) ListLoans(ctx context.Context) ([]circulation.LoanView, error) {
	var loans []circulation.LoanView
	if err := c.do(ctx, http.MethodGet, "/api/loans", nil, &loans); err != nil {
		return nil, err
	}
	return loans, nil
}

func (c *LoansClient) ActiveLoans(ctx context.Context) ([]circulation.ActiveLoan, error) {
	var loans []circulation.ActiveLoan
	if err := c.do(ctx, http.MethodGet, "/api/loans/active", nil, &loans); err != nil {
		return nil, err
	}
	return loans, nil
}

func (c *LoansClient) Statistics(ctx context.Context) (*circulation.Statistics, error) {
	var stats circulation.Statistics
	if err := c.do(ctx, http.MethodGet, "/api/loans/statistics", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// Health returns nil when the API answers its health check with 200.
func (c *LoansClient) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/api/health", nil, nil)
}

func (c *LoansClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		if resp.StatusCode >= http.StatusBadRequest {
			return &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		}
		return fmt.Errorf("decode response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest || !env.Success {
		return &APIError{StatusCode: resp.StatusCode, Message: env.Message}
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode data: %w", err)
		}
	}
	return nil
}
