// internal/circulation/handler.go
package circulation

import (
	"bytes"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	jsoniter "github.com/json-iterator/go"

	domainerrors "libraloans/internal/errors"
	"libraloans/internal/http/response"
)

type Handler struct {
	service Service
	logger  *slog.Logger
}

func NewHandler(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger.With("component", "circulation")}
}

// createLoanBody accepts bookId and daysRequested as JSON numbers or numeric
// strings.
type createLoanBody struct {
	BookID          jsoniter.RawMessage `json:"bookId"`
	DaysRequested   jsoniter.RawMessage `json:"daysRequested"`
	ReaderFirstName string              `json:"readerFirstName"`
	ReaderLastName  string              `json:"readerLastName"`
}

func (b createLoanBody) toRequest() (CreateLoanRequest, error) {
	bookID, err := parseIntField("bookId", b.BookID)
	if err != nil {
		return CreateLoanRequest{}, err
	}
	days, err := parseIntField("daysRequested", b.DaysRequested)
	if err != nil {
		return CreateLoanRequest{}, err
	}
	return CreateLoanRequest{
		BookID:          bookID,
		DaysRequested:   int(days),
		ReaderFirstName: b.ReaderFirstName,
		ReaderLastName:  b.ReaderLastName,
	}, nil
}

// parseIntField treats a missing or null value as zero and leaves range
// checks to the validator.
func parseIntField(name string, raw jsoniter.RawMessage) (int64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, nil
	}

	s := string(raw)
	if raw[0] == '"' {
		unquoted, err := strconv.Unquote(s)
		if err != nil {
			return 0, domainerrors.Validationf("%s must be an integer", name)
		}
		s = string(bytes.TrimSpace([]byte(unquoted)))
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, domainerrors.Validationf("%s must be an integer", name)
	}
	return n, nil
}

// HandleCreateLoan serves POST /api/loans. Every client error, including an
// unknown or unavailable book, is answered with 400.
func (h *Handler) HandleCreateLoan(w http.ResponseWriter, r *http.Request) {
	var body createLoanBody
	if err := response.Decode(r, &body); err != nil {
		response.BadRequest(w, "invalid request body", h.logger)
		return
	}

	req, err := body.toRequest()
	if err != nil {
		response.HandleErrorWithStatus(w, err, http.StatusBadRequest, h.logger)
		return
	}

	loan, err := h.service.CreateLoan(r.Context(), req)
	if err != nil {
		response.HandleErrorWithStatus(w, err, http.StatusBadRequest, h.logger)
		return
	}

	response.Created(w, loan, "Loan created successfully", h.logger)
}

func (h *Handler) HandleListLoans(w http.ResponseWriter, r *http.Request) {
	loans, err := h.service.ListLoans(r.Context())
	if err != nil {
		response.HandleError(w, err, h.logger)
		return
	}
	response.Success(w, loans, h.logger)
}

func (h *Handler) HandleListActiveLoans(w http.ResponseWriter, r *http.Request) {
	loans, err := h.service.ListActiveLoans(r.Context())
	if err != nil {
		response.HandleError(w, err, h.logger)
		return
	}
	response.Success(w, loans, h.logger)
}

func (h *Handler) HandleStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Statistics(r.Context())
	if err != nil {
		response.HandleError(w, err, h.logger)
		return
	}
	response.Success(w, stats, h.logger)
}

// HandleReturnLoan serves POST /api/loans/return/{id}.
func (h *Handler) HandleReturnLoan(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		response.BadRequest(w, "invalid loan ID", h.logger)
		return
	}

	result, err := h.service.ReturnLoan(r.Context(), id)
	if err != nil {
		response.HandleError(w, err, h.logger)
		return
	}

	response.Write(w, http.StatusOK, response.Envelope{
		Success: true,
		Message: "Book returned successfully",
		Data:    result,
	}, h.logger)
}
