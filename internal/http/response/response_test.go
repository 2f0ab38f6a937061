package response

import (
	"database/sql"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "libraloans/internal/errors"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestJSON_Success(t *testing.T) {
	w := httptest.NewRecorder()

	JSON(w, http.StatusOK, []string{"a"}, discardLogger())

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))

	body := decodeEnvelope(t, w)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, []any{"a"}, body["data"])
	assert.NotContains(t, body, "message")
}

func TestJSON_ErrorStatusIsNotSuccess(t *testing.T) {
	w := httptest.NewRecorder()

	JSON(w, http.StatusNotFound, nil, nil)

	body := decodeEnvelope(t, w)
	assert.Equal(t, false, body["success"])
}

func TestCreated(t *testing.T) {
	w := httptest.NewRecorder()

	Created(w, map[string]int{"id": 7}, "Loan created successfully", discardLogger())

	assert.Equal(t, http.StatusCreated, w.Code)
	body := decodeEnvelope(t, w)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Loan created successfully", body["message"])
}

func TestHandleError_ClientErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"validation", domainerrors.Validation("daysRequested must be less than or equal to 15"), http.StatusBadRequest},
		{"not found", domainerrors.NotFound("loan not found"), http.StatusNotFound},
		{"conflict", domainerrors.Conflict("book not available"), http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			HandleError(w, tt.err, discardLogger())

			assert.Equal(t, tt.status, w.Code)
			body := decodeEnvelope(t, w)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tt.err.Error(), body["message"])
		})
	}
}

func TestHandleErrorWithStatus_OverridesClientStatus(t *testing.T) {
	w := httptest.NewRecorder()

	HandleErrorWithStatus(w, domainerrors.NotFound("book does not exist"), http.StatusBadRequest, discardLogger())

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleError_StoreErrorsDoNotLeak(t *testing.T) {
	w := httptest.NewRecorder()
	err := domainerrors.Store(sql.ErrConnDone, "failed to create loan")

	HandleErrorWithStatus(w, err, http.StatusBadRequest, discardLogger())

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), sql.ErrConnDone.Error())
	body := decodeEnvelope(t, w)
	assert.Equal(t, "internal server error", body["message"])
}

func TestDecode(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"x"}`))
	var v struct {
		Name string `json:"name"`
	}

	require.NoError(t, Decode(r, &v))
	assert.Equal(t, "x", v.Name)
}
