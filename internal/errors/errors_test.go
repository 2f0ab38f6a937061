package errors

import (
	"database/sql"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsMatchesByCode(t *testing.T) {
	err := NotFound("loan not found")

	assert.True(t, Is(err, ErrNotFound))
	assert.False(t, Is(err, ErrConflict))

	wrapped := fmt.Errorf("return loan: %w", err)
	assert.True(t, Is(wrapped, ErrNotFound))
}

func TestStoreKeepsCause(t *testing.T) {
	err := Store(sql.ErrConnDone, "failed to load loans")

	assert.True(t, Is(err, ErrStore))
	assert.True(t, Is(err, sql.ErrConnDone))
	assert.Equal(t, "failed to load loans: "+sql.ErrConnDone.Error(), err.Error())
}

func TestWithDetails(t *testing.T) {
	details := map[string]string{"daysRequested": "must be less than or equal to 15"}
	err := ErrValidation.WithDetails(details)

	require.NotSame(t, ErrValidation, err)
	assert.Nil(t, ErrValidation.Details)
	assert.Equal(t, details, err.Details)
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodeConflict, CodeOf(fmt.Errorf("x: %w", Conflict("book not available"))))
	assert.Equal(t, CodeInternal, CodeOf(New("boom")))
}

func TestIsClient(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{Validation("bad"), true},
		{NotFound("missing"), true},
		{Conflict("taken"), true},
		{Store(sql.ErrTxDone, "tx"), false},
		{New("plain"), false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, IsClient(tt.err), tt.err.Error())
	}
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, CodeValidation.HTTPStatus())
	assert.Equal(t, http.StatusBadRequest, CodeConflict.HTTPStatus())
	assert.Equal(t, http.StatusNotFound, CodeNotFound.HTTPStatus())
	assert.Equal(t, http.StatusInternalServerError, CodeStore.HTTPStatus())
	assert.Equal(t, http.StatusInternalServerError, CodeInternal.HTTPStatus())
}
