package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsufficientStockDetails(t *testing.T) {
	err := NewInsufficientStock("Adobo Rice", 2, 3)

	assert.Equal(t, http.StatusConflict, err.HTTPStatus)
	assert.Equal(t, 2, err.Details["available"])
	assert.Equal(t, 3, err.Details["requested"])
	assert.Equal(t, "Adobo Rice", err.Details["product"])
}

func TestAsAppErrorThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("checkout: %w", NewNotFound("product", int64(9)))

	appErr, ok := AsAppError(wrapped)
	require.True(t, ok)
	assert.Equal(t, CodeNotFound, appErr.Code)
	assert.Equal(t, http.StatusNotFound, HTTPStatus(wrapped))
	assert.True(t, HasCode(wrapped, CodeNotFound))
}

func TestUnknownErrorIsInternal(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(errors.New("boom")))
	_, ok := AsAppError(errors.New("boom"))
	assert.False(t, ok)
}

func TestTransientUnwraps(t *testing.T) {
	cause := errors.New("connection reset")
	err := NewTransient(cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, http.StatusServiceUnavailable, err.HTTPStatus)
}
