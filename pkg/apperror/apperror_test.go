package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindNotFound, KindOf(New(KindNotFound, "missing")))
	assert.Equal(t, KindInternal, KindOf(errors.New("plain")))

	// Kind survives wrapping with fmt.Errorf.
	wrapped := fmt.Errorf("while handling: %w", New(KindInvalidState, "already decided"))
	assert.Equal(t, KindInvalidState, KindOf(wrapped))
	assert.True(t, IsKind(wrapped, KindInvalidState))
	assert.False(t, IsKind(nil, KindInvalidState))
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("row not found")
	err := Wrap(KindNotFound, "approval request missing", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "approval request missing")
	assert.Contains(t, err.Error(), "row not found")
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{KindUnauthenticated, http.StatusUnauthorized},
		{KindNotFound, http.StatusNotFound},
		{KindInvalidState, http.StatusConflict},
		{KindForbidden, http.StatusForbidden},
		{KindInvalidArgument, http.StatusBadRequest},
		{KindExecution, http.StatusBadGateway},
		{KindInternal, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, HTTPStatus(New(tt.kind, "x")), string(tt.kind))
	}
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(errors.New("plain")))
}
