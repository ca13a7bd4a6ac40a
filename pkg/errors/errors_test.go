package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"app error wins", New(ErrInternal, http.StatusTeapot, "brew"), http.StatusTeapot},
		{"not found", fmt.Errorf("loading: %w", ErrDocumentNotFound), http.StatusNotFound},
		{"duplicate", &DuplicateError{ExistingID: "d1"}, http.StatusConflict},
		{"in flight", ErrReprocessInFlight, http.StatusConflict},
		{"invalid", ErrInvalidInput, http.StatusBadRequest},
		{"unauthorized", ErrUnauthorized, http.StatusUnauthorized},
		{"forbidden", ErrForbidden, http.StatusForbidden},
		{"sync", fmt.Errorf("upserting: %w", ErrSyncFailed), http.StatusBadGateway},
		{"timeout", ErrTimeout, http.StatusServiceUnavailable},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatusCode(tt.err))
		})
	}
}

func TestDuplicateError_Unwrap(t *testing.T) {
	err := fmt.Errorf("uploading: %w", &DuplicateError{ExistingID: "abc", ExistingName: "a.pdf"})

	assert.True(t, errors.Is(err, ErrDuplicateContent))

	var dup *DuplicateError
	if assert.True(t, errors.As(err, &dup)) {
		assert.Equal(t, "abc", dup.ExistingID)
	}
	assert.Contains(t, err.Error(), "a.pdf")
}
