package validator

import (
	"errors"
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/Knowledge-Ingestion-Platform/internal/ingestion"
	apperrors "github.com/Adithya-Monish-Kumar-K/Knowledge-Ingestion-Platform/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newValidator() *Upload {
	return NewUpload(16, []string{"text/plain", "application/pdf"})
}

func TestUpload_Valid(t *testing.T) {
	req := &ingestion.UploadRequest{
		Name:      "  notes.txt ",
		MediaType: "text/plain; charset=utf-8",
		Data:      []byte("hello"),
		UserID:    "u1",
	}
	require.NoError(t, newValidator().Validate(req))
	assert.Equal(t, "text/plain", req.MediaType)
	assert.Equal(t, "notes.txt", req.Name)
}

func TestUpload_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		req   ingestion.UploadRequest
		field string
	}{
		{"missing name", ingestion.UploadRequest{MediaType: "text/plain", Data: []byte("x"), UserID: "u"}, "name"},
		{"long name", ingestion.UploadRequest{Name: strings.Repeat("n", 256), MediaType: "text/plain", Data: []byte("x"), UserID: "u"}, "name"},
		{"empty file", ingestion.UploadRequest{Name: "a", MediaType: "text/plain", UserID: "u"}, "file"},
		{"too large", ingestion.UploadRequest{Name: "a", MediaType: "text/plain", Data: make([]byte, 17), UserID: "u"}, "file"},
		{"bad media type", ingestion.UploadRequest{Name: "a", MediaType: "image/gif", Data: []byte("x"), UserID: "u"}, "media_type"},
		{"malformed media type", ingestion.UploadRequest{Name: "a", MediaType: "", Data: []byte("x"), UserID: "u"}, "media_type"},
		{"no owner", ingestion.UploadRequest{Name: "a", MediaType: "text/plain", Data: []byte("x")}, "user_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := newValidator().Validate(&tt.req)
			require.Error(t, err)

			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Contains(t, verr.Fields, tt.field)
			assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
		})
	}
}

func TestValidationError_StableMessage(t *testing.T) {
	err := &ValidationError{Fields: map[string]string{"b": "two", "a": "one"}}
	assert.Equal(t, "a:one; b:two", err.Error())
}
