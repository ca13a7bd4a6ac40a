package extract

import (
	"context"
	"errors"
	"testing"

	apperrors "github.com/Adithya-Monish-Kumar-K/Knowledge-Ingestion-Platform/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocconv_PlainText(t *testing.T) {
	d := NewDocconv(false)

	text, err := d.Extract(context.Background(), []byte("\xef\xbb\xbfhello world"), "text/plain; charset=utf-8")

	require.NoError(t, err)
	assert.Equal(t, "hello world", text)
}

func TestDocconv_InvalidUTF8IsReplaced(t *testing.T) {
	d := NewDocconv(false)

	text, err := d.Extract(context.Background(), []byte("ab\xffcd"), "text/markdown")

	require.NoError(t, err)
	assert.Equal(t, "ab�cd", text)
}

func TestDocconv_WhitespaceOnlyIsNotAnError(t *testing.T) {
	d := NewDocconv(false)

	text, err := d.Extract(context.Background(), []byte("  \n\n "), "text/plain")

	require.NoError(t, err)
	assert.Equal(t, "  \n\n ", text)
}

func TestDocconv_Failures(t *testing.T) {
	d := NewDocconv(false)
	tests := []struct {
		name      string
		data      []byte
		mediaType string
		reason    Reason
	}{
		{"empty file", nil, "text/plain", ReasonEmpty},
		{"unknown type", []byte("x"), "application/x-tar", ReasonUnsupported},
		{"malformed type", []byte("x"), "", ReasonUnsupported},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.Extract(context.Background(), tt.data, tt.mediaType)

			var extractErr *Error
			require.True(t, errors.As(err, &extractErr))
			assert.Equal(t, tt.reason, extractErr.Reason)
			assert.ErrorIs(t, err, apperrors.ErrExtractionFailed)
			assert.Equal(t, 422, apperrors.HTTPStatusCode(err))
		})
	}
}

func TestDocconv_HTML(t *testing.T) {
	d := NewDocconv(false)

	text, err := d.Extract(context.Background(), []byte("<html><body><p>Quarterly report</p></body></html>"), "text/html")

	require.NoError(t, err)
	assert.Contains(t, text, "Quarterly report")
}

func TestClassify(t *testing.T) {
	assert.Equal(t, ReasonEncrypted, classify(errors.New("PDF is Encrypted")))
	assert.Equal(t, ReasonEncrypted, classify(errors.New("password required")))
	assert.Equal(t, ReasonUnsupported, classify(errors.New("unsupported mimetype")))
	assert.Equal(t, ReasonCorrupt, classify(errors.New("zip: not a valid zip file")))
}
