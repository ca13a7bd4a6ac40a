// Package extract converts stored uploads into plain text. Failures are
// reported as *Error values naming why the file could not be read.
package extract

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"mime"
	"strings"
	"unicode/utf8"

	"code.sajari.com/docconv"

	apperrors "github.com/Adithya-Monish-Kumar-K/Knowledge-Ingestion-Platform/pkg/errors"
)

// Reason classifies an extraction failure.
type Reason string

const (
	ReasonUnsupported Reason = "unsupported"
	ReasonCorrupt     Reason = "corrupt"
	ReasonEncrypted   Reason = "encrypted"
	ReasonEmpty       Reason = "empty"
)

// Error is an extraction failure. It matches apperrors.ErrExtractionFailed
// with errors.Is.
type Error struct {
	Reason    Reason
	MediaType string
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extracting %s: %s: %v", e.MediaType, e.Reason, e.Err)
	}
	return fmt.Sprintf("extracting %s: %s", e.MediaType, e.Reason)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{apperrors.ErrExtractionFailed}
	}
	return []error{apperrors.ErrExtractionFailed, e.Err}
}

// Extractor turns raw file bytes of a declared media type into text.
type Extractor interface {
	Extract(ctx context.Context, data []byte, mediaType string) (string, error)
}

// plainTypes are decoded directly instead of going through docconv.
var plainTypes = map[string]struct{}{
	"text/plain":    {},
	"text/markdown": {},
	"text/csv":      {},
}

var docconvTypes = map[string]struct{}{
	"application/pdf":    {},
	"application/msword": {},
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   {},
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": {},
	"application/vnd.oasis.opendocument.text":                                   {},
	"application/rtf":  {},
	"text/rtf":         {},
	"text/html":        {},
	"application/xml":  {},
	"text/xml":         {},
}

// Docconv extracts office, PDF and markup formats with code.sajari.com/docconv.
// PDF and legacy Word support depend on the pdftotext and wvText binaries
// being installed.
type Docconv struct {
	readability bool
	logger      *slog.Logger
}

func NewDocconv(readability bool) *Docconv {
	return &Docconv{
		readability: readability,
		logger:      slog.Default().With("component", "extractor"),
	}
}

func (d *Docconv) Extract(ctx context.Context, data []byte, mediaType string) (string, error) {
	mt, _, err := mime.ParseMediaType(mediaType)
	if err != nil {
		return "", &Error{Reason: ReasonUnsupported, MediaType: mediaType, Err: err}
	}
	if len(data) == 0 {
		return "", &Error{Reason: ReasonEmpty, MediaType: mt}
	}

	if _, ok := plainTypes[mt]; ok {
		return decodePlain(data), nil
	}
	if _, ok := docconvTypes[mt]; !ok {
		return "", &Error{Reason: ReasonUnsupported, MediaType: mt}
	}

	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		res, err := docconv.Convert(bytes.NewReader(data), mt, d.readability)
		if err != nil {
			done <- result{err: err}
			return
		}
		done <- result{text: res.Body}
	}()

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("extracting %s: %w", mt, ctx.Err())
	case r := <-done:
		if r.err != nil {
			d.logger.Warn("docconv conversion failed", "media_type", mt, "error", r.err)
			return "", &Error{Reason: classify(r.err), MediaType: mt, Err: r.err}
		}
		return strings.ToValidUTF8(r.text, ""), nil
	}
}

func decodePlain(data []byte) string {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if utf8.Valid(data) {
		return string(data)
	}
	return strings.ToValidUTF8(string(data), "�")
}

func classify(err error) Reason {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "encrypt"), strings.Contains(msg, "password"):
		return ReasonEncrypted
	case strings.Contains(msg, "unsupported"):
		return ReasonUnsupported
	default:
		return ReasonCorrupt
	}
}

var _ Extractor = (*Docconv)(nil)
