// Package validator checks uploads before any record is created. It enforces
// presence, size and media-type constraints and returns per-field error
// details.
package validator

import (
	"fmt"
	"mime"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/Knowledge-Ingestion-Platform/internal/ingestion"
	apperrors "github.com/Adithya-Monish-Kumar-K/Knowledge-Ingestion-Platform/pkg/errors"
)

const maxNameLength = 255

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for field := range e.Fields {
		keys = append(keys, field)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, field := range keys {
		parts = append(parts, fmt.Sprintf("%s:%s", field, e.Fields[field]))
	}
	return strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return apperrors.ErrInvalidInput
}

// Upload validates an upload against the size limit and the allowed media
// types. MediaType parameters such as charset are ignored and the request's
// MediaType is normalised in place.
type Upload struct {
	maxBytes int64
	allowed  map[string]struct{}
}

func NewUpload(maxBytes int64, allowedMediaTypes []string) *Upload {
	allowed := make(map[string]struct{}, len(allowedMediaTypes))
	for _, mt := range allowedMediaTypes {
		allowed[strings.ToLower(mt)] = struct{}{}
	}
	return &Upload{maxBytes: maxBytes, allowed: allowed}
}

func (u *Upload) Validate(req *ingestion.UploadRequest) error {
	errs := make(map[string]string)

	name := strings.TrimSpace(req.Name)
	switch {
	case name == "":
		errs["name"] = "file name is required"
	case utf8.RuneCountInString(name) > maxNameLength:
		errs["name"] = fmt.Sprintf("file name must be at most %d characters", maxNameLength)
	}

	switch {
	case len(req.Data) == 0:
		errs["file"] = "file is required and must not be empty"
	case u.maxBytes > 0 && int64(len(req.Data)) > u.maxBytes:
		errs["file"] = fmt.Sprintf("file must be at most %d bytes", u.maxBytes)
	}

	mediaType, _, err := mime.ParseMediaType(req.MediaType)
	if err != nil {
		errs["media_type"] = "media type is missing or malformed"
	} else if _, ok := u.allowed[mediaType]; !ok {
		errs["media_type"] = fmt.Sprintf("media type %s is not supported", mediaType)
	} else {
		req.MediaType = mediaType
	}

	if strings.TrimSpace(req.UserID) == "" {
		errs["user_id"] = "owner is required"
	}

	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	req.Name = name
	return nil
}
