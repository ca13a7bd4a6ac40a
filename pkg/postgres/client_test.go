package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestIsUniqueViolation(t *testing.T) {
	err := fmt.Errorf("inserting: %w", &pq.Error{Code: "23505", Constraint: "documents_fingerprint_key"})

	assert.True(t, IsUniqueViolation(err, ""))
	assert.True(t, IsUniqueViolation(err, "documents_fingerprint_key"))
	assert.False(t, IsUniqueViolation(err, "documents_pkey"))
	assert.False(t, IsUniqueViolation(errors.New("plain"), ""))
	assert.False(t, IsUniqueViolation(&pq.Error{Code: "23503"}, ""))
}

func TestIsForeignKeyViolation(t *testing.T) {
	assert.True(t, IsForeignKeyViolation(&pq.Error{Code: "23503"}))
	assert.False(t, IsForeignKeyViolation(&pq.Error{Code: "23505"}))
	assert.False(t, IsForeignKeyViolation(nil))
}
