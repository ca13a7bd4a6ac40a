package kafka

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	DocumentID string `json:"document_id"`
	Attempt    int    `json:"attempt"`
}

func TestDecodeJSON(t *testing.T) {
	got, err := DecodeJSON[payload]([]byte(`{"document_id":"doc-1","attempt":2}`))
	require.NoError(t, err)
	assert.Equal(t, payload{DocumentID: "doc-1", Attempt: 2}, got)
}

func TestDecodeJSON_PoisonMessage(t *testing.T) {
	_, err := DecodeJSON[payload]([]byte(`not json`))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPoison)
}
