package vectorsync

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// MetadataVersion is written into every encoded ChunkMetadata.
const MetadataVersion = 1

type MetadataKind string

const (
	KindStructured MetadataKind = "structured"
	// KindLegacy marks metadata synthesized from an unparseable stored field,
	// typically a plain string written before metadata was structured.
	KindLegacy MetadataKind = "legacy"
)

// ChunkMetadata is the provenance attached to every vector record. It is
// stored in the index as a JSON string so no schema change is needed on the
// remote side. Unknown JSON fields are ignored on decode.
type ChunkMetadata struct {
	Version      int    `json:"v"`
	DocumentID   string `json:"documentId"`
	ChunkIndex   int    `json:"chunkIndex"`
	DocumentName string `json:"documentName,omitempty"`
	MediaType    string `json:"mediaType,omitempty"`
	UserID       string `json:"userId,omitempty"`
	CategoryID   string `json:"categoryId,omitempty"`

	Kind MetadataKind `json:"-"`
	// Raw holds the stored field verbatim when Kind is KindLegacy.
	Raw string `json:"-"`
}

// EncodeMetadata serialises m with the current version stamp.
func EncodeMetadata(m ChunkMetadata) (string, error) {
	m.Version = MetadataVersion
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encoding chunk metadata: %w", err)
	}
	return string(b), nil
}

// DecodeMetadata parses a stored metadata field. It never fails: anything
// that is not a JSON object naming a document falls back to a legacy value
// whose DocumentID and ChunkIndex are recovered from the record id when it
// has the "<documentID>#<index>" shape. Otherwise DocumentID is empty and
// ChunkIndex is -1.
func DecodeMetadata(recordID, raw string) ChunkMetadata {
	var m ChunkMetadata
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "{") {
		if err := json.Unmarshal([]byte(trimmed), &m); err == nil && m.DocumentID != "" {
			if m.Version == 0 {
				m.Version = MetadataVersion
			}
			m.Kind = KindStructured
			return m
		}
	}
	docID, idx := SplitChunkID(recordID)
	if idx < 0 {
		docID = ""
	}
	return ChunkMetadata{
		Version:    0,
		DocumentID: docID,
		ChunkIndex: idx,
		Kind:       KindLegacy,
		Raw:        raw,
	}
}

// ChunkID returns the stable remote identifier of chunk index of docID.
func ChunkID(docID string, index int) string {
	return docID + "#" + strconv.Itoa(index)
}

// SplitChunkID reverses ChunkID. Ids of any other shape return the whole id
// as the document id and -1.
func SplitChunkID(id string) (string, int) {
	i := strings.LastIndexByte(id, '#')
	if i <= 0 {
		return id, -1
	}
	n, err := strconv.Atoi(id[i+1:])
	if err != nil || n < 0 {
		return id, -1
	}
	return id[:i], n
}
