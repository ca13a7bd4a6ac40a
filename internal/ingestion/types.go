// Package ingestion defines the document and chunk records, the background
// job payload, and the request/response shapes of the ingestion pipeline.
package ingestion

import "time"

// Status is the lifecycle state of a Document.
type Status string

const (
	StatusUploading  Status = "uploading"
	StatusProcessing Status = "processing"
	StatusReady      Status = "ready"
	StatusError      Status = "error"
)

// Document is one uploaded artifact. Empty strings stand for unset nullable
// columns.
type Document struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	MediaType     string    `json:"media_type"`
	SizeBytes     int64     `json:"size_bytes"`
	StoragePath   string    `json:"storage_path"`
	ExtractedPath string    `json:"extracted_path,omitempty"`
	FileReference string    `json:"file_reference,omitempty"`
	Fingerprint   string    `json:"fingerprint,omitempty"`
	Status        Status    `json:"status"`
	ErrorMessage  string    `json:"error_message,omitempty"`
	UserID        string    `json:"user_id"`
	CategoryID    string    `json:"category_id,omitempty"`
	ChunkCount    int       `json:"chunk_count"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Chunk is one ordered slice of a document's extracted text. VectorID is its
// identifier in every remote index.
type Chunk struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	Index      int       `json:"chunk_index"`
	Content    string    `json:"content"`
	VectorID   string    `json:"vector_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// JobReason records why a pipeline run was scheduled.
type JobReason string

const (
	ReasonUpload    JobReason = "upload"
	ReasonReprocess JobReason = "reprocess"
)

// Job is the message handed to a dispatcher. LockToken proves ownership of
// the per-document processing lock and is released when the run ends.
type Job struct {
	DocumentID string    `json:"document_id"`
	Reason     JobReason `json:"reason"`
	LockToken  string    `json:"lock_token"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// UploadRequest is an accepted multipart upload.
type UploadRequest struct {
	Name       string
	MediaType  string
	Data       []byte
	UserID     string
	CategoryID string
}

// QueryRequest is the JSON body of the retrieval endpoint.
type QueryRequest struct {
	Query string `json:"query"`
	Index string `json:"index,omitempty"`
}

// QueryHit is one retrieval result.
type QueryHit struct {
	ID           string  `json:"id"`
	Score        float64 `json:"score"`
	Text         string  `json:"text"`
	DocumentID   string  `json:"document_id,omitempty"`
	DocumentName string  `json:"document_name,omitempty"`
	ChunkIndex   int     `json:"chunk_index"`
	Legacy       bool    `json:"legacy,omitempty"`
}
