// Package orchestrator drives a document through its lifecycle: upload,
// background processing into chunks and vectors, reprocessing and deletion.
// Accepting calls return as soon as the initial state is persisted; the
// pipeline itself runs on a dispatcher and reports only through the
// document's status.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/Knowledge-Ingestion-Platform/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/Knowledge-Ingestion-Platform/internal/ingestion/dispatch"
	"github.com/Adithya-Monish-Kumar-K/Knowledge-Ingestion-Platform/internal/ingestion/extract"
	"github.com/Adithya-Monish-Kumar-K/Knowledge-Ingestion-Platform/internal/ingestion/fingerprint"
	"github.com/Adithya-Monish-Kumar-K/Knowledge-Ingestion-Platform/internal/ingestion/knowledge"
	"github.com/Adithya-Monish-Kumar-K/Knowledge-Ingestion-Platform/internal/ingestion/lock"
	"github.com/Adithya-Monish-Kumar-K/Knowledge-Ingestion-Platform/internal/ingestion/repository"
	"github.com/Adithya-Monish-Kumar-K/Knowledge-Ingestion-Platform/internal/vectorsync"
	apperrors "github.com/Adithya-Monish-Kumar-K/Knowledge-Ingestion-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Knowledge-Ingestion-Platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Knowledge-Ingestion-Platform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Knowledge-Ingestion-Platform/pkg/objectstore"
)

const extractedName = "extracted.txt"

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Chunker splits extracted text into ordered chunks.
type Chunker interface {
	Chunk(ctx context.Context, text string) []string
}

// VectorSync replicates chunk vectors across the configured indexes.
type VectorSync interface {
	Upsert(ctx context.Context, items []vectorsync.Item) ([]string, error)
	Delete(ctx context.Context, ids []string) error
	Query(ctx context.Context, text, indexName string) ([]vectorsync.Hit, error)
}

type Validator interface {
	Validate(req *ingestion.UploadRequest) error
}

// Deps are the collaborators of an Orchestrator. Registrar may be nil.
type Deps struct {
	Store      repository.Store
	Blobs      objectstore.Store
	Extractor  extract.Extractor
	Registrar  knowledge.Registrar
	Chunker    Chunker
	Sync       VectorSync
	Locker     lock.Locker
	Dispatcher dispatch.Dispatcher
	Validator  Validator
}

type Orchestrator struct {
	store        repository.Store
	blobs        objectstore.Store
	extractor    extract.Extractor
	registrar    knowledge.Registrar
	chunker      Chunker
	sync         VectorSync
	locker       lock.Locker
	dispatcher   dispatch.Dispatcher
	validator    Validator
	lockTTL      time.Duration
	stageTimeout time.Duration
	metrics      *metrics.Metrics
	now          func() time.Time
}

type Option func(*Orchestrator)

// WithLockTTL bounds how long a crashed run can keep a document locked.
func WithLockTTL(d time.Duration) Option {
	return func(o *Orchestrator) { o.lockTTL = d }
}

// WithStageTimeout bounds every external call of the pipeline.
func WithStageTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.stageTimeout = d }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

func New(d Deps, opts ...Option) (*Orchestrator, error) {
	switch {
	case d.Store == nil:
		return nil, errors.New("orchestrator: store is required")
	case d.Blobs == nil:
		return nil, errors.New("orchestrator: blob store is required")
	case d.Extractor == nil:
		return nil, errors.New("orchestrator: extractor is required")
	case d.Chunker == nil:
		return nil, errors.New("orchestrator: chunker is required")
	case d.Sync == nil:
		return nil, errors.New("orchestrator: vector sync is required")
	case d.Locker == nil:
		return nil, errors.New("orchestrator: locker is required")
	case d.Dispatcher == nil:
		return nil, errors.New("orchestrator: dispatcher is required")
	case d.Validator == nil:
		return nil, errors.New("orchestrator: validator is required")
	}
	o := &Orchestrator{
		store:        d.Store,
		blobs:        d.Blobs,
		extractor:    d.Extractor,
		registrar:    d.Registrar,
		chunker:      d.Chunker,
		sync:         d.Sync,
		locker:       d.Locker,
		dispatcher:   d.Dispatcher,
		validator:    d.Validator,
		lockTTL:      15 * time.Minute,
		stageTimeout: 2 * time.Minute,
		now:          time.Now,
	}
	if o.registrar == nil {
		o.registrar = knowledge.Noop{}
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Upload validates and deduplicates req, stores the original bytes and
// schedules processing. The returned document is in StatusProcessing, or in
// StatusError when scheduling failed.
func (o *Orchestrator) Upload(ctx context.Context, req ingestion.UploadRequest) (*ingestion.Document, error) {
	if err := o.validator.Validate(&req); err != nil {
		o.metrics.Upload("invalid")
		return nil, err
	}

	fp := fingerprint.Of(req.Data)
	existing, err := o.store.FindByFingerprint(ctx, fp)
	switch {
	case err == nil:
		o.metrics.Upload("duplicate")
		return nil, &apperrors.DuplicateError{
			ExistingID:      existing.ID,
			ExistingOwnerID: existing.UserID,
			ExistingName:    existing.Name,
		}
	case !errors.Is(err, apperrors.ErrDocumentNotFound):
		o.metrics.Upload("failed")
		return nil, fmt.Errorf("checking for duplicate content: %w", err)
	}

	id := uuid.NewString()
	doc := &ingestion.Document{
		ID:          id,
		Name:        req.Name,
		MediaType:   req.MediaType,
		SizeBytes:   int64(len(req.Data)),
		StoragePath: originalKey(req.UserID, id, req.Name),
		Fingerprint: fp,
		Status:      ingestion.StatusUploading,
		UserID:      req.UserID,
		CategoryID:  req.CategoryID,
	}
	if err := o.store.CreateDocument(ctx, doc); err != nil {
		if errors.Is(err, apperrors.ErrDuplicateContent) {
			o.metrics.Upload("duplicate")
			return nil, err
		}
		o.metrics.Upload("failed")
		return nil, fmt.Errorf("creating document record: %w", err)
	}

	ctx = logger.WithDocumentID(ctx, id)
	log := logger.FromContext(ctx).With("component", "orchestrator")

	if err := o.blobs.Put(ctx, doc.StoragePath, req.Data, req.MediaType); err != nil {
		if _, delErr := o.store.DeleteDocument(context.WithoutCancel(ctx), id); delErr != nil {
			log.Error("failed to remove record after storage failure", "error", delErr)
		}
		o.metrics.Upload("failed")
		return nil, fmt.Errorf("storing upload: %w", err)
	}

	token := o.acquire(ctx, id)
	if err := o.store.UpdateStatus(ctx, id, ingestion.StatusProcessing, "", ingestion.StatusUploading); err != nil {
		o.release(ctx, id, token)
		o.metrics.Upload("failed")
		return nil, fmt.Errorf("marking document processing: %w", err)
	}
	doc.Status = ingestion.StatusProcessing

	o.schedule(ctx, doc, ingestion.ReasonUpload, token)
	o.metrics.Upload("accepted")
	log.Info("upload accepted",
		"user_id", doc.UserID,
		"size_bytes", doc.SizeBytes,
		"media_type", doc.MediaType,
	)
	return doc, nil
}

// Reprocess re-runs the pipeline of a ready or failed document. It is
// rejected with ErrReprocessInFlight while another run owns the document.
func (o *Orchestrator) Reprocess(ctx context.Context, userID, id string) (*ingestion.Document, error) {
	doc, err := o.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if doc.Status == ingestion.StatusUploading || doc.Status == ingestion.StatusProcessing {
		return nil, fmt.Errorf("%w: %s is %s", apperrors.ErrReprocessInFlight, id, doc.Status)
	}

	token, ok, err := o.locker.Acquire(ctx, lock.Key(id), o.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("locking document %s: %w", id, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrReprocessInFlight, id)
	}

	err = o.store.UpdateStatus(ctx, id, ingestion.StatusProcessing, "", ingestion.StatusReady, ingestion.StatusError)
	if err != nil {
		o.release(ctx, id, token)
		if errors.Is(err, repository.ErrStatusConflict) {
			return nil, fmt.Errorf("%w: %s", apperrors.ErrReprocessInFlight, id)
		}
		return nil, fmt.Errorf("marking document processing: %w", err)
	}
	doc.Status = ingestion.StatusProcessing
	doc.ErrorMessage = ""

	ctx = logger.WithDocumentID(ctx, id)
	o.schedule(ctx, doc, ingestion.ReasonReprocess, token)
	logger.FromContext(ctx).Info("reprocess scheduled", "component", "orchestrator", "user_id", userID)
	return doc, nil
}

// Delete removes the document, its chunks, their vectors, its knowledge file
// and its blobs. Deleting a missing document succeeds.
func (o *Orchestrator) Delete(ctx context.Context, userID, id string) error {
	doc, err := o.Get(ctx, userID, id)
	if errors.Is(err, apperrors.ErrDocumentNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	ctx = logger.WithDocumentID(ctx, id)
	log := logger.FromContext(ctx).With("component", "orchestrator")

	chunks, err := o.store.ListChunks(ctx, id)
	if err != nil {
		return fmt.Errorf("listing chunks: %w", err)
	}
	seen := vectorIDs(chunks)
	if err := o.sync.Delete(ctx, seen); err != nil {
		return fmt.Errorf("deleting vectors: %w", err)
	}

	removed, err := o.store.DeleteDocument(ctx, id)
	if err != nil && !errors.Is(err, apperrors.ErrDocumentNotFound) {
		return fmt.Errorf("deleting document record: %w", err)
	}
	refs := []string{doc.FileReference}
	if removed != nil {
		// Chunk rows a concurrent pipeline persisted after ListChunks.
		if late := missing(vectorIDs(removed.Chunks), seen); len(late) > 0 {
			if err := o.sync.Delete(context.WithoutCancel(ctx), late); err != nil {
				log.Error("failed to delete vectors of late chunks", "chunks", len(late), "error", err)
			}
		}
		if removed.FileReference != doc.FileReference {
			refs = append(refs, removed.FileReference)
		}
	}

	for _, ref := range refs {
		if err := o.registrar.Unregister(ctx, ref); err != nil {
			log.Warn("failed to unregister knowledge file", "ref", ref, "error", err)
		}
	}
	for _, key := range []string{doc.StoragePath, extractedKey(doc)} {
		if err := o.blobs.Delete(ctx, key); err != nil {
			log.Warn("failed to delete blob", "key", key, "error", err)
		}
	}
	log.Info("document deleted", "chunks", len(seen))
	return nil
}

// Get returns the document when it belongs to userID. An empty userID skips
// the ownership check. Ids that are not UUIDs name no document.
func (o *Orchestrator) Get(ctx context.Context, userID, id string) (*ingestion.Document, error) {
	if err := uuid.Validate(id); err != nil {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrDocumentNotFound, id)
	}
	doc, err := o.store.GetDocument(ctx, id)
	if err != nil {
		if errors.Is(err, apperrors.ErrDocumentNotFound) {
			return nil, fmt.Errorf("%w: %s", apperrors.ErrDocumentNotFound, id)
		}
		return nil, fmt.Errorf("loading document %s: %w", id, err)
	}
	if userID != "" && doc.UserID != userID {
		return nil, fmt.Errorf("%w: document %s belongs to another user", apperrors.ErrForbidden, id)
	}
	return doc, nil
}

func (o *Orchestrator) List(ctx context.Context, userID string) ([]ingestion.Document, error) {
	docs, err := o.store.ListDocuments(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	if docs == nil {
		docs = []ingestion.Document{}
	}
	return docs, nil
}

// Query searches one index for the text of req.
func (o *Orchestrator) Query(ctx context.Context, req ingestion.QueryRequest) ([]ingestion.QueryHit, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, apperrors.New(apperrors.ErrInvalidInput, 400, "query must not be empty")
	}
	hits, err := o.sync.Query(ctx, req.Query, req.Index)
	if err != nil {
		return nil, err
	}
	out := make([]ingestion.QueryHit, 0, len(hits))
	for _, h := range hits {
		out = append(out, ingestion.QueryHit{
			ID:           h.ID,
			Score:        h.Score,
			Text:         h.Text,
			DocumentID:   h.Metadata.DocumentID,
			DocumentName: h.Metadata.DocumentName,
			ChunkIndex:   h.Metadata.ChunkIndex,
			Legacy:       h.Metadata.Kind == vectorsync.KindLegacy,
		})
	}
	return out, nil
}

// schedule dispatches a run. A dispatch failure is recorded on the document
// instead of being returned, like any other pipeline failure.
func (o *Orchestrator) schedule(ctx context.Context, doc *ingestion.Document, reason ingestion.JobReason, token string) {
	job := ingestion.Job{
		DocumentID: doc.ID,
		Reason:     reason,
		LockToken:  token,
		EnqueuedAt: o.now().UTC(),
	}
	err := o.dispatcher.Dispatch(ctx, job)
	if err == nil {
		return
	}
	log := logger.FromContext(ctx).With("component", "orchestrator")
	log.Error("failed to schedule pipeline run", "reason", reason, "error", err)
	msg := "scheduling failed: " + err.Error()
	if uerr := o.store.UpdateStatus(context.WithoutCancel(ctx), doc.ID, ingestion.StatusError, msg); uerr != nil {
		log.Error("failed to record scheduling failure", "error", uerr)
	}
	o.release(ctx, doc.ID, token)
	o.metrics.PipelineRun("unscheduled")
	doc.Status = ingestion.StatusError
	doc.ErrorMessage = msg
}

// acquire takes the lock of a fresh document. Lock backend failures are
// logged; the status guard still keeps reprocess away from the run.
func (o *Orchestrator) acquire(ctx context.Context, id string) string {
	token, ok, err := o.locker.Acquire(ctx, lock.Key(id), o.lockTTL)
	if err != nil || !ok {
		logger.FromContext(ctx).Warn("could not lock new document",
			"component", "orchestrator",
			"acquired", ok,
			"error", err,
		)
		return ""
	}
	return token
}

// claim takes the document for one run of job. A backend failure is logged
// and the run proceeds unlocked with the status guard alone.
func (o *Orchestrator) claim(ctx context.Context, job ingestion.Job) (string, bool) {
	token, ok, err := o.locker.Claim(ctx, lock.Key(job.DocumentID), job.LockToken, o.lockTTL)
	if err != nil {
		logger.FromContext(ctx).Warn("could not claim document lock", "component", "orchestrator", "error", err)
		return "", true
	}
	return token, ok
}

func (o *Orchestrator) release(ctx context.Context, id, token string) {
	if token == "" {
		return
	}
	if err := o.locker.Release(context.WithoutCancel(ctx), lock.Key(id), token); err != nil {
		logger.FromContext(ctx).Warn("failed to release document lock", "component", "orchestrator", "error", err)
	}
}

func originalKey(userID, docID, name string) string {
	safe := pathSegment(path.Base(name))
	if safe == "" {
		safe = "original"
	}
	if safe == extractedName {
		safe = "original-" + safe
	}
	return path.Join(pathSegment(userID), docID, safe)
}

func extractedKey(doc *ingestion.Document) string {
	if doc.ExtractedPath != "" {
		return doc.ExtractedPath
	}
	return path.Join(pathSegment(doc.UserID), doc.ID, extractedName)
}

// pathSegment makes s safe to use as one storage key segment.
func pathSegment(s string) string {
	return strings.Trim(unsafeNameChars.ReplaceAllString(s, "_"), ".")
}

func vectorIDs(chunks []ingestion.Chunk) []string {
	ids := make([]string, 0, len(chunks))
	for _, c := range chunks {
		ids = append(ids, c.VectorID)
	}
	return ids
}

// missing returns the ids in all that are not in seen.
func missing(all, seen []string) []string {
	known := make(map[string]struct{}, len(seen))
	for _, id := range seen {
		known[id] = struct{}{}
	}
	var out []string
	for _, id := range all {
		if _, ok := known[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}
