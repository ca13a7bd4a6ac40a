package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/Knowledge-Ingestion-Platform/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/Knowledge-Ingestion-Platform/internal/ingestion/knowledge"
	"github.com/Adithya-Monish-Kumar-K/Knowledge-Ingestion-Platform/internal/vectorsync"
	apperrors "github.com/Adithya-Monish-Kumar-K/Knowledge-Ingestion-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Knowledge-Ingestion-Platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Knowledge-Ingestion-Platform/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/Knowledge-Ingestion-Platform/pkg/tracing"
)

// errDocumentGone ends a run whose document was deleted underneath it.
var errDocumentGone = errors.New("document deleted during processing")

const (
	stageExtract       = "extract"
	stagePersistText   = "persist_text"
	stageRegister      = "register"
	stageChunk         = "chunk"
	stageCleanup       = "cleanup"
	stageUpsert        = "upsert"
	stagePersistChunks = "persist_chunks"
)

// Process runs the pipeline for job. It is the dispatcher's handler. Stage
// failures end up in the document's status and are not returned; only
// failures to load or update the document itself are.
func (o *Orchestrator) Process(ctx context.Context, job ingestion.Job) error {
	ctx = logger.WithDocumentID(ctx, job.DocumentID)
	log := logger.FromContext(ctx).With("component", "orchestrator")

	runToken, ok := o.claim(ctx, job)
	if !ok {
		log.Info("document owned by another run, skipping job", "reason", job.Reason)
		o.metrics.PipelineRun("skipped")
		return nil
	}
	defer o.release(ctx, job.DocumentID, runToken)

	doc, err := o.store.GetDocument(ctx, job.DocumentID)
	if errors.Is(err, apperrors.ErrDocumentNotFound) {
		log.Info("document deleted before processing started")
		o.metrics.PipelineRun("abandoned")
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading document %s: %w", job.DocumentID, err)
	}
	if doc.Status != ingestion.StatusProcessing {
		log.Warn("skipping job for document not in processing", "status", doc.Status, "reason", job.Reason)
		return nil
	}

	start := time.Now()
	log.Info("pipeline started", "reason", job.Reason, "queued_for", start.Sub(job.EnqueuedAt).String())
	ctx, span := tracing.Start(ctx, "pipeline", doc.ID)
	span.SetAttr("reason", string(job.Reason))
	chunks, err := o.run(ctx, doc)
	span.SetAttr("chunks", chunks)
	span.End(err)
	span.Log(ctx, log)

	// The run's own context may already be spent; status updates still land.
	final := context.WithoutCancel(ctx)
	switch {
	case errors.Is(err, errDocumentGone):
		log.Info("document deleted during processing, run abandoned")
		o.metrics.PipelineRun("abandoned")
		return nil
	case err != nil:
		log.Error("pipeline failed", "error", err, "duration", time.Since(start).String())
		o.metrics.PipelineRun(string(ingestion.StatusError))
		return o.finish(final, doc.ID, ingestion.StatusError, err.Error())
	}

	o.metrics.PipelineRun(string(ingestion.StatusReady))
	log.Info("pipeline finished",
		"chunks", chunks,
		"duration", time.Since(start).String(),
	)
	return o.finish(final, doc.ID, ingestion.StatusReady, "")
}

func (o *Orchestrator) finish(ctx context.Context, id string, status ingestion.Status, msg string) error {
	err := o.store.UpdateStatus(ctx, id, status, msg, ingestion.StatusProcessing)
	if errors.Is(err, apperrors.ErrDocumentNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("recording status %s for %s: %w", status, id, err)
	}
	return nil
}

// run executes the stages in order and returns the number of chunks stored.
func (o *Orchestrator) run(ctx context.Context, doc *ingestion.Document) (int, error) {
	log := logger.FromContext(ctx).With("component", "orchestrator")

	var text string
	err := o.stage(ctx, stageExtract, func(ctx context.Context) error {
		data, err := o.blobs.Get(ctx, doc.StoragePath)
		if err != nil {
			return fmt.Errorf("reading original: %w", err)
		}
		text, err = o.extractor.Extract(ctx, data, doc.MediaType)
		return err
	})
	if err != nil {
		return 0, err
	}

	textKey := path.Join(pathSegment(doc.UserID), doc.ID, extractedName)
	err = o.stage(ctx, stagePersistText, func(ctx context.Context) error {
		if err := o.blobs.Put(ctx, textKey, []byte(text), "text/plain; charset=utf-8"); err != nil {
			return fmt.Errorf("storing extracted text: %w", err)
		}
		if err := o.store.SetExtractedPath(ctx, doc.ID, textKey); err != nil {
			if errors.Is(err, apperrors.ErrDocumentNotFound) {
				o.discardBlob(ctx, textKey)
				return errDocumentGone
			}
			return fmt.Errorf("recording extracted text: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	doc.ExtractedPath = textKey

	if err := o.register(ctx, doc, text); err != nil {
		return 0, err
	}

	var pieces []string
	err = o.stage(ctx, stageChunk, func(ctx context.Context) error {
		pieces = o.chunker.Chunk(ctx, text)
		return nil
	})
	if err != nil {
		return 0, err
	}
	o.metrics.Chunks(len(pieces))

	// Vectors of the previous run go first so a reprocess never leaves two
	// generations of the same content reachable.
	err = o.stage(ctx, stageCleanup, func(ctx context.Context) error {
		old, err := o.store.ListChunks(ctx, doc.ID)
		if err != nil {
			return fmt.Errorf("listing previous chunks: %w", err)
		}
		if len(old) == 0 {
			return nil
		}
		if err := o.sync.Delete(ctx, vectorIDs(old)); err != nil {
			return fmt.Errorf("deleting previous vectors: %w", err)
		}
		if err := o.store.DeleteChunks(ctx, doc.ID); err != nil {
			return fmt.Errorf("deleting previous chunks: %w", err)
		}
		log.Debug("previous chunks removed", "chunks", len(old))
		return nil
	})
	if err != nil {
		return 0, err
	}

	items := make([]vectorsync.Item, len(pieces))
	for i, p := range pieces {
		items[i] = vectorsync.Item{
			ID:   vectorsync.ChunkID(doc.ID, i),
			Text: p,
			Metadata: vectorsync.ChunkMetadata{
				DocumentID:   doc.ID,
				ChunkIndex:   i,
				DocumentName: doc.Name,
				MediaType:    doc.MediaType,
				UserID:       doc.UserID,
				CategoryID:   doc.CategoryID,
			},
		}
	}
	var ids []string
	err = o.stage(ctx, stageUpsert, func(ctx context.Context) error {
		var err error
		ids, err = o.sync.Upsert(ctx, items)
		return err
	})
	if err != nil {
		return 0, err
	}

	rows := make([]ingestion.Chunk, len(pieces))
	for i, p := range pieces {
		rows[i] = ingestion.Chunk{
			ID:       uuid.NewString(),
			Index:    i,
			Content:  p,
			VectorID: ids[i],
		}
	}
	err = o.stage(ctx, stagePersistChunks, func(ctx context.Context) error {
		return o.store.ReplaceChunks(ctx, doc.ID, rows)
	})
	if err != nil {
		// Nothing references the new vectors, so they must not stay reachable.
		if derr := o.sync.Delete(context.WithoutCancel(ctx), ids); derr != nil {
			log.Error("failed to delete unreferenced vectors", "chunks", len(ids), "error", derr)
		}
		if errors.Is(err, apperrors.ErrDocumentNotFound) {
			return 0, errDocumentGone
		}
		return 0, err
	}
	return len(rows), nil
}

// register stores the extracted text as a knowledge file. Failures are
// logged only; a document deleted meanwhile ends the run.
func (o *Orchestrator) register(ctx context.Context, doc *ingestion.Document, text string) error {
	log := logger.FromContext(ctx).With("component", "orchestrator", "stage", stageRegister)
	start := time.Now()
	ctx, span := tracing.StartChild(ctx, stageRegister)
	defer func() {
		o.metrics.Stage(stageRegister, time.Since(start).Seconds())
		span.SetAttr("ref", doc.FileReference)
		span.End(nil)
	}()

	if doc.FileReference != "" {
		err := resilience.WithTimeout(ctx, o.stageTimeout, stageRegister, func(ctx context.Context) error {
			return o.registrar.Unregister(ctx, doc.FileReference)
		})
		if err != nil {
			log.Warn("failed to unregister previous knowledge file", "ref", doc.FileReference, "error", err)
		}
	}

	var ref string
	err := resilience.WithTimeout(ctx, o.stageTimeout, stageRegister, func(ctx context.Context) error {
		var err error
		ref, err = o.registrar.Register(ctx, knowledge.File{
			DocumentID: doc.ID,
			Name:       doc.Name,
			UserID:     doc.UserID,
			Text:       text,
		})
		return err
	})
	if err != nil {
		log.Warn("knowledge file registration failed", "error", err)
		ref = ""
	}
	if ref == "" && doc.FileReference == "" {
		return nil
	}

	if err := o.store.SetFileReference(ctx, doc.ID, ref); err != nil {
		if errors.Is(err, apperrors.ErrDocumentNotFound) {
			if uerr := o.registrar.Unregister(context.WithoutCancel(ctx), ref); uerr != nil {
				log.Warn("failed to unregister knowledge file of deleted document", "ref", ref, "error", uerr)
			}
			return errDocumentGone
		}
		log.Warn("failed to record knowledge file reference", "ref", ref, "error", err)
		return nil
	}
	doc.FileReference = ref
	return nil
}

// stage runs fn under the stage timeout and records its duration. Errors are
// prefixed with the stage name so the stored message says where it failed.
func (o *Orchestrator) stage(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	start := time.Now()
	ctx, span := tracing.StartChild(ctx, name)
	err := resilience.WithTimeout(ctx, o.stageTimeout, name, fn)
	span.End(err)
	o.metrics.Stage(name, time.Since(start).Seconds())
	switch {
	case err == nil:
		return nil
	case errors.Is(err, errDocumentGone), errors.Is(err, apperrors.ErrTimeout):
		return err
	}
	return fmt.Errorf("%s: %w", name, err)
}

func (o *Orchestrator) discardBlob(ctx context.Context, key string) {
	if err := o.blobs.Delete(context.WithoutCancel(ctx), key); err != nil {
		logger.FromContext(ctx).Warn("failed to delete blob", "component", "orchestrator", "key", key, "error", err)
	}
}
