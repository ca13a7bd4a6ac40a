// Package dispatch schedules background pipeline runs. The accepting call
// hands a Job to a Dispatcher and returns; the run happens on a worker that
// never shares the caller's context.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/Adithya-Monish-Kumar-K/Knowledge-Ingestion-Platform/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/Knowledge-Ingestion-Platform/pkg/kafka"
)

// Handler runs one job.
type Handler func(ctx context.Context, job ingestion.Job) error

// Dispatcher accepts jobs for asynchronous execution.
type Dispatcher interface {
	Dispatch(ctx context.Context, job ingestion.Job) error
}

// Pool runs jobs on an in-process ants worker pool. A non-positive size
// gives an unbounded pool; otherwise Dispatch blocks while every worker is
// busy.
type Pool struct {
	pool    *ants.Pool
	handler Handler
	timeout time.Duration
	wg      sync.WaitGroup
	logger  *slog.Logger
}

func NewPool(size int, timeout time.Duration, handler Handler) (*Pool, error) {
	if size <= 0 {
		size = -1
	}
	p := &Pool{
		handler: handler,
		timeout: timeout,
		logger:  slog.Default().With("component", "dispatch-pool"),
	}
	pool, err := ants.NewPool(size, ants.WithPanicHandler(func(v any) {
		p.logger.Error("pipeline worker panicked", "panic", v)
	}))
	if err != nil {
		return nil, fmt.Errorf("creating worker pool: %w", err)
	}
	p.pool = pool
	return p, nil
}

// Dispatch submits job. The run gets a fresh context bounded by the pool's
// timeout and keeps the values (request id) of ctx.
func (p *Pool) Dispatch(ctx context.Context, job ingestion.Job) error {
	runCtx := context.WithoutCancel(ctx)
	p.wg.Add(1)
	err := p.pool.Submit(func() {
		defer p.wg.Done()
		ctx, cancel := withTimeout(runCtx, p.timeout)
		defer cancel()
		if err := p.handler(ctx, job); err != nil {
			p.logger.Error("pipeline run failed", "doc_id", job.DocumentID, "reason", job.Reason, "error", err)
		}
	})
	if err != nil {
		p.wg.Done()
		return fmt.Errorf("submitting job for %s: %w", job.DocumentID, err)
	}
	return nil
}

// Running reports the number of busy workers.
func (p *Pool) Running() int {
	return p.pool.Running()
}

// Close waits for in-flight runs until ctx expires, then releases the pool.
func (p *Pool) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = fmt.Errorf("waiting for pipeline runs: %w", ctx.Err())
	}
	p.pool.Release()
	return err
}

// Publisher is the subset of pkg/kafka.Producer used to enqueue jobs.
type Publisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// Kafka enqueues jobs on a topic keyed by document id, so every run of one
// document lands on the same partition.
type Kafka struct {
	publisher Publisher
}

func NewKafka(publisher Publisher) *Kafka {
	return &Kafka{publisher: publisher}
}

func (k *Kafka) Dispatch(ctx context.Context, job ingestion.Job) error {
	if err := k.publisher.Publish(ctx, kafka.Event{Key: job.DocumentID, Value: job}); err != nil {
		return fmt.Errorf("enqueueing job for %s: %w", job.DocumentID, err)
	}
	return nil
}

// MessageHandler adapts handler to a Kafka consumer. Undecodable messages
// are reported as poison so the consumer commits past them.
func MessageHandler(handler Handler, timeout time.Duration) kafka.MessageHandler {
	return func(ctx context.Context, _ []byte, value []byte) error {
		job, err := kafka.DecodeJSON[ingestion.Job](value)
		if err != nil {
			return err
		}
		if job.DocumentID == "" {
			return fmt.Errorf("job without document id: %w", kafka.ErrPoison)
		}
		runCtx, cancel := withTimeout(ctx, timeout)
		defer cancel()
		if err := handler(runCtx, job); err != nil {
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				return fmt.Errorf("job for %s timed out: %w: %w", job.DocumentID, kafka.ErrPoison, err)
			}
			return err
		}
		return nil
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

var (
	_ Dispatcher = (*Pool)(nil)
	_ Dispatcher = (*Kafka)(nil)
)
