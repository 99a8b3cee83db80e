package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// WorkerConfig tunes the background worker.
type WorkerConfig struct {
	// TaskTimeout bounds one generation run, provider retries included.
	TaskTimeout time.Duration

	// SweepInterval is how often the worker re-enqueues records that
	// have a file but no embedding (failed or missed generations).
	SweepInterval time.Duration

	// SweepBatchSize caps how many records one sweep re-enqueues.
	SweepBatchSize int
}

// DefaultWorkerConfig returns the standard worker tuning.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		TaskTimeout:    30 * time.Second,
		SweepInterval:  5 * time.Minute,
		SweepBatchSize: 50,
	}
}

// Worker consumes generation tasks from the queue and runs the periodic
// backfill sweep. Task errors are logged and swallowed; a failed
// generation leaves the record without an embedding until the sweep
// retries it, and never surfaces to a user.
type Worker struct {
	js        nats.JetStreamContext
	generator *Generator
	records   Records
	publisher *Publisher
	config    WorkerConfig
	logger    *slog.Logger
	sub       *nats.Subscription
}

// NewWorker creates a Worker.
func NewWorker(js nats.JetStreamContext, generator *Generator, records Records, publisher *Publisher, cfg WorkerConfig, logger *slog.Logger) *Worker {
	return &Worker{
		js:        js,
		generator: generator,
		records:   records,
		publisher: publisher,
		config:    cfg,
		logger:    logger,
	}
}

// Start subscribes to the task queue and launches the sweep loop. Both
// run until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) error {
	if err := EnsureStream(w.js); err != nil {
		return err
	}

	sub, err := w.js.QueueSubscribe(SubjectEmbed, "pictura-embed-workers", w.handleTask,
		nats.Durable("pictura-embed-workers"),
		nats.AckExplicit(),
		nats.MaxDeliver(3),
		nats.ManualAck(),
	)
	if err != nil {
		return fmt.Errorf("subscribing to task queue: %w", err)
	}
	w.sub = sub
	w.logger.Info("generation worker started", "subject", SubjectEmbed)

	go w.sweepLoop(ctx)
	return nil
}

// Stop unsubscribes from the task queue.
func (w *Worker) Stop() {
	if w.sub != nil {
		_ = w.sub.Unsubscribe()
	}
}

func (w *Worker) handleTask(msg *nats.Msg) {
	var task GenerateTask
	if err := json.Unmarshal(msg.Data, &task); err != nil {
		w.logger.Warn("malformed generation task, dropping", "error", err)
		_ = msg.Ack()
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.config.TaskTimeout)
	defer cancel()

	if err := w.generator.Generate(ctx, task.ImageID); err != nil {
		// Terminal to the task; the sweep picks the record up again.
		w.logger.Warn("embedding generation failed", "id", task.ImageID, "error", err)
	}
	_ = msg.Ack()
}

// sweepLoop periodically re-enqueues records that still lack embeddings.
func (w *Worker) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(w.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("generation worker shutting down")
			return
		case <-ticker.C:
			if err := w.sweep(ctx); err != nil {
				w.logger.Warn("embedding sweep failed", "error", err)
			}
		}
	}
}

func (w *Worker) sweep(ctx context.Context) error {
	ids, err := w.records.ImagesWithoutEmbeddings(ctx, w.config.SweepBatchSize)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	w.logger.Info("re-enqueueing records without embeddings", "count", len(ids))
	for _, id := range ids {
		if err := w.publisher.EnqueueGenerate(ctx, id); err != nil {
			w.logger.Warn("sweep enqueue failed", "id", id, "error", err)
		}
	}
	return nil
}
