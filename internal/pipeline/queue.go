package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

const (
	// StreamName is the JetStream work-queue stream for generation tasks.
	StreamName = "PICTURA_TASKS"

	// SubjectEmbed carries embedding generation tasks.
	SubjectEmbed = "pictura.tasks.embed"
)

// GenerateTask is the queue payload: the id of the record to embed.
type GenerateTask struct {
	ImageID  uuid.UUID `json:"image_id"`
	Enqueued time.Time `json:"enqueued"`
}

// EnsureStream creates the task stream if it does not exist. Idempotent.
func EnsureStream(js nats.JetStreamContext) error {
	_, err := js.AddStream(&nats.StreamConfig{
		Name:      StreamName,
		Subjects:  []string{SubjectEmbed},
		Retention: nats.WorkQueuePolicy,
		Storage:   nats.FileStorage,
	})
	if err != nil && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
		return fmt.Errorf("creating task stream: %w", err)
	}
	return nil
}

// Publisher schedules generation tasks. The component that commits a new
// record calls EnqueueGenerate explicitly after the commit; there is no
// implicit hook chain, and nothing is scheduled for a record that might
// still roll back.
type Publisher struct {
	js     nats.JetStreamContext
	logger *slog.Logger
}

// NewPublisher creates a task publisher.
func NewPublisher(js nats.JetStreamContext, logger *slog.Logger) *Publisher {
	return &Publisher{js: js, logger: logger}
}

// EnqueueGenerate schedules embedding generation for the given record.
func (p *Publisher) EnqueueGenerate(_ context.Context, id uuid.UUID) error {
	data, err := json.Marshal(GenerateTask{ImageID: id, Enqueued: time.Now()})
	if err != nil {
		return fmt.Errorf("marshaling task: %w", err)
	}
	if _, err := p.js.Publish(SubjectEmbed, data); err != nil {
		return fmt.Errorf("publishing task for %s: %w", id, err)
	}
	p.logger.Debug("generation task enqueued", "id", id)
	return nil
}
