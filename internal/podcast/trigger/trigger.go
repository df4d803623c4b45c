// Package trigger publishes stage messages to the pipeline exchange. A
// persisted queue message is the only way one stage hands a job to the
// next; there are no in-process continuations.
package trigger

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/podforge/podforge-be/internal/podcast/domain"
	"github.com/podforge/podforge-be/shared/rabbitmq"
)

// Publisher sends stage messages through the shared RabbitMQ client.
type Publisher struct {
	mq     *rabbitmq.Client
	logger *slog.Logger
}

func NewPublisher(mq *rabbitmq.Client, logger *slog.Logger) *Publisher {
	return &Publisher{mq: mq, logger: logger}
}

// PublishStage enqueues a stage message for the job. Failure comes back as
// a TriggerError: the caller's own work is already persisted, but the job
// will not progress without intervention.
func (p *Publisher) PublishStage(ctx context.Context, stage domain.Stage, jobID string) error {
	body, err := json.Marshal(domain.StageMessage{JobID: jobID, Stage: stage})
	if err != nil {
		return &domain.TriggerError{Err: fmt.Errorf("failed to encode stage message: %w", err)}
	}

	if err := p.mq.PublishWithRetry(ctx, stage.RoutingKey(), body, "application/json"); err != nil {
		return &domain.TriggerError{Err: err}
	}

	p.logger.Debug("Stage message published",
		slog.String("job_id", jobID),
		slog.String("stage", string(stage)),
	)

	return nil
}
