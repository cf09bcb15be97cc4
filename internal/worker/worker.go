package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tasklink.app/bridge/common/logger"
	"tasklink.app/bridge/internal/queue"
	"tasklink.app/bridge/internal/service"
)

// EventHandler mirrors the dispatcher's entry point. Defined here so the
// worker does not depend on the concrete dispatcher type.
type EventHandler interface {
	Handle(ctx context.Context, eventType string, payload []byte) error
}

type Config struct {
	MaxAttempts int
}

// Worker drains the retry stream. Each envelope is re-dispatched exactly as
// the ingress would have processed it; retryable failures go back to the
// stream with an incremented attempt counter until MaxAttempts, then to the
// DLQ. Terminal failures are acknowledged and dropped.
type Worker struct {
	consumer   *queue.RedisConsumer
	dispatcher EventHandler
	cfg        Config

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

func New(consumer *queue.RedisConsumer, dispatcher EventHandler, cfg Config) *Worker {
	return &Worker{
		consumer:   consumer,
		dispatcher: dispatcher,
		cfg:        cfg,
		stopCh:     make(chan struct{}),
		stoppedCh:  make(chan struct{}),
	}
}

func (w *Worker) Run(ctx context.Context) error {
	defer close(w.stoppedCh)

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "bridge.worker",
	})

	slog.InfoContext(ctx, "worker started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stopCh:
			slog.InfoContext(ctx, "worker stopping")
			return nil
		default:
			if err := w.processOneBatch(ctx); err != nil {
				slog.ErrorContext(ctx, "batch processing error", "error", err)
				// Brief backoff on error
				time.Sleep(time.Second)
			}
		}
	}
}

func (w *Worker) Stop() {
	close(w.stopCh)
	<-w.stoppedCh
}

func (w *Worker) processOneBatch(ctx context.Context) error {
	messages, err := w.consumer.Read(ctx)
	if err != nil {
		return fmt.Errorf("reading from stream: %w", err)
	}

	for _, msg := range messages {
		if err := w.processMessageSafe(ctx, msg); err != nil {
			w.handleFailedMessage(ctx, msg, err)
		}
	}

	return nil
}

func (w *Worker) processMessageSafe(ctx context.Context, msg queue.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "panic recovered in message processing",
				"panic", r,
				"message_id", msg.ID,
				"delivery_id", msg.DeliveryID)
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return w.ProcessMessage(ctx, msg)
}

// ProcessMessage re-dispatches one envelope. Exported so it can be reused by
// the reclaimer.
func (w *Worker) ProcessMessage(ctx context.Context, msg queue.Message) error {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		DeliveryID: &msg.DeliveryID,
		EventType:  &msg.EventType,
		MessageID:  &msg.ID,
	})

	slog.InfoContext(ctx, "processing retry envelope", "attempt", msg.Attempt)

	err := w.dispatcher.Handle(ctx, msg.EventType, msg.Payload)
	switch {
	case err == nil:
		// fall through to ack

	case service.Retryable(err):
		// Not acked here: handleFailedMessage requeues or DLQs, both of
		// which ack as part of the move.
		return err

	default:
		// Terminal: the payload will never process, dropping beats looping.
		slog.ErrorContext(ctx, "dropping envelope with terminal failure",
			"error", err, "attempt", msg.Attempt)
	}

	if ackErr := w.consumer.Ack(ctx, msg); ackErr != nil {
		// Message will be reclaimed and reprocessed; processing is idempotent.
		slog.WarnContext(ctx, "failed to ACK message", "error", ackErr)
	}

	return nil
}

func (w *Worker) handleFailedMessage(ctx context.Context, msg queue.Message, err error) {
	if msg.Attempt >= w.cfg.MaxAttempts {
		slog.ErrorContext(ctx, "max attempts reached, sending to DLQ",
			"error", err,
			"message_id", msg.ID,
			"delivery_id", msg.DeliveryID,
			"attempts", msg.Attempt)
		if dlqErr := w.consumer.SendDLQ(ctx, msg, err.Error()); dlqErr != nil {
			slog.ErrorContext(ctx, "failed to send to DLQ", "error", dlqErr)
		}
		return
	}

	slog.WarnContext(ctx, "requeuing failed message",
		"error", err,
		"message_id", msg.ID,
		"delivery_id", msg.DeliveryID,
		"attempt", msg.Attempt)
	if requeueErr := w.consumer.Requeue(ctx, msg, err.Error()); requeueErr != nil {
		slog.ErrorContext(ctx, "failed to requeue message", "error", requeueErr)
	}
}
