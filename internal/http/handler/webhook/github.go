package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"tasklink.app/bridge/common/id"
	"tasklink.app/bridge/common/logger"
	"tasklink.app/bridge/internal/model"
	"tasklink.app/bridge/internal/queue"
	"tasklink.app/bridge/internal/service"
	"tasklink.app/bridge/internal/store"
)

const (
	headerEvent     = "X-GitHub-Event"
	headerDelivery  = "X-GitHub-Delivery"
	headerSignature = "X-Hub-Signature-256"
)

// EventHandler is the synchronous event processing entry point.
type EventHandler interface {
	Handle(ctx context.Context, eventType string, payload []byte) error
}

// GitHubWebhookHandler is the webhook ingress. It authenticates the delivery,
// records it in the delivery log, processes it synchronously, and on a
// retryable failure hands the envelope to the retry queue while returning 500
// so the sender also redelivers.
type GitHubWebhookHandler struct {
	dispatcher EventHandler
	producer   queue.Producer
	deliveries store.DeliveryStore
	secret     []byte
}

func NewGitHubWebhookHandler(dispatcher EventHandler, producer queue.Producer, deliveries store.DeliveryStore, secret string) *GitHubWebhookHandler {
	return &GitHubWebhookHandler{
		dispatcher: dispatcher,
		producer:   producer,
		deliveries: deliveries,
		secret:     []byte(secret),
	}
}

func (h *GitHubWebhookHandler) HandleEvent(c *gin.Context) {
	ctx := c.Request.Context()

	eventType := c.GetHeader(headerEvent)
	deliveryID := c.GetHeader(headerDelivery)
	if eventType == "" || deliveryID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing event headers"})
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	if !h.verifySignature(c.GetHeader(headerSignature), body) {
		slog.WarnContext(ctx, "webhook signature mismatch", "delivery_id", deliveryID, "event_type", eventType)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		DeliveryID: logger.Ptr(deliveryID),
		EventType:  logger.Ptr(eventType),
	})

	delivery := &model.Delivery{
		ID:         id.New(),
		DeliveryID: deliveryID,
		EventType:  eventType,
		Status:     model.DeliveryStatusReceived,
		ReceivedAt: time.Now().UTC(),
	}
	if err := h.deliveries.Record(ctx, delivery); err != nil {
		// The log is an audit trail, not a precondition; keep processing.
		slog.ErrorContext(ctx, "failed to record delivery", "error", err)
	}

	err = h.dispatcher.Handle(ctx, eventType, body)
	switch {
	case err == nil:
		h.markProcessed(ctx, delivery.ID)
		c.JSON(http.StatusOK, gin.H{"status": "ok"})

	case errors.Is(err, service.ErrUnknownEvent):
		slog.InfoContext(ctx, "event type not supported")
		h.markProcessed(ctx, delivery.ID)
		c.JSON(http.StatusOK, gin.H{"status": "ok", "message": "event type not supported"})

	case service.Retryable(err):
		slog.WarnContext(ctx, "processing failed, enqueueing for retry", "error", err)
		h.markFailed(ctx, delivery.ID, err)
		if qerr := h.producer.Enqueue(ctx, model.RetryEnvelope{
			EventType:  eventType,
			DeliveryID: deliveryID,
			Payload:    body,
			Attempt:    1,
		}); qerr != nil {
			slog.ErrorContext(ctx, "failed to enqueue retry envelope", "error", qerr)
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "processing failed"})

	default:
		// Terminal failure: acknowledge so the sender does not redeliver a
		// payload that will never process.
		slog.ErrorContext(ctx, "terminal processing failure", "error", err)
		h.markFailed(ctx, delivery.ID, err)
		c.JSON(http.StatusOK, gin.H{"status": "ok", "message": "event dropped"})
	}
}

// verifySignature checks the HMAC-SHA256 body signature in constant time.
func (h *GitHubWebhookHandler) verifySignature(header string, body []byte) bool {
	sig, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return false
	}
	got, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, h.secret)
	mac.Write(body)
	want := mac.Sum(nil)

	return subtle.ConstantTimeCompare(got, want) == 1
}

func (h *GitHubWebhookHandler) markProcessed(ctx context.Context, id int64) {
	if err := h.deliveries.MarkProcessed(ctx, id); err != nil {
		slog.ErrorContext(ctx, "failed to mark delivery processed", "error", err)
	}
}

func (h *GitHubWebhookHandler) markFailed(ctx context.Context, id int64, cause error) {
	if err := h.deliveries.MarkFailed(ctx, id, cause.Error()); err != nil {
		slog.ErrorContext(ctx, "failed to mark delivery failed", "error", err)
	}
}
