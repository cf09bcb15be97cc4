package model

import "time"

type DeliveryStatus string

const (
	DeliveryStatusReceived  DeliveryStatus = "received"
	DeliveryStatusProcessed DeliveryStatus = "processed"
	DeliveryStatusFailed    DeliveryStatus = "failed"
)

// Delivery is one webhook delivery as recorded in the delivery log.
// Redeliveries of the same logical webhook share DeliveryID but get their own
// row, so the log shows every attempt.
type Delivery struct {
	ID              int64          `json:"id"`
	DeliveryID      string         `json:"delivery_id"`
	EventType       string         `json:"event_type"`
	Status          DeliveryStatus `json:"status"`
	ProcessingError *string        `json:"processing_error,omitempty"`
	ReceivedAt      time.Time      `json:"received_at"`
	ProcessedAt     *time.Time     `json:"processed_at,omitempty"`
}

// RetryEnvelope is the payload re-submitted to the retry queue when
// synchronous processing fails with a retryable error. Consumers must be
// idempotent: the channel is at-least-once.
type RetryEnvelope struct {
	EventType  string `json:"event_type"`
	DeliveryID string `json:"delivery_id"`
	Payload    []byte `json:"payload"`
	Attempt    int    `json:"attempt"`
}
