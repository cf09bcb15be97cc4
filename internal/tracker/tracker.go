// Package tracker is the downstream task-system collaborator. The sync engine
// only depends on this interface; the concrete wire format lives in the HTTP
// implementation.
package tracker

import (
	"context"
	"errors"
)

// ErrUnavailable marks transient downstream failures (5xx, network). Callers
// classify it as retryable.
var ErrUnavailable = errors.New("tracker unavailable")

// TaskFields are the downstream field values computed by the sync policy
// engine for a root task.
type TaskFields struct {
	Name      string
	Notes     string
	Assignee  string // downstream user id, empty to leave unassigned
	Completed bool
}

type Client interface {
	CreateTask(ctx context.Context, projectID string, fields TaskFields) (string, error)
	UpdateTask(ctx context.Context, taskID string, fields TaskFields) error

	AddComment(ctx context.Context, taskID, body string) (string, error)
	UpdateComment(ctx context.Context, commentID, body string) error
	DeleteComment(ctx context.Context, commentID string) error

	AddFollowers(ctx context.Context, taskID string, userIDs []string) error

	// UploadAttachment attaches an external asset by URL and returns the
	// downstream asset id.
	UploadAttachment(ctx context.Context, taskID, url string) (string, error)
	DeleteAttachment(ctx context.Context, attachmentID string) error
}
