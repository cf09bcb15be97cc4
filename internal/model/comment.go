package model

import (
	"fmt"
	"time"
)

// CommentKind is the discriminant for the two upstream comment subtypes.
// It is resolved once at ingestion; downstream code switches on Kind instead
// of inspecting payload shapes.
type CommentKind string

const (
	// CommentKindIssue is a plain comment on the pull request conversation.
	CommentKindIssue CommentKind = "issue"
	// CommentKindReview is an inline comment attached to a review.
	CommentKindReview CommentKind = "review"
)

// Comment is the tagged variant over upstream comment subtypes. The shared
// contract (ID, Body, Author, HTMLURL, CreatedAt) is always populated;
// ReviewID is only meaningful for CommentKindReview.
type Comment struct {
	Kind      CommentKind `json:"kind"`
	ID        int64       `json:"id"`
	Author    User        `json:"author"`
	Body      string      `json:"body"`
	HTMLURL   string      `json:"html_url"`
	CreatedAt time.Time   `json:"created_at"`
	ReviewID  int64       `json:"review_id,omitempty"`
}

func (c *Comment) Key() string {
	return CommentKey(c.Kind, c.ID)
}

func CommentKey(kind CommentKind, id int64) string {
	return fmt.Sprintf("comment:%s:%d", kind, id)
}
