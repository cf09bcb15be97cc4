// Package github is the upstream API collaborator. It fetches full entity
// state given an id; event payload fields are never trusted for state because
// they can race with more recent mutations.
package github

import (
	"context"
	"errors"

	"tasklink.app/bridge/internal/model"
)

// ErrUnavailable marks transient upstream failures (5xx, network). Callers
// classify it as retryable.
var ErrUnavailable = errors.New("upstream unavailable")

type Client interface {
	// FetchPullRequest returns a fresh snapshot including reviews and
	// conversation comments.
	FetchPullRequest(ctx context.Context, repo string, number int) (*model.PullRequest, error)

	// FetchReview returns one review with its inline comments.
	FetchReview(ctx context.Context, repo string, number int, reviewID int64) (*model.Review, bool, error)

	// ResolveRootForCommit finds the pull request a commit belongs to.
	ResolveRootForCommit(ctx context.Context, repo, sha string) (int, bool, error)

	// ResolveReviewByNumericID scans the pull request's reviews page by page
	// for the given review id. The scan is restartable and finite, but under
	// concurrent deletion it can report a false "not found"; callers treat
	// that as "review gone".
	ResolveReviewByNumericID(ctx context.Context, repo string, number int, reviewID int64) (*model.Review, bool, error)

	// MergePullRequest merges an auto-merge-eligible pull request.
	MergePullRequest(ctx context.Context, repo string, number int, message string) error
}
