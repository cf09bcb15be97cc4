package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"tasklink.app/bridge/common/logger"
	"tasklink.app/bridge/core/config"
	"tasklink.app/bridge/internal/github"
	"tasklink.app/bridge/internal/lock"
	"tasklink.app/bridge/internal/model"
	"tasklink.app/bridge/internal/store"
	"tasklink.app/bridge/internal/tracker"
)

// lockSortKey is the sub-key under which event processing claims an entity.
const lockSortKey = "sync"

// Dispatcher routes inbound events to entity-specific handlers. Every known
// event is processed under the entity's lease lock against a fresh upstream
// snapshot, and all downstream writes go through the idempotent upsert
// protocol keyed by the identity-mapping store.
type Dispatcher struct {
	upstream  github.Client
	tracker   tracker.Client
	stores    store.Provider
	locker    lock.Locker
	features  config.Features
	projectID string
	lease     time.Duration
	logger    *slog.Logger

	handlers map[string]handlerFunc
}

type handlerFunc func(ctx context.Context, p *eventPayload) error

type DispatcherConfig struct {
	Upstream  github.Client
	Tracker   tracker.Client
	Stores    store.Provider
	Locker    lock.Locker
	Features  config.Features
	ProjectID string
	Lease     time.Duration
	Logger    *slog.Logger
}

func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Lease <= 0 {
		cfg.Lease = 30 * time.Second
	}

	d := &Dispatcher{
		upstream:  cfg.Upstream,
		tracker:   cfg.Tracker,
		stores:    cfg.Stores,
		locker:    cfg.Locker,
		features:  cfg.Features,
		projectID: cfg.ProjectID,
		lease:     cfg.Lease,
		logger:    cfg.Logger,
	}

	// Static routing table; event types without an entry are acknowledged as
	// not implemented.
	d.handlers = map[string]handlerFunc{
		"pull_request":                d.handlePullRequest,
		"issue_comment":               d.handleIssueComment,
		"pull_request_review":         d.handleReview,
		"pull_request_review_comment": d.handleReviewComment,
		"status":                      d.handleStatus,
		"check_suite":                 d.handleCheckSuite,
	}

	return d
}

// Handle processes one event. The returned error is classified by Retryable;
// ErrUnknownEvent and ErrValidation are terminal outcomes.
func (d *Dispatcher) Handle(ctx context.Context, eventType string, payload []byte) error {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "bridge.service.dispatcher",
		EventType: logger.Ptr(eventType),
	})

	handler, ok := d.handlers[eventType]
	if !ok {
		return fmt.Errorf("%q: %w", eventType, ErrUnknownEvent)
	}

	var p eventPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("%w: decoding %s payload: %v", ErrValidation, eventType, err)
	}
	if p.Repository.FullName == "" {
		return fmt.Errorf("%w: %s payload missing repository", ErrValidation, eventType)
	}

	return handler(ctx, &p)
}

// withLock runs fn while holding the entity lease. The lock is released on
// every exit path; failure to acquire propagates as retryable without any
// partial processing.
func (d *Dispatcher) withLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	guard, err := d.locker.Acquire(ctx, key, lockSortKey, d.lease)
	if err != nil {
		return fmt.Errorf("acquiring entity lock: %w", err)
	}
	defer func() {
		if rerr := guard.Release(context.WithoutCancel(ctx)); rerr != nil {
			d.logger.WarnContext(ctx, "failed to release entity lock", "error", rerr, "lock_key", key)
		}
	}()

	ctx = logger.WithLogFields(ctx, logger.LogFields{LockKey: logger.Ptr(key)})
	return fn(ctx)
}

func (d *Dispatcher) handlePullRequest(ctx context.Context, p *eventPayload) error {
	if p.PullRequest.Number == 0 {
		return fmt.Errorf("%w: pull_request payload missing number", ErrValidation)
	}

	repo, number := p.Repository.FullName, p.PullRequest.Number
	return d.withLock(ctx, model.PullRequestKey(repo, number), func(ctx context.Context) error {
		pr, err := d.upstream.FetchPullRequest(ctx, repo, number)
		if err != nil {
			return err
		}
		_, err = d.syncRootTask(ctx, pr)
		return err
	})
}

// knownAction rejects payload actions outside a handler's vocabulary;
// retrying such a delivery can never succeed.
func knownAction(action string, known ...string) error {
	for _, k := range known {
		if action == k {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrUnknownAction, action)
}

func (d *Dispatcher) handleIssueComment(ctx context.Context, p *eventPayload) error {
	if p.Issue.Number == 0 || p.Comment.ID == 0 {
		return fmt.Errorf("%w: issue_comment payload missing issue number or comment id", ErrValidation)
	}
	if err := knownAction(p.Action, "created", "edited", "deleted"); err != nil {
		return err
	}
	if p.Issue.PullRequest == nil {
		// Comment on a plain issue; this service only projects pull requests.
		d.logger.DebugContext(ctx, "ignoring comment on non-PR issue", "issue", p.Issue.Number)
		return nil
	}

	repo, number, commentID := p.Repository.FullName, p.Issue.Number, p.Comment.ID

	if p.Action == "deleted" {
		return d.withLock(ctx, model.PullRequestKey(repo, number), func(ctx context.Context) error {
			return d.deleteCommentEntity(ctx, model.CommentKey(model.CommentKindIssue, commentID))
		})
	}

	return d.withLock(ctx, model.PullRequestKey(repo, number), func(ctx context.Context) error {
		pr, err := d.upstream.FetchPullRequest(ctx, repo, number)
		if err != nil {
			return err
		}

		comment, ok := findComment(pr, commentID)
		if !ok {
			// Deleted between the event and our fetch; the delete event will
			// clean up the mapping.
			d.logger.InfoContext(ctx, "comment no longer present upstream, skipping", "comment_id", commentID)
			return nil
		}
		return d.upsertComment(ctx, pr, comment)
	})
}

func (d *Dispatcher) handleReview(ctx context.Context, p *eventPayload) error {
	if p.PullRequest.Number == 0 || p.Review.ID == 0 {
		return fmt.Errorf("%w: pull_request_review payload missing number or review id", ErrValidation)
	}
	if err := knownAction(p.Action, "submitted", "edited", "dismissed"); err != nil {
		return err
	}

	repo, number, reviewID := p.Repository.FullName, p.PullRequest.Number, p.Review.ID
	return d.withLock(ctx, model.PullRequestKey(repo, number), func(ctx context.Context) error {
		pr, err := d.upstream.FetchPullRequest(ctx, repo, number)
		if err != nil {
			return err
		}

		review, found, err := d.upstream.FetchReview(ctx, repo, number, reviewID)
		if err != nil {
			return err
		}
		if !found {
			d.logger.InfoContext(ctx, "review no longer present upstream, skipping", "review_id", reviewID)
			return nil
		}

		if err := d.upsertReview(ctx, pr, review); err != nil {
			return err
		}

		// An approval or changes-request puts the ball back in the author's
		// court: the task owner becomes the pull request author.
		if review.State == model.ReviewStateApproved || review.State == model.ReviewStateChangesRequested {
			return d.reassignToAuthor(ctx, pr)
		}
		return nil
	})
}

func (d *Dispatcher) handleReviewComment(ctx context.Context, p *eventPayload) error {
	if p.Comment.ID == 0 {
		return fmt.Errorf("%w: pull_request_review_comment payload missing comment id", ErrValidation)
	}
	if err := knownAction(p.Action, "created", "edited", "deleted"); err != nil {
		return err
	}

	repo := p.Repository.FullName

	if p.Action == "deleted" {
		// The deletion payload lacks a direct review reference we can trust to
		// still exist, and the root is not cheaply derivable, so the comment
		// id itself is the lock key.
		return d.withLock(ctx, model.CommentKey(model.CommentKindReview, p.Comment.ID), func(ctx context.Context) error {
			return d.handleReviewCommentDeleted(ctx, repo, p)
		})
	}

	if p.PullRequest.Number == 0 || p.Comment.PullRequestReviewID == 0 {
		return fmt.Errorf("%w: pull_request_review_comment payload missing number or review id", ErrValidation)
	}

	number, reviewID := p.PullRequest.Number, p.Comment.PullRequestReviewID
	return d.withLock(ctx, model.PullRequestKey(repo, number), func(ctx context.Context) error {
		pr, err := d.upstream.FetchPullRequest(ctx, repo, number)
		if err != nil {
			return err
		}

		review, found, err := d.upstream.FetchReview(ctx, repo, number, reviewID)
		if err != nil {
			return err
		}
		if !found {
			d.logger.InfoContext(ctx, "containing review gone, skipping", "review_id", reviewID)
			return nil
		}
		return d.upsertReview(ctx, pr, review)
	})
}

func (d *Dispatcher) handleReviewCommentDeleted(ctx context.Context, repo string, p *eventPayload) error {
	number, reviewID, commentID := p.PullRequest.Number, p.Comment.PullRequestReviewID, p.Comment.ID
	commentKey := model.CommentKey(model.CommentKindReview, commentID)

	if number == 0 || reviewID == 0 {
		// Nothing left to resolve the review from; drop the comment mapping.
		return d.deleteCommentEntity(ctx, commentKey)
	}

	review, found, err := d.upstream.ResolveReviewByNumericID(ctx, repo, number, reviewID)
	if err != nil {
		return err
	}

	if !found {
		// The review vanished with its last comment, or the scan raced a
		// concurrent deletion. Treat as a full deletion of the review block.
		if err := d.deleteCommentEntity(ctx, model.ReviewKey(reviewID)); err != nil {
			return err
		}
		return d.stores.Mappings().Delete(ctx, commentKey)
	}

	pr, err := d.upstream.FetchPullRequest(ctx, repo, number)
	if err != nil {
		return err
	}
	if err := d.upsertReview(ctx, pr, review); err != nil {
		return err
	}
	return d.stores.Mappings().Delete(ctx, commentKey)
}

func (d *Dispatcher) handleStatus(ctx context.Context, p *eventPayload) error {
	if p.SHA == "" {
		return fmt.Errorf("%w: status payload missing sha", ErrValidation)
	}
	return d.syncRootForCommit(ctx, p.Repository.FullName, p.SHA)
}

func (d *Dispatcher) handleCheckSuite(ctx context.Context, p *eventPayload) error {
	repo := p.Repository.FullName

	if len(p.CheckSuite.PullRequests) == 0 {
		if p.CheckSuite.HeadSHA == "" {
			return fmt.Errorf("%w: check_suite payload missing pull requests and head sha", ErrValidation)
		}
		return d.syncRootForCommit(ctx, repo, p.CheckSuite.HeadSHA)
	}

	for _, pull := range p.CheckSuite.PullRequests {
		if err := d.syncRoot(ctx, repo, pull.Number); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dispatcher) syncRootForCommit(ctx context.Context, repo, sha string) error {
	number, found, err := d.upstream.ResolveRootForCommit(ctx, repo, sha)
	if err != nil {
		return err
	}
	if !found {
		d.logger.DebugContext(ctx, "commit does not belong to a pull request", "sha", sha)
		return nil
	}
	return d.syncRoot(ctx, repo, number)
}

func (d *Dispatcher) syncRoot(ctx context.Context, repo string, number int) error {
	return d.withLock(ctx, model.PullRequestKey(repo, number), func(ctx context.Context) error {
		pr, err := d.upstream.FetchPullRequest(ctx, repo, number)
		if err != nil {
			return err
		}
		_, err = d.syncRootTask(ctx, pr)
		return err
	})
}

func findComment(pr *model.PullRequest, id int64) (*model.Comment, bool) {
	for i := range pr.Comments {
		if pr.Comments[i].ID == id {
			return &pr.Comments[i], true
		}
	}
	return nil, false
}
