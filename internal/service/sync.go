package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"tasklink.app/bridge/internal/model"
	"tasklink.app/bridge/internal/policy"
	"tasklink.app/bridge/internal/store"
	"tasklink.app/bridge/internal/tracker"
)

// syncRootTask projects the pull request snapshot onto its downstream root
// task: upsert the task fields, reconcile followers and body attachments, and
// trigger an auto-merge when the snapshot qualifies. Returns the downstream
// task id. Must be called under the pull request lock.
func (d *Dispatcher) syncRootTask(ctx context.Context, pr *model.PullRequest) (string, error) {
	userMap, err := d.stores.UserMappings().GetAll(ctx)
	if err != nil {
		return "", fmt.Errorf("loading user mappings: %w", err)
	}

	fields := d.buildTaskFields(pr, userMap)

	taskID, created, err := d.ensureRootTask(ctx, pr, fields)
	if err != nil {
		return "", err
	}
	if !created {
		if err := d.tracker.UpdateTask(ctx, taskID, fields); err != nil {
			return "", fmt.Errorf("updating task %s: %w", taskID, err)
		}
	}

	if followers := policy.Followers(pr, userMap); len(followers) > 0 {
		if err := d.tracker.AddFollowers(ctx, taskID, followers); err != nil {
			return "", fmt.Errorf("adding followers to task %s: %w", taskID, err)
		}
	}

	if err := d.syncAttachments(ctx, pr.Key(), taskID, pr.Body); err != nil {
		return "", err
	}

	if policy.AutoMerge(pr, d.features.AutoMerge) {
		d.logger.InfoContext(ctx, "auto-merging pull request",
			"repo", pr.Repo, "number", pr.Number)
		msg := fmt.Sprintf("Auto-merge: %s (#%d)", pr.Title, pr.Number)
		if err := d.upstream.MergePullRequest(ctx, pr.Repo, pr.Number, msg); err != nil {
			return "", fmt.Errorf("auto-merging %s#%d: %w", pr.Repo, pr.Number, err)
		}
	}

	return taskID, nil
}

// ensureRootTask returns the downstream task id for the pull request, creating
// the task and its mapping on first contact. The lookup-then-insert pair is
// race-free because the caller holds the entity lock.
func (d *Dispatcher) ensureRootTask(ctx context.Context, pr *model.PullRequest, fields tracker.TaskFields) (string, bool, error) {
	taskID, err := d.stores.Mappings().Lookup(ctx, pr.Key())
	if err == nil {
		return taskID, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return "", false, fmt.Errorf("looking up root mapping: %w", err)
	}

	taskID, err = d.tracker.CreateTask(ctx, d.projectID, fields)
	if err != nil {
		return "", false, fmt.Errorf("creating task: %w", err)
	}
	if err := d.stores.Mappings().Insert(ctx, pr.Key(), taskID); err != nil {
		return "", false, fmt.Errorf("recording root mapping: %w", err)
	}

	d.logger.InfoContext(ctx, "created root task",
		"repo", pr.Repo, "number", pr.Number, "task_id", taskID)
	return taskID, true, nil
}

// buildTaskFields evaluates the sync policy rules against the snapshot. Pure
// except for the user map input.
func (d *Dispatcher) buildTaskFields(pr *model.PullRequest, userMap map[string]string) tracker.TaskFields {
	login, reason := policy.ResolveAssignee(pr)
	if reason == policy.AssigneeReasonAmbiguous {
		d.logger.Warn("ambiguous assignees, picking first by login",
			"repo", pr.Repo, "number", pr.Number, "login", login)
	}

	return tracker.TaskFields{
		Name:      fmt.Sprintf("%s (#%d)", pr.Title, pr.Number),
		Notes:     renderTaskNotes(pr, userMap),
		Assignee:  userMap[login],
		Completed: policy.Completion(pr),
	}
}

func renderTaskNotes(pr *model.PullRequest, userMap map[string]string) string {
	var b strings.Builder
	b.WriteString(policy.TranslateBody(pr.Body, userMap))
	b.WriteString("\n\n")
	b.WriteString(fmt.Sprintf(`<a href="%s">%s#%d</a>`, pr.HTMLURL, pr.Repo, pr.Number))
	return b.String()
}

// upsertComment creates or updates the downstream comment projected from an
// issue comment, keyed by the comment's identity mapping. The root task is
// re-synced first: comment content can change derived task fields, e.g. a
// post-merge sign-off phrase completing the task.
func (d *Dispatcher) upsertComment(ctx context.Context, pr *model.PullRequest, comment *model.Comment) error {
	taskID, err := d.syncRootTask(ctx, pr)
	if err != nil {
		return err
	}

	userMap, err := d.stores.UserMappings().GetAll(ctx)
	if err != nil {
		return fmt.Errorf("loading user mappings: %w", err)
	}
	body := renderCommentBody(comment, userMap)

	downstreamID, err := d.stores.Mappings().Lookup(ctx, comment.Key())
	switch {
	case err == nil:
		if err := d.tracker.UpdateComment(ctx, downstreamID, body); err != nil {
			return fmt.Errorf("updating comment %s: %w", downstreamID, err)
		}
	case errors.Is(err, store.ErrNotFound):
		downstreamID, err = d.tracker.AddComment(ctx, taskID, body)
		if err != nil {
			return fmt.Errorf("adding comment: %w", err)
		}
		if err := d.stores.Mappings().Insert(ctx, comment.Key(), downstreamID); err != nil {
			return fmt.Errorf("recording comment mapping: %w", err)
		}
	default:
		return fmt.Errorf("looking up comment mapping: %w", err)
	}

	return d.syncAttachments(ctx, comment.Key(), taskID, comment.Body)
}

// upsertReview creates or updates the single downstream comment that carries a
// review and all its inline comments. Every inline comment id maps to the same
// downstream comment, so later inline edits and deletions find their way back
// to this block.
func (d *Dispatcher) upsertReview(ctx context.Context, pr *model.PullRequest, review *model.Review) error {
	taskID, err := d.syncRootTask(ctx, pr)
	if err != nil {
		return err
	}

	userMap, err := d.stores.UserMappings().GetAll(ctx)
	if err != nil {
		return fmt.Errorf("loading user mappings: %w", err)
	}
	body := renderReviewBody(review, userMap)

	downstreamID, err := d.stores.Mappings().Lookup(ctx, review.Key())
	switch {
	case err == nil:
		if err := d.tracker.UpdateComment(ctx, downstreamID, body); err != nil {
			return fmt.Errorf("updating review comment %s: %w", downstreamID, err)
		}
	case errors.Is(err, store.ErrNotFound):
		downstreamID, err = d.tracker.AddComment(ctx, taskID, body)
		if err != nil {
			return fmt.Errorf("adding review comment: %w", err)
		}
		if err := d.stores.Mappings().Insert(ctx, review.Key(), downstreamID); err != nil {
			return fmt.Errorf("recording review mapping: %w", err)
		}
	default:
		return fmt.Errorf("looking up review mapping: %w", err)
	}

	if len(review.Comments) > 0 {
		pairs := make([]model.MappingPair, 0, len(review.Comments))
		for i := range review.Comments {
			pairs = append(pairs, model.MappingPair{
				UpstreamID:   review.Comments[i].Key(),
				DownstreamID: downstreamID,
			})
		}
		if err := d.stores.Mappings().BulkInsert(ctx, pairs); err != nil {
			return fmt.Errorf("recording inline comment mappings: %w", err)
		}
	}

	return d.syncAttachments(ctx, review.Key(), taskID, reviewAssetSource(review))
}

// reassignToAuthor flips ownership of the root task back to the pull request
// author after a review verdict.
func (d *Dispatcher) reassignToAuthor(ctx context.Context, pr *model.PullRequest) error {
	taskID, err := d.rootTaskID(ctx, pr)
	if err != nil {
		return err
	}

	userMap, err := d.stores.UserMappings().GetAll(ctx)
	if err != nil {
		return fmt.Errorf("loading user mappings: %w", err)
	}
	assignee, ok := userMap[pr.Author.Login]
	if !ok {
		d.logger.DebugContext(ctx, "author has no downstream identity, leaving assignee",
			"login", pr.Author.Login)
		return nil
	}

	fields := d.buildTaskFields(pr, userMap)
	fields.Assignee = assignee
	if err := d.tracker.UpdateTask(ctx, taskID, fields); err != nil {
		return fmt.Errorf("reassigning task %s: %w", taskID, err)
	}
	return nil
}

// rootTaskID resolves (and lazily creates) the downstream root task for a
// pull request snapshot, so comment and review events do not depend on the
// pull_request opened event having arrived first.
func (d *Dispatcher) rootTaskID(ctx context.Context, pr *model.PullRequest) (string, error) {
	userMap, err := d.stores.UserMappings().GetAll(ctx)
	if err != nil {
		return "", fmt.Errorf("loading user mappings: %w", err)
	}
	taskID, _, err := d.ensureRootTask(ctx, pr, d.buildTaskFields(pr, userMap))
	return taskID, err
}

// syncAttachments reconciles the downstream attachment set of upstreamID's
// entity with the assets referenced in body. The recorded map after the call
// is exactly the set of assets currently referenced.
func (d *Dispatcher) syncAttachments(ctx context.Context, upstreamID, taskID, body string) error {
	previous, err := d.stores.Mappings().GetAttachments(ctx, upstreamID)
	if err != nil {
		return fmt.Errorf("loading attachment map: %w", err)
	}

	diff := policy.DiffAttachments(policy.ExtractAssets(body), previous)
	if len(diff.ToDelete) == 0 && len(diff.ToCreate) == 0 {
		return nil
	}

	final := make(map[string]string, len(diff.ToKeep)+len(diff.ToCreate))
	for url, id := range diff.ToKeep {
		final[url] = id
	}

	for url, attachmentID := range diff.ToDelete {
		if err := d.tracker.DeleteAttachment(ctx, attachmentID); err != nil {
			return fmt.Errorf("deleting attachment %s (%s): %w", attachmentID, url, err)
		}
	}
	for _, url := range diff.ToCreate {
		attachmentID, err := d.tracker.UploadAttachment(ctx, taskID, url)
		if err != nil {
			return fmt.Errorf("uploading attachment %s: %w", url, err)
		}
		final[url] = attachmentID
	}

	if err := d.stores.Mappings().SetAttachments(ctx, upstreamID, final); err != nil {
		return fmt.Errorf("recording attachment map: %w", err)
	}
	return nil
}

// deleteCommentEntity removes the downstream comment mapped to upstreamID
// together with its recorded attachments. Idempotent: a missing mapping means
// the deletion already happened.
func (d *Dispatcher) deleteCommentEntity(ctx context.Context, upstreamID string) error {
	downstreamID, err := d.stores.Mappings().Lookup(ctx, upstreamID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("looking up comment mapping: %w", err)
	}

	attachments, err := d.stores.Mappings().GetAttachments(ctx, upstreamID)
	if err != nil {
		return fmt.Errorf("loading attachment map: %w", err)
	}
	for url, attachmentID := range attachments {
		if err := d.tracker.DeleteAttachment(ctx, attachmentID); err != nil {
			return fmt.Errorf("deleting attachment %s (%s): %w", attachmentID, url, err)
		}
	}

	if err := d.tracker.DeleteComment(ctx, downstreamID); err != nil {
		return fmt.Errorf("deleting comment %s: %w", downstreamID, err)
	}
	if err := d.stores.Mappings().Delete(ctx, upstreamID); err != nil {
		return fmt.Errorf("removing comment mapping: %w", err)
	}
	return nil
}

func renderCommentBody(comment *model.Comment, userMap map[string]string) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("<b>%s</b> commented:\n\n", comment.Author.Login))
	b.WriteString(policy.TranslateBody(comment.Body, userMap))
	if comment.HTMLURL != "" {
		b.WriteString(fmt.Sprintf("\n\n<a href=\"%s\">View upstream</a>", comment.HTMLURL))
	}
	return b.String()
}

func renderReviewBody(review *model.Review, userMap map[string]string) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("<b>%s</b> %s:\n\n", review.Author.Login, reviewVerb(review.State)))
	if review.Body != "" {
		b.WriteString(policy.TranslateBody(review.Body, userMap))
		b.WriteString("\n")
	}
	for i := range review.Comments {
		c := &review.Comments[i]
		b.WriteString("\n")
		b.WriteString(fmt.Sprintf("<b>%s</b>: %s\n", c.Author.Login, policy.TranslateBody(c.Body, userMap)))
	}
	if review.HTMLURL != "" {
		b.WriteString(fmt.Sprintf("\n<a href=\"%s\">View upstream</a>", review.HTMLURL))
	}
	return b.String()
}

func reviewVerb(state model.ReviewState) string {
	switch state {
	case model.ReviewStateApproved:
		return "approved"
	case model.ReviewStateChangesRequested:
		return "requested changes"
	case model.ReviewStateDismissed:
		return "dismissed a review"
	default:
		return "reviewed"
	}
}

// reviewAssetSource is the concatenated text whose asset references drive the
// review block's attachment set.
func reviewAssetSource(review *model.Review) string {
	var b strings.Builder
	b.WriteString(review.Body)
	for i := range review.Comments {
		b.WriteString("\n")
		b.WriteString(review.Comments[i].Body)
	}
	return b.String()
}
