package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	gh "github.com/google/go-github/v68/github"

	"tasklink.app/bridge/internal/model"
)

type Config struct {
	Token   string
	BaseURL string // optional, for GitHub Enterprise
}

type client struct {
	gh *gh.Client
}

func NewClient(cfg Config) (Client, error) {
	c := gh.NewClient(nil)
	if cfg.Token != "" {
		c = c.WithAuthToken(cfg.Token)
	}
	if cfg.BaseURL != "" {
		var err error
		c, err = c.WithEnterpriseURLs(cfg.BaseURL, cfg.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("configuring enterprise base url: %w", err)
		}
	}
	return &client{gh: c}, nil
}

func (c *client) FetchPullRequest(ctx context.Context, repo string, number int) (*model.PullRequest, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return nil, err
	}

	pr, resp, err := c.gh.PullRequests.Get(ctx, owner, name, number)
	if err != nil {
		return nil, classify(resp, fmt.Errorf("fetching pull request %s#%d: %w", repo, number, err))
	}

	reviews, err := c.listReviews(ctx, owner, name, number)
	if err != nil {
		return nil, err
	}

	comments, err := c.listIssueComments(ctx, owner, name, number)
	if err != nil {
		return nil, err
	}

	buildState, err := c.combinedStatus(ctx, owner, name, pr.GetHead().GetSHA())
	if err != nil {
		return nil, err
	}

	out := toPullRequest(repo, pr)
	out.Reviews = reviews
	out.Comments = comments
	out.BuildState = buildState

	// Inline review-comment bodies feed the post-merge sign-off scan, which
	// only applies once the pull request is merged. Skip the per-review
	// listing calls before that.
	if out.Merged {
		for i := range out.Reviews {
			rc, err := c.listReviewComments(ctx, owner, name, number, out.Reviews[i].ID)
			if err != nil {
				return nil, err
			}
			out.Reviews[i].Comments = rc
		}
	}
	return out, nil
}

func (c *client) FetchReview(ctx context.Context, repo string, number int, reviewID int64) (*model.Review, bool, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return nil, false, err
	}

	review, resp, err := c.gh.PullRequests.GetReview(ctx, owner, name, number, reviewID)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, false, nil
		}
		return nil, false, classify(resp, fmt.Errorf("fetching review %d on %s#%d: %w", reviewID, repo, number, err))
	}

	out := toReview(review)
	out.Comments, err = c.listReviewComments(ctx, owner, name, number, reviewID)
	if err != nil {
		return nil, false, err
	}
	return out, true, nil
}

func (c *client) ResolveRootForCommit(ctx context.Context, repo, sha string) (int, bool, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return 0, false, err
	}

	prs, resp, err := c.gh.PullRequests.ListPullRequestsWithCommit(ctx, owner, name, sha, &gh.ListOptions{PerPage: 10})
	if err != nil {
		return 0, false, classify(resp, fmt.Errorf("resolving pull request for commit %s: %w", sha, err))
	}
	for _, pr := range prs {
		if pr.GetState() == "open" {
			return pr.GetNumber(), true, nil
		}
	}
	if len(prs) > 0 {
		return prs[0].GetNumber(), true, nil
	}
	return 0, false, nil
}

func (c *client) ResolveReviewByNumericID(ctx context.Context, repo string, number int, reviewID int64) (*model.Review, bool, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return nil, false, err
	}

	// Page-by-page scan instead of an eager full fetch: the caller only needs
	// the one matching review, and the list can mutate underneath us.
	opts := &gh.ListOptions{PerPage: 30}
	for {
		reviews, resp, err := c.gh.PullRequests.ListReviews(ctx, owner, name, number, opts)
		if err != nil {
			return nil, false, classify(resp, fmt.Errorf("scanning reviews on %s#%d: %w", repo, number, err))
		}
		for _, review := range reviews {
			if review.GetID() == reviewID {
				out := toReview(review)
				out.Comments, err = c.listReviewComments(ctx, owner, name, number, reviewID)
				if err != nil {
					return nil, false, err
				}
				return out, true, nil
			}
		}
		if resp.NextPage == 0 {
			return nil, false, nil
		}
		opts.Page = resp.NextPage
	}
}

func (c *client) MergePullRequest(ctx context.Context, repo string, number int, message string) error {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return err
	}

	_, resp, err := c.gh.PullRequests.Merge(ctx, owner, name, number, message, nil)
	if err != nil {
		return classify(resp, fmt.Errorf("merging %s#%d: %w", repo, number, err))
	}
	return nil
}

func (c *client) listReviews(ctx context.Context, owner, name string, number int) ([]model.Review, error) {
	var out []model.Review
	opts := &gh.ListOptions{PerPage: 100}
	for {
		reviews, resp, err := c.gh.PullRequests.ListReviews(ctx, owner, name, number, opts)
		if err != nil {
			return nil, classify(resp, fmt.Errorf("listing reviews: %w", err))
		}
		for _, r := range reviews {
			out = append(out, *toReview(r))
		}
		if resp.NextPage == 0 {
			return out, nil
		}
		opts.Page = resp.NextPage
	}
}

func (c *client) listIssueComments(ctx context.Context, owner, name string, number int) ([]model.Comment, error) {
	var out []model.Comment
	opts := &gh.IssueListCommentsOptions{ListOptions: gh.ListOptions{PerPage: 100}}
	for {
		comments, resp, err := c.gh.Issues.ListComments(ctx, owner, name, number, opts)
		if err != nil {
			return nil, classify(resp, fmt.Errorf("listing comments: %w", err))
		}
		for _, cm := range comments {
			out = append(out, model.Comment{
				Kind:      model.CommentKindIssue,
				ID:        cm.GetID(),
				Author:    toUser(cm.GetUser()),
				Body:      cm.GetBody(),
				HTMLURL:   cm.GetHTMLURL(),
				CreatedAt: cm.GetCreatedAt().Time,
			})
		}
		if resp.NextPage == 0 {
			return out, nil
		}
		opts.Page = resp.NextPage
	}
}

func (c *client) listReviewComments(ctx context.Context, owner, name string, number int, reviewID int64) ([]model.Comment, error) {
	var out []model.Comment
	opts := &gh.ListOptions{PerPage: 100}
	for {
		comments, resp, err := c.gh.PullRequests.ListReviewComments(ctx, owner, name, number, reviewID, opts)
		if err != nil {
			return nil, classify(resp, fmt.Errorf("listing review comments: %w", err))
		}
		for _, cm := range comments {
			out = append(out, model.Comment{
				Kind:      model.CommentKindReview,
				ID:        cm.GetID(),
				Author:    toUser(cm.GetUser()),
				Body:      cm.GetBody(),
				HTMLURL:   cm.GetHTMLURL(),
				CreatedAt: cm.GetCreatedAt().Time,
				ReviewID:  reviewID,
			})
		}
		if resp.NextPage == 0 {
			return out, nil
		}
		opts.Page = resp.NextPage
	}
}

func (c *client) combinedStatus(ctx context.Context, owner, name, sha string) (model.BuildState, error) {
	if sha == "" {
		return model.BuildStatePending, nil
	}
	status, resp, err := c.gh.Repositories.GetCombinedStatus(ctx, owner, name, sha, &gh.ListOptions{PerPage: 1})
	if err != nil {
		return "", classify(resp, fmt.Errorf("fetching combined status for %s: %w", sha, err))
	}
	switch status.GetState() {
	case "success":
		return model.BuildStateSuccess, nil
	case "failure", "error":
		return model.BuildStateFailure, nil
	default:
		return model.BuildStatePending, nil
	}
}

func toPullRequest(repo string, pr *gh.PullRequest) *model.PullRequest {
	out := &model.PullRequest{
		ID:        pr.GetID(),
		Number:    pr.GetNumber(),
		Repo:      repo,
		Title:     pr.GetTitle(),
		Body:      pr.GetBody(),
		Author:    toUser(pr.GetUser()),
		State:     model.PullRequestState(pr.GetState()),
		Merged:    pr.GetMerged(),
		HTMLURL:   pr.GetHTMLURL(),
		HeadSHA:   pr.GetHead().GetSHA(),
		Mergeable: pr.GetMergeable(),
	}
	if pr.MergedAt != nil {
		t := pr.MergedAt.Time
		out.MergedAt = &t
	}
	for _, l := range pr.Labels {
		out.Labels = append(out.Labels, model.Label{Name: l.GetName()})
	}
	for _, u := range pr.Assignees {
		out.Assignees = append(out.Assignees, toUser(u))
	}
	for _, u := range pr.RequestedReviewers {
		out.RequestedReviewers = append(out.RequestedReviewers, toUser(u))
	}
	return out
}

func toReview(r *gh.PullRequestReview) *model.Review {
	out := &model.Review{
		ID:      r.GetID(),
		Author:  toUser(r.GetUser()),
		State:   toReviewState(r.GetState()),
		Body:    r.GetBody(),
		HTMLURL: r.GetHTMLURL(),
	}
	if r.SubmittedAt != nil {
		out.SubmittedAt = r.SubmittedAt.Time
	}
	return out
}

func toReviewState(state string) model.ReviewState {
	switch strings.ToUpper(state) {
	case "APPROVED":
		return model.ReviewStateApproved
	case "CHANGES_REQUESTED":
		return model.ReviewStateChangesRequested
	case "DISMISSED":
		return model.ReviewStateDismissed
	default:
		return model.ReviewStateCommented
	}
}

func toUser(u *gh.User) model.User {
	return model.User{
		Login: u.GetLogin(),
		Name:  u.GetName(),
	}
}

func splitRepo(repo string) (string, string, error) {
	owner, name, ok := strings.Cut(repo, "/")
	if !ok || owner == "" || name == "" {
		return "", "", fmt.Errorf("malformed repo %q, want owner/name", repo)
	}
	return owner, name, nil
}

// classify wraps transient failures with ErrUnavailable so the dispatcher can
// decide retry-queue eligibility without knowing HTTP details.
func classify(resp *gh.Response, err error) error {
	if resp == nil {
		// Network-level failure, no response at all.
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return err
}
