package model

import (
	"fmt"
	"time"
)

type PullRequestState string

const (
	PullRequestStateOpen   PullRequestState = "open"
	PullRequestStateClosed PullRequestState = "closed"
)

type ReviewState string

const (
	ReviewStateApproved         ReviewState = "approved"
	ReviewStateChangesRequested ReviewState = "changes_requested"
	ReviewStateCommented        ReviewState = "commented"
	ReviewStateDismissed        ReviewState = "dismissed"
)

type BuildState string

const (
	BuildStatePending BuildState = "pending"
	BuildStateSuccess BuildState = "success"
	BuildStateFailure BuildState = "failure"
)

type User struct {
	Login string `json:"login"`
	Name  string `json:"name,omitempty"`
}

type Label struct {
	Name string `json:"name"`
}

// PullRequest is an immutable-once-fetched snapshot of an upstream pull
// request, including its reviews and issue comments. It is fetched fresh on
// every event and never cached across events.
type PullRequest struct {
	ID                 int64            `json:"id"`
	Number             int              `json:"number"`
	Repo               string           `json:"repo"` // "owner/name"
	Title              string           `json:"title"`
	Body               string           `json:"body"`
	Author             User             `json:"author"`
	State              PullRequestState `json:"state"`
	Merged             bool             `json:"merged"`
	MergedAt           *time.Time       `json:"merged_at,omitempty"`
	HTMLURL            string           `json:"html_url"`
	HeadSHA            string           `json:"head_sha"`
	Mergeable          bool             `json:"mergeable"`
	BuildState         BuildState       `json:"build_state"`
	Labels             []Label          `json:"labels"`
	Assignees          []User           `json:"assignees"`
	RequestedReviewers []User           `json:"requested_reviewers"`
	Reviews            []Review         `json:"reviews"`
	Comments           []Comment        `json:"comments"`
}

// Key returns the stable identity-mapping key for the pull request. It is
// repo-scoped because events for the same pull request carry different
// upstream ids depending on the event family (pull_request vs issue_comment).
func (p *PullRequest) Key() string {
	return PullRequestKey(p.Repo, p.Number)
}

func PullRequestKey(repo string, number int) string {
	return fmt.Sprintf("pull:%s:%d", repo, number)
}

func (p *PullRequest) HasLabel(name string) bool {
	for _, l := range p.Labels {
		if l.Name == name {
			return true
		}
	}
	return false
}

type Review struct {
	ID          int64       `json:"id"`
	Author      User        `json:"author"`
	State       ReviewState `json:"state"`
	Body        string      `json:"body"`
	SubmittedAt time.Time   `json:"submitted_at"`
	HTMLURL     string      `json:"html_url"`
	Comments    []Comment   `json:"comments,omitempty"`
}

func (r *Review) Key() string {
	return ReviewKey(r.ID)
}

func ReviewKey(id int64) string {
	return fmt.Sprintf("review:%d", id)
}
