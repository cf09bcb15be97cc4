package policy

import (
	"sort"

	"tasklink.app/bridge/internal/model"
)

// Auto-merge labels, ordered by restrictiveness. Each label's requirements
// are a strict superset of the previous one's.
const (
	LabelAutoMerge                      = "automerge"
	LabelAutoMergeAfterTests            = "automerge-after-tests"
	LabelAutoMergeAfterTestsAndApproval = "automerge-after-tests-and-approval"
)

// automergeRules is evaluated in ascending restrictiveness; the first
// qualifying label present on the pull request wins, so when multiple labels
// are applied the least restrictive one decides. The rank table is a total
// order over the three known labels and unknown labels are ignored, which
// makes equal-rank conflicts impossible.
var automergeRules = []struct {
	label string
	ok    func(pr *model.PullRequest) bool
}{
	{LabelAutoMerge, func(pr *model.PullRequest) bool {
		return pr.Mergeable
	}},
	{LabelAutoMergeAfterTests, func(pr *model.PullRequest) bool {
		return pr.Mergeable && pr.BuildState == model.BuildStateSuccess
	}},
	{LabelAutoMergeAfterTestsAndApproval, func(pr *model.PullRequest) bool {
		return pr.Mergeable && pr.BuildState == model.BuildStateSuccess && FullyApproved(pr)
	}},
}

// AutoMerge reports whether the pull request is eligible for automatic
// merging. Disabled entirely by feature flag, and never applies to closed or
// already-merged pull requests.
func AutoMerge(pr *model.PullRequest, enabled bool) bool {
	if !enabled {
		return false
	}
	if pr.State == model.PullRequestStateClosed || pr.Merged {
		return false
	}
	for _, rule := range automergeRules {
		if pr.HasLabel(rule.label) && rule.ok(pr) {
			return true
		}
	}
	return false
}

// FullyApproved requires at least one approval and no reviewer whose most
// recent review still requests changes. A later approval or dismissal from
// the same reviewer supersedes their earlier changes-requested state.
func FullyApproved(pr *model.PullRequest) bool {
	sorted := make([]model.Review, len(pr.Reviews))
	copy(sorted, pr.Reviews)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].SubmittedAt.Before(sorted[j].SubmittedAt)
	})

	latest := make(map[string]model.ReviewState)
	approvals := 0
	for _, r := range sorted {
		switch r.State {
		case model.ReviewStateApproved, model.ReviewStateChangesRequested, model.ReviewStateDismissed:
			latest[r.Author.Login] = r.State
		}
	}
	for _, state := range latest {
		switch state {
		case model.ReviewStateChangesRequested:
			return false
		case model.ReviewStateApproved:
			approvals++
		}
	}
	return approvals > 0
}
