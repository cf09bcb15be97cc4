package policy

import (
	"regexp"
	"sort"

	"tasklink.app/bridge/internal/model"
)

// approvalPhrase matches the post-merge approval vocabulary. The upstream
// system never clears a changes-requested review after the requested changes
// are merged, so a merged pull request can also be signed off by a comment or
// review posted at/after the merge. The phrase set is deliberately literal;
// keep it in sync with reviewer habits, not with what looks tidy.
var approvalPhrase = regexp.MustCompile(`(?i)\b(lgtm|sgtm|sounds good|looks? good|ship it)\b|\+1|:shipit:|:\+1:|👍|🚢`)

// IsApprovalPhrase reports whether a body counts as a post-merge sign-off.
func IsApprovalPhrase(body string) bool {
	return approvalPhrase.MatchString(body)
}

// Completion decides whether the downstream task is complete.
//
// Not closed: never complete. Closed without merging: complete (abandoned).
// Closed and merged: complete only if the pull request was approved before
// merging, or signed off after merging via an approval phrase.
func Completion(pr *model.PullRequest) bool {
	if pr.State != model.PullRequestStateClosed {
		return false
	}
	if !pr.Merged {
		return true
	}
	return approvedBeforeMerge(pr) || approvedAfterMerge(pr)
}

// approvedBeforeMerge looks at the latest approval-or-changes-requested
// review submitted strictly before the merge. Reviews arrive in no guaranteed
// order, so they are stably sorted before the decision.
func approvedBeforeMerge(pr *model.PullRequest) bool {
	if pr.MergedAt == nil {
		return false
	}

	var relevant []model.Review
	for _, r := range pr.Reviews {
		if r.State != model.ReviewStateApproved && r.State != model.ReviewStateChangesRequested {
			continue
		}
		if r.SubmittedAt.Before(*pr.MergedAt) {
			relevant = append(relevant, r)
		}
	}
	if len(relevant) == 0 {
		return false
	}

	sort.SliceStable(relevant, func(i, j int) bool {
		return relevant[i].SubmittedAt.Before(relevant[j].SubmittedAt)
	})
	return relevant[len(relevant)-1].State == model.ReviewStateApproved
}

func approvedAfterMerge(pr *model.PullRequest) bool {
	if pr.MergedAt == nil {
		return false
	}
	mergedAt := *pr.MergedAt

	for _, c := range pr.Comments {
		if !c.CreatedAt.Before(mergedAt) && IsApprovalPhrase(c.Body) {
			return true
		}
	}
	for _, r := range pr.Reviews {
		if !r.SubmittedAt.Before(mergedAt) && IsApprovalPhrase(r.Body) {
			return true
		}
		// Inline comments count too; a sign-off is a sign-off wherever the
		// reviewer happened to type it.
		for _, c := range r.Comments {
			if !c.CreatedAt.Before(mergedAt) && IsApprovalPhrase(c.Body) {
				return true
			}
		}
	}
	return false
}
