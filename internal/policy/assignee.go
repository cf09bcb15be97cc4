// Package policy computes downstream field values from upstream entity state.
// Every function here is pure and total over well-formed input: decisions are
// re-derived from the current full snapshot, never from event deltas, so the
// engine is insensitive to event ordering.
package policy

import (
	"sort"

	"tasklink.app/bridge/internal/model"
)

// AssigneeReason explains how the assignee was picked, for logging at the
// side-effecting layer.
type AssigneeReason string

const (
	AssigneeReasonSingle         AssigneeReason = "single_assignee"
	AssigneeReasonAuthorFallback AssigneeReason = "author_fallback"
	AssigneeReasonAmbiguous      AssigneeReason = "ambiguous_first_login"
)

// ResolveAssignee picks the upstream login that should own the downstream
// task. Zero assignees fall back to the author; more than one resolves to the
// lexicographically-first login so repeated runs on unchanged input always
// agree.
func ResolveAssignee(pr *model.PullRequest) (string, AssigneeReason) {
	switch len(pr.Assignees) {
	case 0:
		return pr.Author.Login, AssigneeReasonAuthorFallback
	case 1:
		return pr.Assignees[0].Login, AssigneeReasonSingle
	default:
		logins := make([]string, len(pr.Assignees))
		for i, u := range pr.Assignees {
			logins[i] = u.Login
		}
		sort.Strings(logins)
		return logins[0], AssigneeReasonAmbiguous
	}
}
