package policy

import (
	"regexp"
	"sort"

	"tasklink.app/bridge/internal/model"
)

var mentionPattern = regexp.MustCompile(`@([A-Za-z0-9](?:[A-Za-z0-9-]*[A-Za-z0-9])?)`)

// Followers computes the downstream follower set: author, assignees,
// reviewers, requested reviewers, commenters, plus every @-mention found in
// the pull request description, comments, and review bodies. Handles without
// a downstream mapping are filtered out. The result is deduplicated and
// sorted so repeated runs compare equal.
func Followers(pr *model.PullRequest, userMap map[string]string) []string {
	logins := make(map[string]struct{})

	add := func(login string) {
		if login != "" {
			logins[login] = struct{}{}
		}
	}

	add(pr.Author.Login)
	for _, u := range pr.Assignees {
		add(u.Login)
	}
	for _, u := range pr.RequestedReviewers {
		add(u.Login)
	}
	for _, r := range pr.Reviews {
		add(r.Author.Login)
		for _, m := range Mentions(r.Body) {
			add(m)
		}
		for _, c := range r.Comments {
			add(c.Author.Login)
			for _, m := range Mentions(c.Body) {
				add(m)
			}
		}
	}
	for _, c := range pr.Comments {
		add(c.Author.Login)
		for _, m := range Mentions(c.Body) {
			add(m)
		}
	}
	for _, m := range Mentions(pr.Body) {
		add(m)
	}

	var followers []string
	for login := range logins {
		if downstreamID, ok := userMap[login]; ok {
			followers = append(followers, downstreamID)
		}
	}
	sort.Strings(followers)
	return followers
}

// Mentions extracts @-mentioned handles from a body.
func Mentions(body string) []string {
	matches := mentionPattern.FindAllStringSubmatch(body, -1)
	handles := make([]string, 0, len(matches))
	for _, m := range matches {
		handles = append(handles, m[1])
	}
	return handles
}
