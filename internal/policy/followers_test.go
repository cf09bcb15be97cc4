package policy_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"tasklink.app/bridge/internal/model"
	"tasklink.app/bridge/internal/policy"
)

var _ = Describe("Followers", func() {
	userMap := map[string]string{
		"author":   "u-author",
		"assignee": "u-assignee",
		"reviewer": "u-reviewer",
		"pinged":   "u-pinged",
	}

	It("collects participants and mentions across the pull request", func() {
		pr := &model.PullRequest{
			Author:             model.User{Login: "author"},
			Body:               "cc @pinged",
			Assignees:          []model.User{{Login: "assignee"}},
			RequestedReviewers: []model.User{{Login: "reviewer"}},
			Comments: []model.Comment{
				{Author: model.User{Login: "author"}, Body: "done"},
			},
		}

		Expect(policy.Followers(pr, userMap)).To(Equal([]string{
			"u-assignee", "u-author", "u-pinged", "u-reviewer",
		}))
	})

	It("filters out handles without a downstream identity", func() {
		pr := &model.PullRequest{
			Author: model.User{Login: "stranger"},
			Body:   "ping @nobody and @pinged",
		}
		Expect(policy.Followers(pr, userMap)).To(Equal([]string{"u-pinged"}))
	})

	It("deduplicates a handle that appears in several roles", func() {
		pr := &model.PullRequest{
			Author:    model.User{Login: "author"},
			Assignees: []model.User{{Login: "author"}},
			Reviews: []model.Review{
				{Author: model.User{Login: "author"}, Body: "self review @author"},
			},
		}
		Expect(policy.Followers(pr, userMap)).To(Equal([]string{"u-author"}))
	})

	It("includes inline review comment authors and their mentions", func() {
		pr := &model.PullRequest{
			Author: model.User{Login: "stranger"},
			Reviews: []model.Review{{
				Author: model.User{Login: "reviewer"},
				Comments: []model.Comment{
					{Author: model.User{Login: "assignee"}, Body: "wdyt @pinged"},
				},
			}},
		}
		Expect(policy.Followers(pr, userMap)).To(Equal([]string{
			"u-assignee", "u-pinged", "u-reviewer",
		}))
	})

	It("returns an empty set when nobody maps", func() {
		pr := &model.PullRequest{Author: model.User{Login: "stranger"}}
		Expect(policy.Followers(pr, map[string]string{})).To(BeEmpty())
	})
})

var _ = Describe("Mentions", func() {
	It("extracts handles", func() {
		Expect(policy.Mentions("hey @alice and @bob-smith")).To(Equal([]string{"alice", "bob-smith"}))
	})

	It("returns nothing for plain text", func() {
		Expect(policy.Mentions("no mentions here")).To(BeEmpty())
	})
})
