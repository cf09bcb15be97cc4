package policy_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"tasklink.app/bridge/internal/model"
	"tasklink.app/bridge/internal/policy"
)

var _ = Describe("Completion", func() {
	var mergedAt time.Time

	review := func(state model.ReviewState, offset time.Duration) model.Review {
		return model.Review{
			Author:      model.User{Login: "reviewer"},
			State:       state,
			SubmittedAt: mergedAt.Add(offset),
		}
	}

	BeforeEach(func() {
		mergedAt = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	})

	Context("open pull request", func() {
		It("is never complete", func() {
			pr := &model.PullRequest{State: model.PullRequestStateOpen}
			Expect(policy.Completion(pr)).To(BeFalse())
		})

		It("stays incomplete even when approved", func() {
			pr := &model.PullRequest{
				State:   model.PullRequestStateOpen,
				Reviews: []model.Review{review(model.ReviewStateApproved, -time.Hour)},
			}
			Expect(policy.Completion(pr)).To(BeFalse())
		})
	})

	Context("closed without merging", func() {
		It("is complete regardless of reviews", func() {
			pr := &model.PullRequest{
				State:   model.PullRequestStateClosed,
				Reviews: []model.Review{review(model.ReviewStateChangesRequested, -time.Hour)},
			}
			Expect(policy.Completion(pr)).To(BeTrue())
		})
	})

	Context("merged", func() {
		newMerged := func(reviews ...model.Review) *model.PullRequest {
			return &model.PullRequest{
				State:    model.PullRequestStateClosed,
				Merged:   true,
				MergedAt: &mergedAt,
				Reviews:  reviews,
			}
		}

		It("is complete when the latest pre-merge verdict is approval", func() {
			pr := newMerged(
				review(model.ReviewStateChangesRequested, -2*time.Hour),
				review(model.ReviewStateApproved, -time.Hour),
			)
			Expect(policy.Completion(pr)).To(BeTrue())
		})

		It("is incomplete when the latest pre-merge verdict requests changes", func() {
			pr := newMerged(
				review(model.ReviewStateApproved, -2*time.Hour),
				review(model.ReviewStateChangesRequested, -time.Hour),
			)
			Expect(policy.Completion(pr)).To(BeFalse())
		})

		It("decides the same regardless of review slice order", func() {
			a := review(model.ReviewStateChangesRequested, -2*time.Hour)
			b := review(model.ReviewStateApproved, -time.Hour)
			Expect(policy.Completion(newMerged(a, b))).To(Equal(policy.Completion(newMerged(b, a))))
			Expect(policy.Completion(newMerged(b, a))).To(BeTrue())
		})

		It("ignores approvals submitted at or after the merge for the pre-merge rule", func() {
			pr := newMerged(
				review(model.ReviewStateChangesRequested, -time.Hour),
				review(model.ReviewStateApproved, 0),
			)
			// The post-merge approval has an empty body, so the phrase rule
			// does not rescue it either.
			Expect(policy.Completion(pr)).To(BeFalse())
		})

		It("ignores commented and dismissed reviews when picking the verdict", func() {
			pr := newMerged(
				review(model.ReviewStateApproved, -2*time.Hour),
				review(model.ReviewStateCommented, -time.Hour),
			)
			Expect(policy.Completion(pr)).To(BeTrue())
		})

		It("is complete when a post-merge comment carries an approval phrase", func() {
			pr := newMerged(review(model.ReviewStateChangesRequested, -time.Hour))
			pr.Comments = []model.Comment{{
				Body:      "LGTM, thanks for the fixes",
				CreatedAt: mergedAt.Add(time.Minute),
			}}
			Expect(policy.Completion(pr)).To(BeTrue())
		})

		It("is complete when a post-merge review body carries an approval phrase", func() {
			pr := newMerged(model.Review{
				State:       model.ReviewStateCommented,
				Body:        "ship it :shipit:",
				SubmittedAt: mergedAt,
			})
			Expect(policy.Completion(pr)).To(BeTrue())
		})

		It("is complete when a post-merge inline review comment carries an approval phrase", func() {
			r := review(model.ReviewStateCommented, -time.Hour)
			r.Comments = []model.Comment{{
				Kind:      model.CommentKindReview,
				Body:      "lgtm",
				CreatedAt: mergedAt.Add(time.Minute),
			}}
			Expect(policy.Completion(newMerged(r))).To(BeTrue())
		})

		It("ignores inline approval phrases posted before the merge", func() {
			r := review(model.ReviewStateCommented, -time.Hour)
			r.Comments = []model.Comment{{
				Kind:      model.CommentKindReview,
				Body:      "lgtm so far",
				CreatedAt: mergedAt.Add(-time.Minute),
			}}
			Expect(policy.Completion(newMerged(r))).To(BeFalse())
		})

		It("ignores approval phrases posted before the merge", func() {
			pr := newMerged()
			pr.Comments = []model.Comment{{
				Body:      "lgtm",
				CreatedAt: mergedAt.Add(-time.Minute),
			}}
			Expect(policy.Completion(pr)).To(BeFalse())
		})

		It("is incomplete with no reviews and no sign-off", func() {
			Expect(policy.Completion(newMerged())).To(BeFalse())
		})
	})
})

var _ = Describe("IsApprovalPhrase", func() {
	DescribeTable("phrase matching",
		func(body string, want bool) {
			Expect(policy.IsApprovalPhrase(body)).To(Equal(want))
		},
		Entry("lgtm", "lgtm", true),
		Entry("uppercase LGTM", "LGTM!", true),
		Entry("embedded in sentence", "ok, looks good to me", true),
		Entry("sgtm", "sgtm", true),
		Entry("sounds good", "Sounds good, merging", true),
		Entry("ship it", "ship it", true),
		Entry("plus one", "+1", true),
		Entry("thumbs up emoji", "👍", true),
		Entry("shipit shortcode", ":shipit:", true),
		Entry("plain comment", "can you rename this variable?", false),
		Entry("lgtm inside a word", "slgtmx", false),
		Entry("empty body", "", false),
	)
})
