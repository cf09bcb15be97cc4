package policy_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"tasklink.app/bridge/internal/policy"
)

var _ = Describe("ExtractAssets", func() {
	It("finds image and video URLs", func() {
		body := "before https://cdn.example.com/shot.png and https://cdn.example.com/demo.mp4 after"
		Expect(policy.ExtractAssets(body)).To(Equal([]string{
			"https://cdn.example.com/shot.png",
			"https://cdn.example.com/demo.mp4",
		}))
	})

	It("ignores non-asset URLs", func() {
		Expect(policy.ExtractAssets("see https://example.com/page")).To(BeEmpty())
	})

	It("deduplicates repeated references in stable order", func() {
		body := "https://cdn.example.com/a.gif then https://cdn.example.com/b.gif then https://cdn.example.com/a.gif"
		Expect(policy.ExtractAssets(body)).To(Equal([]string{
			"https://cdn.example.com/a.gif",
			"https://cdn.example.com/b.gif",
		}))
	})
})

var _ = Describe("DiffAttachments", func() {
	It("splits previous entries into keep and delete, and new URLs into create", func() {
		previous := map[string]string{
			"https://cdn.example.com/keep.png": "att-1",
			"https://cdn.example.com/gone.png": "att-2",
		}
		current := []string{
			"https://cdn.example.com/keep.png",
			"https://cdn.example.com/new.png",
		}

		diff := policy.DiffAttachments(current, previous)
		Expect(diff.ToKeep).To(Equal(map[string]string{"https://cdn.example.com/keep.png": "att-1"}))
		Expect(diff.ToDelete).To(Equal(map[string]string{"https://cdn.example.com/gone.png": "att-2"}))
		Expect(diff.ToCreate).To(Equal([]string{"https://cdn.example.com/new.png"}))
	})

	It("deletes everything when the body no longer references assets", func() {
		previous := map[string]string{"https://cdn.example.com/a.png": "att-1"}
		diff := policy.DiffAttachments(nil, previous)
		Expect(diff.ToDelete).To(Equal(previous))
		Expect(diff.ToKeep).To(BeEmpty())
		Expect(diff.ToCreate).To(BeEmpty())
	})

	It("creates everything on first sight", func() {
		diff := policy.DiffAttachments([]string{"https://cdn.example.com/b.png", "https://cdn.example.com/a.png"}, nil)
		Expect(diff.ToCreate).To(Equal([]string{"https://cdn.example.com/a.png", "https://cdn.example.com/b.png"}))
		Expect(diff.ToDelete).To(BeEmpty())
	})

	It("is a no-op when nothing changed", func() {
		previous := map[string]string{"https://cdn.example.com/a.png": "att-1"}
		diff := policy.DiffAttachments([]string{"https://cdn.example.com/a.png"}, previous)
		Expect(diff.ToKeep).To(Equal(previous))
		Expect(diff.ToDelete).To(BeEmpty())
		Expect(diff.ToCreate).To(BeEmpty())
	})
})
