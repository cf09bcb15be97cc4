package policy_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"tasklink.app/bridge/internal/policy"
)

var _ = Describe("TranslateBody", func() {
	userMap := map[string]string{"alice": "u-alice"}

	It("escapes angle brackets and ampersands but not quotes", func() {
		Expect(policy.TranslateBody(`a < b && c > "d"`, nil)).
			To(Equal(`a &lt; b &amp;&amp; c &gt; "d"`))
	})

	It("wraps bare URLs in link markup", func() {
		Expect(policy.TranslateBody("see https://example.com/page", nil)).
			To(Equal(`see <a href="https://example.com/page">https://example.com/page</a>`))
	})

	It("does not wrap a URL twice", func() {
		in := "see https://example.com and again https://example.com"
		out := policy.TranslateBody(in, nil)
		Expect(out).To(Equal(`see <a href="https://example.com">https://example.com</a> and again <a href="https://example.com">https://example.com</a>`))
	})

	It("drops trailing sentence punctuation from links", func() {
		Expect(policy.TranslateBody("read https://example.com/doc.", nil)).
			To(Equal(`read <a href="https://example.com/doc">https://example.com/doc</a>.`))
	})

	It("turns mapped mentions into user references", func() {
		Expect(policy.TranslateBody("thanks @alice", userMap)).
			To(Equal(`thanks <a data-user-id="u-alice">@alice</a>`))
	})

	It("does not rewrite a handle inside a linked URL", func() {
		Expect(policy.TranslateBody("see https://social.example/@alice for more", userMap)).
			To(Equal(`see <a href="https://social.example/@alice">https://social.example/@alice</a> for more`))
	})

	It("rewrites mentions around a link but not inside it", func() {
		out := policy.TranslateBody("@alice see https://social.example/@alice cc @alice", userMap)
		Expect(out).To(Equal(`<a data-user-id="u-alice">@alice</a> see ` +
			`<a href="https://social.example/@alice">https://social.example/@alice</a>` +
			` cc <a data-user-id="u-alice">@alice</a>`))
	})

	It("leaves unmapped mentions as literal text", func() {
		Expect(policy.TranslateBody("thanks @nobody", userMap)).
			To(Equal("thanks @nobody"))
	})

	It("handles an empty body", func() {
		Expect(policy.TranslateBody("", userMap)).To(Equal(""))
	})
})
