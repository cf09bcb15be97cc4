package policy

import (
	"fmt"
	"strings"
)

// escaper covers the characters that matter in the destination's text
// contexts. Double and single quotes are intentionally left alone: the
// tracker only requires them escaped in attribute contexts, and escaping them
// in text garbles quoted prose.
var escaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
)

// TranslateBody converts an upstream body into downstream rich text:
// user-supplied text is escaped, bare URLs become link markup, and @-mentions
// with a known downstream identity become user references. Unmapped mentions
// stay as literal text.
func TranslateBody(body string, userMap map[string]string) string {
	out := escaper.Replace(body)
	out = linkURLs(out)
	out = linkMentions(out, userMap)
	return out
}

// linkMentions rewrites mapped @-handles outside anchor markup. User text is
// already escaped by the time this runs, so every `<a ` in the input is link
// markup produced by linkURLs; handles inside those spans (URL paths like
// /@alice, or link text) are left untouched.
func linkMentions(s string, userMap map[string]string) string {
	var out strings.Builder
	for {
		open := strings.Index(s, "<a ")
		if open < 0 {
			break
		}
		span := strings.Index(s[open:], "</a>")
		if span < 0 {
			break
		}
		end := open + span + len("</a>")
		out.WriteString(replaceMentions(s[:open], userMap))
		out.WriteString(s[open:end])
		s = s[end:]
	}
	out.WriteString(replaceMentions(s, userMap))
	return out.String()
}

func replaceMentions(s string, userMap map[string]string) string {
	return mentionPattern.ReplaceAllStringFunc(s, func(match string) string {
		handle := match[1:] // strip "@"
		downstreamID, ok := userMap[handle]
		if !ok {
			return match
		}
		return fmt.Sprintf(`<a data-user-id="%s">@%s</a>`, downstreamID, handle)
	})
}

func linkURLs(s string) string {
	var out strings.Builder
	last := 0
	for _, loc := range urlPattern.FindAllStringIndex(s, -1) {
		start, end := loc[0], loc[1]
		url := trimTrailingPunct(s[start:end])
		end = start + len(url)

		out.WriteString(s[last:start])
		if alreadyLinked(s, start) {
			out.WriteString(url)
		} else {
			out.WriteString(`<a href="` + url + `">` + url + `</a>`)
		}
		last = end
	}
	out.WriteString(s[last:])
	return out.String()
}

// alreadyLinked reports whether the URL at start sits inside existing link
// markup, so it is never wrapped a second time.
func alreadyLinked(s string, start int) bool {
	prefix := s[:start]
	return strings.HasSuffix(prefix, `href="`) || strings.HasSuffix(prefix, `">`)
}

func trimTrailingPunct(url string) string {
	return strings.TrimRight(url, ".,;:!?")
}
