package call

import (
	"regexp"
	"strings"
)

// Script text is relayed to a speech synthesiser, so everything that reads
// badly aloud has to go: markdown structure, emoji, and anything outside a
// small safe punctuation set.
var (
	fencedCodeRe = regexp.MustCompile("(?s)```.*?```")
	imageRe      = regexp.MustCompile(`!\[[^\]]*\]\([^)]*\)`)
	linkRe       = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	listMarkerRe = regexp.MustCompile(`(?m)^\s*([-*+]|\d+\.)\s+`)
	unsafeRe     = regexp.MustCompile(`[^\w\s.,!?'"-]`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// Sanitize prepares assistant text for the avatar's echo event: code blocks
// and image references are dropped, links keep their visible text, every
// remaining character outside the safe set is removed, and whitespace is
// collapsed to single spaces.
func Sanitize(text string) string {
	t := fencedCodeRe.ReplaceAllString(text, " ")
	t = imageRe.ReplaceAllString(t, " ")
	t = linkRe.ReplaceAllString(t, "$1")
	t = listMarkerRe.ReplaceAllString(t, "")
	t = unsafeRe.ReplaceAllString(t, "")
	t = whitespaceRe.ReplaceAllString(t, " ")
	return strings.TrimSpace(t)
}
