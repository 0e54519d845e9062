package voice

import (
	"regexp"
	"strings"
)

var (
	emojiRe  = regexp.MustCompile(`[\x{1F300}-\x{1F9FF}\x{2600}-\x{26FF}\x{2700}-\x{27BF}\x{1F600}-\x{1F64F}\x{1F680}-\x{1F6FF}\x{FE0F}\x{200D}]`)
	boldRe   = regexp.MustCompile(`\*\*(.*?)\*\*`)
	italicRe = regexp.MustCompile(`\*(.*?)\*`)
	linkRe   = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
)

// CleanTextForSpeech strips emoji, markdown emphasis and links, and
// collapses whitespace.
func CleanTextForSpeech(text string) string {
	s := emojiRe.ReplaceAllString(text, "")
	s = boldRe.ReplaceAllString(s, "$1")
	s = italicRe.ReplaceAllString(s, "$1")
	s = linkRe.ReplaceAllString(s, "$1")
	return strings.Join(strings.Fields(s), " ")
}
