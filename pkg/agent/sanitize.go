package agent

import (
	"regexp"
	"strings"
)

// FallbackReply is sent whenever sanitization leaves nothing visible.
// The user must never receive an empty message.
const FallbackReply = "Desculpa, não consegui montar uma resposta agora. Pode repetir, por favor?"

var (
	fencedBlockPattern = regexp.MustCompile("(?s)```.*?```")
	headingPattern     = regexp.MustCompile(`(?m)^#{1,6}[ \t]*`)
	emphasisReplacer   = strings.NewReplacer(
		"```", "",
		"**", "",
		"__", "",
		"~~", "",
		"*", "",
		"_", "",
		"`", "",
	)
)

// Sanitize strips markup the channel cannot render: fenced code blocks,
// emphasis characters and heading markers. Whitespace-only results are
// replaced with FallbackReply.
func Sanitize(text string) string {
	out := fencedBlockPattern.ReplaceAllString(text, "")
	out = headingPattern.ReplaceAllString(out, "")
	out = emphasisReplacer.Replace(out)
	out = strings.TrimSpace(out)
	if out == "" {
		return FallbackReply
	}
	return out
}
