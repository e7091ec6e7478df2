package format

import "strings"

// mdV2Specials is the full set of characters MarkdownV2 requires escaping
// outside of entities.
const mdV2Specials = "_*[]()~`>#+-=|{}.!"

const mdV1Specials = "_*`["

// EscapeMarkdown escapes legacy Markdown special characters. Use it for
// dynamic values interpolated into Markdown message templates.
func EscapeMarkdown(text string) string {
	return escape(text, mdV1Specials)
}

// EscapeMarkdownV2 escapes MarkdownV2 special characters. Screen text sent
// with the markdown markup must be escaped by the author; the renderer
// passes it through verbatim.
func EscapeMarkdownV2(text string) string {
	return escape(text, mdV2Specials)
}

func escape(text, specials string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if r < 128 && strings.ContainsRune(specials, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
