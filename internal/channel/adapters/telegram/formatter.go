package telegram

import (
	"regexp"
	"strings"
)

var (
	numberedLinePattern = regexp.MustCompile(`^(\d+)\.\s+(.+)$`)
	bulletLinePattern   = regexp.MustCompile(`^[-•]\s+(.+)$`)
	inlineCodePattern   = regexp.MustCompile("`([^`\n]+)`")
	boldPattern         = regexp.MustCompile(`\*\*([^*\n]+)\*\*`)
	manyNewlines        = regexp.MustCompile(`\n{3,}`)
	headingLinePattern  = regexp.MustCompile(`(?m)^(.+):\n`)
	repeatedBlanks      = regexp.MustCompile(`[ \t]{2,}`)
	htmlEscaper         = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
)

// FormatHTML renders markdown-flavoured completion text as Telegram HTML.
// Numbered items get a bold number, dash bullets become "•", **bold** and
// `code` spans become tags. Other text is HTML-escaped.
func FormatHTML(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = manyNewlines.ReplaceAllString(text, "\n\n")
	text = strings.ReplaceAll(text, "\n\n", "\n")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case numberedLinePattern.MatchString(trimmed):
			m := numberedLinePattern.FindStringSubmatch(trimmed)
			lines[i] = "<b>" + m[1] + ".</b> " + formatInline(m[2])
		case bulletLinePattern.MatchString(trimmed):
			m := bulletLinePattern.FindStringSubmatch(trimmed)
			lines[i] = "• " + formatInline(m[1])
		default:
			lines[i] = formatInline(line)
		}
	}
	out := strings.Join(lines, "\n")
	out = headingLinePattern.ReplaceAllString(out, "$1:\n\n")
	out = repeatedBlanks.ReplaceAllString(out, " ")
	return strings.TrimSpace(out)
}

// formatInline converts code spans first so their content is never bolded.
func formatInline(s string) string {
	var b strings.Builder
	last := 0
	for _, loc := range inlineCodePattern.FindAllStringSubmatchIndex(s, -1) {
		b.WriteString(formatBold(s[last:loc[0]]))
		b.WriteString("<code>")
		b.WriteString(htmlEscaper.Replace(s[loc[2]:loc[3]]))
		b.WriteString("</code>")
		last = loc[1]
	}
	b.WriteString(formatBold(s[last:]))
	return b.String()
}

func formatBold(s string) string {
	var b strings.Builder
	last := 0
	for _, loc := range boldPattern.FindAllStringSubmatchIndex(s, -1) {
		b.WriteString(htmlEscaper.Replace(s[last:loc[0]]))
		b.WriteString("<b>")
		b.WriteString(htmlEscaper.Replace(s[loc[2]:loc[3]]))
		b.WriteString("</b>")
		last = loc[1]
	}
	b.WriteString(htmlEscaper.Replace(s[last:]))
	return b.String()
}
