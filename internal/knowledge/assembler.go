// Package knowledge turns a bot's knowledge base into the bounded context
// text handed to the completion provider.
package knowledge

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/memohai/chatgate/internal/bots"
)

const (
	faqHeader        = "FREQUENTLY ASKED QUESTIONS:"
	documentHeader   = "DOCUMENTS:"
	urlHeader        = "WEB PAGES:"
	structuredHeader = "STRUCTURED DATA:"
	sectionSeparator = "\n\n"
)

// Limits caps how many enabled sources of each kind are included.
type Limits struct {
	Documents  int
	URLs       int
	Structured int
}

// DefaultLimits includes the first ten enabled sources of each kind.
func DefaultLimits() Limits {
	return Limits{Documents: 10, URLs: 10, Structured: 10}
}

type section struct {
	header string
	body   string
	// pinned sections are never truncated.
	pinned bool
}

func (s section) text() string {
	return s.header + "\n" + s.body
}

// Assemble builds the context for kb in fixed order: FAQs, documents, web
// pages, structured data. When the result is longer than maxLength runes,
// sections are cut from the tail starting with the lowest priority one; a
// section is removed completely before the one above it is touched. FAQs are
// always kept whole. A non-positive maxLength disables truncation.
func Assemble(kb bots.KnowledgeBase, maxLength int, limits Limits) string {
	sections := buildSections(kb, limits)
	if len(sections) == 0 {
		return ""
	}
	texts := make([]string, len(sections))
	total := 0
	for i, s := range sections {
		texts[i] = s.text()
		total += utf8.RuneCountInString(texts[i])
	}
	total += (len(texts) - 1) * utf8.RuneCountInString(sectionSeparator)

	if maxLength > 0 && total > maxLength {
		sepLen := utf8.RuneCountInString(sectionSeparator)
		for i := len(texts) - 1; i >= 0 && total > maxLength; i-- {
			if sections[i].pinned {
				break
			}
			excess := total - maxLength
			length := utf8.RuneCountInString(texts[i])
			keep := length - excess
			if keep <= utf8.RuneCountInString(sections[i].header)+1 {
				total -= length
				if i > 0 {
					total -= sepLen
				}
				texts = texts[:i]
				continue
			}
			texts[i] = truncateRunes(texts[i], keep)
			total -= excess
		}
	}
	return strings.Join(texts, sectionSeparator)
}

func buildSections(kb bots.KnowledgeBase, limits Limits) []section {
	sections := make([]section, 0, 4)

	if faqs := joinFAQs(kb.FAQs); faqs != "" {
		sections = append(sections, section{header: faqHeader, body: faqs, pinned: true})
	}

	var docs []string
	for _, doc := range kb.Documents {
		if !doc.Enabled || strings.TrimSpace(doc.Content) == "" {
			continue
		}
		if limits.Documents > 0 && len(docs) >= limits.Documents {
			break
		}
		docs = append(docs, fmt.Sprintf("[%s]\n%s", sourceTitle(doc.Name, doc.ID), strings.TrimSpace(doc.Content)))
	}
	if len(docs) > 0 {
		sections = append(sections, section{header: documentHeader, body: strings.Join(docs, "\n\n")})
	}

	var pages []string
	for _, page := range kb.URLs {
		if !page.Enabled || strings.TrimSpace(page.Content) == "" {
			continue
		}
		if limits.URLs > 0 && len(pages) >= limits.URLs {
			break
		}
		title := sourceTitle(page.Title, page.URL)
		if page.URL != "" && title != page.URL {
			title += " (" + page.URL + ")"
		}
		pages = append(pages, fmt.Sprintf("[%s]\n%s", title, strings.TrimSpace(page.Content)))
	}
	if len(pages) > 0 {
		sections = append(sections, section{header: urlHeader, body: strings.Join(pages, "\n\n")})
	}

	var records []string
	for _, record := range kb.StructuredData {
		if !record.Enabled || len(bytes.TrimSpace(record.Data)) == 0 {
			continue
		}
		if limits.Structured > 0 && len(records) >= limits.Structured {
			break
		}
		label := sourceTitle(record.Name, record.ID)
		if record.Type != "" {
			label = string(record.Type) + ": " + label
		}
		records = append(records, fmt.Sprintf("[%s]\n%s", label, compactJSON(record.Data)))
	}
	if len(records) > 0 {
		sections = append(sections, section{header: structuredHeader, body: strings.Join(records, "\n\n")})
	}
	return sections
}

func joinFAQs(faqs []string) string {
	lines := make([]string, 0, len(faqs))
	for _, faq := range faqs {
		if faq = strings.TrimSpace(faq); faq != "" {
			lines = append(lines, "- "+faq)
		}
	}
	return strings.Join(lines, "\n")
}

func sourceTitle(name, fallback string) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	return strings.TrimSpace(fallback)
}

// compactJSON strips insignificant whitespace. Invalid JSON is kept verbatim.
func compactJSON(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return strings.TrimSpace(string(raw))
	}
	return buf.String()
}

func truncateRunes(value string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if utf8.RuneCountInString(value) <= limit {
		return value
	}
	count := 0
	for i := range value {
		if count == limit {
			return value[:i]
		}
		count++
	}
	return value
}
