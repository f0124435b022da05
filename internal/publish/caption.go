package publish

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"

	"herald/internal/queue"
)

// BuildCaption renders text, then a blank line with hashtags and mentions,
// then the link. The result is NFC normalized.
func BuildCaption(content queue.Content) string {
	return buildCaption(content.Text, content, true)
}

func buildCaption(text string, content queue.Content, withLink bool) string {
	var sections []string
	if body := strings.TrimSpace(text); body != "" {
		sections = append(sections, body)
	}
	var extras []string
	for _, tag := range content.Hashtags {
		if tag = prefixed(tag, "#"); tag != "" {
			extras = append(extras, tag)
		}
	}
	for _, mention := range content.Mentions {
		if mention = prefixed(mention, "@"); mention != "" {
			extras = append(extras, mention)
		}
	}
	if len(extras) > 0 {
		sections = append(sections, strings.Join(extras, " "))
	}
	if link := strings.TrimSpace(content.Link); withLink && link != "" {
		sections = append(sections, link)
	}
	return norm.NFC.String(strings.Join(sections, "\n\n"))
}

func prefixed(value, prefix string) string {
	value = strings.TrimSpace(value)
	value = strings.TrimLeft(value, prefix)
	if value == "" {
		return ""
	}
	return prefix + value
}

var threadSeparator = regexp.MustCompile(`(?m)^\s*---\s*$`)

// SplitThread breaks text into thread parts on lines containing only "---".
// Empty parts are dropped.
func SplitThread(text string) []string {
	raw := threadSeparator.Split(text, -1)
	parts := make([]string, 0, len(raw))
	for _, part := range raw {
		if part = strings.TrimSpace(part); part != "" {
			parts = append(parts, part)
		}
	}
	return parts
}
