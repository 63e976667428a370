package gov

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"
)

const maxTitleLen = 100

// Metadata is the decoded title/description of a proposal.
type Metadata struct {
	Title       string
	Description string
}

// DecodeMetadata interprets the opaque metadata blob from a creation event.
// In order: a JSON object with title/description fields (a missing title is
// synthesized from the proposal id); a content-addressed
// URI stored verbatim as the description (resolution is deferred); otherwise
// the first 100 characters of the text become the title. Every path is
// sanitized because the store rejects NUL bytes in text columns.
func DecodeMetadata(raw []byte, proposalID string) Metadata {
	fallbackTitle := fmt.Sprintf("Proposal %s", proposalID)

	text := strings.TrimSpace(string(raw))
	if text == "" {
		return Metadata{Title: fallbackTitle}
	}

	var decoded struct {
		Title       string `json:"title"`
		Description string `json:"description"`
	}
	if err := json.Unmarshal([]byte(text), &decoded); err == nil && (decoded.Title != "" || decoded.Description != "") {
		title := truncate(Sanitize(decoded.Title), maxTitleLen)
		if title == "" {
			title = fallbackTitle
		}
		return Metadata{
			Title:       title,
			Description: Sanitize(decoded.Description),
		}
	}

	clean := Sanitize(text)
	if strings.HasPrefix(clean, "ipfs://") {
		return Metadata{Title: fallbackTitle, Description: clean}
	}

	title := truncate(clean, maxTitleLen)
	if title == "" {
		title = fallbackTitle
	}
	return Metadata{Title: title}
}

// Sanitize strips control characters, NUL included, and drops invalid UTF-8.
func Sanitize(s string) string {
	s = strings.ToValidUTF8(s, "")
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
