package metadata

import (
	"regexp"
	"strings"

	"metapro/internal/domain"
)

// Word characters follow Unicode rules so accented keywords survive.
var disallowedKeywordChars = regexp.MustCompile(`[^\p{L}\p{M}\p{N}_\s,]`)

// CleanKeywords strips characters outside the whitelist, keeps at most
// domain.MaxKeywords comma separated entries and returns them trimmed.
// Empty entries are dropped after truncation, so the result never grows.
func CleanKeywords(raw string) []string {
	filtered := disallowedKeywordChars.ReplaceAllString(raw, "")
	parts := strings.Split(filtered, ",")
	if len(parts) > domain.MaxKeywords {
		parts = parts[:domain.MaxKeywords]
	}
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// JoinKeywords renders keywords the way the report stores them.
func JoinKeywords(keywords []string) string {
	return strings.TrimSpace(strings.Join(keywords, ","))
}

// CleanTitle keeps the first non-empty line of the response, without
// surrounding quotes or markdown emphasis.
func CleanTitle(raw string) string {
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		line = strings.Trim(line, "*\"'`")
		line = strings.TrimSpace(line)
		if line != "" {
			return line
		}
	}
	return ""
}
