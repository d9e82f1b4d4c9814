// Package safety post-processes generated suggestion text before it is
// spoken: whitespace normalization, a hard word cap, a topic denylist,
// and softening of imperative phrasing. The output contract is simple:
// empty string means "do not say this".
package safety

import (
	"log/slog"
	"regexp"
	"strings"
)

// maxWords caps the spoken length of one suggestion.
const maxWords = 120

var denylist = []*regexp.Regexp{
	regexp.MustCompile(`\bdiagnos(e|is)\b`),
	regexp.MustCompile(`\btherapy\b`),
	regexp.MustCompile(`\bmedical\b`),
	regexp.MustCompile(`\bdepression\b`),
	regexp.MustCompile(`\bsex\b`),
	regexp.MustCompile(`\bsexual\b`),
	regexp.MustCompile(`\bexplicit\b`),
	regexp.MustCompile(`\bnude\b`),
	regexp.MustCompile(`\bcaress\b`),
	regexp.MustCompile(`\bgrab\b`),
	regexp.MustCompile(`\bgrope\b`),
	regexp.MustCompile(`\bbed\b`),
	regexp.MustCompile(`\bkiss\b`),
	regexp.MustCompile(`\btouch\b`),
	regexp.MustCompile(`\bpolitic(s|al)\b`),
	regexp.MustCompile(`\breligion\b`),
}

var (
	whitespace = regexp.MustCompile(`\s+`)
	imperative = regexp.MustCompile(`(?i)\b(you should|you must|you need to)\b`)
)

// Filter returns the sanitized suggestion, or "" when the text trips
// the denylist. The denylist runs against the lowercased text after
// normalization and truncation, matching whole words only.
func Filter(text string, logger *slog.Logger) string {
	if text == "" {
		return ""
	}

	cleaned := strings.TrimSpace(whitespace.ReplaceAllString(text, " "))
	words := strings.Split(cleaned, " ")
	if len(words) > maxWords {
		cleaned = strings.Join(words[:maxWords], " ")
	}

	lowered := strings.ToLower(cleaned)
	for _, pattern := range denylist {
		if pattern.MatchString(lowered) {
			if logger != nil {
				logger.Info("suggestion blocked", "pattern", pattern.String())
			}
			return ""
		}
	}

	return imperative.ReplaceAllString(cleaned, "you could")
}
