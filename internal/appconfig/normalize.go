package appconfig

import (
	"regexp"
	"strings"
)

// DefaultJobID is substituted when a generated slug would otherwise be
// empty.
const DefaultJobID = "job"

var (
	validSlugRe  = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,99}$`)
	invalidChars = regexp.MustCompile(`[^a-z0-9_-]+`)
	leadingDash  = regexp.MustCompile(`^-+`)
	trailingDash = regexp.MustCompile(`-+$`)
)

// NormalizeJobSlug converts a user-provided job name into a stable,
// filesystem- and URL-safe slug: lowercase, invalid characters collapsed
// to "-", leading/trailing dashes stripped, capped at the 100-char
// job-name length.
func NormalizeJobSlug(name string) string {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return DefaultJobID
	}

	lower := strings.ToLower(trimmed)
	if validSlugRe.MatchString(lower) {
		return lower
	}

	result := invalidChars.ReplaceAllString(lower, "-")
	result = leadingDash.ReplaceAllString(result, "")
	result = trailingDash.ReplaceAllString(result, "")

	if len(result) > 100 {
		result = result[:100]
	}
	if result == "" {
		return DefaultJobID
	}
	return result
}
