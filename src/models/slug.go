package models

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const MaxSlugLength = 80

var reSlugSeparators = regexp.MustCompile(`[^a-z0-9]+`)

// GeneratePostSlug folds a title to lowercase ASCII words joined by hyphens.
// Titles with nothing usable in them produce an empty string.
func GeneratePostSlug(title string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, title)
	if err != nil {
		folded = title
	}

	slug := reSlugSeparators.ReplaceAllString(strings.ToLower(folded), "-")
	slug = strings.Trim(slug, "-")
	if len(slug) > MaxSlugLength {
		slug = strings.TrimRight(slug[:MaxSlugLength], "-")
	}
	return slug
}

var reAllDigits = regexp.MustCompile(`^[0-9]+$`)

// SlugCandidate returns the n-th slug to try for a base slug: the base itself, then
// base-2, base-3 and so on. Slugs are never all digits, since those read as post ids.
func SlugCandidate(base string, n int) string {
	if base == "" {
		base = "post"
	} else if reAllDigits.MatchString(base) {
		base = "post-" + base
	}
	if n <= 1 {
		return base
	}
	return fmt.Sprintf("%s-%d", base, n)
}
