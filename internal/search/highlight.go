package search

import (
	"regexp"
	"sort"
	"strings"
)

// Highlight wraps every case-insensitive occurrence of any term in text with
// « and » markers. Terms are tried longest-first so that, e.g., a query for
// both "Love" and "Love Song" marks the full "Love Song" rather than just
// "Love" — ported from original_source's ui.py _highlight_text, which
// achieves the same effect via
// sorted(terms, key=len, reverse=True) feeding a single re.sub alternation
// (Python/Go regex alternation is leftmost-first, so ordering the
// alternatives by descending length reproduces "longest match wins").
func Highlight(text string, terms []string) string {
	pattern := highlightPattern(terms)
	if pattern == nil {
		return text
	}
	return pattern.ReplaceAllString(text, "«$0»")
}

func highlightPattern(terms []string) *regexp.Regexp {
	var cleaned []string
	for _, t := range terms {
		t = strings.TrimSpace(t)
		if t != "" {
			cleaned = append(cleaned, t)
		}
	}
	if len(cleaned) == 0 {
		return nil
	}
	sort.SliceStable(cleaned, func(i, j int) bool { return len(cleaned[i]) > len(cleaned[j]) })

	parts := make([]string, len(cleaned))
	for i, t := range cleaned {
		parts[i] = regexp.QuoteMeta(t)
	}
	re, err := regexp.Compile("(?i)(" + strings.Join(parts, "|") + ")")
	if err != nil {
		return nil
	}
	return re
}
