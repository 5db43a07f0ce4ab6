package mixtape

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

var (
	slugWhitespace = regexp.MustCompile(`[\s_]+`)
	slugNonAlnum   = regexp.MustCompile(`[^a-z0-9-]+`)
	slugHyphenRun  = regexp.MustCompile(`-+`)
)

// sanitizeTitle slugifies title: lowercase, collapse whitespace/underscore
// runs to a hyphen, strip anything left that isn't [a-z0-9-], collapse
// hyphen runs, trim leading/trailing hyphens. An empty result becomes
// "untitled". Grounded on mixtape_manager.py's _sanitize_title.
func sanitizeTitle(title string) string {
	s := strings.ToLower(strings.TrimSpace(title))
	s = slugWhitespace.ReplaceAllString(s, "-")
	s = slugNonAlnum.ReplaceAllString(s, "")
	s = slugHyphenRun.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if s == "" {
		return "untitled"
	}
	return s
}

// uniqueSlug returns a slug for title that doesn't collide with an existing
// file under m.dir, appending -1, -2, ... as needed. currentSlug is the
// document's own existing slug (if any) — a candidate matching it is
// considered available since it would just overwrite itself.
func (m *Manager) uniqueSlug(title, currentSlug string) (string, error) {
	base := sanitizeTitle(title)
	if base == currentSlug {
		return base, nil
	}
	taken, err := m.slugExists(base)
	if err != nil {
		return "", err
	}
	if !taken {
		return base, nil
	}
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s-%d", base, i)
		if candidate == currentSlug {
			return candidate, nil
		}
		taken, err := m.slugExists(candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}
}

func (m *Manager) slugExists(slug string) (bool, error) {
	_, err := os.Stat(m.jsonPath(slug))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}
