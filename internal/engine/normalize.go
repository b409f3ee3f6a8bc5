package engine

import (
	"strings"

	"golang.org/x/text/cases"
)

// normalizeKey folds codes, provider and source names for comparison.
// A Caser is stateful, so one is built per call.
func normalizeKey(s string) string {
	return cases.Fold().String(strings.Join(strings.Fields(s), " "))
}

// normalizeZip reduces a ZIP or ZIP+4 to its five-digit prefix.
func normalizeZip(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '-'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 5 {
		s = s[:5]
	}
	return s
}

// keySet is a normalized lookup set built from a configuration list.
type keySet map[string]struct{}

func newKeySet(values []string, norm func(string) string) keySet {
	set := make(keySet, len(values))
	for _, v := range values {
		if k := norm(v); k != "" {
			set[k] = struct{}{}
		}
	}
	return set
}

func (s keySet) has(key string) bool {
	_, ok := s[key]
	return ok
}

func codeSet(values []string) keySet { return newKeySet(values, normalizeKey) }

func zipSet(values []string) keySet { return newKeySet(values, normalizeZip) }

// firstMatch returns the first value whose normalized form is in set.
func firstMatch(set keySet, values []string) (string, bool) {
	for _, v := range values {
		if set.has(normalizeKey(v)) {
			return v, true
		}
	}
	return "", false
}
