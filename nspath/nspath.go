// Package nspath matches slash-delimited namespace paths against patterns.
//
// A pattern has the same shape as a path, except that any segment may be the
// wildcard "*", which matches exactly one non-empty segment. A segment is either
// fully wildcard or fully literal; there is no substring globbing and no
// multi-segment wildcard.
package nspath

import (
	"fmt"
	"slices"
	"strings"
)

const (
	Separator = "/"
	Wildcard  = "*"
)

type (
	// Entry is one path and its scalar value.
	Entry struct {
		Path  string
		Value string
	}
)

// Split breaks a path into segments. Leading and trailing separators are
// ignored, so "/a/b/" and "a/b" split the same way. The empty path has no
// segments.
func Split(path string) []string {
	path = strings.Trim(path, Separator)
	if path == "" {
		return nil
	}
	return strings.Split(path, Separator)
}

// Join assembles a path from segments, skipping empty ones.
func Join(segments ...string) string {
	parts := make([]string, 0, len(segments))
	for _, seg := range segments {
		seg = strings.Trim(seg, Separator)
		if seg != "" {
			parts = append(parts, seg)
		}
	}
	return strings.Join(parts, Separator)
}

// Clean returns the canonical form of a path (no leading or trailing separator).
func Clean(path string) string {
	return strings.Join(Split(path), Separator)
}

// Parent returns the path without its last segment.
func Parent(path string) string {
	segs := Split(path)
	if len(segs) <= 1 {
		return ""
	}
	return strings.Join(segs[:len(segs)-1], Separator)
}

// Base returns the last segment of a path.
func Base(path string) string {
	segs := Split(path)
	if len(segs) == 0 {
		return ""
	}
	return segs[len(segs)-1]
}

// Validate checks that a path can be used as a stored key.
func Validate(path string) error {
	if strings.Trim(path, Separator) == "" {
		return fmt.Errorf("empty path")
	}
	for _, seg := range strings.Split(strings.Trim(path, Separator), Separator) {
		if seg == "" {
			return fmt.Errorf("path %q has an empty segment", path)
		}
		if seg == Wildcard {
			return fmt.Errorf("path %q contains a wildcard", path)
		}
	}
	return nil
}

// IsPattern reports whether any segment of p is a wildcard.
func IsPattern(p string) bool {
	return slices.Contains(Split(p), Wildcard)
}

// LiteralPrefix returns the segments of a pattern that precede its first wildcard.
func LiteralPrefix(pattern string) string {
	segs := Split(pattern)
	for i, seg := range segs {
		if seg == Wildcard {
			return strings.Join(segs[:i], Separator)
		}
	}
	return strings.Join(segs, Separator)
}

// HasPrefix reports whether prefix is path itself or one of its ancestors,
// comparing whole segments.
func HasPrefix(path, prefix string) bool {
	path = Clean(path)
	prefix = Clean(prefix)
	if prefix == "" {
		return true
	}
	return path == prefix || strings.HasPrefix(path, prefix+Separator)
}

func matchSegments(segs, pats []string) bool {
	for i, pat := range pats {
		if segs[i] == "" {
			return false
		}
		if pat != Wildcard && pat != segs[i] {
			return false
		}
	}
	return true
}

// Match reports whether path matches pattern segment for segment. The segment
// counts must be equal.
func Match(path, pattern string) bool {
	segs := Split(path)
	pats := Split(pattern)
	if len(segs) != len(pats) {
		return false
	}
	return matchSegments(segs, pats)
}

// MatchTree reports whether the leading segments of path match pattern, that
// is, whether path is a match or lies below one.
func MatchTree(path, pattern string) bool {
	segs := Split(path)
	pats := Split(pattern)
	if len(segs) < len(pats) {
		return false
	}
	return matchSegments(segs[:len(pats)], pats)
}

// Select returns the entries of m whose path matches pattern, ordered by path.
func Select(m map[string]string, pattern string) []Entry {
	return collect(m, func(path string) bool { return Match(path, pattern) })
}

// SelectTree returns the entries of m that match pattern or lie below a match,
// ordered by path.
func SelectTree(m map[string]string, pattern string) []Entry {
	return collect(m, func(path string) bool { return MatchTree(path, pattern) })
}

func collect(m map[string]string, keep func(path string) bool) []Entry {
	entries := []Entry{}
	for path, value := range m {
		if keep(path) {
			entries = append(entries, Entry{Path: path, Value: value})
		}
	}
	slices.SortFunc(entries, func(a, b Entry) int { return strings.Compare(a.Path, b.Path) })
	return entries
}

// ToMap converts ordered entries back to a mapping.
func ToMap(entries []Entry) map[string]string {
	m := make(map[string]string, len(entries))
	for _, e := range entries {
		m[e.Path] = e.Value
	}
	return m
}
