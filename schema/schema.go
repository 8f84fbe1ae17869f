// Package schema declares scalar kinds for namespace properties. A value
// written to a typed property must parse as its declared kind.
package schema

import (
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/jimsnab/go-cns-console/cnserr"
	"github.com/jimsnab/go-cns-console/nspath"
)

type Kind int

const (
	KindString Kind = iota
	KindNumber
	KindBoolean
)

type (
	Rule struct {
		Pattern string
		Kind    Kind
	}

	Schema struct {
		mu    sync.RWMutex
		rules []Rule
	}
)

var kindNames = []string{"string", "number", "boolean"}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

func ParseKind(name string) (Kind, error) {
	switch strings.ToLower(name) {
	case "string", "str":
		return KindString, nil
	case "number", "num", "int", "float":
		return KindNumber, nil
	case "boolean", "bool":
		return KindBoolean, nil
	}
	return KindString, cnserr.New(cnserr.KindArgument, "unknown property kind: %s", name)
}

func New(rules ...Rule) *Schema {
	return &Schema{rules: slices.Clone(rules)}
}

// FromMap builds a schema from pattern to kind name pairs, as found in a
// configuration file.
func FromMap(m map[string]string) (*Schema, error) {
	patterns := make([]string, 0, len(m))
	for p := range m {
		patterns = append(patterns, p)
	}
	slices.Sort(patterns)

	s := New()
	for _, p := range patterns {
		k, err := ParseKind(m[p])
		if err != nil {
			return nil, err
		}
		if err = s.Add(p, k); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Schema) Add(pattern string, k Kind) error {
	if len(nspath.Split(pattern)) == 0 {
		return cnserr.New(cnserr.KindMissingArgument, "schema pattern is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	pattern = nspath.Clean(pattern)
	for i, r := range s.rules {
		if r.Pattern == pattern {
			s.rules[i].Kind = k
			return nil
		}
	}
	s.rules = append(s.rules, Rule{Pattern: pattern, Kind: k})
	return nil
}

func (s *Schema) Rules() []Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.rules)
}

func literalCount(pattern string) (n int) {
	for _, seg := range nspath.Split(pattern) {
		if seg != nspath.Wildcard {
			n++
		}
	}
	return
}

// KindOf finds the declared kind of path. When several rules match, the one
// with the most literal segments wins, then the earliest added.
func (s *Schema) KindOf(path string) (k Kind, declared bool) {
	if s == nil {
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	best := -1
	for _, r := range s.rules {
		if !nspath.Match(path, r.Pattern) {
			continue
		}
		if n := literalCount(r.Pattern); n > best {
			best = n
			k = r.Kind
			declared = true
		}
	}
	return
}

// Coerce checks value against the declared kind of path and returns it in
// canonical form. Undeclared paths accept any value unchanged.
func (s *Schema) Coerce(path, value string) (string, error) {
	k, declared := s.KindOf(path)
	if !declared {
		return value, nil
	}

	switch k {
	case KindNumber:
		trimmed := strings.TrimSpace(value)
		if _, err := strconv.ParseFloat(trimmed, 64); err != nil {
			return "", cnserr.New(cnserr.KindTypeMismatch, "%s expects a number, got %q", path, value)
		}
		return trimmed, nil

	case KindBoolean:
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "true", "t", "1", "yes", "y", "on":
			return "true", nil
		case "false", "f", "0", "no", "n", "off":
			return "false", nil
		}
		return "", cnserr.New(cnserr.KindTypeMismatch, "%s expects a boolean, got %q", path, value)
	}
	return value, nil
}
