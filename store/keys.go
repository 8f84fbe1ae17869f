package store

import (
	"strings"

	"github.com/jimsnab/go-cns-console/nspath"
	"github.com/jimsnab/go-treestore"
)

// Converts a namespace path to a treestore key. Each segment is token-escaped
// by the treestore.
func pathToStoreKey(path string) treestore.StoreKey {
	return treestore.MakeStoreKey(nspath.Split(path)...)
}

// Makes a treestore pattern that matches every key below prefix. The
// treestore has no escape for '*', so a prefix segment containing one still
// globs; callers keep only the results that pass nspath.HasPrefix.
func prefixPattern(prefix string) treestore.StoreKey {
	segs := nspath.Split(prefix)
	tokens := make([]treestore.TokenSegment, 0, len(segs)+1)
	for _, seg := range segs {
		tokens = append(tokens, treestore.TokenSegment(seg))
	}
	tokens = append(tokens, treestore.TokenSegment("**"))
	return treestore.MakeStoreKeyFromTokenSegments(tokens...)
}

// Converts an escaped treestore token path back to a namespace path.
func tokenPathToPath(tp treestore.TokenPath) string {
	parts := strings.Split(strings.TrimPrefix(string(tp), "/"), "/")
	segs := make([]string, 0, len(parts))
	for _, part := range parts {
		if part == "" {
			continue
		}
		segs = append(segs, treestore.UnescapeTokenString(part))
	}
	return strings.Join(segs, nspath.Separator)
}

func valueToString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return ""
	}
}
