// Package tree rebuilds a nested structure from flat namespace entries.
package tree

import (
	"slices"
	"strings"

	"github.com/jimsnab/go-cns-console/nspath"
)

type (
	// Node is one path segment. A node may carry a value and children at the
	// same time.
	Node struct {
		Name     string
		Value    string
		HasValue bool
		Children []*Node
	}
)

// Build nests entries below root, one level per path segment. Entries that
// are not at or below root are skipped. Children are ordered by name.
func Build(entries []nspath.Entry, root string) *Node {
	root = nspath.Clean(root)
	rootNode := &Node{Name: nspath.Base(root)}
	rootDepth := len(nspath.Split(root))

	index := map[string]*Node{"": rootNode}

	for _, e := range entries {
		if !nspath.HasPrefix(e.Path, root) {
			continue
		}

		segs := nspath.Split(e.Path)[rootDepth:]
		node := rootNode
		rel := ""
		for _, seg := range segs {
			rel = rel + nspath.Separator + seg
			child, exists := index[rel]
			if !exists {
				child = &Node{Name: seg}
				node.Children = append(node.Children, child)
				index[rel] = child
			}
			node = child
		}
		node.Value = e.Value
		node.HasValue = true
	}

	rootNode.sort()
	return rootNode
}

func (n *Node) sort() {
	slices.SortFunc(n.Children, func(a, b *Node) int { return strings.Compare(a.Name, b.Name) })
	for _, child := range n.Children {
		child.sort()
	}
}

// RootOf picks the path under which matches of pattern are rendered: the
// literal part of the pattern, moved up while an entry sits exactly on it so
// that such an entry is shown as a named node rather than as the root.
func RootOf(pattern string, entries []nspath.Entry) string {
	root := nspath.LiteralPrefix(pattern)
	for root != "" {
		onRoot := false
		for _, e := range entries {
			if e.Path == root {
				onRoot = true
				break
			}
		}
		if !onRoot {
			break
		}
		root = nspath.Parent(root)
	}
	return root
}

func (n *Node) IsLeaf() bool {
	return len(n.Children) == 0
}

// IsEmpty reports whether there is nothing to render.
func (n *Node) IsEmpty() bool {
	return n == nil || (!n.HasValue && len(n.Children) == 0)
}

// ChildNames lists the names of the direct children.
func (n *Node) ChildNames() []string {
	names := make([]string, 0, len(n.Children))
	for _, child := range n.Children {
		names = append(names, child.Name)
	}
	return names
}

// Flatten converts the tree back to a path mapping, with root as the path of n.
func (n *Node) Flatten(root string) map[string]string {
	m := map[string]string{}
	n.flatten(nspath.Clean(root), m)
	return m
}

func (n *Node) flatten(path string, m map[string]string) {
	if n.HasValue {
		m[path] = n.Value
	}
	for _, child := range n.Children {
		child.flatten(nspath.Join(path, child.Name), m)
	}
}
