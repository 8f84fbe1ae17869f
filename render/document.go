package render

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/jimsnab/go-cns-console/cnserr"
	"github.com/jimsnab/go-cns-console/nspath"
	"github.com/jimsnab/go-cns-console/tree"
	"gopkg.in/yaml.v3"
)

// OwnValueKey holds the value of a node that also has children when the
// node is written as a document object.
const OwnValueKey = ""

func documentValue(n *tree.Node) any {
	if n.IsLeaf() {
		return n.Value
	}
	obj := make(map[string]any, len(n.Children)+1)
	if n.HasValue {
		obj[OwnValueKey] = n.Value
	}
	for _, child := range n.Children {
		obj[child.Name] = documentValue(child)
	}
	return obj
}

func renderJSON(root *tree.Node, opts Options) (string, error) {
	doc := map[string]any{rootLabel(root): documentValue(root)}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if opts.Indent > 0 {
		enc.SetIndent("", strings.Repeat(" ", opts.Indent))
	}
	if err := enc.Encode(doc); err != nil {
		return "", cnserr.Wrap(cnserr.KindFormat, err, "json encoding failed")
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

func yamlString(s string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s}
}

func yamlValue(n *tree.Node) *yaml.Node {
	if n.IsLeaf() {
		return yamlString(n.Value)
	}
	m := &yaml.Node{Kind: yaml.MappingNode}
	if n.HasValue {
		m.Content = append(m.Content, yamlString(OwnValueKey), yamlString(n.Value))
	}
	for _, child := range n.Children {
		m.Content = append(m.Content, yamlString(child.Name), yamlValue(child))
	}
	return m
}

func renderYAML(root *tree.Node, opts Options) (string, error) {
	doc := &yaml.Node{
		Kind:    yaml.MappingNode,
		Content: []*yaml.Node{yamlString(rootLabel(root)), yamlValue(root)},
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(max(opts.Indent, 2))
	if err := enc.Encode(doc); err != nil {
		return "", cnserr.Wrap(cnserr.KindFormat, err, "yaml encoding failed")
	}
	if err := enc.Close(); err != nil {
		return "", cnserr.Wrap(cnserr.KindFormat, err, "yaml encoding failed")
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

func xmlAttr(s string) string {
	var sb strings.Builder
	_ = xml.EscapeText(&sb, []byte(s))
	return sb.String()
}

func renderXML(root *tree.Node, opts Options) string {
	lines := []string{}
	xmlLines(root, rootLabel(root), 0, opts, &lines)
	return strings.Join(lines, "\n")
}

func xmlLines(n *tree.Node, name string, depth int, opts Options, lines *[]string) {
	pad := strings.Repeat(" ", depth*opts.Indent)
	open := fmt.Sprintf(`%s<node name="%s"`, pad, xmlAttr(name))
	if n.HasValue {
		open += fmt.Sprintf(` value="%s"`, xmlAttr(n.Value))
	}

	if n.IsLeaf() {
		*lines = append(*lines, open+"/>")
		return
	}

	*lines = append(*lines, open+">")
	for _, child := range n.Children {
		xmlLines(child, child.Name, depth+1, opts, lines)
	}
	*lines = append(*lines, pad+"</node>")
}

// ParseDocument reads a json or yaml document written by Render and returns
// the path mapping it describes, rooted at root. The single top-level key of
// the document is the rendered root label and is not part of the paths.
func ParseDocument(doc string, root string) (m map[string]string, err error) {
	var top map[string]any
	if err = json.Unmarshal([]byte(doc), &top); err != nil {
		if yerr := yaml.Unmarshal([]byte(doc), &top); yerr != nil {
			err = cnserr.Wrap(cnserr.KindFormat, err, "document is neither json nor yaml")
			return
		}
		err = nil
	}
	if len(top) != 1 {
		err = cnserr.New(cnserr.KindFormat, "document must have exactly one top-level key, found %d", len(top))
		return
	}

	m = map[string]string{}
	for _, v := range top {
		if err = flattenDocument(v, nspath.Clean(root), m); err != nil {
			m = nil
		}
	}
	return
}

func flattenDocument(v any, path string, m map[string]string) error {
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			if k == OwnValueKey {
				if err := flattenDocument(child, path, m); err != nil {
					return err
				}
				continue
			}
			if err := flattenDocument(child, nspath.Join(path, k), m); err != nil {
				return err
			}
		}
	case string:
		m[path] = t
	case nil:
		m[path] = ""
	case []any:
		return cnserr.New(cnserr.KindFormat, "unexpected list at %s", path)
	default:
		m[path] = fmt.Sprint(t)
	}
	return nil
}
