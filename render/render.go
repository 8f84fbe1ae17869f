// Package render formats reconstructed namespace trees for display.
//
// Every format renders an empty tree as an empty string.
package render

import (
	"bytes"
	"strings"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/jimsnab/go-cns-console/cnserr"
	"github.com/jimsnab/go-cns-console/tree"
)

type Format string

const (
	FormatText  Format = "text"
	FormatTree  Format = "tree"
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
	FormatXML   Format = "xml"
)

const (
	DefaultIndent = 2
	MaxIndent     = 8
	DefaultWidth  = 80
	MinWidth      = 20
)

var Formats = []Format{FormatText, FormatTree, FormatTable, FormatJSON, FormatYAML, FormatXML}

type (
	Options struct {
		Indent int
		Width  int
		Color  bool
	}
)

// ParseFormat resolves a format name, case-insensitively.
func ParseFormat(name string) (Format, error) {
	lower := Format(strings.ToLower(name))
	for _, f := range Formats {
		if f == lower {
			return f, nil
		}
	}
	if lower == "document" {
		return FormatJSON, nil
	}
	return "", cnserr.New(cnserr.KindFormat, "unknown format: %s", name)
}

// DefaultOptions returns the rendering defaults.
func DefaultOptions() Options {
	return Options{Indent: DefaultIndent, Width: DefaultWidth}
}

func (o Options) normalized() Options {
	o.Indent = min(max(o.Indent, 0), MaxIndent)
	if o.Width <= 0 {
		o.Width = DefaultWidth
	}
	o.Width = max(o.Width, MinWidth)
	return o
}

// Render formats the tree rooted at root.
func Render(root *tree.Node, format Format, opts Options) (out string, err error) {
	if _, err = ParseFormat(string(format)); err != nil {
		return
	}
	if root.IsEmpty() {
		return
	}

	opts = opts.normalized()

	switch format {
	case FormatText:
		out = renderText(root, opts)
	case FormatTree:
		out = renderTree(root, opts)
	case FormatTable:
		out = renderTable(root, opts)
	case FormatJSON:
		out, err = renderJSON(root, opts)
		out = highlight(out, "json", opts)
	case FormatYAML:
		out, err = renderYAML(root, opts)
		out = highlight(out, "yaml", opts)
	case FormatXML:
		out = renderXML(root, opts)
		out = highlight(out, "xml", opts)
	}
	return
}

// Value formats a single named scalar.
func Value(name, value string, format Format, opts Options) (string, error) {
	root := &tree.Node{
		Children: []*tree.Node{{Name: name, Value: value, HasValue: true}},
	}
	return Render(root, format, opts)
}

func highlight(doc string, lexer string, opts Options) string {
	if !opts.Color || doc == "" {
		return doc
	}

	var buf bytes.Buffer
	if err := quick.Highlight(&buf, doc, lexer, "terminal256", "monokai"); err != nil {
		return doc
	}
	return strings.TrimRight(buf.String(), "\n")
}

func rootLabel(root *tree.Node) string {
	if root.Name == "" {
		return "/"
	}
	return root.Name
}

// keeps a multi-line value on one display line
func flat(value string) string {
	return strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ", "\t", " ").Replace(value)
}
