package render

import (
	"strings"
	"testing"

	"github.com/charmbracelet/x/ansi"
	"github.com/jimsnab/go-cns-console/cnserr"
	"github.com/jimsnab/go-cns-console/nspath"
	"github.com/jimsnab/go-cns-console/tree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sample = []nspath.Entry{
	{Path: "x/a", Value: "1"},
	{Path: "x/b/c", Value: "2"},
}

func renderSample(t *testing.T, f Format) string {
	out, err := Render(tree.Build(sample, "x"), f, DefaultOptions())
	require.NoError(t, err)
	return out
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("YAML")
	require.NoError(t, err)
	assert.Equal(t, FormatYAML, f)

	f, err = ParseFormat("document")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, f)

	_, err = ParseFormat("csv")
	assert.True(t, cnserr.Is(err, cnserr.KindFormat))
}

func TestTreeFormat(t *testing.T) {
	lines := strings.Split(renderSample(t, FormatTree), "\n")
	require.Len(t, lines, 4)

	assert.Equal(t, "x", lines[0])

	assert.True(t, strings.HasPrefix(lines[1], "├── a"))
	assert.True(t, strings.HasSuffix(lines[1], " 1"))
	assert.Equal(t, DefaultWidth, ansi.StringWidth(lines[1]))

	assert.Equal(t, "└── b", lines[2])

	assert.True(t, strings.HasPrefix(lines[3], "    └── c"))
	assert.True(t, strings.HasSuffix(lines[3], " 2"))
	assert.Equal(t, DefaultWidth, ansi.StringWidth(lines[3]))
}

func TestTreeTruncatesLongValues(t *testing.T) {
	root := tree.Build([]nspath.Entry{{Path: "r/k", Value: strings.Repeat("v", 200)}}, "r")
	out, err := Render(root, FormatTree, Options{Width: 30})
	require.NoError(t, err)

	lines := strings.Split(out, "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, 30, ansi.StringWidth(lines[1]))
	assert.True(t, strings.HasSuffix(lines[1], "…"))
	assert.True(t, strings.HasPrefix(lines[1], "└── k "))
}

func TestTextFormat(t *testing.T) {
	assert.Equal(t, "a=1\nb:\n  c=2", renderSample(t, FormatText))
}

func TestTableFormat(t *testing.T) {
	expected := strings.Join([]string{
		"NAME  VALUE",
		"────  ─────",
		"a     1",
		"b     c",
	}, "\n")
	assert.Equal(t, expected, renderSample(t, FormatTable))
}

func TestJSONFormat(t *testing.T) {
	expected := `{
  "x": {
    "a": "1",
    "b": {
      "c": "2"
    }
  }
}`
	assert.Equal(t, expected, renderSample(t, FormatJSON))
}

func TestDocumentRoundTrip(t *testing.T) {
	entries := []nspath.Entry{
		{Path: "net/nodes/n1", Value: "own"},
		{Path: "net/nodes/n1/name", Value: "Node <One>"},
		{Path: "net/nodes/n2/name", Value: "true"},
		{Path: "net/nodes/n2/port", Value: "8080"},
	}
	root := tree.RootOf("net/*", entries)

	for _, f := range []Format{FormatJSON, FormatYAML} {
		out, err := Render(tree.Build(entries, root), f, DefaultOptions())
		require.NoError(t, err)

		m, err := ParseDocument(out, root)
		require.NoError(t, err, "format %s", f)
		assert.Equal(t, nspath.ToMap(entries), m, "format %s", f)
	}
}

func TestParseDocumentErrors(t *testing.T) {
	_, err := ParseDocument(`{"a": "1", "b": "2"}`, "")
	assert.True(t, cnserr.Is(err, cnserr.KindFormat))

	_, err = ParseDocument(`{"a": ["x"]}`, "")
	assert.True(t, cnserr.Is(err, cnserr.KindFormat))

	_, err = ParseDocument("[: not a document", "")
	assert.True(t, cnserr.Is(err, cnserr.KindFormat))
}

func TestXMLFormat(t *testing.T) {
	root := tree.Build([]nspath.Entry{{Path: "r/k", Value: `a"b`}}, "r")
	out, err := Render(root, FormatXML, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, "<node name=\"r\">\n  <node name=\"k\" value=\"a&#34;b\"/>\n</node>", out)
}

func TestEmptyRendersNothing(t *testing.T) {
	for _, f := range Formats {
		out, err := Render(tree.Build(nil, "x"), f, DefaultOptions())
		require.NoError(t, err)
		assert.Empty(t, out, "format %s", f)
	}
}

func TestValue(t *testing.T) {
	out, err := Value("name", "Node One", FormatText, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, "name=Node One", out)

	out, err = Value("name", "Node One", FormatJSON, Options{Indent: 0})
	require.NoError(t, err)
	assert.Equal(t, `{"/":{"name":"Node One"}}`, out)
}

func TestColorHighlightKeepsContent(t *testing.T) {
	out, err := Render(tree.Build(sample, "x"), FormatJSON, Options{Indent: 2, Color: true})
	require.NoError(t, err)
	assert.Contains(t, ansi.Strip(out), `"c": "2"`)
}
