package render

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/jimsnab/go-cns-console/tree"
)

const (
	branchMid  = "├── "
	branchLast = "└── "
	contMid    = "│   "
	contLast   = "    "
	ellipsis   = "…"
	columnGap  = 2
	minValueW  = 10
)

func renderText(root *tree.Node, opts Options) string {
	lines := []string{}
	textLines(root, 0, opts, &lines)
	return strings.Join(lines, "\n")
}

func textLines(n *tree.Node, depth int, opts Options, lines *[]string) {
	pad := strings.Repeat(" ", depth*opts.Indent)
	for _, child := range n.Children {
		if child.HasValue {
			*lines = append(*lines, pad+child.Name+"="+child.Value)
		} else {
			*lines = append(*lines, pad+child.Name+":")
		}
		textLines(child, depth+1, opts, lines)
	}
}

func renderTree(root *tree.Node, opts Options) string {
	lines := []string{}

	label := rootLabel(root)
	if root.HasValue {
		label = justify(label, root.Value, opts.Width)
	}
	lines = append(lines, label)

	treeLines(root, "", opts, &lines)
	return strings.Join(lines, "\n")
}

func treeLines(n *tree.Node, prefix string, opts Options, lines *[]string) {
	for i, child := range n.Children {
		branch, cont := branchMid, contMid
		if i == len(n.Children)-1 {
			branch, cont = branchLast, contLast
		}

		label := prefix + branch + child.Name
		if child.HasValue {
			label = justify(label, child.Value, opts.Width)
		}
		*lines = append(*lines, label)

		treeLines(child, prefix+cont, opts, lines)
	}
}

// Right-justifies value against width, truncating it with an ellipsis when
// it does not fit after the label and a one column gap.
func justify(label, value string, width int) string {
	value = flat(value)
	lw := ansi.StringWidth(label)
	avail := width - lw - 1
	if avail <= 0 {
		return label
	}
	if ansi.StringWidth(value) > avail {
		value = ansi.Truncate(value, avail, ellipsis)
	}
	return label + strings.Repeat(" ", width-lw-ansi.StringWidth(value)) + value
}

// Two columns of name and value. A child that has children of its own is
// summarized by the names of those children.
func renderTable(root *tree.Node, opts Options) string {
	type row struct{ name, value string }

	rows := make([]row, 0, len(root.Children))
	nameW := ansi.StringWidth("NAME")
	for _, child := range root.Children {
		rows = append(rows, row{name: child.Name, value: summarize(child)})
		nameW = max(nameW, ansi.StringWidth(child.Name))
	}

	valueW := max(opts.Width-nameW-columnGap, minValueW)
	gap := strings.Repeat(" ", columnGap)
	padName := func(name string) string {
		return name + strings.Repeat(" ", nameW-ansi.StringWidth(name))
	}

	header := padName("NAME") + gap + "VALUE"
	if opts.Color {
		header = lipgloss.NewStyle().Bold(true).Render(header)
	}

	widest := 0
	for _, r := range rows {
		widest = max(widest, ansi.StringWidth(r.value))
	}

	lines := []string{
		header,
		strings.Repeat("─", nameW) + gap + strings.Repeat("─", max(min(widest, valueW), len("VALUE"))),
	}

	for _, r := range rows {
		wrapped := strings.Split(ansi.Wrap(r.value, valueW, " ,"), "\n")
		for i, part := range wrapped {
			name := ""
			if i == 0 {
				name = r.name
			}
			lines = append(lines, strings.TrimRight(padName(name)+gap+strings.TrimRight(part, " "), " "))
		}
	}

	return strings.Join(lines, "\n")
}

func summarize(n *tree.Node) string {
	if n.IsLeaf() {
		return flat(n.Value)
	}
	names := strings.Join(n.ChildNames(), ", ")
	if n.HasValue {
		return flat(n.Value) + " (" + names + ")"
	}
	return names
}
