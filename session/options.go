package session

import (
	"slices"
	"strconv"
	"strings"

	"github.com/jimsnab/go-cns-console/cnserr"
	"github.com/jimsnab/go-cns-console/config"
	"github.com/jimsnab/go-cns-console/render"
)

type (
	// Options are the runtime display settings changed with the option
	// command.
	Options struct {
		Format render.Format
		Indent int
		Width  int
		Color  bool
	}
)

var optionNames = []string{"color", "format", "indent", "width"}

func optionsFromConfig(co config.Options) (opts Options, err error) {
	opts = Options{
		Format: render.FormatTree,
		Indent: render.DefaultIndent,
		Width:  render.DefaultWidth,
		Color:  co.Color,
	}
	if co.Format != "" {
		if opts.Format, err = render.ParseFormat(co.Format); err != nil {
			return
		}
	}
	if co.Indent != 0 {
		opts.Indent = co.Indent
	}
	if co.Width != 0 {
		opts.Width = co.Width
	}
	return
}

// Render converts the display settings to renderer options.
func (o Options) Render() render.Options {
	return render.Options{Indent: o.Indent, Width: o.Width, Color: o.Color}
}

func (o Options) Values() map[string]string {
	return map[string]string{
		"format": string(o.Format),
		"indent": strconv.Itoa(o.Indent),
		"width":  strconv.Itoa(o.Width),
		"color":  strconv.FormatBool(o.Color),
	}
}

// OptionNames lists the runtime option names in sorted order.
func OptionNames() []string {
	return slices.Clone(optionNames)
}

func (s *Session) Options() Options {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.opts
}

func (s *Session) OptionValues() map[string]string {
	return s.Options().Values()
}

// SetOption changes one display option. Indent is clamped to 0-8 and width
// to at least 20.
func (s *Session) SetOption(name, value string) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch strings.ToLower(name) {
	case "format":
		var f render.Format
		if f, err = render.ParseFormat(value); err != nil {
			return
		}
		s.opts.Format = f

	case "indent":
		var n int
		if n, err = parseInt(name, value); err != nil {
			return
		}
		s.opts.Indent = min(max(n, 0), render.MaxIndent)

	case "width":
		var n int
		if n, err = parseInt(name, value); err != nil {
			return
		}
		s.opts.Width = max(n, render.MinWidth)

	case "color":
		var b bool
		if b, err = strconv.ParseBool(value); err != nil {
			return cnserr.New(cnserr.KindTypeMismatch, "%s expects a boolean, got %q", name, value)
		}
		s.opts.Color = b

	default:
		err = cnserr.New(cnserr.KindArgument, "no such option: %s", name)
	}
	return
}

func parseInt(name, value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, cnserr.New(cnserr.KindTypeMismatch, "%s expects an integer, got %q", name, value)
	}
	return n, nil
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
