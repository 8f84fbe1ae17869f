package interp

import (
	"context"
	"strings"

	"github.com/jimsnab/go-cns-console/mirror"
	"github.com/jimsnab/go-cns-console/nspath"
)

type (
	monitor struct {
		pattern string
		unsub   func()
	}
)

func cmdMonitor(ctx context.Context, in *Interp, args []string) error {
	in.stopMonitor()

	if len(args) == 1 && strings.EqualFold(args[0], "off") {
		in.println("monitor off")
		return nil
	}

	pattern := ""
	if len(args) == 1 {
		pattern = args[0]
	} else if m, err := in.s.Mirror(); err == nil {
		pattern = m.Prefix()
	}

	mon := &monitor{pattern: pattern}
	mon.unsub = in.s.Subscribe(func(c mirror.Change) {
		if mon.affectedBy(c) {
			in.notify(in.monitorRender(mon.pattern))
		}
	})
	in.monitor = mon

	in.printf("monitoring %q", pattern)
	return nil
}

func (in *Interp) stopMonitor() {
	if in.monitor != nil {
		in.monitor.unsub()
		in.monitor = nil
	}
}

func (mon *monitor) affectedBy(c mirror.Change) bool {
	switch c.Kind {
	case mirror.ChangePut, mirror.ChangeDelete:
		return nspath.MatchTree(c.Path, mon.pattern)
	}
	return true
}

// Runs on the goroutine that changed the mirror, so it must not take in.mu.
func (in *Interp) monitorRender(pattern string) string {
	header := "--- " + pattern + " ---"

	m, err := in.s.Mirror()
	if err != nil {
		return header + "\n(" + in.s.Status().String() + ")"
	}

	opts := in.s.Options()
	out, err := renderPattern(m.SelectTree(pattern), pattern, opts.Format, opts.Render())
	if err != nil {
		return header + "\n" + err.Error()
	}
	header = "--- " + pattern + " (" + m.Status().String() + ") ---"
	if out == "" {
		return header
	}
	return header + "\n" + out
}
