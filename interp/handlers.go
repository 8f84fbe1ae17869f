package interp

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/jimsnab/go-cns-console/cnserr"
	"github.com/jimsnab/go-cns-console/config"
	"github.com/jimsnab/go-cns-console/nspath"
	"github.com/jimsnab/go-cns-console/render"
	"github.com/jimsnab/go-cns-console/session"
	"github.com/jimsnab/go-cns-console/tree"
)

func cmdHelp(ctx context.Context, in *Interp, args []string) error {
	if len(args) == 1 {
		cmd, err := lookupCommand(args[0])
		if err != nil {
			return err
		}
		in.printf("usage: %s", cmd.usage)
		in.println(cmd.help)
		if others := otherNames(cmd.name); len(others) > 0 {
			in.printf("also: %s", strings.Join(others, ", "))
		}
		return nil
	}

	for _, name := range commandNames() {
		cmd := commands[name]
		in.printf("  %-26s %s", cmd.usage, cmd.help)
	}

	shorts := make([]string, 0, len(shortcuts))
	for short := range shortcuts {
		shorts = append(shorts, short)
	}
	slices.Sort(shorts)
	pairs := make([]string, 0, len(shorts))
	for _, short := range shorts {
		pairs = append(pairs, short+"="+shortcuts[short])
	}
	in.printf("shortcuts: %s", strings.Join(pairs, " "))
	return nil
}

func cmdVersion(ctx context.Context, in *Interp, args []string) error {
	in.printf("%s version %d, protocol %d", session.AppName, session.AppVersion, session.ProtocolVersion)
	return nil
}

func cmdExit(ctx context.Context, in *Interp, args []string) error {
	in.exited = true
	return nil
}

func cmdEcho(ctx context.Context, in *Interp, args []string) error {
	in.println(strings.Join(args, " "))
	return nil
}

func printValues(in *Interp, names []string, values map[string]string) {
	for _, name := range names {
		in.printf("%s=%s", name, values[name])
	}
}

func cmdConfig(ctx context.Context, in *Interp, args []string) error {
	switch len(args) {
	case 0:
		printValues(in, config.Names(), in.s.ConfigValues())
	case 1:
		v, exists := in.s.ConfigValues()[strings.ToLower(args[0])]
		if !exists {
			return cnserr.New(cnserr.KindArgument, "no such config: %s", args[0])
		}
		in.println(v)
	default:
		return in.s.SetConfig(args[0], args[1])
	}
	return nil
}

func cmdOption(ctx context.Context, in *Interp, args []string) error {
	switch len(args) {
	case 0:
		printValues(in, session.OptionNames(), in.s.OptionValues())
	case 1:
		v, exists := in.s.OptionValues()[strings.ToLower(args[0])]
		if !exists {
			return cnserr.New(cnserr.KindArgument, "no such option: %s", args[0])
		}
		in.println(v)
	default:
		return in.s.SetOption(args[0], args[1])
	}
	return nil
}

func cmdStats(ctx context.Context, in *Interp, args []string) error {
	if len(args) == 1 {
		if !strings.EqualFold(args[0], "reset") {
			return cnserr.New(cnserr.KindArgument, "unexpected argument: %s", args[0])
		}
		in.s.ResetStats()
		return nil
	}

	printValues(in, []string{"reads", "writes", "updates", "errors"}, in.s.Stats().Values())
	return nil
}

func cmdStatus(ctx context.Context, in *Interp, args []string) error {
	m, err := in.s.Mirror()
	if err != nil {
		in.printf("status:  %s", in.s.Status())
		return nil
	}

	in.printf("status:  %s", m.Status())
	in.printf("prefix:  %s", m.Prefix())
	in.printf("entries: %d", m.Len())
	in.printf("updates: %d", m.Updates())
	in.printf("session: %s", in.s.ID())
	return nil
}

func cmdConnect(ctx context.Context, in *Interp, args []string) error {
	prefix := ""
	if len(args) == 1 {
		prefix = args[0]
	}
	if err := in.s.Connect(ctx, prefix); err != nil {
		return err
	}
	in.s.RemoteSucceeded(session.CounterReads)

	m, err := in.s.Mirror()
	if err != nil {
		return err
	}
	in.printf("connected to %q with %d entries", m.Prefix(), m.Len())
	return nil
}

func cmdDisconnect(ctx context.Context, in *Interp, args []string) error {
	return in.s.Disconnect()
}

func cmdRefresh(ctx context.Context, in *Interp, args []string) error {
	m, err := in.s.Mirror()
	if err != nil {
		return err
	}

	prefix := ""
	if len(args) == 1 {
		prefix = args[0]
	}
	count, err := m.Refresh(ctx, prefix)
	if err != nil {
		return err
	}
	in.s.RemoteSucceeded(session.CounterReads)
	in.printf("refreshed with %d change(s)", count)
	return nil
}

func cmdGet(ctx context.Context, in *Interp, args []string) error {
	m, err := in.s.Mirror()
	if err != nil {
		return err
	}
	if err = nspath.Validate(args[0]); err != nil {
		return cnserr.Wrap(cnserr.KindArgument, err, "invalid path")
	}

	value, exists := m.Lookup(args[0])
	if !exists {
		if len(args) < 2 {
			return cnserr.New(cnserr.KindArgument, "no such property: %s", args[0])
		}
		value = args[1]
	}

	in.s.Count(session.CounterReads)
	in.println(value)
	return nil
}

func cmdPut(ctx context.Context, in *Interp, args []string) error {
	m, err := in.s.Mirror()
	if err != nil {
		return err
	}

	value, err := in.s.Schema().Coerce(args[0], args[1])
	if err != nil {
		return err
	}
	if err = m.Put(ctx, args[0], value); err != nil {
		return err
	}
	in.s.RemoteSucceeded(session.CounterWrites)
	return nil
}

func cmdDelete(ctx context.Context, in *Interp, args []string) error {
	m, err := in.s.Mirror()
	if err != nil {
		return err
	}
	if err = m.Delete(ctx, args[0]); err != nil {
		return err
	}
	in.s.RemoteSucceeded(session.CounterUpdates)
	return nil
}

func cmdPurge(ctx context.Context, in *Interp, args []string) error {
	m, err := in.s.Mirror()
	if err != nil {
		return err
	}
	if err = m.Purge(ctx, args[0]); err != nil {
		return err
	}
	in.s.RemoteSucceeded(session.CounterUpdates)
	return nil
}

func cmdList(ctx context.Context, in *Interp, args []string) error {
	m, err := in.s.Mirror()
	if err != nil {
		return err
	}

	var entries []nspath.Entry
	if len(args) == 1 {
		entries = m.Select(args[0])
	} else {
		entries = m.SelectTree(m.Prefix())
	}

	in.s.Count(session.CounterReads)
	for _, e := range entries {
		in.println(e.Path)
	}
	return nil
}

func (in *Interp) show(pattern string, format render.Format) error {
	m, err := in.s.Mirror()
	if err != nil {
		return err
	}
	if pattern == "" {
		pattern = m.Prefix()
	}

	out, err := renderPattern(m.SelectTree(pattern), pattern, format, in.s.Options().Render())
	if err != nil {
		return err
	}

	in.s.Count(session.CounterReads)
	in.format = format
	if out != "" {
		in.println(out)
	}
	return nil
}

func renderPattern(entries []nspath.Entry, pattern string, format render.Format, opts render.Options) (string, error) {
	root := tree.RootOf(pattern, entries)
	return render.Render(tree.Build(entries, root), format, opts)
}

func cmdShow(ctx context.Context, in *Interp, args []string) error {
	pattern := ""
	if len(args) > 0 {
		pattern = args[0]
	}

	format := in.s.Options().Format
	if len(args) > 1 {
		var err error
		if format, err = render.ParseFormat(args[1]); err != nil {
			return err
		}
	}
	return in.show(pattern, format)
}

func formatCommand(f render.Format) handler {
	return func(ctx context.Context, in *Interp, args []string) error {
		pattern := ""
		if len(args) > 0 {
			pattern = args[0]
		}
		return in.show(pattern, f)
	}
}

func cmdPause(ctx context.Context, in *Interp, args []string) error {
	ms, err := strconv.Atoi(args[0])
	if err != nil || ms < 0 {
		return cnserr.New(cnserr.KindArgument, "pause expects milliseconds, got %q", args[0])
	}

	timer := time.NewTimer(time.Duration(ms) * time.Millisecond)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		in.l.Tracef("pause interrupted")
	case <-timer.C:
	}
	return nil
}

func cmdLoad(ctx context.Context, in *Interp, args []string) error {
	return in.loadScript(ctx, args[0])
}

func cmdSave(ctx context.Context, in *Interp, args []string) error {
	history := in.s.History()

	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s history saved %s\n", session.AppName, time.Now().Format(time.RFC3339))
	for _, line := range history {
		sb.WriteString(line)
		sb.WriteString("\n")
	}

	if err := os.WriteFile(args[0], []byte(sb.String()), 0644); err != nil {
		return cnserr.Wrap(cnserr.KindIO, err, "can't save %s", args[0])
	}
	in.printf("saved %d line(s) to %s", len(history), args[0])
	return nil
}

func cmdHistory(ctx context.Context, in *Interp, args []string) error {
	for i, line := range in.s.History() {
		in.printf("%4d  %s", i+1, line)
	}
	return nil
}
