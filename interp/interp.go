// Package interp executes console statements against a session.
package interp

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/jimsnab/go-cns-console/cnserr"
	"github.com/jimsnab/go-cns-console/render"
	"github.com/jimsnab/go-cns-console/session"
	"github.com/jimsnab/go-lane"
)

const maxScriptDepth = 16

// ErrInterrupted ends a line whose context was cancelled between statements.
var ErrInterrupted = errors.New("interrupted")

type (
	// Interp runs one statement at a time. Several interpreters may share a
	// session.
	Interp struct {
		mu      sync.Mutex
		l       lane.Lane
		s       *session.Session
		exited  bool
		depth   int
		format  render.Format
		monitor *monitor

		omu     sync.Mutex
		out     io.Writer
		capture *bytes.Buffer
	}

	// Result is the captured output of Run.
	Result struct {
		Output string
		Format render.Format
	}
)

// New makes an interpreter that prints to out.
func New(l lane.Lane, s *session.Session, out io.Writer) *Interp {
	if out == nil {
		out = io.Discard
	}
	return &Interp{l: l, s: s, out: out}
}

func (in *Interp) Session() *session.Session {
	return in.s
}

// Exited reports whether an exit command has run.
func (in *Interp) Exited() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.exited
}

// Close stops any monitor.
func (in *Interp) Close() {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.stopMonitor()
}

// Execute runs an interactive input line. A line that succeeds is added to
// the session history.
func (in *Interp) Execute(ctx context.Context, line string) error {
	in.mu.Lock()
	defer in.mu.Unlock()

	if err := in.executeLine(ctx, line); err != nil {
		return err
	}
	if strings.TrimSpace(line) != "" {
		in.s.AddHistory(strings.TrimSpace(line))
	}
	return nil
}

// Run executes a line and returns what it printed instead of writing it
// to the interpreter output.
func (in *Interp) Run(ctx context.Context, line string) (res Result, err error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	buf := &bytes.Buffer{}
	in.omu.Lock()
	in.capture = buf
	in.omu.Unlock()

	in.format = render.FormatText
	err = in.executeLine(ctx, line)

	in.omu.Lock()
	in.capture = nil
	in.omu.Unlock()

	res.Output = strings.TrimRight(buf.String(), "\n")
	res.Format = in.format
	if err == nil && strings.TrimSpace(line) != "" {
		in.s.AddHistory(strings.TrimSpace(line))
	}
	return
}

// LoadScript runs every line of a script file, stopping at the first error.
func (in *Interp) LoadScript(ctx context.Context, filename string) error {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.fail(in.loadScript(ctx, filename))
}

func (in *Interp) loadScript(ctx context.Context, filename string) (err error) {
	if in.depth >= maxScriptDepth {
		return cnserr.New(cnserr.KindIO, "scripts nested too deeply at %s", filename)
	}

	f, err := os.Open(filename)
	if err != nil {
		return cnserr.Wrap(cnserr.KindIO, err, "can't load %s", filename)
	}
	defer f.Close()

	in.depth++
	defer func() { in.depth-- }()

	in.l.Tracef("loading script %s", filename)

	scanner := bufio.NewScanner(f)
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		line := scanner.Text()
		if lineNumber == 1 && strings.HasPrefix(line, "#!") {
			continue
		}

		if err = in.executeLine(ctx, line); err != nil {
			return cnserr.WithLocation(err, filename, lineNumber)
		}
		if in.exited {
			return
		}
	}

	if err = scanner.Err(); err != nil {
		return cnserr.Wrap(cnserr.KindIO, err, "can't read %s", filename)
	}
	return
}

func (in *Interp) executeLine(ctx context.Context, line string) error {
	stmts, err := splitStatements(line)
	if err != nil {
		return in.fail(err)
	}

	for _, stmt := range stmts {
		if ctx.Err() != nil {
			return ErrInterrupted
		}
		if err = in.executeStatement(ctx, stmt); err != nil {
			return in.fail(err)
		}
		if in.exited {
			break
		}
	}
	return nil
}

// Counts a failed top level line. A failure inside a loaded script is
// counted once, by the line that loaded it.
func (in *Interp) fail(err error) error {
	if err != nil && in.depth == 0 {
		in.s.Fail(err)
	}
	return err
}

func (in *Interp) executeStatement(ctx context.Context, stmt string) error {
	tokens, err := tokenize(stmt)
	if err != nil {
		return err
	}
	if len(tokens) == 0 {
		return nil
	}

	cmd, err := lookupCommand(tokens[0].text)
	if err != nil {
		return err
	}

	args := make([]string, 0, len(tokens)-1)
	for _, tok := range tokens[1:] {
		arg, err := in.expand(tok)
		if err != nil {
			return err
		}
		args = append(args, arg)
	}

	if len(args) < cmd.minArgs {
		return cnserr.New(cnserr.KindMissingArgument, "%s requires %d argument(s); usage: %s", cmd.name, cmd.minArgs, cmd.usage)
	}
	if !cmd.variadic && len(args) > cmd.maxArgs {
		return cnserr.New(cnserr.KindArgument, "%s accepts at most %d argument(s); usage: %s", cmd.name, cmd.maxArgs, cmd.usage)
	}

	in.l.Tracef("command %s %v", cmd.name, args)
	return cmd.run(ctx, in, args)
}

func (in *Interp) expand(tok token) (string, error) {
	if tok.quoted || !strings.HasPrefix(tok.text, variableMarker) || len(tok.text) == len(variableMarker) {
		return tok.text, nil
	}

	name := tok.text[len(variableMarker):]
	value, found := in.s.Lookup(name)
	if !found {
		return "", cnserr.New(cnserr.KindVariable, "undefined variable: %s", name)
	}
	return value, nil
}

func (in *Interp) println(a ...any) {
	in.omu.Lock()
	defer in.omu.Unlock()

	if in.capture != nil {
		fmt.Fprintln(in.capture, a...)
		return
	}
	fmt.Fprintln(in.out, a...)
}

func (in *Interp) printf(format string, a ...any) {
	in.println(fmt.Sprintf(format, a...))
}

// writes to the interpreter output even while Run is capturing
func (in *Interp) notify(text string) {
	in.omu.Lock()
	defer in.omu.Unlock()
	fmt.Fprintln(in.out, text)
}
