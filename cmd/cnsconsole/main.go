package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	cns_console "github.com/jimsnab/go-cns-console"
	"github.com/jimsnab/go-cns-console/broadcast"
	"github.com/jimsnab/go-cns-console/cnserr"
	"github.com/jimsnab/go-cns-console/config"
	"github.com/jimsnab/go-cns-console/interp"
	"github.com/jimsnab/go-cns-console/session"
	"github.com/jimsnab/go-cns-console/store"
	"github.com/jimsnab/go-cmdline"
	"github.com/jimsnab/go-lane"
	"golang.org/x/term"
)

const prompt = "cns> "

type (
	// executor runs one input line, locally or on a remote server.
	executor func(ctx context.Context, line string) (exited bool, err error)

	mainEngine struct {
		mu          sync.Mutex
		args        cmdline.Values
		l           lane.Lane
		cfg         *config.Config
		interactive bool
		color       bool
		lineCancel  context.CancelFunc
		quit        chan struct{}
		terminating bool

		st     *store.Local
		s      *session.Session
		in     *interp.Interp
		saver  *cns_console.Saver
		server cns_console.CnsConsoleServer
		b      *broadcast.Broadcaster
		din    *interp.Interp
		web    *http.Server
		client *cns_console.Client
	}
)

var errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))

func main() {
	cl := cmdline.NewCommandLine()

	cl.RegisterCommand(
		mainHandler,
		"~ [<string-script>]?Runs the console. Specify <script> to run a statement file before reading input.",
		"[--trace]?Enable trace logging",
		"[--config <string-configfile>]?Configuration file (.yaml, .yml, .json or .jsonc); the default comes from CNS_CONFIG",
		"[--prefix <string-prefix>]?Namespace prefix to mirror",
		"[--data <string-datafile>]?Persist the namespace store to this file",
		"[--server <int-serverport>]?Serve remote console clients on this TCP port",
		"[--dashboard <string-dashaddr>]?Serve dashboard websockets on this address, e.g. :8080",
		"[--remote]?Send statements to a remote console server instead of running them locally",
		"[--host <string-host>]?Remote console server host, default localhost",
		"[--port <int-port>]?Remote console server port, default 6771",
		"[--no-color]?Disable colored output",
	)

	args := os.Args[1:] // exclude executable name in os.Args[0]
	err := cl.Process(args)
	if err != nil {
		cl.Help(optionError(err), session.AppName, args)
	}
}

// The handler exits on its own failures, so a Process error is always a
// command line problem.
func optionError(err error) error {
	return cnserr.Wrap(cnserr.KindOption, err, "%s", cnserr.KindOption)
}

func mainHandler(args cmdline.Values) error {
	eng := mainEngine{args: args, quit: make(chan struct{})}

	if err := eng.start(); err != nil {
		fmt.Fprintln(os.Stderr, eng.errorText(err))
		eng.stop()
		os.Exit(1)
	}
	eng.repl()
	eng.stop()

	return nil
}

func (eng *mainEngine) start() (err error) {
	eng.l = lane.NewLogLane(context.Background())

	isTrace := eng.args["--trace"].(bool)
	if !isTrace {
		eng.l.SetLogLevel(lane.LogLevelInfo)
	}

	if eng.cfg, err = config.Resolve(eng.args["configfile"].(string)); err != nil {
		return
	}
	eng.applyFlags()

	eng.interactive = term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
	eng.color = eng.interactive && !eng.args["--no-color"].(bool)
	eng.killSignalMonitor()

	if eng.args["--remote"].(bool) {
		addr := net.JoinHostPort(eng.cfg.Host, strconv.Itoa(eng.cfg.Port))
		if eng.client, err = cns_console.Dial(context.Background(), eng.l, addr); err != nil {
			return
		}
		eng.l.Infof("sending statements to %s", addr)

		if script := eng.args["script"].(string); script != "" {
			err = eng.runRemoteScript(script)
		}
		return
	}

	return eng.startLocal()
}

// Command line flags override the configuration file.
func (eng *mainEngine) applyFlags() {
	if v := eng.args["prefix"].(string); v != "" {
		eng.cfg.Prefix = v
	}
	if v := eng.args["datafile"].(string); v != "" {
		eng.cfg.DataFile = v
	}
	if v := eng.args["serverport"].(int); v != 0 {
		eng.cfg.ServerPort = v
	}
	if v := eng.args["dashaddr"].(string); v != "" {
		eng.cfg.Dashboard = v
	}
	if v := eng.args["host"].(string); v != "" {
		eng.cfg.Host = v
	}
	if v := eng.args["port"].(int); v != 0 {
		eng.cfg.Port = v
	}
}

func (eng *mainEngine) startLocal() (err error) {
	eng.st = store.NewLocal(eng.l, session.AppVersion)
	if eng.cfg.DataFile != "" {
		if _, statErr := os.Stat(eng.cfg.DataFile); statErr == nil {
			if err = eng.st.Load(eng.cfg.DataFile); err != nil {
				return cnserr.Wrap(cnserr.KindIO, err, "can't load %s", eng.cfg.DataFile)
			}
		}
		eng.saver = cns_console.NewSaver(eng.l, eng.st, eng.cfg.DataFile, time.Duration(eng.cfg.SaveSeconds)*time.Second)
	}

	if eng.s, err = session.New(eng.l, eng.st, eng.cfg); err != nil {
		return
	}
	eng.fitTerminal()

	if err = eng.s.Connect(context.Background(), ""); err != nil {
		return
	}
	eng.in = interp.New(eng.l, eng.s, os.Stdout)

	if eng.cfg.ServerPort != 0 {
		eng.server = cns_console.NewCnsConsoleServer(eng.l, eng.s, eng.saver)
		if err = eng.server.StartServer("", eng.cfg.ServerPort); err != nil {
			eng.server = nil
			return
		}
	} else if eng.saver != nil {
		eng.saver.Start()
	}

	if eng.cfg.Dashboard != "" {
		eng.startDashboard()
	}

	if script := eng.args["script"].(string); script != "" {
		ctx, done := eng.beginLine()
		err = eng.in.LoadScript(ctx, script)
		done()
	}
	return
}

// Matches the display options to the terminal.
func (eng *mainEngine) fitTerminal() {
	if !eng.color {
		eng.s.SetOption("color", "false")
	}
	if !eng.interactive {
		return
	}
	if width, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && width > 0 {
		eng.s.SetOption("width", strconv.Itoa(width))
	}
}

func (eng *mainEngine) startDashboard() {
	eng.b = broadcast.New(eng.l, eng.s)
	eng.din = interp.New(eng.l, eng.s, io.Discard)
	eng.web = &http.Server{
		Addr:    eng.cfg.Dashboard,
		Handler: broadcast.NewDashboard(eng.l, eng.b, eng.din),
	}

	go func() {
		eng.l.Infof("dashboard listening on %s", eng.cfg.Dashboard)
		if err := eng.web.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			eng.l.Errorf("dashboard server failed: %s", err)
		}
	}()
}

// Starts running a line; an interrupt while it runs cancels it.
func (eng *mainEngine) beginLine() (ctx context.Context, done func()) {
	ctx, cancel := context.WithCancel(context.Background())

	eng.mu.Lock()
	eng.lineCancel = cancel
	eng.mu.Unlock()

	done = func() {
		eng.mu.Lock()
		eng.lineCancel = nil
		eng.mu.Unlock()
		cancel()
	}
	return
}

func (eng *mainEngine) killSignalMonitor() {
	// an interrupt cancels the running line, or ends the console at the prompt
	sigs := make(chan os.Signal, 10)
	signal.Notify(sigs, os.Interrupt)

	go func() {
		for sig := range sigs {
			eng.mu.Lock()
			cancel := eng.lineCancel
			eng.mu.Unlock()

			if cancel != nil {
				eng.l.Tracef("%s signaled; interrupting the current line", sig)
				cancel()
				continue
			}

			eng.l.Infof("termination %s signaled", sig)
			eng.startTermination()
			return
		}
	}()
}

func (eng *mainEngine) startTermination() {
	// ensure only one termination
	eng.mu.Lock()
	defer eng.mu.Unlock()

	if !eng.terminating {
		eng.terminating = true
		close(eng.quit)
	}
}

func (eng *mainEngine) executor() executor {
	if eng.client != nil {
		return func(ctx context.Context, line string) (bool, error) {
			resp, err := eng.client.Execute(ctx, line)
			if err != nil {
				return false, err
			}
			if resp.Response != "" {
				fmt.Println(resp.Response)
			}
			if resp.Error != "" {
				return false, errors.New(resp.Error)
			}
			return false, nil
		}
	}

	return func(ctx context.Context, line string) (bool, error) {
		err := eng.in.Execute(ctx, line)
		if eng.b != nil {
			eng.b.PublishState()
		}
		return eng.in.Exited(), err
	}
}

// Sends each line of a local script to the remote server.
func (eng *mainEngine) runRemoteScript(filename string) error {
	f, err := os.Open(filename)
	if err != nil {
		return cnserr.Wrap(cnserr.KindIO, err, "can't load %s", filename)
	}
	defer f.Close()

	run := eng.executor()
	scanner := bufio.NewScanner(f)
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		line := scanner.Text()
		if lineNumber == 1 && strings.HasPrefix(line, "#!") {
			continue
		}

		ctx, done := eng.beginLine()
		_, err = run(ctx, line)
		done()
		if err != nil {
			return cnserr.WithLocation(err, filename, lineNumber)
		}
	}
	return scanner.Err()
}

func (eng *mainEngine) repl() {
	if eng.in != nil && eng.in.Exited() {
		return
	}

	if eng.interactive {
		fmt.Printf("%s %d - type help for commands\n", session.AppName, session.AppVersion)
	}

	// Reading stdin can't be cancelled, so the reader runs on its own and
	// leaks if termination is triggered another way.
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for {
			eng.printPrompt()
			if !scanner.Scan() {
				return
			}
			select {
			case lines <- scanner.Text():
			case <-eng.quit:
				return
			}
		}
	}()

	run := eng.executor()
	for {
		select {
		case <-eng.quit:
			return
		case line, more := <-lines:
			if !more {
				return
			}

			ctx, done := eng.beginLine()
			exited, err := run(ctx, line)
			done()

			if err != nil {
				fmt.Fprintln(os.Stderr, eng.errorText(err))
			}
			if exited {
				return
			}
		}
	}
}

func (eng *mainEngine) printPrompt() {
	if eng.interactive {
		fmt.Print(prompt)
	}
}

func (eng *mainEngine) errorText(err error) string {
	text := err.Error()
	if kind := cnserr.KindOf(err); kind != cnserr.KindUnknown {
		text = kind.String() + ": " + text
	} else {
		text = "error: " + text
	}
	if eng.color {
		return errorStyle.Render(text)
	}
	return text
}

func (eng *mainEngine) stop() {
	if eng.web != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		eng.web.Shutdown(ctx)
		cancel()
	}
	if eng.b != nil {
		eng.b.Close()
	}
	if eng.din != nil {
		eng.din.Close()
	}

	if eng.server != nil {
		eng.server.StopServer()
		eng.server.WaitForTermination()
	} else if eng.saver != nil {
		eng.saver.Stop()
	}

	if eng.in != nil {
		eng.in.Close()
	}
	if eng.s != nil {
		eng.s.Close()
	}
	if eng.client != nil {
		eng.client.Close()
	}
}
