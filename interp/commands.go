package interp

import (
	"context"
	"slices"
	"strings"

	"github.com/jimsnab/go-cns-console/cnserr"
	"github.com/jimsnab/go-cns-console/render"
)

type (
	handler func(ctx context.Context, in *Interp, args []string) error

	command struct {
		name     string
		minArgs  int
		maxArgs  int
		variadic bool
		usage    string
		help     string
		run      handler
	}
)

var (
	commands = map[string]*command{}

	shortcuts = map[string]string{
		"?":    "help",
		"ls":   "list",
		"cat":  "get",
		"rm":   "delete",
		"q":    "exit",
		"cfg":  "config",
		"opt":  "option",
		"wait": "pause",
	}

	aliases = map[string]string{
		"quit": "exit",
		"set":  "put",
	}
)

func register(cmds ...*command) {
	for _, cmd := range cmds {
		commands[cmd.name] = cmd
	}
}

func init() {
	register(
		&command{name: "help", maxArgs: 1, usage: "help [command]", help: "list commands or describe one", run: cmdHelp},
		&command{name: "version", usage: "version", help: "show the console and protocol version", run: cmdVersion},
		&command{name: "exit", usage: "exit", help: "leave the console", run: cmdExit},
		&command{name: "echo", variadic: true, usage: "echo [text ...]", help: "print text", run: cmdEcho},
		&command{name: "config", maxArgs: 2, usage: "config [name [value]]", help: "show or change configuration", run: cmdConfig},
		&command{name: "option", maxArgs: 2, usage: "option [name [value]]", help: "show or change display options", run: cmdOption},
		&command{name: "stats", maxArgs: 1, usage: "stats [reset]", help: "show or reset statistics", run: cmdStats},
		&command{name: "status", usage: "status", help: "show the connection status", run: cmdStatus},
		&command{name: "connect", maxArgs: 1, usage: "connect [prefix]", help: "mirror the namespace below prefix", run: cmdConnect},
		&command{name: "disconnect", usage: "disconnect", help: "drop the mirror", run: cmdDisconnect},
		&command{name: "refresh", maxArgs: 1, usage: "refresh [prefix]", help: "re-read part or all of the namespace", run: cmdRefresh},
		&command{name: "get", minArgs: 1, maxArgs: 2, usage: "get <path> [default]", help: "print a value", run: cmdGet},
		&command{name: "put", minArgs: 2, maxArgs: 2, usage: "put <path> <value>", help: "write a value", run: cmdPut},
		&command{name: "delete", minArgs: 1, maxArgs: 1, usage: "delete <path>", help: "delete a value", run: cmdDelete},
		&command{name: "purge", minArgs: 1, maxArgs: 1, usage: "purge <path>", help: "delete a value and everything below it", run: cmdPurge},
		&command{name: "list", maxArgs: 1, usage: "list [pattern]", help: "list matching paths", run: cmdList},
		&command{name: "show", maxArgs: 2, usage: "show [pattern [format]]", help: "render a subtree", run: cmdShow},
		&command{name: "monitor", maxArgs: 1, usage: "monitor [pattern|off]", help: "re-render a subtree on every change", run: cmdMonitor},
		&command{name: "pause", minArgs: 1, maxArgs: 1, usage: "pause <ms>", help: "wait; an interrupt ends the wait", run: cmdPause},
		&command{name: "load", minArgs: 1, maxArgs: 1, usage: "load <file>", help: "run a script", run: cmdLoad},
		&command{name: "save", minArgs: 1, maxArgs: 1, usage: "save <file>", help: "save the history as a script", run: cmdSave},
		&command{name: "history", usage: "history", help: "show the history", run: cmdHistory},
	)

	for _, f := range render.Formats {
		register(&command{
			name:    string(f),
			maxArgs: 1,
			usage:   string(f) + " [pattern]",
			help:    "render a subtree as " + string(f),
			run:     formatCommand(f),
		})
	}
}

func lookupCommand(name string) (*command, error) {
	lower := strings.ToLower(name)
	if target, exists := shortcuts[lower]; exists {
		lower = target
	}
	if target, exists := aliases[lower]; exists {
		lower = target
	}

	cmd, exists := commands[lower]
	if !exists {
		return nil, cnserr.New(cnserr.KindCommand, "unknown command: %s", name)
	}
	return cmd, nil
}

func commandNames() []string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// other names that resolve to name
func otherNames(name string) (names []string) {
	for short, target := range shortcuts {
		if target == name {
			names = append(names, short)
		}
	}
	for alias, target := range aliases {
		if target == name {
			names = append(names, alias)
		}
	}
	slices.Sort(names)
	return
}
