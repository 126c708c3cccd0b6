package shell

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/google/shlex"
)

// Handler runs a command. args[0] is the command name.
type Handler func(args []string, out io.Writer)

type command struct {
	help    string
	handler Handler
}

// Dispatcher routes command lines to registered handlers.
type Dispatcher struct {
	commands map[string]command
}

func NewDispatcher() *Dispatcher {
	d := &Dispatcher{commands: make(map[string]command)}
	d.Register("help", "list commands", d.help)
	return d
}

// Register adds or replaces a command.
func (d *Dispatcher) Register(name, help string, h Handler) {
	d.commands[name] = command{help: help, handler: h}
}

// Execute runs one command line. Empty lines are ignored.
func (d *Dispatcher) Execute(line string, out io.Writer) {
	args, err := shlex.Split(line)
	if err != nil {
		fmt.Fprintf(out, "error: %v\r\n", err)
		return
	}
	if len(args) == 0 {
		return
	}

	cmd, ok := d.commands[args[0]]
	if !ok {
		fmt.Fprintf(out, "error: unknown command %q\r\n", args[0])
		return
	}
	cmd.handler(args, out)
}

// Serve executes lines read from in until in is exhausted or ctx is done.
func (d *Dispatcher) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	for ctx.Err() == nil && scanner.Scan() {
		d.Execute(scanner.Text(), out)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read shell input: %w", err)
	}
	return nil
}

func (d *Dispatcher) help(_ []string, out io.Writer) {
	names := make([]string, 0, len(d.commands))
	for name := range d.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(out, "%-12s %s\r\n", name, d.commands[name].help)
	}
}

func arg(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}
