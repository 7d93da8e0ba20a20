package repl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

// ErrUnknownCommand is returned for a line whose first word names no command.
var ErrUnknownCommand = errors.New("unknown command")

// DefaultPrompt is printed before every line.
const DefaultPrompt = "heapsight> "

// Handler runs one command. args excludes the command name.
type Handler func(ctx context.Context, args []string) error

// Command is one shell command.
type Command struct {
	Name  string
	Usage string
	Run   Handler
}

// REPL represents the Read-Eval-Print Loop.
type REPL struct {
	input     io.Reader
	output    io.Writer
	prompt    string
	commands  map[string]Command
	completer *Completer
	history   *History
}

// Option configures a REPL.
type Option func(*REPL)

// WithIO replaces stdin and stdout.
func WithIO(in io.Reader, out io.Writer) Option {
	return func(r *REPL) {
		r.input = in
		r.output = out
	}
}

// WithPrompt replaces DefaultPrompt.
func WithPrompt(prompt string) Option {
	return func(r *REPL) {
		r.prompt = prompt
	}
}

// WithHistory records executed lines in h.
func WithHistory(h *History) Option {
	return func(r *REPL) {
		r.history = h
	}
}

// New creates a REPL dispatching to commands. The built-ins help, history,
// exit and quit are always available.
func New(commands []Command, opts ...Option) *REPL {
	r := &REPL{
		input:    os.Stdin,
		output:   os.Stdout,
		prompt:   DefaultPrompt,
		commands: make(map[string]Command, len(commands)),
		history:  NewHistory("", DefaultHistorySize),
	}
	for _, opt := range opts {
		opt(r)
	}

	names := []string{"help", "history", "exit", "quit"}
	for _, c := range commands {
		r.commands[c.Name] = c
		names = append(names, c.Name)
	}
	r.completer = NewCompleter(names...)
	return r
}

// Run reads lines until EOF, exit or quit, or until ctx is done. Command
// errors are printed and do not end the loop.
func (r *REPL) Run(ctx context.Context) error {
	reader := bufio.NewReader(r.input)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		fmt.Fprint(r.output, r.prompt)

		line, err := reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		eof := errors.Is(err, io.EOF)

		line = strings.TrimSpace(line)
		if line == "" {
			if eof {
				fmt.Fprintln(r.output)
				return nil
			}
			continue
		}

		r.history.Add(line)

		if line == "exit" || line == "quit" {
			return nil
		}
		if err := r.Execute(ctx, line); err != nil {
			fmt.Fprintf(r.output, "Error: %v\n", err)
		}
		if eof {
			return nil
		}
	}
}

// Execute runs a single line.
func (r *REPL) Execute(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	name, args := fields[0], fields[1:]

	switch name {
	case "help":
		r.help()
		return nil
	case "history":
		for i := r.history.Len() - 1; i >= 0; i-- {
			fmt.Fprintln(r.output, r.history.Get(i))
		}
		return nil
	}

	cmd, ok := r.commands[name]
	if !ok {
		if s := r.completer.Complete(name); len(s) > 0 {
			return fmt.Errorf("%w %q (did you mean %s?)", ErrUnknownCommand, name, strings.Join(s, ", "))
		}
		return fmt.Errorf("%w %q", ErrUnknownCommand, name)
	}
	return cmd.Run(ctx, args)
}

func (r *REPL) help() {
	names := make([]string, 0, len(r.commands))
	for name := range r.commands {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		fmt.Fprintf(r.output, "  %-10s %s\n", name, r.commands[name].Usage)
	}
	fmt.Fprintf(r.output, "  %-10s %s\n", "history", "Show previous commands")
	fmt.Fprintf(r.output, "  %-10s %s\n", "exit", "Leave the shell")
}
