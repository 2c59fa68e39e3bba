package console

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ErrUnknownCommand is returned by Dispatch for unregistered names.
var ErrUnknownCommand = errors.New("unknown command")

// Handler handles one dispatched input line. args excludes the command name.
type Handler func(ctx context.Context, args []string) error

// Command describes a registered handler.
type Command struct {
	Name  string
	Usage string
	Help  string
}

type registration struct {
	Command
	handler Handler
}

// Registry maps command names to controller handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]registration
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]registration)}
}

// Register binds name to h. Names are unique.
func (r *Registry) Register(name, usage, help string, h Handler) error {
	if name == "" || h == nil {
		return fmt.Errorf("command name and handler are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[name]; exists {
		return fmt.Errorf("command '%s' already registered", name)
	}
	r.handlers[name] = registration{
		Command: Command{Name: name, Usage: usage, Help: help},
		handler: h,
	}
	return nil
}

// MustRegister is Register for static wiring; it panics on conflicts.
func (r *Registry) MustRegister(name, usage, help string, h Handler) {
	if err := r.Register(name, usage, help, h); err != nil {
		panic(err)
	}
}

// Dispatch splits line into words and runs the named handler. Blank lines
// are ignored.
func (r *Registry) Dispatch(ctx context.Context, line string) error {
	words, err := SplitArgs(line)
	if err != nil {
		return err
	}
	if len(words) == 0 {
		return nil
	}

	r.mu.RLock()
	reg, ok := r.handlers[words[0]]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCommand, words[0])
	}
	return reg.handler(ctx, words[1:])
}

// Commands lists registered commands sorted by name.
func (r *Registry) Commands() []Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Command, 0, len(r.handlers))
	for _, reg := range r.handlers {
		out = append(out, reg.Command)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// SplitArgs splits line on whitespace, keeping double-quoted runs together.
func SplitArgs(line string) ([]string, error) {
	var (
		args    []string
		current strings.Builder
		inQuote bool
		started bool
	)
	for _, r := range line {
		switch {
		case r == '"':
			inQuote = !inQuote
			started = true
		case !inQuote && (r == ' ' || r == '\t'):
			if started {
				args = append(args, current.String())
				current.Reset()
				started = false
			}
		default:
			current.WriteRune(r)
			started = true
		}
	}
	if inQuote {
		return nil, fmt.Errorf("unterminated quote")
	}
	if started {
		args = append(args, current.String())
	}
	return args, nil
}

// options parses key=value arguments.
func options(args []string) (map[string]string, error) {
	out := make(map[string]string, len(args))
	for _, a := range args {
		k, v, ok := strings.Cut(a, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("expected key=value, got %q", a)
		}
		out[k] = v
	}
	return out, nil
}
