package command

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/kastelov/lexitrain/internal/store"
)

// Command represents a slash command.
type Command struct {
	Name        string
	Description string
	Usage       string
	Handler     Handler
}

// Handler is the function signature for command execution.
type Handler func(ctx context.Context, args string, cc *Context) (*Result, error)

// Context carries the resolved caller identity into a handler. User and
// Profile are loaded before dispatch; Profile may be nil before /start.
type Context struct {
	Platform  string
	ChannelID string
	UserID    string
	UserName  string
	User      *store.User
	Profile   *store.Profile
}

// Result holds the output of a command.
type Result struct {
	Content string   `json:"content"`
	Options []string `json:"options,omitempty"`
}

// Registry holds all registered commands.
type Registry struct {
	commands map[string]*Command
	mu       sync.RWMutex
}

// NewRegistry creates an empty command registry.
func NewRegistry() *Registry {
	return &Registry{commands: make(map[string]*Command)}
}

// Register adds a command to the registry.
func (r *Registry) Register(cmd *Command) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands[cmd.Name] = cmd
}

// Parse splits a slash command into name and args. ok is false when the
// input is not a slash command at all.
func Parse(input string) (name, args string, ok bool) {
	input = strings.TrimSpace(input)
	if !strings.HasPrefix(input, "/") {
		return "", "", false
	}
	parts := strings.SplitN(strings.TrimPrefix(input, "/"), " ", 2)
	name = strings.ToLower(parts[0])
	if len(parts) > 1 {
		args = strings.TrimSpace(parts[1])
	}
	return name, args, true
}

// Lookup returns the registered command, if any.
func (r *Registry) Lookup(name string) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmd, ok := r.commands[name]
	return cmd, ok
}

// Dispatch parses a slash command string and executes the matching handler.
// Unknown commands return (nil, false, nil) so the caller can phrase the
// error in the user's language.
func (r *Registry) Dispatch(ctx context.Context, input string, cc *Context) (*Result, bool, error) {
	name, args, isCmd := Parse(input)
	if !isCmd {
		return nil, false, nil
	}
	cmd, ok := r.Lookup(name)
	if !ok {
		return nil, false, nil
	}
	res, err := cmd.Handler(ctx, args, cc)
	return res, true, err
}

// List returns all registered commands sorted by name.
func (r *Registry) List() []*Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]*Command, 0, len(r.commands))
	for _, cmd := range r.commands {
		result = append(result, cmd)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})
	return result
}
