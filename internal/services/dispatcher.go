package services

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// ErrUnknownCommand is returned when no handler is registered for a name.
var ErrUnknownCommand = errors.New("unknown command")

// CommandRequest identifies who invoked a command
type CommandRequest struct {
	TenantID  string
	ContactID string
	Name      string
	Args      []string
}

// CommandDispatcher runs named system commands outside the menu engine. The
// returned text, if any, is relayed to the contact.
type CommandDispatcher interface {
	Dispatch(ctx context.Context, req CommandRequest) (string, error)
}

// CommandFunc handles one named command
type CommandFunc func(ctx context.Context, req CommandRequest) (string, error)

// CommandRegistry is a CommandDispatcher backed by a name to handler map
type CommandRegistry struct {
	mu       sync.RWMutex
	handlers map[string]CommandFunc
}

// NewCommandRegistry creates an empty registry
func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{handlers: make(map[string]CommandFunc)}
}

// Register binds name (case-insensitive) to fn.
func (r *CommandRegistry) Register(name string, fn CommandFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[strings.ToLower(name)] = fn
}

func (r *CommandRegistry) Dispatch(ctx context.Context, req CommandRequest) (string, error) {
	r.mu.RLock()
	fn, ok := r.handlers[strings.ToLower(req.Name)]
	r.mu.RUnlock()
	if !ok {
		return "", ErrUnknownCommand
	}
	return fn(ctx, req)
}

// RegisterDefaultCommands wires the built-in commands backed by the action
// executor.
func RegisterDefaultCommands(r *CommandRegistry, actions *ActionExecutor) {
	r.Register("planos", func(ctx context.Context, req CommandRequest) (string, error) {
		return actions.FetchPlanList(ctx, req.TenantID)
	})
	r.Register("plans", func(ctx context.Context, req CommandRequest) (string, error) {
		return actions.FetchPlanList(ctx, req.TenantID)
	})
	r.Register("ajuda", func(ctx context.Context, req CommandRequest) (string, error) {
		return "ℹ️ Comandos disponíveis:\n/planos - lista de planos\n\nNo menu, digite *0* para voltar e *#* para o início.", nil
	})
}
