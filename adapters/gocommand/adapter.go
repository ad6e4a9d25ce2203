package gocommand

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
)

// TypePrefix namespaces every message routed through this adapter.
const TypePrefix = "feishu."

// ValidateMessageContract checks that msg has a namespaced Type() and that
// its optional Validate() passes.
func ValidateMessageContract(msg any) error {
	if err := checkMessageType(msg); err != nil {
		return err
	}
	return command.ValidateMessage(msg)
}

func checkMessageType(msg any) error {
	m, ok := msg.(command.Message)
	if !ok {
		return fmt.Errorf("gocommand: message must implement Type() string")
	}
	kind := strings.TrimSpace(m.Type())
	if kind == "" {
		return fmt.Errorf("gocommand: message type is required")
	}
	if !strings.HasPrefix(kind, TypePrefix) {
		return fmt.Errorf("gocommand: message type %q must start with %q", kind, TypePrefix)
	}
	return nil
}

// RegistryAdapter owns the go-command registry that feishu handlers are
// registered with. Resolvers such as the go-job queue mirror run on
// Initialize.
type RegistryAdapter struct {
	registry *command.Registry
}

func NewRegistryAdapter(registry *command.Registry) *RegistryAdapter {
	if registry == nil {
		registry = command.NewRegistry()
	}
	return &RegistryAdapter{registry: registry}
}

func (a *RegistryAdapter) Registry() *command.Registry {
	if a == nil {
		return nil
	}
	return a.registry
}

func (a *RegistryAdapter) ready() error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return nil
}

// RegisterCommand adds a handler to the registry. Queries go through the same
// call since go-command keys both by message type.
func (a *RegistryAdapter) RegisterCommand(handler any) error {
	if err := a.ready(); err != nil {
		return err
	}
	return a.registry.RegisterCommand(handler)
}

func (a *RegistryAdapter) AddResolver(key string, resolver command.Resolver) error {
	if err := a.ready(); err != nil {
		return err
	}
	return a.registry.AddResolver(strings.TrimSpace(key), resolver)
}

// AddQueueResolver mirrors every registered command into a go-job queue
// registry so it can also run as a queued job.
func (a *RegistryAdapter) AddQueueResolver(key string, queueRegistry *jobqueuecommand.Registry) error {
	if queueRegistry == nil {
		return fmt.Errorf("gocommand: queue registry is required")
	}
	return a.AddResolver(key, jobqueuecommand.QueueResolver(queueRegistry))
}

func (a *RegistryAdapter) HasResolver(key string) bool {
	if a.ready() != nil {
		return false
	}
	return a.registry.HasResolver(strings.TrimSpace(key))
}

func (a *RegistryAdapter) Initialize() error {
	if err := a.ready(); err != nil {
		return err
	}
	return a.registry.Initialize()
}

func Dispatch[T any](ctx context.Context, msg T) error {
	return commanddispatcher.Dispatch(ctx, msg)
}

func Query[T any, R any](ctx context.Context, msg T) (R, error) {
	return commanddispatcher.Query[T, R](ctx, msg)
}

// RegisterAndSubscribe registers cmd and subscribes it with the dispatcher.
// The subscription is dropped again when registration fails.
func RegisterAndSubscribe[T any](
	adapter *RegistryAdapter,
	cmd command.Commander[T],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if cmd == nil {
		return nil, fmt.Errorf("gocommand: command is required")
	}
	return registerAndSubscribe[T](adapter, cmd, func() commanddispatcher.Subscription {
		return commanddispatcher.SubscribeCommand(cmd, runnerOpts...)
	})
}

func RegisterAndSubscribeQuery[T any, R any](
	adapter *RegistryAdapter,
	qry command.Querier[T, R],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if qry == nil {
		return nil, fmt.Errorf("gocommand: query is required")
	}
	return registerAndSubscribe[T](adapter, qry, func() commanddispatcher.Subscription {
		return commanddispatcher.SubscribeQuery(qry, runnerOpts...)
	})
}

func registerAndSubscribe[T any](
	adapter *RegistryAdapter,
	handler any,
	subscribe func() commanddispatcher.Subscription,
) (commanddispatcher.Subscription, error) {
	if err := adapter.ready(); err != nil {
		return nil, err
	}
	var zero T
	if reflect.TypeOf(zero) != nil && reflect.TypeOf(zero).Kind() != reflect.Pointer {
		if err := checkMessageType(zero); err != nil {
			return nil, err
		}
	}
	subscription := subscribe()
	if err := adapter.RegisterCommand(handler); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		return nil, err
	}
	return subscription, nil
}
