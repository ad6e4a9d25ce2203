package gocommand

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/goliatone/go-command"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
)

type typedMessage string

func (m typedMessage) Type() string { return string(m) }

type rejectingMessage struct{}

func (rejectingMessage) Type() string    { return "feishu.test.reject" }
func (rejectingMessage) Validate() error { return errors.New("invalid payload") }

type pingMessage struct {
	ID string
}

func (pingMessage) Type() string { return "feishu.test.ping" }

type jiraMessage struct{}

func (jiraMessage) Type() string { return "jira.command.sync" }

func TestValidateMessageContract(t *testing.T) {
	cases := []struct {
		name    string
		msg     any
		fails   bool
		wantErr string
	}{
		{name: "namespaced", msg: typedMessage("feishu.command.reconcile")},
		{name: "blank type", msg: typedMessage("  "), fails: true, wantErr: "type is required"},
		{name: "foreign namespace", msg: typedMessage("jira.command.sync"), fails: true, wantErr: "must start with"},
		{name: "no type method", msg: struct{}{}, fails: true, wantErr: "must implement"},
		{name: "validate fails", msg: rejectingMessage{}, fails: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateMessageContract(tc.msg)
			if !tc.fails {
				if err != nil {
					t.Fatalf("expected valid message, got %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestRegisterAndSubscribe_GuardsInputs(t *testing.T) {
	adapter := NewRegistryAdapter(command.NewRegistry())
	noop := command.CommandFunc[jiraMessage](func(context.Context, jiraMessage) error { return nil })
	if _, err := RegisterAndSubscribe(adapter, noop); err == nil {
		t.Fatalf("expected foreign message type to be rejected")
	}
	if _, err := RegisterAndSubscribe[pingMessage](adapter, nil); err == nil {
		t.Fatalf("expected nil command error")
	}
	var missing *RegistryAdapter
	ping := command.CommandFunc[pingMessage](func(context.Context, pingMessage) error { return nil })
	if _, err := RegisterAndSubscribe(missing, ping); err == nil {
		t.Fatalf("expected unconfigured adapter error")
	}
}

func TestRegisterAndSubscribe_DispatchesAndRunsResolvers(t *testing.T) {
	adapter := NewRegistryAdapter(command.NewRegistry())
	queueRegistry := jobqueuecommand.NewRegistry()
	var seen []string
	resolved := 0

	sub, err := RegisterAndSubscribe(adapter, command.CommandFunc[pingMessage](func(_ context.Context, msg pingMessage) error {
		seen = append(seen, msg.ID)
		return nil
	}))
	if err != nil {
		t.Fatalf("register and subscribe: %v", err)
	}
	t.Cleanup(sub.Unsubscribe)

	if err := adapter.AddResolver(" audit ", func(any, command.CommandMeta, *command.Registry) error {
		resolved++
		return nil
	}); err != nil {
		t.Fatalf("add resolver: %v", err)
	}
	if err := adapter.AddQueueResolver("queue", queueRegistry); err != nil {
		t.Fatalf("add queue resolver: %v", err)
	}
	if !adapter.HasResolver("audit") || !adapter.HasResolver("queue") {
		t.Fatalf("expected both resolvers to be registered")
	}
	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if resolved != 1 {
		t.Fatalf("expected audit resolver to run once, got %d", resolved)
	}
	if _, ok := queueRegistry.Get("feishu.test.ping"); !ok {
		t.Fatalf("expected ping to be mirrored into the queue registry")
	}

	if err := Dispatch(context.Background(), pingMessage{ID: "m1"}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(seen) != 1 || seen[0] != "m1" {
		t.Fatalf("expected one dispatched ping, got %v", seen)
	}
}

func TestAddQueueResolver_RequiresRegistry(t *testing.T) {
	if err := NewRegistryAdapter(nil).AddQueueResolver("queue", nil); err == nil {
		t.Fatalf("expected missing queue registry error")
	}
}
