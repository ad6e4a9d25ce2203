package command

import (
	"strings"

	"github.com/goliatone/go-feishu/core"
)

const (
	TypeReconcileTask        = "feishu.command.reconcile"
	TypeReconcileTasks       = "feishu.command.reconcile_many"
	TypeClearSyncCache       = "feishu.command.sync_cache.clear"
	TypeInvalidateCredential = "feishu.command.credential.invalidate"
	TypeUpdateFromTask       = "feishu.command.issue.update_from_task"
)

type ReconcileTaskMessage struct {
	Task  core.LocalTask
	Force bool
}

func (ReconcileTaskMessage) Type() string { return TypeReconcileTask }

func (m ReconcileTaskMessage) Validate() error {
	return validateLinkedTask("task", m.Task)
}

type ReconcileTasksMessage struct {
	Tasks []core.LocalTask
}

func (ReconcileTasksMessage) Type() string { return TypeReconcileTasks }

func (m ReconcileTasksMessage) Validate() error {
	if len(m.Tasks) == 0 {
		return core.InvalidField("command", "tasks", "at least one task is required")
	}
	return nil
}

type ClearSyncCacheMessage struct{}

func (ClearSyncCacheMessage) Type() string { return TypeClearSyncCache }

func (ClearSyncCacheMessage) Validate() error { return nil }

// InvalidateCredentialMessage drops the cached tenant token. An empty AppID
// targets the configured app.
type InvalidateCredentialMessage struct {
	AppID string
}

func (InvalidateCredentialMessage) Type() string { return TypeInvalidateCredential }

func (InvalidateCredentialMessage) Validate() error { return nil }

type UpdateFromTaskMessage struct {
	Task core.LocalTask
}

func (UpdateFromTaskMessage) Type() string { return TypeUpdateFromTask }

func (m UpdateFromTaskMessage) Validate() error {
	return validateLinkedTask("task", m.Task)
}

func validateLinkedTask(field string, task core.LocalTask) error {
	if strings.TrimSpace(task.ProviderLinkID) == "" {
		return core.InvalidField("command", field+".provider_link_id", "provider link id is required")
	}
	if strings.TrimSpace(task.RemoteID) == "" {
		return core.InvalidField("command", field+".remote_id", "remote id is required")
	}
	return nil
}
