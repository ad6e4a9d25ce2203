package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-feishu/core"
	feishusync "github.com/goliatone/go-feishu/sync"
)

// MutatingService is the write side of the feishu service.
type MutatingService interface {
	ReconcileTask(ctx context.Context, task core.LocalTask, opts feishusync.ReconcileOptions) (feishusync.ReconcileResult, error)
	ReconcileTasks(ctx context.Context, tasks []core.LocalTask) (feishusync.RunSummary, error)
	ClearSyncCache(ctx context.Context) error
	InvalidateCredential(ctx context.Context, appID string) error
	UpdateFromTask(ctx context.Context, task core.LocalTask) error
}

type ReconcileTaskCommand struct {
	service MutatingService
}

func NewReconcileTaskCommand(service MutatingService) *ReconcileTaskCommand {
	return &ReconcileTaskCommand{service: service}
}

func (c *ReconcileTaskCommand) Execute(ctx context.Context, msg ReconcileTaskMessage) error {
	if c == nil || c.service == nil {
		return missingService("reconcile")
	}
	out, err := c.service.ReconcileTask(ctx, msg.Task, feishusync.ReconcileOptions{Force: msg.Force})
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type ReconcileTasksCommand struct {
	service MutatingService
}

func NewReconcileTasksCommand(service MutatingService) *ReconcileTasksCommand {
	return &ReconcileTasksCommand{service: service}
}

func (c *ReconcileTasksCommand) Execute(ctx context.Context, msg ReconcileTasksMessage) error {
	if c == nil || c.service == nil {
		return missingService("reconcile")
	}
	out, err := c.service.ReconcileTasks(ctx, msg.Tasks)
	storeResult(ctx, out)
	return err
}

type ClearSyncCacheCommand struct {
	service MutatingService
}

func NewClearSyncCacheCommand(service MutatingService) *ClearSyncCacheCommand {
	return &ClearSyncCacheCommand{service: service}
}

func (c *ClearSyncCacheCommand) Execute(ctx context.Context, _ ClearSyncCacheMessage) error {
	if c == nil || c.service == nil {
		return missingService("sync cache")
	}
	return c.service.ClearSyncCache(ctx)
}

type InvalidateCredentialCommand struct {
	service MutatingService
}

func NewInvalidateCredentialCommand(service MutatingService) *InvalidateCredentialCommand {
	return &InvalidateCredentialCommand{service: service}
}

func (c *InvalidateCredentialCommand) Execute(ctx context.Context, msg InvalidateCredentialMessage) error {
	if c == nil || c.service == nil {
		return missingService("credential")
	}
	return c.service.InvalidateCredential(ctx, msg.AppID)
}

type UpdateFromTaskCommand struct {
	service MutatingService
}

func NewUpdateFromTaskCommand(service MutatingService) *UpdateFromTaskCommand {
	return &UpdateFromTaskCommand{service: service}
}

func (c *UpdateFromTaskCommand) Execute(ctx context.Context, msg UpdateFromTaskMessage) error {
	if c == nil || c.service == nil {
		return missingService("issue")
	}
	return c.service.UpdateFromTask(ctx, msg.Task)
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}

func missingService(name string) error {
	return core.ServiceError(goerrors.CategoryInternal, "command: "+name+" service is required", nil, nil)
}
