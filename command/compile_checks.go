package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[ReconcileTaskMessage]        = (*ReconcileTaskCommand)(nil)
	_ gocmd.Commander[ReconcileTasksMessage]       = (*ReconcileTasksCommand)(nil)
	_ gocmd.Commander[ClearSyncCacheMessage]       = (*ClearSyncCacheCommand)(nil)
	_ gocmd.Commander[InvalidateCredentialMessage] = (*InvalidateCredentialCommand)(nil)
	_ gocmd.Commander[UpdateFromTaskMessage]       = (*UpdateFromTaskCommand)(nil)
)
