package feishu

import (
	"github.com/goliatone/go-feishu/core"
	feishuprovider "github.com/goliatone/go-feishu/providers/feishu"
	feishusync "github.com/goliatone/go-feishu/sync"
)

type Config = core.Config

type ProviderConfig = core.ProviderConfig

type LocalTask = core.LocalTask

type Issue = core.Issue

type ReconcileOptions = feishusync.ReconcileOptions

type ReconcileResult = feishusync.ReconcileResult

type RunSummary = feishusync.RunSummary

type TaskSource = feishusync.TaskSource

type TaskSink = feishusync.TaskSink

const ProviderID = feishuprovider.ProviderID

func DefaultConfig() Config {
	return core.DefaultConfig()
}
