package sync

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-feishu/core"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/robfig/cron/v3"
)

// TaskSource lists the host's local tasks linked to a provider.
type TaskSource interface {
	LinkedTasks(ctx context.Context, providerID string) ([]core.LocalTask, error)
}

// TaskSink applies remote changes to the host's task store.
type TaskSink interface {
	ApplyFreshData(ctx context.Context, updates []core.FreshTaskData) error
	AddToBacklog(ctx context.Context, items []core.IssueReduced) error
}

type PollerConfig struct {
	Provider   core.IssueProvider
	Reconciler *Reconciler
	Source     TaskSource
	Sink       TaskSink
	// Config is read on every tick so host side edits apply without a restart.
	Config   func() core.ProviderConfig
	Interval time.Duration
	Logger   core.Logger
}

type PollResult struct {
	Linked    int         `json:"linked"`
	Refreshed int         `json:"refreshed"`
	Added     int         `json:"added"`
	Run       *RunSummary `json:"run,omitempty"`
}

// Poller refreshes linked tasks on a fixed schedule while auto poll is on.
type Poller struct {
	provider   core.IssueProvider
	reconciler *Reconciler
	source     TaskSource
	sink       TaskSink
	config     func() core.ProviderConfig
	interval   time.Duration
	logger     core.Logger
	observer   core.Observer

	mu   sync.Mutex
	cron *cron.Cron
	stop chan struct{}
}

func NewPoller(cfg PollerConfig) (*Poller, error) {
	if cfg.Provider == nil {
		return nil, fmt.Errorf("sync: poller requires a provider")
	}
	if cfg.Source == nil {
		return nil, fmt.Errorf("sync: poller requires a task source")
	}
	if cfg.Config == nil {
		return nil, fmt.Errorf("sync: poller requires a config func")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = glog.Nop()
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = cfg.Provider.PollInterval()
	}
	if interval <= 0 {
		interval = core.DefaultPollInterval
	}
	return &Poller{
		provider:   cfg.Provider,
		reconciler: cfg.Reconciler,
		source:     cfg.Source,
		sink:       cfg.Sink,
		config:     cfg.Config,
		interval:   interval,
		logger:     logger,
		observer:   core.Observer{Logger: logger},
	}, nil
}

func (p *Poller) Schedule() string {
	return "@every " + p.interval.String()
}

// Start schedules ticks until ctx is done or Stop is called.
func (p *Poller) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cron != nil {
		return fmt.Errorf("sync: poller already started")
	}
	logger := cronLogger{logger: p.logger}
	scheduler := cron.New(cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)))
	_, err := scheduler.AddFunc(p.Schedule(), func() {
		if !p.config().AutoPoll {
			return
		}
		if _, err := p.Tick(ctx); err != nil {
			p.observer.Log(ctx, "error", "sync: poll tick failed", map[string]any{
				"provider_id": p.provider.ID(),
				"error":       err.Error(),
			})
		}
	})
	if err != nil {
		return fmt.Errorf("sync: schedule poller: %w", err)
	}
	scheduler.Start()
	stop := make(chan struct{})
	p.cron = scheduler
	p.stop = stop
	go func() {
		select {
		case <-ctx.Done():
			p.stopScheduler(scheduler)
		case <-stop:
		}
	}()
	return nil
}

// Stop halts the schedule and returns a context that is done once a running
// tick finishes.
func (p *Poller) Stop() context.Context {
	p.mu.Lock()
	scheduler := p.cron
	p.mu.Unlock()
	return p.stopScheduler(scheduler)
}

// Running reports whether a schedule is active.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cron != nil
}

// stopScheduler stops scheduler only while it is still the active run, so a
// stale watcher never halts a later Start.
func (p *Poller) stopScheduler(scheduler *cron.Cron) context.Context {
	p.mu.Lock()
	defer p.mu.Unlock()
	if scheduler == nil || p.cron != scheduler {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}
	close(p.stop)
	p.cron = nil
	p.stop = nil
	return scheduler.Stop()
}

// Tick runs one poll: refresh linked tasks, add new backlog items, then
// push local changes when two way sync is on.
func (p *Poller) Tick(ctx context.Context) (PollResult, error) {
	result := PollResult{}
	cfg := p.config()
	if !p.provider.IsEnabled(cfg) {
		return result, nil
	}
	providerID := p.provider.ID()
	fields := map[string]any{"provider_id": providerID, "app_id": cfg.AppID}

	tasks, err := p.source.LinkedTasks(ctx, providerID)
	if err != nil {
		return result, fmt.Errorf("sync: load linked tasks: %w", err)
	}
	result.Linked = len(tasks)

	fresh, err := p.provider.GetFreshDataForTasks(ctx, tasks, cfg)
	if err != nil {
		return result, err
	}
	if len(fresh) > 0 && p.sink != nil {
		if err := p.sink.ApplyFreshData(ctx, fresh); err != nil {
			return result, fmt.Errorf("sync: apply fresh data: %w", err)
		}
		result.Refreshed = len(fresh)
	}

	if cfg.AutoAddToBacklog && p.sink != nil {
		existing := make([]string, 0, len(tasks))
		for _, task := range tasks {
			existing = append(existing, task.RemoteID)
		}
		items, err := p.provider.GetNewItems(ctx, existing, cfg)
		if err != nil {
			return result, err
		}
		if len(items) > 0 {
			if err := p.sink.AddToBacklog(ctx, items); err != nil {
				return result, fmt.Errorf("sync: add to backlog: %w", err)
			}
			result.Added = len(items)
		}
	}

	if cfg.TwoWaySync && p.reconciler != nil {
		run, err := p.reconciler.ReconcileMany(ctx, tasks, cfg)
		result.Run = &run
		if err != nil {
			return result, err
		}
	}

	p.observer.Log(ctx, "debug", "sync: poll tick complete", mergeAnyMap(fields, map[string]any{
		"linked":    result.Linked,
		"refreshed": result.Refreshed,
		"added":     result.Added,
	}))
	return result, nil
}

// cronLogger routes scheduler logs to the module logger.
type cronLogger struct {
	logger core.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+strings.TrimSpace(msg), keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	args := append([]any{"error", fmt.Sprint(err)}, keysAndValues...)
	l.logger.Error("cron: "+strings.TrimSpace(msg), args...)
}

var _ cron.Logger = cronLogger{}
