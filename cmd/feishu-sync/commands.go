package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	feishu "github.com/goliatone/go-feishu"
	"github.com/goliatone/go-feishu/adapters/gojob"
	"github.com/goliatone/go-feishu/core"
	feishusync "github.com/goliatone/go-feishu/sync"
	"github.com/spf13/cobra"
)

// withService builds the service for one command and releases its log file
// and database handles afterwards.
func (a *app) withService(cmd *cobra.Command, run func(context.Context, *feishu.Service) error) error {
	defer a.close()
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	svc, err := a.newService(ctx)
	if err != nil {
		return err
	}
	return run(ctx, svc)
}

func newTestCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "test",
		Short: "Check that the app credentials can list tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withService(cmd, func(ctx context.Context, svc *feishu.Service) error {
				connected := svc.TestConnection(ctx)
				if err := a.render(map[string]any{
					"provider_id": feishu.ProviderID,
					"app_id":      svc.ProviderConfig().AppID,
					"connected":   connected,
				}); err != nil {
					return err
				}
				if !connected {
					return fmt.Errorf("connection test failed")
				}
				return nil
			})
		},
	}
}

func newGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <guid>",
		Short: "Fetch one task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(cmd, func(ctx context.Context, svc *feishu.Service) error {
				issue, err := svc.GetIssue(ctx, args[0])
				if err != nil {
					return err
				}
				return a.render(issue)
			})
		},
	}
}

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every task visible to the app",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withService(cmd, func(ctx context.Context, svc *feishu.Service) error {
				result, err := svc.ListIssues(ctx)
				if renderErr := a.render(map[string]any{
					"items":     result.Items,
					"pages":     result.Pages,
					"truncated": result.Truncated,
				}); renderErr != nil {
					return renderErr
				}
				return err
			})
		},
	}
}

func newSearchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "search <term>",
		Short: "Search tasks by summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(cmd, func(ctx context.Context, svc *feishu.Service) error {
				results, err := svc.SearchIssues(ctx, args[0])
				if err != nil {
					return err
				}
				return a.render(results)
			})
		},
	}
}

type reconcileFlags struct {
	tasksFile   string
	force       bool
	queue       bool
	maxAttempts int
	retryDelay  time.Duration
}

func newReconcileCmd(a *app) *cobra.Command {
	flags := reconcileFlags{}
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Push local task changes to Feishu",
		Long: `Reconcile reads a JSON array of local tasks and pushes status, content and
comment changes for every linked task.

With --queue every task becomes a reconcile job on an in-process queue and a
worker drains it, retrying transient failures.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if flags.tasksFile == "" {
				return fmt.Errorf("--tasks is required")
			}
			tasks, err := readTasks(flags.tasksFile)
			if err != nil {
				return err
			}
			return a.withService(cmd, func(ctx context.Context, svc *feishu.Service) error {
				if flags.queue {
					return a.reconcileThroughQueue(ctx, svc, tasks, flags)
				}
				if flags.force {
					results := make([]feishusync.ReconcileResult, 0, len(tasks))
					for _, task := range tasks {
						result, err := svc.ReconcileTask(ctx, task, feishu.ReconcileOptions{Force: true})
						if err != nil {
							return err
						}
						results = append(results, result)
					}
					return a.render(results)
				}
				summary, err := svc.ReconcileTasks(ctx, tasks)
				if err != nil {
					return err
				}
				return a.render(summary)
			})
		},
	}
	cmd.Flags().StringVar(&flags.tasksFile, "tasks", "", "JSON file with the local tasks")
	cmd.Flags().BoolVar(&flags.force, "force", false, "ignore the sync cooldown")
	cmd.Flags().BoolVar(&flags.queue, "queue", false, "run every task as a queued reconcile job")
	cmd.Flags().IntVar(&flags.maxAttempts, "max-attempts", 3, "attempts per queued job before dead lettering")
	cmd.Flags().DurationVar(&flags.retryDelay, "retry-delay", time.Second, "base delay between queued retries")
	return cmd
}

type queueReport struct {
	Enqueued    int      `json:"enqueued"`
	Processed   int      `json:"processed"`
	DeadLetters []string `json:"dead_letters,omitempty"`
}

func (a *app) reconcileThroughQueue(
	ctx context.Context,
	svc *feishu.Service,
	tasks []core.LocalTask,
	flags reconcileFlags,
) error {
	memory := gojob.NewMemoryQueue(nil)
	policy := gojob.RetryPolicy{
		MaxAttempts:     flags.maxAttempts,
		MaxDelay:        time.Duration(max(flags.maxAttempts, 1)) * flags.retryDelay,
		DeadLetterOnMax: true,
	}
	enqueuer := gojob.NewEnqueuerAdapter(memory)
	report := queueReport{}
	for _, task := range tasks {
		if !task.IsLinked() {
			continue
		}
		msg, err := gojob.NewReconcileMessage(task, flags.force)
		if err != nil {
			return err
		}
		if err := enqueuer.Enqueue(ctx, msg); err != nil {
			return err
		}
		report.Enqueued++
	}

	worker, err := gojob.NewReconcileWorker(gojob.ReconcileWorkerConfig{
		Dequeuer:       gojob.NewDequeuerAdapter(memory),
		Reconciler:     svc.Reconciler(),
		ProviderConfig: svc.ProviderConfig,
		Policy:         policy,
		RetryDelay:     flags.retryDelay,
		Logger:         svc.Logger(),
	})
	if err != nil {
		return err
	}
	for memory.Len() > 0 {
		processed, err := worker.ProcessNext(ctx)
		if err != nil {
			return err
		}
		if processed {
			report.Processed++
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(flags.retryDelay / 4):
		}
	}
	for _, msg := range memory.DeadLetters() {
		report.DeadLetters = append(report.DeadLetters, msg.IdempotencyKey)
	}
	if err := a.render(report); err != nil {
		return err
	}
	if len(report.DeadLetters) > 0 {
		return fmt.Errorf("%d reconcile jobs dead lettered", len(report.DeadLetters))
	}
	return nil
}

func newPollCmd(a *app) *cobra.Command {
	var (
		tasksFile string
		linkID    string
		watch     bool
	)
	cmd := &cobra.Command{
		Use:   "poll",
		Short: "Refresh a task file from Feishu",
		Long: `Poll refreshes the linked tasks in a JSON task file, adds new backlog items
when auto_add_to_backlog is on and pushes local changes when two_way_sync is on.

With --watch it keeps polling on the poll_interval schedule while auto_poll is
on, until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if tasksFile == "" {
				return fmt.Errorf("--tasks is required")
			}
			store := newTaskFile(tasksFile, linkID)
			return a.withService(cmd, func(ctx context.Context, svc *feishu.Service) error {
				poller, err := svc.NewPoller(store, store)
				if err != nil {
					return err
				}
				if !watch {
					result, err := poller.Tick(ctx)
					if renderErr := a.render(result); renderErr != nil {
						return renderErr
					}
					return err
				}
				ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
				defer stop()
				if err := poller.Start(ctx); err != nil {
					return err
				}
				svc.Logger().Info("polling", "schedule", poller.Schedule(), "tasks", tasksFile)
				<-ctx.Done()
				<-poller.Stop().Done()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&tasksFile, "tasks", "", "JSON task file to refresh")
	cmd.Flags().StringVar(&linkID, "link-id", core.DefaultServiceName, "provider link id for backlog items")
	cmd.Flags().BoolVar(&watch, "watch", false, "keep polling on the configured schedule")
	return cmd
}

func newRunsCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Show recent reconcile runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withService(cmd, func(ctx context.Context, svc *feishu.Service) error {
				runs, err := svc.RecentSyncRuns(ctx, limit)
				if err != nil {
					return err
				}
				return a.render(runs)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "number of runs to show")
	return cmd
}

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the SQL store migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			defer a.close()
			if a.opts.driver == "" {
				return fmt.Errorf("--driver is required")
			}
			if _, err := a.openClient(cmd.Context(), a.opts.driver); err != nil {
				return err
			}
			return a.render(map[string]any{"driver": a.opts.driver, "migrated": true})
		},
	}
}
