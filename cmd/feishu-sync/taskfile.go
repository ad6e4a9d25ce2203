package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/goliatone/go-feishu/core"
)

// taskFile is a JSON array of local tasks standing in for the host's task
// store.
type taskFile struct {
	path   string
	linkID string

	mu sync.Mutex
}

func newTaskFile(path, linkID string) *taskFile {
	if linkID == "" {
		linkID = core.DefaultServiceName
	}
	return &taskFile{path: path, linkID: linkID}
}

func readTasks(path string) ([]core.LocalTask, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tasks: %w", err)
	}
	var tasks []core.LocalTask
	if err := json.Unmarshal(raw, &tasks); err != nil {
		return nil, fmt.Errorf("decode tasks %s: %w", path, err)
	}
	return tasks, nil
}

func (f *taskFile) write(tasks []core.LocalTask) error {
	encoded, err := json.MarshalIndent(tasks, "", "  ")
	if err != nil {
		return fmt.Errorf("encode tasks: %w", err)
	}
	if err := os.WriteFile(f.path, append(encoded, '\n'), 0o644); err != nil {
		return fmt.Errorf("write tasks: %w", err)
	}
	return nil
}

func (f *taskFile) LinkedTasks(context.Context, string) ([]core.LocalTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tasks, err := readTasks(f.path)
	if err != nil {
		return nil, err
	}
	linked := make([]core.LocalTask, 0, len(tasks))
	for _, task := range tasks {
		if task.IsLinked() {
			linked = append(linked, task)
		}
	}
	return linked, nil
}

func (f *taskFile) ApplyFreshData(_ context.Context, updates []core.FreshTaskData) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	tasks, err := readTasks(f.path)
	if err != nil {
		return err
	}
	byKey := make(map[string]core.FreshTaskData, len(updates))
	for _, update := range updates {
		byKey[update.Task.Key()] = update
	}
	for i, task := range tasks {
		update, ok := byKey[task.Key()]
		if !ok {
			continue
		}
		changes := update.TaskChanges
		if changes.Title != "" {
			task.Title = changes.Title
		}
		if changes.Notes != "" {
			task.Notes = changes.Notes
		}
		if changes.IssueType != "" {
			task.IssueType = changes.IssueType
		}
		if changes.IssueLastUpdated != 0 {
			task.IssueLastUpdated = changes.IssueLastUpdated
		}
		task.IsDone = update.Issue.IsCompleted()
		tasks[i] = task
	}
	return f.write(tasks)
}

func (f *taskFile) AddToBacklog(_ context.Context, items []core.IssueReduced) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	tasks, err := readTasks(f.path)
	if err != nil {
		return err
	}
	for _, item := range items {
		tasks = append(tasks, core.LocalTask{
			ProviderLinkID: f.linkID,
			RemoteID:       item.GUID,
			IssueType:      core.IssueTypeFeishu,
			Title:          item.Summary,
		})
	}
	return f.write(tasks)
}
