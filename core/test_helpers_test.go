package core

import (
	"context"
	"maps"
	"sync"
	"time"
)

type capturedCounter struct {
	name  string
	value int64
	tags  map[string]string
}

type capturedHistogram struct {
	name  string
	value float64
	tags  map[string]string
}

type captureMetricsRecorder struct {
	mu         sync.Mutex
	counters   []capturedCounter
	histograms []capturedHistogram
}

func (m *captureMetricsRecorder) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters = append(m.counters, capturedCounter{name: name, value: value, tags: maps.Clone(tags)})
}

func (m *captureMetricsRecorder) ObserveHistogram(_ context.Context, name string, value float64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.histograms = append(m.histograms, capturedHistogram{name: name, value: value, tags: maps.Clone(tags)})
}

type capturedLog struct {
	level  string
	msg    string
	fields map[string]any
}

type captureLogger struct {
	mu       *sync.Mutex
	records  *[]capturedLog
	defaults map[string]any
}

func newCaptureLogger() *captureLogger {
	records := []capturedLog{}
	return &captureLogger{mu: &sync.Mutex{}, records: &records, defaults: map[string]any{}}
}

func (l *captureLogger) WithFields(fields map[string]any) Logger {
	merged := cloneFields(l.defaults)
	for key, value := range fields {
		merged[key] = value
	}
	return &captureLogger{mu: l.mu, records: l.records, defaults: merged}
}

func (l *captureLogger) Trace(msg string, args ...any) { l.record("trace", msg, args...) }
func (l *captureLogger) Debug(msg string, args ...any) { l.record("debug", msg, args...) }
func (l *captureLogger) Info(msg string, args ...any)  { l.record("info", msg, args...) }
func (l *captureLogger) Warn(msg string, args ...any)  { l.record("warn", msg, args...) }
func (l *captureLogger) Error(msg string, args ...any) { l.record("error", msg, args...) }
func (l *captureLogger) Fatal(msg string, args ...any) { l.record("fatal", msg, args...) }

func (l *captureLogger) WithContext(context.Context) Logger {
	return &captureLogger{mu: l.mu, records: l.records, defaults: cloneFields(l.defaults)}
}

func (l *captureLogger) record(level string, msg string, args ...any) {
	fields := cloneFields(l.defaults)
	for index := 0; index+1 < len(args); index += 2 {
		key, ok := args[index].(string)
		if !ok {
			continue
		}
		fields[key] = args[index+1]
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	*l.records = append(*l.records, capturedLog{level: level, msg: msg, fields: fields})
}

func (l *captureLogger) snapshot() []capturedLog {
	l.mu.Lock()
	defer l.mu.Unlock()
	items := *l.records
	out := make([]capturedLog, len(items))
	copy(out, items)
	return out
}

type capturedNotice struct {
	severity Severity
	message  string
}

type captureNotifier struct {
	mu      sync.Mutex
	notices []capturedNotice
}

func (n *captureNotifier) Notify(_ context.Context, severity Severity, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, capturedNotice{severity: severity, message: message})
}

func (n *captureNotifier) snapshot() []capturedNotice {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]capturedNotice(nil), n.notices...)
}

type testProvider struct {
	id string
}

func (p testProvider) ID() string                      { return p.id }
func (testProvider) PollInterval() time.Duration       { return DefaultPollInterval }
func (testProvider) IsEnabled(cfg ProviderConfig) bool { return cfg.IsEnabled() }
func (testProvider) IssueLink(issueID string) string   { return "https://example.com/" + issueID }

func (testProvider) TestConnection(context.Context, ProviderConfig) bool { return true }

func (testProvider) GetByID(_ context.Context, issueID string, _ ProviderConfig) (Issue, error) {
	return Issue{ID: issueID, GUID: issueID}, nil
}

func (testProvider) Search(context.Context, string, ProviderConfig) ([]SearchResult, error) {
	return nil, nil
}

func (testProvider) GetFreshData(context.Context, LocalTask, ProviderConfig) (*FreshData, error) {
	return nil, nil
}

func (testProvider) GetFreshDataForTasks(context.Context, []LocalTask, ProviderConfig) ([]FreshTaskData, error) {
	return nil, nil
}

func (testProvider) AddTaskData(issue Issue) TaskData {
	return TaskData{Title: issue.Summary, IssueType: IssueTypeFeishu}
}

func (testProvider) GetNewItems(context.Context, []string, ProviderConfig) ([]IssueReduced, error) {
	return nil, nil
}

func (testProvider) UpdateFromTask(context.Context, LocalTask, ProviderConfig) error { return nil }

var _ IssueProvider = testProvider{}
