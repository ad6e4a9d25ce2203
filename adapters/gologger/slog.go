package gologger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"

	glog "github.com/goliatone/go-logger/glog"
)

const levelTrace = slog.Level(-8)

// SlogLogger implements glog.Logger on log/slog. Fatal logs and exits.
type SlogLogger struct {
	logger *slog.Logger
	ctx    context.Context
}

// NewSlogLogger writes JSON records to w at the named level (trace, debug,
// info, warn, error). Unknown levels fall back to info.
func NewSlogLogger(w io.Writer, level string) *SlogLogger {
	if w == nil {
		w = os.Stderr
	}
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)})
	return &SlogLogger{logger: slog.New(handler), ctx: context.Background()}
}

func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return levelTrace
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (l *SlogLogger) Trace(msg string, args ...any) { l.log(levelTrace, msg, args...) }
func (l *SlogLogger) Debug(msg string, args ...any) { l.log(slog.LevelDebug, msg, args...) }
func (l *SlogLogger) Info(msg string, args ...any)  { l.log(slog.LevelInfo, msg, args...) }
func (l *SlogLogger) Warn(msg string, args ...any)  { l.log(slog.LevelWarn, msg, args...) }
func (l *SlogLogger) Error(msg string, args ...any) { l.log(slog.LevelError, msg, args...) }

func (l *SlogLogger) Fatal(msg string, args ...any) {
	l.log(slog.LevelError, msg, args...)
	os.Exit(1)
}

func (l *SlogLogger) WithContext(ctx context.Context) glog.Logger {
	if ctx == nil {
		ctx = context.Background()
	}
	return &SlogLogger{logger: l.logger, ctx: ctx}
}

func (l *SlogLogger) WithFields(fields map[string]any) glog.Logger {
	if len(fields) == 0 {
		return l
	}
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	args := make([]any, 0, len(keys)*2)
	for _, key := range keys {
		args = append(args, key, fields[key])
	}
	return &SlogLogger{logger: l.logger.With(args...), ctx: l.ctx}
}

func (l *SlogLogger) log(level slog.Level, msg string, args ...any) {
	if l == nil || l.logger == nil {
		return
	}
	l.logger.Log(l.ctx, level, msg, args...)
}

// SlogProvider hands out SlogLoggers tagged with the requested name.
type SlogProvider struct {
	Root *SlogLogger
}

func (p SlogProvider) GetLogger(name string) glog.Logger {
	if p.Root == nil {
		return glog.Nop()
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return p.Root
	}
	return &SlogLogger{logger: p.Root.logger.With("logger", name), ctx: p.Root.ctx}
}

var (
	_ glog.Logger         = (*SlogLogger)(nil)
	_ glog.FieldsLogger   = (*SlogLogger)(nil)
	_ glog.LoggerProvider = SlogProvider{}
)
