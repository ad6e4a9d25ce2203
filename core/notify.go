package core

import (
	"context"
	"strings"
)

type Severity string

const (
	SeverityError   Severity = "ERROR"
	SeverityWarning Severity = "WARNING"
	SeverityInfo    Severity = "INFO"
	SeveritySuccess Severity = "SUCCESS"
)

// Notifier surfaces a short user facing message. Display and localization
// belong to the host.
type Notifier interface {
	Notify(ctx context.Context, severity Severity, message string)
}

type NotifierFunc func(ctx context.Context, severity Severity, message string)

func (fn NotifierFunc) Notify(ctx context.Context, severity Severity, message string) {
	if fn == nil {
		return
	}
	fn(ctx, severity, message)
}

type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, Severity, string) {}

// LogNotifier writes notifications to a logger, for hosts without a UI.
type LogNotifier struct {
	Logger Logger
}

func (n LogNotifier) Notify(ctx context.Context, severity Severity, message string) {
	if n.Logger == nil {
		return
	}
	logger := n.Logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	message = strings.TrimSpace(message)
	switch severity {
	case SeverityError:
		logger.Error(message, "severity", string(severity))
	case SeverityWarning:
		logger.Warn(message, "severity", string(severity))
	default:
		logger.Info(message, "severity", string(severity))
	}
}

var (
	_ Notifier = NopNotifier{}
	_ Notifier = NotifierFunc(nil)
	_ Notifier = LogNotifier{}
)
