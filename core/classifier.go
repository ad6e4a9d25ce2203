package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

type serviceErrorConverter interface {
	ToServiceError() *goerrors.Error
}

// Classifier maps failures onto the error taxonomy, tells the user, and
// logs the technical detail.
type Classifier struct {
	notifier Notifier
	logger   Logger
}

func NewClassifier(notifier Notifier, logger Logger) *Classifier {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if logger == nil {
		logger = glog.Nop()
	}
	return &Classifier{notifier: notifier, logger: logger}
}

// Classify resolves err, notifies the user and logs it. Errors that were
// already handled are resolved without a second notification. Cancelled
// and timed out contexts are logged at debug level and never notified.
func (c *Classifier) Classify(ctx context.Context, err error) Classification {
	return c.classify(ctx, err, nil)
}

// Handle classifies err and returns it wrapped in a HandledError.
func (c *Classifier) Handle(ctx context.Context, err error, fields map[string]any) error {
	if err == nil {
		return nil
	}
	if IsHandled(err) {
		return err
	}
	classification := c.classify(ctx, err, fields)
	return &HandledError{
		Classification: classification,
		Rich:           classification.ToServiceError(err),
		cause:          err,
	}
}

func (c *Classifier) classify(ctx context.Context, err error, fields map[string]any) Classification {
	classification := Resolve(err)
	if err == nil || IsHandled(err) || c == nil {
		return classification
	}
	level := "error"
	if classification.Cancelled {
		level = "debug"
	} else {
		c.notifier.Notify(ctx, SeverityError, classification.Message)
	}

	logFields := cloneFields(fields)
	logFields["kind"] = string(classification.Kind)
	logFields["error"] = err.Error()
	if classification.StatusCode > 0 {
		logFields["status_code"] = classification.StatusCode
	}
	if classification.Code != 0 {
		logFields["api_code"] = classification.Code
	}
	Observer{Logger: c.logger}.Log(ctx, level, classification.Message, logFields)
	return classification
}

// Resolve is the side effect free part of classification.
func Resolve(err error) Classification {
	if err == nil {
		return Classification{Kind: ErrorKindUnknown, Message: MessageUnknownError}
	}
	if handled, ok := AsHandled(err); ok {
		return handled.Classification
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Classification{Kind: ErrorKindUnknown, Message: MessageRequestCancelled, Cancelled: true}
	}

	var cfgErr *ConfigurationError
	if errors.As(err, &cfgErr) {
		return Classification{Kind: ErrorKindConfiguration, Message: cfgErr.Error()}
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return classifyAPIError(apiErr)
	}

	var converter serviceErrorConverter
	if errors.As(err, &converter) {
		if rich := converter.ToServiceError(); rich != nil {
			return classifyRichError(rich)
		}
	}

	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		return classifyRichError(rich)
	}
	return Classification{Kind: ErrorKindUnknown, Message: MessageUnknownError}
}

func classifyAPIError(err *APIError) Classification {
	classification := Classification{
		StatusCode: err.StatusCode,
		Code:       err.Code,
		Message:    resolveAPIMessage(err),
	}
	switch {
	case err.StatusCode == http.StatusUnauthorized || err.StatusCode == http.StatusForbidden:
		classification.Kind = ErrorKindAuthentication
	case err.StatusCode == http.StatusTooManyRequests:
		classification.Kind = ErrorKindRateLimit
	case err.StatusCode >= http.StatusInternalServerError:
		classification.Kind = ErrorKindServer
	case isAuthErrorCode(err.Code):
		classification.Kind = ErrorKindAuthentication
	case err.CredentialExchange && err.Code != ErrorCodeRateLimitExceeded:
		classification.Kind = ErrorKindAuthentication
	case err.Code == ErrorCodeRateLimitExceeded:
		classification.Kind = ErrorKindRateLimit
	case err.transportOK() && err.Code != ErrorCodeSuccess:
		classification.Kind = ErrorKindApplication
	default:
		classification.Kind = ErrorKindUnknown
	}
	classification.ShouldInvalidateCredential = classification.Kind == ErrorKindAuthentication
	return classification
}

func resolveAPIMessage(err *APIError) string {
	if err.Code != ErrorCodeSuccess {
		if known, ok := ErrorCodeMessage(err.Code); ok {
			return fmt.Sprintf("Feishu [%d]: %s", err.Code, known)
		}
	}
	if !err.transportOK() {
		switch err.StatusCode {
		case http.StatusBadRequest:
			return MessageGeneralError
		case http.StatusUnauthorized, http.StatusForbidden:
			return MessageAuthError
		case http.StatusTooManyRequests:
			return MessageRateLimitError
		case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable:
			return MessageServerError
		default:
			return fmt.Sprintf("Feishu: HTTP %d 错误", err.StatusCode)
		}
	}
	if err.Code != ErrorCodeSuccess {
		msg := strings.TrimSpace(err.Msg)
		if msg == "" {
			msg = "request failed"
		}
		return fmt.Sprintf("Feishu: [%d] %s", err.Code, msg)
	}
	return MessageUnknownError
}

func classifyRichError(rich *goerrors.Error) Classification {
	switch rich.Category {
	case goerrors.CategoryRateLimit:
		return Classification{Kind: ErrorKindRateLimit, Message: MessageRateLimitError, StatusCode: rich.Code}
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return Classification{
			Kind:                       ErrorKindAuthentication,
			Message:                    MessageAuthError,
			StatusCode:                 rich.Code,
			ShouldInvalidateCredential: true,
		}
	default:
		return Classification{Kind: ErrorKindUnknown, Message: MessageUnknownError}
	}
}
