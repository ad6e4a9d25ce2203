package core

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ServiceErrorBadInput        = "FEISHU_BAD_INPUT"
	ServiceErrorNotFound        = "FEISHU_NOT_FOUND"
	ServiceErrorConfiguration   = "FEISHU_CONFIGURATION"
	ServiceErrorAuthentication  = "FEISHU_AUTHENTICATION"
	ServiceErrorRateLimited     = "FEISHU_RATE_LIMITED"
	ServiceErrorServer          = "FEISHU_SERVER_ERROR"
	ServiceErrorApplication     = "FEISHU_APPLICATION_ERROR"
	ServiceErrorUnknown         = "FEISHU_UNKNOWN_ERROR"
	ServiceErrorExternalFailure = "FEISHU_EXTERNAL_FAILURE"
	ServiceErrorInternal        = "FEISHU_INTERNAL_ERROR"
)

type ErrorKind string

const (
	ErrorKindConfiguration  ErrorKind = "ConfigurationError"
	ErrorKindAuthentication ErrorKind = "AuthenticationError"
	ErrorKindRateLimit      ErrorKind = "RateLimitError"
	ErrorKindServer         ErrorKind = "ServerError"
	ErrorKindApplication    ErrorKind = "ApplicationError"
	ErrorKindUnknown        ErrorKind = "UnknownError"
)

// Application error codes returned in the {code,msg,data} envelope.
const (
	ErrorCodeSuccess                  = 0
	ErrorCodeInvalidParam             = 1
	ErrorCodeUnauthorized             = 99991663
	ErrorCodePermissionDenied         = 99991664
	ErrorCodeRateLimitExceeded        = 99991400
	ErrorCodeTenantAccessTokenInvalid = 99991672
	ErrorCodeAppIDInvalid             = 10013
	ErrorCodeAppSecretInvalid         = 10014
)

var errorCodeMessages = map[int]string{
	ErrorCodeSuccess:                  "成功",
	ErrorCodeInvalidParam:             "参数错误",
	ErrorCodeUnauthorized:             "认证失败，请检查 App ID 和 App Secret",
	ErrorCodePermissionDenied:         "权限不足，请检查应用权限配置",
	ErrorCodeRateLimitExceeded:        "请求频率超限，请稍后重试",
	ErrorCodeTenantAccessTokenInvalid: "Access Token 无效或已过期",
	ErrorCodeAppIDInvalid:             "App ID 无效",
	ErrorCodeAppSecretInvalid:         "App Secret 无效",
}

const (
	MessageMissingAppID     = "Feishu: 缺少 App ID"
	MessageMissingAppSecret = "Feishu: 缺少 App Secret"
	MessageGeneralError     = "Feishu: 请求参数错误"
	MessageAuthError        = "Feishu: 认证失败，请检查 App ID 和 App Secret"
	MessageRateLimitError   = "Feishu: 请求频率超限，请稍后重试"
	MessageServerError      = "Feishu: 服务器错误，请稍后重试"
	MessageUnknownError     = "Feishu: 未知错误"
	MessageRequestCancelled = "Feishu: 请求已取消"
)

// ErrorCodeMessage looks up the known message for an application code.
func ErrorCodeMessage(code int) (string, bool) {
	msg, ok := errorCodeMessages[code]
	return msg, ok
}

func isAuthErrorCode(code int) bool {
	switch code {
	case ErrorCodeUnauthorized,
		ErrorCodePermissionDenied,
		ErrorCodeTenantAccessTokenInvalid,
		ErrorCodeAppIDInvalid,
		ErrorCodeAppSecretInvalid:
		return true
	default:
		return false
	}
}

// ConfigurationError reports missing client identity before any network call.
type ConfigurationError struct {
	Field   string
	Message string
}

func (e *ConfigurationError) Error() string {
	if e == nil {
		return ""
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		return msg
	}
	return fmt.Sprintf("Feishu: %s is required", e.Field)
}

// ValidateCredentials returns a ConfigurationError when app id or secret is absent.
func ValidateCredentials(creds AppCredentials) error {
	if strings.TrimSpace(creds.AppID) == "" {
		return &ConfigurationError{Field: "app_id", Message: MessageMissingAppID}
	}
	if strings.TrimSpace(creds.AppSecret) == "" {
		return &ConfigurationError{Field: "app_secret", Message: MessageMissingAppSecret}
	}
	return nil
}

// APIError is a failed API call: a non-2xx transport status, a non-zero
// application code in the envelope, or both.
type APIError struct {
	Operation  string
	StatusCode int
	Code       int
	Msg        string
	// CredentialExchange marks failures of the token endpoint, where any
	// non-zero code means the app identity was rejected.
	CredentialExchange bool
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != ErrorCodeSuccess {
		msg := strings.TrimSpace(e.Msg)
		if known, ok := ErrorCodeMessage(e.Code); ok {
			msg = known
		}
		if msg == "" {
			msg = "request failed"
		}
		return fmt.Sprintf("[%d] %s", e.Code, msg)
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return "request failed"
}

func (e *APIError) transportOK() bool {
	return e.StatusCode == 0 || (e.StatusCode >= 200 && e.StatusCode < 300)
}

// Classification is the outcome of mapping an error onto the taxonomy.
type Classification struct {
	Kind                       ErrorKind
	Message                    string
	ShouldInvalidateCredential bool
	StatusCode                 int
	Code                       int
	// Cancelled marks a caller side context cancellation or deadline; the
	// user is not notified.
	Cancelled bool
}

// ToServiceError renders the classification as a go-errors envelope.
func (c Classification) ToServiceError(cause error) *goerrors.Error {
	category, code, textCode := kindEnvelope(c.Kind)
	var rich *goerrors.Error
	if cause != nil {
		rich = goerrors.Wrap(cause, category, c.Message)
	} else {
		rich = goerrors.New(c.Message, category)
	}
	metadata := map[string]any{
		"kind":                  string(c.Kind),
		"invalidate_credential": c.ShouldInvalidateCredential,
	}
	if c.StatusCode > 0 {
		metadata["status_code"] = c.StatusCode
	}
	if c.Code != 0 {
		metadata["api_code"] = c.Code
	}
	if c.Cancelled {
		metadata["cancelled"] = true
	}
	return rich.
		WithCode(code).
		WithTextCode(textCode).
		WithMetadata(metadata)
}

func kindEnvelope(kind ErrorKind) (goerrors.Category, int, string) {
	switch kind {
	case ErrorKindConfiguration:
		return goerrors.CategoryValidation, http.StatusBadRequest, ServiceErrorConfiguration
	case ErrorKindAuthentication:
		return goerrors.CategoryAuth, http.StatusUnauthorized, ServiceErrorAuthentication
	case ErrorKindRateLimit:
		return goerrors.CategoryRateLimit, http.StatusTooManyRequests, ServiceErrorRateLimited
	case ErrorKindServer:
		return goerrors.CategoryExternal, http.StatusBadGateway, ServiceErrorServer
	case ErrorKindApplication:
		return goerrors.CategoryOperation, http.StatusUnprocessableEntity, ServiceErrorApplication
	default:
		return goerrors.CategoryInternal, http.StatusInternalServerError, ServiceErrorUnknown
	}
}

// HandledError marks a failure that was already classified, logged, and
// surfaced to the user.
type HandledError struct {
	Classification Classification
	Rich           *goerrors.Error
	cause          error
}

func (e *HandledError) Error() string {
	if e == nil {
		return ""
	}
	return e.Classification.Message
}

func (e *HandledError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

func IsHandled(err error) bool {
	_, ok := AsHandled(err)
	return ok
}

func AsHandled(err error) (*HandledError, bool) {
	var handled *HandledError
	if errors.As(err, &handled) && handled != nil {
		return handled, true
	}
	return nil, false
}

// MapError converts any error into the go-errors envelope used at the
// command and query boundary.
func MapError(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if handled, ok := AsHandled(err); ok && handled.Rich != nil {
		return handled.Rich
	}
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		return ensureServiceErrorEnvelope(rich)
	}
	var cfgErr *ConfigurationError
	if errors.As(err, &cfgErr) {
		return Resolve(err).ToServiceError(err)
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return Resolve(err).ToServiceError(err)
	}
	return ensureServiceErrorEnvelope(goerrors.MapToError(err, goerrors.DefaultErrorMappers()))
}

func ensureServiceErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = serviceHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultServiceTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultServiceTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return ServiceErrorBadInput
	case goerrors.CategoryNotFound:
		return ServiceErrorNotFound
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return ServiceErrorAuthentication
	case goerrors.CategoryRateLimit:
		return ServiceErrorRateLimited
	case goerrors.CategoryOperation:
		return ServiceErrorApplication
	case goerrors.CategoryExternal:
		return ServiceErrorExternalFailure
	default:
		return ServiceErrorInternal
	}
}

func serviceHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// ServiceError builds a go-errors envelope for category, wrapping cause
// when set. The HTTP status and text code follow the category.
func ServiceError(category goerrors.Category, message string, cause error, metadata map[string]any) *goerrors.Error {
	var err *goerrors.Error
	if cause != nil {
		err = goerrors.Wrap(cause, category, message)
	} else {
		err = goerrors.New(message, category)
	}
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return ensureServiceErrorEnvelope(err)
}

// InvalidField rejects one field of an inbound command or query. scope
// prefixes the message, e.g. "command" or "query".
func InvalidField(scope, field, message string) error {
	return goerrors.NewValidation(scope+": validation failed", goerrors.FieldError{
		Field:   field,
		Message: message,
	}).
		WithCode(http.StatusBadRequest).
		WithTextCode(ServiceErrorBadInput).
		WithSeverity(goerrors.SeverityError)
}
