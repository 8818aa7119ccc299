package domain

import (
	"errors"
	"runtime"
	"strings"
	"time"
)

type ErrorCategory string

const (
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryStartup       ErrorCategory = "startup"
	CategoryActivation    ErrorCategory = "activation"
	CategoryBootstrapTask ErrorCategory = "bootstrap_task"
	CategoryValidation    ErrorCategory = "validation"
	CategoryNetwork       ErrorCategory = "network"
	CategoryStorage       ErrorCategory = "storage"
	CategoryRaft          ErrorCategory = "raft"
	CategoryTimeout       ErrorCategory = "timeout"
)

type ErrorSeverity string

const (
	SeverityWarning  ErrorSeverity = "warning"
	SeverityError    ErrorSeverity = "error"
	SeverityCritical ErrorSeverity = "critical"
)

type ErrorContext struct {
	Component string
	Operation string
	NodeID    string
	File      string
	Line      int
	Function  string
	Details   map[string]interface{}
}

// DomainError is the error type every component reports. Category decides how the
// start sequence treats it; everything else is diagnostic.
type DomainError struct {
	Category   ErrorCategory
	Severity   ErrorSeverity
	Code       string
	Message    string
	Cause      error
	Retryable  bool
	UserFacing bool
	Timestamp  time.Time
	Context    ErrorContext
}

type ErrorOption func(*DomainError)

func WithCode(code string) ErrorOption {
	return func(e *DomainError) {
		e.Code = code
	}
}

func WithSeverity(severity ErrorSeverity) ErrorOption {
	return func(e *DomainError) {
		e.Severity = severity
	}
}

func WithComponent(component string) ErrorOption {
	return func(e *DomainError) {
		e.Context.Component = component
	}
}

func WithOperation(operation string) ErrorOption {
	return func(e *DomainError) {
		e.Context.Operation = operation
	}
}

func WithContextDetail(key string, value interface{}) ErrorOption {
	return func(e *DomainError) {
		if e.Context.Details == nil {
			e.Context.Details = make(map[string]interface{})
		}
		e.Context.Details[key] = value
	}
}

func WithRetryable(retryable bool) ErrorOption {
	return func(e *DomainError) {
		e.Retryable = retryable
	}
}

var categoryDefaults = map[ErrorCategory]struct {
	retryable  bool
	userFacing bool
	severity   ErrorSeverity
}{
	CategoryConfiguration: {false, true, SeverityCritical},
	CategoryStartup:       {false, false, SeverityCritical},
	CategoryActivation:    {false, false, SeverityCritical},
	CategoryBootstrapTask: {false, false, SeverityCritical},
	CategoryValidation:    {false, true, SeverityError},
	CategoryNetwork:       {true, false, SeverityError},
	CategoryStorage:       {false, false, SeverityError},
	CategoryRaft:          {true, false, SeverityError},
	CategoryTimeout:       {true, false, SeverityError},
}

func NewDomainErrorWithCategory(category ErrorCategory, message string, cause error, opts ...ErrorOption) *DomainError {
	defaults := categoryDefaults[category]
	severity := defaults.severity
	if severity == "" {
		severity = SeverityError
	}

	err := &DomainError{
		Category:   category,
		Severity:   severity,
		Message:    message,
		Cause:      cause,
		Retryable:  defaults.retryable,
		UserFacing: defaults.userFacing,
		Timestamp:  time.Now(),
	}
	captureCallSite(err, 2)

	for _, opt := range opts {
		opt(err)
	}

	if err.Code == "" {
		err.Code = inferCode(category, message)
	}

	return err
}

func NewConfigurationError(message string, cause error, opts ...ErrorOption) *DomainError {
	return newAt(CategoryConfiguration, message, cause, opts)
}

func NewStartupError(message string, cause error, opts ...ErrorOption) *DomainError {
	return newAt(CategoryStartup, message, cause, opts)
}

func NewActivationError(message string, cause error, opts ...ErrorOption) *DomainError {
	return newAt(CategoryActivation, message, cause, opts)
}

func NewBootstrapTaskError(message string, cause error, opts ...ErrorOption) *DomainError {
	return newAt(CategoryBootstrapTask, message, cause, opts)
}

func NewValidationError(message string, cause error, opts ...ErrorOption) *DomainError {
	return newAt(CategoryValidation, message, cause, opts)
}

func NewNetworkError(message string, cause error, opts ...ErrorOption) *DomainError {
	return newAt(CategoryNetwork, message, cause, opts)
}

func NewStorageError(message string, cause error, opts ...ErrorOption) *DomainError {
	return newAt(CategoryStorage, message, cause, opts)
}

func NewRaftError(message string, cause error, opts ...ErrorOption) *DomainError {
	return newAt(CategoryRaft, message, cause, opts)
}

func NewTimeoutError(message string, cause error, opts ...ErrorOption) *DomainError {
	return newAt(CategoryTimeout, message, cause, opts)
}

func newAt(category ErrorCategory, message string, cause error, opts []ErrorOption) *DomainError {
	err := NewDomainErrorWithCategory(category, message, cause, opts...)
	captureCallSite(err, 3)
	return err
}

func captureCallSite(err *DomainError, skip int) {
	pc, file, line, ok := runtime.Caller(skip)
	if !ok {
		return
	}
	err.Context.File = file
	err.Context.Line = line
	if fn := runtime.FuncForPC(pc); fn != nil {
		err.Context.Function = fn.Name()
	}
}

func (e *DomainError) Error() string {
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(string(e.Category))
	if e.Context.Component != "" {
		b.WriteString(":")
		b.WriteString(e.Context.Component)
	}
	b.WriteString("] ")
	b.WriteString(e.Code)
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is matches any DomainError of the same category.
func (e *DomainError) Is(target error) bool {
	var other *DomainError
	if !errors.As(target, &other) {
		return false
	}
	return other.Category == e.Category
}

func (e *DomainError) WithNodeID(nodeID string) *DomainError {
	e.Context.NodeID = nodeID
	return e
}

func (e *DomainError) WithOperation(operation string) *DomainError {
	e.Context.Operation = operation
	return e
}

func (e *DomainError) WithContext(key string, value interface{}) *DomainError {
	WithContextDetail(key, value)(e)
	return e
}

func inferCode(category ErrorCategory, message string) string {
	prefix := strings.ToUpper(string(category))
	msg := strings.ToLower(message)

	switch {
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "timed out"):
		return prefix + "_TIMEOUT"
	case strings.Contains(msg, "bind"), strings.Contains(msg, "address in use"):
		return prefix + "_BIND"
	case strings.Contains(msg, "not found"):
		return prefix + "_NOT_FOUND"
	case strings.Contains(msg, "leader"):
		return prefix + "_LEADER"
	case strings.Contains(msg, "required"):
		return prefix + "_REQUIRED"
	case strings.Contains(msg, "transition"):
		return prefix + "_STATE"
	default:
		return prefix + "_INVALID"
	}
}

var (
	ErrAlreadyStarted = errors.New("already started")
	ErrNotStarted     = errors.New("not started")
	ErrClosed         = errors.New("closed")
	ErrNotLeader      = errors.New("not the cluster leader")
	ErrNoLeader       = errors.New("no cluster leader available")
	ErrUnknownNode    = errors.New("node is not visible in the current topology")
)

func IsDomainError(err error) bool {
	var de *DomainError
	return errors.As(err, &de)
}

func GetErrorCategory(err error) ErrorCategory {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Category
	}
	return ""
}

func GetErrorSeverity(err error) ErrorSeverity {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Severity
	}
	return ""
}

func GetErrorContext(err error) *ErrorContext {
	var de *DomainError
	if errors.As(err, &de) {
		return &de.Context
	}
	return nil
}

func IsUserFacingError(err error) bool {
	var de *DomainError
	return errors.As(err, &de) && de.UserFacing
}

func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	var de *DomainError
	if errors.As(err, &de) {
		return de.Retryable
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") || strings.Contains(msg, "temporarily unavailable")
}

func IsConfigurationError(err error) bool {
	return GetErrorCategory(err) == CategoryConfiguration
}

func IsStartupError(err error) bool {
	return GetErrorCategory(err) == CategoryStartup
}

func IsActivationError(err error) bool {
	return GetErrorCategory(err) == CategoryActivation
}

func IsBootstrapTaskError(err error) bool {
	return GetErrorCategory(err) == CategoryBootstrapTask
}
