package engine

import (
	"errors"
	"fmt"
)

// ErrorClass classifies an error by the step of the run that produced it.
type ErrorClass string

const (
	// ErrorClassConfiguration indicates an invalid catalog: a cycle, a duplicate
	// identity, or a dependency on an unknown unit. Always fatal before any install.
	ErrorClassConfiguration ErrorClass = "configuration"

	// ErrorClassDetection indicates the detection mechanism itself failed.
	// Recovered locally by treating the unit as absent.
	ErrorClassDetection ErrorClass = "detection"

	// ErrorClassInstall indicates an install or upgrade action failed.
	// Recorded as a failed outcome and propagated only along dependency edges.
	ErrorClassInstall ErrorClass = "install"

	// ErrorClassRender indicates a generated configuration file could not be written.
	ErrorClassRender ErrorClass = "render"

	// ErrorClassConflict indicates another run already holds the machine.
	ErrorClassConflict ErrorClass = "conflict"

	// ErrorClassCancelled indicates the run was interrupted.
	ErrorClassCancelled ErrorClass = "cancelled"
)

// EngineError represents a classified error with context.
// nolint:revive // EngineError is intentionally named to distinguish from standard errors
type EngineError struct {
	// Class is the error classification.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Unit is the unit ID that caused the error, if applicable.
	Unit string `json:"unit,omitempty"`

	// Operation is the operation being performed when the error occurred.
	Operation string `json:"operation,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`

	// Details contains additional context-specific information.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Class, e.Message)
	switch {
	case e.Unit != "" && e.Operation != "":
		msg = fmt.Sprintf("%s (unit=%s, operation=%s)", msg, e.Unit, e.Operation)
	case e.Unit != "":
		msg = fmt.Sprintf("%s (unit=%s)", msg, e.Unit)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error for error chain inspection.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// NewConfigurationError creates a new configuration error.
func NewConfigurationError(message string, err error) *EngineError {
	return &EngineError{Class: ErrorClassConfiguration, Message: message, Err: err}
}

// NewDetectionError creates a new detection error.
func NewDetectionError(message string, err error) *EngineError {
	return &EngineError{Class: ErrorClassDetection, Message: message, Err: err}
}

// NewInstallError creates a new install error.
func NewInstallError(message string, err error) *EngineError {
	return &EngineError{Class: ErrorClassInstall, Message: message, Err: err}
}

// NewRenderError creates a new render error.
func NewRenderError(message string, err error) *EngineError {
	return &EngineError{Class: ErrorClassRender, Message: message, Err: err}
}

// NewConflictError creates a new conflict error.
func NewConflictError(message string, err error) *EngineError {
	return &EngineError{Class: ErrorClassConflict, Message: message, Err: err}
}

// NewCancelledError creates a new cancellation error.
func NewCancelledError(message string, err error) *EngineError {
	return &EngineError{Class: ErrorClassCancelled, Message: message, Err: err}
}

// WithUnit adds unit context to an error.
func (e *EngineError) WithUnit(unitID string) *EngineError {
	e.Unit = unitID
	return e
}

// WithOperation adds operation context to an error.
func (e *EngineError) WithOperation(operation string) *EngineError {
	e.Operation = operation
	return e
}

// WithCode adds an error code to an error.
func (e *EngineError) WithCode(code string) *EngineError {
	e.Code = code
	return e
}

// WithDetail adds a detail field to the error context.
func (e *EngineError) WithDetail(key string, value interface{}) *EngineError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// ClassOf returns the class of the first EngineError in err's chain, or "" if none.
func ClassOf(err error) ErrorClass {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class
	}
	return ""
}

// IsConfiguration returns true if the error is classified as a configuration error.
func IsConfiguration(err error) bool {
	return ClassOf(err) == ErrorClassConfiguration
}

// IsDetection returns true if the error is classified as a detection error.
func IsDetection(err error) bool {
	return ClassOf(err) == ErrorClassDetection
}

// IsInstall returns true if the error is classified as an install error.
func IsInstall(err error) bool {
	return ClassOf(err) == ErrorClassInstall
}

// IsRender returns true if the error is classified as a render error.
func IsRender(err error) bool {
	return ClassOf(err) == ErrorClassRender
}

// IsConflict returns true if the error is classified as a conflict.
func IsConflict(err error) bool {
	return ClassOf(err) == ErrorClassConflict
}

// IsCancelled returns true if the error is classified as a cancellation.
func IsCancelled(err error) bool {
	return ClassOf(err) == ErrorClassCancelled
}

// Common error codes.
const (
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeDuplicateUnit     = "DUPLICATE_UNIT"
	ErrCodeUnknownDependency = "UNKNOWN_DEPENDENCY"
	ErrCodeCycle             = "DEPENDENCY_CYCLE"
	ErrCodePolicyViolation   = "POLICY_VIOLATION"
	ErrCodeNoBackend         = "NO_BACKEND"
	ErrCodeBackendFailed     = "BACKEND_FAILED"
	ErrCodeExitStatus        = "EXIT_STATUS"
	ErrCodeVerification      = "POST_INSTALL_VERIFICATION"
	ErrCodeDependencyFailed  = "DEPENDENCY_FAILED"
	ErrCodeLockHeld          = "LOCK_HELD"
	ErrCodeArtifactWrite     = "ARTIFACT_WRITE"
	ErrCodeUnknownFormat     = "UNKNOWN_FORMAT"
	ErrCodeCancelled         = "CANCELLED"
	ErrCodeInternal          = "INTERNAL_ERROR"
)
