// Package errors defines the structured error type shared by the clips runtime,
// the template compiler and the CLI.
//
// Every failure the runtime reports is a *ClipError carrying a category (Type),
// a stable machine-readable Code, and optionally the clip it concerns and the
// underlying cause. Errors compare with errors.Is by Type and Code, so callers
// can match against the exported sentinels without caring about messages.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents the category of a clip error.
type ErrorType string

const (
	ErrorTypeValidation   ErrorType = "validation"
	ErrorTypeRange        ErrorType = "range"
	ErrorTypeStructural   ErrorType = "structural"
	ErrorTypeResolution   ErrorType = "resolution"
	ErrorTypePrecondition ErrorType = "precondition"
	ErrorTypeTemplate     ErrorType = "template"
	ErrorTypeListener     ErrorType = "listener"
)

// Error codes.
const (
	CodeInvalidName        = "invalid_name"
	CodeDuplicateClip      = "duplicate_clip"
	CodeInvalidBase        = "invalid_base"
	CodeInvalidProto       = "invalid_proto"
	CodeInvalidTarget      = "invalid_target"
	CodeInvalidPosition    = "invalid_position"
	CodeInvalidParent      = "invalid_parent"
	CodeInvalidEvent       = "invalid_event"
	CodeInvalidListener    = "invalid_listener"
	CodeMultipleRoots      = "multiple_roots"
	CodeStrayText          = "stray_text"
	CodeUnsupportedNode    = "unsupported_node"
	CodeMissingRoot        = "missing_root"
	CodeIncludeMismatch    = "include_mismatch"
	CodeRenderFailed       = "render_failed"
	CodeTemplateNotFound   = "template_not_found"
	CodeClipNotFound       = "clip_not_found"
	CodeRootRequired       = "root_required"
	CodeDestroyed          = "destroyed"
	CodeUnterminatedMarker = "unterminated_marker"
	CodeEmptyMarker        = "empty_marker"
	CodeTemplateParse      = "template_parse"
	CodeTemplateExec       = "template_exec"
	CodeListenerFailed     = "listener_failed"
)

// ClipError is a structured error with category, code and context.
type ClipError struct {
	Type      ErrorType
	Code      string
	Message   string
	Cause     error
	Component string
	Context   map[string]interface{}
}

// Error implements the error interface.
func (e *ClipError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.Component != "" {
		parts = append(parts, fmt.Sprintf("clip %q:", e.Component))
	}

	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *ClipError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a *ClipError with the same type and code.
func (e *ClipError) Is(target error) bool {
	var t *ClipError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithComponent records the clip the error concerns.
func (e *ClipError) WithComponent(component string) *ClipError {
	e.Component = component

	return e
}

// WithContext adds context information to the error.
func (e *ClipError) WithContext(key string, value interface{}) *ClipError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// WithCause sets the underlying cause.
func (e *ClipError) WithCause(cause error) *ClipError {
	e.Cause = cause

	return e
}

// Error creation functions

// NewValidationError creates a type-validation error.
func NewValidationError(code, message string) *ClipError {
	return &ClipError{Type: ErrorTypeValidation, Code: code, Message: message}
}

// NewRangeError creates a range-validation error.
func NewRangeError(code, message string) *ClipError {
	return &ClipError{Type: ErrorTypeRange, Code: code, Message: message}
}

// NewStructuralError creates a render structure error.
func NewStructuralError(code, message string) *ClipError {
	return &ClipError{Type: ErrorTypeStructural, Code: code, Message: message}
}

// NewResolutionError creates a template or clip resolution error.
func NewResolutionError(code, message string, cause error) *ClipError {
	return &ClipError{Type: ErrorTypeResolution, Code: code, Message: message, Cause: cause}
}

// NewPreconditionError creates an error for operations invoked in the wrong state.
func NewPreconditionError(code, message string) *ClipError {
	return &ClipError{Type: ErrorTypePrecondition, Code: code, Message: message}
}

// NewTemplateError creates a template compilation or execution error.
func NewTemplateError(code, message string, cause error) *ClipError {
	return &ClipError{Type: ErrorTypeTemplate, Code: code, Message: message, Cause: cause}
}

// NewListenerError wraps a failure raised by an event listener.
func NewListenerError(eventType string, cause error) *ClipError {
	return &ClipError{
		Type:    ErrorTypeListener,
		Code:    CodeListenerFailed,
		Message: fmt.Sprintf("event listener %q failed", eventType),
		Cause:   cause,
	}
}

// WrapRender wraps a render failure with the clip identity.
func WrapRender(component string, cause error) *ClipError {
	return &ClipError{
		Type:      ErrorTypeStructural,
		Code:      CodeRenderFailed,
		Message:   "unable to render",
		Cause:     cause,
		Component: component,
	}
}

// Sentinels for errors.Is matching.
var (
	ErrInvalidName        = NewValidationError(CodeInvalidName, "invalid clip name")
	ErrDuplicateClip      = NewValidationError(CodeDuplicateClip, "duplicate clip")
	ErrInvalidBase        = NewValidationError(CodeInvalidBase, "invalid base")
	ErrInvalidProto       = NewValidationError(CodeInvalidProto, "invalid proto")
	ErrInvalidTarget      = NewValidationError(CodeInvalidTarget, "invalid target")
	ErrInvalidPosition    = NewRangeError(CodeInvalidPosition, "invalid position")
	ErrInvalidParent      = NewValidationError(CodeInvalidParent, "invalid parent")
	ErrInvalidEvent       = NewValidationError(CodeInvalidEvent, "invalid event")
	ErrInvalidListener    = NewValidationError(CodeInvalidListener, "invalid listener")
	ErrMultipleRoots      = NewStructuralError(CodeMultipleRoots, "multiple root elements")
	ErrStrayText          = NewStructuralError(CodeStrayText, "text outside the root element")
	ErrUnsupportedNode    = NewStructuralError(CodeUnsupportedNode, "unsupported node outside the root element")
	ErrMissingRoot        = NewStructuralError(CodeMissingRoot, "missing clip root")
	ErrIncludeMismatch    = NewStructuralError(CodeIncludeMismatch, "includes mismatch")
	ErrRenderFailed       = NewStructuralError(CodeRenderFailed, "unable to render")
	ErrTemplateNotFound   = NewResolutionError(CodeTemplateNotFound, "template not found", nil)
	ErrClipNotFound       = NewResolutionError(CodeClipNotFound, "clip not found", nil)
	ErrRootRequired       = NewPreconditionError(CodeRootRequired, "no root element")
	ErrDestroyed          = NewPreconditionError(CodeDestroyed, "clip destroyed")
	ErrUnterminatedMarker = NewTemplateError(CodeUnterminatedMarker, "unterminated marker", nil)
	ErrEmptyMarker        = NewTemplateError(CodeEmptyMarker, "empty marker", nil)
	ErrTemplateParse      = NewTemplateError(CodeTemplateParse, "template parse failed", nil)
	ErrTemplateExec       = NewTemplateError(CodeTemplateExec, "template execution failed", nil)
	ErrListenerFailed     = NewListenerError("", nil)
)

// GetErrorType extracts the error type from an error chain.
func GetErrorType(err error) ErrorType {
	var ce *ClipError
	if errors.As(err, &ce) {
		return ce.Type
	}

	return ""
}

// GetErrorCode extracts the outermost error code from an error chain.
func GetErrorCode(err error) string {
	var ce *ClipError
	if errors.As(err, &ce) {
		return ce.Code
	}

	return ""
}

// IsStructural reports whether err is a render structure error.
func IsStructural(err error) bool {
	return GetErrorType(err) == ErrorTypeStructural
}

// IsResolution reports whether err is a template or clip resolution error.
func IsResolution(err error) bool {
	return GetErrorType(err) == ErrorTypeResolution
}
