package clips

import (
	cerrors "github.com/conneroisu/clips/internal/errors"
)

// Error is the structured error returned by every clips operation.
// Match it with errors.Is against the sentinels below, or errors.As to
// inspect its Type, Code, Component and Context.
type Error = cerrors.ClipError

// ErrorType is the category of an Error.
type ErrorType = cerrors.ErrorType

// Error categories.
const (
	ErrorTypeValidation   = cerrors.ErrorTypeValidation
	ErrorTypeRange        = cerrors.ErrorTypeRange
	ErrorTypeStructural   = cerrors.ErrorTypeStructural
	ErrorTypeResolution   = cerrors.ErrorTypeResolution
	ErrorTypePrecondition = cerrors.ErrorTypePrecondition
	ErrorTypeTemplate     = cerrors.ErrorTypeTemplate
	ErrorTypeListener     = cerrors.ErrorTypeListener
)

// Sentinels for errors.Is matching.
var (
	ErrInvalidName        = cerrors.ErrInvalidName
	ErrDuplicateClip      = cerrors.ErrDuplicateClip
	ErrInvalidBase        = cerrors.ErrInvalidBase
	ErrInvalidProto       = cerrors.ErrInvalidProto
	ErrInvalidTarget      = cerrors.ErrInvalidTarget
	ErrInvalidPosition    = cerrors.ErrInvalidPosition
	ErrInvalidParent      = cerrors.ErrInvalidParent
	ErrInvalidEvent       = cerrors.ErrInvalidEvent
	ErrInvalidListener    = cerrors.ErrInvalidListener
	ErrMultipleRoots      = cerrors.ErrMultipleRoots
	ErrStrayText          = cerrors.ErrStrayText
	ErrUnsupportedNode    = cerrors.ErrUnsupportedNode
	ErrMissingRoot        = cerrors.ErrMissingRoot
	ErrIncludeMismatch    = cerrors.ErrIncludeMismatch
	ErrRenderFailed       = cerrors.ErrRenderFailed
	ErrTemplateNotFound   = cerrors.ErrTemplateNotFound
	ErrClipNotFound       = cerrors.ErrClipNotFound
	ErrRootRequired       = cerrors.ErrRootRequired
	ErrDestroyed          = cerrors.ErrDestroyed
	ErrUnterminatedMarker = cerrors.ErrUnterminatedMarker
	ErrEmptyMarker        = cerrors.ErrEmptyMarker
	ErrTemplateParse      = cerrors.ErrTemplateParse
	ErrTemplateExec       = cerrors.ErrTemplateExec
	ErrListenerFailed     = cerrors.ErrListenerFailed
)
