// Package errors provides structured error types for relmap.
// All errors include a category, code, message, and retryable flag so that
// schema, value and storage failures can be told apart by callers.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by the layer that raised them.
type ErrorCategory string

const (
	ErrCategorySchema   ErrorCategory = "SCHEMA"
	ErrCategoryValue    ErrorCategory = "VALUE"
	ErrCategoryStorage  ErrorCategory = "STORAGE"
	ErrCategoryConfig   ErrorCategory = "CONFIG"
	ErrCategoryInternal ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Schema codes
	CodeKeyNotFound          = "KEY_NOT_FOUND"
	CodeUnknownKey           = "UNKNOWN_KEY"
	CodeHeadingNotFound      = "HEADING_NOT_FOUND"
	CodeUnknownAttribute     = "UNKNOWN_ATTRIBUTE"
	CodeDuplicateAttribute   = "DUPLICATE_ATTRIBUTE"
	CodeDuplicateKey         = "DUPLICATE_KEY"
	CodeNoAssociation        = "NO_ASSOCIATION"
	CodeAmbiguousAssociation = "AMBIGUOUS_ASSOCIATION"
	CodeUnsupportedDomain    = "UNSUPPORTED_DOMAIN"
	CodeRegistryFrozen       = "REGISTRY_FROZEN"
	CodeInvalidSchema        = "INVALID_SCHEMA"

	// Value codes
	CodeTypeMismatch          = "TYPE_MISMATCH"
	CodeMissingPartitionValue = "MISSING_PARTITION_VALUE"
	CodeInvalidUpsert         = "INVALID_UPSERT"
	CodeInvalidValue          = "INVALID_VALUE"
	CodeInvalidBatch          = "INVALID_BATCH"
	CodeParseError            = "PARSE_ERROR"

	// Storage codes
	CodeRowNotFound       = "ROW_NOT_FOUND"
	CodePartitionNotFound = "PARTITION_NOT_FOUND"
	CodeUploadFailed      = "UPLOAD_FAILED"
	CodeDownloadFailed    = "DOWNLOAD_FAILED"
	CodeObjectNotFound    = "OBJECT_NOT_FOUND"

	// Config codes
	CodeInvalidConfig = "INVALID_CONFIG"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// Sentinels for errors.Is checks. Matching is by category and code, so a
// detailed error built by one of the constructors below matches its sentinel.
var (
	ErrKeyNotFound           = New(ErrCategorySchema, CodeKeyNotFound, "key not found")
	ErrUnknownKey            = New(ErrCategorySchema, CodeUnknownKey, "unknown key")
	ErrHeadingNotFound       = New(ErrCategorySchema, CodeHeadingNotFound, "heading not found")
	ErrUnknownAttribute      = New(ErrCategorySchema, CodeUnknownAttribute, "unknown attribute")
	ErrNoAssociation         = New(ErrCategorySchema, CodeNoAssociation, "no association")
	ErrAmbiguousAssociation  = New(ErrCategorySchema, CodeAmbiguousAssociation, "ambiguous association")
	ErrRegistryFrozen        = New(ErrCategorySchema, CodeRegistryFrozen, "registry is frozen")
	ErrTypeMismatch          = New(ErrCategoryValue, CodeTypeMismatch, "type mismatch")
	ErrMissingPartitionValue = New(ErrCategoryValue, CodeMissingPartitionValue, "missing partition value")
	ErrInvalidUpsert         = New(ErrCategoryValue, CodeInvalidUpsert, "invalid upsert options")
	ErrInvalidBatch          = New(ErrCategoryValue, CodeInvalidBatch, "invalid batch query")
	ErrRowNotFound           = New(ErrCategoryStorage, CodeRowNotFound, "row not found")
)

// RelmapError is the structured error type used throughout the system.
type RelmapError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Details   map[string]interface{}
	Cause     error
	Retryable bool
}

// Error returns a formatted error string.
func (e *RelmapError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *RelmapError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *RelmapError) Is(target error) bool {
	var t *RelmapError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new RelmapError.
func New(category ErrorCategory, code, message string) *RelmapError {
	return &RelmapError{
		Category:  category,
		Code:      code,
		Message:   message,
		Retryable: isRetryable(category, code),
	}
}

// Newf creates a new RelmapError with a formatted message.
func Newf(category ErrorCategory, code, format string, args ...interface{}) *RelmapError {
	return New(category, code, fmt.Sprintf(format, args...))
}

// Wrap creates a new RelmapError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *RelmapError {
	return &RelmapError{
		Category:  category,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: isRetryable(category, code),
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *RelmapError) WithDetails(details map[string]interface{}) *RelmapError {
	cp := *e
	cp.Details = details
	return &cp
}

// Detail returns a single detail value, or nil.
func (e *RelmapError) Detail(name string) interface{} {
	if e.Details == nil {
		return nil
	}
	return e.Details[name]
}

// IsRetryable checks whether an error (or its chain) is retryable.
func IsRetryable(err error) bool {
	var re *RelmapError
	if errors.As(err, &re) {
		return re.Retryable
	}
	return false
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not a RelmapError.
func GetCategory(err error) ErrorCategory {
	var re *RelmapError
	if errors.As(err, &re) {
		return re.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not a RelmapError.
func GetCode(err error) string {
	var re *RelmapError
	if errors.As(err, &re) {
		return re.Code
	}
	return ""
}

// As is a shorthand for errors.As into a *RelmapError.
func As(err error) (*RelmapError, bool) {
	var re *RelmapError
	ok := errors.As(err, &re)
	return re, ok
}

func isRetryable(category ErrorCategory, code string) bool {
	switch {
	case category == ErrCategoryStorage && code == CodeUploadFailed:
		return true
	case category == ErrCategoryStorage && code == CodeDownloadFailed:
		return true
	default:
		return false
	}
}

// Convenience constructors for common errors.

func NewSchemaError(code, message string) *RelmapError {
	return New(ErrCategorySchema, code, message)
}

func NewValueError(code, message string) *RelmapError {
	return New(ErrCategoryValue, code, message)
}

func NewStorageError(code, message string, cause error) *RelmapError {
	return Wrap(ErrCategoryStorage, code, message, cause)
}

func NewConfigError(message string, cause error) *RelmapError {
	return Wrap(ErrCategoryConfig, CodeInvalidConfig, message, cause)
}

func NewInternalError(message string, cause error) *RelmapError {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}

// KeyNotFound reports a key lookup by name that missed on a heading.
func KeyNotFound(heading, key string) *RelmapError {
	return Newf(ErrCategorySchema, CodeKeyNotFound, "key %q not found on heading %q", key, heading).
		WithDetails(map[string]interface{}{"heading": heading, "key": key})
}

// UnknownKey reports a reference declared against a key the parent lacks.
func UnknownKey(heading, key string) *RelmapError {
	return Newf(ErrCategorySchema, CodeUnknownKey, "reference names unknown key %q of heading %q", key, heading).
		WithDetails(map[string]interface{}{"heading": heading, "key": key})
}

// HeadingNotFound reports a missing base heading (child == "") or child heading.
func HeadingNotFound(entity, child string) *RelmapError {
	msg := fmt.Sprintf("entity %q has no base heading", entity)
	if child != "" {
		msg = fmt.Sprintf("entity %q has no child heading %q", entity, child)
	}
	return New(ErrCategorySchema, CodeHeadingNotFound, msg).
		WithDetails(map[string]interface{}{"entity": entity, "child": child})
}

// UnknownAttribute reports an attribute name missing from a heading.
func UnknownAttribute(heading, attribute string) *RelmapError {
	return Newf(ErrCategorySchema, CodeUnknownAttribute, "heading %q has no attribute %q", heading, attribute).
		WithDetails(map[string]interface{}{"heading": heading, "attribute": attribute})
}

// NoAssociation reports two entities that share no reference.
func NoAssociation(from, to string) *RelmapError {
	return Newf(ErrCategorySchema, CodeNoAssociation, "no association from %q to %q", from, to).
		WithDetails(map[string]interface{}{"from": from, "to": to})
}

// AmbiguousAssociation reports more than one reference in the same direction.
func AmbiguousAssociation(from, to string) *RelmapError {
	return Newf(ErrCategorySchema, CodeAmbiguousAssociation, "more than one reference between %q and %q", from, to).
		WithDetails(map[string]interface{}{"from": from, "to": to})
}

// TypeMismatch reports an object of the wrong entity type.
func TypeMismatch(expected, actual string) *RelmapError {
	return Newf(ErrCategoryValue, CodeTypeMismatch, "expected %q, got %q", expected, actual).
		WithDetails(map[string]interface{}{"expected": expected, "actual": actual})
}

// MissingPartitionValue reports a write without the partition attribute.
func MissingPartitionValue(table, attribute string) *RelmapError {
	return Newf(ErrCategoryValue, CodeMissingPartitionValue, "table %q requires a value for partition attribute %q", table, attribute).
		WithDetails(map[string]interface{}{"table": table, "attribute": attribute})
}

// InvalidUpsert reports malformed upsert options.
func InvalidUpsert(message string) *RelmapError {
	return New(ErrCategoryValue, CodeInvalidUpsert, message)
}

// InvalidValue reports a value that cannot be encoded for an attribute.
func InvalidValue(attribute string, value interface{}, reason string) *RelmapError {
	return Newf(ErrCategoryValue, CodeInvalidValue, "attribute %q: cannot use %v (%T): %s", attribute, value, value, reason).
		WithDetails(map[string]interface{}{"attribute": attribute})
}
