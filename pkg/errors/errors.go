package errors

import (
	"errors"
	"fmt"
)

// ErrorType represents different categories of boot-sequence errors
type ErrorType string

const (
	ErrorTypeValidation   ErrorType = "validation"
	ErrorTypeConfigRead   ErrorType = "config_read"
	ErrorTypeProvisioning ErrorType = "provisioning"
	ErrorTypeProcessStart ErrorType = "process_start"
	ErrorTypeProcess      ErrorType = "process"
	ErrorTypeTransport    ErrorType = "transport"
	ErrorTypeHTTPStatus   ErrorType = "http_status"
	ErrorTypeShutdown     ErrorType = "shutdown"
	ErrorTypeConflict     ErrorType = "conflict"
	ErrorTypeNotFound     ErrorType = "not_found"
	ErrorTypeTimeout      ErrorType = "timeout"
	ErrorTypeCancelled    ErrorType = "cancelled"
	ErrorTypeIO           ErrorType = "io"
	ErrorTypePermission   ErrorType = "permission"
	ErrorTypeInternal     ErrorType = "internal"
)

// DomainError represents a structured error with type and context
type DomainError struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]interface{}
}

func (e *DomainError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is checks if the error is of a specific type
func (e *DomainError) Is(target error) bool {
	if other, ok := target.(*DomainError); ok {
		return e.Type == other.Type
	}
	return false
}

// WithContext adds context information to the error
func (e *DomainError) WithContext(key string, value interface{}) *DomainError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(errorType ErrorType, message string, cause error) *DomainError {
	return &DomainError{
		Type:    errorType,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

func NewValidationError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeValidation, message, cause)
}

// Boot phase errors

// NewConfigReadError reports an override file that exists but cannot be read
func NewConfigReadError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeConfigRead, message, cause)
}

// NewProvisioningError reports a failed fetch, extraction, discovery or setup step
func NewProvisioningError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeProvisioning, message, cause)
}

// NewProcessStartError reports that the OS refused to launch the external command
func NewProcessStartError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeProcessStart, message, cause)
}

func NewProcessError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeProcess, message, cause)
}

// Renewal errors, always recovered inside the renewal loop

func NewTransportError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeTransport, message, cause)
}

func NewHTTPStatusError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeHTTPStatus, message, cause)
}

func NewShutdownError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeShutdown, message, cause)
}

func NewConflictError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeConflict, message, cause)
}

func NewNotFoundError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeNotFound, message, cause)
}

// System errors
func NewTimeoutError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeTimeout, message, cause)
}

func NewCancelledError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeCancelled, message, cause)
}

func NewIOError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeIO, message, cause)
}

func NewPermissionError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypePermission, message, cause)
}

func NewInternalError(message string, cause error) *DomainError {
	return NewDomainError(ErrorTypeInternal, message, cause)
}

// IsType reports whether err wraps a DomainError of the given type
func IsType(err error, errorType ErrorType) bool {
	var domainErr *DomainError
	return errors.As(err, &domainErr) && domainErr.Type == errorType
}

func IsValidationError(err error) bool {
	return IsType(err, ErrorTypeValidation)
}

func IsConfigReadError(err error) bool {
	return IsType(err, ErrorTypeConfigRead)
}

func IsProvisioningError(err error) bool {
	return IsType(err, ErrorTypeProvisioning)
}

func IsProcessStartError(err error) bool {
	return IsType(err, ErrorTypeProcessStart)
}

func IsProcessError(err error) bool {
	return IsType(err, ErrorTypeProcess)
}

func IsTransportError(err error) bool {
	return IsType(err, ErrorTypeTransport)
}

func IsHTTPStatusError(err error) bool {
	return IsType(err, ErrorTypeHTTPStatus)
}

func IsShutdownError(err error) bool {
	return IsType(err, ErrorTypeShutdown)
}

func IsConflictError(err error) bool {
	return IsType(err, ErrorTypeConflict)
}

func IsNotFoundError(err error) bool {
	return IsType(err, ErrorTypeNotFound)
}

func IsTimeoutError(err error) bool {
	return IsType(err, ErrorTypeTimeout)
}

func IsCancelledError(err error) bool {
	return IsType(err, ErrorTypeCancelled)
}

func IsIOError(err error) bool {
	return IsType(err, ErrorTypeIO)
}

func IsPermissionError(err error) bool {
	return IsType(err, ErrorTypePermission)
}

func IsInternalError(err error) bool {
	return IsType(err, ErrorTypeInternal)
}

// ErrorCollection aggregates errors from best-effort operations such as shutdown
type ErrorCollection struct {
	Errors []error
}

func (e *ErrorCollection) Error() string {
	if len(e.Errors) == 0 {
		return "no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("%d errors occurred: %v", len(e.Errors), e.Errors[0])
}

// Unwrap exposes the collected errors to errors.Is and errors.As
func (e *ErrorCollection) Unwrap() []error {
	return e.Errors
}

func (e *ErrorCollection) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

func (e *ErrorCollection) HasErrors() bool {
	return len(e.Errors) > 0
}

func (e *ErrorCollection) ToError() error {
	if !e.HasErrors() {
		return nil
	}
	return e
}

// NewErrorCollection creates a new error collection
func NewErrorCollection() *ErrorCollection {
	return &ErrorCollection{
		Errors: make([]error, 0),
	}
}
