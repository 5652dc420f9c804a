package errorutil

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes shared by the use cases and the HTTP layer.
const (
	CodeValidation         = "VALIDATION_FAILED"
	CodeConflict           = "CONFLICT"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeForbidden          = "FORBIDDEN"
	CodeNotFound           = "NOT_FOUND"
	CodeTokenCreation      = "TOKEN_CREATION_FAILED"
	CodeTokenVerification  = "TOKEN_VERIFICATION_FAILED"
	CodeInternal           = "INTERNAL_ERROR"
)

const internalMessage = "internal server error"

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// Expected reports whether the error is a user-correctable rejection rather than a fault.
func (e *DomainError) Expected() bool {
	return e.HTTPStatus < http.StatusInternalServerError
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(CodeValidation, message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError(CodeUnauthorized, message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError(CodeForbidden, message, http.StatusForbidden, nil)
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError(CodeConflict, message, http.StatusConflict, details)
}

// NewInvalidCredentials is returned for both unknown emails and wrong passwords.
func NewInvalidCredentials(message string) error {
	return NewDomainError(CodeInvalidCredentials, message, http.StatusUnauthorized, nil)
}

func NewTokenCreationError(err error) error {
	return &DomainError{
		Code:       CodeTokenCreation,
		Message:    "token creation failed",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func NewTokenVerificationError(err error) error {
	return &DomainError{
		Code:       CodeTokenVerification,
		Message:    "token verification failed",
		HTTPStatus: http.StatusUnauthorized,
		Err:        err,
	}
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    internalMessage,
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return &DomainError{
		Code:       CodeInternal,
		Message:    internalMessage,
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// IsCode reports whether err is a DomainError carrying code.
func IsCode(err error, code string) bool {
	var domainErr *DomainError
	return errors.As(err, &domainErr) && domainErr.Code == code
}

var codeStatus = map[string]int{
	CodeValidation:         http.StatusBadRequest,
	CodeConflict:           http.StatusConflict,
	CodeInvalidCredentials: http.StatusUnauthorized,
	CodeUnauthorized:       http.StatusUnauthorized,
	CodeForbidden:          http.StatusForbidden,
	CodeNotFound:           http.StatusNotFound,
	CodeTokenCreation:      http.StatusInternalServerError,
	CodeTokenVerification:  http.StatusUnauthorized,
	CodeInternal:           http.StatusInternalServerError,
}

// StatusForCode returns the HTTP status of a taxonomy code. An empty code means success.
func StatusForCode(code string) int {
	if code == "" {
		return http.StatusOK
	}
	if status, ok := codeStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}
