package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// AppError is the base interface for all application errors
type AppError interface {
	error
	HTTPStatus() int
	Code() string
}

// NotFoundError represents a resource that was not found
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s with ID '%s' not found", e.Resource, e.ID)
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

func (e *NotFoundError) HTTPStatus() int {
	return http.StatusNotFound
}

func (e *NotFoundError) Code() string {
	return "NOT_FOUND"
}

// NewNotFoundError creates a new NotFoundError
func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// InvalidTemplateError represents a structural invariant violation in a
// template definition (non-contiguous step order, cyclic formula dependency,
// missing approver roles). It aborts the mutating call that discovered it and
// is never downgraded to a field-level validation error.
type InvalidTemplateError struct {
	TemplateID string
	Problems   []string
}

func (e *InvalidTemplateError) Error() string {
	return fmt.Sprintf("template '%s' is structurally invalid: %s", e.TemplateID, strings.Join(e.Problems, "; "))
}

func (e *InvalidTemplateError) HTTPStatus() int {
	return http.StatusUnprocessableEntity
}

func (e *InvalidTemplateError) Code() string {
	return "INVALID_TEMPLATE"
}

// NewInvalidTemplateError creates a new InvalidTemplateError
func NewInvalidTemplateError(templateID string, problems []string) *InvalidTemplateError {
	return &InvalidTemplateError{TemplateID: templateID, Problems: problems}
}

// FieldFailure describes one field-level validation failure
type FieldFailure struct {
	Field      string `json:"field"`
	Constraint string `json:"constraint"`
	Message    string `json:"message"`
}

// ValidationFailedError carries every field-level failure found in a payload.
// Failures are always collected exhaustively, never reported one at a time.
type ValidationFailedError struct {
	Failures []FieldFailure
}

func (e *ValidationFailedError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Message))
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(parts, "; "))
}

func (e *ValidationFailedError) HTTPStatus() int {
	return http.StatusBadRequest
}

func (e *ValidationFailedError) Code() string {
	return "VALIDATION_FAILED"
}

// NewValidationFailedError creates a new ValidationFailedError
func NewValidationFailedError(failures []FieldFailure) *ValidationFailedError {
	return &ValidationFailedError{Failures: failures}
}

// ValidationError represents a single invalid input (request shape, missing
// parameter). Field-level payload errors use ValidationFailedError instead.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

func (e *ValidationError) HTTPStatus() int {
	return http.StatusBadRequest
}

func (e *ValidationError) Code() string {
	return "VALIDATION_ERROR"
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// DocumentsMissingError lists every required document tag that has no
// attached document reference.
type DocumentsMissingError struct {
	Tags []string
}

func (e *DocumentsMissingError) Error() string {
	return fmt.Sprintf("required documents missing: %s", strings.Join(e.Tags, ", "))
}

func (e *DocumentsMissingError) HTTPStatus() int {
	return http.StatusUnprocessableEntity
}

func (e *DocumentsMissingError) Code() string {
	return "DOCUMENTS_MISSING"
}

// NewDocumentsMissingError creates a new DocumentsMissingError
func NewDocumentsMissingError(tags []string) *DocumentsMissingError {
	return &DocumentsMissingError{Tags: tags}
}

// ApprovalRequiredError signals that the current step requires an explicit
// approval decision that was not supplied
type ApprovalRequiredError struct {
	StepCode string
}

func (e *ApprovalRequiredError) Error() string {
	return fmt.Sprintf("step '%s' requires an approval decision", e.StepCode)
}

func (e *ApprovalRequiredError) HTTPStatus() int {
	return http.StatusConflict
}

func (e *ApprovalRequiredError) Code() string {
	return "APPROVAL_REQUIRED"
}

// NewApprovalRequiredError creates a new ApprovalRequiredError
func NewApprovalRequiredError(stepCode string) *ApprovalRequiredError {
	return &ApprovalRequiredError{StepCode: stepCode}
}

// ApprovalRejectedError signals that the approver rejected the step. The
// rejection is already recorded in history when this error is returned; the
// engagement stays on the same step.
type ApprovalRejectedError struct {
	StepCode   string
	ApproverID string
}

func (e *ApprovalRejectedError) Error() string {
	return fmt.Sprintf("step '%s' was rejected by approver '%s'", e.StepCode, e.ApproverID)
}

func (e *ApprovalRejectedError) HTTPStatus() int {
	return http.StatusConflict
}

func (e *ApprovalRejectedError) Code() string {
	return "APPROVAL_REJECTED"
}

// NewApprovalRejectedError creates a new ApprovalRejectedError
func NewApprovalRejectedError(stepCode, approverID string) *ApprovalRejectedError {
	return &ApprovalRejectedError{StepCode: stepCode, ApproverID: approverID}
}

// PermissionError represents insufficient permissions
type PermissionError struct {
	Action   string
	Resource string
	UserID   string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("permission denied: cannot %s %s", e.Action, e.Resource)
}

func (e *PermissionError) HTTPStatus() int {
	return http.StatusForbidden
}

func (e *PermissionError) Code() string {
	return "FORBIDDEN"
}

// NewPermissionError creates a new PermissionError
func NewPermissionError(action, resource string) *PermissionError {
	return &PermissionError{Action: action, Resource: resource}
}

// InvalidStateError represents an operation attempted on an engagement whose
// status does not allow it (terminal or otherwise non-advanceable)
type InvalidStateError struct {
	Resource string
	ID       string
	Status   string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("%s '%s' is in state '%s' and cannot be modified", e.Resource, e.ID, e.Status)
}

func (e *InvalidStateError) HTTPStatus() int {
	return http.StatusConflict
}

func (e *InvalidStateError) Code() string {
	return "INVALID_STATE"
}

// NewInvalidStateError creates a new InvalidStateError
func NewInvalidStateError(resource, id, status string) *InvalidStateError {
	return &InvalidStateError{Resource: resource, ID: id, Status: status}
}

// ConcurrentModificationError represents an optimistic-lock conflict. The
// caller may reload and retry; the core never retries on its own.
type ConcurrentModificationError struct {
	Resource string
	ID       string
}

func (e *ConcurrentModificationError) Error() string {
	return fmt.Sprintf("%s '%s' was modified concurrently, reload and retry", e.Resource, e.ID)
}

func (e *ConcurrentModificationError) HTTPStatus() int {
	return http.StatusConflict
}

func (e *ConcurrentModificationError) Code() string {
	return "CONCURRENT_MODIFICATION"
}

// NewConcurrentModificationError creates a new ConcurrentModificationError
func NewConcurrentModificationError(resource, id string) *ConcurrentModificationError {
	return &ConcurrentModificationError{Resource: resource, ID: id}
}

// UnauthorizedError represents authentication failures
type UnauthorizedError struct {
	Reason string
}

func (e *UnauthorizedError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("unauthorized: %s", e.Reason)
	}
	return "unauthorized"
}

func (e *UnauthorizedError) HTTPStatus() int {
	return http.StatusUnauthorized
}

func (e *UnauthorizedError) Code() string {
	return "UNAUTHORIZED"
}

// NewUnauthorizedError creates a new UnauthorizedError
func NewUnauthorizedError(reason string) *UnauthorizedError {
	return &UnauthorizedError{Reason: reason}
}

// ConflictError represents a conflict with existing data
type ConflictError struct {
	Resource string
	Field    string
	Value    string
}

func (e *ConflictError) Error() string {
	if e.Field != "" && e.Value != "" {
		return fmt.Sprintf("%s already exists with %s='%s'", e.Resource, e.Field, e.Value)
	}
	return fmt.Sprintf("%s already exists", e.Resource)
}

func (e *ConflictError) HTTPStatus() int {
	return http.StatusConflict
}

func (e *ConflictError) Code() string {
	return "CONFLICT"
}

// NewConflictError creates a new ConflictError
func NewConflictError(resource, field, value string) *ConflictError {
	return &ConflictError{Resource: resource, Field: field, Value: value}
}

// InternalError represents unexpected server errors
type InternalError struct {
	Message string
	Cause   error
}

func (e *InternalError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("internal error: %s (caused by: %v)", e.Message, e.Cause)
	}
	return fmt.Sprintf("internal error: %s", e.Message)
}

func (e *InternalError) HTTPStatus() int {
	return http.StatusInternalServerError
}

func (e *InternalError) Code() string {
	return "INTERNAL_ERROR"
}

func (e *InternalError) Unwrap() error {
	return e.Cause
}

// NewInternalError creates a new InternalError
func NewInternalError(message string, cause error) *InternalError {
	return &InternalError{Message: message, Cause: cause}
}

// Helper functions for error checking

// IsNotFound checks if an error is a NotFoundError
func IsNotFound(err error) bool {
	var notFound *NotFoundError
	return errors.As(err, &notFound)
}

// IsInvalidTemplate checks if an error is an InvalidTemplateError
func IsInvalidTemplate(err error) bool {
	var invalid *InvalidTemplateError
	return errors.As(err, &invalid)
}

// IsValidationFailed checks if an error is a ValidationFailedError
func IsValidationFailed(err error) bool {
	var failed *ValidationFailedError
	return errors.As(err, &failed)
}

// IsConcurrentModification checks if an error is a ConcurrentModificationError
func IsConcurrentModification(err error) bool {
	var conflict *ConcurrentModificationError
	return errors.As(err, &conflict)
}

// IsPermission checks if an error is a PermissionError
func IsPermission(err error) bool {
	var permission *PermissionError
	return errors.As(err, &permission)
}

// IsInvalidState checks if an error is an InvalidStateError
func IsInvalidState(err error) bool {
	var invalid *InvalidStateError
	return errors.As(err, &invalid)
}

// GetHTTPStatus returns the HTTP status code for an error
// Returns 500 if the error doesn't implement AppError
func GetHTTPStatus(err error) int {
	var appErr AppError
	if errors.As(err, &appErr) {
		return appErr.HTTPStatus()
	}
	return http.StatusInternalServerError
}

// GetErrorCode returns the error code for an error
// Returns "UNKNOWN_ERROR" if the error doesn't implement AppError
func GetErrorCode(err error) string {
	var appErr AppError
	if errors.As(err, &appErr) {
		return appErr.Code()
	}
	return "UNKNOWN_ERROR"
}

// GetDetails returns structured detail for errors that carry a list payload
// (field failures, missing document tags, template problems), nil otherwise
func GetDetails(err error) any {
	var failed *ValidationFailedError
	if errors.As(err, &failed) {
		return failed.Failures
	}
	var docs *DocumentsMissingError
	if errors.As(err, &docs) {
		return docs.Tags
	}
	var invalid *InvalidTemplateError
	if errors.As(err, &invalid) {
		return invalid.Problems
	}
	return nil
}
