package services

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-faster/errors"

	"github.com/menusam/listing-moderation/modules/listings/domain/aggregates/draft"
	"github.com/menusam/listing-moderation/modules/listings/domain/entities/establishment"
	"github.com/menusam/listing-moderation/modules/listings/domain/entities/moderation"
	"github.com/menusam/listing-moderation/modules/listings/domain/policy"
)

// Error kinds. Every *ServiceError matches exactly one of them with errors.Is.
var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrPolicyViolation   = errors.New("policy violation")
	ErrValidation        = errors.New("validation error")
	ErrDependencyFailure = errors.New("dependency failure")
)

type ServiceError struct {
	Status  int
	Code    string
	Message string
	Kind    error
	Cause   error
}

func (e *ServiceError) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *ServiceError) Unwrap() error { return e.Cause }

func (e *ServiceError) Is(target error) bool { return target == e.Kind }

func statusFor(kind error) int {
	switch kind {
	case ErrNotFound:
		return http.StatusNotFound
	case ErrConflict:
		return http.StatusConflict
	case ErrPolicyViolation:
		return http.StatusUnprocessableEntity
	case ErrValidation:
		return http.StatusBadRequest
	default:
		return http.StatusServiceUnavailable
	}
}

func newServiceError(kind error, code, message string, cause error) *ServiceError {
	return &ServiceError{Status: statusFor(kind), Code: code, Message: message, Kind: kind, Cause: cause}
}

func validationError(code, message string) *ServiceError {
	return newServiceError(ErrValidation, code, message, nil)
}

func conflictError(code, message string) *ServiceError {
	return newServiceError(ErrConflict, code, message, nil)
}

func errDraftFinalized() *ServiceError {
	return conflictError("DRAFT_ALREADY_FINALIZED", "draft has already been finalized")
}

// classify maps repository and domain errors onto the service taxonomy.
// Anything unrecognized is a dependency failure.
func classify(err error, op string) error {
	if err == nil {
		return nil
	}
	var (
		svcErr    *ServiceError
		violation *policy.Violation
		unknown   *establishment.UnknownFieldError
		invalid   *establishment.InvalidValueError
	)
	switch {
	case errors.As(err, &svcErr):
		return svcErr
	case errors.As(err, &violation):
		return newServiceError(ErrPolicyViolation, "FIELD_LOCKED", violation.Error(), err)
	case errors.As(err, &unknown):
		return newServiceError(ErrValidation, "UNKNOWN_FIELD", unknown.Error(), err)
	case errors.As(err, &invalid):
		return newServiceError(ErrValidation, "INVALID_FIELD_VALUE", invalid.Error(), err)
	case errors.Is(err, draft.ErrDraftNotFound):
		return newServiceError(ErrNotFound, "DRAFT_NOT_FOUND", "draft not found", err)
	case errors.Is(err, draft.ErrChangeNotFound):
		return newServiceError(ErrNotFound, "CHANGE_NOT_FOUND", "change not found", err)
	case errors.Is(err, establishment.ErrNotFound):
		return newServiceError(ErrNotFound, "ESTABLISHMENT_NOT_FOUND", "establishment not found", err)
	case errors.Is(err, moderation.ErrNotFound):
		return newServiceError(ErrNotFound, "MODERATION_ITEM_NOT_FOUND", "moderation item not found", err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return newServiceError(ErrDependencyFailure, "REQUEST_CANCELLED", op+" was interrupted", err)
	default:
		return newServiceError(ErrDependencyFailure, "STORAGE_UNAVAILABLE", op+" failed", err)
	}
}

// errorCode returns the ServiceError code of err, or a generic one.
func errorCode(err error) string {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr.Code
	}
	return "INTERNAL"
}

// autoRejectReason reports whether a failed accept is a property of the change itself
// (locked field, unknown field or malformed value) and returns the rejection reason.
// Whole-draft approval strips the same cases.
func autoRejectReason(err error) (string, bool) {
	var (
		violation *policy.Violation
		unknown   *establishment.UnknownFieldError
		invalid   *establishment.InvalidValueError
	)
	switch {
	case errors.As(err, &violation):
		return violation.Error(), true
	case errors.As(err, &unknown):
		return unknown.Error(), true
	case errors.As(err, &invalid):
		return invalid.Error(), true
	}
	return "", false
}
