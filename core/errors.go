package core

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	IntakeErrorBadInput           = "INTAKE_BAD_INPUT"
	IntakeErrorSignatureInvalid   = "INTAKE_SIGNATURE_INVALID"
	IntakeErrorTimestampStale     = "INTAKE_TIMESTAMP_STALE"
	IntakeErrorMalformedPayload   = "INTAKE_MALFORMED_PAYLOAD"
	IntakeErrorUnknownEntity      = "INTAKE_UNKNOWN_ENTITY"
	IntakeErrorTransitionRejected = "INTAKE_TRANSITION_REJECTED"
	IntakeErrorTransient          = "INTAKE_TRANSIENT"
	IntakeErrorDeadLetter         = "INTAKE_DEAD_LETTER"
	IntakeErrorRateLimited        = "INTAKE_RATE_LIMITED"
	IntakeErrorNotFound           = "INTAKE_NOT_FOUND"
	IntakeErrorInternal           = "INTAKE_INTERNAL_ERROR"
)

func NewSignatureInvalidError(message string, metadata map[string]any) error {
	return newIntakeError(message, goerrors.CategoryAuth, http.StatusUnauthorized, IntakeErrorSignatureInvalid, metadata)
}

func NewTimestampStaleError(message string, metadata map[string]any) error {
	return newIntakeError(message, goerrors.CategoryAuth, http.StatusUnauthorized, IntakeErrorTimestampStale, metadata)
}

func NewMalformedPayloadError(message string, metadata map[string]any) error {
	return newIntakeError(message, goerrors.CategoryBadInput, http.StatusBadRequest, IntakeErrorMalformedPayload, metadata)
}

func NewTransitionRejectedError(message string, metadata map[string]any) error {
	return newIntakeError(message, goerrors.CategoryConflict, http.StatusUnprocessableEntity, IntakeErrorTransitionRejected, metadata)
}

func NewNotFoundError(message string, metadata map[string]any) error {
	return newIntakeError(message, goerrors.CategoryNotFound, http.StatusNotFound, IntakeErrorNotFound, metadata)
}

// IsNotFound reports whether err is a not-found error from any layer,
// including bare sql.ErrNoRows surfaced by a store.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr.Category == goerrors.CategoryNotFound
	}
	return strings.Contains(strings.ToLower(err.Error()), "no rows in result set")
}

func NewTransientError(source error, message string, metadata map[string]any) error {
	if source == nil {
		return newIntakeError(message, goerrors.CategoryOperation, http.StatusInternalServerError, IntakeErrorTransient, metadata)
	}
	err := goerrors.Wrap(source, goerrors.CategoryOperation, message).
		WithCode(http.StatusInternalServerError).
		WithTextCode(IntakeErrorTransient)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func newIntakeError(
	message string,
	category goerrors.Category,
	code int,
	textCode string,
	metadata map[string]any,
) error {
	err := goerrors.New(message, category).
		WithCode(code).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

// IsTextCode reports whether err carries the given intake text code.
func IsTextCode(err error, textCode string) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return richErr.TextCode == textCode
}

// IntakeErrorMapper normalizes any error into the intake taxonomy envelope.
// Transport middleware calls this once per entrypoint; handlers never map
// their own errors.
func IntakeErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureIntakeErrorEnvelope(richErr)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "signature"):
		return ensureIntakeErrorEnvelope(
			goerrors.New(err.Error(), goerrors.CategoryAuth).WithTextCode(IntakeErrorSignatureInvalid),
		)
	case strings.Contains(msg, "timestamp"):
		return ensureIntakeErrorEnvelope(
			goerrors.New(err.Error(), goerrors.CategoryAuth).WithTextCode(IntakeErrorTimestampStale),
		)
	case strings.Contains(msg, "transition"):
		return ensureIntakeErrorEnvelope(
			goerrors.New(err.Error(), goerrors.CategoryConflict).WithTextCode(IntakeErrorTransitionRejected),
		)
	case strings.Contains(msg, "not found"):
		return ensureIntakeErrorEnvelope(
			goerrors.New(err.Error(), goerrors.CategoryNotFound).WithTextCode(IntakeErrorNotFound),
		)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "malformed"):
		return ensureIntakeErrorEnvelope(
			goerrors.New(err.Error(), goerrors.CategoryBadInput).WithTextCode(IntakeErrorBadInput),
		)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureIntakeErrorEnvelope(mapped)
}

func ensureIntakeErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = intakeHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultIntakeTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultIntakeTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return IntakeErrorBadInput
	case goerrors.CategoryNotFound:
		return IntakeErrorNotFound
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return IntakeErrorSignatureInvalid
	case goerrors.CategoryConflict:
		return IntakeErrorTransitionRejected
	case goerrors.CategoryRateLimit:
		return IntakeErrorRateLimited
	case goerrors.CategoryOperation:
		return IntakeErrorTransient
	default:
		return IntakeErrorInternal
	}
}

func intakeHTTPStatus(category goerrors.Category) int {
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
		return http.StatusUnprocessableEntity
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
