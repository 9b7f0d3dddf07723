package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Attempts ──────────────────────────────────────────────────────
	ErrAttemptNotFound  ErrCode = "ATTEMPT_NOT_FOUND"
	ErrAttemptFinished  ErrCode = "ATTEMPT_FINISHED"
	ErrOutOfRange       ErrCode = "OUT_OF_RANGE"
	ErrPaperUnavailable ErrCode = "PAPER_UNAVAILABLE"

	// ─── Submission ────────────────────────────────────────────────────
	ErrSubmitFailed   ErrCode = "SUBMIT_FAILED"
	ErrSubmitInFlight ErrCode = "SUBMIT_IN_FLIGHT"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "Invalid ID format."
	case ErrInvalidPayload:
		return "Invalid request payload."

	// ─── Attempts ──────────────────────────────────────────────────────
	case ErrAttemptNotFound:
		return "No live attempt for this contest and student."
	case ErrAttemptFinished:
		return "This attempt has already been submitted."
	case ErrOutOfRange:
		return "Section or question is out of range."
	case ErrPaperUnavailable:
		return "The question paper could not be fetched."

	// ─── Submission ────────────────────────────────────────────────────
	case ErrSubmitFailed:
		return "Submission failed. The attempt remains open."
	case ErrSubmitInFlight:
		return "A submission is already in progress."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "An internal server error occurred."
	default:
		return "An unexpected error occurred."
	}
}
