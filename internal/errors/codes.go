// Package errors provides structured error handling for the haxor services.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// CodeNotFound indicates a referenced entity is absent.
	CodeNotFound Code = "NOT_FOUND"
	// CodeInvalidTransition indicates a task state machine guard violation.
	CodeInvalidTransition Code = "INVALID_TRANSITION"
	// CodeUnauthorized indicates a non-privileged identity attempting a
	// privileged mutation.
	CodeUnauthorized Code = "UNAUTHORIZED"
	// CodeNotConnected indicates a client-side action without an open transport.
	CodeNotConnected Code = "NOT_CONNECTED"
	// CodeDecodeError indicates a malformed inbound frame.
	CodeDecodeError Code = "DECODE_ERROR"
	// CodeJoinRequired indicates a frame sent before the connection identified
	// itself with a join.
	CodeJoinRequired Code = "JOIN_REQUIRED"

	// Validation errors
	CodeUsernameEmpty        Code = "USERNAME_EMPTY"
	CodeUserIDEmpty          Code = "USER_ID_EMPTY"
	CodeMessageEmpty         Code = "MESSAGE_EMPTY"
	CodeTaskTargetEmpty      Code = "TASK_TARGET_EMPTY"
	CodeTaskAlgorithmUnknown Code = "TASK_ALGORITHM_UNKNOWN"
	CodeTaskTypeInvalid      Code = "TASK_TYPE_INVALID"
	CodeTaskDefenseInvalid   Code = "TASK_DEFENSE_INVALID"
	CodeTaskSizeInvalid      Code = "TASK_SIZE_INVALID"
	CodeTaskEstimateInvalid  Code = "TASK_ESTIMATE_INVALID"
	CodeTaskOutcomeInvalid   Code = "TASK_OUTCOME_INVALID"
)

// HTTPStatus maps domain codes to HTTP status codes for the REST surface.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeInvalidTransition:
		return http.StatusConflict
	case CodeUnauthorized:
		return http.StatusForbidden
	case CodeDecodeError,
		CodeJoinRequired,
		CodeUsernameEmpty,
		CodeUserIDEmpty,
		CodeMessageEmpty,
		CodeTaskTargetEmpty,
		CodeTaskAlgorithmUnknown,
		CodeTaskTypeInvalid,
		CodeTaskDefenseInvalid,
		CodeTaskSizeInvalid,
		CodeTaskEstimateInvalid,
		CodeTaskOutcomeInvalid:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
