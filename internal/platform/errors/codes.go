// Package errors provides structured error handling for the engine.
package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Command pipeline errors
	CodeForbidden             Code = "FORBIDDEN"
	CodeConcurrencyConflict   Code = "CONCURRENCY_CONFLICT"
	CodeNotFound              Code = "NOT_FOUND"
	CodeTransposeUnsupported  Code = "TRANSPOSE_UNSUPPORTED"
	CodeCascadeDepthExceeded  Code = "CASCADE_DEPTH_EXCEEDED"
	CodeCommandTypeUnknown    Code = "COMMAND_TYPE_UNKNOWN"
	CodeCommandInvalid        Code = "COMMAND_INVALID"
	CodeEventTypeUnknown      Code = "EVENT_TYPE_UNKNOWN"
	CodeEventInvalid          Code = "EVENT_INVALID"
	CodeRegistryMisconfigured Code = "REGISTRY_MISCONFIGURED"

	// Identity errors
	CodeTokenInvalid Code = "TOKEN_INVALID"
	CodeTokenExpired Code = "TOKEN_EXPIRED"

	// Storage errors
	CodeStorageFailure Code = "STORAGE_FAILURE"
)

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	case CodeForbidden:
		return codes.PermissionDenied
	case CodeConcurrencyConflict:
		return codes.Aborted
	case CodeNotFound:
		return codes.NotFound
	case CodeCommandTypeUnknown, CodeCommandInvalid, CodeEventTypeUnknown, CodeEventInvalid:
		return codes.InvalidArgument
	case CodeTransposeUnsupported, CodeCascadeDepthExceeded, CodeRegistryMisconfigured:
		return codes.FailedPrecondition
	case CodeTokenInvalid, CodeTokenExpired:
		return codes.Unauthenticated
	case CodeStorageFailure:
		return codes.Unavailable
	default:
		return codes.Internal
	}
}
