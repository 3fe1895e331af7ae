package errors

import (
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Domain is the error domain attached to gRPC error details.
const Domain = "github.com/openkfw/trubudget"

// DefaultLocale is the locale reported with localized error messages.
const DefaultLocale = "en-US"

// Error is the domain error type with structured metadata.
type Error struct {
	Code     Code              // Machine-readable error code
	Message  string            // Human-readable explanation
	Metadata map[string]string // Additional context for clients and logs
	Cause    error             // Wrapped underlying error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// Kind returns the error class of the code.
func (e *Error) Kind() Kind {
	return e.Code.Kind()
}

// New creates a simple domain error with a code and message.
func New(code Code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// WithMetadata creates a domain error with metadata.
func WithMetadata(code Code, message string, metadata map[string]string) *Error {
	return &Error{
		Code:     code,
		Message:  message,
		Metadata: metadata,
	}
}

// Wrap creates a domain error that wraps an underlying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NotFound reports that an entity of the given kind could not be read.
func NotFound(entity, id string) *Error {
	return WithMetadata(
		CodeNotFound,
		fmt.Sprintf("%s %q not found", entity, id),
		map[string]string{"Entity": entity, "ID": id},
	)
}

// NotAuthorized reports that userID holds none of the listed intents.
func NotAuthorized(userID string, intents ...string) *Error {
	joined := strings.Join(intents, ", ")
	return WithMetadata(
		CodeNotAuthorized,
		fmt.Sprintf("user %q is not authorized to perform %s", userID, joined),
		map[string]string{"UserID": userID, "Intents": joined},
	)
}

// InvalidInput reports a malformed command parameter.
func InvalidInput(code Code, message string) *Error {
	if code.Kind() != KindInvalidInput {
		code = CodeInvalidInput
	}
	return New(code, message)
}

// Unexpected wraps a collaborator failure that has no better classification.
func Unexpected(message string, cause error) *Error {
	return Wrap(CodeUnexpected, message, cause)
}

// GetCode extracts the error code from any error.
// Returns CodeUnknown if the error is not a domain error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// KindOf returns the error class of err. Non-domain errors are Unexpected.
func KindOf(err error) Kind {
	return GetCode(err).Kind()
}

// IsCode checks if the error has the specified code.
func IsCode(err error, code Code) bool {
	return GetCode(err) == code
}

// IsKind checks if the error belongs to the specified class.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// ToGRPCStatus converts the error to a gRPC status with errdetails.
func (e *Error) ToGRPCStatus() error {
	grpcCode := e.Code.GRPCCode()
	st := status.New(grpcCode, e.Message)

	st, err := st.WithDetails(
		&errdetails.ErrorInfo{
			Reason:   string(e.Code),
			Domain:   Domain,
			Metadata: e.Metadata,
		},
		&errdetails.LocalizedMessage{
			Locale:  DefaultLocale,
			Message: e.Message,
		},
	)
	if err != nil {
		return status.New(grpcCode, e.Message).Err()
	}
	return st.Err()
}

// HandleError converts any error into a gRPC status for client responses.
// Errors outside the domain taxonomy are reported as Internal without detail.
func HandleError(err error) error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.ToGRPCStatus()
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	return status.Error(codes.Internal, "an unexpected error occurred")
}
