// Package errors provides structured domain errors and their transport mappings.
package errors

import (
	"net/http"

	"google.golang.org/grpc/codes"
)

// Code is a machine-readable error code.
type Code string

// Kind is the coarse error class every Code belongs to. Callers branch on
// Kind; Code only refines the explanation.
type Kind string

const (
	// KindNotFound means the target aggregate or a referenced entity is absent or unreadable.
	KindNotFound Kind = "NotFound"
	// KindNotAuthorized means the acting identity lacks a required intent.
	KindNotAuthorized Kind = "NotAuthorized"
	// KindInvalidInput means the command parameters are malformed.
	KindInvalidInput Kind = "InvalidInput"
	// KindUnexpected means a collaborator failed in an unclassified way.
	KindUnexpected Kind = "Unexpected"
)

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Lookup errors
	CodeNotFound         Code = "NOT_FOUND"
	CodeIdentityNotFound Code = "IDENTITY_NOT_FOUND"

	// Authorization errors
	CodeNotAuthorized Code = "NOT_AUTHORIZED"

	// Validation errors
	CodeInvalidInput         Code = "INVALID_INPUT"
	CodeMoneyAmountInvalid   Code = "MONEY_AMOUNT_INVALID"
	CodeCurrencyCodeInvalid  Code = "CURRENCY_CODE_INVALID"
	CodeOrganizationEmpty    Code = "ORGANIZATION_EMPTY"
	CodeIntentUnknown        Code = "INTENT_UNKNOWN"
	CodeDisplayNameEmpty     Code = "DISPLAY_NAME_EMPTY"
	CodeAggregateClosed      Code = "AGGREGATE_CLOSED"
	CodeAlreadyExists        Code = "ALREADY_EXISTS"
	CodeOrderingInvalid      Code = "ORDERING_INVALID"
	CodeNotificationNotOwned Code = "NOTIFICATION_NOT_OWNED"

	// Collaborator errors
	CodeUnexpected        Code = "UNEXPECTED"
	CodeLedgerUnavailable Code = "LEDGER_UNAVAILABLE"
	CodePartialAppend     Code = "PARTIAL_APPEND"
)

// Kind returns the error class for the code.
func (c Code) Kind() Kind {
	switch c {
	case CodeNotFound, CodeIdentityNotFound:
		return KindNotFound
	case CodeNotAuthorized, CodeNotificationNotOwned:
		return KindNotAuthorized
	case CodeInvalidInput,
		CodeMoneyAmountInvalid,
		CodeCurrencyCodeInvalid,
		CodeOrganizationEmpty,
		CodeIntentUnknown,
		CodeDisplayNameEmpty,
		CodeAggregateClosed,
		CodeAlreadyExists,
		CodeOrderingInvalid:
		return KindInvalidInput
	default:
		return KindUnexpected
	}
}

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	case CodeAlreadyExists:
		return codes.AlreadyExists
	case CodeAggregateClosed:
		return codes.FailedPrecondition
	}
	switch c.Kind() {
	case KindNotFound:
		return codes.NotFound
	case KindNotAuthorized:
		return codes.PermissionDenied
	case KindInvalidInput:
		return codes.InvalidArgument
	default:
		return codes.Internal
	}
}

// HTTPStatus maps domain codes to HTTP status codes.
func (c Code) HTTPStatus() int {
	if c == CodeAlreadyExists {
		return http.StatusConflict
	}
	switch c.Kind() {
	case KindNotFound:
		return http.StatusNotFound
	case KindNotAuthorized:
		return http.StatusForbidden
	case KindInvalidInput:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
