package voucher

import (
	"errors"
	"fmt"

	acctshared "github.com/keystone-erp/keystone-erp/internal/accounting/shared"
	"github.com/keystone-erp/keystone-erp/internal/inventory"
	"github.com/keystone-erp/keystone-erp/internal/shared"
	"github.com/keystone-erp/keystone-erp/internal/workflow"
)

// Code is the stable machine-readable failure code stored on the process
// record and returned to API clients.
type Code string

const (
	CodeValidation        Code = "VCH-400"
	CodePermission        Code = "VCH-403"
	CodeConflict          Code = "VCH-409"
	CodeStaleVersion      Code = "VCH-412"
	CodeInternal          Code = "VCH-500"
	CodeLedgerExists      Code = "GL-409"
	CodeInvalidQuantity   Code = "INV-001"
	CodeInsufficientStock Code = "INV-002"
	CodeAccountConfig     Code = "INV-003"
	CodeMissingUoM        Code = "INV-011"
)

// Error is the orchestrator's failure envelope: a stable code plus the
// underlying cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("voucher: %s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("voucher: %s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds an Error with a formatted message and no cause.
func NewError(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WrapError classifies an underlying failure into a coded Error. Already-coded
// errors pass through unchanged.
func WrapError(err error) *Error {
	var coded *Error
	if errors.As(err, &coded) {
		return coded
	}
	return &Error{Code: classify(err), Message: err.Error(), Err: err}
}

func classify(err error) Code {
	switch {
	case errors.Is(err, shared.ErrCrossTenant),
		errors.Is(err, shared.ErrPermissionDenied),
		errors.Is(err, workflow.ErrRoleNotAllowed):
		return CodePermission
	case errors.Is(err, acctshared.ErrVersionConflict):
		return CodeStaleVersion
	case errors.Is(err, acctshared.ErrLedgerExists):
		return CodeLedgerExists
	case errors.Is(err, acctshared.ErrAlreadyPosted):
		return CodeConflict
	case errors.Is(err, inventory.ErrInvalidQuantity):
		return CodeInvalidQuantity
	case errors.Is(err, inventory.ErrInsufficientStock):
		return CodeInsufficientStock
	case errors.Is(err, inventory.ErrAccountNotConfigured):
		return CodeAccountConfig
	case errors.Is(err, inventory.ErrMissingUnitOfMeasure):
		return CodeMissingUoM
	case errors.Is(err, acctshared.ErrUnbalanced),
		errors.Is(err, acctshared.ErrTooFewLines),
		errors.Is(err, acctshared.ErrSingleSided),
		errors.Is(err, acctshared.ErrInvalidPeriod),
		errors.Is(err, acctshared.ErrPeriodLocked),
		errors.Is(err, acctshared.ErrDateOutOfRange),
		errors.Is(err, acctshared.ErrApprovalRequired),
		errors.Is(err, acctshared.ErrApprovalMissing),
		errors.Is(err, inventory.ErrProductNotFound),
		errors.Is(err, workflow.ErrWorkflowNotConfigured),
		errors.Is(err, workflow.ErrNoSteps):
		return CodeValidation
	default:
		return CodeInternal
	}
}
