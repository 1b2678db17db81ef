package errors

import (
	"errors"
	"fmt"
)

// Domain errors
var (
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrInvalidSchedule        = errors.New("invalid schedule parameters")
	ErrEmptyItems             = errors.New("plan must cover at least one insurance item")
	ErrInvalidPaymentDate     = errors.New("payment date precedes plan start date")
	ErrInvalidPaymentMethod   = errors.New("unknown payment method")
	ErrInvalidInsuranceType   = errors.New("unknown insurance type")
	ErrAlreadyPaid            = errors.New("installment is already paid")
	ErrNotPaid                = errors.New("installment is not paid")
	ErrPartiallyPaid          = errors.New("plan has paid installments")
	ErrPlanClosed             = errors.New("plan is cancelled")
	ErrRowNotFound            = errors.New("installment not found")
	ErrPlanNotFound           = errors.New("plan not found")
	ErrConcurrentModification = errors.New("plan was modified concurrently")
	ErrStorageUnavailable     = errors.New("storage unavailable")
)

// Error codes
const (
	ErrCodeInvalidAmount          = "INVALID_AMOUNT"
	ErrCodeInvalidSchedule        = "INVALID_SCHEDULE"
	ErrCodeEmptyItems             = "EMPTY_ITEMS"
	ErrCodeInvalidPaymentDate     = "INVALID_PAYMENT_DATE"
	ErrCodeInvalidPaymentMethod   = "INVALID_PAYMENT_METHOD"
	ErrCodeInvalidInsuranceType   = "INVALID_INSURANCE_TYPE"
	ErrCodeAlreadyPaid            = "ALREADY_PAID"
	ErrCodeNotPaid                = "NOT_PAID"
	ErrCodePartiallyPaid          = "PARTIALLY_PAID"
	ErrCodePlanClosed             = "PLAN_CLOSED"
	ErrCodeRowNotFound            = "ROW_NOT_FOUND"
	ErrCodePlanNotFound           = "PLAN_NOT_FOUND"
	ErrCodeConcurrentModification = "CONCURRENT_MODIFICATION"
	ErrCodeStorageUnavailable     = "STORAGE_UNAVAILABLE"
)

// BusinessError represents a business logic error
type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

// NewBusinessError creates a new business error
func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// CodeOf extracts the error code, or empty string for non-business errors.
func CodeOf(err error) string {
	var be *BusinessError
	if errors.As(err, &be) {
		return be.Code
	}
	return ""
}

// IsValidation reports whether the error means the caller supplied bad input.
func IsValidation(err error) bool {
	switch CodeOf(err) {
	case ErrCodeInvalidAmount, ErrCodeInvalidSchedule, ErrCodeEmptyItems,
		ErrCodeInvalidPaymentDate, ErrCodeInvalidPaymentMethod, ErrCodeInvalidInsuranceType:
		return true
	}
	return false
}

// IsConflict reports whether the operation clashed with current plan state.
func IsConflict(err error) bool {
	switch CodeOf(err) {
	case ErrCodeAlreadyPaid, ErrCodeNotPaid, ErrCodePartiallyPaid, ErrCodePlanClosed, ErrCodeConcurrentModification:
		return true
	}
	return false
}

// IsRetryable reports whether the caller may retry after reloading or backing off.
func IsRetryable(err error) bool {
	switch CodeOf(err) {
	case ErrCodeConcurrentModification, ErrCodeStorageUnavailable:
		return true
	}
	return false
}

// Wrap common errors with business context

func WrapInvalidAmount(detail string) *BusinessError {
	return NewBusinessError(
		ErrCodeInvalidAmount,
		detail,
		ErrInvalidAmount,
	)
}

func WrapInvalidSchedule(detail string) *BusinessError {
	return NewBusinessError(
		ErrCodeInvalidSchedule,
		detail,
		ErrInvalidSchedule,
	)
}

func WrapEmptyItems() *BusinessError {
	return NewBusinessError(
		ErrCodeEmptyItems,
		"at least one insurance item is required",
		ErrEmptyItems,
	)
}

func WrapInvalidPaymentDate(paidDate, startDate string) *BusinessError {
	return NewBusinessError(
		ErrCodeInvalidPaymentDate,
		fmt.Sprintf("payment date %s is before plan start date %s", paidDate, startDate),
		ErrInvalidPaymentDate,
	)
}

func WrapInvalidPaymentMethod(detail string) *BusinessError {
	return NewBusinessError(
		ErrCodeInvalidPaymentMethod,
		detail,
		ErrInvalidPaymentMethod,
	)
}

func WrapInvalidInsuranceType(detail string) *BusinessError {
	return NewBusinessError(
		ErrCodeInvalidInsuranceType,
		detail,
		ErrInvalidInsuranceType,
	)
}

func WrapAlreadyPaid(rowIndex int) *BusinessError {
	return NewBusinessError(
		ErrCodeAlreadyPaid,
		fmt.Sprintf("installment %d is already paid", rowIndex),
		ErrAlreadyPaid,
	)
}

func WrapNotPaid(rowIndex int) *BusinessError {
	return NewBusinessError(
		ErrCodeNotPaid,
		fmt.Sprintf("installment %d has no payment to reverse", rowIndex),
		ErrNotPaid,
	)
}

func WrapPartiallyPaid(planID string) *BusinessError {
	return NewBusinessError(
		ErrCodePartiallyPaid,
		fmt.Sprintf("plan %s has paid installments and cannot be rescheduled", planID),
		ErrPartiallyPaid,
	)
}

func WrapPlanClosed(planID string) *BusinessError {
	return NewBusinessError(
		ErrCodePlanClosed,
		fmt.Sprintf("plan %s is cancelled", planID),
		ErrPlanClosed,
	)
}

func WrapRowNotFound(rowIndex, rows int) *BusinessError {
	return NewBusinessError(
		ErrCodeRowNotFound,
		fmt.Sprintf("installment index %d out of range (plan has %d installments)", rowIndex, rows),
		ErrRowNotFound,
	)
}

func WrapPlanNotFound(planID string) *BusinessError {
	return NewBusinessError(
		ErrCodePlanNotFound,
		fmt.Sprintf("plan with ID %s not found", planID),
		ErrPlanNotFound,
	)
}

func WrapConcurrentModification(planID string) *BusinessError {
	return NewBusinessError(
		ErrCodeConcurrentModification,
		fmt.Sprintf("plan %s was modified by another writer, reload and retry", planID),
		ErrConcurrentModification,
	)
}

func WrapStorageUnavailable(err error) *BusinessError {
	return NewBusinessError(
		ErrCodeStorageUnavailable,
		"storage operation failed",
		err,
	)
}
