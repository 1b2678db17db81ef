package domain

import (
	"fmt"

	customError "github.com/insoffice/installment-ledger/pkg/errors"
)

// GenerateSchedule splits a total premium into count dated obligations.
// Amounts come from Money.SplitEvenly in due-date order, so the earliest
// installments carry any extra minor units and the rows always sum exactly
// to the total. Pure and deterministic; safe for previews before a plan is
// persisted.
func GenerateSchedule(total Money, start Date, count int, freq Frequency) ([]InstallmentRow, error) {
	if count < 1 {
		return nil, customError.WrapInvalidSchedule(fmt.Sprintf("installment count must be at least 1, got %d", count))
	}
	if !total.IsPositive() {
		return nil, customError.WrapInvalidSchedule(fmt.Sprintf("total amount must be positive, got %s", total))
	}
	if _, err := ParseFrequency(string(freq)); err != nil {
		return nil, customError.WrapInvalidSchedule(err.Error())
	}

	amounts, err := total.SplitEvenly(count)
	if err != nil {
		return nil, err
	}

	rows := make([]InstallmentRow, count)
	for i := range rows {
		rows[i] = InstallmentRow{
			DueDate: dueDateAt(start, freq, i),
			Amount:  amounts[i],
		}
	}
	return rows, nil
}

// dueDateAt computes the i-th due date from the original start date, so a
// clamped month never shortens the following ones: Jan-31 monthly gives
// Feb-29 (leap) then Mar-31, not Mar-29.
func dueDateAt(start Date, freq Frequency, i int) Date {
	if freq == FrequencyYearly {
		return start.AddYears(i)
	}
	return start.AddMonths(i)
}
