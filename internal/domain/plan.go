package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	customError "github.com/insoffice/installment-ledger/pkg/errors"
)

// Closed enum values; anything else is rejected at construction.
const (
	InsuranceTypeGeneral InsuranceType = "general"
	InsuranceTypeVehicle InsuranceType = "vehicle"

	FrequencyMonthly Frequency = "monthly"
	FrequencyYearly  Frequency = "yearly"

	PaymentMethodCash  PaymentMethod = "cash"
	PaymentMethodVisa  PaymentMethod = "visa"
	PaymentMethodCheck PaymentMethod = "check"
	PaymentMethodBank  PaymentMethod = "bank"

	PlanStatusOpen      PlanStatus = "open"
	PlanStatusSettled   PlanStatus = "settled"
	PlanStatusCancelled PlanStatus = "cancelled"
)

type InsuranceType string

func ParseInsuranceType(s string) (InsuranceType, error) {
	switch InsuranceType(s) {
	case InsuranceTypeGeneral, InsuranceTypeVehicle:
		return InsuranceType(s), nil
	}
	return "", fmt.Errorf("unknown insurance type %q", s)
}

type Frequency string

func ParseFrequency(s string) (Frequency, error) {
	switch Frequency(s) {
	case FrequencyMonthly, FrequencyYearly:
		return Frequency(s), nil
	}
	return "", fmt.Errorf("unknown frequency %q", s)
}

type PaymentMethod string

func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch PaymentMethod(s) {
	case PaymentMethodCash, PaymentMethodVisa, PaymentMethodCheck, PaymentMethodBank:
		return PaymentMethod(s), nil
	}
	return "", fmt.Errorf("unknown payment method %q", s)
}

// PlanStatus is derived from row state, never stored redundantly.
type PlanStatus string

// InsuranceItemRef identifies one policy covered by a plan's premium.
// Immutable once attached; the referenced records are owned elsewhere.
type InsuranceItemRef struct {
	InsuranceID       string        `json:"insuranceId"`
	InsuranceType     InsuranceType `json:"insuranceType"`
	InsuranceCompany  string        `json:"insuranceCompany"`
	InsuranceCategory string        `json:"insuranceCategory,omitempty"`
}

// InstallmentRow is one scheduled payment obligation. PaidDate and
// PaymentMethod are present exactly when IsPaid is true.
type InstallmentRow struct {
	DueDate       Date           `json:"dueDate"`
	Amount        Money          `json:"amount"`
	IsPaid        bool           `json:"isPaid"`
	PaidDate      *Date          `json:"paidDate,omitempty"`
	PaymentMethod *PaymentMethod `json:"paymentMethod,omitempty"`
	Notes         string         `json:"notes,omitempty"`
}

// InstallmentPlan is the aggregate root: one premium split into dated
// obligations, mutated only through its methods so the plan-level
// invariants hold after every successful call.
type InstallmentPlan struct {
	ID                   uuid.UUID          `json:"id" db:"id"`
	InsuredID            string             `json:"insuredId" db:"insured_id"`
	Items                []InsuranceItemRef `json:"insuranceItems" db:"-"`
	TotalAmount          Money              `json:"totalAmount" db:"total_amount"`
	StartDate            Date               `json:"startDate" db:"start_date"`
	NumberOfInstallments int                `json:"numberOfInstallments" db:"number_of_installments"`
	Frequency            Frequency          `json:"frequency" db:"frequency"`
	Rows                 []InstallmentRow   `json:"installments" db:"-"`
	Note                 string             `json:"note,omitempty" db:"note"`
	Cancelled            bool               `json:"cancelled,omitempty" db:"cancelled"`
	Version              int64              `json:"-" db:"version"`
	CreatedAt            time.Time          `json:"createdAt" db:"created_at"`
	UpdatedAt            time.Time          `json:"updatedAt" db:"updated_at"`
}

// NewPlan generates the schedule and returns a plan with all rows unpaid.
func NewPlan(insuredID string, items []InsuranceItemRef, total Money, start Date, count int, freq Frequency, note string) (*InstallmentPlan, error) {
	if len(items) == 0 {
		return nil, customError.WrapEmptyItems()
	}
	rows, err := GenerateSchedule(total, start, count, freq)
	if err != nil {
		return nil, err
	}
	return &InstallmentPlan{
		ID:                   uuid.New(),
		InsuredID:            insuredID,
		Items:                items,
		TotalAmount:          total,
		StartDate:            start,
		NumberOfInstallments: count,
		Frequency:            freq,
		Rows:                 rows,
		Note:                 note,
	}, nil
}

// Status derives the plan state: Cancelled overrides everything, Settled
// means every row paid, otherwise Open.
func (p *InstallmentPlan) Status() PlanStatus {
	if p.Cancelled {
		return PlanStatusCancelled
	}
	for i := range p.Rows {
		if !p.Rows[i].IsPaid {
			return PlanStatusOpen
		}
	}
	return PlanStatusSettled
}

// RecordPayment marks a single installment paid. All checks run before any
// field is touched, so a failed call leaves the plan unchanged.
func (p *InstallmentPlan) RecordPayment(rowIndex int, paidDate Date, method PaymentMethod, notes string) error {
	if err := p.mutable(); err != nil {
		return err
	}
	if rowIndex < 0 || rowIndex >= len(p.Rows) {
		return customError.WrapRowNotFound(rowIndex, len(p.Rows))
	}
	if p.Rows[rowIndex].IsPaid {
		return customError.WrapAlreadyPaid(rowIndex)
	}
	if paidDate.Before(p.StartDate) {
		return customError.WrapInvalidPaymentDate(paidDate.String(), p.StartDate.String())
	}

	row := &p.Rows[rowIndex]
	row.IsPaid = true
	row.PaidDate = &paidDate
	row.PaymentMethod = &method
	row.Notes = notes
	return nil
}

// ReversePayment returns a paid installment to its exact pre-payment state,
// notes included.
func (p *InstallmentPlan) ReversePayment(rowIndex int) error {
	if err := p.mutable(); err != nil {
		return err
	}
	if rowIndex < 0 || rowIndex >= len(p.Rows) {
		return customError.WrapRowNotFound(rowIndex, len(p.Rows))
	}
	if !p.Rows[rowIndex].IsPaid {
		return customError.WrapNotPaid(rowIndex)
	}

	row := &p.Rows[rowIndex]
	row.IsPaid = false
	row.PaidDate = nil
	row.PaymentMethod = nil
	row.Notes = ""
	return nil
}

// Reschedule regenerates the due dates from a new start date. Only permitted
// while no installment is paid, so a settled obligation is never moved
// retroactively.
func (p *InstallmentPlan) Reschedule(newStart Date) error {
	if err := p.mutable(); err != nil {
		return err
	}
	for i := range p.Rows {
		if p.Rows[i].IsPaid {
			return customError.WrapPartiallyPaid(p.ID.String())
		}
	}
	rows, err := GenerateSchedule(p.TotalAmount, newStart, p.NumberOfInstallments, p.Frequency)
	if err != nil {
		return err
	}
	p.StartDate = newStart
	p.Rows = rows
	return nil
}

// Cancel marks the plan cancelled. Idempotent; rows are kept for audit.
func (p *InstallmentPlan) Cancel() {
	p.Cancelled = true
}

func (p *InstallmentPlan) mutable() error {
	if p.Cancelled {
		return customError.WrapPlanClosed(p.ID.String())
	}
	return nil
}

// Validate checks the plan-level invariants. Loaded documents are validated
// before any mutation is applied on top of them.
func (p *InstallmentPlan) Validate() error {
	if len(p.Items) == 0 {
		return customError.WrapEmptyItems()
	}
	if len(p.Rows) != p.NumberOfInstallments {
		return customError.WrapInvalidSchedule(fmt.Sprintf("plan has %d rows, expected %d", len(p.Rows), p.NumberOfInstallments))
	}

	sum := FromMinorUnits(0, p.TotalAmount.Scale())
	for i := range p.Rows {
		row := &p.Rows[i]
		sum = sum.Add(row.Amount)

		expected := dueDateAt(p.StartDate, p.Frequency, i)
		if !row.DueDate.Equal(expected) {
			return customError.WrapInvalidSchedule(fmt.Sprintf("row %d due %s, expected %s", i, row.DueDate, expected))
		}
		if row.IsPaid {
			if row.PaidDate == nil || row.PaymentMethod == nil {
				return customError.WrapInvalidSchedule(fmt.Sprintf("paid row %d is missing paid date or method", i))
			}
		} else if row.PaidDate != nil || row.PaymentMethod != nil {
			return customError.WrapInvalidSchedule(fmt.Sprintf("unpaid row %d carries payment fields", i))
		}
	}
	if !sum.Equal(p.TotalAmount) {
		return customError.WrapInvalidSchedule(fmt.Sprintf("installments sum to %s, expected %s", sum, p.TotalAmount))
	}
	return nil
}
