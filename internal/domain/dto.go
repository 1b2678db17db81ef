package domain

import (
	"github.com/shopspring/decimal"
)

// DTOs for requests and responses

type InsuranceItemRequest struct {
	InsuranceID       string `json:"insuranceId" validate:"required"`
	InsuranceType     string `json:"insuranceType" validate:"required,oneof=general vehicle"`
	InsuranceCompany  string `json:"insuranceCompany" validate:"required"`
	InsuranceCategory string `json:"insuranceCategory"`
}

type CreatePlanRequest struct {
	InsuredID            string                 `json:"insuredId" validate:"required"`
	Items                []InsuranceItemRequest `json:"insuranceItems" validate:"required,min=1,dive"`
	TotalAmount          decimal.Decimal        `json:"totalAmount" validate:"required"`
	StartDate            string                 `json:"startDate" validate:"required"`
	NumberOfInstallments int                    `json:"numberOfInstallments" validate:"required,min=1"`
	Frequency            string                 `json:"frequency" validate:"required,oneof=monthly yearly"`
	Note                 string                 `json:"note"`
}

type PreviewScheduleRequest struct {
	TotalAmount          decimal.Decimal `json:"totalAmount" validate:"required"`
	StartDate            string          `json:"startDate" validate:"required"`
	NumberOfInstallments int             `json:"numberOfInstallments" validate:"required,min=1"`
	Frequency            string          `json:"frequency" validate:"required,oneof=monthly yearly"`
}

type RecordPaymentRequest struct {
	PaidDate      string `json:"paidDate" validate:"required"`
	PaymentMethod string `json:"paymentMethod" validate:"required,oneof=cash visa check bank"`
	Notes         string `json:"notes"`
}

type RescheduleRequest struct {
	StartDate string `json:"startDate" validate:"required"`
}

type PlanResponse struct {
	Plan   *InstallmentPlan `json:"plan"`
	Status PlanStatus       `json:"status"`
}

type OutstandingResponse struct {
	PlanID      string `json:"planId"`
	Outstanding Money  `json:"outstanding"`
	Settled     bool   `json:"settled"`
}

type OverdueResponse struct {
	PlanID  string           `json:"planId"`
	AsOf    Date             `json:"asOf"`
	Overdue []InstallmentRow `json:"overdue"`
}

type NextDueResponse struct {
	PlanID   string          `json:"planId"`
	AsOf     Date            `json:"asOf"`
	RowIndex *int            `json:"rowIndex,omitempty"`
	Row      *InstallmentRow `json:"row,omitempty"`
}
