package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/insoffice/installment-ledger/internal/config"
	"github.com/insoffice/installment-ledger/internal/domain"
	"github.com/insoffice/installment-ledger/pkg/response"
)

// PlanService is the slice of the service layer the HTTP handlers consume.
type PlanService interface {
	CreatePlan(ctx context.Context, request *domain.CreatePlanRequest) (*domain.InstallmentPlan, error)
	PreviewSchedule(request *domain.PreviewScheduleRequest) ([]domain.InstallmentRow, error)
	GetPlan(ctx context.Context, id uuid.UUID) (*domain.InstallmentPlan, error)
	RecordPayment(ctx context.Context, id uuid.UUID, rowIndex int, request *domain.RecordPaymentRequest) (*domain.InstallmentPlan, error)
	ReversePayment(ctx context.Context, id uuid.UUID, rowIndex int) (*domain.InstallmentPlan, error)
	Reschedule(ctx context.Context, id uuid.UUID, request *domain.RescheduleRequest) (*domain.InstallmentPlan, error)
	CancelPlan(ctx context.Context, id uuid.UUID) (*domain.InstallmentPlan, error)
	Outstanding(ctx context.Context, id uuid.UUID) (*domain.OutstandingResponse, error)
	Overdue(ctx context.Context, id uuid.UUID, asOf domain.Date) (*domain.OverdueResponse, error)
	NextDue(ctx context.Context, id uuid.UUID, asOf domain.Date) (*domain.NextDueResponse, error)
	ListByInsured(ctx context.Context, insuredID string) ([]*domain.InstallmentPlan, error)
}

type PlanHandler struct {
	service   PlanService
	validator *validator.Validate
	log       *zerolog.Logger
	dev       bool
}

func NewPlanHandler(service PlanService, cfg *config.Config, logger *zerolog.Logger) *PlanHandler {
	handlerLog := logger.With().Str("component", "PlanHandler").Logger()
	return &PlanHandler{
		service:   service,
		validator: validator.New(),
		log:       &handlerLog,
		dev:       cfg.IsDevelopment(),
	}
}

func (h *PlanHandler) CreatePlan(w http.ResponseWriter, r *http.Request) {
	var request domain.CreatePlanRequest
	if !h.decode(w, r, &request) {
		return
	}

	plan, err := h.service.CreatePlan(r.Context(), &request)
	if err != nil {
		response.BusinessError(w, r, h.log, err, h.dev)
		return
	}
	response.Created(w, domain.PlanResponse{Plan: plan, Status: plan.Status()})
}

func (h *PlanHandler) PreviewSchedule(w http.ResponseWriter, r *http.Request) {
	var request domain.PreviewScheduleRequest
	if !h.decode(w, r, &request) {
		return
	}

	rows, err := h.service.PreviewSchedule(&request)
	if err != nil {
		response.BusinessError(w, r, h.log, err, h.dev)
		return
	}
	response.Success(w, rows)
}

func (h *PlanHandler) GetPlan(w http.ResponseWriter, r *http.Request) {
	id, ok := h.planID(w, r)
	if !ok {
		return
	}

	plan, err := h.service.GetPlan(r.Context(), id)
	if err != nil {
		response.BusinessError(w, r, h.log, err, h.dev)
		return
	}
	response.Success(w, domain.PlanResponse{Plan: plan, Status: plan.Status()})
}

func (h *PlanHandler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := h.planID(w, r)
	if !ok {
		return
	}
	index, ok := h.rowIndex(w, r)
	if !ok {
		return
	}

	var request domain.RecordPaymentRequest
	if !h.decode(w, r, &request) {
		return
	}

	plan, err := h.service.RecordPayment(r.Context(), id, index, &request)
	if err != nil {
		response.BusinessError(w, r, h.log, err, h.dev)
		return
	}
	response.Success(w, domain.PlanResponse{Plan: plan, Status: plan.Status()})
}

func (h *PlanHandler) ReversePayment(w http.ResponseWriter, r *http.Request) {
	id, ok := h.planID(w, r)
	if !ok {
		return
	}
	index, ok := h.rowIndex(w, r)
	if !ok {
		return
	}

	plan, err := h.service.ReversePayment(r.Context(), id, index)
	if err != nil {
		response.BusinessError(w, r, h.log, err, h.dev)
		return
	}
	response.Success(w, domain.PlanResponse{Plan: plan, Status: plan.Status()})
}

func (h *PlanHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	id, ok := h.planID(w, r)
	if !ok {
		return
	}

	var request domain.RescheduleRequest
	if !h.decode(w, r, &request) {
		return
	}

	plan, err := h.service.Reschedule(r.Context(), id, &request)
	if err != nil {
		response.BusinessError(w, r, h.log, err, h.dev)
		return
	}
	response.Success(w, domain.PlanResponse{Plan: plan, Status: plan.Status()})
}

func (h *PlanHandler) CancelPlan(w http.ResponseWriter, r *http.Request) {
	id, ok := h.planID(w, r)
	if !ok {
		return
	}

	plan, err := h.service.CancelPlan(r.Context(), id)
	if err != nil {
		response.BusinessError(w, r, h.log, err, h.dev)
		return
	}
	response.Success(w, domain.PlanResponse{Plan: plan, Status: plan.Status()})
}

func (h *PlanHandler) GetOutstanding(w http.ResponseWriter, r *http.Request) {
	id, ok := h.planID(w, r)
	if !ok {
		return
	}

	result, err := h.service.Outstanding(r.Context(), id)
	if err != nil {
		response.BusinessError(w, r, h.log, err, h.dev)
		return
	}
	response.Success(w, result)
}

func (h *PlanHandler) GetOverdue(w http.ResponseWriter, r *http.Request) {
	id, ok := h.planID(w, r)
	if !ok {
		return
	}
	asOf, ok := h.asOfDate(w, r)
	if !ok {
		return
	}

	result, err := h.service.Overdue(r.Context(), id, asOf)
	if err != nil {
		response.BusinessError(w, r, h.log, err, h.dev)
		return
	}
	response.Success(w, result)
}

func (h *PlanHandler) GetNextDue(w http.ResponseWriter, r *http.Request) {
	id, ok := h.planID(w, r)
	if !ok {
		return
	}
	asOf, ok := h.asOfDate(w, r)
	if !ok {
		return
	}

	result, err := h.service.NextDue(r.Context(), id, asOf)
	if err != nil {
		response.BusinessError(w, r, h.log, err, h.dev)
		return
	}
	response.Success(w, result)
}

func (h *PlanHandler) ListByInsured(w http.ResponseWriter, r *http.Request) {
	insuredID := mux.Vars(r)["insuredId"]
	if insuredID == "" {
		response.BadRequest(w, "insuredId is required", nil)
		return
	}

	plans, err := h.service.ListByInsured(r.Context(), insuredID)
	if err != nil {
		response.BusinessError(w, r, h.log, err, h.dev)
		return
	}

	results := make([]domain.PlanResponse, 0, len(plans))
	for _, plan := range plans {
		results = append(results, domain.PlanResponse{Plan: plan, Status: plan.Status()})
	}
	response.Success(w, results)
}

func (h *PlanHandler) decode(w http.ResponseWriter, r *http.Request, request interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(request); err != nil {
		response.BadRequest(w, "invalid request body", err)
		return false
	}
	if err := h.validator.Struct(request); err != nil {
		response.BadRequest(w, "request validation failed", err)
		return false
	}
	return true
}

func (h *PlanHandler) planID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["planId"])
	if err != nil {
		response.BadRequest(w, "invalid plan ID", err)
		return uuid.Nil, false
	}
	return id, true
}

func (h *PlanHandler) rowIndex(w http.ResponseWriter, r *http.Request) (int, bool) {
	index, err := strconv.Atoi(mux.Vars(r)["index"])
	if err != nil {
		response.BadRequest(w, "invalid installment index", err)
		return 0, false
	}
	return index, true
}

// asOfDate reads the optional asOf query parameter, defaulting to today.
func (h *PlanHandler) asOfDate(w http.ResponseWriter, r *http.Request) (domain.Date, bool) {
	raw := r.URL.Query().Get("asOf")
	if raw == "" {
		return domain.Today(), true
	}
	asOf, err := domain.ParseDate(raw)
	if err != nil {
		response.BadRequest(w, "invalid asOf date", err)
		return domain.Date{}, false
	}
	return asOf, true
}
