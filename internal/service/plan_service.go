package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/insoffice/installment-ledger/internal/config"
	"github.com/insoffice/installment-ledger/internal/domain"
	"github.com/insoffice/installment-ledger/internal/repository"
	customError "github.com/insoffice/installment-ledger/pkg/errors"
)

// PlanService orchestrates plan mutations: load the aggregate, apply one
// operation, save it back under an optimistic version check. A stale write
// fails with ConcurrentModification so two racing writers can never both
// succeed against the same snapshot.
type PlanService struct {
	PlanRepo repository.PlanRepository
	redis    *redis.Client
	config   *config.Config
	log      *zerolog.Logger
}

func NewPlanService(
	planRepo repository.PlanRepository,
	redisClient *redis.Client,
	cfg *config.Config,
	logger *zerolog.Logger,
) *PlanService {
	svcLog := logger.With().Str("component", "PlanService").Logger()
	return &PlanService{
		PlanRepo: planRepo,
		redis:    redisClient,
		config:   cfg,
		log:      &svcLog,
	}
}

// cachedPlan carries the version alongside the document, which the plan's
// own JSON deliberately omits.
type cachedPlan struct {
	Plan    *domain.InstallmentPlan `json:"plan"`
	Version int64                   `json:"version"`
}

func planCacheKey(id uuid.UUID) string {
	return fmt.Sprintf("plan:%s", id)
}

// CreatePlan generates the schedule and persists the new plan.
func (s *PlanService) CreatePlan(ctx context.Context, request *domain.CreatePlanRequest) (*domain.InstallmentPlan, error) {
	total, err := domain.FromMajorUnits(request.TotalAmount, int32(s.config.Business.CurrencyScale))
	if err != nil {
		return nil, err
	}
	start, err := domain.ParseDate(request.StartDate)
	if err != nil {
		return nil, customError.WrapInvalidSchedule(err.Error())
	}
	freq, err := domain.ParseFrequency(request.Frequency)
	if err != nil {
		return nil, customError.WrapInvalidSchedule(err.Error())
	}

	items := make([]domain.InsuranceItemRef, 0, len(request.Items))
	for _, item := range request.Items {
		insType, err := domain.ParseInsuranceType(item.InsuranceType)
		if err != nil {
			return nil, customError.WrapInvalidInsuranceType(err.Error())
		}
		items = append(items, domain.InsuranceItemRef{
			InsuranceID:       item.InsuranceID,
			InsuranceType:     insType,
			InsuranceCompany:  item.InsuranceCompany,
			InsuranceCategory: item.InsuranceCategory,
		})
	}

	plan, err := domain.NewPlan(request.InsuredID, items, total, start, request.NumberOfInstallments, freq, request.Note)
	if err != nil {
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.PlanRepo.Create(ctx, plan); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("plan_id", plan.ID.String()).
		Str("insured_id", plan.InsuredID).
		Str("total", plan.TotalAmount.String()).
		Int("installments", plan.NumberOfInstallments).
		Msg("plan created")

	return plan, nil
}

// PreviewSchedule runs the generator without persisting anything.
func (s *PlanService) PreviewSchedule(request *domain.PreviewScheduleRequest) ([]domain.InstallmentRow, error) {
	total, err := domain.FromMajorUnits(request.TotalAmount, int32(s.config.Business.CurrencyScale))
	if err != nil {
		return nil, err
	}
	start, err := domain.ParseDate(request.StartDate)
	if err != nil {
		return nil, customError.WrapInvalidSchedule(err.Error())
	}
	freq, err := domain.ParseFrequency(request.Frequency)
	if err != nil {
		return nil, customError.WrapInvalidSchedule(err.Error())
	}
	return domain.GenerateSchedule(total, start, request.NumberOfInstallments, freq)
}

// GetPlan loads a plan, serving from the Redis cache when possible.
func (s *PlanService) GetPlan(ctx context.Context, id uuid.UUID) (*domain.InstallmentPlan, error) {
	if cached, err := s.cacheGet(ctx, id); err == nil {
		var entry cachedPlan
		if jsonErr := json.Unmarshal([]byte(cached), &entry); jsonErr == nil && entry.Plan != nil {
			entry.Plan.Version = entry.Version
			return entry.Plan, nil
		}
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	plan, err := s.PlanRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cachePlan(ctx, plan)
	return plan, nil
}

// RecordPayment marks one installment paid.
func (s *PlanService) RecordPayment(ctx context.Context, id uuid.UUID, rowIndex int, request *domain.RecordPaymentRequest) (*domain.InstallmentPlan, error) {
	paidDate, err := domain.ParseDate(request.PaidDate)
	if err != nil {
		return nil, customError.NewBusinessError(customError.ErrCodeInvalidPaymentDate, err.Error(), customError.ErrInvalidPaymentDate)
	}
	method, err := domain.ParsePaymentMethod(request.PaymentMethod)
	if err != nil {
		return nil, customError.WrapInvalidPaymentMethod(err.Error())
	}

	return s.mutate(ctx, id, "record payment", func(plan *domain.InstallmentPlan) error {
		return plan.RecordPayment(rowIndex, paidDate, method, request.Notes)
	})
}

// ReversePayment returns a paid installment to unpaid.
func (s *PlanService) ReversePayment(ctx context.Context, id uuid.UUID, rowIndex int) (*domain.InstallmentPlan, error) {
	return s.mutate(ctx, id, "reverse payment", func(plan *domain.InstallmentPlan) error {
		return plan.ReversePayment(rowIndex)
	})
}

// Reschedule moves the whole schedule to a new start date.
func (s *PlanService) Reschedule(ctx context.Context, id uuid.UUID, request *domain.RescheduleRequest) (*domain.InstallmentPlan, error) {
	newStart, err := domain.ParseDate(request.StartDate)
	if err != nil {
		return nil, customError.WrapInvalidSchedule(err.Error())
	}
	return s.mutate(ctx, id, "reschedule", func(plan *domain.InstallmentPlan) error {
		return plan.Reschedule(newStart)
	})
}

// CancelPlan marks the plan cancelled; rows stay for audit.
func (s *PlanService) CancelPlan(ctx context.Context, id uuid.UUID) (*domain.InstallmentPlan, error) {
	return s.mutate(ctx, id, "cancel", func(plan *domain.InstallmentPlan) error {
		plan.Cancel()
		return nil
	})
}

// Outstanding returns the unpaid balance of a plan.
func (s *PlanService) Outstanding(ctx context.Context, id uuid.UUID) (*domain.OutstandingResponse, error) {
	plan, err := s.GetPlan(ctx, id)
	if err != nil {
		return nil, err
	}
	return &domain.OutstandingResponse{
		PlanID:      plan.ID.String(),
		Outstanding: domain.OutstandingBalance(plan),
		Settled:     domain.IsSettled(plan),
	}, nil
}

// Overdue returns the unpaid installments due before asOf.
func (s *PlanService) Overdue(ctx context.Context, id uuid.UUID, asOf domain.Date) (*domain.OverdueResponse, error) {
	plan, err := s.GetPlan(ctx, id)
	if err != nil {
		return nil, err
	}
	return &domain.OverdueResponse{
		PlanID:  plan.ID.String(),
		AsOf:    asOf,
		Overdue: domain.OverdueRows(plan, asOf),
	}, nil
}

// NextDue returns the earliest unpaid installment due on or after asOf.
func (s *PlanService) NextDue(ctx context.Context, id uuid.UUID, asOf domain.Date) (*domain.NextDueResponse, error) {
	plan, err := s.GetPlan(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := &domain.NextDueResponse{
		PlanID: plan.ID.String(),
		AsOf:   asOf,
	}
	if idx, ok := domain.NextDue(plan, asOf); ok {
		row := plan.Rows[idx]
		resp.RowIndex = &idx
		resp.Row = &row
	}
	return resp, nil
}

// ListByInsured returns all plans referencing an insured party.
func (s *PlanService) ListByInsured(ctx context.Context, insuredID string) ([]*domain.InstallmentPlan, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.PlanRepo.ListByInsuredID(ctx, insuredID)
}

// ListDueBetween returns plans with unpaid installments inside the range.
// The scheduler builds its overdue feed from this.
func (s *PlanService) ListDueBetween(ctx context.Context, from, to domain.Date) ([]*domain.InstallmentPlan, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.PlanRepo.ListDueBetween(ctx, from, to)
}

// mutate runs one aggregate operation between a fresh load and an optimistic
// save. The aggregate rejects invalid transitions before anything is written,
// so a failed call leaves the stored plan untouched.
func (s *PlanService) mutate(ctx context.Context, id uuid.UUID, op string, apply func(*domain.InstallmentPlan) error) (*domain.InstallmentPlan, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	plan, err := s.PlanRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	// A document that fails its own invariants must not be mutated further;
	// storage-level tampering surfaces here instead of flowing through.
	if err := plan.Validate(); err != nil {
		return nil, err
	}

	if err := apply(plan); err != nil {
		return nil, err
	}

	if err := s.PlanRepo.Update(ctx, plan); err != nil {
		return nil, err
	}

	s.cachePlan(ctx, plan)
	s.log.Info().
		Str("plan_id", id.String()).
		Str("operation", op).
		Str("status", string(plan.Status())).
		Msg("plan mutated")

	return plan, nil
}

// The cache is best-effort: a missing or unreachable Redis never fails a
// request, it only costs a storage round trip.

func (s *PlanService) cacheGet(ctx context.Context, id uuid.UUID) (string, error) {
	if s.redis == nil {
		return "", redis.Nil
	}
	return s.redis.Get(ctx, planCacheKey(id)).Result()
}

// cachePlan writes the snapshot through to the cache unless the cache
// already holds the same or a newer version, so a reader still holding a
// pre-mutation document cannot clobber the entry a concurrent mutation just
// wrote. The check-then-set pair is not atomic; the residual window is
// bounded by the cache TTL and closed by the next write to the key.
func (s *PlanService) cachePlan(ctx context.Context, plan *domain.InstallmentPlan) {
	if s.redis == nil {
		return
	}
	if current, err := s.redis.Get(ctx, planCacheKey(plan.ID)).Bytes(); err == nil {
		if !cacheEntryStale(current, plan.Version) {
			return
		}
	}
	payload, err := json.Marshal(cachedPlan{Plan: plan, Version: plan.Version})
	if err != nil {
		s.invalidate(ctx, plan.ID)
		return
	}
	if err := s.redis.Set(ctx, planCacheKey(plan.ID), payload, s.config.GetCacheTTL()).Err(); err != nil {
		s.log.Warn().Err(err).Str("plan_id", plan.ID.String()).Msg("plan cache write failed")
	}
}

// cacheEntryStale reports whether the stored entry is older than version.
// Undecodable entries count as stale so they get overwritten.
func cacheEntryStale(current []byte, version int64) bool {
	var entry cachedPlan
	if err := json.Unmarshal(current, &entry); err != nil {
		return true
	}
	return entry.Version < version
}

func (s *PlanService) invalidate(ctx context.Context, id uuid.UUID) {
	if s.redis == nil {
		return
	}
	if err := s.redis.Del(ctx, planCacheKey(id)).Err(); err != nil {
		s.log.Warn().Err(err).Str("plan_id", id.String()).Msg("plan cache invalidation failed")
	}
}

func (s *PlanService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.config.GetQueryTimeout())
}
