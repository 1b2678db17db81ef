package service

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/insoffice/installment-ledger/internal/config"
	"github.com/insoffice/installment-ledger/internal/domain"
	customError "github.com/insoffice/installment-ledger/pkg/errors"
)

func testConfig() *config.Config {
	return &config.Config{
		Database: config.DatabaseConfig{QueryTimeout: "2s"},
		Redis:    config.RedisConfig{CacheTTL: "1m"},
		Business: config.BusinessConfig{CurrencyScale: 2},
	}
}

func testLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

func newTestService(repo *MockPlanRepository) *PlanService {
	return NewPlanService(repo, nil, testConfig(), testLogger())
}

func validCreateRequest() *domain.CreatePlanRequest {
	return &domain.CreatePlanRequest{
		InsuredID: "insured-42",
		Items: []domain.InsuranceItemRequest{
			{InsuranceID: "INS-1", InsuranceType: "vehicle", InsuranceCompany: "Al Salam Insurance"},
		},
		TotalAmount:          decimal.NewFromInt(1000),
		StartDate:            "2024-01-31",
		NumberOfInstallments: 3,
		Frequency:            "monthly",
		Note:                 "annual premium",
	}
}

func storedPlan(t *testing.T) *domain.InstallmentPlan {
	t.Helper()
	total, err := domain.FromMajorUnits(decimal.NewFromInt(1000), 2)
	require.NoError(t, err)
	plan, err := domain.NewPlan(
		"insured-42",
		[]domain.InsuranceItemRef{{InsuranceID: "INS-1", InsuranceType: domain.InsuranceTypeVehicle, InsuranceCompany: "Al Salam Insurance"}},
		total,
		domain.NewDate(2024, time.January, 31),
		3,
		domain.FrequencyMonthly,
		"",
	)
	require.NoError(t, err)
	plan.Version = 1
	return plan
}

// MockPlanRepository is a testify mock over the repository interface.
type MockPlanRepository struct {
	mock.Mock
}

func (m *MockPlanRepository) Create(ctx context.Context, plan *domain.InstallmentPlan) error {
	args := m.Called(ctx, plan)
	return args.Error(0)
}

func (m *MockPlanRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.InstallmentPlan, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.InstallmentPlan), args.Error(1)
}

func (m *MockPlanRepository) Update(ctx context.Context, plan *domain.InstallmentPlan) error {
	args := m.Called(ctx, plan)
	return args.Error(0)
}

func (m *MockPlanRepository) ListByInsuredID(ctx context.Context, insuredID string) ([]*domain.InstallmentPlan, error) {
	args := m.Called(ctx, insuredID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.InstallmentPlan), args.Error(1)
}

func (m *MockPlanRepository) ListDueBetween(ctx context.Context, from, to domain.Date) ([]*domain.InstallmentPlan, error) {
	args := m.Called(ctx, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.InstallmentPlan), args.Error(1)
}

func TestCreatePlan(t *testing.T) {
	tests := []struct {
		name          string
		mutateRequest func(*domain.CreatePlanRequest)
		setupMocks    func(*MockPlanRepository)
		expectedCode  string
		validate      func(*testing.T, *domain.InstallmentPlan)
	}{
		{
			name: "Success - schedule generated and persisted",
			setupMocks: func(repo *MockPlanRepository) {
				repo.On("Create", mock.Anything, mock.MatchedBy(func(plan *domain.InstallmentPlan) bool {
					return plan.InsuredID == "insured-42" && len(plan.Rows) == 3
				})).Return(nil)
			},
			validate: func(t *testing.T, plan *domain.InstallmentPlan) {
				assert.Equal(t, "2024-01-31", plan.Rows[0].DueDate.String())
				assert.Equal(t, "2024-02-29", plan.Rows[1].DueDate.String())
				assert.Equal(t, "2024-03-31", plan.Rows[2].DueDate.String())
				assert.True(t, domain.OutstandingBalance(plan).Equal(plan.TotalAmount))
				require.NoError(t, plan.Validate())
			},
		},
		{
			name: "Failure - negative amount",
			mutateRequest: func(req *domain.CreatePlanRequest) {
				req.TotalAmount = decimal.NewFromInt(-100)
			},
			expectedCode: customError.ErrCodeInvalidAmount,
		},
		{
			name: "Failure - unknown frequency",
			mutateRequest: func(req *domain.CreatePlanRequest) {
				req.Frequency = "weekly"
			},
			expectedCode: customError.ErrCodeInvalidSchedule,
		},
		{
			name: "Failure - malformed start date",
			mutateRequest: func(req *domain.CreatePlanRequest) {
				req.StartDate = "31/01/2024"
			},
			expectedCode: customError.ErrCodeInvalidSchedule,
		},
		{
			name: "Failure - unknown insurance type",
			mutateRequest: func(req *domain.CreatePlanRequest) {
				req.Items[0].InsuranceType = "life"
			},
			expectedCode: customError.ErrCodeInvalidInsuranceType,
		},
		{
			name: "Failure - no insurance items",
			mutateRequest: func(req *domain.CreatePlanRequest) {
				req.Items = nil
			},
			expectedCode: customError.ErrCodeEmptyItems,
		},
		{
			name: "Failure - storage unavailable",
			setupMocks: func(repo *MockPlanRepository) {
				repo.On("Create", mock.Anything, mock.Anything).
					Return(customError.WrapStorageUnavailable(assert.AnError))
			},
			expectedCode: customError.ErrCodeStorageUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &MockPlanRepository{}
			if tt.setupMocks != nil {
				tt.setupMocks(repo)
			}
			svc := newTestService(repo)

			request := validCreateRequest()
			if tt.mutateRequest != nil {
				tt.mutateRequest(request)
			}

			plan, err := svc.CreatePlan(context.Background(), request)
			if tt.expectedCode != "" {
				assert.Equal(t, tt.expectedCode, customError.CodeOf(err))
				assert.Nil(t, plan)
			} else {
				require.NoError(t, err)
				tt.validate(t, plan)
			}
			repo.AssertExpectations(t)
		})
	}
}

func TestPreviewSchedule(t *testing.T) {
	svc := newTestService(&MockPlanRepository{})

	rows, err := svc.PreviewSchedule(&domain.PreviewScheduleRequest{
		TotalAmount:          decimal.NewFromInt(1000),
		StartDate:            "2024-01-31",
		NumberOfInstallments: 3,
		Frequency:            "monthly",
	})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, int64(33334), rows[0].Amount.MinorUnits())
}

func TestRecordPayment(t *testing.T) {
	plan := storedPlan(t)
	repo := &MockPlanRepository{}
	repo.On("GetByID", mock.Anything, plan.ID).Return(plan, nil)
	repo.On("Update", mock.Anything, mock.MatchedBy(func(p *domain.InstallmentPlan) bool {
		return p.Rows[0].IsPaid
	})).Return(nil)

	svc := newTestService(repo)
	updated, err := svc.RecordPayment(context.Background(), plan.ID, 0, &domain.RecordPaymentRequest{
		PaidDate:      "2024-02-02",
		PaymentMethod: "visa",
		Notes:         "paid at office",
	})
	require.NoError(t, err)
	assert.True(t, updated.Rows[0].IsPaid)
	assert.Equal(t, domain.PlanStatusOpen, updated.Status())
	repo.AssertExpectations(t)
}

func TestRecordPaymentInvalidInput(t *testing.T) {
	repo := &MockPlanRepository{}
	svc := newTestService(repo)
	id := uuid.New()

	_, err := svc.RecordPayment(context.Background(), id, 0, &domain.RecordPaymentRequest{
		PaidDate:      "yesterday",
		PaymentMethod: "cash",
	})
	assert.Equal(t, customError.ErrCodeInvalidPaymentDate, customError.CodeOf(err))

	_, err = svc.RecordPayment(context.Background(), id, 0, &domain.RecordPaymentRequest{
		PaidDate:      "2024-02-02",
		PaymentMethod: "crypto",
	})
	assert.Equal(t, customError.ErrCodeInvalidPaymentMethod, customError.CodeOf(err))
	assert.True(t, customError.IsValidation(err))

	// No repository call happened for either request.
	repo.AssertExpectations(t)
}

func TestRecordPaymentConflictOnStaleWrite(t *testing.T) {
	plan := storedPlan(t)
	repo := &MockPlanRepository{}
	repo.On("GetByID", mock.Anything, plan.ID).Return(plan, nil)
	repo.On("Update", mock.Anything, mock.Anything).
		Return(customError.WrapConcurrentModification(plan.ID.String()))

	svc := newTestService(repo)
	_, err := svc.RecordPayment(context.Background(), plan.ID, 0, &domain.RecordPaymentRequest{
		PaidDate:      "2024-02-02",
		PaymentMethod: "cash",
	})
	assert.Equal(t, customError.ErrCodeConcurrentModification, customError.CodeOf(err))
	assert.True(t, customError.IsRetryable(err))
}

func TestMutateRejectsCorruptDocument(t *testing.T) {
	plan := storedPlan(t)
	plan.Rows[1].Amount = domain.FromMinorUnits(1, 2)

	repo := &MockPlanRepository{}
	repo.On("GetByID", mock.Anything, plan.ID).Return(plan, nil)

	svc := newTestService(repo)
	_, err := svc.RecordPayment(context.Background(), plan.ID, 0, &domain.RecordPaymentRequest{
		PaidDate:      "2024-02-02",
		PaymentMethod: "cash",
	})
	assert.Equal(t, customError.ErrCodeInvalidSchedule, customError.CodeOf(err))

	// The tampered document was never written back.
	repo.AssertExpectations(t)
	repo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}

func TestReschedulePartiallyPaidNotSaved(t *testing.T) {
	plan := storedPlan(t)
	require.NoError(t, plan.RecordPayment(0, domain.NewDate(2024, time.February, 1), domain.PaymentMethodCash, ""))

	repo := &MockPlanRepository{}
	repo.On("GetByID", mock.Anything, plan.ID).Return(plan, nil)

	svc := newTestService(repo)
	_, err := svc.Reschedule(context.Background(), plan.ID, &domain.RescheduleRequest{StartDate: "2024-06-15"})
	assert.Equal(t, customError.ErrCodePartiallyPaid, customError.CodeOf(err))

	// Update was never called.
	repo.AssertExpectations(t)
}

func TestOutstanding(t *testing.T) {
	plan := storedPlan(t)
	require.NoError(t, plan.RecordPayment(0, domain.NewDate(2024, time.February, 1), domain.PaymentMethodCash, ""))

	repo := &MockPlanRepository{}
	repo.On("GetByID", mock.Anything, plan.ID).Return(plan, nil)

	svc := newTestService(repo)
	result, err := svc.Outstanding(context.Background(), plan.ID)
	require.NoError(t, err)
	assert.Equal(t, "666.66", result.Outstanding.String())
	assert.False(t, result.Settled)
}

func TestCacheEntryStale(t *testing.T) {
	entry := func(version int64) []byte {
		payload, err := json.Marshal(cachedPlan{Plan: storedPlan(t), Version: version})
		require.NoError(t, err)
		return payload
	}

	assert.True(t, cacheEntryStale(entry(1), 2), "older entry gives way to a newer write")
	assert.False(t, cacheEntryStale(entry(2), 2), "equal version stays")
	assert.False(t, cacheEntryStale(entry(3), 2), "a newer entry is never clobbered by a stale writer")
	assert.True(t, cacheEntryStale([]byte("not json"), 1), "undecodable entries get overwritten")
}

func TestGetPlanNotFound(t *testing.T) {
	id := uuid.New()
	repo := &MockPlanRepository{}
	repo.On("GetByID", mock.Anything, id).Return(nil, customError.WrapPlanNotFound(id.String()))

	svc := newTestService(repo)
	_, err := svc.GetPlan(context.Background(), id)
	assert.Equal(t, customError.ErrCodePlanNotFound, customError.CodeOf(err))
}

// memoryPlanRepo is a version-checking in-memory store used to exercise the
// optimistic concurrency path end to end.
type memoryPlanRepo struct {
	mu    sync.Mutex
	plans map[uuid.UUID]*domain.InstallmentPlan
}

func newMemoryPlanRepo() *memoryPlanRepo {
	return &memoryPlanRepo{plans: make(map[uuid.UUID]*domain.InstallmentPlan)}
}

func snapshot(plan *domain.InstallmentPlan) *domain.InstallmentPlan {
	copied := *plan
	copied.Rows = append([]domain.InstallmentRow(nil), plan.Rows...)
	copied.Items = append([]domain.InsuranceItemRef(nil), plan.Items...)
	return &copied
}

func (r *memoryPlanRepo) Create(_ context.Context, plan *domain.InstallmentPlan) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	plan.CreatedAt = now
	plan.UpdatedAt = now
	plan.Version = 1
	r.plans[plan.ID] = snapshot(plan)
	return nil
}

func (r *memoryPlanRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.InstallmentPlan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.plans[id]
	if !ok {
		return nil, customError.WrapPlanNotFound(id.String())
	}
	return snapshot(stored), nil
}

func (r *memoryPlanRepo) Update(_ context.Context, plan *domain.InstallmentPlan) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.plans[plan.ID]
	if !ok {
		return customError.WrapPlanNotFound(plan.ID.String())
	}
	if stored.Version != plan.Version {
		return customError.WrapConcurrentModification(plan.ID.String())
	}
	plan.Version++
	plan.UpdatedAt = time.Now().UTC()
	r.plans[plan.ID] = snapshot(plan)
	return nil
}

func (r *memoryPlanRepo) ListByInsuredID(_ context.Context, insuredID string) ([]*domain.InstallmentPlan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*domain.InstallmentPlan
	for _, plan := range r.plans {
		if plan.InsuredID == insuredID {
			result = append(result, snapshot(plan))
		}
	}
	return result, nil
}

func (r *memoryPlanRepo) ListDueBetween(_ context.Context, from, to domain.Date) ([]*domain.InstallmentPlan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*domain.InstallmentPlan
	for _, plan := range r.plans {
		for _, row := range plan.Rows {
			if !row.IsPaid && !row.DueDate.Before(from) && !row.DueDate.After(to) {
				result = append(result, snapshot(plan))
				break
			}
		}
	}
	return result, nil
}

func TestConcurrentRecordPaymentSameRow(t *testing.T) {
	repo := newMemoryPlanRepo()
	svc := NewPlanService(repo, nil, testConfig(), testLogger())

	plan, err := svc.CreatePlan(context.Background(), validCreateRequest())
	require.NoError(t, err)

	request := &domain.RecordPaymentRequest{PaidDate: "2024-02-02", PaymentMethod: "cash"}

	var wg sync.WaitGroup
	results := make([]error, 2)
	start := make(chan struct{})
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			<-start
			_, results[slot] = svc.RecordPayment(context.Background(), plan.ID, 0, request)
		}(i)
	}
	close(start)
	wg.Wait()

	successes := 0
	for _, err := range results {
		if err == nil {
			successes++
			continue
		}
		code := customError.CodeOf(err)
		assert.Contains(t, []string{
			customError.ErrCodeAlreadyPaid,
			customError.ErrCodeConcurrentModification,
		}, code)
	}
	assert.Equal(t, 1, successes, "exactly one concurrent payment may succeed")

	stored, err := svc.GetPlan(context.Background(), plan.ID)
	require.NoError(t, err)
	assert.True(t, stored.Rows[0].IsPaid)
	assert.Equal(t, "666.66", domain.OutstandingBalance(stored).String())
}
