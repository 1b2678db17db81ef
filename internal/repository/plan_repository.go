package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"github.com/insoffice/installment-ledger/internal/domain"
	customError "github.com/insoffice/installment-ledger/pkg/errors"
)

type planRepository struct {
	db *sqlx.DB
}

func NewPlanRepository(db *sqlx.DB) PlanRepository {
	return &planRepository{db: db}
}

// planRecord maps the plans table. The item references and installment rows
// live in JSONB columns so the whole aggregate is replaced in one statement.
type planRecord struct {
	ID                   uuid.UUID      `db:"id"`
	InsuredID            string         `db:"insured_id"`
	InsuranceItems       types.JSONText `db:"insurance_items"`
	TotalAmount          domain.Money   `db:"total_amount"`
	StartDate            domain.Date    `db:"start_date"`
	NumberOfInstallments int            `db:"number_of_installments"`
	Frequency            string         `db:"frequency"`
	Installments         types.JSONText `db:"installments"`
	Note                 string         `db:"note"`
	Cancelled            bool           `db:"cancelled"`
	Version              int64          `db:"version"`
	CreatedAt            time.Time      `db:"created_at"`
	UpdatedAt            time.Time      `db:"updated_at"`
}

func toRecord(plan *domain.InstallmentPlan) (*planRecord, error) {
	items, err := json.Marshal(plan.Items)
	if err != nil {
		return nil, err
	}
	rows, err := json.Marshal(plan.Rows)
	if err != nil {
		return nil, err
	}
	return &planRecord{
		ID:                   plan.ID,
		InsuredID:            plan.InsuredID,
		InsuranceItems:       items,
		TotalAmount:          plan.TotalAmount,
		StartDate:            plan.StartDate,
		NumberOfInstallments: plan.NumberOfInstallments,
		Frequency:            string(plan.Frequency),
		Installments:         rows,
		Note:                 plan.Note,
		Cancelled:            plan.Cancelled,
		Version:              plan.Version,
		CreatedAt:            plan.CreatedAt,
		UpdatedAt:            plan.UpdatedAt,
	}, nil
}

func (r *planRecord) toDomain() (*domain.InstallmentPlan, error) {
	plan := &domain.InstallmentPlan{
		ID:                   r.ID,
		InsuredID:            r.InsuredID,
		TotalAmount:          r.TotalAmount,
		StartDate:            r.StartDate,
		NumberOfInstallments: r.NumberOfInstallments,
		Frequency:            domain.Frequency(r.Frequency),
		Note:                 r.Note,
		Cancelled:            r.Cancelled,
		Version:              r.Version,
		CreatedAt:            r.CreatedAt,
		UpdatedAt:            r.UpdatedAt,
	}
	if err := json.Unmarshal(r.InsuranceItems, &plan.Items); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(r.Installments, &plan.Rows); err != nil {
		return nil, err
	}
	return plan, nil
}

func (r *planRepository) Create(ctx context.Context, plan *domain.InstallmentPlan) error {
	now := time.Now().UTC()
	plan.CreatedAt = now
	plan.UpdatedAt = now
	plan.Version = 1

	record, err := toRecord(plan)
	if err != nil {
		return customError.WrapStorageUnavailable(err)
	}

	query := `
		INSERT INTO plans (id, insured_id, insurance_items, total_amount, start_date, number_of_installments, frequency, installments, note, cancelled, version, created_at, updated_at)
		VALUES (:id, :insured_id, :insurance_items, :total_amount, :start_date, :number_of_installments, :frequency, :installments, :note, :cancelled, :version, :created_at, :updated_at)
	`

	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		return customError.WrapStorageUnavailable(err)
	}
	return nil
}

func (r *planRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.InstallmentPlan, error) {
	query := `
		SELECT id, insured_id, insurance_items, total_amount, start_date, number_of_installments, frequency, installments, note, cancelled, version, created_at, updated_at
		FROM plans
		WHERE id = $1
	`

	var record planRecord
	if err := r.db.GetContext(ctx, &record, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, customError.WrapPlanNotFound(id.String())
		}
		return nil, customError.WrapStorageUnavailable(err)
	}

	plan, err := record.toDomain()
	if err != nil {
		return nil, customError.WrapStorageUnavailable(err)
	}
	return plan, nil
}

// Update replaces the whole document, guarded by the version loaded with the
// plan. On success the in-memory plan carries the new version and timestamp.
func (r *planRepository) Update(ctx context.Context, plan *domain.InstallmentPlan) error {
	updatedAt := time.Now().UTC()

	record, err := toRecord(plan)
	if err != nil {
		return customError.WrapStorageUnavailable(err)
	}
	record.UpdatedAt = updatedAt

	query := `
		UPDATE plans
		SET insurance_items = $3, total_amount = $4, start_date = $5, installments = $6, note = $7, cancelled = $8, version = version + 1, updated_at = $9
		WHERE id = $1 AND version = $2
	`

	result, err := r.db.ExecContext(ctx, query,
		record.ID,
		record.Version,
		record.InsuranceItems,
		record.TotalAmount,
		record.StartDate,
		record.Installments,
		record.Note,
		record.Cancelled,
		record.UpdatedAt,
	)
	if err != nil {
		return customError.WrapStorageUnavailable(err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return customError.WrapStorageUnavailable(err)
	}
	if affected == 0 {
		// Either the plan is gone or another writer bumped the version.
		var exists bool
		if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM plans WHERE id = $1)`, plan.ID); err != nil {
			return customError.WrapStorageUnavailable(err)
		}
		if !exists {
			return customError.WrapPlanNotFound(plan.ID.String())
		}
		return customError.WrapConcurrentModification(plan.ID.String())
	}

	plan.Version++
	plan.UpdatedAt = updatedAt
	return nil
}

func (r *planRepository) ListByInsuredID(ctx context.Context, insuredID string) ([]*domain.InstallmentPlan, error) {
	query := `
		SELECT id, insured_id, insurance_items, total_amount, start_date, number_of_installments, frequency, installments, note, cancelled, version, created_at, updated_at
		FROM plans
		WHERE insured_id = $1
		ORDER BY start_date, created_at
	`

	var records []planRecord
	if err := r.db.SelectContext(ctx, &records, query, insuredID); err != nil {
		return nil, customError.WrapStorageUnavailable(err)
	}
	return toDomainList(records)
}

func (r *planRepository) ListDueBetween(ctx context.Context, from, to domain.Date) ([]*domain.InstallmentPlan, error) {
	query := `
		SELECT id, insured_id, insurance_items, total_amount, start_date, number_of_installments, frequency, installments, note, cancelled, version, created_at, updated_at
		FROM plans
		WHERE cancelled = FALSE
		  AND EXISTS (
			SELECT 1
			FROM jsonb_array_elements(installments) AS inst
			WHERE (inst->>'isPaid')::boolean = FALSE
			  AND (inst->>'dueDate')::date BETWEEN $1 AND $2
		  )
		ORDER BY start_date, created_at
	`

	var records []planRecord
	if err := r.db.SelectContext(ctx, &records, query, from, to); err != nil {
		return nil, customError.WrapStorageUnavailable(err)
	}
	return toDomainList(records)
}

func toDomainList(records []planRecord) ([]*domain.InstallmentPlan, error) {
	plans := make([]*domain.InstallmentPlan, 0, len(records))
	for i := range records {
		plan, err := records[i].toDomain()
		if err != nil {
			return nil, customError.WrapStorageUnavailable(err)
		}
		plans = append(plans, plan)
	}
	return plans, nil
}
