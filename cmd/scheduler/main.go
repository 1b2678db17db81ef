package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/insoffice/installment-ledger/internal/config"
	"github.com/insoffice/installment-ledger/internal/domain"
	"github.com/insoffice/installment-ledger/internal/logging"
	"github.com/insoffice/installment-ledger/internal/repository"
)

// The scheduler maintains the read-side overdue feed: each run scans plans
// with unpaid installments inside the configured window and publishes
// per-plan overdue totals to Redis. Reminder delivery itself is somebody
// else's job, driven off these keys.
func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logging.New(cfg.Logging, cfg.IsDevelopment())
	logger.Info().Msg("Starting overdue scheduler")

	db, err := sqlx.Connect("postgres", cfg.Database.URL)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Host + ":" + cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	planRepo := repository.NewPlanRepository(db)
	scan := &overdueScan{
		repo:      planRepo,
		redis:     redisClient,
		lookback:  cfg.Scheduler.LookbackDays,
		lookahead: cfg.Scheduler.LookaheadDays,
		log:       logger,
	}

	c := cron.New(cron.WithSeconds())
	if _, err := c.AddFunc(cfg.Scheduler.OverdueSpec, scan.run); err != nil {
		logger.Fatal().Err(err).Str("spec", cfg.Scheduler.OverdueSpec).Msg("Failed to schedule overdue scan")
	}

	c.Start()
	logger.Info().Str("spec", cfg.Scheduler.OverdueSpec).Msg("Scheduler started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down scheduler...")
	c.Stop()
	logger.Info().Msg("Scheduler stopped")
}

type overdueScan struct {
	repo      repository.PlanRepository
	redis     *redis.Client
	lookback  int
	lookahead int
	log       *zerolog.Logger
}

func (s *overdueScan) run() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	today := domain.Today()
	from := domain.DateOf(today.Time().AddDate(0, 0, -s.lookback))
	to := domain.DateOf(today.Time().AddDate(0, 0, s.lookahead))

	plans, err := s.repo.ListDueBetween(ctx, from, to)
	if err != nil {
		s.log.Error().Err(err).Msg("overdue scan failed")
		return
	}

	totalOverdue := 0
	for _, plan := range plans {
		overdue := domain.OverdueRows(plan, today)
		if len(overdue) == 0 {
			continue
		}
		totalOverdue += len(overdue)

		balance := domain.FromMinorUnits(0, plan.TotalAmount.Scale())
		for _, row := range overdue {
			balance = balance.Add(row.Amount)
		}

		key := fmt.Sprintf("overdue:%s", plan.ID)
		if err := s.redis.Set(ctx, key, balance.String(), 48*time.Hour).Err(); err != nil {
			s.log.Warn().Err(err).Str("plan_id", plan.ID.String()).Msg("overdue feed write failed")
		}

		s.log.Info().
			Str("plan_id", plan.ID.String()).
			Str("insured_id", plan.InsuredID).
			Int("overdue_rows", len(overdue)).
			Str("overdue_amount", balance.String()).
			Msg("plan overdue")
	}

	s.log.Info().
		Int("plans_scanned", len(plans)).
		Int("overdue_rows", totalOverdue).
		Msg("overdue scan complete")
}
