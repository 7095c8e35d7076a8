package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/failsworth/returnbase/internal/audit"
	"github.com/failsworth/returnbase/internal/cache"
	"github.com/failsworth/returnbase/internal/config"
	"github.com/failsworth/returnbase/internal/db"
	"github.com/failsworth/returnbase/internal/kafka"
	"github.com/failsworth/returnbase/internal/logger"
	"github.com/failsworth/returnbase/internal/repository/postgres"
	"github.com/failsworth/returnbase/internal/server"
	"github.com/failsworth/returnbase/internal/service"
	"github.com/failsworth/returnbase/internal/workflow"
)

// defaultRules triage new returns before a human sees them. Order matters:
// the first matching rule decides.
var defaultRules = []workflow.Rule{
	{
		Name:              "auto-approve-defects",
		Decision:          workflow.StatusApproved,
		Reasons:           []string{"defective", "damaged", "wrong_item"},
		MaxDaysSinceOrder: 30,
	},
	{
		Name:            "auto-approve-small-refunds",
		Decision:        workflow.StatusApproved,
		MaxRefundAmount: 25,
	},
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log := logger.New()
	defer func() {
		_ = log.Sync()
	}()

	cfg := config.Load()

	database, err := db.NewDb(ctx, cfg.DSN())
	if err != nil {
		log.Fatal("database init error", zap.Error(err))
	}

	returnsRepo := postgres.NewReturnsRepo(database, log)
	ordersRepo := postgres.NewOrdersRepo(database, log)
	auditRepo := postgres.NewAuditLogRepo(database, log)
	tenantsRepo := postgres.NewTenantsRepo(database, log)
	outboxRepo := postgres.NewOutboxTaskRepo()

	tenantCache := cache.NewTenantCache(tenantsRepo, log)
	if err := tenantCache.LoadInitialData(ctx); err != nil {
		log.Fatal("failed to load tenant cache", zap.Error(err))
	}

	svc := service.NewReturns(database, returnsRepo, ordersRepo, auditRepo, outboxRepo,
		defaultRules, cfg.KafkaTopic, log)

	var producer kafka.Producer
	if cfg.KafkaConsole {
		producer = kafka.NewConsoleProducer(log)
	} else {
		producer = kafka.NewWriterProducer(cfg.KafkaBrokers)
	}

	publisher := kafka.NewPublisher(database, outboxRepo, producer, kafka.PublisherConfig{
		PollInterval: cfg.OutboxPollInterval,
		BatchSize:    cfg.OutboxBatchSize,
		MaxAttempts:  cfg.OutboxMaxAttempts,
	}, log)
	go publisher.Run(ctx)

	recorder := audit.NewRecorder(cfg.AuditWorkers, cfg.AuditBatchSize, cfg.AuditFlushWait, log)

	srv := server.New(svc, ordersRepo, tenantsRepo, tenantCache, recorder, log)

	go func() {
		if err := srv.Run(ctx, cfg.HTTPPort); err != nil {
			log.Fatal("failed to start server", zap.Error(err))
		}
	}()

	log.Info("server started", zap.String("port", cfg.HTTPPort))

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown failed", zap.Error(err))
	}
	publisher.Shutdown()

	log.Info("server gracefully stopped")
}
