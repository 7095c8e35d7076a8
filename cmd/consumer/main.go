package main

import (
	"context"
	"encoding/json"
	"os/signal"
	"syscall"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/failsworth/returnbase/internal/config"
	"github.com/failsworth/returnbase/internal/logger"
	"github.com/failsworth/returnbase/internal/repository"
)

const groupID = "return-audit-consumer-group"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log := logger.New()
	defer func() {
		_ = log.Sync()
	}()

	cfg := config.Load()

	log.Info("starting kafka consumer",
		zap.Strings("brokers", cfg.KafkaBrokers),
		zap.String("topic", cfg.KafkaTopic))

	r := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:        cfg.KafkaBrokers,
		GroupID:        groupID,
		Topic:          cfg.KafkaTopic,
		MinBytes:       10e3,
		MaxBytes:       10e6,
		CommitInterval: time.Second,
		MaxWait:        3 * time.Second,
	})
	defer func() {
		if err := r.Close(); err != nil {
			log.Error("error closing kafka reader", zap.Error(err))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info("shutdown signal received, stopping consumer")
			return
		default:
			m, err := r.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Error("error reading message", zap.Error(err))
				time.Sleep(5 * time.Second)
				continue
			}

			var event repository.TransitionEvent
			if err := json.Unmarshal(m.Value, &event); err != nil {
				log.Warn("skipping malformed transition event",
					zap.ByteString("key", m.Key), zap.Error(err))
				continue
			}

			log.Info("transition event",
				zap.String("tenant_id", event.TenantID),
				zap.String("return_id", event.ReturnID),
				zap.String("from", string(event.FromStatus)),
				zap.String("to", string(event.ToStatus)),
				zap.Time("at", event.Timestamp))
		}
	}
}
