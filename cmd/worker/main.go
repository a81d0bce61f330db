// Worker consumes background jobs (emails, session invalidation) from Kafka and purges
// expired refresh tokens and confirmation codes. Set KAFKA_BROKERS, JOBS_KAFKA_TOPIC and KAFKA_GROUP_ID.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"taskflow/backend/internal/config"
	confirmationrepo "taskflow/backend/internal/confirmation/repository"
	"taskflow/backend/internal/db"
	"taskflow/backend/internal/jobs"
	"taskflow/backend/internal/logging"
	"taskflow/backend/internal/mail"
	refreshtokenrepo "taskflow/backend/internal/refreshtoken/repository"
	sessionrepo "taskflow/backend/internal/session/repository"
)

const purgeInterval = time.Hour

type purger interface {
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	brokers := cfg.KafkaBrokersList()
	if len(brokers) == 0 {
		log.Fatal("worker: KAFKA_BROKERS is required")
	}
	logger, err := logging.New(cfg.LogLevel, cfg.Env)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		logger.Info("worker: shutting down")
		cancel()
	}()

	conn, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("db", zap.Error(err))
	}
	defer conn.Close()

	sessions := sessionrepo.NewPostgresRepository(conn)
	refreshTokens := refreshtokenrepo.NewPostgresRepository(conn)
	codes := confirmationrepo.NewPostgresRepository(conn)

	var sender mail.Sender = mail.NewLogSender(logger)
	if cfg.SMTPHost != "" {
		sender = mail.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.MailFrom)
	}
	runner := jobs.NewRunner(mail.NewRenderer(cfg.AppBaseURL), sender, db.NewTxManager(conn), sessions, refreshTokens, logger)

	go purgeLoop(ctx, logger, map[string]purger{
		"refresh_tokens":     refreshTokens,
		"confirmation_codes": codes,
	})

	logger.Info("worker: consuming jobs",
		zap.Strings("brokers", brokers), zap.String("topic", cfg.JobsKafkaTopic), zap.String("group", cfg.KafkaGroupID))
	consumer := jobs.NewConsumer(brokers, cfg.JobsKafkaTopic, cfg.KafkaGroupID, runner, logger)
	if err := consumer.Run(ctx); err != nil {
		logger.Error("worker: consumer stopped", zap.Error(err))
	}
	logger.Info("worker: stopped")
}

// purgeLoop deletes expired rows once at start and then every purgeInterval until ctx is done.
func purgeLoop(ctx context.Context, logger *zap.Logger, tables map[string]purger) {
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()
	for {
		now := time.Now().UTC()
		for name, p := range tables {
			n, err := p.DeleteExpired(ctx, now)
			if err != nil {
				if ctx.Err() == nil {
					logger.Warn("worker: purge failed", zap.String("table", name), zap.Error(err))
				}
				continue
			}
			if n > 0 {
				logger.Info("worker: purged expired rows", zap.String("table", name), zap.Int64("rows", n))
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
