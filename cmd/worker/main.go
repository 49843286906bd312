package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/billfox/dunning-api/internal/config"
	"github.com/billfox/dunning-api/internal/mailer"
	"github.com/billfox/dunning-api/internal/repository/postgres"
	auditService "github.com/billfox/dunning-api/internal/service/audit"
	dispatchService "github.com/billfox/dunning-api/internal/service/dispatch"
	"github.com/billfox/dunning-api/internal/worker"
	"github.com/billfox/dunning-api/pkg/logger"
	"github.com/billfox/dunning-api/pkg/messaging"
	redisbroker "github.com/billfox/dunning-api/pkg/messaging/redis"
	"github.com/billfox/dunning-api/pkg/metrics"
)

func setupHealthCheck(port int, appLogger *logger.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	go func() {
		if err := http.ListenAndServe(fmt.Sprintf(":%d", port), mux); err != nil {
			appLogger.ZL.Error().Err(err).Msg("health check server failed")
			os.Exit(1)
		}
	}()
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	env, err := config.LoadWorkerEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load worker environment")
	}
	env.Apply(&cfg.Dispatch)

	appLogger := logger.NewLogger(nil)

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	base := postgres.NewBaseRepository(db)
	reminderRepo := postgres.NewReminderRepository(base)
	cronLogRepo := postgres.NewCronLogRepository(base)

	var broker messaging.Broker
	if cfg.Redis.URL != "" {
		broker, err = redisbroker.NewRedisBroker(redisbroker.Config{
			URL:          cfg.Redis.URL,
			MaxRetries:   cfg.Redis.MaxRetries,
			RetryBackoff: cfg.Redis.RetryBackoff,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
		}, &appLogger.ZL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to Redis")
		}
		defer broker.Close()
	}

	m := metrics.NewMetrics("dunning", "worker")
	auditor := auditService.NewService(cronLogRepo, broker, appLogger)

	smtpProfiles := make(map[string]mailer.SMTPProfile, len(cfg.SMTP.Profiles))
	for sender, p := range cfg.SMTP.Profiles {
		smtpProfiles[sender] = mailer.SMTPProfile{
			Host:     p.Host,
			Port:     p.Port,
			Username: p.Username,
			Password: p.Password,
		}
	}
	sender := mailer.NewSMTPSender(
		mailer.SMTPProfile{
			Host:     cfg.SMTP.Default.Host,
			Port:     cfg.SMTP.Default.Port,
			Username: cfg.SMTP.Default.Username,
			Password: cfg.SMTP.Default.Password,
		},
		smtpProfiles,
		time.Duration(cfg.SMTP.TimeoutSeconds)*time.Second,
		appLogger,
	)

	dispatcher := dispatchService.NewService(
		reminderRepo,
		sender,
		auditor,
		dispatchService.Config{
			BatchSize:        cfg.Dispatch.BatchSize,
			ImmediateRetries: 3,
			RetryDelay:       2 * time.Second,
			RescheduleDelay:  cfg.Dispatch.RescheduleDelay,
		},
		m,
		appLogger,
	)

	setupHealthCheck(env.HealthPort, appLogger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		appLogger.Info("shutting down")
		cancel()
	}()

	worker.NewDispatchWorker(dispatcher, cfg.Dispatch.Interval, appLogger).Start(ctx)
}
