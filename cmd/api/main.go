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
	"golang.org/x/time/rate"

	"github.com/billfox/dunning-api/internal/config"
	"github.com/billfox/dunning-api/internal/handler"
	dispatchHandler "github.com/billfox/dunning-api/internal/handler/dispatch"
	invoiceHandler "github.com/billfox/dunning-api/internal/handler/invoice"
	sequenceHandler "github.com/billfox/dunning-api/internal/handler/sequence"
	"github.com/billfox/dunning-api/internal/mailer"
	"github.com/billfox/dunning-api/internal/repository"
	"github.com/billfox/dunning-api/internal/repository/postgres"
	"github.com/billfox/dunning-api/internal/router"
	auditService "github.com/billfox/dunning-api/internal/service/audit"
	dispatchService "github.com/billfox/dunning-api/internal/service/dispatch"
	reconcilerService "github.com/billfox/dunning-api/internal/service/reconciler"
	"github.com/billfox/dunning-api/internal/template"
	"github.com/billfox/dunning-api/pkg/logger"
	"github.com/billfox/dunning-api/pkg/messaging"
	redisbroker "github.com/billfox/dunning-api/pkg/messaging/redis"
	"github.com/billfox/dunning-api/pkg/metrics"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLogger := logger.NewLogger(nil)

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	// Repositories
	base := postgres.NewBaseRepository(db)
	invoiceRepo := postgres.NewInvoiceRepository(base)
	sequenceRepo := repository.NewCachedSequenceRepository(
		postgres.NewSequenceRepository(base),
		5*time.Minute,
		15*time.Minute,
	)
	reminderRepo := postgres.NewReminderRepository(base)
	cronLogRepo := postgres.NewCronLogRepository(base)

	// Message broker is optional; without it audit entries are only persisted.
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

	m := metrics.NewMetrics("dunning", "api")

	// Services
	auditor := auditService.NewService(cronLogRepo, broker, appLogger)
	templates := template.NewEngine()
	reconciler := reconcilerService.NewService(
		invoiceRepo,
		sequenceRepo,
		reminderRepo,
		templates,
		auditor,
		m,
		appLogger,
	)

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

	// Router
	r := router.NewRouter(
		handler.NewHandler(),
		router.Config{RateLimit: rate.Limit(100), RateBurst: 200},
		sequenceHandler.NewHandler(reconciler, sequenceRepo, reminderRepo),
		invoiceHandler.NewHandler(reconciler, invoiceRepo),
		dispatchHandler.NewHandler(dispatcher),
	)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: r.Engine(),
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("forced shutdown")
	}
}
