package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/billfox/dunning-api/internal/mailer"
	"github.com/billfox/dunning-api/internal/model"
	"github.com/billfox/dunning-api/internal/repository"
	"github.com/billfox/dunning-api/internal/service/audit"
	apperrors "github.com/billfox/dunning-api/pkg/errors"
	"github.com/billfox/dunning-api/pkg/logger"
	"github.com/billfox/dunning-api/pkg/metrics"
)

// Config holds the dispatch policy knobs.
type Config struct {
	// BatchSize caps how many due reminders one pass claims.
	BatchSize int
	// ImmediateRetries is the number of send attempts within a single
	// pass before the persisted attempts counter is touched.
	ImmediateRetries int
	// RetryDelay sits between immediate attempts.
	RetryDelay time.Duration
	// RescheduleDelay pushes a failed reminder to a later pass.
	RescheduleDelay time.Duration
}

func DefaultConfig() Config {
	return Config{
		BatchSize:        200,
		ImmediateRetries: 3,
		RetryDelay:       2 * time.Second,
		RescheduleDelay:  time.Hour,
	}
}

// Report summarizes one dispatch pass. Per-reminder failures are collected
// in Errors; they never fail the pass itself.
type Report struct {
	Processed   int      `json:"processed"`
	Sent        int      `json:"sent"`
	Failed      int      `json:"failed"`
	Rescheduled int      `json:"rescheduled"`
	Errors      []string `json:"errors,omitempty"`
}

// Service runs the due-reminder send loop. Reminders are processed
// sequentially so the persisted attempts counter and status move exactly
// once per pass.
type Service struct {
	reminders repository.ReminderRepository
	sender    mailer.Sender
	auditor   *audit.Service
	config    Config
	metrics   *metrics.Metrics
	logger    *logger.Logger
}

func NewService(
	reminders repository.ReminderRepository,
	sender mailer.Sender,
	auditor *audit.Service,
	config Config,
	m *metrics.Metrics,
	log *logger.Logger,
) *Service {
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultConfig().BatchSize
	}
	if config.ImmediateRetries <= 0 {
		config.ImmediateRetries = DefaultConfig().ImmediateRetries
	}
	if config.RescheduleDelay <= 0 {
		config.RescheduleDelay = DefaultConfig().RescheduleDelay
	}

	return &Service{
		reminders: reminders,
		sender:    sender,
		auditor:   auditor,
		config:    config,
		metrics:   m,
		logger:    log,
	}
}

// Run executes one dispatch pass over the due-set snapshot taken at entry.
// The pass always completes; errors on individual reminders are isolated.
func (s *Service) Run(ctx context.Context, now time.Time) (*Report, error) {
	timer := prometheus.NewTimer(s.metrics.DispatchDuration)
	defer timer.ObserveDuration()

	due, err := s.reminders.FindDue(ctx, now, s.config.BatchSize)
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("failed to find due reminders: %w", err))
	}
	s.metrics.DueQueueSize.Set(float64(len(due)))

	report := &Report{}

	if len(due) == 0 {
		s.logger.Debug("no due reminders")
		s.auditor.Record(ctx, model.CronLogDispatch, nil, report, nil)
		return report, nil
	}

	s.logger.Info("dispatching due reminders", "count", len(due))

	for _, rem := range due {
		report.Processed++
		s.processReminder(ctx, rem, now, report)
	}

	s.auditor.Record(ctx, model.CronLogDispatch, nil, report, report.Errors)
	s.logger.Info("dispatch pass complete",
		"processed", report.Processed,
		"sent", report.Sent,
		"failed", report.Failed,
		"rescheduled", report.Rescheduled)

	return report, nil
}

// processReminder advances one reminder's state machine: sent on success,
// rescheduled while the attempts budget lasts, failed once it is spent.
func (s *Service) processReminder(ctx context.Context, rem *model.Reminder, now time.Time, report *Report) {
	sendErr := s.sendWithRetries(ctx, rem)

	if sendErr == nil {
		if err := s.reminders.MarkSent(ctx, rem.ID, now); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("reminder %s: mark sent: %v", rem.ID, err))
			s.logger.Error(err, "failed to mark reminder sent", "reminder_id", rem.ID.String())
			return
		}
		report.Sent++
		s.metrics.RemindersSent.Inc()
		return
	}

	report.Errors = append(report.Errors, fmt.Sprintf("reminder %s: %v", rem.ID, sendErr))

	attempts := rem.Attempts + 1
	if attempts >= model.MaxAttempts {
		if err := s.reminders.MarkFailed(ctx, rem.ID, now); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("reminder %s: mark failed: %v", rem.ID, err))
			s.logger.Error(err, "failed to mark reminder failed", "reminder_id", rem.ID.String())
			return
		}
		report.Failed++
		s.metrics.RemindersFailed.Inc()
		s.logger.Warn("reminder permanently failed",
			"reminder_id", rem.ID.String(),
			"attempts", attempts)
		return
	}

	if err := s.reminders.Reschedule(ctx, rem.ID, now.Add(s.config.RescheduleDelay), attempts, now); err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("reminder %s: reschedule: %v", rem.ID, err))
		s.logger.Error(err, "failed to reschedule reminder", "reminder_id", rem.ID.String())
		return
	}
	report.Rescheduled++
	s.metrics.RemindersRescheduled.Inc()
}

// sendWithRetries makes the bounded immediate attempts of one pass. The
// in-pass counter is local; only the outcome touches the persisted field.
func (s *Service) sendWithRetries(ctx context.Context, rem *model.Reminder) error {
	email := &mailer.Email{
		To:      rem.To,
		CC:      rem.CC,
		Subject: rem.Subject,
		Body:    rem.Body,
		Sender:  rem.Sender,
	}

	var err error
	for attempt := 0; attempt < s.config.ImmediateRetries; attempt++ {
		if attempt > 0 {
			s.metrics.SendRetries.Inc()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.config.RetryDelay):
			}
		}

		if err = s.sender.Send(ctx, email); err == nil {
			return nil
		}
		s.logger.Warn("send attempt failed",
			"reminder_id", rem.ID.String(),
			"attempt", attempt+1,
			"error", err.Error())
	}
	return err
}
