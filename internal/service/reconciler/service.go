package reconciler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/billfox/dunning-api/internal/model"
	"github.com/billfox/dunning-api/internal/repository"
	"github.com/billfox/dunning-api/internal/service/audit"
	"github.com/billfox/dunning-api/internal/template"
	apperrors "github.com/billfox/dunning-api/pkg/errors"
	"github.com/billfox/dunning-api/pkg/logger"
	"github.com/billfox/dunning-api/pkg/metrics"
)

// invoiceTimeout bounds the store work done for a single invoice. A timeout
// aborts that invoice only, never the batch.
const invoiceTimeout = 10 * time.Second

// Service keeps the reminder set consistent with sequence and invoice
// state. All three entry points are idempotent: re-running with unchanged
// inputs leaves the reminder set as it is and reports zero creations.
type Service struct {
	invoices  repository.InvoiceRepository
	sequences repository.SequenceRepository
	reminders repository.ReminderRepository
	templates *template.Engine
	auditor   *audit.Service
	metrics   *metrics.Metrics
	logger    *logger.Logger
	now       func() time.Time
}

func NewService(
	invoices repository.InvoiceRepository,
	sequences repository.SequenceRepository,
	reminders repository.ReminderRepository,
	templates *template.Engine,
	auditor *audit.Service,
	m *metrics.Metrics,
	log *logger.Logger,
) *Service {
	return &Service{
		invoices:  invoices,
		sequences: sequences,
		reminders: reminders,
		templates: templates,
		auditor:   auditor,
		metrics:   m,
		logger:    log,
		now:       time.Now,
	}
}

// WithClock overrides the service clock. Used by tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// PopulateReport summarizes one Populate run.
type PopulateReport struct {
	Processed int      `json:"processed"`
	Created   int      `json:"created"`
	Skipped   int      `json:"skipped"`
	Deleted   int      `json:"deleted"`
	Errors    []string `json:"errors,omitempty"`
}

// CleanupReport summarizes one Cleanup run.
type CleanupReport struct {
	Processed int      `json:"processed"`
	Deleted   int      `json:"deleted"`
	Kept      int      `json:"kept"`
	Errors    []string `json:"errors,omitempty"`
}

// AssignReport summarizes one manual assignment.
type AssignReport struct {
	Created int `json:"created"`
	Deleted int `json:"deleted"`
}

// Populate generates the first reminder for every unpaid invoice assigned
// to a sequence that just became active. Invoices with sent history keep
// it and get nothing new; pending reminders left over from a different
// action set are replaced, matching ones are kept as they are.
func (s *Service) Populate(ctx context.Context, sequenceID uuid.UUID) (*PopulateReport, error) {
	if sequenceID == uuid.Nil {
		return nil, apperrors.Validation("sequence id is required", nil)
	}

	timer := prometheus.NewTimer(s.metrics.ReconcileDuration.WithLabelValues("populate"))
	defer timer.ObserveDuration()

	seq, err := s.sequences.Get(ctx, sequenceID)
	if err != nil {
		return nil, err
	}

	report := &PopulateReport{}

	action, ok := seq.FirstAction()
	if !ok {
		s.logger.Info("sequence has no actions, nothing to populate", "sequence_id", sequenceID.String())
		s.auditor.Record(ctx, model.CronLogPopulate, &sequenceID, report, nil)
		return report, nil
	}

	invoices, err := s.invoices.ListBySequence(ctx, sequenceID, true)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}

	for _, inv := range invoices {
		report.Processed++

		outcome, invErr := s.reconcileInvoice(ctx, inv, seq, action)
		report.Deleted += outcome.deleted
		if invErr != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("invoice %s: %v", inv.ID, invErr))
			s.logger.Error(invErr, "failed to reconcile invoice",
				"invoice_id", inv.ID.String(),
				"sequence_id", sequenceID.String())
			continue
		}
		if outcome.created {
			report.Created++
		}
		if outcome.skipped {
			report.Skipped++
		}
	}

	s.auditor.Record(ctx, model.CronLogPopulate, &sequenceID, report, report.Errors)
	return report, nil
}

// Cleanup deletes every scheduled reminder of a sequence that just became
// inactive. Sent and permanently failed reminders are history and stay
// untouched.
func (s *Service) Cleanup(ctx context.Context, sequenceID uuid.UUID) (*CleanupReport, error) {
	if sequenceID == uuid.Nil {
		return nil, apperrors.Validation("sequence id is required", nil)
	}

	timer := prometheus.NewTimer(s.metrics.ReconcileDuration.WithLabelValues("cleanup"))
	defer timer.ObserveDuration()

	if _, err := s.sequences.Get(ctx, sequenceID); err != nil {
		return nil, err
	}

	// Cleanup is unconditional: paid invoices are swept too.
	invoices, err := s.invoices.ListBySequence(ctx, sequenceID, false)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}

	report := &CleanupReport{}

	for _, inv := range invoices {
		report.Processed++

		invCtx, cancel := context.WithTimeout(ctx, invoiceTimeout)
		deleted, kept, invErr := s.sweepInvoice(invCtx, inv.ID, sequenceID)
		cancel()

		report.Deleted += deleted
		report.Kept += kept
		if invErr != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("invoice %s: %v", inv.ID, invErr))
			s.logger.Error(invErr, "failed to clean up invoice",
				"invoice_id", inv.ID.String(),
				"sequence_id", sequenceID.String())
		}
	}

	s.auditor.Record(ctx, model.CronLogCleanup, &sequenceID, report, report.Errors)
	return report, nil
}

// AssignManually reconciles one invoice after a user changed its sequence
// assignment. Pending reminders that no longer fit the target sequence are
// removed, so the invoice ends with at most one outstanding reminder.
// Reminders already sent are never regenerated.
func (s *Service) AssignManually(ctx context.Context, invoiceID, sequenceID uuid.UUID) (*AssignReport, error) {
	if invoiceID == uuid.Nil {
		return nil, apperrors.Validation("invoice id is required", nil)
	}
	if sequenceID == uuid.Nil {
		return nil, apperrors.Validation("sequence id is required", nil)
	}

	timer := prometheus.NewTimer(s.metrics.ReconcileDuration.WithLabelValues("assign"))
	defer timer.ObserveDuration()

	inv, err := s.invoices.Get(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	seq, err := s.sequences.Get(ctx, sequenceID)
	if err != nil {
		return nil, err
	}

	report := &AssignReport{}

	pending, err := s.reminders.FindPendingByInvoice(ctx, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to find pending reminders: %w", err)
	}

	action, hasAction := seq.FirstAction()

	// An inactive or empty sequence gets the association recorded and no
	// reminder; whatever the previous assignment scheduled is stale now.
	if !seq.Active || !hasAction {
		deleted, err := s.deleteAll(ctx, pending)
		report.Deleted += deleted
		if err != nil {
			return nil, err
		}
		s.auditor.Record(ctx, model.CronLogAssign, &sequenceID, report, nil)
		return report, nil
	}

	existing, err := s.reminders.FindByInvoiceAndSequence(ctx, invoiceID, sequenceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load reminders: %w", err)
	}

	if hasSent(existing) {
		// A dunning cycle already ran for this pair; drop stale pending
		// reminders and do not restart it.
		deleted, err := s.deleteAll(ctx, pending)
		report.Deleted += deleted
		if err != nil {
			return nil, err
		}
		s.auditor.Record(ctx, model.CronLogAssign, &sequenceID, report, nil)
		return report, nil
	}

	desired := s.renderReminder(inv, seq, action)

	kept := false
	for _, rem := range pending {
		if !kept && rem.SequenceID == sequenceID && matchesContent(rem, desired) {
			kept = true
			continue
		}
		if err := s.deleteReminder(ctx, rem.ID); err != nil {
			return nil, err
		}
		report.Deleted++
	}

	if !kept {
		if err := s.reminders.Create(ctx, desired); err != nil {
			return nil, fmt.Errorf("failed to create reminder: %w", err)
		}
		s.metrics.RemindersCreated.Inc()
		report.Created++
	}

	s.auditor.Record(ctx, model.CronLogAssign, &sequenceID, report, nil)
	return report, nil
}

type reconcileOutcome struct {
	created bool
	skipped bool
	deleted int
}

// reconcileInvoice applies the per-invoice populate step. A pending
// reminder whose rendered content already matches the first action is kept
// untouched, which is what makes back-to-back Populate runs idempotent.
func (s *Service) reconcileInvoice(ctx context.Context, inv *model.Invoice, seq *model.Sequence, action model.Action) (reconcileOutcome, error) {
	ctx, cancel := context.WithTimeout(ctx, invoiceTimeout)
	defer cancel()

	var out reconcileOutcome

	existing, err := s.reminders.FindByInvoiceAndSequence(ctx, inv.ID, seq.ID)
	if err != nil {
		return out, fmt.Errorf("failed to load reminders: %w", err)
	}

	sentExists := hasSent(existing)

	var desired *model.Reminder
	if !sentExists {
		desired = s.renderReminder(inv, seq, action)
	}

	kept := false
	for _, rem := range existing {
		if !rem.Pending() {
			continue
		}
		if desired != nil && !kept && matchesContent(rem, desired) {
			kept = true
			continue
		}
		if err := s.deleteReminder(ctx, rem.ID); err != nil {
			return out, err
		}
		out.deleted++
	}

	if sentExists || kept {
		out.skipped = true
		return out, nil
	}

	if err := s.reminders.Create(ctx, desired); err != nil {
		return out, fmt.Errorf("failed to create reminder: %w", err)
	}
	s.metrics.RemindersCreated.Inc()
	out.created = true
	return out, nil
}

// sweepInvoice deletes the scheduled reminders of one (invoice, sequence)
// pair and counts the terminal ones that are kept as history.
func (s *Service) sweepInvoice(ctx context.Context, invoiceID, sequenceID uuid.UUID) (deleted, kept int, err error) {
	existing, err := s.reminders.FindByInvoiceAndSequence(ctx, invoiceID, sequenceID)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to load reminders: %w", err)
	}

	for _, rem := range existing {
		if !rem.Pending() {
			kept++
			continue
		}
		if err := s.deleteReminder(ctx, rem.ID); err != nil {
			return deleted, kept, err
		}
		deleted++
	}
	return deleted, kept, nil
}

// renderReminder builds the reminder the first action of a sequence calls
// for, templates resolved against the invoice.
func (s *Service) renderReminder(inv *model.Invoice, seq *model.Sequence, action model.Action) *model.Reminder {
	now := s.now()

	scheduledAt := now
	if action.DelayDays > 0 {
		scheduledAt = now.AddDate(0, 0, action.DelayDays)
	}

	to := s.templates.Render(action.To, inv)
	if to == "" {
		to = inv.PayerEmail
	}

	return &model.Reminder{
		ID:          uuid.New(),
		InvoiceID:   inv.ID,
		SequenceID:  seq.ID,
		ScheduledAt: scheduledAt,
		Status:      model.ReminderStatusScheduled,
		Attempts:    0,
		Subject:     s.templates.Render(action.Subject, inv),
		Body:        s.templates.Render(action.Body, inv),
		To:          to,
		CC:          s.templates.Render(action.CC, inv),
		Sender:      action.SenderEmail,
	}
}

func (s *Service) deleteAll(ctx context.Context, reminders []*model.Reminder) (int, error) {
	deleted := 0
	for _, rem := range reminders {
		if err := s.deleteReminder(ctx, rem.ID); err != nil {
			return deleted, err
		}
		deleted++
	}
	return deleted, nil
}

func (s *Service) deleteReminder(ctx context.Context, id uuid.UUID) error {
	if err := s.reminders.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete reminder %s: %w", id, err)
	}
	s.metrics.RemindersDeleted.Inc()
	return nil
}

// matchesContent compares the rendered payload of an existing pending
// reminder with what the current action set would generate. Scheduling and
// attempt bookkeeping are ignored: a mid-retry reminder with the same
// content is still the same reminder.
func matchesContent(existing, desired *model.Reminder) bool {
	return existing.Subject == desired.Subject &&
		existing.Body == desired.Body &&
		existing.To == desired.To &&
		existing.CC == desired.CC &&
		existing.Sender == desired.Sender
}

// hasSent checks for delivered history only. A permanently failed reminder
// does not block regeneration.
func hasSent(reminders []*model.Reminder) bool {
	for _, rem := range reminders {
		if rem.Delivered() {
			return true
		}
	}
	return false
}
