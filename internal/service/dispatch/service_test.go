package dispatch

import (
	"context"
	"fmt"
	"io"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/billfox/dunning-api/internal/mailer"
	"github.com/billfox/dunning-api/internal/model"
	"github.com/billfox/dunning-api/internal/service/audit"
	apperrors "github.com/billfox/dunning-api/pkg/errors"
	"github.com/billfox/dunning-api/pkg/logger"
	"github.com/billfox/dunning-api/pkg/metrics"
)

// --- in-memory fakes -------------------------------------------------------

type fakeReminderRepo struct {
	reminders map[uuid.UUID]*model.Reminder
}

func newFakeReminderRepo() *fakeReminderRepo {
	return &fakeReminderRepo{reminders: make(map[uuid.UUID]*model.Reminder)}
}

func (r *fakeReminderRepo) Create(_ context.Context, rem *model.Reminder) error {
	cp := *rem
	r.reminders[cp.ID] = &cp
	return nil
}

func (r *fakeReminderRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(r.reminders, id)
	return nil
}

func (r *fakeReminderRepo) FindPending(_ context.Context, invoiceID, sequenceID uuid.UUID) ([]*model.Reminder, error) {
	return nil, nil
}

func (r *fakeReminderRepo) FindPendingByInvoice(_ context.Context, invoiceID uuid.UUID) ([]*model.Reminder, error) {
	return nil, nil
}

func (r *fakeReminderRepo) FindByInvoiceAndSequence(_ context.Context, invoiceID, sequenceID uuid.UUID) ([]*model.Reminder, error) {
	return nil, nil
}

func (r *fakeReminderRepo) FindBySequence(_ context.Context, sequenceID uuid.UUID) ([]*model.Reminder, error) {
	return nil, nil
}

func (r *fakeReminderRepo) FindDue(_ context.Context, now time.Time, limit int) ([]*model.Reminder, error) {
	var due []*model.Reminder
	for _, rem := range r.reminders {
		if rem.Status == model.ReminderStatusScheduled && !rem.ScheduledAt.After(now) {
			due = append(due, rem)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ScheduledAt.Before(due[j].ScheduledAt) })
	if len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (r *fakeReminderRepo) MarkSent(_ context.Context, id uuid.UUID, at time.Time) error {
	rem, ok := r.reminders[id]
	if !ok || rem.Status != model.ReminderStatusScheduled {
		return apperrors.NotFound("reminder", nil)
	}
	rem.Sent = true
	rem.Status = model.ReminderStatusSent
	rem.LastAttemptAt = &at
	return nil
}

func (r *fakeReminderRepo) MarkFailed(_ context.Context, id uuid.UUID, at time.Time) error {
	rem, ok := r.reminders[id]
	if !ok || rem.Status != model.ReminderStatusScheduled {
		return apperrors.NotFound("reminder", nil)
	}
	rem.Status = model.ReminderStatusFailed
	rem.Attempts = model.MaxAttempts
	rem.LastAttemptAt = &at
	return nil
}

func (r *fakeReminderRepo) Reschedule(_ context.Context, id uuid.UUID, scheduledAt time.Time, attempts int, attemptedAt time.Time) error {
	rem, ok := r.reminders[id]
	if !ok || rem.Status != model.ReminderStatusScheduled {
		return apperrors.NotFound("reminder", nil)
	}
	rem.ScheduledAt = scheduledAt
	rem.Attempts = attempts
	rem.LastAttemptAt = &attemptedAt
	return nil
}

// fakeSender fails the first failuresFor[to] calls for a recipient, then
// succeeds. calls counts every attempt per recipient.
type fakeSender struct {
	failuresFor map[string]int
	calls       map[string]int
}

func newFakeSender() *fakeSender {
	return &fakeSender{
		failuresFor: make(map[string]int),
		calls:       make(map[string]int),
	}
}

func (s *fakeSender) Send(_ context.Context, email *mailer.Email) error {
	s.calls[email.To]++
	if s.failuresFor[email.To] > 0 {
		s.failuresFor[email.To]--
		return fmt.Errorf("smtp unavailable")
	}
	return nil
}

// --- fixture ---------------------------------------------------------------

var testNow = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

func newService(repo *fakeReminderRepo, sender mailer.Sender) *Service {
	log := logger.NewLogger(&logger.Config{Level: logger.ErrorLevel, Output: io.Discard})
	auditor := audit.NewService(&fakeCronLogRepo{}, nil, log)

	return NewService(repo, sender, auditor, Config{
		BatchSize:        100,
		ImmediateRetries: 3,
		RetryDelay:       time.Millisecond,
		RescheduleDelay:  time.Hour,
	}, metrics.NewForTest(), log)
}

type fakeCronLogRepo struct {
	entries []*model.CronLog
}

func (r *fakeCronLogRepo) Append(_ context.Context, entry *model.CronLog) error {
	r.entries = append(r.entries, entry)
	return nil
}

func addReminder(repo *fakeReminderRepo, to string, scheduledAt time.Time, attempts int) *model.Reminder {
	rem := &model.Reminder{
		ID:          uuid.New(),
		InvoiceID:   uuid.New(),
		SequenceID:  uuid.New(),
		ScheduledAt: scheduledAt,
		Status:      model.ReminderStatusScheduled,
		Attempts:    attempts,
		Subject:     "Rappel",
		Body:        "corps",
		To:          to,
		Sender:      "compta@billfox.example",
	}
	repo.reminders[rem.ID] = rem
	return rem
}

// --- tests -----------------------------------------------------------------

func TestRunEmptyDueSet(t *testing.T) {
	repo := newFakeReminderRepo()
	svc := newService(repo, newFakeSender())

	report, err := svc.Run(context.Background(), testNow)
	require.NoError(t, err)
	assert.Equal(t, &Report{}, report)
}

func TestRunSendsDueReminder(t *testing.T) {
	repo := newFakeReminderRepo()
	sender := newFakeSender()
	svc := newService(repo, sender)

	rem := addReminder(repo, "a@example.com", testNow.Add(-time.Minute), 0)

	report, err := svc.Run(context.Background(), testNow)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, 1, report.Sent)
	assert.Equal(t, 1, sender.calls["a@example.com"])

	got := repo.reminders[rem.ID]
	assert.True(t, got.Sent)
	assert.Equal(t, model.ReminderStatusSent, got.Status)
	require.NotNil(t, got.LastAttemptAt)
	assert.Equal(t, testNow, *got.LastAttemptAt)
}

func TestRunIgnoresFutureReminders(t *testing.T) {
	repo := newFakeReminderRepo()
	sender := newFakeSender()
	svc := newService(repo, sender)

	addReminder(repo, "later@example.com", testNow.Add(time.Hour), 0)

	report, err := svc.Run(context.Background(), testNow)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Processed)
	assert.Empty(t, sender.calls)
}

func TestRunImmediateRetrySucceeds(t *testing.T) {
	repo := newFakeReminderRepo()
	sender := newFakeSender()
	sender.failuresFor["flaky@example.com"] = 2
	svc := newService(repo, sender)

	rem := addReminder(repo, "flaky@example.com", testNow, 0)

	report, err := svc.Run(context.Background(), testNow)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Sent)
	assert.Equal(t, 3, sender.calls["flaky@example.com"])
	// The persisted counter stays untouched on an in-pass recovery.
	assert.Equal(t, model.ReminderStatusSent, repo.reminders[rem.ID].Status)
	assert.Equal(t, 0, repo.reminders[rem.ID].Attempts)
}

func TestRunReschedulesAfterExhaustedImmediateRetries(t *testing.T) {
	repo := newFakeReminderRepo()
	sender := newFakeSender()
	sender.failuresFor["down@example.com"] = 10
	svc := newService(repo, sender)

	rem := addReminder(repo, "down@example.com", testNow, 0)

	report, err := svc.Run(context.Background(), testNow)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Sent)
	assert.Equal(t, 1, report.Rescheduled)
	assert.Equal(t, 0, report.Failed)
	require.Len(t, report.Errors, 1)

	// Exactly the in-pass budget, no same-pass resend after rescheduling.
	assert.Equal(t, 3, sender.calls["down@example.com"])

	got := repo.reminders[rem.ID]
	assert.Equal(t, model.ReminderStatusScheduled, got.Status)
	assert.Equal(t, 1, got.Attempts)
	assert.Equal(t, testNow.Add(time.Hour), got.ScheduledAt)
}

func TestRunMarksFailedAtRetryBound(t *testing.T) {
	repo := newFakeReminderRepo()
	sender := newFakeSender()
	sender.failuresFor["gone@example.com"] = 10
	svc := newService(repo, sender)

	rem := addReminder(repo, "gone@example.com", testNow, model.MaxAttempts-1)

	report, err := svc.Run(context.Background(), testNow)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 0, report.Rescheduled)

	got := repo.reminders[rem.ID]
	assert.Equal(t, model.ReminderStatusFailed, got.Status)
	assert.Equal(t, model.MaxAttempts, got.Attempts)

	// Permanently failed reminders never come due again.
	due, err := repo.FindDue(context.Background(), testNow.Add(24*time.Hour), 100)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestRunRetryBoundAcrossPasses(t *testing.T) {
	repo := newFakeReminderRepo()
	sender := newFakeSender()
	sender.failuresFor["dead@example.com"] = 1000
	svc := newService(repo, sender)

	rem := addReminder(repo, "dead@example.com", testNow, 0)

	now := testNow
	for pass := 0; pass < 3; pass++ {
		_, err := svc.Run(context.Background(), now)
		require.NoError(t, err)
		now = now.Add(time.Hour)
	}

	got := repo.reminders[rem.ID]
	assert.Equal(t, model.ReminderStatusFailed, got.Status)
	assert.Equal(t, model.MaxAttempts, got.Attempts)
}

func TestRunIsolatesFailures(t *testing.T) {
	repo := newFakeReminderRepo()
	sender := newFakeSender()
	sender.failuresFor["bad@example.com"] = 10
	svc := newService(repo, sender)

	addReminder(repo, "bad@example.com", testNow.Add(-2*time.Minute), 0)
	ok := addReminder(repo, "good@example.com", testNow.Add(-time.Minute), 0)

	report, err := svc.Run(context.Background(), testNow)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Processed)
	assert.Equal(t, 1, report.Sent)
	assert.Equal(t, 1, report.Rescheduled)

	assert.Equal(t, model.ReminderStatusSent, repo.reminders[ok.ID].Status)
}

func TestRunProcessesEarliestFirst(t *testing.T) {
	repo := newFakeReminderRepo()
	svc := newService(repo, newFakeSender())

	late := addReminder(repo, "late@example.com", testNow.Add(-time.Minute), 0)
	early := addReminder(repo, "early@example.com", testNow.Add(-time.Hour), 0)

	due, err := repo.FindDue(context.Background(), testNow, 100)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, early.ID, due[0].ID)
	assert.Equal(t, late.ID, due[1].ID)

	report, err := svc.Run(context.Background(), testNow)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Sent)
}

func TestRunBatchSizeLimitsPass(t *testing.T) {
	repo := newFakeReminderRepo()
	sender := newFakeSender()
	log := logger.NewLogger(&logger.Config{Level: logger.ErrorLevel, Output: io.Discard})
	auditor := audit.NewService(&fakeCronLogRepo{}, nil, log)
	svc := NewService(repo, sender, auditor, Config{
		BatchSize:        1,
		ImmediateRetries: 3,
		RetryDelay:       time.Millisecond,
		RescheduleDelay:  time.Hour,
	}, metrics.NewForTest(), log)

	addReminder(repo, "a@example.com", testNow.Add(-2*time.Minute), 0)
	addReminder(repo, "b@example.com", testNow.Add(-time.Minute), 0)

	report, err := svc.Run(context.Background(), testNow)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Processed)
}
