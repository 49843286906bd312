package audit

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/billfox/dunning-api/internal/model"
	"github.com/billfox/dunning-api/internal/repository"
	"github.com/billfox/dunning-api/pkg/logger"
	"github.com/billfox/dunning-api/pkg/messaging"
)

const auditChannel = "dunning.audit"

// Service appends run summaries to the cron log. Recording is
// fire-and-forget: a failed append is logged and swallowed, it never fails
// the operation being audited.
type Service struct {
	repo   repository.CronLogRepository
	broker messaging.Broker
	logger *logger.Logger
}

// NewService builds an audit service. broker may be nil; entries are then
// only persisted.
func NewService(repo repository.CronLogRepository, broker messaging.Broker, log *logger.Logger) *Service {
	return &Service{
		repo:   repo,
		broker: broker,
		logger: log,
	}
}

// Record persists one run summary and mirrors it to the message broker.
func (s *Service) Record(ctx context.Context, kind model.CronLogKind, sequenceID *uuid.UUID, counts interface{}, errs []string) {
	countsJSON, err := json.Marshal(counts)
	if err != nil {
		s.logger.Error(err, "failed to marshal audit counts", "kind", string(kind))
		return
	}

	var errsJSON json.RawMessage
	if len(errs) > 0 {
		errsJSON, err = json.Marshal(errs)
		if err != nil {
			s.logger.Error(err, "failed to marshal audit errors", "kind", string(kind))
		}
	}

	entry := &model.CronLog{
		Kind:       kind,
		SequenceID: sequenceID,
		Counts:     countsJSON,
		Errors:     errsJSON,
	}

	if err := s.repo.Append(ctx, entry); err != nil {
		s.logger.Error(err, "failed to append cron log", "kind", string(kind))
	}

	if s.broker != nil {
		if err := s.broker.Publish(ctx, auditChannel, entry); err != nil {
			s.logger.Warn("failed to publish audit entry", "kind", string(kind), "error", err.Error())
		}
	}
}
