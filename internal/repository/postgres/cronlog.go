package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/billfox/dunning-api/internal/model"
	"github.com/billfox/dunning-api/internal/repository"
)

type cronLogRepository struct {
	*BaseRepository
}

func NewCronLogRepository(base *BaseRepository) repository.CronLogRepository {
	return &cronLogRepository{BaseRepository: base}
}

func (r *cronLogRepository) Append(ctx context.Context, entry *model.CronLog) error {
	query := `
		INSERT INTO cron_logs (id, kind, sequence_id, counts, errors, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	entry.CreatedAt = time.Now()

	_, err := r.db.ExecContext(ctx, query,
		entry.ID,
		entry.Kind,
		entry.SequenceID,
		entry.Counts,
		entry.Errors,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append cron log: %w", err)
	}
	return nil
}
