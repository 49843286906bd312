package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/billfox/dunning-api/internal/model"
	"github.com/billfox/dunning-api/internal/repository"
	apperrors "github.com/billfox/dunning-api/pkg/errors"
)

type sequenceRepository struct {
	*BaseRepository
}

func NewSequenceRepository(base *BaseRepository) repository.SequenceRepository {
	return &sequenceRepository{BaseRepository: base}
}

func (r *sequenceRepository) Get(ctx context.Context, id uuid.UUID) (*model.Sequence, error) {
	query := `
		SELECT id, name, active, automatic, actions, created_at, updated_at
		FROM sequences
		WHERE id = $1
	`
	var sequence model.Sequence
	err := r.db.GetContext(ctx, &sequence, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("sequence", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sequence: %w", err)
	}
	return &sequence, nil
}

func (r *sequenceRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	query := `
		UPDATE sequences
		SET active = $1, updated_at = $2
		WHERE id = $3
	`
	result, err := r.db.ExecContext(ctx, query, active, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update sequence: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return apperrors.NotFound("sequence", nil)
	}
	return nil
}
