package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/billfox/dunning-api/internal/model"
)

// CachedSequenceRepository memoizes sequence reads. Sequences are read once
// per invoice during reconciliation, so a short TTL pays off; SetActive
// invalidates the entry so reconciliation never sees a stale active flag.
type CachedSequenceRepository struct {
	inner SequenceRepository
	cache *cache.Cache
}

func NewCachedSequenceRepository(inner SequenceRepository, ttl, cleanupInterval time.Duration) *CachedSequenceRepository {
	return &CachedSequenceRepository{
		inner: inner,
		cache: cache.New(ttl, cleanupInterval),
	}
}

func (r *CachedSequenceRepository) Get(ctx context.Context, id uuid.UUID) (*model.Sequence, error) {
	if v, ok := r.cache.Get(id.String()); ok {
		return v.(*model.Sequence), nil
	}

	seq, err := r.inner.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	r.cache.SetDefault(id.String(), seq)
	return seq, nil
}

func (r *CachedSequenceRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	if err := r.inner.SetActive(ctx, id, active); err != nil {
		return err
	}
	r.cache.Delete(id.String())
	return nil
}
