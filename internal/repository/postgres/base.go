package postgres

import (
	"github.com/jmoiron/sqlx"
)

// BaseRepository carries the shared database handle for the postgres
// repositories.
type BaseRepository struct {
	db *sqlx.DB
}

func NewBaseRepository(db *sqlx.DB) *BaseRepository {
	return &BaseRepository{db: db}
}
