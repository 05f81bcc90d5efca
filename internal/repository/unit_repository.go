package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/office-appointment-api/internal/models"
)

// UnitRepository reads organizational units.
type UnitRepository struct {
	db *sqlx.DB
}

// NewUnitRepository creates a new repository.
func NewUnitRepository(db *sqlx.DB) *UnitRepository {
	return &UnitRepository{db: db}
}

// FindByID returns a unit by identifier.
func (r *UnitRepository) FindByID(ctx context.Context, id int64) (*models.Unit, error) {
	const query = `SELECT id, name, email, active FROM units WHERE id = $1`
	var unit models.Unit
	if err := sqlx.GetContext(ctx, executor(ctx, r.db), &unit, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find unit: %w", err)
	}
	return &unit, nil
}
