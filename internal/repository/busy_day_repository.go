package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/office-appointment-api/internal/models"
)

// BusyDayRepository persists whole-day blocks.
type BusyDayRepository struct {
	db  *sqlx.DB
	loc *time.Location
}

// NewBusyDayRepository creates a new repository.
func NewBusyDayRepository(db *sqlx.DB, loc *time.Location) *BusyDayRepository {
	return &BusyDayRepository{db: db, loc: locationOrLocal(loc)}
}

// Exists reports whether date is blocked.
func (r *BusyDayRepository) Exists(ctx context.Context, date time.Time) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM busy_days WHERE date = $1)`
	var exists bool
	if err := sqlx.GetContext(ctx, executor(ctx, r.db), &exists, query, dateArg(date)); err != nil {
		return false, fmt.Errorf("check busy day: %w", err)
	}
	return exists, nil
}

// Upsert records date as blocked, returning the existing row when already present.
func (r *BusyDayRepository) Upsert(ctx context.Context, date time.Time) (*models.BusyDay, error) {
	const query = `INSERT INTO busy_days (date, created_at) VALUES ($1, $2)
ON CONFLICT (date) DO UPDATE SET date = EXCLUDED.date
RETURNING id, date, created_at`
	var day models.BusyDay
	if err := sqlx.GetContext(ctx, executor(ctx, r.db), &day, query, dateArg(date), time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("upsert busy day: %w", err)
	}
	day.Date = localDate(day.Date, r.loc)
	return &day, nil
}

// DeleteByDate removes the block on date. It returns sql.ErrNoRows when date was not blocked.
func (r *BusyDayRepository) DeleteByDate(ctx context.Context, date time.Time) (*models.BusyDay, error) {
	const query = `DELETE FROM busy_days WHERE date = $1 RETURNING id, date, created_at`
	var day models.BusyDay
	if err := sqlx.GetContext(ctx, executor(ctx, r.db), &day, query, dateArg(date)); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("delete busy day: %w", err)
	}
	day.Date = localDate(day.Date, r.loc)
	return &day, nil
}

// ListRange returns busy days between from and to inclusive.
func (r *BusyDayRepository) ListRange(ctx context.Context, from, to time.Time) ([]models.BusyDay, error) {
	const query = `SELECT id, date, created_at FROM busy_days WHERE date BETWEEN $1 AND $2 ORDER BY date ASC`
	var days []models.BusyDay
	if err := sqlx.SelectContext(ctx, executor(ctx, r.db), &days, query, dateArg(from), dateArg(to)); err != nil {
		return nil, fmt.Errorf("list busy days: %w", err)
	}
	for i := range days {
		days[i].Date = localDate(days[i].Date, r.loc)
	}
	return days, nil
}
