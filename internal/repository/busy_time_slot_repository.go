package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/office-appointment-api/internal/models"
)

const busySlotColumns = `id, date, start_time, end_time, reason, created_at`

// BusyTimeSlotRepository persists sub-day blocks.
type BusyTimeSlotRepository struct {
	db  *sqlx.DB
	loc *time.Location
}

// NewBusyTimeSlotRepository creates a new repository.
func NewBusyTimeSlotRepository(db *sqlx.DB, loc *time.Location) *BusyTimeSlotRepository {
	return &BusyTimeSlotRepository{db: db, loc: locationOrLocal(loc)}
}

func (r *BusyTimeSlotRepository) normalize(items []models.BusyTimeSlot) {
	for i := range items {
		items[i].Date = localDate(items[i].Date, r.loc)
		items[i].StartTime = items[i].StartTime.In(r.loc)
		items[i].EndTime = items[i].EndTime.In(r.loc)
	}
}

// ListByDate returns slots on date ordered by start.
func (r *BusyTimeSlotRepository) ListByDate(ctx context.Context, date time.Time) ([]models.BusyTimeSlot, error) {
	query := `SELECT ` + busySlotColumns + ` FROM busy_time_slots WHERE date = $1 ORDER BY start_time ASC, id ASC`
	var slots []models.BusyTimeSlot
	if err := sqlx.SelectContext(ctx, executor(ctx, r.db), &slots, query, dateArg(date)); err != nil {
		return nil, fmt.Errorf("list busy slots: %w", err)
	}
	r.normalize(slots)
	return slots, nil
}

// ListRange returns slots between from and to inclusive.
func (r *BusyTimeSlotRepository) ListRange(ctx context.Context, from, to time.Time) ([]models.BusyTimeSlot, error) {
	query := `SELECT ` + busySlotColumns + ` FROM busy_time_slots WHERE date BETWEEN $1 AND $2 ORDER BY date ASC, start_time ASC, id ASC`
	var slots []models.BusyTimeSlot
	if err := sqlx.SelectContext(ctx, executor(ctx, r.db), &slots, query, dateArg(from), dateArg(to)); err != nil {
		return nil, fmt.Errorf("list busy slot range: %w", err)
	}
	r.normalize(slots)
	return slots, nil
}

// Create inserts a slot and assigns its identifier.
func (r *BusyTimeSlotRepository) Create(ctx context.Context, slot *models.BusyTimeSlot) error {
	slot.CreatedAt = time.Now().UTC()
	const query = `INSERT INTO busy_time_slots (date, start_time, end_time, reason, created_at) VALUES ($1, $2, $3, $4, $5) RETURNING id`
	row := executor(ctx, r.db).QueryRowxContext(ctx, query, dateArg(slot.Date), slot.StartTime, slot.EndTime, slot.Reason, slot.CreatedAt)
	if err := row.Scan(&slot.ID); err != nil {
		return fmt.Errorf("create busy slot: %w", err)
	}
	return nil
}

// Delete removes a slot. It returns sql.ErrNoRows when the slot does not exist.
func (r *BusyTimeSlotRepository) Delete(ctx context.Context, id int64) error {
	result, err := executor(ctx, r.db).ExecContext(ctx, `DELETE FROM busy_time_slots WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete busy slot: %w", err)
	}
	return expectAffected(result, "delete busy slot")
}
