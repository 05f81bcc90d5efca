package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/office-appointment-api/internal/models"
)

const appointmentColumns = `id, full_name, user_id, unit_id, appointment_date, start_time, end_time, status, agenda, email, created_by, is_deleted, created_at, updated_at`

// AppointmentRepository persists appointments.
type AppointmentRepository struct {
	db  *sqlx.DB
	loc *time.Location
}

// NewAppointmentRepository creates a new repository. Values read back are expressed in loc.
func NewAppointmentRepository(db *sqlx.DB, loc *time.Location) *AppointmentRepository {
	return &AppointmentRepository{db: db, loc: locationOrLocal(loc)}
}

func (r *AppointmentRepository) normalize(a *models.Appointment) {
	a.AppointmentDate = localDate(a.AppointmentDate, r.loc)
	a.StartTime = a.StartTime.In(r.loc)
	a.EndTime = a.EndTime.In(r.loc)
}

func (r *AppointmentRepository) normalizeAll(items []models.Appointment) {
	for i := range items {
		r.normalize(&items[i])
	}
}

// FindConflicting returns approved, non-deleted appointments on date whose range overlaps [start, end).
func (r *AppointmentRepository) FindConflicting(ctx context.Context, date, start, end time.Time, excludeID *int64) ([]models.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments
WHERE appointment_date = $1 AND is_deleted = FALSE AND status = $2 AND start_time < $3 AND end_time > $4`
	args := []interface{}{dateArg(date), models.AppointmentStatusApproved, end, start}
	if excludeID != nil {
		query += ` AND id <> $5`
		args = append(args, *excludeID)
	}
	query += ` ORDER BY start_time ASC, id ASC`

	var items []models.Appointment
	if err := sqlx.SelectContext(ctx, executor(ctx, r.db), &items, query, args...); err != nil {
		return nil, fmt.Errorf("find conflicting appointments: %w", err)
	}
	r.normalizeAll(items)
	return items, nil
}

// ListByDateAndStatuses returns non-deleted appointments on date with one of the given statuses.
func (r *AppointmentRepository) ListByDateAndStatuses(ctx context.Context, date time.Time, statuses []models.AppointmentStatus) ([]models.Appointment, error) {
	values := make([]string, len(statuses))
	for i, s := range statuses {
		values[i] = string(s)
	}
	query := `SELECT ` + appointmentColumns + ` FROM appointments
WHERE appointment_date = $1 AND is_deleted = FALSE AND status = ANY($2) ORDER BY start_time ASC, id ASC`

	var items []models.Appointment
	if err := sqlx.SelectContext(ctx, executor(ctx, r.db), &items, query, dateArg(date), pq.Array(values)); err != nil {
		return nil, fmt.Errorf("list appointments by date: %w", err)
	}
	r.normalizeAll(items)
	return items, nil
}

// FindByID returns an appointment, including soft-deleted rows.
func (r *AppointmentRepository) FindByID(ctx context.Context, id int64) (*models.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = $1`
	var appointment models.Appointment
	if err := sqlx.GetContext(ctx, executor(ctx, r.db), &appointment, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find appointment: %w", err)
	}
	r.normalize(&appointment)
	return &appointment, nil
}

// List returns appointments matching filter with the total count.
func (r *AppointmentRepository) List(ctx context.Context, filter models.AppointmentFilter) ([]models.Appointment, int, error) {
	conditions := []string{"is_deleted = $1"}
	args := []interface{}{filter.IsDeleted}

	if filter.Status != nil {
		args = append(args, *filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Date != nil {
		args = append(args, dateArg(*filter.Date))
		conditions = append(conditions, fmt.Sprintf("appointment_date = $%d", len(args)))
	}
	if filter.From != nil {
		args = append(args, dateArg(*filter.From))
		conditions = append(conditions, fmt.Sprintf("appointment_date >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, dateArg(*filter.To))
		conditions = append(conditions, fmt.Sprintf("appointment_date <= $%d", len(args)))
	}
	if filter.UnitID != nil {
		args = append(args, *filter.UnitID)
		conditions = append(conditions, fmt.Sprintf("unit_id = $%d", len(args)))
	}
	if filter.UserID != nil {
		args = append(args, *filter.UserID)
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", len(args)))
	}

	where := " FROM appointments WHERE " + strings.Join(conditions, " AND ")

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("SELECT %s%s ORDER BY appointment_date ASC, start_time ASC, id ASC LIMIT %d OFFSET %d", appointmentColumns, where, pageSize, offset)
	exec := executor(ctx, r.db)

	var items []models.Appointment
	if err := sqlx.SelectContext(ctx, exec, &items, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list appointments: %w", err)
	}
	r.normalizeAll(items)

	var total int
	if err := sqlx.GetContext(ctx, exec, &total, "SELECT COUNT(*)"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count appointments: %w", err)
	}
	return items, total, nil
}

// Create inserts an appointment and assigns its identifier.
func (r *AppointmentRepository) Create(ctx context.Context, a *models.Appointment) error {
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now

	const query = `INSERT INTO appointments (full_name, user_id, unit_id, appointment_date, start_time, end_time, status, agenda, email, created_by, is_deleted, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, FALSE, $11, $12) RETURNING id`
	row := executor(ctx, r.db).QueryRowxContext(ctx, query,
		a.FullName, a.UserID, a.UnitID, dateArg(a.AppointmentDate), a.StartTime, a.EndTime,
		a.Status, a.Agenda, a.Email, a.CreatedBy, a.CreatedAt, a.UpdatedAt)
	if err := row.Scan(&a.ID); err != nil {
		return fmt.Errorf("create appointment: %w", err)
	}
	a.IsDeleted = false
	return nil
}

// Update writes every mutable column of a.
func (r *AppointmentRepository) Update(ctx context.Context, a *models.Appointment) error {
	a.UpdatedAt = time.Now().UTC()
	const query = `UPDATE appointments SET full_name = $1, user_id = $2, unit_id = $3, appointment_date = $4, start_time = $5, end_time = $6,
status = $7, agenda = $8, email = $9, updated_at = $10 WHERE id = $11`
	result, err := executor(ctx, r.db).ExecContext(ctx, query,
		a.FullName, a.UserID, a.UnitID, dateArg(a.AppointmentDate), a.StartTime, a.EndTime,
		a.Status, a.Agenda, a.Email, a.UpdatedAt, a.ID)
	if err != nil {
		return fmt.Errorf("update appointment: %w", err)
	}
	return expectAffected(result, "update appointment")
}

// SoftDelete flags an appointment deleted. Already deleted rows report sql.ErrNoRows.
func (r *AppointmentRepository) SoftDelete(ctx context.Context, id int64) error {
	const query = `UPDATE appointments SET is_deleted = TRUE, updated_at = $2 WHERE id = $1 AND is_deleted = FALSE`
	result, err := executor(ctx, r.db).ExecContext(ctx, query, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("soft delete appointment: %w", err)
	}
	return expectAffected(result, "soft delete appointment")
}

// HardDelete removes the row permanently.
func (r *AppointmentRepository) HardDelete(ctx context.Context, id int64) error {
	const query = `DELETE FROM appointments WHERE id = $1`
	result, err := executor(ctx, r.db).ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("hard delete appointment: %w", err)
	}
	return expectAffected(result, "hard delete appointment")
}

// LockDate takes a transaction-scoped advisory lock for date. It must run inside WithinTx.
func (r *AppointmentRepository) LockDate(ctx context.Context, date time.Time) error {
	const query = `SELECT pg_advisory_xact_lock(hashtext($1))`
	if _, err := executor(ctx, r.db).ExecContext(ctx, query, "appointments:"+dateArg(date)); err != nil {
		return fmt.Errorf("lock appointment date: %w", err)
	}
	return nil
}

func expectAffected(result sql.Result, op string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
