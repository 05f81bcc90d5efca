package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/office-appointment-api/internal/models"
)

func TestBusyDayRepositoryExists(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewBusyDayRepository(db, wib)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM busy_days WHERE date = $1)")).
		WithArgs("2024-05-10").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := repo.Exists(context.Background(), time.Date(2024, 5, 10, 0, 0, 0, 0, wib))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBusyDayRepositoryUpsert(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewBusyDayRepository(db, wib)

	stored := time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("ON CONFLICT (date) DO UPDATE SET date = EXCLUDED.date")).
		WithArgs("2024-05-10", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "date", "created_at"}).AddRow(int64(3), stored, time.Now()))

	day, err := repo.Upsert(context.Background(), time.Date(2024, 5, 10, 0, 0, 0, 0, wib))
	require.NoError(t, err)
	assert.Equal(t, int64(3), day.ID)
	assert.Equal(t, time.Date(2024, 5, 10, 0, 0, 0, 0, wib), day.Date)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBusyDayRepositoryDeleteByDateMissing(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewBusyDayRepository(db, wib)

	mock.ExpectQuery(regexp.QuoteMeta("DELETE FROM busy_days WHERE date = $1 RETURNING id, date, created_at")).
		WithArgs("2024-05-10").
		WillReturnRows(sqlmock.NewRows([]string{"id", "date", "created_at"}))

	_, err := repo.DeleteByDate(context.Background(), time.Date(2024, 5, 10, 0, 0, 0, 0, wib))
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBusyDayRepositoryListRange(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewBusyDayRepository(db, wib)

	mock.ExpectQuery(regexp.QuoteMeta("FROM busy_days WHERE date BETWEEN $1 AND $2 ORDER BY date ASC")).
		WithArgs("2024-05-01", "2024-05-31").
		WillReturnRows(sqlmock.NewRows([]string{"id", "date", "created_at"}).
			AddRow(int64(1), time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC), time.Now()).
			AddRow(int64(2), time.Date(2024, 5, 17, 0, 0, 0, 0, time.UTC), time.Now()))

	days, err := repo.ListRange(context.Background(), time.Date(2024, 5, 1, 0, 0, 0, 0, wib), time.Date(2024, 5, 31, 0, 0, 0, 0, wib))
	require.NoError(t, err)
	require.Len(t, days, 2)
	assert.Equal(t, wib, days[1].Date.Location())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBusyTimeSlotRepositoryListByDate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewBusyTimeSlotRepository(db, wib)

	date := time.Date(2024, 5, 7, 0, 0, 0, 0, wib)
	reason := "inspection"
	mock.ExpectQuery(regexp.QuoteMeta("FROM busy_time_slots WHERE date = $1 ORDER BY start_time ASC, id ASC")).
		WithArgs("2024-05-07").
		WillReturnRows(sqlmock.NewRows([]string{"id", "date", "start_time", "end_time", "reason", "created_at"}).
			AddRow(int64(1), time.Date(2024, 5, 7, 0, 0, 0, 0, time.UTC), date.Add(9*time.Hour).UTC(), date.Add(10*time.Hour).UTC(), reason, time.Now()))

	slots, err := repo.ListByDate(context.Background(), date)
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.Equal(t, 9, slots[0].StartTime.Hour())
	require.NotNil(t, slots[0].Reason)
	assert.Equal(t, reason, *slots[0].Reason)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBusyTimeSlotRepositoryCreateAndDelete(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewBusyTimeSlotRepository(db, wib)

	date := time.Date(2024, 5, 7, 0, 0, 0, 0, wib)
	slot := &models.BusyTimeSlot{Date: date, StartTime: date.Add(9 * time.Hour), EndTime: date.Add(10 * time.Hour)}
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO busy_time_slots (date, start_time, end_time, reason, created_at)")).
		WithArgs("2024-05-07", slot.StartTime, slot.EndTime, nil, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(12)))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM busy_time_slots WHERE id = $1")).
		WithArgs(int64(12)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.Create(context.Background(), slot))
	assert.Equal(t, int64(12), slot.ID)
	assert.ErrorIs(t, repo.Delete(context.Background(), 12), sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCacheRepositoryWithoutClient(t *testing.T) {
	repo := NewCacheRepository(nil, nil)
	var dest bool
	err := repo.Get(context.Background(), "busy_day:2024-05-07", &dest)
	assert.Error(t, err)
	assert.NoError(t, repo.Set(context.Background(), "k", true, time.Minute))
	assert.NoError(t, repo.Delete(context.Background(), "k"))
	assert.NoError(t, repo.Close())
}
