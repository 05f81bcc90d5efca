package service

import (
	"context"
	"database/sql"
	"sort"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/office-appointment-api/internal/models"
	"github.com/noah-isme/office-appointment-api/internal/scheduling"
	"github.com/noah-isme/office-appointment-api/pkg/clock"
)

var wib = time.FixedZone("WIB", 7*3600)

// day returns midnight of 2024-05-<d> in WIB. 2024-05-06 is a Monday.
func day(d int) time.Time {
	return time.Date(2024, time.May, d, 0, 0, 0, 0, wib)
}

func at(d, hour, minute int) time.Time {
	return day(d).Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

type fakeAppointmentStore struct {
	items     map[int64]*models.Appointment
	nextID    int64
	locked    []string
	updateErr map[int64]error
	listErr   error
}

func newFakeAppointmentStore(items ...models.Appointment) *fakeAppointmentStore {
	store := &fakeAppointmentStore{items: map[int64]*models.Appointment{}, updateErr: map[int64]error{}}
	for i := range items {
		item := items[i]
		store.items[item.ID] = &item
		if item.ID > store.nextID {
			store.nextID = item.ID
		}
	}
	return store
}

func (f *fakeAppointmentStore) sorted(match func(a models.Appointment) bool) []models.Appointment {
	var out []models.Appointment
	for _, a := range f.items {
		if match(*a) {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.Before(out[j].StartTime)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (f *fakeAppointmentStore) FindConflicting(_ context.Context, date, start, end time.Time, excludeID *int64) ([]models.Appointment, error) {
	return f.sorted(func(a models.Appointment) bool {
		if excludeID != nil && a.ID == *excludeID {
			return false
		}
		return !a.IsDeleted && a.Status == models.AppointmentStatusApproved &&
			a.AppointmentDate.Equal(date) && scheduling.Overlaps(a.StartTime, a.EndTime, start, end)
	}), nil
}

func (f *fakeAppointmentStore) ListByDateAndStatuses(_ context.Context, date time.Time, statuses []models.AppointmentStatus) ([]models.Appointment, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.sorted(func(a models.Appointment) bool {
		if a.IsDeleted || !a.AppointmentDate.Equal(date) {
			return false
		}
		for _, s := range statuses {
			if a.Status == s {
				return true
			}
		}
		return false
	}), nil
}

func (f *fakeAppointmentStore) FindByID(_ context.Context, id int64) (*models.Appointment, error) {
	a, ok := f.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copy := *a
	return &copy, nil
}

func (f *fakeAppointmentStore) List(_ context.Context, filter models.AppointmentFilter) ([]models.Appointment, int, error) {
	if f.listErr != nil {
		return nil, 0, f.listErr
	}
	all := f.sorted(func(a models.Appointment) bool {
		if a.IsDeleted != filter.IsDeleted {
			return false
		}
		if filter.Status != nil && a.Status != *filter.Status {
			return false
		}
		if filter.Date != nil && !a.AppointmentDate.Equal(*filter.Date) {
			return false
		}
		if filter.UnitID != nil && a.UnitID != *filter.UnitID {
			return false
		}
		return true
	})
	start := (filter.Page - 1) * filter.PageSize
	if start > len(all) {
		start = len(all)
	}
	end := start + filter.PageSize
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], len(all), nil
}

func (f *fakeAppointmentStore) Create(_ context.Context, a *models.Appointment) error {
	f.nextID++
	a.ID = f.nextID
	copy := *a
	f.items[a.ID] = &copy
	return nil
}

func (f *fakeAppointmentStore) Update(_ context.Context, a *models.Appointment) error {
	if err := f.updateErr[a.ID]; err != nil {
		return err
	}
	if _, ok := f.items[a.ID]; !ok {
		return sql.ErrNoRows
	}
	copy := *a
	f.items[a.ID] = &copy
	return nil
}

func (f *fakeAppointmentStore) SoftDelete(_ context.Context, id int64) error {
	a, ok := f.items[id]
	if !ok || a.IsDeleted {
		return sql.ErrNoRows
	}
	a.IsDeleted = true
	return nil
}

func (f *fakeAppointmentStore) HardDelete(_ context.Context, id int64) error {
	if _, ok := f.items[id]; !ok {
		return sql.ErrNoRows
	}
	delete(f.items, id)
	return nil
}

func (f *fakeAppointmentStore) LockDate(_ context.Context, date time.Time) error {
	f.locked = append(f.locked, date.Format(scheduling.DateLayout))
	return nil
}

type fakeBusyDays struct {
	days   map[string]models.BusyDay
	nextID int64
}

func newFakeBusyDays(dates ...time.Time) *fakeBusyDays {
	f := &fakeBusyDays{days: map[string]models.BusyDay{}}
	for _, d := range dates {
		_, _ = f.Upsert(context.Background(), d)
	}
	return f
}

func (f *fakeBusyDays) Exists(_ context.Context, date time.Time) (bool, error) {
	_, ok := f.days[date.Format(scheduling.DateLayout)]
	return ok, nil
}

func (f *fakeBusyDays) Upsert(_ context.Context, date time.Time) (*models.BusyDay, error) {
	key := date.Format(scheduling.DateLayout)
	if existing, ok := f.days[key]; ok {
		return &existing, nil
	}
	f.nextID++
	d := models.BusyDay{ID: f.nextID, Date: date}
	f.days[key] = d
	return &d, nil
}

func (f *fakeBusyDays) DeleteByDate(_ context.Context, date time.Time) (*models.BusyDay, error) {
	key := date.Format(scheduling.DateLayout)
	existing, ok := f.days[key]
	if !ok {
		return nil, sql.ErrNoRows
	}
	delete(f.days, key)
	return &existing, nil
}

func (f *fakeBusyDays) ListRange(_ context.Context, from, to time.Time) ([]models.BusyDay, error) {
	var out []models.BusyDay
	for _, d := range f.days {
		if !d.Date.Before(from) && !d.Date.After(to) {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

type fakeSlots struct {
	slots  []models.BusyTimeSlot
	nextID int64
}

func (f *fakeSlots) ListByDate(_ context.Context, date time.Time) ([]models.BusyTimeSlot, error) {
	var out []models.BusyTimeSlot
	for _, s := range f.slots {
		if s.Date.Equal(date) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSlots) ListRange(_ context.Context, from, to time.Time) ([]models.BusyTimeSlot, error) {
	var out []models.BusyTimeSlot
	for _, s := range f.slots {
		if !s.Date.Before(from) && !s.Date.After(to) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSlots) Create(_ context.Context, slot *models.BusyTimeSlot) error {
	f.nextID++
	slot.ID = f.nextID
	f.slots = append(f.slots, *slot)
	return nil
}

func (f *fakeSlots) Delete(_ context.Context, id int64) error {
	for i, s := range f.slots {
		if s.ID == id {
			f.slots = append(f.slots[:i], f.slots[i+1:]...)
			return nil
		}
	}
	return sql.ErrNoRows
}

type fakeTx struct {
	calls int
}

func (f *fakeTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	f.calls++
	return fn(ctx)
}

type fakeUnits map[int64]models.Unit

func (f fakeUnits) FindByID(_ context.Context, id int64) (*models.Unit, error) {
	u, ok := f[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &u, nil
}

type fakeUsers map[int64]models.User

func (f fakeUsers) FindByID(_ context.Context, id int64) (*models.User, error) {
	u, ok := f[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &u, nil
}

type notifyEvent struct {
	kind models.NotificationKind
	id   int64
}

type recordingNotifier struct {
	events []notifyEvent
}

func (r *recordingNotifier) Notify(_ context.Context, kind models.NotificationKind, a models.Appointment, _ string) {
	r.events = append(r.events, notifyEvent{kind: kind, id: a.ID})
}

func (r *recordingNotifier) kinds() []models.NotificationKind {
	out := make([]models.NotificationKind, len(r.events))
	for i, e := range r.events {
		out[i] = e.kind
	}
	return out
}

type schedulingFixture struct {
	clock        *clock.Fixed
	rules        *scheduling.Rules
	store        *fakeAppointmentStore
	days         *fakeBusyDays
	slots        *fakeSlots
	tx           *fakeTx
	notifier     *recordingNotifier
	metrics      *MetricsService
	blocking     *BlockingService
	appointments *AppointmentService
}

func newSchedulingFixture(t *testing.T, now time.Time, existing ...models.Appointment) *schedulingFixture {
	t.Helper()
	f := &schedulingFixture{
		clock:    clock.NewFixed(now),
		store:    newFakeAppointmentStore(existing...),
		days:     newFakeBusyDays(),
		slots:    &fakeSlots{},
		tx:       &fakeTx{},
		notifier: &recordingNotifier{},
		metrics:  NewMetricsService(),
	}
	f.rules = scheduling.NewRules(scheduling.DefaultConfig(wib), f.clock)
	f.blocking = NewBlockingService(f.days, f.slots, f.store, f.tx, nil, f.rules, f.notifier, f.metrics, validator.New(), nil,
		BlockingServiceConfig{HorizonDays: 60})
	units := fakeUnits{1: {ID: 1, Name: "Licensing", Active: true}, 2: {ID: 2, Name: "Archive", Active: false}}
	users := fakeUsers{10: {ID: 10, Email: "citizen@example.com", Active: true}, 11: {ID: 11, Email: "gone@example.com", Active: false}}
	f.appointments = NewAppointmentService(f.store, units, users, f.blocking, f.tx, f.rules, f.notifier, f.metrics, validator.New(), nil)
	return f
}

func appointmentAt(id int64, d, startHour, endHour int, status models.AppointmentStatus) models.Appointment {
	return models.Appointment{
		ID:              id,
		FullName:        "Citizen",
		UnitID:          1,
		AppointmentDate: day(d),
		StartTime:       at(d, startHour, 0),
		EndTime:         at(d, endHour, 0),
		Status:          status,
		CreatedBy:       "anonymous",
	}
}
