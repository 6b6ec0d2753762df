package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/appointment-booking-api/internal/models"
	"github.com/noah-isme/appointment-booking-api/internal/repository"
	"github.com/noah-isme/appointment-booking-api/pkg/timeutil"
)

// Friday 2026-10-16 09:00 UTC.
var testNow = time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)

func testOptions() SchedulingOptions {
	return SchedulingOptions{Location: time.UTC, Now: func() time.Time { return testNow }}
}

type txMock struct {
	db *sqlx.DB
}

func (t *txMock) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return t.db.BeginTxx(ctx, opts)
}

func newTxMock(t *testing.T) (txProvider, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &txMock{db: sqlx.NewDb(db, "sqlmock")}, mock
}

type fakeTeachers struct {
	teachers map[string]*models.Teacher
	locked   []string
}

func newFakeTeachers(ids ...string) *fakeTeachers {
	f := &fakeTeachers{teachers: map[string]*models.Teacher{}}
	for _, id := range ids {
		f.teachers[id] = &models.Teacher{ID: id, Email: id + "@example.com", FullName: strings.ToUpper(id), Active: true}
	}
	return f
}

func (f *fakeTeachers) FindByID(ctx context.Context, id string) (*models.Teacher, error) {
	t, ok := f.teachers[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copy := *t
	return &copy, nil
}

func (f *fakeTeachers) LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Teacher, error) {
	f.locked = append(f.locked, id)
	return f.FindByID(ctx, id)
}

func (f *fakeTeachers) List(ctx context.Context, filter models.TeacherFilter) ([]models.Teacher, int, error) {
	out := make([]models.Teacher, 0, len(f.teachers))
	for _, t := range f.teachers {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FullName < out[j].FullName })
	return out, len(out), nil
}

func (f *fakeTeachers) Upsert(ctx context.Context, exec sqlx.ExtContext, teacher *models.Teacher) error {
	teacher.Active = true
	copy := *teacher
	f.teachers[teacher.ID] = &copy
	return nil
}

func (f *fakeTeachers) Delete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	delete(f.teachers, id)
	return nil
}

type fakePolicy struct {
	policy models.OrganizationPolicy
	err    error
}

func (f *fakePolicy) GetPolicy(ctx context.Context) (*models.OrganizationPolicy, error) {
	if f.err != nil {
		return nil, f.err
	}
	copy := f.policy
	return &copy, nil
}

func defaultPolicy() *fakePolicy {
	return &fakePolicy{policy: models.DefaultPolicy()}
}

type fakeAvailability struct {
	weekly        map[string]models.WeeklyAvailability
	busy          []models.BusyBlock
	deletedWeekly []string
	seq           int
}

func newFakeAvailability() *fakeAvailability {
	return &fakeAvailability{weekly: map[string]models.WeeklyAvailability{}}
}

func (f *fakeAvailability) GetWeekly(ctx context.Context, teacherID string) (models.WeeklyAvailability, *time.Time, error) {
	w, ok := f.weekly[teacherID]
	if !ok {
		return nil, nil, sql.ErrNoRows
	}
	return w, nil, nil
}

func (f *fakeAvailability) UpsertWeekly(ctx context.Context, exec sqlx.ExtContext, teacherID string, weekly models.WeeklyAvailability) error {
	f.weekly[teacherID] = weekly
	return nil
}

func (f *fakeAvailability) ListBusy(ctx context.Context, teacherID, from, to string) ([]models.BusyBlock, error) {
	out := make([]models.BusyBlock, 0)
	for _, b := range f.busy {
		if b.TeacherID != teacherID || (from != "" && b.Date < from) || (to != "" && b.Date > to) {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

func (f *fakeAvailability) CreateBusy(ctx context.Context, exec sqlx.ExtContext, block *models.BusyBlock) error {
	if block.ID == "" {
		f.seq++
		block.ID = fmt.Sprintf("busy-%d", f.seq)
	}
	f.busy = append(f.busy, *block)
	return nil
}

func (f *fakeAvailability) ReplaceBusy(ctx context.Context, exec sqlx.ExtContext, teacherID string, blocks []models.BusyBlock) error {
	if err := f.DeleteBusyByTeacher(ctx, exec, teacherID); err != nil {
		return err
	}
	for i := range blocks {
		blocks[i].TeacherID = teacherID
		if err := f.CreateBusy(ctx, exec, &blocks[i]); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeAvailability) DeleteBusy(ctx context.Context, id, teacherID string) error {
	for i, b := range f.busy {
		if b.ID == id && (teacherID == "" || b.TeacherID == teacherID) {
			f.busy = append(f.busy[:i], f.busy[i+1:]...)
			return nil
		}
	}
	return sql.ErrNoRows
}

func (f *fakeAvailability) DeleteBusyByTeacher(ctx context.Context, exec sqlx.ExtContext, teacherID string) error {
	kept := f.busy[:0]
	for _, b := range f.busy {
		if b.TeacherID != teacherID {
			kept = append(kept, b)
		}
	}
	f.busy = kept
	return nil
}

func (f *fakeAvailability) DeleteWeekly(ctx context.Context, exec sqlx.ExtContext, teacherID string) error {
	delete(f.weekly, teacherID)
	f.deletedWeekly = append(f.deletedWeekly, teacherID)
	return nil
}

// fakeAppointments is an in-memory appointments table honouring the
// conditional transition semantics of the SQL repository.
type fakeAppointments struct {
	mu          sync.Mutex
	rows        map[string]*models.Appointment
	seq         int
	approvedErr error
	lastFilter  models.AppointmentFilter
}

func newFakeAppointments(rows ...models.Appointment) *fakeAppointments {
	f := &fakeAppointments{rows: map[string]*models.Appointment{}}
	for i := range rows {
		row := rows[i]
		if row.CreatedAt.IsZero() {
			row.CreatedAt = testNow.Add(time.Duration(i) * time.Minute)
		}
		f.rows[row.ID] = &row
	}
	return f
}

func (f *fakeAppointments) get(id string) models.Appointment {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.rows[id]
}

func (f *fakeAppointments) sorted(match func(models.Appointment) bool) []models.Appointment {
	out := make([]models.Appointment, 0)
	for _, a := range f.rows {
		if match(*a) {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartAt.Equal(out[j].StartAt) {
			return out[i].StartAt.Before(out[j].StartAt)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (f *fakeAppointments) FindByID(ctx context.Context, id string) (*models.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.rows[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copy := *a
	return &copy, nil
}

func (f *fakeAppointments) LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Appointment, error) {
	return f.FindByID(ctx, id)
}

func (f *fakeAppointments) ListTeacherWindow(ctx context.Context, exec sqlx.ExtContext, teacherID string, from, to time.Time, lock bool) ([]models.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sorted(func(a models.Appointment) bool {
		return a.TeacherID == teacherID && !a.StartAt.Before(from) && a.StartAt.Before(to)
	}), nil
}

func (f *fakeAppointments) ListApprovedInRange(ctx context.Context, teacherID string, from, to time.Time) ([]models.Appointment, error) {
	if f.approvedErr != nil {
		return nil, f.approvedErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sorted(func(a models.Appointment) bool {
		return a.TeacherID == teacherID && a.Status == models.AppointmentApproved && !a.StartAt.Before(from) && a.StartAt.Before(to)
	}), nil
}

func (f *fakeAppointments) ListActiveAfter(ctx context.Context, exec sqlx.ExtContext, teacherID string, after time.Time) ([]models.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sorted(func(a models.Appointment) bool {
		return a.Status.Active() && a.StartAt.After(after) && (teacherID == "" || a.TeacherID == teacherID)
	}), nil
}

func (f *fakeAppointments) Create(ctx context.Context, exec sqlx.ExtContext, appt *models.Appointment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	if appt.ID == "" {
		appt.ID = fmt.Sprintf("appt-new-%d", f.seq)
	}
	appt.Status = models.AppointmentPending
	appt.CreatedAt = testNow
	appt.UpdatedAt = testNow
	copy := *appt
	f.rows[appt.ID] = &copy
	return nil
}

func (f *fakeAppointments) Transition(ctx context.Context, exec sqlx.ExtContext, params repository.TransitionParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.rows[params.ID]
	if !ok {
		return sql.ErrNoRows
	}
	allowed := false
	for _, from := range params.From {
		if a.Status == from {
			allowed = true
		}
	}
	if !allowed {
		return sql.ErrNoRows
	}
	a.Status = params.To
	if params.CancelReason != nil {
		a.CancelReason = params.CancelReason
	}
	if params.DecidedBy != nil {
		a.DecidedBy = params.DecidedBy
	}
	if params.Note != nil {
		a.Note = params.Note
	}
	a.UpdatedAt = params.At
	return nil
}

func (f *fakeAppointments) CancelBatch(ctx context.Context, exec sqlx.ExtContext, plan []models.AppointmentCancellation, decidedBy *string, at time.Time) (int, error) {
	count := 0
	for _, item := range plan {
		reason := item.Reason
		err := f.Transition(ctx, exec, repository.TransitionParams{
			ID:           item.Appointment.ID,
			From:         []models.AppointmentStatus{models.AppointmentPending, models.AppointmentApproved},
			To:           models.AppointmentCancelled,
			CancelReason: &reason,
			DecidedBy:    decidedBy,
			At:           at,
		})
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

func (f *fakeAppointments) List(ctx context.Context, filter models.AppointmentFilter) ([]models.Appointment, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastFilter = filter
	out := f.sorted(func(a models.Appointment) bool {
		if filter.TeacherID != "" && a.TeacherID != filter.TeacherID {
			return false
		}
		if filter.StudentID != "" && a.StudentID != filter.StudentID {
			return false
		}
		if len(filter.Status) > 0 {
			match := false
			for _, s := range filter.Status {
				match = match || a.Status == s
			}
			if !match {
				return false
			}
		}
		return true
	})
	return out, len(out), nil
}

type recordingNotifier struct {
	recorded   []Notice
	events     []string
	dispatched []*Outbox
	recordErr  error
}

func (r *recordingNotifier) Record(ctx context.Context, exec sqlx.ExtContext, outbox *Outbox) error {
	if r.recordErr != nil {
		return r.recordErr
	}
	for _, n := range outbox.Notices {
		if n.InApp {
			r.recorded = append(r.recorded, n)
		}
	}
	return nil
}

func (r *recordingNotifier) Dispatch(ctx context.Context, outbox *Outbox) {
	r.dispatched = append(r.dispatched, outbox)
	for _, e := range outbox.Events {
		r.events = append(r.events, e.Type)
	}
}

func (r *recordingNotifier) subjects() []string {
	out := []string{}
	for _, o := range r.dispatched {
		for _, n := range o.Notices {
			out = append(out, n.Subject)
		}
	}
	return out
}

func (r *recordingNotifier) noticesFor(userID string) []Notice {
	out := []Notice{}
	for _, o := range r.dispatched {
		for _, n := range o.Notices {
			if n.UserID == userID {
				out = append(out, n)
			}
		}
	}
	return out
}

type recordingInvalidator struct {
	teachers []string
	all      int
}

func (r *recordingInvalidator) InvalidateTeacher(ctx context.Context, teacherID string) {
	r.teachers = append(r.teachers, teacherID)
}

func (r *recordingInvalidator) InvalidateAll(ctx context.Context) {
	r.all++
}

type recordingAudit struct {
	entries []*models.AuditLog
}

func (r *recordingAudit) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	r.entries = append(r.entries, log)
	return nil
}

func studentIdentity(id string) models.Identity {
	return models.Identity{UserID: id, Role: models.RoleStudent, Approved: true}
}

func teacherIdentity(id string) models.Identity {
	return models.Identity{UserID: id, Roles: []models.UserRole{models.RoleTeacher}, Role: models.RoleTeacher, Approved: true}
}

func at(date, clock string) time.Time {
	t, _ := timeutil.Combine(date, clock, time.UTC)
	return t
}

func newAppt(id, teacherID, studentID, date, start, end string, status models.AppointmentStatus) models.Appointment {
	return models.Appointment{
		ID:        id,
		TeacherID: teacherID,
		StudentID: studentID,
		StartAt:   at(date, start),
		EndAt:     at(date, end),
		Status:    status,
	}
}
