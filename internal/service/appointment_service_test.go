package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/appointment-booking-api/internal/models"
)

type lifecycleFixture struct {
	svc      *AppointmentService
	teachers *fakeTeachers
	appts    *fakeAppointments
	notifier *recordingNotifier
	cache    *recordingInvalidator
	audit    *recordingAudit
}

func newLifecycleFixture(t *testing.T, rows ...models.Appointment) (*lifecycleFixture, func(commit bool)) {
	tx, mock := newTxMock(t)
	f := &lifecycleFixture{
		teachers: newFakeTeachers("teacher-1", "teacher-2"),
		appts:    newFakeAppointments(rows...),
		notifier: &recordingNotifier{},
		cache:    &recordingInvalidator{},
		audit:    &recordingAudit{},
	}
	f.svc = NewAppointmentService(f.appts, f.teachers, tx, f.notifier, f.cache, f.audit, nil, testOptions(), nil, zap.NewNop())
	expect := func(commit bool) {
		mock.ExpectBegin()
		if commit {
			mock.ExpectCommit()
		} else {
			mock.ExpectRollback()
		}
	}
	t.Cleanup(func() { assert.NoError(t, mock.ExpectationsWereMet()) })
	return f, expect
}

func TestAppointmentServiceApproveAutoRejectsIdenticalWindow(t *testing.T) {
	f, expect := newLifecycleFixture(t,
		newAppt("target", "teacher-1", "student-1", "2026-10-19", "10:00", "10:30", models.AppointmentPending),
		newAppt("rival", "teacher-1", "student-2", "2026-10-19", "10:00", "10:30", models.AppointmentPending),
		newAppt("overlap", "teacher-1", "student-3", "2026-10-19", "10:15", "10:45", models.AppointmentPending),
		newAppt("other-teacher", "teacher-2", "student-4", "2026-10-19", "10:00", "10:30", models.AppointmentPending),
		newAppt("other-day", "teacher-1", "student-5", "2026-10-20", "10:00", "10:30", models.AppointmentPending),
	)
	expect(true)

	result, err := f.svc.Approve(context.Background(), teacherIdentity("teacher-1"), "target", models.TransitionRequest{})
	require.NoError(t, err)

	assert.Equal(t, models.AppointmentApproved, result.Appointment.Status)
	require.Len(t, result.AutoRejected, 1)
	assert.Equal(t, "rival", result.AutoRejected[0].ID)

	rival := f.appts.get("rival")
	assert.Equal(t, models.AppointmentCancelled, rival.Status)
	require.NotNil(t, rival.Note)
	assert.Equal(t, models.NoteAutoRejected, *rival.Note)
	assert.Equal(t, models.AppointmentPending, f.appts.get("overlap").Status)
	assert.Equal(t, models.AppointmentPending, f.appts.get("other-teacher").Status)
	assert.Equal(t, models.AppointmentPending, f.appts.get("other-day").Status)

	assert.Equal(t, []string{"teacher-1"}, f.teachers.locked)
	assert.ElementsMatch(t, []string{SubjectApproved, SubjectNotSelected}, f.notifier.subjects())
	assert.Len(t, f.notifier.recorded, 2)
	assert.Equal(t, []string{"teacher-1"}, f.cache.teachers)
	require.Len(t, f.audit.entries, 1)
	assert.Equal(t, models.AuditActionAppointmentState, f.audit.entries[0].Action)
}

func TestAppointmentServiceApproveRejectsApprovedOverlap(t *testing.T) {
	f, expect := newLifecycleFixture(t,
		newAppt("approved", "teacher-1", "student-2", "2026-10-19", "10:00", "11:00", models.AppointmentApproved),
		newAppt("target", "teacher-1", "student-1", "2026-10-19", "10:30", "11:30", models.AppointmentPending),
	)
	expect(false)

	_, err := f.svc.Approve(context.Background(), teacherIdentity("teacher-1"), "target", models.TransitionRequest{})
	assertReason(t, err, "CONFLICT", "Overlaps an approved appointment")
	assert.Equal(t, models.AppointmentPending, f.appts.get("target").Status)
	assert.Empty(t, f.notifier.dispatched)
}

func TestAppointmentServiceApproveRequiresPending(t *testing.T) {
	f, expect := newLifecycleFixture(t,
		newAppt("done", "teacher-1", "student-1", "2026-10-19", "10:00", "10:30", models.AppointmentCancelled),
	)
	expect(false)

	_, err := f.svc.Approve(context.Background(), teacherIdentity("teacher-1"), "done", models.TransitionRequest{})
	assertReason(t, err, "CONFLICT", "Not pending")
}

func TestAppointmentServiceApprovePermissions(t *testing.T) {
	f, expect := newLifecycleFixture(t,
		newAppt("target", "teacher-1", "student-1", "2026-10-19", "10:00", "10:30", models.AppointmentPending),
	)

	_, err := f.svc.Approve(context.Background(), teacherIdentity("teacher-2"), "target", models.TransitionRequest{})
	assertReason(t, err, "FORBIDDEN", "Forbidden")

	_, err = f.svc.Approve(context.Background(), studentIdentity("student-1"), "target", models.TransitionRequest{})
	assertReason(t, err, "FORBIDDEN", "Forbidden")

	_, err = f.svc.Approve(context.Background(), teacherIdentity("teacher-1"), "missing", models.TransitionRequest{})
	assertReason(t, err, "NOT_FOUND", "Not found")

	expect(true)
	note := "see you there"
	result, err := f.svc.Approve(context.Background(), adminIdentity(), "target", models.TransitionRequest{Note: &note})
	require.NoError(t, err)
	assert.Equal(t, "admin-1", *result.Appointment.DecidedBy)
	assert.Equal(t, note, *f.appts.get("target").Note)
}

func TestAppointmentServiceReject(t *testing.T) {
	f, expect := newLifecycleFixture(t,
		newAppt("target", "teacher-1", "student-1", "2026-10-19", "10:00", "10:30", models.AppointmentPending),
	)
	expect(true)

	rejected, err := f.svc.Reject(context.Background(), teacherIdentity("teacher-1"), "target", models.TransitionRequest{})
	require.NoError(t, err)
	assert.Equal(t, models.AppointmentCancelled, rejected.Status)
	assert.Equal(t, []string{SubjectRejected}, f.notifier.subjects())
	assert.Len(t, f.notifier.noticesFor("student-1"), 1)

	expect(false)
	_, err = f.svc.Reject(context.Background(), teacherIdentity("teacher-1"), "target", models.TransitionRequest{})
	assertReason(t, err, "CONFLICT", "Not pending")
}

func TestAppointmentServiceRejectApprovedIsNotAllowed(t *testing.T) {
	f, expect := newLifecycleFixture(t,
		newAppt("target", "teacher-1", "student-1", "2026-10-19", "10:00", "10:30", models.AppointmentApproved),
	)
	expect(false)

	_, err := f.svc.Reject(context.Background(), teacherIdentity("teacher-1"), "target", models.TransitionRequest{})
	assertReason(t, err, "CONFLICT", "Not pending")
	assert.Equal(t, models.AppointmentApproved, f.appts.get("target").Status)
}

func TestAppointmentServiceCancelNotifiesCounterparty(t *testing.T) {
	f, expect := newLifecycleFixture(t,
		newAppt("by-teacher", "teacher-1", "student-1", "2026-10-19", "10:00", "10:30", models.AppointmentApproved),
		newAppt("by-student", "teacher-1", "student-1", "2026-10-19", "11:00", "11:30", models.AppointmentPending),
		newAppt("by-admin", "teacher-1", "student-1", "2026-10-19", "12:00", "12:30", models.AppointmentApproved),
	)
	ctx := context.Background()

	expect(true)
	_, err := f.svc.Cancel(ctx, teacherIdentity("teacher-1"), "by-teacher", models.TransitionRequest{})
	require.NoError(t, err)
	assert.Equal(t, []string{SubjectCancelledByTeacher}, f.notifier.subjects())
	assert.Len(t, f.notifier.noticesFor("student-1"), 1)

	expect(true)
	_, err = f.svc.Cancel(ctx, studentIdentity("student-1"), "by-student", models.TransitionRequest{})
	require.NoError(t, err)
	assert.Len(t, f.notifier.noticesFor("teacher-1"), 1)
	assert.Equal(t, SubjectCancelledByStudent, f.notifier.noticesFor("teacher-1")[0].Subject)

	expect(true)
	_, err = f.svc.Cancel(ctx, adminIdentity(), "by-admin", models.TransitionRequest{})
	require.NoError(t, err)
	assert.Len(t, f.notifier.subjects(), 2)
	assert.Equal(t, models.AppointmentCancelled, f.appts.get("by-admin").Status)
}

func TestAppointmentServiceAdminWithTeacherRoleCancelsInTeacherCapacity(t *testing.T) {
	f, expect := newLifecycleFixture(t,
		newAppt("target", "teacher-1", "student-1", "2026-10-19", "10:00", "10:30", models.AppointmentApproved),
	)
	expect(true)
	actor := models.Identity{UserID: "admin-2", Roles: []models.UserRole{models.RoleAdmin, models.RoleTeacher}, Role: models.RoleAdmin, Approved: true}

	_, err := f.svc.Cancel(context.Background(), actor, "target", models.TransitionRequest{})
	require.NoError(t, err)
	assert.Equal(t, []string{SubjectCancelledByTeacher}, f.notifier.subjects())
}

func TestAppointmentServiceCancelRules(t *testing.T) {
	f, expect := newLifecycleFixture(t,
		newAppt("past", "teacher-1", "student-1", "2026-10-15", "10:00", "10:30", models.AppointmentApproved),
		newAppt("cancelled", "teacher-1", "student-1", "2026-10-19", "10:00", "10:30", models.AppointmentCancelled),
		newAppt("foreign", "teacher-1", "student-2", "2026-10-19", "11:00", "11:30", models.AppointmentPending),
	)
	ctx := context.Background()

	_, err := f.svc.Cancel(ctx, studentIdentity("student-1"), "past", models.TransitionRequest{})
	assertReason(t, err, "POLICY_CONFLICT", "Past appointments cannot be cancelled")

	_, err = f.svc.Cancel(ctx, studentIdentity("student-1"), "foreign", models.TransitionRequest{})
	assertReason(t, err, "FORBIDDEN", "Forbidden")

	expect(false)
	_, err = f.svc.Cancel(ctx, studentIdentity("student-1"), "cancelled", models.TransitionRequest{})
	assertReason(t, err, "CONFLICT", "Already cancelled")

	expect(true)
	_, err = f.svc.Cancel(ctx, adminIdentity(), "past", models.TransitionRequest{})
	require.NoError(t, err)
	assert.Equal(t, models.AppointmentCancelled, f.appts.get("past").Status)
}

func TestAppointmentServiceListIsScopedByRole(t *testing.T) {
	f, _ := newLifecycleFixture(t,
		newAppt("a1", "teacher-1", "student-1", "2026-10-19", "10:00", "10:30", models.AppointmentPending),
		newAppt("a2", "teacher-2", "student-1", "2026-10-19", "11:00", "11:30", models.AppointmentApproved),
		newAppt("a3", "teacher-1", "student-2", "2026-10-20", "10:00", "10:30", models.AppointmentCancelled),
	)
	ctx := context.Background()

	mine, total, err := f.svc.List(ctx, studentIdentity("student-1"), models.ListAppointmentsQuery{TeacherID: "teacher-1"})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, "student-1", f.appts.lastFilter.StudentID)
	assert.Empty(t, f.appts.lastFilter.TeacherID)
	assert.Len(t, mine, 2)

	_, total, err = f.svc.List(ctx, teacherIdentity("teacher-1"), models.ListAppointmentsQuery{Status: "pending, cancelled"})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, []models.AppointmentStatus{models.AppointmentPending, models.AppointmentCancelled}, f.appts.lastFilter.Status)

	_, total, err = f.svc.List(ctx, adminIdentity(), models.ListAppointmentsQuery{StudentID: "student-2", From: "2026-10-19", To: "2026-10-20"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.NotNil(t, f.appts.lastFilter.From)
	assert.Equal(t, at("2026-10-19", "00:00"), *f.appts.lastFilter.From)
	assert.Equal(t, at("2026-10-21", "00:00"), *f.appts.lastFilter.To)

	_, _, err = f.svc.List(ctx, adminIdentity(), models.ListAppointmentsQuery{Status: "done"})
	assertReason(t, err, "VALIDATION_ERROR", "invalid status filter")

	_, _, err = f.svc.List(ctx, adminIdentity(), models.ListAppointmentsQuery{From: "2026-10-20", To: "2026-10-19"})
	assertReason(t, err, "VALIDATION_ERROR", "Invalid date range")
}

func TestAppointmentServiceGetHidesForeignAppointments(t *testing.T) {
	f, _ := newLifecycleFixture(t,
		newAppt("a1", "teacher-1", "student-1", "2026-10-19", "10:00", "10:30", models.AppointmentPending),
	)
	ctx := context.Background()

	_, err := f.svc.Get(ctx, studentIdentity("student-1"), "a1")
	require.NoError(t, err)
	_, err = f.svc.Get(ctx, teacherIdentity("teacher-1"), "a1")
	require.NoError(t, err)
	_, err = f.svc.Get(ctx, studentIdentity("student-2"), "a1")
	assertReason(t, err, "NOT_FOUND", "Not found")
}
