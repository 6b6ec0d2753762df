package service

import (
	"fmt"
	"time"

	"github.com/noah-isme/appointment-booking-api/internal/models"
)

// Email subjects.
const (
	SubjectApproved            = "Appointment Approved"
	SubjectNotSelected         = "Appointment Request Not Selected"
	SubjectRejected            = "Appointment Rejected"
	SubjectCancelledByTeacher  = "Appointment Cancelled by Teacher"
	SubjectCancelledByStudent  = "Student Cancelled Appointment"
	SubjectPolicyCascade       = "Appointment cancelled – Organization settings updated"
	SubjectAvailabilityCascade = "Appointment cancelled – Teacher availability changed"
	SubjectTeacherRemoved      = "Appointment cancelled – Teacher removed"
	SubjectTeacherAccount      = "Your teacher account was removed"
	SubjectInvite              = "Set your password – Student-Teacher Booking"
	SubjectPasswordReset       = "Reset your password – Student-Teacher Booking"
)

// Domain event types.
const (
	EventAppointmentRequested = "appointment.requested"
	EventAppointmentApproved  = "appointment.approved"
	EventAppointmentRejected  = "appointment.rejected"
	EventAppointmentCancelled = "appointment.cancelled"
	EventPolicyUpdated        = "policy.updated"
	EventAvailabilityUpdated  = "availability.updated"
	EventTeacherInvited       = "teacher.invited"
	EventTeacherRemoved       = "teacher.removed"
)

func slotText(appt models.Appointment, loc *time.Location) string {
	r := appt.LocalRange(loc)
	return fmt.Sprintf("%s %s-%s", appt.LocalDate(loc), r.Start, r.End)
}

func approvedNotice(appt models.Appointment, loc *time.Location) Notice {
	return Notice{
		UserID:        appt.StudentID,
		AppointmentID: appt.ID,
		Kind:          models.NotificationApproved,
		Message:       fmt.Sprintf("Your appointment on %s was approved.", slotText(appt, loc)),
		Subject:       SubjectApproved,
		InApp:         true,
	}
}

func autoRejectedNotice(appt models.Appointment, loc *time.Location) Notice {
	return Notice{
		UserID:        appt.StudentID,
		AppointmentID: appt.ID,
		Kind:          models.NotificationAutoRejected,
		Message:       fmt.Sprintf("Your request for %s was not selected because another request for the same time was approved.", slotText(appt, loc)),
		Subject:       SubjectNotSelected,
		InApp:         true,
	}
}

func rejectedNotice(appt models.Appointment, loc *time.Location) Notice {
	return Notice{
		UserID:        appt.StudentID,
		AppointmentID: appt.ID,
		Kind:          models.NotificationRejected,
		Message:       fmt.Sprintf("Your appointment request for %s was rejected.", slotText(appt, loc)),
		Subject:       SubjectRejected,
		InApp:         true,
	}
}

func cancelledByTeacherNotice(appt models.Appointment, loc *time.Location) Notice {
	return Notice{
		UserID:        appt.StudentID,
		AppointmentID: appt.ID,
		Kind:          models.NotificationCancelled,
		Message:       fmt.Sprintf("Your appointment on %s was cancelled by the teacher.", slotText(appt, loc)),
		Subject:       SubjectCancelledByTeacher,
		InApp:         true,
	}
}

func cancelledByStudentNotice(appt models.Appointment, loc *time.Location) Notice {
	return Notice{
		UserID:        appt.TeacherID,
		AppointmentID: appt.ID,
		Kind:          models.NotificationCancelled,
		Message:       fmt.Sprintf("An appointment on %s was cancelled by the student.", slotText(appt, loc)),
		Subject:       SubjectCancelledByStudent,
		InApp:         true,
	}
}

// cascadeNotices informs both parties of a cascade cancellation.
func cascadeNotices(item models.AppointmentCancellation, subject, cause string, loc *time.Location) []Notice {
	appt := item.Appointment
	when := slotText(appt, loc)
	return []Notice{
		{
			UserID:        appt.StudentID,
			AppointmentID: appt.ID,
			Kind:          models.NotificationCascadeCancelled,
			Message:       fmt.Sprintf("Your appointment on %s was cancelled due to %s.", when, cause),
			Subject:       subject,
			Body:          fmt.Sprintf("Your appointment on %s was cancelled. Reason: %s.", when, item.Reason),
			InApp:         true,
		},
		{
			UserID:        appt.TeacherID,
			AppointmentID: appt.ID,
			Kind:          models.NotificationCascadeCancelled,
			Message:       fmt.Sprintf("An appointment on %s was cancelled due to %s.", when, cause),
			Subject:       subject,
			Body:          fmt.Sprintf("An appointment on %s was cancelled. Reason: %s.", when, item.Reason),
			InApp:         true,
		},
	}
}

func teacherRemovedNotice(item models.AppointmentCancellation, loc *time.Location) Notice {
	when := slotText(item.Appointment, loc)
	return Notice{
		UserID:        item.Appointment.StudentID,
		AppointmentID: item.Appointment.ID,
		Kind:          models.NotificationTeacherRemoved,
		Message:       fmt.Sprintf("Your appointment on %s was cancelled because the teacher was removed.", when),
		Subject:       SubjectTeacherRemoved,
		Body:          fmt.Sprintf("Your appointment on %s was cancelled. Reason: %s.", when, item.Reason),
		InApp:         true,
	}
}

func teacherAccountRemovedNotice(teacher models.User, cancelled int) Notice {
	return Notice{
		UserID:    teacher.ID,
		Subject:   SubjectTeacherAccount,
		Body:      fmt.Sprintf("Your teacher account was removed by an administrator. %d upcoming appointment(s) were cancelled.", cancelled),
		ToAddress: teacher.Email,
		ToName:    teacher.FullName,
	}
}

func inviteNotice(user models.User, link string) Notice {
	return Notice{
		UserID:    user.ID,
		Subject:   SubjectInvite,
		Body:      fmt.Sprintf("You have been invited as a teacher. Set your password here: %s", link),
		ToAddress: user.Email,
		ToName:    user.FullName,
	}
}

func passwordResetNotice(user models.User, link string) Notice {
	return Notice{
		UserID:    user.ID,
		Subject:   SubjectPasswordReset,
		Body:      fmt.Sprintf("We received a request to reset your password. Use this link to choose a new one: %s\nIf you did not ask for this, ignore this email.", link),
		ToAddress: user.Email,
		ToName:    user.FullName,
	}
}
