package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/appointment-booking-api/internal/models"
	appErrors "github.com/noah-isme/appointment-booking-api/pkg/errors"
	"github.com/noah-isme/appointment-booking-api/pkg/export"
)

type reportAppointmentLister interface {
	List(ctx context.Context, actor models.Identity, query models.ListAppointmentsQuery) ([]models.Appointment, int, error)
}

// ReportServiceConfig tunes appointment exports.
type ReportServiceConfig struct {
	Enabled bool
	MaxRows int
}

// ExportFile is a rendered report ready to be sent as an attachment.
type ExportFile struct {
	Filename    string
	ContentType string
	Body        []byte
	Rows        int
}

// ReportService renders appointment listings as CSV or PDF.
type ReportService struct {
	appts  reportAppointmentLister
	users  recipientDirectory
	audit  auditWriter
	opts   SchedulingOptions
	cfg    ReportServiceConfig
	logger *zap.Logger
}

// NewReportService constructs a ReportService.
func NewReportService(appts reportAppointmentLister, users recipientDirectory, audit auditWriter, opts SchedulingOptions, cfg ReportServiceConfig, logger *zap.Logger) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxRows <= 0 || cfg.MaxRows > 500 {
		cfg.MaxRows = 500
	}
	return &ReportService{appts: appts, users: users, audit: audit, opts: opts.normalize(), cfg: cfg, logger: logger}
}

var appointmentReportColumns = []export.Column{
	{Key: "date", Header: "Date", Width: 24},
	{Key: "time", Header: "Time", Width: 24},
	{Key: "teacher", Header: "Teacher", Width: 45},
	{Key: "student", Header: "Student", Width: 45},
	{Key: "status", Header: "Status", Width: 22},
	{Key: "reason", Header: "Reason / Note", Width: 0},
}

// ExportAppointments renders the appointments matching query. Only admins may
// export.
func (s *ReportService) ExportAppointments(ctx context.Context, actor models.Identity, query models.ListAppointmentsQuery, rawFormat string) (*ExportFile, error) {
	if !s.cfg.Enabled {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "reports are disabled")
	}
	if !actor.IsAdmin() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "Forbidden")
	}
	format, err := export.ParseFormat(strings.ToLower(strings.TrimSpace(rawFormat)))
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}

	query.Limit = s.cfg.MaxRows
	query.Offset = 0
	appts, _, err := s.appts.List(ctx, actor, query)
	if err != nil {
		return nil, err
	}

	names := map[string]models.User{}
	if s.users != nil && len(appts) > 0 {
		ids := make([]string, 0, len(appts)*2)
		for _, a := range appts {
			ids = append(ids, a.TeacherID, a.StudentID)
		}
		if names, err = s.users.FindByIDs(ctx, ids); err != nil {
			s.logger.Warn("failed to resolve report names", zap.Error(err))
			names = map[string]models.User{}
		}
	}

	now := s.opts.Now()
	report := export.Report{
		Title:       "Appointments",
		Columns:     appointmentReportColumns,
		Rows:        make([]map[string]string, 0, len(appts)),
		GeneratedAt: now,
	}
	for _, a := range appts {
		window := a.LocalRange(s.opts.Location)
		reason := ""
		if a.CancelReason != nil {
			reason = *a.CancelReason
		} else if a.Note != nil {
			reason = *a.Note
		}
		report.Rows = append(report.Rows, map[string]string{
			"date":    a.LocalDate(s.opts.Location),
			"time":    window.Start + "-" + window.End,
			"teacher": displayName(names, a.TeacherID),
			"student": displayName(names, a.StudentID),
			"status":  string(a.Status),
			"reason":  reason,
		})
	}

	body, err := export.RendererFor(format).Render(report)
	if err != nil {
		return nil, internalError(err, "failed to render report")
	}

	recordAudit(ctx, s.audit, s.logger, actor.UserID, models.AuditActionExport, "appointments", "", map[string]interface{}{
		"format": format,
		"rows":   len(report.Rows),
	})
	return &ExportFile{
		Filename:    fmt.Sprintf("appointments-%s.%s", now.In(s.opts.Location).Format("20060102-150405"), format),
		ContentType: format.ContentType(),
		Body:        body,
		Rows:        len(report.Rows),
	}, nil
}

func displayName(users map[string]models.User, id string) string {
	if u, ok := users[id]; ok && u.FullName != "" {
		return u.FullName
	}
	return id
}

