package service

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/appointment-booking-api/internal/models"
	appErrors "github.com/noah-isme/appointment-booking-api/pkg/errors"
	"github.com/noah-isme/appointment-booking-api/pkg/events"
	"github.com/noah-isme/appointment-booking-api/pkg/jobs"
	"github.com/noah-isme/appointment-booking-api/pkg/mailer"
)

// Job types handled by the notification queue.
const (
	JobTypeEmail = "notification.email"
	JobTypeEvent = "notification.event"
)

// Notice is one message to one user. An empty Subject skips email and
// InApp=false skips the notifications table.
type Notice struct {
	UserID        string
	AppointmentID string
	Kind          models.NotificationKind
	Message       string
	Subject       string
	Body          string
	InApp         bool
	// ToAddress and ToName bypass the user lookup, for accounts that no longer exist.
	ToAddress string
	ToName    string
}

// Outbox collects the notices and events produced by one state change.
type Outbox struct {
	Notices []Notice
	Events  []events.Event
}

// Add appends notices.
func (o *Outbox) Add(notices ...Notice) {
	o.Notices = append(o.Notices, notices...)
}

// Emit appends a domain event for the aggregate.
func (o *Outbox) Emit(eventType, aggregateID string, data interface{}) {
	o.Events = append(o.Events, events.Event{
		ID:          uuid.NewString(),
		Type:        eventType,
		AggregateID: aggregateID,
		OccurredAt:  time.Now().UTC(),
		Data:        data,
	})
}

// Empty reports whether there is nothing to record or dispatch.
func (o *Outbox) Empty() bool {
	return o == nil || (len(o.Notices) == 0 && len(o.Events) == 0)
}

type notificationRepository interface {
	CreateBatch(ctx context.Context, exec sqlx.ExtContext, items []models.Notification) error
	ListByUser(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, error)
	MarkRead(ctx context.Context, id, userID string) error
}

type recipientDirectory interface {
	FindByIDs(ctx context.Context, ids []string) (map[string]models.User, error)
}

type jobEnqueuer interface {
	Enqueue(job jobs.Job) error
}

// outboxWriter is what state-changing services need from the dispatcher.
type outboxWriter interface {
	Record(ctx context.Context, exec sqlx.ExtContext, outbox *Outbox) error
	Dispatch(ctx context.Context, outbox *Outbox)
}

// NotificationService writes in-app notifications inside the caller's
// transaction and fans emails and events out on a worker queue after commit.
// Delivery failures are logged and never surface to the caller.
type NotificationService struct {
	repo      notificationRepository
	users     recipientDirectory
	mail      mailer.Mailer
	publisher events.Publisher
	queue     jobEnqueuer
	metrics   *MetricsService
	appName   string
	logger    *zap.Logger
}

// NewNotificationService constructs the dispatcher. AttachQueue must be called
// before Dispatch for asynchronous delivery; without a queue delivery is inline.
func NewNotificationService(repo notificationRepository, users recipientDirectory, mail mailer.Mailer, publisher events.Publisher, metrics *MetricsService, appName string, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if mail == nil {
		mail = mailer.NewLogMailer(logger)
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if appName == "" {
		appName = "Student-Teacher Booking"
	}
	return &NotificationService{repo: repo, users: users, mail: mail, publisher: publisher, metrics: metrics, appName: appName, logger: logger}
}

// AttachQueue wires the worker queue used for delivery.
func (s *NotificationService) AttachQueue(queue jobEnqueuer) {
	s.queue = queue
}

// Record inserts the in-app notifications of the outbox using exec.
func (s *NotificationService) Record(ctx context.Context, exec sqlx.ExtContext, outbox *Outbox) error {
	if outbox.Empty() || s.repo == nil {
		return nil
	}
	items := make([]models.Notification, 0, len(outbox.Notices))
	for _, notice := range outbox.Notices {
		if !notice.InApp || notice.UserID == "" {
			continue
		}
		item := models.Notification{UserID: notice.UserID, Kind: notice.Kind, Message: notice.Message}
		if notice.AppointmentID != "" {
			item.AppointmentID = stringPtr(notice.AppointmentID)
		}
		items = append(items, item)
	}
	if err := s.repo.CreateBatch(ctx, exec, items); err != nil {
		return internalError(err, "failed to record notifications")
	}
	return nil
}

// Dispatch resolves recipients and enqueues emails and events.
func (s *NotificationService) Dispatch(ctx context.Context, outbox *Outbox) {
	if outbox.Empty() {
		return
	}
	for _, msg := range s.resolve(ctx, outbox.Notices) {
		s.enqueue(ctx, jobs.Job{ID: uuid.NewString(), Type: JobTypeEmail, Payload: msg})
	}
	if len(outbox.Events) > 0 {
		s.enqueue(ctx, jobs.Job{ID: uuid.NewString(), Type: JobTypeEvent, Payload: outbox.Events})
	}
}

// Handle delivers one queued job.
func (s *NotificationService) Handle(ctx context.Context, job jobs.Job) error {
	switch job.Type {
	case JobTypeEmail:
		msg, ok := job.Payload.(mailer.Message)
		if !ok {
			return fmt.Errorf("unexpected email payload %T", job.Payload)
		}
		err := s.mail.Send(ctx, msg)
		s.metrics.RecordNotification("email", err)
		return err
	case JobTypeEvent:
		evts, ok := job.Payload.([]events.Event)
		if !ok {
			return fmt.Errorf("unexpected event payload %T", job.Payload)
		}
		err := s.publisher.Publish(ctx, evts...)
		s.metrics.RecordNotification("event", err)
		return err
	default:
		return fmt.Errorf("unknown notification job type %q", job.Type)
	}
}

// List returns a user's in-app notifications.
func (s *NotificationService) List(ctx context.Context, userID string, unreadOnly bool, limit int) ([]models.Notification, error) {
	items, err := s.repo.ListByUser(ctx, models.NotificationFilter{UserID: userID, UnreadOnly: unreadOnly, Limit: limit})
	if err != nil {
		return nil, internalError(err, "failed to list notifications")
	}
	return items, nil
}

// MarkRead marks a notification owned by userID as read.
func (s *NotificationService) MarkRead(ctx context.Context, id, userID string) error {
	if err := s.repo.MarkRead(ctx, id, userID); err != nil {
		if isNoRows(err) {
			return appErrors.Clone(appErrors.ErrNotFound, "notification not found")
		}
		return internalError(err, "failed to update notification")
	}
	return nil
}

func (s *NotificationService) resolve(ctx context.Context, notices []Notice) []mailer.Message {
	ids := make([]string, 0, len(notices))
	seen := make(map[string]struct{}, len(notices))
	for _, n := range notices {
		if n.Subject == "" || n.ToAddress != "" || n.UserID == "" {
			continue
		}
		if _, ok := seen[n.UserID]; ok {
			continue
		}
		seen[n.UserID] = struct{}{}
		ids = append(ids, n.UserID)
	}

	directory := map[string]models.User{}
	if len(ids) > 0 && s.users != nil {
		found, err := s.users.FindByIDs(ctx, ids)
		if err != nil {
			s.logger.Warn("failed to resolve notification recipients", zap.Error(err))
		} else {
			directory = found
		}
	}

	messages := make([]mailer.Message, 0, len(notices))
	for _, n := range notices {
		if n.Subject == "" {
			continue
		}
		address, name := n.ToAddress, n.ToName
		if address == "" {
			user, ok := directory[n.UserID]
			if !ok || user.Email == "" {
				s.logger.Debug("skipping email without recipient address", zap.String("user_id", n.UserID), zap.String("subject", n.Subject))
				continue
			}
			address, name = user.Email, user.FullName
		}
		messages = append(messages, s.compose(name, address, n))
	}
	return messages
}

func (s *NotificationService) compose(name, address string, n Notice) mailer.Message {
	greeting := "Hi,"
	if strings.TrimSpace(name) != "" {
		greeting = fmt.Sprintf("Hi %s,", name)
	}
	body := n.Body
	if body == "" {
		body = n.Message
	}
	text := fmt.Sprintf("%s\n\n%s\n\n%s", greeting, body, s.appName)
	htmlBody := fmt.Sprintf("<p>%s</p><p>%s</p><p>%s</p>", html.EscapeString(greeting), html.EscapeString(body), html.EscapeString(s.appName))
	return mailer.Message{ToName: name, ToAddress: address, Subject: n.Subject, Text: text, HTML: htmlBody}
}

func (s *NotificationService) enqueue(ctx context.Context, job jobs.Job) {
	if s.queue == nil {
		s.deliverInline(ctx, job)
		return
	}
	err := s.queue.Enqueue(job)
	switch {
	case err == nil:
	case errors.Is(err, jobs.ErrQueueStopped):
		s.deliverInline(ctx, job)
	default:
		s.metrics.RecordNotification("queue", err)
		s.logger.Warn("dropping notification job", zap.String("type", job.Type), zap.Error(err))
	}
}

func (s *NotificationService) deliverInline(ctx context.Context, job jobs.Job) {
	if err := s.Handle(context.WithoutCancel(ctx), job); err != nil {
		s.logger.Warn("notification delivery failed", zap.String("type", job.Type), zap.Error(err))
	}
}
