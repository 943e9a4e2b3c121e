package websocket

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kinfolk/backend/internal/logger"
	"github.com/kinfolk/backend/internal/metrics"
	"github.com/kinfolk/backend/internal/models"
	"github.com/kinfolk/backend/internal/telemetry"
	"go.uber.org/zap"
)

var (
	ErrUnknownKind   = errors.New("unknown notification kind")
	ErrMissingTarget = errors.New("notification has no target user")
	ErrNotifierFull  = errors.New("notification queue full")
)

const deliverTimeout = 10 * time.Second

// NotificationStore persists notifications and reports unread counts
type NotificationStore interface {
	CreateNotification(ctx context.Context, n *models.Notification) error
	CountUnread(ctx context.Context, userID string) (int64, error)
}

// UserLookup loads users for offline email decisions
type UserLookup interface {
	GetUser(ctx context.Context, userID string) (*models.User, error)
}

// EmailSender sends the offline notification email
type EmailSender interface {
	SendNotificationEmail(ctx context.Context, to *models.User, kind models.NotificationKind, actorName string) error
}

// NotifierConfig sizes the worker pool
type NotifierConfig struct {
	Workers   int
	QueueSize int
}

// DefaultNotifierConfig returns sensible defaults
func DefaultNotifierConfig() NotifierConfig {
	return NotifierConfig{Workers: 4, QueueSize: 1024}
}

type notifyJob struct {
	ctx context.Context
	n   models.Notification
}

// Notifier is the notification fan-out. Callers hand it notifications after
// their own write has committed; persistence and push happen on a worker so
// the caller's response never waits on or fails because of them.
type Notifier struct {
	hub    *Hub
	store  NotificationStore
	users  UserLookup
	email  EmailSender
	events *telemetry.BusinessEvents
	prom   *metrics.Metrics

	queue    chan notifyJob
	workers  int
	quit     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	started  atomic.Bool
}

// NewNotifier creates the fan-out. users and email may be nil, which
// disables offline email.
func NewNotifier(hub *Hub, store NotificationStore, users UserLookup, email EmailSender, config NotifierConfig) *Notifier {
	if config.Workers <= 0 {
		config.Workers = DefaultNotifierConfig().Workers
	}
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultNotifierConfig().QueueSize
	}

	return &Notifier{
		hub:     hub,
		store:   store,
		users:   users,
		email:   email,
		events:  telemetry.NewBusinessEvents(),
		prom:    metrics.Get(),
		queue:   make(chan notifyJob, config.QueueSize),
		workers: config.Workers,
		quit:    make(chan struct{}),
	}
}

// Start launches the worker pool
func (n *Notifier) Start() {
	if !n.started.CompareAndSwap(false, true) {
		return
	}
	for i := 0; i < n.workers; i++ {
		n.wg.Add(1)
		go n.worker(i)
	}
	logger.Log.Info("Notification workers started", zap.Int("workers", n.workers))
}

// Stop drains queued notifications and waits for the workers, bounded by ctx
func (n *Notifier) Stop(ctx context.Context) error {
	n.stopOnce.Do(func() {
		close(n.quit)
	})

	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("notifier stop: %w", ctx.Err())
	}
}

// Notify queues a notification and returns immediately. When the queue is
// full the notification is dropped and logged.
func (n *Notifier) Notify(ctx context.Context, notification models.Notification) {
	if err := n.enqueue(ctx, notification); err != nil {
		n.prom.NotificationsTotal.WithLabelValues(string(notification.Kind), "dropped").Inc()
		logger.Log.Warn("Dropping notification",
			logger.WithUserID(notification.UserID),
			logger.WithKind(string(notification.Kind)),
			zap.Error(err))
	}
}

func (n *Notifier) enqueue(ctx context.Context, notification models.Notification) error {
	select {
	case <-n.quit:
		return ErrHubClosed
	default:
	}

	// The caller's request is about to finish; keep its values, not its deadline
	job := notifyJob{ctx: context.WithoutCancel(ctx), n: notification}
	select {
	case n.queue <- job:
		n.prom.NotificationQueueDepth.Set(float64(len(n.queue)))
		return nil
	default:
		return ErrNotifierFull
	}
}

// Pending returns the number of queued notifications
func (n *Notifier) Pending() int {
	return len(n.queue)
}

func (n *Notifier) worker(id int) {
	defer n.wg.Done()
	for {
		select {
		case job := <-n.queue:
			n.run(job)
		case <-n.quit:
			for {
				select {
				case job := <-n.queue:
					n.run(job)
				default:
					logger.Log.Debug("Notification worker stopped", zap.Int("worker", id))
					return
				}
			}
		}
	}
}

func (n *Notifier) run(job notifyJob) {
	n.prom.NotificationQueueDepth.Set(float64(len(n.queue)))

	ctx, cancel := context.WithTimeout(job.ctx, deliverTimeout)
	defer cancel()

	notification := job.n
	// Errors are logged and counted inside Deliver
	_ = n.Deliver(ctx, &notification)
}

// Deliver persists one notification and pushes it to the target's channel.
// An offline target with email enabled also gets an email. Errors are
// logged and counted; workers ignore them.
func (n *Notifier) Deliver(ctx context.Context, notification *models.Notification) error {
	kind := string(notification.Kind)

	switch {
	case !notification.Kind.Valid():
		n.prom.NotificationsTotal.WithLabelValues("unknown", "invalid").Inc()
		logger.Log.Warn("Rejected notification with unknown kind", logger.WithKind(kind))
		return fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	case notification.UserID == "":
		n.prom.NotificationsTotal.WithLabelValues(kind, "invalid").Inc()
		return ErrMissingTarget
	}

	ctx, span := n.events.TraceNotification(ctx, kind, notification.UserID)

	if err := n.store.CreateNotification(ctx, notification); err != nil {
		n.prom.NotificationsTotal.WithLabelValues(kind, "failed").Inc()
		telemetry.EndSpan(span, err)
		logger.Log.Error("Failed to persist notification",
			logger.WithUserID(notification.UserID),
			logger.WithKind(kind),
			zap.Error(err))
		return fmt.Errorf("persist notification: %w", err)
	}

	delivered := n.hub.Publish(notification.UserID, NewMessage(MessageTypeNotification, NewNotificationPayload(notification)))
	if delivered > 0 {
		n.publishCount(ctx, notification.UserID)
	}

	n.prom.NotificationsTotal.WithLabelValues(kind, "created").Inc()
	telemetry.RecordDelivered(span, delivered)
	telemetry.EndSpan(span, nil)

	logger.Log.Debug("Notification delivered",
		logger.WithNotificationID(notification.ID),
		logger.WithUserID(notification.UserID),
		logger.WithKind(kind),
		zap.Int("connections", delivered))

	if !n.hub.IsOnline(notification.UserID) {
		n.sendEmail(ctx, notification)
	}
	return nil
}

func (n *Notifier) publishCount(ctx context.Context, userID string) {
	count, err := n.store.CountUnread(ctx, userID)
	if err != nil {
		logger.Log.Warn("Failed to count unread notifications", logger.WithUserID(userID), zap.Error(err))
		return
	}
	n.hub.Publish(userID, NewMessage(MessageTypeNotificationCount, NotificationCountPayload{UnreadCount: count}))
}

func (n *Notifier) sendEmail(ctx context.Context, notification *models.Notification) {
	if n.email == nil || n.users == nil {
		return
	}

	target, err := n.users.GetUser(ctx, notification.UserID)
	if err != nil {
		logger.Log.Warn("Failed to load notification target", logger.WithUserID(notification.UserID), zap.Error(err))
		return
	}
	if !target.EmailNotifications || target.Email == "" {
		return
	}

	var actorName string
	if notification.ActorID != nil {
		if actor, err := n.users.GetUser(ctx, *notification.ActorID); err == nil {
			actorName = actor.DisplayName
		}
	}

	if err := n.email.SendNotificationEmail(ctx, target, notification.Kind, actorName); err != nil {
		n.prom.NotificationsTotal.WithLabelValues(string(notification.Kind), "email_failed").Inc()
		logger.Log.Warn("Failed to send notification email",
			logger.WithUserID(notification.UserID),
			logger.WithKind(string(notification.Kind)),
			zap.Error(err))
		return
	}
	n.prom.NotificationsTotal.WithLabelValues(string(notification.Kind), "emailed").Inc()
}
