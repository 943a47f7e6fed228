package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/sirupsen/logrus"

	"laundry-smart-queue/internal/metrics"
	"laundry-smart-queue/internal/model"
)

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// SubscriptionStore is the persistence the worker pool needs.
type SubscriptionStore interface {
	GetMachine(ctx context.Context, id string) (model.Machine, error)
	SubscriptionsForMachine(ctx context.Context, machineID string) ([]model.PushSubscription, error)
	DeleteSubscription(ctx context.Context, endpoint string) error
}

// Message is the JSON payload delivered to the browser.
type Message struct {
	Title     string `json:"title"`
	Body      string `json:"body"`
	MachineID string `json:"machine_id"`
}

// WorkerPool manages a pool of workers for sending "laundry done" notifications.
type WorkerPool struct {
	size    int
	jobs    chan string
	store   SubscriptionStore
	webpush *webpush.Options
	sender  NotificationSender
	log     logrus.FieldLogger
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size int, st SubscriptionStore, webpushOptions *webpush.Options, log logrus.FieldLogger) *WorkerPool {
	if size <= 0 {
		size = 1
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &WorkerPool{
		size:    size,
		jobs:    make(chan string, size*4), // Buffered channel
		store:   st,
		webpush: webpushOptions,
		sender:  &WebPushSender{}, // Use the real sender by default
		log:     log,
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

// worker is the actual worker goroutine.
func (wp *WorkerPool) worker(ctx context.Context, id int) {
	log := wp.log.WithField("worker", id)
	log.Debug("push worker started")
	for {
		select {
		case machineID := <-wp.jobs:
			log.WithField("machine_id", machineID).Debug("processing push job")
			wp.sendNotificationsForMachine(ctx, machineID)
		case <-ctx.Done():
			log.Debug("push worker shutting down")
			return
		}
	}
}

// Dispatch queues a job for machineID. When the queue is full the job is
// dropped and counted; completion has already been persisted.
func (wp *WorkerPool) Dispatch(machineID string) {
	select {
	case wp.jobs <- machineID:
	default:
		metrics.IncPushResult("dropped")
		wp.log.WithField("machine_id", machineID).Warn("push queue full; dropping notification")
	}
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan string {
	return wp.jobs
}

// sendNotificationsForMachine fetches subscriptions and sends notifications for a given machine.
func (wp *WorkerPool) sendNotificationsForMachine(ctx context.Context, machineID string) {
	subscriptions, err := wp.store.SubscriptionsForMachine(ctx, machineID)
	if err != nil {
		wp.log.WithError(err).WithField("machine_id", machineID).Error("fetching subscriptions failed")
		return
	}

	if len(subscriptions) == 0 {
		return
	}

	machineLabel := machineID
	if machine, err := wp.store.GetMachine(ctx, machineID); err != nil {
		wp.log.WithError(err).WithField("machine_id", machineID).Warn("machine lookup failed; using id as label")
	} else if machine.Name != "" {
		machineLabel = machine.Name
	}

	payload, err := json.Marshal(Message{
		Title:     "Laundry done",
		Body:      DoneMessage(machineLabel),
		MachineID: machineID,
	})
	if err != nil {
		wp.log.WithError(err).Error("encoding push payload failed")
		return
	}

	wp.log.WithFields(logrus.Fields{"machine_id": machineID, "count": len(subscriptions)}).Info("sending push notifications")
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, payload)
	}
}

// DoneMessage is the text shown when a machine finishes.
func DoneMessage(machineLabel string) string {
	return fmt.Sprintf("%s is done. Your laundry is ready.", machineLabel)
}

// sendNotification sends a single web push notification.
func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) {
	// Manually construct the webpush.Subscription object
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		metrics.IncPushResult("error")
		wp.log.WithError(err).WithField("endpoint", sub.Endpoint).Warn("sending notification failed")
		return
	}
	defer resp.Body.Close()

	// Handle expired subscriptions
	if resp.StatusCode == http.StatusGone {
		metrics.IncPushResult("expired")
		wp.log.WithField("endpoint", sub.Endpoint).Info("subscription expired; deleting")
		if err := wp.store.DeleteSubscription(ctx, sub.Endpoint); err != nil {
			wp.log.WithError(err).WithField("endpoint", sub.Endpoint).Error("deleting expired subscription failed")
		}
		return
	}
	metrics.IncPushResult("sent")
}
