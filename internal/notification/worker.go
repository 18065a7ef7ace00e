package notification

import (
	"context"
	"net/http"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	log "github.com/sirupsen/logrus"

	"bpark-backend/config"
	"bpark-backend/internal/model"
)

// Channel delivers one event over one transport.
type Channel interface {
	Name() string
	Deliver(ctx context.Context, ev Event) error
}

// WorkerPool manages a pool of workers that deliver events to every channel.
type WorkerPool struct {
	size     int
	jobs     chan Event
	channels []Channel
}

// NewWorkerPool creates a new worker pool with a queue of queueSize events.
func NewWorkerPool(size, queueSize int, channels ...Channel) *WorkerPool {
	if size <= 0 {
		size = 1
	}
	if queueSize <= 0 {
		queueSize = size
	}
	return &WorkerPool{
		size:     size,
		jobs:     make(chan Event, queueSize),
		channels: channels,
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
	log.WithField("worker", id).Debug("Notification worker started")
	for {
		select {
		case ev := <-wp.jobs:
			wp.deliver(ctx, ev)
		case <-ctx.Done():
			log.WithField("worker", id).Debug("Notification worker shutting down")
			return
		}
	}
}

// Notify queues an event. When the queue is full the event is dropped so
// that callers never wait on delivery.
func (wp *WorkerPool) Notify(ev Event) {
	select {
	case wp.jobs <- ev:
	default:
		log.WithFields(log.Fields{"kind": ev.Kind, "subscriber": ev.SubscriberID}).Warn("Notification queue full; dropping event")
	}
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan Event {
	return wp.jobs
}

func (wp *WorkerPool) deliver(ctx context.Context, ev Event) {
	for _, ch := range wp.channels {
		deliverCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := ch.Deliver(deliverCtx, ev)
		cancel()
		fields := log.Fields{"channel": ch.Name(), "kind": ev.Kind, "subscriber": ev.SubscriberID}
		if err != nil {
			log.WithError(err).WithFields(fields).Warn("Notification delivery failed")
			continue
		}
		log.WithFields(fields).Debug("Notification delivered")
	}
}

// New builds the notifier described by cfg. It returns Nop when notifications
// are disabled or no channel is configured; otherwise the pool is started on ctx.
func New(ctx context.Context, cfg config.NotifierConfig, subs SubscriptionStore) Notifier {
	if !cfg.Enabled {
		log.Info("Notifications are disabled.")
		return Nop{}
	}

	var channels []Channel
	if cfg.WebhookOrdersURL != "" || cfg.WebhookRecoveryURL != "" {
		channels = append(channels, NewWebhookChannel(&http.Client{Timeout: 10 * time.Second},
			cfg.WebhookOrdersURL, cfg.WebhookRecoveryURL))
	}
	if cfg.Push.PublicKey != "" && cfg.Push.PrivateKey != "" && subs != nil {
		channels = append(channels, NewWebPushChannel(subs, &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}))
	}
	if len(channels) == 0 {
		log.Warn("Notifications are enabled but no channel is configured.")
		return Nop{}
	}

	pool := NewWorkerPool(cfg.WorkerPoolSize, cfg.QueueSize, channels...)
	pool.Start(ctx)
	return pool
}

// SubscriptionStore is the storage the web push channel needs.
type SubscriptionStore interface {
	ListPushSubscriptions(ctx context.Context, subscriberID int64) ([]model.PushSubscription, error)
	DeletePushSubscription(ctx context.Context, endpoint string) error
}
