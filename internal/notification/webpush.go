package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	log "github.com/sirupsen/logrus"

	"bpark-backend/internal/model"
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

// WebPushChannel pushes events to every browser the subscriber registered.
type WebPushChannel struct {
	subs    SubscriptionStore
	options *webpush.Options
	sender  NotificationSender
}

// NewWebPushChannel creates a channel that uses the real webpush sender.
func NewWebPushChannel(subs SubscriptionStore, options *webpush.Options) *WebPushChannel {
	return &WebPushChannel{subs: subs, options: options, sender: &WebPushSender{}}
}

// Name identifies the channel in logs.
func (c *WebPushChannel) Name() string {
	return "webpush"
}

type pushPayload struct {
	Kind  Kind   `json:"kind"`
	Title string `json:"title"`
	Body  string `json:"body"`
	Order int64  `json:"order_number,omitempty"`
}

// Deliver sends the event to each registered browser. Expired subscriptions are removed.
func (c *WebPushChannel) Deliver(ctx context.Context, ev Event) error {
	subscriptions, err := c.subs.ListPushSubscriptions(ctx, ev.SubscriberID)
	if err != nil {
		return err
	}
	if len(subscriptions) == 0 {
		return nil
	}

	title, body := describe(ev)
	payload, err := json.Marshal(pushPayload{Kind: ev.Kind, Title: title, Body: body, Order: ev.OrderNumber})
	if err != nil {
		return err
	}

	var failed int
	for _, sub := range subscriptions {
		if err := c.send(ctx, sub, payload); err != nil {
			log.WithError(err).WithField("endpoint", sub.Endpoint).Warn("Web push failed")
			failed++
		}
	}
	if failed == len(subscriptions) {
		return fmt.Errorf("all %d web push deliveries failed", failed)
	}
	return nil
}

// send sends a single web push notification.
func (c *WebPushChannel) send(ctx context.Context, sub model.PushSubscription, payload []byte) error {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := c.sender.Send(payload, wpSub, c.options)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// Handle expired subscriptions
	if resp.StatusCode == http.StatusGone {
		log.WithField("endpoint", sub.Endpoint).Info("Push subscription expired. Deleting.")
		return c.subs.DeletePushSubscription(ctx, sub.Endpoint)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("push service answered %d", resp.StatusCode)
	}
	return nil
}

// describe renders the human text shared by every channel.
func describe(ev Event) (title, body string) {
	switch ev.Kind {
	case KindLatePickup:
		return "Late pickup",
			fmt.Sprintf("Hi %s, your vehicle in space %d (order %d) has passed its parking time. Please pick it up.",
				ev.Name, ev.ParkingSpace, ev.OrderNumber)
	case KindCancelOrder:
		return "Reservation cancelled",
			fmt.Sprintf("Hi %s, your reservation %d was cancelled because the vehicle did not arrive in time.",
				ev.Name, ev.OrderNumber)
	case KindUserRecovery:
		code := "none"
		if ev.Code != 0 {
			code = fmt.Sprintf("%d", ev.Code)
		}
		return "Account recovery",
			fmt.Sprintf("Hi %s, your subscriber id is %d and your active parking code is %s.",
				ev.Name, ev.SubscriberID, code)
	}
	return string(ev.Kind), ""
}
