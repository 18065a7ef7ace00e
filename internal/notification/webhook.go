package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// WebhookChannel posts embed-style JSON messages to a chat webhook. Order
// events and recovery events may go to different URLs.
type WebhookChannel struct {
	client      *http.Client
	ordersURL   string
	recoveryURL string
}

// NewWebhookChannel creates a webhook channel. An empty URL disables that kind of event.
func NewWebhookChannel(client *http.Client, ordersURL, recoveryURL string) *WebhookChannel {
	return &WebhookChannel{client: client, ordersURL: ordersURL, recoveryURL: recoveryURL}
}

// Name identifies the channel in logs.
func (c *WebhookChannel) Name() string {
	return "webhook"
}

type webhookMessage struct {
	Embeds []webhookEmbed `json:"embeds"`
}

type webhookEmbed struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Color       int            `json:"color"`
	Timestamp   string         `json:"timestamp"`
	Fields      []webhookField `json:"fields"`
}

type webhookField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

var kindColors = map[Kind]int{
	KindLatePickup:   0xE67E22,
	KindCancelOrder:  0xE74C3C,
	KindUserRecovery: 0x3498DB,
}

// Deliver posts the event. Any non-2xx answer is an error.
func (c *WebhookChannel) Deliver(ctx context.Context, ev Event) error {
	url := c.ordersURL
	if ev.Kind == KindUserRecovery {
		url = c.recoveryURL
	}
	if url == "" {
		return nil
	}

	title, body := describe(ev)
	fields := []webhookField{
		{Name: "Subscriber", Value: fmt.Sprintf("%s (#%d)", ev.Name, ev.SubscriberID), Inline: true},
		{Name: "Email", Value: ev.Email, Inline: true},
		{Name: "Phone", Value: ev.Phone, Inline: true},
	}
	if ev.OrderNumber != 0 {
		fields = append(fields,
			webhookField{Name: "Order", Value: fmt.Sprintf("%d", ev.OrderNumber), Inline: true},
			webhookField{Name: "Space", Value: fmt.Sprintf("%d", ev.ParkingSpace), Inline: true})
	}
	msg := webhookMessage{Embeds: []webhookEmbed{{
		Title:       title,
		Description: body,
		Color:       kindColors[ev.Kind],
		Timestamp:   ev.OccurredAt.UTC().Format(time.RFC3339),
		Fields:      fields,
	}}}

	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook answered %d", resp.StatusCode)
	}
	return nil
}
