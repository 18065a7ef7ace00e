package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/SherClockHolmes/webpush-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"bpark-backend/config"
	"bpark-backend/internal/store"
)

// mockSender is a mock implementation of the NotificationSender interface.
type mockSender struct {
	SendFunc func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// Send calls the mock SendFunc.
func (m *mockSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return m.SendFunc(payload, sub, options)
}

// A helper function to create a mock database connection.
func newTestDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{})
	require.NoError(t, err)

	return gormDB, mock
}

type recordingChannel struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (c *recordingChannel) Name() string { return "recording" }

func (c *recordingChannel) Deliver(_ context.Context, ev Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return c.err
}

func (c *recordingChannel) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func TestWorkerPool_Notify(t *testing.T) {
	wp := NewWorkerPool(1, 1)

	wp.Notify(Event{Kind: KindLatePickup, SubscriberID: 5})

	select {
	case job := <-wp.Jobs():
		assert.Equal(t, int64(5), job.SubscriberID)
	case <-time.After(1 * time.Second):
		t.Fatal("timed out waiting for job to be dispatched")
	}
}

func TestWorkerPool_NotifyNeverBlocks(t *testing.T) {
	wp := NewWorkerPool(1, 1)

	done := make(chan struct{})
	go func() {
		// No workers are running, so the second and third events must be dropped.
		wp.Notify(Event{Kind: KindLatePickup})
		wp.Notify(Event{Kind: KindCancelOrder})
		wp.Notify(Event{Kind: KindUserRecovery})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Notify blocked on a full queue")
	}
	assert.Len(t, wp.Jobs(), 1)
}

func TestWorkerPool_DeliversToEveryChannel(t *testing.T) {
	failing := &recordingChannel{err: errors.New("unreachable")}
	healthy := &recordingChannel{}
	wp := NewWorkerPool(2, 8, failing, healthy)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	wp.Start(ctx)

	for i := 0; i < 3; i++ {
		wp.Notify(Event{Kind: KindCancelOrder, OrderNumber: int64(i)})
	}

	assert.Eventually(t, func() bool {
		return failing.Count() == 3 && healthy.Count() == 3
	}, time.Second, 10*time.Millisecond)
}

func TestWebPushChannel(t *testing.T) {
	ctx := context.Background()

	t.Run("sends to every registered browser", func(t *testing.T) {
		gormDB, mock := newTestDB(t)
		ch := NewWebPushChannel(store.NewGormStore(gormDB), &webpush.Options{})

		var sent []string
		ch.sender = &mockSender{
			SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
				var body pushPayload
				require.NoError(t, json.Unmarshal(payload, &body))
				assert.Equal(t, KindLatePickup, body.Kind)
				assert.Equal(t, int64(77), body.Order)
				sent = append(sent, sub.Endpoint)
				return &http.Response{
					StatusCode: http.StatusCreated,
					Body:       io.NopCloser(bytes.NewBufferString("")),
				}, nil
			},
		}

		mock.ExpectQuery(`SELECT \* FROM "push_subscriptions" WHERE subscriber_id = \$1`).
			WithArgs(12).
			WillReturnRows(sqlmock.NewRows([]string{"endpoint", "subscriber_id", "p256dh", "auth", "created_at"}).
				AddRow("https://push.example/a", 12, "k1", "a1", time.Now()).
				AddRow("https://push.example/b", 12, "k2", "a2", time.Now()))

		err := ch.Deliver(ctx, Event{Kind: KindLatePickup, SubscriberID: 12, OrderNumber: 77, Name: "Dana"})
		require.NoError(t, err)
		assert.Equal(t, []string{"https://push.example/a", "https://push.example/b"}, sent)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("deletes expired subscription", func(t *testing.T) {
		gormDB, mock := newTestDB(t)
		ch := NewWebPushChannel(store.NewGormStore(gormDB), &webpush.Options{})
		ch.sender = &mockSender{
			SendFunc: func(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
				return &http.Response{
					StatusCode: http.StatusGone,
					Body:       io.NopCloser(bytes.NewBufferString("")),
				}, nil
			},
		}

		mock.ExpectQuery(`SELECT \* FROM "push_subscriptions" WHERE subscriber_id = \$1`).
			WithArgs(3).
			WillReturnRows(sqlmock.NewRows([]string{"endpoint", "subscriber_id", "p256dh", "auth", "created_at"}).
				AddRow("https://push.example/expired", 3, "k", "a", time.Now()))
		mock.ExpectBegin()
		mock.ExpectExec(`DELETE FROM "push_subscriptions" WHERE endpoint = \$1`).
			WithArgs("https://push.example/expired").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		require.NoError(t, ch.Deliver(ctx, Event{Kind: KindCancelOrder, SubscriberID: 3}))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no subscriptions is not an error", func(t *testing.T) {
		gormDB, mock := newTestDB(t)
		ch := NewWebPushChannel(store.NewGormStore(gormDB), &webpush.Options{})
		ch.sender = &mockSender{
			SendFunc: func([]byte, *webpush.Subscription, *webpush.Options) (*http.Response, error) {
				t.Fatal("nothing should be sent")
				return nil, nil
			},
		}

		mock.ExpectQuery(`SELECT \* FROM "push_subscriptions" WHERE subscriber_id = \$1`).
			WithArgs(4).
			WillReturnRows(sqlmock.NewRows([]string{"endpoint"}))

		assert.NoError(t, ch.Deliver(ctx, Event{Kind: KindUserRecovery, SubscriberID: 4}))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestWebhookChannel(t *testing.T) {
	var mu sync.Mutex
	received := map[string]webhookMessage{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var msg webhookMessage
		if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		mu.Lock()
		received[r.URL.Path] = msg
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	ch := NewWebhookChannel(server.Client(), server.URL+"/orders", server.URL+"/recovery")
	when := time.Date(2026, 10, 18, 13, 1, 0, 0, time.UTC)

	require.NoError(t, ch.Deliver(context.Background(), Event{
		Kind: KindLatePickup, SubscriberID: 9, Name: "Noa", Email: "noa@example.com",
		Phone: "0502222222", OrderNumber: 31, ParkingSpace: 4, OccurredAt: when,
	}))
	require.NoError(t, ch.Deliver(context.Background(), Event{
		Kind: KindUserRecovery, SubscriberID: 9, Name: "Noa", OccurredAt: when,
	}))

	mu.Lock()
	defer mu.Unlock()
	late := received["/orders"]
	require.Len(t, late.Embeds, 1)
	assert.Equal(t, "Late pickup", late.Embeds[0].Title)
	assert.Equal(t, "2026-10-18T13:01:00Z", late.Embeds[0].Timestamp)
	assert.Len(t, late.Embeds[0].Fields, 5)

	recovery := received["/recovery"]
	require.Len(t, recovery.Embeds, 1)
	assert.Equal(t, "Account recovery", recovery.Embeds[0].Title)
}

func TestWebhookChannel_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	ch := NewWebhookChannel(server.Client(), server.URL, "")
	assert.Error(t, ch.Deliver(context.Background(), Event{Kind: KindCancelOrder}))
	// Recovery events have no URL configured and are skipped.
	assert.NoError(t, ch.Deliver(context.Background(), Event{Kind: KindUserRecovery}))
}

func TestNew_DisabledIsNop(t *testing.T) {
	n := New(context.Background(), config.NotifierConfig{Enabled: false, WebhookOrdersURL: "http://x"}, nil)
	assert.IsType(t, Nop{}, n)

	n = New(context.Background(), config.NotifierConfig{Enabled: true}, nil)
	assert.IsType(t, Nop{}, n)
}
