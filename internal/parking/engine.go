// Package parking implements the allocation rules of the lot: deposits,
// pickups, extensions, reservations and the overdue-order transitions.
//
// Every operation runs in one storage transaction, so a failure part way
// leaves no partial effect behind.
package parking

import (
	"context"
	"errors"
	"math/rand/v2"
	"strconv"
	"time"

	"bpark-backend/config"
	"bpark-backend/internal/model"
	"bpark-backend/internal/notification"
	"bpark-backend/internal/store"
)

// Answer codes carried in Result.Code and on the wire.
const (
	StatusOK               = 200
	StatusNoContent        = 204
	StatusBadRequest       = 400
	StatusUnauthorized     = 401
	StatusWasCancelled     = 402
	StatusForbidden        = 403
	StatusNotFound         = 404
	StatusAlreadyCompleted = 407
	StatusConflict         = 409
	StatusServerError      = 500
	StatusUnavailable      = 503
	StatusTimeout          = 504
)

const (
	dateLayout  = "2006-01-02"
	clockLayout = "15:04:05"

	codeAttempts  = 32
	claimAttempts = 3
)

var (
	// ErrCodesExhausted is returned when no free confirmation code was found.
	ErrCodesExhausted = errors.New("could not find an unused confirmation code")
	// ErrInvalidCredentials is returned by Authenticate on a bad email or password.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// errStaleOrder aborts a transaction whose conditional update lost a race.
	errStaleOrder = errors.New("order changed concurrently")
)

// Result is the outcome of an engine operation as seen by the client.
type Result struct {
	Code        int
	Description string
	Args        map[string]string
	Table       []map[string]string
}

// OK reports whether the operation succeeded.
func (r Result) OK() bool {
	return r.Code == StatusOK
}

func reply(code int, description string) Result {
	return Result{Code: code, Description: description}
}

// Engine applies the parking rules against a Store.
type Engine struct {
	store    store.Store
	notifier notification.Notifier
	cfg      config.ParkingConfig
	now      func() time.Time
	code     func() int
}

// Option customises an Engine.
type Option func(*Engine)

// WithClock replaces the wall clock used for every rule.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithCodeSource replaces the confirmation code generator.
func WithCodeSource(next func() int) Option {
	return func(e *Engine) { e.code = next }
}

// New creates an engine. A nil notifier discards events.
func New(s store.Store, n notification.Notifier, cfg config.ParkingConfig, opts ...Option) *Engine {
	if n == nil {
		n = notification.Nop{}
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	e := &Engine{
		store:    s,
		notifier: n,
		cfg:      cfg,
		now:      time.Now,
		code:     randomCode,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Location is the lot timezone used for order dates and times.
func (e *Engine) Location() *time.Location {
	return e.cfg.Location
}

// Now returns the current lot-local time, truncated to the second.
func (e *Engine) Now() time.Time {
	return e.now().In(e.cfg.Location).Truncate(time.Second)
}

func randomCode() int {
	return 1000 + rand.IntN(9000)
}

// issueCode draws confirmation codes until one is not held by any live order.
func (e *Engine) issueCode(ctx context.Context, tx store.Store) (int, error) {
	for attempt := 0; attempt < codeAttempts; attempt++ {
		code := e.code()
		inUse, err := tx.CodeInUse(ctx, code)
		if err != nil {
			return 0, err
		}
		if !inUse {
			return code, nil
		}
	}
	return 0, ErrCodesExhausted
}

// claimAnySpace claims the first available space, retrying when another
// transaction takes it between the read and the conditional update.
func claimAnySpace(ctx context.Context, tx store.Store, code int) (int, error) {
	for attempt := 0; attempt < claimAttempts; attempt++ {
		number, err := tx.FirstAvailableSpace(ctx)
		if err != nil {
			return 0, err
		}
		err = tx.ClaimSpace(ctx, number, code)
		if errors.Is(err, store.ErrSpaceTaken) {
			continue
		}
		if err != nil {
			return 0, err
		}
		return number, nil
	}
	return 0, store.ErrNoSpace
}

func logEvent(ctx context.Context, tx store.Store, order *model.Order, kind model.EventType, at time.Time) error {
	return tx.AppendHistory(ctx, &model.ParkingHistoryEvent{
		SubscriberID: order.SubscriberID,
		ParkingSpace: order.ParkingSpace,
		EventDate:    at.Format(dateLayout),
		EventTime:    at.Format(clockLayout),
		OccurredAt:   at.UTC(),
		EventType:    kind,
		OrderNumber:  order.OrderNumber,
	})
}

func orderArgs(order *model.Order) map[string]string {
	return map[string]string{
		"order_number":      strconv.FormatInt(order.OrderNumber, 10),
		"parking_space":     strconv.Itoa(order.ParkingSpace),
		"confirmation_code": strconv.Itoa(order.ConfirmationCode),
		"order_date":        order.OrderDate,
		"order_time":        order.OrderTime,
	}
}
