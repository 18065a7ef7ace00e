package notification

import "time"

// Kind names the reason a subscriber is being contacted.
type Kind string

const (
	KindLatePickup   Kind = "LatePickup"
	KindCancelOrder  Kind = "CancelOrder"
	KindUserRecovery Kind = "UserRecovery"
)

// Event is a single outbound notification about a subscriber's order or account.
type Event struct {
	Kind         Kind
	SubscriberID int64
	Name         string
	Email        string
	Phone        string
	OrderNumber  int64
	ParkingSpace int
	Code         int
	OccurredAt   time.Time
}

// Notifier accepts events for best-effort delivery. Notify never blocks on the
// network and never reports delivery failure to the caller.
type Notifier interface {
	Notify(ev Event)
}

// Nop is the Notifier used when no channel is configured.
type Nop struct{}

// Notify discards the event.
func (Nop) Notify(Event) {}
