package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"bpark-backend/internal/model"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("record not found")
	// ErrEmailTaken is returned when another subscriber already owns the email.
	ErrEmailTaken = errors.New("email already in use")
	// ErrPhoneTaken is returned when another subscriber already owns the phone number.
	ErrPhoneTaken = errors.New("phone number already in use")
	// ErrSpaceTaken is returned when a conditional claim found the space no longer available.
	ErrSpaceTaken = errors.New("parking space is no longer available")
	// ErrNoSpace is returned when no parking space satisfies the request.
	ErrNoSpace = errors.New("no available parking space")
)

// Store defines the interface for all database operations.
type Store interface {
	DB() *gorm.DB
	// Transaction runs fn against a Store bound to a single database transaction.
	Transaction(ctx context.Context, fn func(tx Store) error) error

	CreateSubscriber(ctx context.Context, sub *model.Subscriber) error
	UpdateSubscriberContact(ctx context.Context, id int64, email, phone, passwordHash string) error
	GetSubscriber(ctx context.Context, id int64) (*model.Subscriber, error)
	GetSubscriberByEmail(ctx context.Context, email string) (*model.Subscriber, error)
	ListSubscriberIDs(ctx context.Context, role model.Role) ([]int64, error)

	CreateOrder(ctx context.Context, order *model.Order) error
	GetOrder(ctx context.Context, orderNumber int64) (*model.Order, error)
	FindOrderByCode(ctx context.Context, subscriberID int64, code int) (*model.Order, error)
	HasOccupyingOrder(ctx context.Context, subscriberID int64) (bool, error)
	HasPendingReservation(ctx context.Context, subscriberID int64, date string) (bool, error)
	CountOrdersOn(ctx context.Context, date string) (int64, error)
	CodeInUse(ctx context.Context, code int) (bool, error)
	TransitionOrder(ctx context.Context, orderNumber int64, from []model.OrderStatus, to model.OrderStatus) (bool, error)
	ActivateReservation(ctx context.Context, orderNumber int64, space, code int) (bool, error)
	MarkExtended(ctx context.Context, orderNumber int64) (bool, error)
	MarkLate(ctx context.Context, orderNumber int64) (bool, error)
	ListUnnotifiedActive(ctx context.Context) ([]model.Order, error)
	ListPendingScheduledBefore(ctx context.Context, cutoff time.Time) ([]model.Order, error)

	CountSpaces(ctx context.Context) (int64, error)
	CountOccupiedSpaces(ctx context.Context) (int64, error)
	FirstAvailableSpace(ctx context.Context) (int, error)
	ClaimSpace(ctx context.Context, number, code int) error
	ReleaseSpace(ctx context.Context, number int) error
	FindSpaceFreeAt(ctx context.Context, date, clock string) (int, error)
	ParkingTable(ctx context.Context) ([]SpaceRow, error)
	ActiveParkingCode(ctx context.Context, subscriberID int64) (int, bool, error)

	AppendHistory(ctx context.Context, event *model.ParkingHistoryEvent) error
	ListHistory(ctx context.Context, subscriberID int64) ([]model.ParkingHistoryEvent, error)
	LastEventAt(ctx context.Context, orderNumber int64, eventType model.EventType) (time.Time, error)
	ListMonthEvents(ctx context.Context, year, month int) ([]model.ParkingHistoryEvent, error)

	SaveReport(ctx context.Context, snapshot *model.ReportSnapshot) error
	GetReport(ctx context.Context, reportType model.ReportType, year, month int) (*model.ReportSnapshot, error)

	UpsertPushSubscription(ctx context.Context, sub *model.PushSubscription) error
	GetPushSubscription(ctx context.Context, endpoint string) (*model.PushSubscription, error)
	ListPushSubscriptions(ctx context.Context, subscriberID int64) ([]model.PushSubscription, error)
	DeletePushSubscription(ctx context.Context, endpoint string) error
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

// DB exposes the underlying handle for callers that need raw access.
func (s *gormStore) DB() *gorm.DB {
	return s.db
}

// Transaction wraps fn in a database transaction. Nested calls use savepoints.
func (s *gormStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormStore{db: tx})
	})
}

func (s *gormStore) conn(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

// first loads a single row into dest and maps a missing row to ErrNotFound.
func first(q *gorm.DB, dest any, what string) error {
	err := q.First(dest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", what, err)
	}
	return nil
}

func exists(q *gorm.DB, what string) (bool, error) {
	var count int64
	if err := q.Limit(1).Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check %s: %w", what, err)
	}
	return count > 0, nil
}
