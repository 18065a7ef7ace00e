package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bpark-backend/internal/model"
)

// AppendHistory records a parking event. History rows are never updated.
func (s *gormStore) AppendHistory(ctx context.Context, event *model.ParkingHistoryEvent) error {
	if err := s.conn(ctx).Create(event).Error; err != nil {
		return fmt.Errorf("failed to append %s event for order %d: %w", event.EventType, event.OrderNumber, err)
	}
	return nil
}

// ListHistory returns the subscriber's events, newest first.
func (s *gormStore) ListHistory(ctx context.Context, subscriberID int64) ([]model.ParkingHistoryEvent, error) {
	var events []model.ParkingHistoryEvent
	if err := s.conn(ctx).
		Where("subscriber_id = ?", subscriberID).
		Order("occurred_at DESC, id DESC").
		Find(&events).Error; err != nil {
		return nil, fmt.Errorf("failed to load history for subscriber %d: %w", subscriberID, err)
	}
	return events, nil
}

// LastEventAt returns when the latest event of the given type was logged for the order.
func (s *gormStore) LastEventAt(ctx context.Context, orderNumber int64, eventType model.EventType) (time.Time, error) {
	var event model.ParkingHistoryEvent
	err := first(s.conn(ctx).
		Where("order_number = ? AND event_type = ?", orderNumber, eventType).
		Order("occurred_at DESC, id DESC"), &event, "history event")
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return time.Time{}, ErrNotFound
		}
		return time.Time{}, err
	}
	return event.OccurredAt, nil
}

// ListMonthEvents returns every event dated within the calendar month.
func (s *gormStore) ListMonthEvents(ctx context.Context, year, month int) ([]model.ParkingHistoryEvent, error) {
	var events []model.ParkingHistoryEvent
	prefix := fmt.Sprintf("%04d-%02d-%%", year, month)
	if err := s.conn(ctx).
		Where("event_date LIKE ?", prefix).
		Order("event_date, event_time, id").
		Find(&events).Error; err != nil {
		return nil, fmt.Errorf("failed to load events for %04d-%02d: %w", year, month, err)
	}
	return events, nil
}
