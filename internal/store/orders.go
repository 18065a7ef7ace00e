package store

import (
	"context"
	"fmt"
	"time"

	"bpark-backend/internal/model"
)

var liveStatuses = []model.OrderStatus{model.OrderPending, model.OrderActive, model.OrderLate}

// CreateOrder inserts a new order and fills in its order number.
func (s *gormStore) CreateOrder(ctx context.Context, order *model.Order) error {
	if err := s.conn(ctx).Create(order).Error; err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}
	return nil
}

// GetOrder loads an order by number.
func (s *gormStore) GetOrder(ctx context.Context, orderNumber int64) (*model.Order, error) {
	var order model.Order
	if err := first(s.conn(ctx).Where("order_number = ?", orderNumber), &order, "order"); err != nil {
		return nil, err
	}
	return &order, nil
}

// FindOrderByCode returns the most recent order of the subscriber carrying the code.
func (s *gormStore) FindOrderByCode(ctx context.Context, subscriberID int64, code int) (*model.Order, error) {
	var order model.Order
	q := s.conn(ctx).
		Where("subscriber_id = ? AND confirmation_code = ?", subscriberID, code).
		Order("order_number DESC")
	if err := first(q, &order, "order"); err != nil {
		return nil, err
	}
	return &order, nil
}

// HasOccupyingOrder reports whether the subscriber has a vehicle in the lot.
func (s *gormStore) HasOccupyingOrder(ctx context.Context, subscriberID int64) (bool, error) {
	return exists(s.conn(ctx).Model(&model.Order{}).
		Where("subscriber_id = ? AND order_status IN ?", subscriberID,
			[]model.OrderStatus{model.OrderActive, model.OrderLate}), "occupying order")
}

// HasPendingReservation reports whether the subscriber has a pending reservation on date.
func (s *gormStore) HasPendingReservation(ctx context.Context, subscriberID int64, date string) (bool, error) {
	return exists(s.conn(ctx).Model(&model.Order{}).
		Where("subscriber_id = ? AND order_date = ? AND order_status = ?", subscriberID, date, model.OrderPending),
		"pending reservation")
}

// CountOrdersOn counts every order dated on date, whatever its status.
func (s *gormStore) CountOrdersOn(ctx context.Context, date string) (int64, error) {
	var count int64
	if err := s.conn(ctx).Model(&model.Order{}).Where("order_date = ?", date).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count orders on %s: %w", date, err)
	}
	return count, nil
}

// CodeInUse reports whether a pending, active or late order already carries the code.
func (s *gormStore) CodeInUse(ctx context.Context, code int) (bool, error) {
	return exists(s.conn(ctx).Model(&model.Order{}).
		Where("confirmation_code = ? AND order_status IN ?", code, liveStatuses), "confirmation code")
}

// TransitionOrder moves an order to status `to` only if it is currently in one
// of `from`. It reports whether the row changed.
func (s *gormStore) TransitionOrder(ctx context.Context, orderNumber int64, from []model.OrderStatus, to model.OrderStatus) (bool, error) {
	res := s.conn(ctx).Model(&model.Order{}).
		Where("order_number = ? AND order_status IN ?", orderNumber, from).
		Update("order_status", to)
	if res.Error != nil {
		return false, fmt.Errorf("failed to move order %d to %s: %w", orderNumber, to, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// ActivateReservation turns a pending reservation into an active order on the
// given space with a fresh code.
func (s *gormStore) ActivateReservation(ctx context.Context, orderNumber int64, space, code int) (bool, error) {
	res := s.conn(ctx).Model(&model.Order{}).
		Where("order_number = ? AND order_status = ?", orderNumber, model.OrderPending).
		Updates(map[string]any{
			"order_status":      model.OrderActive,
			"parking_space":     space,
			"confirmation_code": code,
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to activate order %d: %w", orderNumber, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// MarkExtended sets is_extended on an active, not yet extended order.
func (s *gormStore) MarkExtended(ctx context.Context, orderNumber int64) (bool, error) {
	res := s.conn(ctx).Model(&model.Order{}).
		Where("order_number = ? AND order_status = ? AND is_extended = ?", orderNumber, model.OrderActive, false).
		Update("is_extended", true)
	if res.Error != nil {
		return false, fmt.Errorf("failed to extend order %d: %w", orderNumber, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// MarkLate moves an active order to late and records that its owner was notified.
func (s *gormStore) MarkLate(ctx context.Context, orderNumber int64) (bool, error) {
	res := s.conn(ctx).Model(&model.Order{}).
		Where("order_number = ? AND order_status = ?", orderNumber, model.OrderActive).
		Updates(map[string]any{
			"order_status": model.OrderLate,
			"is_notified":  true,
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to mark order %d late: %w", orderNumber, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// ListUnnotifiedActive returns the active orders that have not yet been flagged late.
func (s *gormStore) ListUnnotifiedActive(ctx context.Context) ([]model.Order, error) {
	var orders []model.Order
	if err := s.conn(ctx).
		Where("order_status = ? AND is_notified = ?", model.OrderActive, false).
		Order("order_number").
		Find(&orders).Error; err != nil {
		return nil, fmt.Errorf("failed to list active orders: %w", err)
	}
	return orders, nil
}

// ListPendingScheduledBefore returns pending reservations whose start is before cutoff.
func (s *gormStore) ListPendingScheduledBefore(ctx context.Context, cutoff time.Time) ([]model.Order, error) {
	var orders []model.Order
	if err := s.conn(ctx).
		Where("order_status = ? AND scheduled_at < ?", model.OrderPending, cutoff).
		Order("order_number").
		Find(&orders).Error; err != nil {
		return nil, fmt.Errorf("failed to list pending orders: %w", err)
	}
	return orders, nil
}
