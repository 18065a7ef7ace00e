package parking

import (
	"context"
	"errors"
	"fmt"

	"bpark-backend/internal/model"
	"bpark-backend/internal/notification"
	"bpark-backend/internal/store"
)

// OverdueActive returns active, not yet notified orders whose vehicle has
// stayed past its window: StandardWindow after the deposit, or ExtendedWindow
// when the order was extended.
func (e *Engine) OverdueActive(ctx context.Context) ([]model.Order, error) {
	now := e.Now()
	candidates, err := e.store.ListUnnotifiedActive(ctx)
	if err != nil {
		return nil, err
	}
	var overdue []model.Order
	for _, order := range candidates {
		deposited, err := e.store.LastEventAt(ctx, order.OrderNumber, model.EventDeposited)
		if errors.Is(err, store.ErrNotFound) {
			deposited = order.ScheduledAt
		} else if err != nil {
			return nil, err
		}
		window := e.cfg.StandardWindow
		if order.IsExtended {
			window = e.cfg.ExtendedWindow
		}
		if now.After(deposited.Add(window)) {
			overdue = append(overdue, order)
		}
	}
	return overdue, nil
}

// OverduePending returns reservations whose start passed more than the grace period ago.
func (e *Engine) OverduePending(ctx context.Context) ([]model.Order, error) {
	cutoff := e.Now().Add(-e.cfg.ReservationGrace).UTC()
	return e.store.ListPendingScheduledBefore(ctx, cutoff)
}

// MarkLate moves an active order to late, flags it notified and logs the
// transition. It reports false when the order already moved on.
func (e *Engine) MarkLate(ctx context.Context, order model.Order) (bool, error) {
	now := e.Now()
	var moved bool
	err := e.store.Transaction(ctx, func(tx store.Store) error {
		var err error
		moved, err = tx.MarkLate(ctx, order.OrderNumber)
		if err != nil || !moved {
			return err
		}
		return logEvent(ctx, tx, &order, model.EventLate, now)
	})
	if err != nil {
		return false, fmt.Errorf("mark order %d late: %w", order.OrderNumber, err)
	}
	return moved, nil
}

// CancelReservation moves a pending reservation to cancelled and logs it.
// It reports false when the reservation was fulfilled or cancelled meanwhile.
func (e *Engine) CancelReservation(ctx context.Context, order model.Order) (bool, error) {
	now := e.Now()
	var moved bool
	err := e.store.Transaction(ctx, func(tx store.Store) error {
		var err error
		moved, err = tx.TransitionOrder(ctx, order.OrderNumber,
			[]model.OrderStatus{model.OrderPending}, model.OrderCancelled)
		if err != nil || !moved {
			return err
		}
		return logEvent(ctx, tx, &order, model.EventCancelled, now)
	})
	if err != nil {
		return false, fmt.Errorf("cancel order %d: %w", order.OrderNumber, err)
	}
	return moved, nil
}

// NotifyOrder sends a notification about order to its owner.
func (e *Engine) NotifyOrder(ctx context.Context, kind notification.Kind, order model.Order) error {
	sub, err := e.store.GetSubscriber(ctx, order.SubscriberID)
	if err != nil {
		return fmt.Errorf("notify order %d: %w", order.OrderNumber, err)
	}
	e.notifier.Notify(notification.Event{
		Kind:         kind,
		SubscriberID: sub.ID,
		Name:         sub.Name,
		Email:        sub.Email,
		Phone:        sub.Phone,
		OrderNumber:  order.OrderNumber,
		ParkingSpace: order.ParkingSpace,
		Code:         order.ConfirmationCode,
		OccurredAt:   e.Now(),
	})
	return nil
}
