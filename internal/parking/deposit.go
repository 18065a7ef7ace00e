package parking

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"gorm.io/gorm"

	"bpark-backend/internal/model"
	"bpark-backend/internal/store"
)

// DepositVehicle parks the subscriber's vehicle. With orderNumber 0 it is a
// walk-in that takes any free space; otherwise it fulfils that reservation,
// which must be pending and inside its grace window.
func (e *Engine) DepositVehicle(ctx context.Context, subscriberID, orderNumber int64) (Result, error) {
	now := e.Now()
	var res Result
	err := e.store.Transaction(ctx, func(tx store.Store) error {
		occupying, err := tx.HasOccupyingOrder(ctx, subscriberID)
		if err != nil {
			return err
		}
		if occupying {
			res = reply(StatusConflict, "Active order found. Please pick up your vehicle first.")
			return nil
		}
		if orderNumber == 0 {
			res, err = e.depositWalkIn(ctx, tx, subscriberID, now)
		} else {
			res, err = e.depositReserved(ctx, tx, subscriberID, orderNumber, now)
		}
		return err
	})
	switch {
	case errors.Is(err, errStaleOrder):
		return reply(StatusNotFound, "No matching order or parking space found."), nil
	case errors.Is(err, gorm.ErrDuplicatedKey):
		// The one-vehicle index caught a concurrent deposit by the same subscriber.
		return reply(StatusConflict, "Active order found. Please pick up your vehicle first."), nil
	case err != nil:
		return Result{}, fmt.Errorf("deposit for subscriber %d: %w", subscriberID, err)
	}
	return res, nil
}

func (e *Engine) depositWalkIn(ctx context.Context, tx store.Store, subscriberID int64, now time.Time) (Result, error) {
	today := now.Format(dateLayout)
	reserved, err := tx.HasPendingReservation(ctx, subscriberID, today)
	if err != nil {
		return Result{}, err
	}
	if reserved {
		return reply(StatusForbidden, "Reservation found. Please enter your order number."), nil
	}

	code, err := e.issueCode(ctx, tx)
	if err != nil {
		return Result{}, err
	}
	space, err := claimAnySpace(ctx, tx, code)
	if errors.Is(err, store.ErrNoSpace) {
		return reply(StatusNotFound, "No available parking spaces."), nil
	}
	if err != nil {
		return Result{}, err
	}

	order := &model.Order{
		SubscriberID:     subscriberID,
		ParkingSpace:     space,
		OrderDate:        today,
		OrderTime:        now.Format(clockLayout),
		ScheduledAt:      now.UTC(),
		ConfirmationCode: code,
		Status:           model.OrderActive,
	}
	if err := tx.CreateOrder(ctx, order); err != nil {
		return Result{}, err
	}
	if err := logEvent(ctx, tx, order, model.EventDeposited, now); err != nil {
		return Result{}, err
	}
	return Result{Code: StatusOK, Description: strconv.Itoa(code), Args: orderArgs(order)}, nil
}

func (e *Engine) depositReserved(ctx context.Context, tx store.Store, subscriberID, orderNumber int64, now time.Time) (Result, error) {
	order, err := tx.GetOrder(ctx, orderNumber)
	if errors.Is(err, store.ErrNotFound) {
		return reply(StatusNotFound, "No matching order or parking space found."), nil
	}
	if err != nil {
		return Result{}, err
	}
	if order.SubscriberID != subscriberID || order.Status != model.OrderPending {
		return reply(StatusNotFound, "No matching order or parking space found."), nil
	}
	start := order.ScheduledAt
	if now.Before(start) || now.After(start.Add(e.cfg.ReservationGrace)) {
		return reply(StatusNotFound, "No matching order or parking space found."), nil
	}

	code, err := e.issueCode(ctx, tx)
	if err != nil {
		return Result{}, err
	}
	space := order.ParkingSpace
	err = tx.ClaimSpace(ctx, space, code)
	if errors.Is(err, store.ErrSpaceTaken) {
		// The booked space is still held by an overstaying vehicle; fall back to any free one.
		space, err = claimAnySpace(ctx, tx, code)
	}
	if errors.Is(err, store.ErrNoSpace) {
		return reply(StatusNotFound, "No matching order or parking space found."), nil
	}
	if err != nil {
		return Result{}, err
	}

	activated, err := tx.ActivateReservation(ctx, order.OrderNumber, space, code)
	if err != nil {
		return Result{}, err
	}
	if !activated {
		return Result{}, errStaleOrder
	}
	order.ParkingSpace = space
	order.ConfirmationCode = code
	order.Status = model.OrderActive
	if err := logEvent(ctx, tx, order, model.EventDeposited, now); err != nil {
		return Result{}, err
	}
	return Result{Code: StatusOK, Description: strconv.Itoa(code), Args: orderArgs(order)}, nil
}

// Pickup collects the vehicle identified by the subscriber's confirmation code.
func (e *Engine) Pickup(ctx context.Context, subscriberID int64, code int) (Result, error) {
	now := e.Now()
	var res Result
	err := e.store.Transaction(ctx, func(tx store.Store) error {
		order, err := tx.FindOrderByCode(ctx, subscriberID, code)
		if errors.Is(err, store.ErrNotFound) {
			res = reply(StatusNotFound, "No valid pickup found for this code.")
			return nil
		}
		if err != nil {
			return err
		}

		switch order.Status {
		case model.OrderComplete:
			res = reply(StatusForbidden, "Order picked up already.")
			return nil
		case model.OrderCancelled:
			res = reply(StatusWasCancelled, "Order had been cancelled.")
			return nil
		case model.OrderPending:
			res = reply(StatusNotFound, "No vehicle was deposited for this order.")
			return nil
		}

		moved, err := tx.TransitionOrder(ctx, order.OrderNumber,
			[]model.OrderStatus{model.OrderActive, model.OrderLate}, model.OrderComplete)
		if err != nil {
			return err
		}
		if !moved {
			// Only a concurrent pickup can move an occupying order away.
			res = reply(StatusForbidden, "Order picked up already.")
			return nil
		}
		if err := tx.ReleaseSpace(ctx, order.ParkingSpace); err != nil {
			return err
		}
		if err := logEvent(ctx, tx, order, model.EventPickedUp, now); err != nil {
			return err
		}
		res = Result{Code: StatusOK, Description: "Vehicle successfully picked up.", Args: orderArgs(order)}
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("pickup for subscriber %d: %w", subscriberID, err)
	}
	return res, nil
}

// Extend doubles the allowed parking window of an active order, once.
func (e *Engine) Extend(ctx context.Context, subscriberID int64, code int) (Result, error) {
	now := e.Now()
	var res Result
	err := e.store.Transaction(ctx, func(tx store.Store) error {
		order, err := tx.FindOrderByCode(ctx, subscriberID, code)
		if errors.Is(err, store.ErrNotFound) {
			res = reply(StatusNotFound, "No matching order found.")
			return nil
		}
		if err != nil {
			return err
		}
		if rejected, ok := e.extendRejection(order); ok {
			res = rejected
			return nil
		}

		extended, err := tx.MarkExtended(ctx, order.OrderNumber)
		if err != nil {
			return err
		}
		if !extended {
			current, err := tx.GetOrder(ctx, order.OrderNumber)
			if err != nil {
				return err
			}
			if rejected, ok := e.extendRejection(current); ok {
				res = rejected
			} else {
				res = reply(StatusConflict, "Parking already extended.")
			}
			return nil
		}
		if err := logEvent(ctx, tx, order, model.EventExtended, now); err != nil {
			return err
		}
		res = Result{
			Code:        StatusOK,
			Description: fmt.Sprintf("Parking extended to %d hours.", int(e.cfg.ExtendedWindow.Hours())),
			Args:        orderArgs(order),
		}
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("extend for subscriber %d: %w", subscriberID, err)
	}
	return res, nil
}

// extendRejection checks, in order: completed, already extended, late, not active.
func (e *Engine) extendRejection(order *model.Order) (Result, bool) {
	switch {
	case order.Status == model.OrderComplete:
		return reply(StatusAlreadyCompleted, "Parking already picked up."), true
	case order.IsExtended:
		return reply(StatusConflict, "Parking already extended."), true
	case order.Status == model.OrderLate:
		return reply(StatusForbidden, "Parking time exceeded. Extension is not possible."), true
	case order.Status != model.OrderActive:
		return reply(StatusNotFound, "No active parking found for this code."), true
	}
	return Result{}, false
}
