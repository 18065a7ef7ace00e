package parking

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"gorm.io/gorm"

	"bpark-backend/internal/model"
	"bpark-backend/internal/store"
)

// Reserve books a space for the subscriber at a future date and time.
//
// A day accepts reservations while the number of orders dated that day stays
// below ReservationRatio of the lot. The chosen space must not already be
// booked for exactly the same start time.
func (e *Engine) Reserve(ctx context.Context, subscriberID int64, when time.Time) (Result, error) {
	now := e.Now()
	when = when.In(e.cfg.Location).Truncate(time.Second)
	if when.Before(now) {
		return reply(StatusBadRequest, "Reservation time must be in the future."), nil
	}
	date := when.Format(dateLayout)
	clock := when.Format(clockLayout)

	var res Result
	err := e.store.Transaction(ctx, func(tx store.Store) error {
		reserved, err := tx.HasPendingReservation(ctx, subscriberID, date)
		if err != nil {
			return err
		}
		if reserved {
			res = reply(StatusConflict, "You already have a reservation for this day.")
			return nil
		}

		admitted, err := e.admits(ctx, tx, date)
		if err != nil {
			return err
		}
		if !admitted {
			res = reply(StatusForbidden, "Reservations for this day are full.")
			return nil
		}

		space, err := tx.FindSpaceFreeAt(ctx, date, clock)
		if errors.Is(err, store.ErrNoSpace) {
			res = reply(StatusNotFound, "No available parking at the requested time.")
			return nil
		}
		if err != nil {
			return err
		}

		code, err := e.issueCode(ctx, tx)
		if err != nil {
			return err
		}
		order := &model.Order{
			SubscriberID:     subscriberID,
			ParkingSpace:     space,
			OrderDate:        date,
			OrderTime:        clock,
			ScheduledAt:      when.UTC(),
			ConfirmationCode: code,
			Status:           model.OrderPending,
		}
		if err := tx.CreateOrder(ctx, order); err != nil {
			return err
		}
		if err := logEvent(ctx, tx, order, model.EventReserved, now); err != nil {
			return err
		}
		res = Result{Code: StatusOK, Description: strconv.Itoa(code), Args: orderArgs(order)}
		return nil
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		// A concurrent reservation took the same slot or the subscriber's day.
		return reply(StatusConflict, "The requested reservation conflicts with another one."), nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("reserve for subscriber %d: %w", subscriberID, err)
	}
	return res, nil
}

// admits applies the daily reservation cap: every order dated that day counts.
func (e *Engine) admits(ctx context.Context, tx store.Store, date string) (bool, error) {
	total, err := tx.CountSpaces(ctx)
	if err != nil {
		return false, err
	}
	orders, err := tx.CountOrdersOn(ctx, date)
	if err != nil {
		return false, err
	}
	limit := int64(math.Ceil(e.cfg.ReservationRatio*float64(total) - 1e-9))
	return orders < limit, nil
}
