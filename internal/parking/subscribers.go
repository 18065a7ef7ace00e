package parking

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"golang.org/x/crypto/bcrypt"

	"bpark-backend/internal/model"
	"bpark-backend/internal/notification"
	"bpark-backend/internal/store"
)

// NewSubscriber is the input of CreateSubscriber.
type NewSubscriber struct {
	Name     string
	Email    string
	Phone    string
	Password string
}

// CreateSubscriber registers a customer. The new id is returned as the description.
func (e *Engine) CreateSubscriber(ctx context.Context, in NewSubscriber) (Result, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return Result{}, fmt.Errorf("hash password: %w", err)
	}
	sub := &model.Subscriber{
		Name:         in.Name,
		Email:        in.Email,
		Phone:        in.Phone,
		PasswordHash: string(hash),
		Role:         model.RoleUser,
	}
	err = e.store.CreateSubscriber(ctx, sub)
	switch {
	case errors.Is(err, store.ErrEmailTaken):
		return reply(StatusConflict, "Email already in use."), nil
	case errors.Is(err, store.ErrPhoneTaken):
		return reply(StatusConflict, "Phone number already in use."), nil
	case err != nil:
		return reply(StatusServerError, "Failed to create subscriber."), fmt.Errorf("create subscriber: %w", err)
	}
	id := strconv.FormatInt(sub.ID, 10)
	return Result{Code: StatusOK, Description: id, Args: map[string]string{"subscriber_id": id}}, nil
}

// EditSubscriber replaces a subscriber's email, phone and password.
func (e *Engine) EditSubscriber(ctx context.Context, id int64, email, phone, password string) (Result, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return Result{}, fmt.Errorf("hash password: %w", err)
	}
	err = e.store.UpdateSubscriberContact(ctx, id, email, phone, string(hash))
	switch {
	case errors.Is(err, store.ErrNotFound):
		return reply(StatusNotFound, "Subscriber not found."), nil
	case errors.Is(err, store.ErrEmailTaken):
		return reply(StatusConflict, "Email already in use."), nil
	case errors.Is(err, store.ErrPhoneTaken):
		return reply(StatusConflict, "Phone number already in use."), nil
	case err != nil:
		return Result{}, fmt.Errorf("edit subscriber %d: %w", id, err)
	}
	return reply(StatusOK, "Details updated successfully."), nil
}

// Authenticate checks an email and password pair.
func (e *Engine) Authenticate(ctx context.Context, email, password string) (*model.Subscriber, error) {
	sub, err := e.store.GetSubscriberByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("authenticate: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(sub.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return sub, nil
}

// Recover returns a subscriber's contact details and the code of the vehicle
// currently parked, and sends them a recovery notification.
func (e *Engine) Recover(ctx context.Context, id int64) (Result, error) {
	sub, err := e.store.GetSubscriber(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return reply(StatusNotFound, "Subscriber not found."), nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("recover subscriber %d: %w", id, err)
	}
	code, parked, err := e.store.ActiveParkingCode(ctx, id)
	if err != nil {
		return Result{}, fmt.Errorf("recover subscriber %d: %w", id, err)
	}

	args := map[string]string{
		"subscriber_name":           sub.Name,
		"subscriber_email":          sub.Email,
		"subscriber_phone":          sub.Phone,
		"parking_confirmation_code": "No active parking",
	}
	if parked {
		args["parking_confirmation_code"] = strconv.Itoa(code)
	}

	e.notifier.Notify(notification.Event{
		Kind:         notification.KindUserRecovery,
		SubscriberID: sub.ID,
		Name:         sub.Name,
		Email:        sub.Email,
		Phone:        sub.Phone,
		Code:         code,
		OccurredAt:   e.Now(),
	})
	return Result{Code: StatusOK, Description: "User recovery successful.", Args: args}, nil
}

// UserHistory lists the subscriber's parking events, newest first.
func (e *Engine) UserHistory(ctx context.Context, id int64) (Result, error) {
	events, err := e.store.ListHistory(ctx, id)
	if err != nil {
		return Result{}, fmt.Errorf("history for subscriber %d: %w", id, err)
	}
	if len(events) == 0 {
		return reply(StatusNoContent, "No history found."), nil
	}
	table := make([]map[string]string, 0, len(events))
	for _, ev := range events {
		table = append(table, map[string]string{
			"order_number":  strconv.FormatInt(ev.OrderNumber, 10),
			"parking_space": strconv.Itoa(ev.ParkingSpace),
			"event_date":    ev.EventDate,
			"event_time":    ev.EventTime,
			"event_type":    string(ev.EventType),
		})
	}
	return Result{Code: StatusOK, Description: strconv.Itoa(len(table)), Table: table}, nil
}
