package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"bpark-backend/internal/model"
)

// CreateSubscriber inserts a new subscriber. Email and phone collisions are
// reported as ErrEmailTaken / ErrPhoneTaken, including when a concurrent insert
// wins the race and the unique index rejects this one.
func (s *gormStore) CreateSubscriber(ctx context.Context, sub *model.Subscriber) error {
	err := s.Transaction(ctx, func(tx Store) error {
		if err := tx.(*gormStore).checkContactFree(ctx, sub.Email, sub.Phone, 0); err != nil {
			return err
		}
		return tx.(*gormStore).conn(ctx).Create(sub).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return s.classifyConflict(ctx, sub.Email, sub.Phone, 0, err)
	}
	if err != nil && !errors.Is(err, ErrEmailTaken) && !errors.Is(err, ErrPhoneTaken) {
		return fmt.Errorf("failed to create subscriber: %w", err)
	}
	return err
}

// UpdateSubscriberContact replaces the email, phone and password hash of a subscriber.
func (s *gormStore) UpdateSubscriberContact(ctx context.Context, id int64, email, phone, passwordHash string) error {
	err := s.Transaction(ctx, func(tx Store) error {
		gs := tx.(*gormStore)
		if err := gs.checkContactFree(ctx, email, phone, id); err != nil {
			return err
		}
		res := gs.conn(ctx).Model(&model.Subscriber{}).Where("id = ?", id).Updates(map[string]any{
			"email":         email,
			"phone":         phone,
			"password_hash": passwordHash,
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return s.classifyConflict(ctx, email, phone, id, err)
	}
	if err != nil && !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrEmailTaken) && !errors.Is(err, ErrPhoneTaken) {
		return fmt.Errorf("failed to update subscriber %d: %w", id, err)
	}
	return err
}

func (s *gormStore) checkContactFree(ctx context.Context, email, phone string, exceptID int64) error {
	taken, err := exists(s.conn(ctx).Model(&model.Subscriber{}).Where("email = ? AND id <> ?", email, exceptID), "email")
	if err != nil {
		return err
	}
	if taken {
		return ErrEmailTaken
	}
	taken, err = exists(s.conn(ctx).Model(&model.Subscriber{}).Where("phone = ? AND id <> ?", phone, exceptID), "phone")
	if err != nil {
		return err
	}
	if taken {
		return ErrPhoneTaken
	}
	return nil
}

// classifyConflict re-reads after a unique index violation to tell which field clashed.
func (s *gormStore) classifyConflict(ctx context.Context, email, phone string, exceptID int64, cause error) error {
	if err := s.checkContactFree(ctx, email, phone, exceptID); err != nil {
		return err
	}
	return fmt.Errorf("subscriber conflict: %w", cause)
}

// GetSubscriber loads a subscriber by id.
func (s *gormStore) GetSubscriber(ctx context.Context, id int64) (*model.Subscriber, error) {
	var sub model.Subscriber
	if err := first(s.conn(ctx).Where("id = ?", id), &sub, "subscriber"); err != nil {
		return nil, err
	}
	return &sub, nil
}

// GetSubscriberByEmail loads a subscriber by email address.
func (s *gormStore) GetSubscriberByEmail(ctx context.Context, email string) (*model.Subscriber, error) {
	var sub model.Subscriber
	if err := first(s.conn(ctx).Where("email = ?", email), &sub, "subscriber"); err != nil {
		return nil, err
	}
	return &sub, nil
}

// ListSubscriberIDs returns the ids of every subscriber with the given role, ascending.
func (s *gormStore) ListSubscriberIDs(ctx context.Context, role model.Role) ([]int64, error) {
	var ids []int64
	if err := s.conn(ctx).Model(&model.Subscriber{}).
		Where("role = ?", role).
		Order("id").
		Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to list subscribers: %w", err)
	}
	return ids, nil
}
