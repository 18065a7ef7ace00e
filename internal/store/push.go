package store

import (
	"context"
	"fmt"

	"gorm.io/gorm/clause"

	"bpark-backend/internal/model"
)

// UpsertPushSubscription creates the subscription or rebinds an existing endpoint.
func (s *gormStore) UpsertPushSubscription(ctx context.Context, sub *model.PushSubscription) error {
	err := s.conn(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "endpoint"}},
		DoUpdates: clause.AssignmentColumns([]string{"subscriber_id", "p256dh", "auth"}),
	}).Create(sub).Error
	if err != nil {
		return fmt.Errorf("failed to save push subscription: %w", err)
	}
	return nil
}

// GetPushSubscription loads a subscription by endpoint.
func (s *gormStore) GetPushSubscription(ctx context.Context, endpoint string) (*model.PushSubscription, error) {
	var sub model.PushSubscription
	if err := first(s.conn(ctx).Where("endpoint = ?", endpoint), &sub, "push subscription"); err != nil {
		return nil, err
	}
	return &sub, nil
}

// ListPushSubscriptions returns every browser registered by the subscriber.
func (s *gormStore) ListPushSubscriptions(ctx context.Context, subscriberID int64) ([]model.PushSubscription, error) {
	var subs []model.PushSubscription
	if err := s.conn(ctx).Where("subscriber_id = ?", subscriberID).Find(&subs).Error; err != nil {
		return nil, fmt.Errorf("failed to list push subscriptions: %w", err)
	}
	return subs, nil
}

// DeletePushSubscription removes a subscription. Deleting a missing endpoint is not an error.
func (s *gormStore) DeletePushSubscription(ctx context.Context, endpoint string) error {
	if err := s.conn(ctx).Where("endpoint = ?", endpoint).Delete(&model.PushSubscription{}).Error; err != nil {
		return fmt.Errorf("failed to delete push subscription: %w", err)
	}
	return nil
}
