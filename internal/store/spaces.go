package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"bpark-backend/internal/model"
)

// CountSpaces returns the number of provisioned spaces.
func (s *gormStore) CountSpaces(ctx context.Context) (int64, error) {
	var count int64
	if err := s.conn(ctx).Model(&model.ParkingSpace{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count parking spaces: %w", err)
	}
	return count, nil
}

// CountOccupiedSpaces returns the number of spaces that are not available.
func (s *gormStore) CountOccupiedSpaces(ctx context.Context) (int64, error) {
	var count int64
	if err := s.conn(ctx).Model(&model.ParkingSpace{}).
		Where("status <> ?", model.SpaceAvailable).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count occupied spaces: %w", err)
	}
	return count, nil
}

// FirstAvailableSpace returns the lowest-numbered available space, or ErrNoSpace.
func (s *gormStore) FirstAvailableSpace(ctx context.Context) (int, error) {
	var space model.ParkingSpace
	err := first(s.conn(ctx).Where("status = ?", model.SpaceAvailable).Order("number"), &space, "parking space")
	if errors.Is(err, ErrNotFound) {
		return 0, ErrNoSpace
	}
	if err != nil {
		return 0, err
	}
	return space.Number, nil
}

// ClaimSpace marks the space occupied with code, but only if it is still
// available. A lost race is reported as ErrSpaceTaken.
func (s *gormStore) ClaimSpace(ctx context.Context, number, code int) error {
	res := s.conn(ctx).Model(&model.ParkingSpace{}).
		Where("number = ? AND status = ?", number, model.SpaceAvailable).
		Updates(map[string]any{
			"status":            model.SpaceOccupied,
			"confirmation_code": code,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to claim parking space %d: %w", number, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrSpaceTaken
	}
	return nil
}

// ReleaseSpace returns the space to the available pool and clears its code.
func (s *gormStore) ReleaseSpace(ctx context.Context, number int) error {
	res := s.conn(ctx).Model(&model.ParkingSpace{}).
		Where("number = ?", number).
		Updates(map[string]any{
			"status":            model.SpaceAvailable,
			"confirmation_code": gorm.Expr("NULL"),
		})
	if res.Error != nil {
		return fmt.Errorf("failed to release parking space %d: %w", number, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// FindSpaceFreeAt returns the lowest-numbered space that no live order has
// booked for exactly date and clock. Cancelled and completed orders do not block.
func (s *gormStore) FindSpaceFreeAt(ctx context.Context, date, clock string) (int, error) {
	booked := s.conn(ctx).Model(&model.Order{}).
		Select("parking_space").
		Where("order_date = ? AND order_time = ? AND order_status IN ?", date, clock, liveStatuses)

	var space model.ParkingSpace
	err := first(s.conn(ctx).Where("number NOT IN (?)", booked).Order("number"), &space, "parking space")
	if errors.Is(err, ErrNotFound) {
		return 0, ErrNoSpace
	}
	if err != nil {
		return 0, err
	}
	return space.Number, nil
}

// ParkingTable returns every space with the subscriber currently holding it.
func (s *gormStore) ParkingTable(ctx context.Context) ([]SpaceRow, error) {
	var rows []SpaceRow
	err := s.conn(ctx).Table("parking_spaces AS p").
		Select("p.number AS parking_space, p.status AS status, p.confirmation_code AS confirmation_code, o.subscriber_id AS subscriber_id").
		Joins("LEFT JOIN orders o ON o.parking_space = p.number AND o.confirmation_code = p.confirmation_code AND o.order_status IN ?",
			[]model.OrderStatus{model.OrderActive, model.OrderLate}).
		Order("p.number").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load parking table: %w", err)
	}
	return rows, nil
}

// ActiveParkingCode returns the confirmation code of the subscriber's vehicle
// currently in the lot, if there is one.
func (s *gormStore) ActiveParkingCode(ctx context.Context, subscriberID int64) (int, bool, error) {
	var codes []int
	err := s.conn(ctx).Table("orders AS o").
		Joins("JOIN parking_spaces p ON p.number = o.parking_space AND p.confirmation_code = o.confirmation_code").
		Where("o.subscriber_id = ? AND o.order_status IN ? AND p.status = ?", subscriberID,
			[]model.OrderStatus{model.OrderActive, model.OrderLate}, model.SpaceOccupied).
		Order("o.order_number DESC").
		Limit(1).
		Pluck("o.confirmation_code", &codes).Error
	if err != nil {
		return 0, false, fmt.Errorf("failed to look up active parking: %w", err)
	}
	if len(codes) == 0 {
		return 0, false, nil
	}
	return codes[0], true, nil
}
