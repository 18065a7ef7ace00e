package store

import (
	"context"
	"fmt"

	"gorm.io/gorm/clause"

	"bpark-backend/internal/model"
)

// SaveReport stores a monthly snapshot, replacing any earlier one for the same period.
func (s *gormStore) SaveReport(ctx context.Context, snapshot *model.ReportSnapshot) error {
	err := s.conn(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "report_type"}, {Name: "year"}, {Name: "month"}},
		DoUpdates: clause.AssignmentColumns([]string{"data", "users_count", "generated_at"}),
	}).Create(snapshot).Error
	if err != nil {
		return fmt.Errorf("failed to save %s report for %04d-%02d: %w", snapshot.Type, snapshot.Year, snapshot.Month, err)
	}
	return nil
}

// GetReport loads a stored snapshot or returns ErrNotFound.
func (s *gormStore) GetReport(ctx context.Context, reportType model.ReportType, year, month int) (*model.ReportSnapshot, error) {
	var snapshot model.ReportSnapshot
	q := s.conn(ctx).Where("report_type = ? AND year = ? AND month = ?", reportType, year, month)
	if err := first(q, &snapshot, "report"); err != nil {
		return nil, err
	}
	return &snapshot, nil
}
