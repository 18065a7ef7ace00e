package model

import (
	"time"

	"gorm.io/datatypes"
)

// ReportType selects one of the monthly aggregate reports.
type ReportType string

const (
	ReportUsers   ReportType = "USERS"
	ReportParking ReportType = "PARKING"
)

// ReportSnapshot is a persisted monthly report. Data holds the table rows as JSON.
type ReportSnapshot struct {
	ID          int64          `gorm:"primaryKey"`
	Type        ReportType     `gorm:"column:report_type;size:16;not null;uniqueIndex:idx_report_period"`
	Year        int            `gorm:"not null;uniqueIndex:idx_report_period"`
	Month       int            `gorm:"not null;uniqueIndex:idx_report_period"`
	Data        datatypes.JSON `gorm:"not null"`
	UsersCount  int64          `gorm:"not null"`
	GeneratedAt time.Time      `gorm:"not null"`
}
