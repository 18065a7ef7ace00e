package model

import "time"

// SpaceStatus is the occupancy state of a single parking space.
type SpaceStatus string

const (
	SpaceAvailable SpaceStatus = "available"
	SpaceOccupied  SpaceStatus = "occupied"
)

// ParkingSpace is one physical spot. ConfirmationCode is set only while occupied.
type ParkingSpace struct {
	Number           int         `gorm:"primaryKey;autoIncrement:false"`
	Status           SpaceStatus `gorm:"size:16;index;not null"`
	ConfirmationCode *int
	UpdatedAt        time.Time
}
