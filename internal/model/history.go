package model

import "time"

// EventType names an entry in the parking history log.
type EventType string

const (
	EventDeposited EventType = "deposited"
	EventPickedUp  EventType = "picked_up"
	EventReserved  EventType = "reserved"
	EventExtended  EventType = "extended"
	EventCancelled EventType = "cancelled"
	EventLate      EventType = "late"
)

// EventTypes lists every history event in report column order.
var EventTypes = []EventType{EventDeposited, EventPickedUp, EventReserved, EventLate, EventCancelled, EventExtended}

// ParkingHistoryEvent is an append-only audit record of an order transition.
type ParkingHistoryEvent struct {
	ID           int64     `gorm:"primaryKey"`
	SubscriberID int64     `gorm:"index;not null"`
	ParkingSpace int       `gorm:"not null"`
	EventDate    string    `gorm:"size:10;index;not null"`
	EventTime    string    `gorm:"size:8;not null"`
	OccurredAt   time.Time `gorm:"index;not null"`
	EventType    EventType `gorm:"size:16;index;not null"`
	OrderNumber  int64     `gorm:"index;not null"`
}

// TableName keeps the audit log under its historical name.
func (ParkingHistoryEvent) TableName() string {
	return "parking_history"
}
