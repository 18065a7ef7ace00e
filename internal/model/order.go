package model

import "time"

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderActive    OrderStatus = "active"
	OrderLate      OrderStatus = "late"
	OrderCancelled OrderStatus = "cancelled"
	OrderComplete  OrderStatus = "complete"
)

// Occupying reports whether the order currently holds a vehicle in the lot.
func (s OrderStatus) Occupying() bool {
	return s == OrderActive || s == OrderLate
}

// Order is a reservation or a walk-in deposit.
//
// OrderDate and OrderTime are wall-clock values in the lot timezone; ScheduledAt
// is the same instant in UTC and is what the sweep compares against.
type Order struct {
	OrderNumber      int64       `gorm:"primaryKey"`
	SubscriberID     int64       `gorm:"index;not null"`
	ParkingSpace     int         `gorm:"index;not null"`
	OrderDate        string      `gorm:"size:10;index;not null"`
	OrderTime        string      `gorm:"size:8;not null"`
	ScheduledAt      time.Time   `gorm:"index;not null"`
	ConfirmationCode int         `gorm:"index;not null"`
	IsExtended       bool        `gorm:"not null"`
	IsNotified       bool        `gorm:"not null"`
	Status           OrderStatus `gorm:"column:order_status;size:16;index;not null"`
	CreatedAt        time.Time   `gorm:"not null"`
	UpdatedAt        time.Time   `gorm:"not null"`
}
