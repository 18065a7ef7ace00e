package model

import "time"

// PushSubscription holds the information for a browser push subscription
// bound to the subscriber that should receive order alerts.
type PushSubscription struct {
	Endpoint     string    `gorm:"primaryKey"`
	SubscriberID int64     `gorm:"index;not null"`
	P256DH       string    `gorm:"column:p256dh;not null"`
	Auth         string    `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
}
