package store

// SpaceRow is one line of the live parking table: a space joined with the
// subscriber whose occupying order holds it, if any.
type SpaceRow struct {
	ParkingSpace     int    `gorm:"column:parking_space"`
	Status           string `gorm:"column:status"`
	ConfirmationCode *int   `gorm:"column:confirmation_code"`
	SubscriberID     *int64 `gorm:"column:subscriber_id"`
}
