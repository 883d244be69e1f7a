package domain

import "time"

// DeliveryToken is a device push token. The pipeline only reads,
// deactivates or deletes tokens; registration belongs to the delivery
// provider collaborator.
type DeliveryToken struct {
	Token     string    `db:"token"`
	DeviceID  string    `db:"device_id"`
	UserID    string    `db:"user_id"`
	IsActive  bool      `db:"is_active"`
	CreatedAt time.Time `db:"created_at"`
}

// Subscription links a user to a channel they want notifications for.
type Subscription struct {
	UserID    string    `db:"user_id"`
	ChannelID string    `db:"channel_id"`
	CreatedAt time.Time `db:"created_at"`
}
