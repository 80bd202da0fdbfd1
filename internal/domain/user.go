package domain

import "time"

// User is the local record of an identity vouched for by the auth layer.
type User struct {
	ID        string
	CreatedAt time.Time
}

// Membership is the per-user read model. Rated is derived from the rating ledger and
// Favorites from the favorites relation; neither is stored on the user.
type Membership struct {
	UserID    string
	Rated     []int
	Favorites []int
}
