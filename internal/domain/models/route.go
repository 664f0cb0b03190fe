package models

// Route is a static origin/destination pair with a base fare in cents.
type Route struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	Origin          string `json:"origin"`
	Destination     string `json:"destination"`
	BasePrice       int64  `json:"basePrice"`
	DurationMinutes int    `json:"durationMinutes,omitempty"`
	IsActive        bool   `json:"isActive"`
}
