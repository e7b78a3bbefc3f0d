package chat

import "time"

// Session captures one assistant conversation for a brokerage user.
type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
}
