package models

import "time"

// News is a broadcast message targeted at one or more roles.
type News struct {
	ID        string    `json:"id" db:"id"`
	Roles     []string  `json:"role" db:"roles"`
	News      string    `json:"news" db:"news"`
	ReadBy    []string  `json:"readBy" db:"read_by"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}
