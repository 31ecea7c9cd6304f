package models

import "time"

// Book is a catalog entry. Copies counts the copies on the shelf.
type Book struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Title     string    `json:"title" db:"title"`
	Author    string    `json:"author" db:"author"`
	Category  string    `json:"category" db:"category"`
	Copies    int       `json:"copies" db:"copies"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}
