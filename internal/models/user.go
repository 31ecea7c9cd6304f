package models

import "time"

type Role string

const (
	RoleAdmin     Role = "admin"
	RoleLibrarian Role = "librarian"
	RoleTeacher   Role = "teacher"
	RoleStudent   Role = "student"
)

type UserStatus string

const (
	UserStatusActive   UserStatus = "active"
	UserStatusDeactive UserStatus = "deactive"
)

// User is a provisioned library member. The password hash never leaves the store.
type User struct {
	ID              string     `json:"id" db:"id"`
	Name            string     `json:"name" db:"name"`
	Username        string     `json:"username" db:"username"`
	Role            Role       `json:"role" db:"role"`
	Department      string     `json:"department" db:"department"`
	Status          UserStatus `json:"status" db:"status"`
	PasswordChanged bool       `json:"passwordChanged" db:"password_changed"`
	Password        string     `json:"-" db:"password"`
	CreatedAt       time.Time  `json:"createdAt" db:"created_at"`
}
