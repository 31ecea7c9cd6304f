package models

import "time"

// PaymentMethod identifies the provider that collected a fine.
type PaymentMethod string

const (
	PaymentMethodChapa    PaymentMethod = "chapa"
	PaymentMethodTelebirr PaymentMethod = "telebirr"
)

// PaymentStatus is the settlement state of a payment attempt.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
)

// PaymentRecord is one fine payment attempt.
type PaymentRecord struct {
	TxRef     string        `json:"tx_ref" db:"tx_ref"`
	UserID    string        `json:"userId" db:"user_id"`
	Username  string        `json:"username" db:"username"`
	Amount    int64         `json:"amount" db:"amount"`
	BorrowID  string        `json:"borrowId" db:"borrow_id"`
	Method    PaymentMethod `json:"method" db:"method"`
	Mobile    *string       `json:"mobile,omitempty" db:"mobile"`
	Status    PaymentStatus `json:"status" db:"status"`
	CreatedAt time.Time     `json:"createdAt" db:"created_at"`
}
