package audit

import (
	"encoding/json"
	"log"
	"time"
)

// Event types written to the audit trail.
const (
	EventBorrowRequested  = "BORROW_REQUESTED"
	EventRequestApproved  = "REQUEST_APPROVED"
	EventRequestRejected  = "REQUEST_REJECTED"
	EventBookBorrowed     = "BOOK_BORROWED"
	EventBookReturned     = "BOOK_RETURNED"
	EventFineSettled      = "FINE_SETTLED"
	EventPaymentInitiated = "PAYMENT_INITIATED"
	EventPaymentFailed    = "PAYMENT_FAILED"
	EventError            = "ERROR"
)

type Event struct {
	Timestamp time.Time `json:"timestamp"`
	EventType string    `json:"event_type"`
	BorrowID  string    `json:"borrow_id,omitempty"`
	UserID    string    `json:"user_id,omitempty"`
	BookID    string    `json:"book_id,omitempty"`
	Amount    int64     `json:"amount,omitempty"`
	Status    string    `json:"status"`
	Details   any       `json:"details,omitempty"`
}

// Logger writes one JSON line per lifecycle transition.
type Logger struct {
	now func() time.Time
}

func NewLogger() *Logger {
	return &Logger{now: time.Now}
}

func (a *Logger) LogTransition(eventType, borrowID, userID, bookID string, details map[string]string) {
	a.log(Event{
		EventType: eventType,
		BorrowID:  borrowID,
		UserID:    userID,
		BookID:    bookID,
		Status:    "SUCCESS",
		Details:   details,
	})
}

func (a *Logger) LogPayment(eventType, txRef, borrowID, userID string, amount int64, status string) {
	a.log(Event{
		EventType: eventType,
		BorrowID:  borrowID,
		UserID:    userID,
		Amount:    amount,
		Status:    status,
		Details:   map[string]string{"tx_ref": txRef},
	})
}

func (a *Logger) LogError(borrowID, userID string, err error) {
	a.log(Event{
		EventType: EventError,
		BorrowID:  borrowID,
		UserID:    userID,
		Status:    "FAILED",
		Details:   map[string]string{"error": err.Error()},
	})
}

func (a *Logger) log(event Event) {
	event.Timestamp = a.now()
	data, _ := json.Marshal(event)
	log.Printf("AUDIT: %s", string(data))
}
