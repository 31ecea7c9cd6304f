package models

import "time"

// BorrowStatus is the lifecycle state of a borrow record.
type BorrowStatus string

const (
	BorrowStatusPending  BorrowStatus = "pending"
	BorrowStatusApproved BorrowStatus = "approved"
	BorrowStatusRejected BorrowStatus = "rejected"
	BorrowStatusBorrowed BorrowStatus = "borrowed"
	BorrowStatusReturned BorrowStatus = "returned"
)

// ActiveBorrowStatuses are the states that occupy a user's single borrow slot.
var ActiveBorrowStatuses = []BorrowStatus{
	BorrowStatusPending,
	BorrowStatusApproved,
	BorrowStatusBorrowed,
}

// IsActive reports whether the status holds the user's borrow slot.
func (s BorrowStatus) IsActive() bool {
	for _, active := range ActiveBorrowStatuses {
		if s == active {
			return true
		}
	}
	return false
}

// Valid reports whether s is a known status.
func (s BorrowStatus) Valid() bool {
	return s.IsActive() || s == BorrowStatusRejected || s == BorrowStatusReturned
}

// BorrowRecord tracks one user's possession (or request) of one book copy.
// Username, BookName and BookTitle are snapshots taken at creation time.
type BorrowRecord struct {
	ID              string       `json:"id" db:"id"`
	UserID          string       `json:"userId" db:"user_id"`
	Username        string       `json:"username" db:"username"`
	BookID          string       `json:"bookId" db:"book_id"`
	BookName        string       `json:"bookName" db:"book_name"`
	BookTitle       string       `json:"bookTitle" db:"book_title"`
	Status          BorrowStatus `json:"status" db:"status"`
	RequestedAt     *time.Time   `json:"requestedAt" db:"requested_at"`
	BorrowedAt      *time.Time   `json:"borrowedAt" db:"borrowed_at"`
	DueDate         time.Time    `json:"dueDate" db:"due_date"`
	ReturnedAt      *time.Time   `json:"returnedAt" db:"returned_at"`
	Fine            int64        `json:"fine" db:"fine"`
	ApprovedBy      *string      `json:"approvedBy" db:"approved_by"`
	ApprovedAt      *time.Time   `json:"approvedAt" db:"approved_at"`
	RejectionReason *string      `json:"rejectionReason" db:"rejection_reason"`
}

// IsUnreturned reports whether the record still holds a borrow slot.
func (b *BorrowRecord) IsUnreturned() bool {
	return b.ReturnedAt == nil && b.Status.IsActive()
}

// BorrowFilter narrows a borrow listing.
type BorrowFilter struct {
	Search string
	Status BorrowStatus
	Page   int
	Limit  int
}

// Offset returns the row offset for the filter's page.
func (f BorrowFilter) Offset() int {
	if f.Page < 1 {
		return 0
	}
	return (f.Page - 1) * f.Limit
}

// BorrowPage is a page of borrow records.
type BorrowPage struct {
	Borrows []BorrowRecord `json:"borrows"`
	Total   int            `json:"total"`
	Page    int            `json:"page"`
	Limit   int            `json:"limit"`
}
