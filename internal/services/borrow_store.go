package services

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/campuslib/backend/internal/models"
	"github.com/lib/pq"
	"github.com/pkg/errors"
)

// ErrDuplicate is returned when an insert violates a uniqueness rule, such
// as a second active borrow for the same user.
var ErrDuplicate = errors.New("duplicate record")

// Settlement describes the borrow closed by a payment.
type Settlement struct {
	BookID string
	// HeldCopy is true when the borrow had a copy out before settling.
	HeldCopy bool
}

// BorrowStore persists borrow records. Every Mark* method is a conditional
// write and reports false when the record was not in the expected state.
type BorrowStore interface {
	Insert(ctx context.Context, rec *models.BorrowRecord) error
	FindByID(ctx context.Context, id string) (*models.BorrowRecord, error)
	FindActiveByUser(ctx context.Context, userID string) (*models.BorrowRecord, error)
	FindOnLoan(ctx context.Context, userID, bookID string) (*models.BorrowRecord, error)
	LatestRejection(ctx context.Context, userID, bookID string) (*models.BorrowRecord, error)
	MarkBorrowed(ctx context.Context, id, approverID string, at time.Time) (bool, error)
	MarkRejected(ctx context.Context, id, approverID, reason string, at time.Time) (bool, error)
	MarkReturned(ctx context.Context, id string, fine int64, at time.Time) (bool, error)
	Settle(ctx context.Context, id, ownerID string, at time.Time) (*Settlement, error)
	List(ctx context.Context, filter models.BorrowFilter) ([]models.BorrowRecord, int, error)
}

const borrowColumns = `id, user_id, username, book_id, book_name, book_title, status,
	requested_at, borrowed_at, due_date, returned_at, fine,
	approved_by, approved_at, rejection_reason`

type PostgresBorrowStore struct {
	db *sql.DB
}

func NewPostgresBorrowStore(db *sql.DB) *PostgresBorrowStore {
	return &PostgresBorrowStore{db: db}
}

func (s *PostgresBorrowStore) Insert(ctx context.Context, rec *models.BorrowRecord) error {
	_, err := conn(ctx, s.db).ExecContext(ctx,
		`INSERT INTO borrows (`+borrowColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		rec.ID, rec.UserID, rec.Username, rec.BookID, rec.BookName, rec.BookTitle, rec.Status,
		rec.RequestedAt, rec.BorrowedAt, rec.DueDate, rec.ReturnedAt, rec.Fine,
		rec.ApprovedBy, rec.ApprovedAt, rec.RejectionReason)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return errors.Wrap(err, "insert borrow")
}

func (s *PostgresBorrowStore) FindByID(ctx context.Context, id string) (*models.BorrowRecord, error) {
	return s.findOne(ctx, `SELECT `+borrowColumns+` FROM borrows WHERE id = $1`, id)
}

// FindActiveByUser returns the record occupying the user's borrow slot.
func (s *PostgresBorrowStore) FindActiveByUser(ctx context.Context, userID string) (*models.BorrowRecord, error) {
	return s.findOne(ctx,
		`SELECT `+borrowColumns+` FROM borrows
		WHERE user_id = $1 AND returned_at IS NULL AND status IN ('pending', 'approved', 'borrowed')
		LIMIT 1`, userID)
}

// FindOnLoan returns the user's unreturned borrow of a book that has a copy out.
func (s *PostgresBorrowStore) FindOnLoan(ctx context.Context, userID, bookID string) (*models.BorrowRecord, error) {
	return s.findOne(ctx,
		`SELECT `+borrowColumns+` FROM borrows
		WHERE user_id = $1 AND book_id = $2 AND returned_at IS NULL AND status IN ('approved', 'borrowed')
		LIMIT 1`, userID, bookID)
}

func (s *PostgresBorrowStore) LatestRejection(ctx context.Context, userID, bookID string) (*models.BorrowRecord, error) {
	return s.findOne(ctx,
		`SELECT `+borrowColumns+` FROM borrows
		WHERE user_id = $1 AND book_id = $2 AND status = 'rejected'
		ORDER BY approved_at DESC NULLS LAST
		LIMIT 1`, userID, bookID)
}

func (s *PostgresBorrowStore) MarkBorrowed(ctx context.Context, id, approverID string, at time.Time) (bool, error) {
	return s.update(ctx, "approve borrow",
		`UPDATE borrows SET status = 'borrowed', approved_by = $2, approved_at = $3, borrowed_at = $3
		WHERE id = $1 AND status = 'pending'`, id, approverID, at)
}

func (s *PostgresBorrowStore) MarkRejected(ctx context.Context, id, approverID, reason string, at time.Time) (bool, error) {
	return s.update(ctx, "reject borrow",
		`UPDATE borrows SET status = 'rejected', approved_by = $2, approved_at = $3, rejection_reason = $4
		WHERE id = $1 AND status = 'pending'`, id, approverID, at, reason)
}

func (s *PostgresBorrowStore) MarkReturned(ctx context.Context, id string, fine int64, at time.Time) (bool, error) {
	return s.update(ctx, "return borrow",
		`UPDATE borrows SET status = 'returned', returned_at = $2, fine = $3
		WHERE id = $1 AND returned_at IS NULL`, id, at, fine)
}

// Settle zeroes the fine and closes the borrow. An empty ownerID matches any
// borrower. Settling an already closed borrow keeps its original return time.
func (s *PostgresBorrowStore) Settle(ctx context.Context, id, ownerID string, at time.Time) (*Settlement, error) {
	var st Settlement
	err := conn(ctx, s.db).QueryRowContext(ctx,
		`UPDATE borrows b SET fine = 0, status = 'returned', returned_at = COALESCE(b.returned_at, $2)
		FROM (SELECT id, status, returned_at FROM borrows WHERE id = $1 FOR UPDATE) prev
		WHERE b.id = prev.id AND ($3 = '' OR b.user_id = $3)
		RETURNING b.book_id, (prev.returned_at IS NULL AND prev.status IN ('approved', 'borrowed'))`,
		id, at, ownerID).Scan(&st.BookID, &st.HeldCopy)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "settle borrow")
	}
	return &st, nil
}

// List returns one page of records, most recently borrowed or requested first.
func (s *PostgresBorrowStore) List(ctx context.Context, filter models.BorrowFilter) ([]models.BorrowRecord, int, error) {
	where := `WHERE ($1 = '' OR user_id ILIKE $1 OR username ILIKE $1 OR book_id ILIKE $1 OR book_name ILIKE $1)
		AND ($2 = '' OR status = $2)`
	pattern := ""
	if filter.Search != "" {
		pattern = "%" + escapeLike(filter.Search) + "%"
	}

	var total int
	if err := conn(ctx, s.db).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM borrows `+where, pattern, string(filter.Status)).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "count borrows")
	}

	rows, err := conn(ctx, s.db).QueryContext(ctx,
		`SELECT `+borrowColumns+` FROM borrows `+where+`
		ORDER BY COALESCE(borrowed_at, requested_at) DESC NULLS LAST, id
		LIMIT $3 OFFSET $4`,
		pattern, string(filter.Status), filter.Limit, filter.Offset())
	if err != nil {
		return nil, 0, errors.Wrap(err, "list borrows")
	}
	defer rows.Close()

	records := make([]models.BorrowRecord, 0, filter.Limit)
	for rows.Next() {
		rec, err := scanBorrow(rows)
		if err != nil {
			return nil, 0, errors.Wrap(err, "scan borrow")
		}
		records = append(records, *rec)
	}
	return records, total, errors.Wrap(rows.Err(), "iterate borrows")
}

func (s *PostgresBorrowStore) findOne(ctx context.Context, query string, args ...any) (*models.BorrowRecord, error) {
	rec, err := scanBorrow(conn(ctx, s.db).QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "find borrow")
	}
	return rec, nil
}

func (s *PostgresBorrowStore) update(ctx context.Context, step, query string, args ...any) (bool, error) {
	res, err := conn(ctx, s.db).ExecContext(ctx, query, args...)
	if err != nil {
		return false, errors.Wrap(err, step)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, step)
	}
	return n == 1, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBorrow(row rowScanner) (*models.BorrowRecord, error) {
	var rec models.BorrowRecord
	err := row.Scan(&rec.ID, &rec.UserID, &rec.Username, &rec.BookID, &rec.BookName, &rec.BookTitle, &rec.Status,
		&rec.RequestedAt, &rec.BorrowedAt, &rec.DueDate, &rec.ReturnedAt, &rec.Fine,
		&rec.ApprovedBy, &rec.ApprovedAt, &rec.RejectionReason)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
