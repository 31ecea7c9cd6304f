package services

import (
	"context"
	"database/sql"

	"github.com/campuslib/backend/internal/models"
	"github.com/pkg/errors"
)

// PaymentStore persists payment attempts keyed by tx_ref.
type PaymentStore interface {
	Create(ctx context.Context, p *models.PaymentRecord) error
	FindByTxRef(ctx context.Context, txRef string) (*models.PaymentRecord, error)
	// TransitionStatus moves a payment from one status to another and
	// reports false when it was not in from.
	TransitionStatus(ctx context.Context, txRef string, from, to models.PaymentStatus) (bool, error)
}

type PostgresPaymentStore struct {
	db *sql.DB
}

func NewPostgresPaymentStore(db *sql.DB) *PostgresPaymentStore {
	return &PostgresPaymentStore{db: db}
}

func (s *PostgresPaymentStore) Create(ctx context.Context, p *models.PaymentRecord) error {
	_, err := conn(ctx, s.db).ExecContext(ctx,
		`INSERT INTO payments (tx_ref, user_id, username, amount, borrow_id, method, mobile, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		p.TxRef, p.UserID, p.Username, p.Amount, p.BorrowID, p.Method, p.Mobile, p.Status, p.CreatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return errors.Wrap(err, "create payment")
}

func (s *PostgresPaymentStore) FindByTxRef(ctx context.Context, txRef string) (*models.PaymentRecord, error) {
	var p models.PaymentRecord
	err := conn(ctx, s.db).QueryRowContext(ctx,
		`SELECT tx_ref, user_id, username, amount, borrow_id, method, mobile, status, created_at
		FROM payments WHERE tx_ref = $1`, txRef).
		Scan(&p.TxRef, &p.UserID, &p.Username, &p.Amount, &p.BorrowID, &p.Method, &p.Mobile, &p.Status, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "find payment")
	}
	return &p, nil
}

func (s *PostgresPaymentStore) TransitionStatus(ctx context.Context, txRef string, from, to models.PaymentStatus) (bool, error) {
	res, err := conn(ctx, s.db).ExecContext(ctx,
		`UPDATE payments SET status = $3 WHERE tx_ref = $1 AND status = $2`, txRef, from, to)
	if err != nil {
		return false, errors.Wrap(err, "update payment status")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "update payment status")
	}
	return n == 1, nil
}
