package services

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/campuslib/backend/internal/audit"
	"github.com/campuslib/backend/internal/config"
	"github.com/campuslib/backend/internal/models"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// AuditSink records lifecycle transitions.
type AuditSink interface {
	LogTransition(eventType, borrowID, userID, bookID string, details map[string]string)
	LogPayment(eventType, txRef, borrowID, userID string, amount int64, status string)
	LogError(borrowID, userID string, err error)
}

// ApprovalAction is a librarian's decision on a pending request.
type ApprovalAction string

const (
	ActionApprove ApprovalAction = "approve"
	ActionReject  ApprovalAction = "reject"
)

// BorrowInput identifies the borrower and the book for a request or a
// direct borrow. Username and BookName must match the stored identities.
type BorrowInput struct {
	UserID   string
	Username string
	BookID   string
	BookName string
	DueDate  time.Time
}

// RequestResult is a newly filed request plus shelf availability at filing time.
type RequestResult struct {
	Record    *models.BorrowRecord
	Available bool
}

// LendingService owns borrow and payment records and moves them through
// the borrow lifecycle. Every mutating operation runs in one transaction.
type LendingService struct {
	borrows  BorrowStore
	catalog  Catalog
	users    UserDirectory
	payments PaymentStore
	tx       TxRunner
	audit    AuditSink
	cfg      *config.CirculationConfig

	now   func() time.Time
	newID func() string
}

func NewLendingService(borrows BorrowStore, catalog Catalog, users UserDirectory, payments PaymentStore,
	tx TxRunner, auditSink AuditSink, cfg *config.CirculationConfig) *LendingService {
	return &LendingService{
		borrows:  borrows,
		catalog:  catalog,
		users:    users,
		payments: payments,
		tx:       tx,
		audit:    auditSink,
		cfg:      cfg,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// RequestBook files a pending request. Copies are not reserved until approval.
func (s *LendingService) RequestBook(ctx context.Context, in BorrowInput) (*RequestResult, error) {
	now := s.now()
	if in.DueDate.Before(now) {
		return nil, Validation("dueDate must not be in the past")
	}

	book, err := s.resolveIdentities(ctx, in)
	if err != nil {
		return nil, err
	}

	existing, err := s.borrows.FindActiveByUser(ctx, in.UserID)
	if err == nil {
		return nil, Conflict("User already has an active request or borrow").With("existingStatus", existing.Status)
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, s.internalFailure("", in.UserID, err)
	}

	if err := s.checkCooldown(ctx, in.UserID, in.BookID, now); err != nil {
		return nil, s.internalFailure("", in.UserID, err)
	}

	rec := &models.BorrowRecord{
		ID:          s.newID(),
		UserID:      in.UserID,
		Username:    in.Username,
		BookID:      in.BookID,
		BookName:    in.BookName,
		BookTitle:   book.Title,
		Status:      models.BorrowStatusPending,
		RequestedAt: &now,
		DueDate:     in.DueDate,
	}
	if err := s.borrows.Insert(ctx, rec); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return nil, Conflict("User already has an active request or borrow")
		}
		return nil, s.internalFailure(rec.ID, rec.UserID, err)
	}

	log.Printf("[BORROW] Request %s filed by %s for book %s", rec.ID, rec.UserID, rec.BookID)
	s.audit.LogTransition(audit.EventBorrowRequested, rec.ID, rec.UserID, rec.BookID, nil)
	return &RequestResult{Record: rec, Available: book.Copies > 0}, nil
}

func (s *LendingService) checkCooldown(ctx context.Context, userID, bookID string, now time.Time) error {
	rejected, err := s.borrows.LatestRejection(ctx, userID, bookID)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if rejected.ApprovedAt == nil {
		return nil
	}

	since := now.Sub(*rejected.ApprovedAt)
	if since < 0 {
		since = 0
	}
	if since >= s.cfg.RejectionCooldown {
		return nil
	}

	hoursLeft := int(math.Ceil(s.cfg.RejectionCooldown.Hours() - since.Hours()))
	return Conflict(fmt.Sprintf("Please wait %d hours before requesting this book again", hoursLeft)).
		With("canRequestAfter", rejected.ApprovedAt.Add(s.cfg.RejectionCooldown)).
		With("hoursLeft", hoursLeft)
}

// ApproveRequest approves or rejects a pending request. Approval takes a
// copy off the shelf; if none is left nothing changes.
func (s *LendingService) ApproveRequest(ctx context.Context, borrowID string, action ApprovalAction, approverID, reason string) (*models.BorrowRecord, error) {
	if action != ActionApprove && action != ActionReject {
		return nil, Validation("action must be one of [approve, reject]")
	}
	if _, err := uuid.Parse(borrowID); err != nil {
		return nil, NotFound("Pending request not found")
	}

	now := s.now()
	var rec *models.BorrowRecord
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		rec, err = s.borrows.FindByID(ctx, borrowID)
		if errors.Is(err, ErrNotFound) || (err == nil && rec.Status != models.BorrowStatusPending) {
			return NotFound("Pending request not found")
		}
		if err != nil {
			return err
		}

		if action == ActionReject {
			return s.reject(ctx, rec, approverID, reason, now)
		}
		return s.approve(ctx, rec, approverID, now)
	})
	if err != nil {
		return nil, s.internalFailure(borrowID, approverID, err)
	}

	if action == ActionReject {
		log.Printf("[BORROW] Request %s rejected by %s", rec.ID, approverID)
		s.audit.LogTransition(audit.EventRequestRejected, rec.ID, rec.UserID, rec.BookID,
			map[string]string{"approved_by": approverID, "reason": *rec.RejectionReason})
	} else {
		log.Printf("[BORROW] Request %s approved by %s", rec.ID, approverID)
		s.audit.LogTransition(audit.EventRequestApproved, rec.ID, rec.UserID, rec.BookID,
			map[string]string{"approved_by": approverID})
	}
	return rec, nil
}

func (s *LendingService) approve(ctx context.Context, rec *models.BorrowRecord, approverID string, now time.Time) error {
	ok, err := s.borrows.MarkBorrowed(ctx, rec.ID, approverID, now)
	if err != nil {
		return err
	}
	if !ok {
		return NotFound("Pending request not found")
	}

	taken, err := s.catalog.DecrementCopies(ctx, rec.BookID)
	if err != nil {
		return err
	}
	if !taken {
		return Conflict("No copies available")
	}

	rec.Status = models.BorrowStatusBorrowed
	rec.ApprovedBy = &approverID
	rec.ApprovedAt = &now
	rec.BorrowedAt = &now
	return nil
}

func (s *LendingService) reject(ctx context.Context, rec *models.BorrowRecord, approverID, reason string, now time.Time) error {
	if reason == "" {
		reason = s.cfg.DefaultRejectionReason
	}
	ok, err := s.borrows.MarkRejected(ctx, rec.ID, approverID, reason, now)
	if err != nil {
		return err
	}
	if !ok {
		return NotFound("Pending request not found")
	}

	rec.Status = models.BorrowStatusRejected
	rec.ApprovedBy = &approverID
	rec.ApprovedAt = &now
	rec.RejectionReason = &reason
	return nil
}

// BorrowBook lends a copy immediately, skipping the request workflow.
func (s *LendingService) BorrowBook(ctx context.Context, in BorrowInput) (*models.BorrowRecord, error) {
	now := s.now()
	if in.DueDate.Before(now) {
		return nil, Validation("dueDate must not be in the past")
	}

	book, err := s.resolveIdentities(ctx, in)
	if err != nil {
		return nil, err
	}

	rec := &models.BorrowRecord{
		ID:         s.newID(),
		UserID:     in.UserID,
		Username:   in.Username,
		BookID:     in.BookID,
		BookName:   in.BookName,
		BookTitle:  book.Title,
		Status:     models.BorrowStatusBorrowed,
		BorrowedAt: &now,
		DueDate:    in.DueDate,
	}

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := s.borrows.FindActiveByUser(ctx, in.UserID); err == nil {
			return Conflict("User already has a borrowed book")
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}

		taken, err := s.catalog.DecrementCopies(ctx, in.BookID)
		if err != nil {
			return err
		}
		if !taken {
			return Conflict("No copies available")
		}

		if err := s.borrows.Insert(ctx, rec); err != nil {
			if errors.Is(err, ErrDuplicate) {
				return Conflict("User already has a borrowed book")
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, s.internalFailure(rec.ID, rec.UserID, err)
	}

	log.Printf("[BORROW] Book %s lent to %s until %s", rec.BookID, rec.UserID, rec.DueDate.Format(time.RFC3339))
	s.audit.LogTransition(audit.EventBookBorrowed, rec.ID, rec.UserID, rec.BookID, nil)
	return rec, nil
}

// ReturnBook closes the user's loan of a book, freezing the fine owed.
func (s *LendingService) ReturnBook(ctx context.Context, userID, bookID string) (*models.BorrowRecord, error) {
	now := s.now()
	var rec *models.BorrowRecord
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		rec, err = s.borrows.FindOnLoan(ctx, userID, bookID)
		if errors.Is(err, ErrNotFound) {
			return NotFound("No active borrow found")
		}
		if err != nil {
			return err
		}

		fine := ComputeFine(rec.DueDate, now, s.cfg.DailyFineRate)
		ok, err := s.borrows.MarkReturned(ctx, rec.ID, fine, now)
		if err != nil {
			return err
		}
		if !ok {
			return NotFound("No active borrow found")
		}
		if err := s.catalog.IncrementCopies(ctx, rec.BookID); err != nil {
			return err
		}

		rec.Status = models.BorrowStatusReturned
		rec.ReturnedAt = &now
		rec.Fine = fine
		return nil
	})
	if err != nil {
		borrowID := ""
		if rec != nil {
			borrowID = rec.ID
		}
		return nil, s.internalFailure(borrowID, userID, err)
	}

	log.Printf("[BORROW] Book %s returned by %s, fine %d", rec.BookID, rec.UserID, rec.Fine)
	s.audit.LogTransition(audit.EventBookReturned, rec.ID, rec.UserID, rec.BookID,
		map[string]string{"fine": fmt.Sprint(rec.Fine)})
	return rec, nil
}

// OpenPayment records a provider checkout that awaits confirmation.
func (s *LendingService) OpenPayment(ctx context.Context, p *models.PaymentRecord) error {
	p.Status = models.PaymentStatusPending
	p.CreatedAt = s.now()
	if err := s.payments.Create(ctx, p); err != nil {
		return s.internalFailure(p.BorrowID, p.UserID, err)
	}
	s.audit.LogPayment(audit.EventPaymentInitiated, p.TxRef, p.BorrowID, p.UserID, p.Amount, string(p.Status))
	return nil
}

// FindPayment returns the payment recorded under txRef.
func (s *LendingService) FindPayment(ctx context.Context, txRef string) (*models.PaymentRecord, error) {
	payment, err := s.payments.FindByTxRef(ctx, txRef)
	if errors.Is(err, ErrNotFound) {
		return nil, NotFound("Payment not found")
	}
	if err != nil {
		return nil, s.internalFailure("", "", err)
	}
	return payment, nil
}

// SettlePayment applies a provider callback. Only a pending payment moves;
// a replayed callback is acknowledged without touching the borrow again.
func (s *LendingService) SettlePayment(ctx context.Context, txRef, providerStatus string) (*models.PaymentRecord, error) {
	target := models.PaymentStatusFailed
	if providerStatus == "success" {
		target = models.PaymentStatusCompleted
	}

	now := s.now()
	var payment *models.PaymentRecord
	var settled bool
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		payment, err = s.payments.FindByTxRef(ctx, txRef)
		if errors.Is(err, ErrNotFound) {
			return NotFound("Payment not found")
		}
		if err != nil {
			return err
		}

		moved, err := s.payments.TransitionStatus(ctx, txRef, models.PaymentStatusPending, target)
		if err != nil {
			return err
		}
		if !moved {
			return nil
		}
		payment.Status = target
		settled = true

		if target != models.PaymentStatusCompleted {
			return nil
		}
		_, err = s.closeBorrow(ctx, payment.BorrowID, payment.UserID, now)
		if errors.Is(err, ErrNotFound) {
			log.Printf("[PAYMENT] Payment %s does not match a borrow of %s (borrow %s)", txRef, payment.UserID, payment.BorrowID)
			return nil
		}
		return err
	})
	if err != nil {
		if payment != nil {
			return nil, s.internalFailure(payment.BorrowID, payment.UserID, err)
		}
		return nil, s.internalFailure("", "", err)
	}

	if !settled {
		log.Printf("[PAYMENT] Callback for %s ignored, payment already %s", txRef, payment.Status)
		return payment, nil
	}

	event := audit.EventFineSettled
	if payment.Status == models.PaymentStatusFailed {
		event = audit.EventPaymentFailed
	}
	s.audit.LogPayment(event, payment.TxRef, payment.BorrowID, payment.UserID, payment.Amount, string(payment.Status))
	return payment, nil
}

// PayAndSettle records a payment that the provider confirmed synchronously
// and closes the payer's borrow in the same transaction.
func (s *LendingService) PayAndSettle(ctx context.Context, p *models.PaymentRecord) error {
	now := s.now()
	p.Status = models.PaymentStatusCompleted
	p.CreatedAt = now

	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := s.closeBorrow(ctx, p.BorrowID, p.UserID, now); err != nil {
			if errors.Is(err, ErrNotFound) {
				return NotFound("Borrow record not found")
			}
			return err
		}
		return s.payments.Create(ctx, p)
	})
	if err != nil {
		return s.internalFailure(p.BorrowID, p.UserID, err)
	}

	s.audit.LogPayment(audit.EventFineSettled, p.TxRef, p.BorrowID, p.UserID, p.Amount, string(p.Status))
	return nil
}

// CheckPayable confirms that the borrow belongs to userID and still has a
// loan or a fine to settle.
func (s *LendingService) CheckPayable(ctx context.Context, borrowID, userID string) (*models.BorrowRecord, error) {
	if _, err := uuid.Parse(borrowID); err != nil {
		return nil, NotFound("Borrow record not found")
	}
	rec, err := s.borrows.FindByID(ctx, borrowID)
	if errors.Is(err, ErrNotFound) || (err == nil && (rec.UserID != userID || !(rec.IsUnreturned() || rec.Fine > 0))) {
		return nil, NotFound("Borrow record not found")
	}
	if err != nil {
		return nil, s.internalFailure(borrowID, userID, err)
	}
	return rec, nil
}

// internalFailure audits errors that are not an expected lifecycle outcome.
func (s *LendingService) internalFailure(borrowID, userID string, err error) error {
	var appErr *AppError
	if err != nil && !errors.As(err, &appErr) {
		log.Printf("[BORROW] Store failure (borrow %s, user %s): %v", borrowID, userID, err)
		s.audit.LogError(borrowID, userID, err)
	}
	return err
}

// closeBorrow zeroes the fine, marks the borrow returned and restocks the
// copy if the borrow still held one.
func (s *LendingService) closeBorrow(ctx context.Context, borrowID, ownerID string, now time.Time) (*Settlement, error) {
	if _, err := uuid.Parse(borrowID); err != nil {
		return nil, ErrNotFound
	}
	st, err := s.borrows.Settle(ctx, borrowID, ownerID, now)
	if err != nil {
		return nil, err
	}
	if st.HeldCopy {
		if err := s.catalog.IncrementCopies(ctx, st.BookID); err != nil {
			return nil, err
		}
	}
	return st, nil
}

// ListBorrows pages through borrow records. Records that still hold a
// borrow slot report the fine accrued so far.
func (s *LendingService) ListBorrows(ctx context.Context, filter models.BorrowFilter) (*models.BorrowPage, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, Validation("Invalid status filter")
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 {
		filter.Limit = s.cfg.DefaultPageSize
	}
	if filter.Limit > s.cfg.MaxPageSize {
		filter.Limit = s.cfg.MaxPageSize
	}

	records, total, err := s.borrows.List(ctx, filter)
	if err != nil {
		return nil, s.internalFailure("", "", err)
	}

	now := s.now()
	for i := range records {
		s.applyLiveFine(&records[i], now)
	}
	return &models.BorrowPage{Borrows: records, Total: total, Page: filter.Page, Limit: filter.Limit}, nil
}

// GetActiveBorrowForUser returns the record holding the user's borrow slot
// with its fine accrued so far.
func (s *LendingService) GetActiveBorrowForUser(ctx context.Context, userID, username string) (*models.BorrowRecord, error) {
	rec, err := s.borrows.FindActiveByUser(ctx, userID)
	if errors.Is(err, ErrNotFound) || (err == nil && rec.Username != username) {
		return nil, NotFound("No active borrow found")
	}
	if err != nil {
		return nil, s.internalFailure("", userID, err)
	}
	s.applyLiveFine(rec, s.now())
	return rec, nil
}

func (s *LendingService) applyLiveFine(rec *models.BorrowRecord, now time.Time) {
	if rec.IsUnreturned() {
		rec.Fine = ComputeFine(rec.DueDate, now, s.cfg.DailyFineRate)
	}
}

func (s *LendingService) resolveIdentities(ctx context.Context, in BorrowInput) (*models.Book, error) {
	user, err := s.users.FindUser(ctx, in.UserID)
	if errors.Is(err, ErrNotFound) || (err == nil && user.Username != in.Username) {
		return nil, NotFound("Invalid user ID or username")
	}
	if err != nil {
		return nil, err
	}

	book, err := s.catalog.FindBook(ctx, in.BookID)
	if errors.Is(err, ErrNotFound) || (err == nil && book.Name != in.BookName) {
		return nil, NotFound("Invalid book ID or name")
	}
	if err != nil {
		return nil, err
	}
	return book, nil
}
