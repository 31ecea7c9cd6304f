package services

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/campuslib/backend/internal/models"
	"github.com/stretchr/testify/mock"
)

type MockAuditSink struct {
	mock.Mock
}

func (m *MockAuditSink) LogTransition(eventType, borrowID, userID, bookID string, details map[string]string) {
	m.Called(eventType, borrowID, userID, bookID, details)
}

func (m *MockAuditSink) LogPayment(eventType, txRef, borrowID, userID string, amount int64, status string) {
	m.Called(eventType, txRef, borrowID, userID, amount, status)
}

func (m *MockAuditSink) LogError(borrowID, userID string, err error) {
	m.Called(borrowID, userID, err)
}

// newMockAuditSink accepts every audit call so tests only assert the ones they care about.
func newMockAuditSink() *MockAuditSink {
	m := &MockAuditSink{}
	m.On("LogTransition", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Maybe()
	m.On("LogPayment", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Maybe()
	m.On("LogError", mock.Anything, mock.Anything, mock.Anything).Maybe()
	return m
}

type memTxKey struct{}

// memLibrary is an in-memory BorrowStore, Catalog, UserDirectory,
// PaymentStore and TxRunner. Transactions are serialised and a failed
// transaction restores the state it started from.
type memLibrary struct {
	mu       sync.Mutex
	borrows  map[string]models.BorrowRecord
	books    map[string]models.Book
	users    map[string]models.User
	payments map[string]models.PaymentRecord
}

func newMemLibrary() *memLibrary {
	return &memLibrary{
		borrows:  map[string]models.BorrowRecord{},
		books:    map[string]models.Book{},
		users:    map[string]models.User{},
		payments: map[string]models.PaymentRecord{},
	}
}

func (m *memLibrary) lock(ctx context.Context) func() {
	if ctx.Value(memTxKey{}) != nil {
		return func() {}
	}
	m.mu.Lock()
	return m.mu.Unlock
}

func (m *memLibrary) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(memTxKey{}) != nil {
		return fn(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshot()
	if err := fn(context.WithValue(ctx, memTxKey{}, true)); err != nil {
		m.borrows, m.books, m.users, m.payments = snap.borrows, snap.books, snap.users, snap.payments
		return err
	}
	return nil
}

type memSnapshot struct {
	borrows  map[string]models.BorrowRecord
	books    map[string]models.Book
	users    map[string]models.User
	payments map[string]models.PaymentRecord
}

func (m *memLibrary) snapshot() memSnapshot {
	s := memSnapshot{
		borrows:  make(map[string]models.BorrowRecord, len(m.borrows)),
		books:    make(map[string]models.Book, len(m.books)),
		users:    make(map[string]models.User, len(m.users)),
		payments: make(map[string]models.PaymentRecord, len(m.payments)),
	}
	for k, v := range m.borrows {
		s.borrows[k] = v
	}
	for k, v := range m.books {
		s.books[k] = v
	}
	for k, v := range m.users {
		s.users[k] = v
	}
	for k, v := range m.payments {
		s.payments[k] = v
	}
	return s
}

func (m *memLibrary) addUser(id, username string) {
	m.users[id] = models.User{ID: id, Username: username, Name: username, Role: models.RoleStudent, Status: models.UserStatusActive}
}

func (m *memLibrary) addBook(id, name string, copies int) {
	m.books[id] = models.Book{ID: id, Name: name, Title: strings.ToUpper(name), Copies: copies}
}

func (m *memLibrary) copies(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.books[id].Copies
}

func (m *memLibrary) borrow(id string) models.BorrowRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.borrows[id]
}

// BorrowStore

func (m *memLibrary) Insert(ctx context.Context, rec *models.BorrowRecord) error {
	defer m.lock(ctx)()
	if rec.IsUnreturned() {
		for _, b := range m.borrows {
			if b.UserID == rec.UserID && b.IsUnreturned() {
				return ErrDuplicate
			}
		}
	}
	m.borrows[rec.ID] = *rec
	return nil
}

func (m *memLibrary) FindByID(ctx context.Context, id string) (*models.BorrowRecord, error) {
	defer m.lock(ctx)()
	b, ok := m.borrows[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &b, nil
}

func (m *memLibrary) FindActiveByUser(ctx context.Context, userID string) (*models.BorrowRecord, error) {
	defer m.lock(ctx)()
	for _, b := range m.borrows {
		if b.UserID == userID && b.IsUnreturned() {
			return &b, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memLibrary) FindOnLoan(ctx context.Context, userID, bookID string) (*models.BorrowRecord, error) {
	defer m.lock(ctx)()
	for _, b := range m.borrows {
		if b.UserID == userID && b.BookID == bookID && b.ReturnedAt == nil &&
			(b.Status == models.BorrowStatusApproved || b.Status == models.BorrowStatusBorrowed) {
			return &b, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memLibrary) LatestRejection(ctx context.Context, userID, bookID string) (*models.BorrowRecord, error) {
	defer m.lock(ctx)()
	var latest *models.BorrowRecord
	for _, b := range m.borrows {
		if b.UserID != userID || b.BookID != bookID || b.Status != models.BorrowStatusRejected {
			continue
		}
		if latest == nil || b.ApprovedAt.After(*latest.ApprovedAt) {
			b := b
			latest = &b
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	return latest, nil
}

func (m *memLibrary) MarkBorrowed(ctx context.Context, id, approverID string, at time.Time) (bool, error) {
	defer m.lock(ctx)()
	b, ok := m.borrows[id]
	if !ok || b.Status != models.BorrowStatusPending {
		return false, nil
	}
	b.Status = models.BorrowStatusBorrowed
	b.ApprovedBy = &approverID
	b.ApprovedAt = &at
	b.BorrowedAt = &at
	m.borrows[id] = b
	return true, nil
}

func (m *memLibrary) MarkRejected(ctx context.Context, id, approverID, reason string, at time.Time) (bool, error) {
	defer m.lock(ctx)()
	b, ok := m.borrows[id]
	if !ok || b.Status != models.BorrowStatusPending {
		return false, nil
	}
	b.Status = models.BorrowStatusRejected
	b.ApprovedBy = &approverID
	b.ApprovedAt = &at
	b.RejectionReason = &reason
	m.borrows[id] = b
	return true, nil
}

func (m *memLibrary) MarkReturned(ctx context.Context, id string, fine int64, at time.Time) (bool, error) {
	defer m.lock(ctx)()
	b, ok := m.borrows[id]
	if !ok || b.ReturnedAt != nil {
		return false, nil
	}
	b.Status = models.BorrowStatusReturned
	b.ReturnedAt = &at
	b.Fine = fine
	m.borrows[id] = b
	return true, nil
}

func (m *memLibrary) Settle(ctx context.Context, id, ownerID string, at time.Time) (*Settlement, error) {
	defer m.lock(ctx)()
	b, ok := m.borrows[id]
	if !ok || (ownerID != "" && b.UserID != ownerID) {
		return nil, ErrNotFound
	}
	held := b.ReturnedAt == nil && (b.Status == models.BorrowStatusApproved || b.Status == models.BorrowStatusBorrowed)
	b.Fine = 0
	b.Status = models.BorrowStatusReturned
	if b.ReturnedAt == nil {
		b.ReturnedAt = &at
	}
	m.borrows[id] = b
	return &Settlement{BookID: b.BookID, HeldCopy: held}, nil
}

func (m *memLibrary) List(ctx context.Context, filter models.BorrowFilter) ([]models.BorrowRecord, int, error) {
	defer m.lock(ctx)()
	search := strings.ToLower(filter.Search)
	var matched []models.BorrowRecord
	for _, b := range m.borrows {
		if filter.Status != "" && b.Status != filter.Status {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(b.UserID+"|"+b.Username+"|"+b.BookID+"|"+b.BookName), search) {
			continue
		}
		matched = append(matched, b)
	}
	sortKey := func(b models.BorrowRecord) time.Time {
		if b.BorrowedAt != nil {
			return *b.BorrowedAt
		}
		if b.RequestedAt != nil {
			return *b.RequestedAt
		}
		return time.Time{}
	}
	sort.Slice(matched, func(i, j int) bool {
		ki, kj := sortKey(matched[i]), sortKey(matched[j])
		if ki.Equal(kj) {
			return matched[i].ID < matched[j].ID
		}
		return ki.After(kj)
	})

	total := len(matched)
	start := filter.Offset()
	if start > total {
		start = total
	}
	end := start + filter.Limit
	if end > total {
		end = total
	}
	return append([]models.BorrowRecord{}, matched[start:end]...), total, nil
}

// Catalog

func (m *memLibrary) FindBook(ctx context.Context, id string) (*models.Book, error) {
	defer m.lock(ctx)()
	b, ok := m.books[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &b, nil
}

func (m *memLibrary) DecrementCopies(ctx context.Context, id string) (bool, error) {
	defer m.lock(ctx)()
	b, ok := m.books[id]
	if !ok || b.Copies <= 0 {
		return false, nil
	}
	b.Copies--
	m.books[id] = b
	return true, nil
}

func (m *memLibrary) IncrementCopies(ctx context.Context, id string) error {
	defer m.lock(ctx)()
	if b, ok := m.books[id]; ok {
		b.Copies++
		m.books[id] = b
	}
	return nil
}

// UserDirectory

func (m *memLibrary) FindUser(ctx context.Context, id string) (*models.User, error) {
	defer m.lock(ctx)()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

// PaymentStore

func (m *memLibrary) Create(ctx context.Context, p *models.PaymentRecord) error {
	defer m.lock(ctx)()
	if _, ok := m.payments[p.TxRef]; ok {
		return ErrDuplicate
	}
	m.payments[p.TxRef] = *p
	return nil
}

func (m *memLibrary) FindByTxRef(ctx context.Context, txRef string) (*models.PaymentRecord, error) {
	defer m.lock(ctx)()
	p, ok := m.payments[txRef]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (m *memLibrary) TransitionStatus(ctx context.Context, txRef string, from, to models.PaymentStatus) (bool, error) {
	defer m.lock(ctx)()
	p, ok := m.payments[txRef]
	if !ok || p.Status != from {
		return false, nil
	}
	p.Status = to
	m.payments[txRef] = p
	return true, nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
