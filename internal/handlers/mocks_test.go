package handlers

import (
	"context"
	"net/http"

	"github.com/campuslib/backend/internal/models"
	"github.com/campuslib/backend/internal/services"
	"github.com/stretchr/testify/mock"
)

type MockLending struct {
	mock.Mock
}

func (m *MockLending) RequestBook(ctx context.Context, in services.BorrowInput) (*services.RequestResult, error) {
	args := m.Called(ctx, in)
	res, _ := args.Get(0).(*services.RequestResult)
	return res, args.Error(1)
}

func (m *MockLending) ApproveRequest(ctx context.Context, borrowID string, action services.ApprovalAction, approverID, reason string) (*models.BorrowRecord, error) {
	args := m.Called(ctx, borrowID, action, approverID, reason)
	rec, _ := args.Get(0).(*models.BorrowRecord)
	return rec, args.Error(1)
}

func (m *MockLending) BorrowBook(ctx context.Context, in services.BorrowInput) (*models.BorrowRecord, error) {
	args := m.Called(ctx, in)
	rec, _ := args.Get(0).(*models.BorrowRecord)
	return rec, args.Error(1)
}

func (m *MockLending) ReturnBook(ctx context.Context, userID, bookID string) (*models.BorrowRecord, error) {
	args := m.Called(ctx, userID, bookID)
	rec, _ := args.Get(0).(*models.BorrowRecord)
	return rec, args.Error(1)
}

func (m *MockLending) ListBorrows(ctx context.Context, filter models.BorrowFilter) (*models.BorrowPage, error) {
	args := m.Called(ctx, filter)
	page, _ := args.Get(0).(*models.BorrowPage)
	return page, args.Error(1)
}

func (m *MockLending) GetActiveBorrowForUser(ctx context.Context, userID, username string) (*models.BorrowRecord, error) {
	args := m.Called(ctx, userID, username)
	rec, _ := args.Get(0).(*models.BorrowRecord)
	return rec, args.Error(1)
}

type MockPayments struct {
	mock.Mock
}

func (m *MockPayments) InitChapa(ctx context.Context, in services.FinePayment) (*services.Checkout, error) {
	args := m.Called(ctx, in)
	c, _ := args.Get(0).(*services.Checkout)
	return c, args.Error(1)
}

func (m *MockPayments) HandleChapaCallback(ctx context.Context, txRef, status string) (*models.PaymentRecord, error) {
	args := m.Called(ctx, txRef, status)
	p, _ := args.Get(0).(*models.PaymentRecord)
	return p, args.Error(1)
}

func (m *MockPayments) PayWithTelebirr(ctx context.Context, in services.FinePayment, mobile string) (string, error) {
	args := m.Called(ctx, in, mobile)
	return args.String(0), args.Error(1)
}

func (m *MockPayments) FineDue(ctx context.Context, userID, username string) (int64, string, error) {
	args := m.Called(ctx, userID, username)
	return args.Get(0).(int64), args.String(1), args.Error(2)
}

// as authenticates r as the given user and role.
func as(r *http.Request, userID string, role models.Role) *http.Request {
	claims := &services.Claims{UserID: userID, Username: userID, Role: role}
	return r.WithContext(services.WithClaims(r.Context(), claims, "test-token"))
}
