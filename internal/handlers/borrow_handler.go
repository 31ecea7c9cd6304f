package handlers

import (
	"context"
	"log"
	"net/http"
	"strconv"

	"github.com/campuslib/backend/internal/models"
	"github.com/campuslib/backend/internal/services"
)

// Lending is the part of the lending engine the borrow endpoints drive.
type Lending interface {
	RequestBook(ctx context.Context, in services.BorrowInput) (*services.RequestResult, error)
	ApproveRequest(ctx context.Context, borrowID string, action services.ApprovalAction, approverID, reason string) (*models.BorrowRecord, error)
	BorrowBook(ctx context.Context, in services.BorrowInput) (*models.BorrowRecord, error)
	ReturnBook(ctx context.Context, userID, bookID string) (*models.BorrowRecord, error)
	ListBorrows(ctx context.Context, filter models.BorrowFilter) (*models.BorrowPage, error)
	GetActiveBorrowForUser(ctx context.Context, userID, username string) (*models.BorrowRecord, error)
}

type BorrowHandler struct {
	lending   Lending
	validator *services.ValidationHelper
}

func NewBorrowHandler(lending Lending) *BorrowHandler {
	return &BorrowHandler{
		lending:   lending,
		validator: services.NewValidationHelper(),
	}
}

// BorrowRequest names the borrower and the book for a request or direct borrow
// @Description Borrow request structure
type BorrowRequest struct {
	UserID   string `json:"userId" validate:"required" example:"STU-0001"`
	Username string `json:"username" validate:"required" example:"abebe"`
	BookID   string `json:"bookId" validate:"required" example:"B-0001"`
	BookName string `json:"bookName" validate:"required" example:"go-programming"`
	DueDate  string `json:"dueDate" validate:"required" example:"2025-03-20T00:00:00Z"`
}

// ApproveRequest is a librarian decision on a pending request
// @Description Approval request structure
type ApproveRequest struct {
	BorrowID string `json:"borrowId" validate:"required"`
	Action   string `json:"action" validate:"required,oneof=approve reject" example:"approve"`
	Reason   string `json:"reason" example:"Reference copy only"`
}

// ReturnRequest closes a borrow
type ReturnRequest struct {
	UserID string `json:"userId" validate:"required"`
	BookID string `json:"bookId" validate:"required"`
}

// MyBorrowRequest identifies the member whose active borrow is requested
type MyBorrowRequest struct {
	UserID   string `json:"userId" validate:"required"`
	Username string `json:"username" validate:"required"`
}

func (h *BorrowHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := services.DecodeJSON(w, r, dst); err != nil {
		services.WriteError(w, err)
		return false
	}
	if err := h.validator.ValidateStruct(dst); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return false
	}
	return true
}

func (h *BorrowHandler) borrowInput(w http.ResponseWriter, r *http.Request) (services.BorrowInput, bool) {
	var req BorrowRequest
	if !h.decode(w, r, &req) {
		return services.BorrowInput{}, false
	}
	if err := actingFor(r, req.UserID); err != nil {
		services.WriteError(w, err)
		return services.BorrowInput{}, false
	}
	due, err := parseDueDate(req.DueDate)
	if err != nil {
		services.WriteError(w, err)
		return services.BorrowInput{}, false
	}
	return services.BorrowInput{
		UserID:   req.UserID,
		Username: req.Username,
		BookID:   req.BookID,
		BookName: req.BookName,
		DueDate:  due,
	}, true
}

// RequestBook files a borrow request for librarian approval
// @Summary Request a book
// @Tags borrows
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body BorrowRequest true "Borrow request"
// @Success 201 {object} object{message=string,request=models.BorrowRecord,availability=string}
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /borrows/request [post]
func (h *BorrowHandler) RequestBook(w http.ResponseWriter, r *http.Request) {
	in, ok := h.borrowInput(w, r)
	if !ok {
		return
	}

	result, err := h.lending.RequestBook(r.Context(), in)
	if err != nil {
		services.WriteError(w, err)
		return
	}

	availability := "none"
	if result.Available {
		availability = "available"
	}
	services.WriteJSON(w, http.StatusCreated, map[string]any{
		"message":      "Book request submitted successfully",
		"request":      result.Record,
		"availability": availability,
	})
}

// ApproveRequest approves or rejects a pending request
// @Summary Approve or reject a request
// @Tags borrows
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body ApproveRequest true "Decision"
// @Success 200 {object} object{message=string,status=string}
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /borrows/approve [post]
func (h *BorrowHandler) ApproveRequest(w http.ResponseWriter, r *http.Request) {
	var req ApproveRequest
	if !h.decode(w, r, &req) {
		return
	}

	approverID := services.UserIDFrom(r.Context())
	rec, err := h.lending.ApproveRequest(r.Context(), req.BorrowID, services.ApprovalAction(req.Action), approverID, req.Reason)
	if err != nil {
		services.WriteError(w, err)
		return
	}

	message := "Request approved and book borrowed successfully"
	if rec.Status == models.BorrowStatusRejected {
		message = "Request rejected"
	}
	services.WriteJSON(w, http.StatusOK, map[string]any{"message": message, "status": rec.Status})
}

// BorrowBook lends a book without the approval step
// @Summary Borrow a book
// @Tags borrows
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body BorrowRequest true "Borrow request"
// @Success 201 {object} object{message=string,borrow=models.BorrowRecord}
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /borrows/borrow [post]
func (h *BorrowHandler) BorrowBook(w http.ResponseWriter, r *http.Request) {
	in, ok := h.borrowInput(w, r)
	if !ok {
		return
	}

	rec, err := h.lending.BorrowBook(r.Context(), in)
	if err != nil {
		services.WriteError(w, err)
		return
	}
	services.WriteJSON(w, http.StatusCreated, map[string]any{"message": "Book borrowed successfully", "borrow": rec})
}

// ReturnBook closes the member's borrow of a book and freezes the fine
// @Summary Return a book
// @Tags borrows
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body ReturnRequest true "Return request"
// @Success 200 {object} object{message=string,fine=int}
// @Failure 404 {object} services.ErrorResponse
// @Router /borrows/return [post]
func (h *BorrowHandler) ReturnBook(w http.ResponseWriter, r *http.Request) {
	var req ReturnRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := actingFor(r, req.UserID); err != nil {
		services.WriteError(w, err)
		return
	}

	rec, err := h.lending.ReturnBook(r.Context(), req.UserID, req.BookID)
	if err != nil {
		services.WriteError(w, err)
		return
	}
	services.WriteJSON(w, http.StatusOK, map[string]any{"message": "Returned successfully", "fine": rec.Fine})
}

// ListBorrows pages through borrow records with live fines
// @Summary List borrows
// @Tags borrows
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Param search query string false "Matches user ID, username, book ID or book name"
// @Param status query string false "Status filter"
// @Success 200 {object} models.BorrowPage
// @Router /borrows [get]
func (h *BorrowHandler) ListBorrows(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))

	result, err := h.lending.ListBorrows(r.Context(), models.BorrowFilter{
		Search: q.Get("search"),
		Status: models.BorrowStatus(q.Get("status")),
		Page:   page,
		Limit:  limit,
	})
	if err != nil {
		services.WriteError(w, err)
		return
	}
	services.WriteJSON(w, http.StatusOK, result)
}

// MyBorrow returns the member's active borrow with its fine so far
// @Summary My active borrow
// @Tags borrows
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body MyBorrowRequest true "Member"
// @Success 200 {object} object{borrow=models.BorrowRecord}
// @Failure 404 {object} services.ErrorResponse
// @Router /borrows/my [post]
func (h *BorrowHandler) MyBorrow(w http.ResponseWriter, r *http.Request) {
	var req MyBorrowRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := actingFor(r, req.UserID); err != nil {
		services.WriteError(w, err)
		return
	}

	rec, err := h.lending.GetActiveBorrowForUser(r.Context(), req.UserID, req.Username)
	if err != nil {
		services.WriteError(w, err)
		return
	}
	log.Printf("[BORROW] Active borrow %s served to %s", rec.ID, req.UserID)
	services.WriteJSON(w, http.StatusOK, map[string]any{"borrow": rec})
}
