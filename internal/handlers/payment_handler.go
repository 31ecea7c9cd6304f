package handlers

import (
	"context"
	"net/http"

	"github.com/campuslib/backend/internal/models"
	"github.com/campuslib/backend/internal/services"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

// Payments is the settlement adapter behind the payment endpoints.
type Payments interface {
	InitChapa(ctx context.Context, in services.FinePayment) (*services.Checkout, error)
	HandleChapaCallback(ctx context.Context, txRef, status string) (*models.PaymentRecord, error)
	PayWithTelebirr(ctx context.Context, in services.FinePayment, mobile string) (string, error)
	FineDue(ctx context.Context, userID, username string) (int64, string, error)
}

type PaymentHandler struct {
	payments  Payments
	validator *services.ValidationHelper
}

func NewPaymentHandler(payments Payments) *PaymentHandler {
	return &PaymentHandler{
		payments:  payments,
		validator: services.NewValidationHelper(),
	}
}

// FineRequest identifies the member whose fine is looked up
type FineRequest struct {
	UserID   string `json:"userId" validate:"required"`
	Username string `json:"username" validate:"required"`
}

// InitPaymentRequest starts a hosted checkout for a fine
// @Description Payment initiation structure
type InitPaymentRequest struct {
	UserID   string `json:"userId" validate:"required"`
	Username string `json:"username" validate:"required"`
	Amount   int64  `json:"amount" validate:"required,gt=0" example:"30"`
	BorrowID string `json:"borrowId" validate:"required"`
}

// TelebirrRequest pays a fine synchronously through Telebirr
type TelebirrRequest struct {
	UserID   string `json:"userId" validate:"required"`
	Username string `json:"username" validate:"required"`
	Amount   int64  `json:"amount" validate:"required,gt=0" example:"30"`
	BorrowID string `json:"borrowId" validate:"required"`
	Mobile   string `json:"mobile" validate:"required,etmobile" example:"0911223344"`
}

// CallbackRequest is the provider notification. Providers may send more
// fields than these, so unknown fields are tolerated.
type CallbackRequest struct {
	TxRef  string `json:"tx_ref"`
	Status string `json:"status"`
}

func (h *PaymentHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
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

// Fine returns the live fine on the member's active borrow
// @Summary Fine due
// @Tags payments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body FineRequest true "Member"
// @Success 200 {object} object{fine=int,borrowId=string}
// @Failure 404 {object} services.ErrorResponse
// @Router /payments/fine [post]
func (h *PaymentHandler) Fine(w http.ResponseWriter, r *http.Request) {
	var req FineRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := actingFor(r, req.UserID); err != nil {
		services.WriteError(w, err)
		return
	}

	fine, borrowID, err := h.payments.FineDue(r.Context(), req.UserID, req.Username)
	if err != nil {
		services.WriteError(w, err)
		return
	}
	services.WriteJSON(w, http.StatusOK, map[string]any{"fine": fine, "borrowId": borrowID})
}

// InitPayment opens a Chapa checkout
// @Summary Start Chapa payment
// @Tags payments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body InitPaymentRequest true "Payment"
// @Success 200 {object} services.Checkout
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Failure 429 {object} services.ErrorResponse
// @Failure 500 {object} services.ErrorResponse
// @Router /payments/init [post]
func (h *PaymentHandler) InitPayment(w http.ResponseWriter, r *http.Request) {
	var req InitPaymentRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := actingFor(r, req.UserID); err != nil {
		services.WriteError(w, err)
		return
	}

	checkout, err := h.payments.InitChapa(r.Context(), services.FinePayment{
		UserID:   req.UserID,
		Username: req.Username,
		Amount:   req.Amount,
		BorrowID: req.BorrowID,
	})
	if err != nil {
		services.WriteError(w, err)
		return
	}
	services.WriteJSON(w, http.StatusOK, checkout)
}

// Callback receives the Chapa notification. The reported status is
// checked against Chapa before anything is settled.
// @Summary Chapa callback
// @Tags payments
// @Accept json
// @Produce json
// @Param request body CallbackRequest true "Notification"
// @Success 200 {object} map[string]string
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Failure 500 {object} services.ErrorResponse
// @Router /payments/callback [post]
func (h *PaymentHandler) Callback(w http.ResponseWriter, r *http.Request) {
	var req CallbackRequest
	if err := services.DecodeJSONLenient(w, r, &req); err != nil {
		services.WriteError(w, err)
		return
	}
	if req.TxRef == "" {
		services.SendErrorResponse(w, "tx_ref missing", http.StatusBadRequest, nil)
		return
	}

	if _, err := h.payments.HandleChapaCallback(r.Context(), req.TxRef, req.Status); err != nil {
		services.WriteError(w, err)
		return
	}
	services.WriteJSON(w, http.StatusOK, map[string]string{"message": "Webhook processed"})
}

// InitTelebirr pays a fine through Telebirr and closes the borrow
// @Summary Pay with Telebirr
// @Tags payments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body TelebirrRequest true "Payment"
// @Success 200 {object} object{success=bool,message=string,tx_ref=string}
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /payments/init-telebirr [post]
func (h *PaymentHandler) InitTelebirr(w http.ResponseWriter, r *http.Request) {
	var req TelebirrRequest
	if err := services.DecodeJSON(w, r, &req); err != nil {
		services.WriteError(w, err)
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		if failedOn(err, "Mobile", "etmobile") {
			services.SendErrorResponse(w, "Invalid mobile (09.......)", http.StatusBadRequest, nil)
			return
		}
		services.SendErrorResponse(w, "All fields required", http.StatusBadRequest, err)
		return
	}
	if err := actingFor(r, req.UserID); err != nil {
		services.WriteError(w, err)
		return
	}

	txRef, err := h.payments.PayWithTelebirr(r.Context(), services.FinePayment{
		UserID:   req.UserID,
		Username: req.Username,
		Amount:   req.Amount,
		BorrowID: req.BorrowID,
	}, req.Mobile)
	if err != nil {
		services.WriteError(w, err)
		return
	}
	services.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Fine paid via Telebirr – book returned!",
		"tx_ref":  txRef,
	})
}

func failedOn(err error, field, tag string) bool {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return false
	}
	for _, fe := range verrs {
		if fe.Field() == field && fe.Tag() == tag {
			return true
		}
	}
	return false
}
