package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image/png"
	"log"

	"github.com/campuslib/backend/internal/config"
	"github.com/campuslib/backend/internal/models"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/skip2/go-qrcode"
)

// FinePayment identifies who pays how much toward which borrow.
type FinePayment struct {
	UserID   string
	Username string
	Amount   int64
	BorrowID string
}

// Checkout is the result of starting a hosted payment.
type Checkout struct {
	CheckoutURL string `json:"checkout_url"`
	TxRef       string `json:"tx_ref"`
	QRImage     string `json:"qr_image,omitempty"`
}

// PaymentService connects the payment providers to the lending engine.
// A nil redis client disables the init rate limit.
type PaymentService struct {
	lending *LendingService
	gateway CheckoutGateway
	redis   *redis.Client
	cfg     *config.PaymentConfig
	newRef  func() string
}

func NewPaymentService(lending *LendingService, gateway CheckoutGateway, redisClient *redis.Client, cfg *config.PaymentConfig) *PaymentService {
	return &PaymentService{
		lending: lending,
		gateway: gateway,
		redis:   redisClient,
		cfg:     cfg,
		newRef:  uuid.NewString,
	}
}

// InitChapa opens a Chapa checkout for a fine on one of the payer's own
// borrows and records the pending payment.
func (s *PaymentService) InitChapa(ctx context.Context, in FinePayment) (*Checkout, error) {
	if err := s.checkRateLimit(ctx, in.UserID); err != nil {
		return nil, err
	}
	if _, err := s.lending.CheckPayable(ctx, in.BorrowID, in.UserID); err != nil {
		return nil, err
	}

	txRef := "fine-" + s.newRef()
	checkoutURL, err := s.gateway.Initialize(ctx, ChapaInitRequest{
		Amount:      in.Amount,
		Currency:    s.cfg.Currency,
		Email:       in.Username + "@library.et",
		FirstName:   in.Username,
		TxRef:       txRef,
		CallbackURL: s.cfg.CallbackURL(),
		ReturnURL:   s.cfg.ReturnURL(),
		Customization: ChapaCustomization{
			Title:       "Library Fine",
			Description: "Pay overdue fine",
		},
	})
	if err != nil {
		log.Printf("[PAYMENT] Chapa init failed for %s (borrow %s): %v", in.UserID, in.BorrowID, err)
		return nil, Upstream("Payment init failed", err)
	}
	s.incrementRateLimit(ctx, in.UserID)

	payment := &models.PaymentRecord{
		TxRef:    txRef,
		UserID:   in.UserID,
		Username: in.Username,
		Amount:   in.Amount,
		BorrowID: in.BorrowID,
		Method:   models.PaymentMethodChapa,
	}
	if err := s.lending.OpenPayment(ctx, payment); err != nil {
		return nil, Upstream("Payment init failed", err)
	}

	log.Printf("[PAYMENT] Chapa checkout %s opened for %s, amount %d", txRef, in.UserID, in.Amount)
	return &Checkout{CheckoutURL: checkoutURL, TxRef: txRef, QRImage: s.renderQR(checkoutURL)}, nil
}

// HandleChapaCallback settles or fails the payment named by txRef. The
// outcome is the one Chapa's verify endpoint reports, not the callback body.
func (s *PaymentService) HandleChapaCallback(ctx context.Context, txRef, status string) (*models.PaymentRecord, error) {
	payment, err := s.lending.FindPayment(ctx, txRef)
	if err != nil {
		return nil, err
	}
	if payment.Status != models.PaymentStatusPending {
		log.Printf("[PAYMENT] Callback for %s ignored, payment already %s", txRef, payment.Status)
		return payment, nil
	}

	verified, err := s.gateway.Verify(ctx, txRef)
	if err != nil {
		log.Printf("[PAYMENT] Chapa verify failed for %s: %v", txRef, err)
		return nil, Upstream("Payment verification failed", err)
	}
	if verified != status {
		log.Printf("[PAYMENT] Callback for %s reported %q, Chapa verified %q", txRef, status, verified)
	}
	if verified == "pending" {
		return payment, nil
	}

	payment, err = s.lending.SettlePayment(ctx, txRef, verified)
	if err != nil {
		return nil, err
	}
	log.Printf("[PAYMENT] Callback for %s processed, payment %s", txRef, payment.Status)
	return payment, nil
}

// PayWithTelebirr settles a fine synchronously. The borrow must belong to the payer.
func (s *PaymentService) PayWithTelebirr(ctx context.Context, in FinePayment, mobile string) (string, error) {
	if !ethiopianMobile.MatchString(mobile) {
		return "", Validation("Invalid mobile (09.......)")
	}

	payment := &models.PaymentRecord{
		TxRef:    "telebirr-" + s.newRef(),
		UserID:   in.UserID,
		Username: in.Username,
		Amount:   in.Amount,
		BorrowID: in.BorrowID,
		Method:   models.PaymentMethodTelebirr,
		Mobile:   &mobile,
	}
	if err := s.lending.PayAndSettle(ctx, payment); err != nil {
		return "", err
	}

	log.Printf("[PAYMENT] Telebirr payment %s settled borrow %s", payment.TxRef, payment.BorrowID)
	return payment.TxRef, nil
}

// FineDue returns the live fine on the user's active borrow.
func (s *PaymentService) FineDue(ctx context.Context, userID, username string) (int64, string, error) {
	rec, err := s.lending.GetActiveBorrowForUser(ctx, userID, username)
	if err != nil {
		var appErr *AppError
		if errors.As(err, &appErr) && appErr.Kind == KindNotFound {
			return 0, "", NotFound("No active borrow")
		}
		return 0, "", err
	}
	return rec.Fine, rec.ID, nil
}

func (s *PaymentService) checkRateLimit(ctx context.Context, userID string) error {
	if s.redis == nil {
		return nil
	}
	key := fmt.Sprintf("payment:init:%s", userID)
	count, err := s.redis.Get(ctx, key).Int()
	if err != nil && err != redis.Nil {
		return errors.Wrap(err, "read payment rate limit")
	}
	if count >= s.cfg.InitRateLimit {
		return TooManyRequests("Too many payment attempts, try again later")
	}
	return nil
}

func (s *PaymentService) incrementRateLimit(ctx context.Context, userID string) {
	if s.redis == nil {
		return
	}
	key := fmt.Sprintf("payment:init:%s", userID)
	pipe := s.redis.Pipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, s.cfg.InitRateWindow)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("[PAYMENT] Failed to update rate limit for %s: %v", userID, err)
	}
}

// renderQR encodes the checkout URL as a base64 PNG. Failures only drop the image.
func (s *PaymentService) renderQR(content string) string {
	qr, err := qrcode.New(content, qrcode.Medium)
	if err != nil {
		log.Printf("[PAYMENT] QR encoding failed: %v", err)
		return ""
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, qr.Image(s.cfg.QRImageSize)); err != nil {
		log.Printf("[PAYMENT] QR rendering failed: %v", err)
		return ""
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}
