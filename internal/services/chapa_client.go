package services

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// CheckoutGateway starts a hosted checkout and returns the payer's URL.
// Verify reports the provider's own status for a checkout.
type CheckoutGateway interface {
	Initialize(ctx context.Context, req ChapaInitRequest) (string, error)
	Verify(ctx context.Context, txRef string) (string, error)
}

type ChapaCustomization struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

type ChapaInitRequest struct {
	Amount        int64              `json:"amount"`
	Currency      string             `json:"currency"`
	Email         string             `json:"email"`
	FirstName     string             `json:"first_name"`
	TxRef         string             `json:"tx_ref"`
	CallbackURL   string             `json:"callback_url"`
	ReturnURL     string             `json:"return_url"`
	Customization ChapaCustomization `json:"customization"`
}

type chapaVerifyResponse struct {
	Message string `json:"message"`
	Status  string `json:"status"`
	Data    struct {
		Status string `json:"status"`
		TxRef  string `json:"tx_ref"`
	} `json:"data"`
}

type chapaInitResponse struct {
	Message string `json:"message"`
	Status  string `json:"status"`
	Data    struct {
		CheckoutURL string `json:"checkout_url"`
	} `json:"data"`
}

// ChapaClient calls the Chapa transaction API over HTTP.
type ChapaClient struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
}

func NewChapaClient(baseURL, secretKey string, timeout time.Duration) *ChapaClient {
	return &ChapaClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		secretKey:  secretKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *ChapaClient) Initialize(ctx context.Context, in ChapaInitRequest) (string, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return "", errors.Wrap(err, "encode chapa request")
	}

	var out chapaInitResponse
	if err := c.do(ctx, http.MethodPost, "/v1/transaction/initialize", bytes.NewReader(body), &out); err != nil {
		return "", errors.Wrap(err, "chapa initialize")
	}
	if out.Data.CheckoutURL == "" {
		return "", errors.New("chapa response has no checkout_url")
	}
	return out.Data.CheckoutURL, nil
}

// Verify asks Chapa for the status of txRef: success, failed or pending.
func (c *ChapaClient) Verify(ctx context.Context, txRef string) (string, error) {
	var out chapaVerifyResponse
	if err := c.do(ctx, http.MethodGet, "/v1/transaction/verify/"+url.PathEscape(txRef), nil, &out); err != nil {
		return "", errors.Wrap(err, "chapa verify")
	}
	if out.Data.TxRef != "" && out.Data.TxRef != txRef {
		return "", errors.Errorf("chapa verified %s, expected %s", out.Data.TxRef, txRef)
	}
	if out.Data.Status == "" {
		return "", errors.New("chapa response has no status")
	}
	return out.Data.Status, nil
}

func (c *ChapaClient) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "call chapa")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return errors.Wrap(err, "read response")
	}

	if resp.StatusCode/100 != 2 {
		var failure struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(raw, &failure); err != nil || failure.Message == "" {
			return errors.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
		}
		return errors.Errorf("status %d: %s", resp.StatusCode, failure.Message)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errors.Wrap(err, "decode response")
	}
	return nil
}
