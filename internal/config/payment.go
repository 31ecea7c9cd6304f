package config

import "time"

// PaymentConfig configures the fine payment providers.
type PaymentConfig struct {
	ChapaBaseURL   string
	ChapaSecretKey string
	FrontendURL    string
	Currency       string
	HTTPTimeout    time.Duration
	InitRateLimit  int
	InitRateWindow time.Duration
	QRImageSize    int
}

func LoadPaymentConfig() *PaymentConfig {
	return &PaymentConfig{
		ChapaBaseURL:   getEnv("CHAPA_BASE_URL", "https://api.chapa.co"),
		ChapaSecretKey: getEnv("CHAPA_SECRET_KEY", ""),
		FrontendURL:    getEnv("FRONTEND_URL", "http://localhost:3000"),
		Currency:       getEnv("PAYMENT_CURRENCY", "ETB"),
		HTTPTimeout:    getEnvAsDuration("PAYMENT_HTTP_TIMEOUT", 15*time.Second),
		InitRateLimit:  getEnvAsInt("PAYMENT_INIT_RATE_LIMIT", 5),
		InitRateWindow: getEnvAsDuration("PAYMENT_INIT_RATE_WINDOW", 10*time.Minute),
		QRImageSize:    getEnvAsInt("PAYMENT_QR_IMAGE_SIZE", 256),
	}
}

// CallbackURL is where Chapa posts the payment outcome.
func (c *PaymentConfig) CallbackURL() string {
	return c.FrontendURL + "/api/payments/callback"
}

// ReturnURL is where Chapa redirects the payer after checkout.
func (c *PaymentConfig) ReturnURL() string {
	return c.FrontendURL + "/payment/success"
}
