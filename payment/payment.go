// Package payment adapts an external payment gateway. It keeps no state of
// its own; the offer ledger records whether a payment completed.
package payment

import (
	"context"
	"math"
	"strings"

	"signature-elite-server/apperror"

	"github.com/kataras/golog"
)

// Intent is the client-usable handle of an in-progress charge.
type Intent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"clientSecret"`
	AmountMinor  int64  `json:"amount"`
	Currency     string `json:"currency"`
}

// Gateway creates payment intents in minor currency units.
type Gateway interface {
	CreatePaymentIntent(ctx context.Context, amountMinor int64, currency string, metadata map[string]string) (Intent, error)
}

type Bridge struct {
	gateway  Gateway
	currency string
	log      *golog.Logger
}

func NewBridge(gateway Gateway, currency string, logger *golog.Logger) *Bridge {
	currency = strings.ToLower(strings.TrimSpace(currency))
	if currency == "" {
		currency = "usd"
	}
	if logger == nil {
		logger = golog.Default
	}
	return &Bridge{gateway: gateway, currency: currency, log: logger}
}

// ToMinorUnits converts a major-unit amount to cents, rounding half away from zero.
func ToMinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// CreateIntent requests a payment intent for amount, given in major units.
func (b *Bridge) CreateIntent(ctx context.Context, amount float64, metadata map[string]string) (Intent, error) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
		return Intent{}, apperror.InvalidInput("amount must be a positive number")
	}
	minor := ToMinorUnits(amount)
	if minor <= 0 {
		return Intent{}, apperror.InvalidInput("amount is below the smallest currency unit")
	}
	intent, err := b.gateway.CreatePaymentIntent(ctx, minor, b.currency, metadata)
	if err != nil {
		b.log.Errorf("payment: create intent for %d %s failed: %v", minor, b.currency, err)
		return Intent{}, apperror.Wrap(apperror.CodeUnavailable, "payment gateway unavailable", err)
	}
	return intent, nil
}
