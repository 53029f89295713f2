package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

// StripeGateway creates card payment intents through the Stripe API.
type StripeGateway struct {
	api *client.API
}

func NewStripeGateway(secretKey string) *StripeGateway {
	api := &client.API{}
	api.Init(secretKey, nil)
	return &StripeGateway{api: api}
}

func (g *StripeGateway) CreatePaymentIntent(ctx context.Context, amountMinor int64, currency string, metadata map[string]string) (Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(amountMinor),
		Currency:           stripe.String(currency),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
	}
	params.Context = ctx
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}
	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		return Intent{}, fmt.Errorf("stripe payment intent: %w", err)
	}
	return Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		AmountMinor:  pi.Amount,
		Currency:     string(pi.Currency),
	}, nil
}

// MetadataOfferID is the intent metadata key linking a charge to an offer.
const MetadataOfferID = "offer_id"

// Succeeded is a verified payment_intent.succeeded notification.
type Succeeded struct {
	OfferID       uint
	TransactionID string
	AmountMinor   int64
}

// ParseWebhook verifies a Stripe webhook and extracts a succeeded payment.
// ok is false for verified events of any other type. The endpoint's API
// version is not pinned; only the intent fields read here are relied on.
func ParseWebhook(payload []byte, signatureHeader, secret string) (Succeeded, bool, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return Succeeded{}, false, fmt.Errorf("verify stripe webhook: %w", err)
	}
	if event.Type != "payment_intent.succeeded" {
		return Succeeded{}, false, nil
	}
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return Succeeded{}, false, fmt.Errorf("decode payment intent: %w", err)
	}
	raw := pi.Metadata[MetadataOfferID]
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return Succeeded{}, false, fmt.Errorf("payment intent %s has no valid %s metadata", pi.ID, MetadataOfferID)
	}
	return Succeeded{OfferID: uint(id), TransactionID: pi.ID, AmountMinor: pi.Amount}, true, nil
}
