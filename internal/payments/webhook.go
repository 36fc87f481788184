package payments

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/webhook"
)

// WebhookParser verifies Stripe webhook signatures and normalises the payload.
type WebhookParser struct {
	secret string
}

// NewWebhookParser returns a parser for the endpoint signing secret.
func NewWebhookParser(secret string) (*WebhookParser, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, ErrGatewayNotConfigured
	}
	return &WebhookParser{secret: secret}, nil
}

// Parse validates the Stripe-Signature header and maps the event. Event kinds reconciliation
// does not consume come back with an empty Type.
func (p *WebhookParser) Parse(payload []byte, signatureHeader string) (Event, error) {
	if p == nil {
		return Event{}, ErrGatewayNotConfigured
	}
	evt, err := webhook.ConstructEventWithOptions(payload, signatureHeader, p.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	out := Event{
		ID:         evt.ID,
		OccurredAt: time.Unix(evt.Created, 0).UTC(),
	}
	if evt.Data == nil {
		return out, nil
	}

	switch evt.Type {
	case "payment_intent.succeeded", "payment_intent.payment_failed":
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(evt.Data.Raw, &intent); err != nil {
			return Event{}, fmt.Errorf("payments: decode payment intent: %w", err)
		}
		out.GatewayOrderID = intent.ID
		out.GatewayPaymentID = intent.ID
		if intent.LatestCharge != nil && intent.LatestCharge.ID != "" {
			out.GatewayPaymentID = intent.LatestCharge.ID
		}
		out.Amount = intent.Amount
		if evt.Type == "payment_intent.succeeded" {
			out.Type = EventPaymentCaptured
			if intent.AmountReceived > 0 {
				out.Amount = intent.AmountReceived
			}
		} else {
			out.Type = EventPaymentFailed
			if intent.LastPaymentError != nil {
				out.Reason = intent.LastPaymentError.Msg
			}
		}
	case "charge.refunded":
		var charge stripe.Charge
		if err := json.Unmarshal(evt.Data.Raw, &charge); err != nil {
			return Event{}, fmt.Errorf("payments: decode charge: %w", err)
		}
		out.Type = EventRefundCreated
		out.GatewayPaymentID = charge.ID
		if charge.PaymentIntent != nil {
			out.GatewayOrderID = charge.PaymentIntent.ID
		}
		out.Amount = charge.AmountRefunded
	}
	return out, nil
}
