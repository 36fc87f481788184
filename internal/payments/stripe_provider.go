package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"

	"github.com/campus-merch/api/internal/platform/textutil"
)

// StripeLogger defines the logging contract for Stripe gateway operations.
type StripeLogger func(ctx context.Context, event string, fields map[string]any)

type stripePaymentIntentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

type stripeRefundAPI interface {
	New(params *stripe.RefundParams) (*stripe.Refund, error)
}

type stripeClients struct {
	intents stripePaymentIntentAPI
	refunds stripeRefundAPI
}

// StripeGatewayConfig configures the StripeGateway.
type StripeGatewayConfig struct {
	APIKey    string
	AccountID string
	Backends  *stripe.Backends
	Logger    StripeLogger
	Clients   *stripeClients
}

// StripeGateway implements Gateway with Stripe payment intents.
type StripeGateway struct {
	api     stripeClients
	account string
	logger  StripeLogger
}

// NewStripeGateway constructs a Stripe-backed Gateway.
func NewStripeGateway(cfg StripeGatewayConfig) (*StripeGateway, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" && cfg.Clients == nil {
		return nil, ErrGatewayNotConfigured
	}

	var clients stripeClients
	if cfg.Clients != nil {
		clients = *cfg.Clients
	} else {
		sc := client.New(apiKey, cfg.Backends)
		clients = stripeClients{intents: sc.PaymentIntents, refunds: sc.Refunds}
	}
	if clients.intents == nil || clients.refunds == nil {
		return nil, errors.New("stripe: incomplete client configuration")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &StripeGateway{
		api:     clients,
		account: strings.TrimSpace(cfg.AccountID),
		logger:  logger,
	}, nil
}

// CreateOrder opens a payment intent for the order total.
func (g *StripeGateway) CreateOrder(ctx context.Context, req OrderRequest) (GatewayOrder, error) {
	if g == nil {
		return GatewayOrder{}, ErrGatewayNotConfigured
	}
	if req.Amount <= 0 {
		return GatewayOrder{}, errors.New("stripe: amount must be positive")
	}
	currency := strings.ToLower(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = strings.ToLower(Currency)
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.Amount),
		Currency: stripe.String(currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	if g.account != "" {
		params.SetStripeAccount(g.account)
	}
	if desc := strings.TrimSpace(req.Description); desc != "" {
		params.Description = stripe.String(desc)
	}
	metadata := textutil.Metadata(req.Metadata)
	if ref := strings.TrimSpace(req.Reference); ref != "" {
		if metadata == nil {
			metadata = map[string]string{}
		}
		metadata["orderId"] = ref
	}
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	intent, err := g.api.intents.New(params)
	if err != nil {
		return GatewayOrder{}, fmt.Errorf("stripe: create payment intent: %w", err)
	}
	g.logger(ctx, "payments.stripe.intent.created", map[string]any{
		"paymentIntent": intent.ID,
		"orderId":       req.Reference,
		"amount":        intent.Amount,
	})
	return GatewayOrder{
		ID:           intent.ID,
		ClientSecret: intent.ClientSecret,
		Amount:       intent.Amount,
		Currency:     strings.ToUpper(string(intent.Currency)),
		Status:       intentStatus(intent.Status),
	}, nil
}

// RetrievePayment reads the payment intent back from Stripe. The order reference comes from the
// orderId metadata written by CreateOrder.
func (g *StripeGateway) RetrievePayment(ctx context.Context, gatewayOrderID string) (PaymentDetails, error) {
	if g == nil {
		return PaymentDetails{}, ErrGatewayNotConfigured
	}
	intentID := strings.TrimSpace(gatewayOrderID)
	if intentID == "" {
		return PaymentDetails{}, errors.New("stripe: payment intent id is required")
	}
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	if g.account != "" {
		params.SetStripeAccount(g.account)
	}
	intent, err := g.api.intents.Get(intentID, params)
	if err != nil {
		return PaymentDetails{}, fmt.Errorf("stripe: retrieve payment intent: %w", err)
	}
	details := PaymentDetails{
		GatewayOrderID: intent.ID,
		Reference:      intent.Metadata["orderId"],
		Amount:         intent.Amount,
		Currency:       strings.ToUpper(string(intent.Currency)),
		Status:         intentStatus(intent.Status),
	}
	if intent.LatestCharge != nil {
		details.GatewayPaymentID = intent.LatestCharge.ID
	}
	g.logger(ctx, "payments.stripe.intent.retrieved", map[string]any{
		"paymentIntent": intent.ID,
		"status":        string(intent.Status),
	})
	return details, nil
}

// Refund returns money for a captured payment intent.
func (g *StripeGateway) Refund(ctx context.Context, req RefundRequest) (RefundResult, error) {
	if g == nil {
		return RefundResult{}, ErrGatewayNotConfigured
	}
	intentID := strings.TrimSpace(req.GatewayOrderID)
	if intentID == "" {
		return RefundResult{}, errors.New("stripe: payment intent id is required")
	}
	params := &stripe.RefundParams{PaymentIntent: stripe.String(intentID)}
	params.Context = ctx
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	if g.account != "" {
		params.SetStripeAccount(g.account)
	}
	if req.Amount > 0 {
		params.Amount = stripe.Int64(req.Amount)
	}
	if reason := mapStripeRefundReason(req.Reason); reason != "" {
		params.Reason = stripe.String(reason)
	}
	for k, v := range textutil.Metadata(req.Metadata) {
		params.AddMetadata(k, v)
	}

	refund, err := g.api.refunds.New(params)
	if err != nil {
		return RefundResult{}, fmt.Errorf("stripe: refund payment intent: %w", err)
	}
	g.logger(ctx, "payments.stripe.refund.created", map[string]any{
		"paymentIntent": intentID,
		"refundId":      refund.ID,
		"amount":        refund.Amount,
	})
	status := StatusPending
	switch refund.Status {
	case stripe.RefundStatusSucceeded:
		status = StatusRefunded
	case stripe.RefundStatusFailed, stripe.RefundStatusCanceled:
		status = StatusFailed
	}
	return RefundResult{ID: refund.ID, Amount: refund.Amount, Status: status}, nil
}

func intentStatus(status stripe.PaymentIntentStatus) Status {
	switch status {
	case stripe.PaymentIntentStatusSucceeded:
		return StatusSucceeded
	case stripe.PaymentIntentStatusCanceled:
		return StatusFailed
	default:
		return StatusPending
	}
}

// only Stripe's enumerated reasons are forwarded; free text stays in our own records.
func mapStripeRefundReason(reason string) string {
	switch strings.ToLower(strings.TrimSpace(reason)) {
	case string(stripe.RefundReasonDuplicate):
		return string(stripe.RefundReasonDuplicate)
	case string(stripe.RefundReasonFraudulent):
		return string(stripe.RefundReasonFraudulent)
	case string(stripe.RefundReasonRequestedByCustomer):
		return string(stripe.RefundReasonRequestedByCustomer)
	default:
		return ""
	}
}
