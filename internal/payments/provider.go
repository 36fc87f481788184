package payments

import (
	"context"
	"errors"
	"time"
)

// Currency is the only settlement currency; amounts are in paise.
const Currency = "INR"

// Status enumerates the normalised gateway payment states.
type Status string

const (
	// StatusPending indicates the payment awaits customer action.
	StatusPending Status = "pending"
	// StatusSucceeded indicates the gateway captured the payment.
	StatusSucceeded Status = "succeeded"
	// StatusFailed indicates the gateway reports a terminal failure.
	StatusFailed Status = "failed"
	// StatusRefunded indicates money was returned to the customer.
	StatusRefunded Status = "refunded"
)

// Normalised gateway event types consumed by payment reconciliation.
const (
	EventPaymentCaptured = "payment.captured"
	EventPaymentFailed   = "payment.failed"
	EventRefundCreated   = "refund.created"
)

var (
	// ErrInvalidSignature indicates a webhook or checkout callback failed verification.
	ErrInvalidSignature = errors.New("payments: invalid signature")
	// ErrGatewayNotConfigured indicates no gateway credentials were supplied.
	ErrGatewayNotConfigured = errors.New("payments: gateway not configured")
)

// OrderRequest asks the gateway to open a payment for one order.
type OrderRequest struct {
	Reference      string
	Amount         int64
	Currency       string
	Description    string
	Metadata       map[string]string
	IdempotencyKey string
}

// GatewayOrder is the gateway-side payment handle returned to the client.
type GatewayOrder struct {
	ID           string
	ClientSecret string
	Amount       int64
	Currency     string
	Status       Status
}

// RefundRequest defines a refund against a captured gateway order.
type RefundRequest struct {
	GatewayOrderID string
	Amount         int64
	Reason         string
	IdempotencyKey string
	Metadata       map[string]string
}

// RefundResult captures the gateway's refund record.
type RefundResult struct {
	ID     string
	Amount int64
	Status Status
}

// PaymentDetails is the gateway's current view of a payment, used to confirm a checkout before
// the order is marked paid.
type PaymentDetails struct {
	GatewayOrderID   string
	GatewayPaymentID string
	Reference        string
	Amount           int64
	Currency         string
	Status           Status
}

// Event is a gateway webhook normalised into the reconciliation vocabulary. Type is empty for
// event kinds reconciliation does not handle.
type Event struct {
	ID               string
	Type             string
	GatewayOrderID   string
	GatewayPaymentID string
	Amount           int64
	Reason           string
	OccurredAt       time.Time
}

// Gateway is the contract the payment service needs from a payment processor.
type Gateway interface {
	CreateOrder(ctx context.Context, req OrderRequest) (GatewayOrder, error)
	RetrievePayment(ctx context.Context, gatewayOrderID string) (PaymentDetails, error)
	Refund(ctx context.Context, req RefundRequest) (RefundResult, error)
}
