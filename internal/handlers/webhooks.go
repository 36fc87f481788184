package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/campus-merch/api/internal/payments"
	"github.com/campus-merch/api/internal/platform/httpx"
	"github.com/campus-merch/api/internal/services"
)

const (
	stripeSignatureHeader = "Stripe-Signature"
	maxWebhookBody        = 512 * 1024
)

type webhookParser interface {
	Parse(payload []byte, signatureHeader string) (payments.Event, error)
}

// WebhookHandlers receives payment gateway callbacks.
type WebhookHandlers struct {
	parser   webhookParser
	payments services.PaymentService
}

// NewWebhookHandlers constructs webhook handlers. A nil parser rejects every delivery.
func NewWebhookHandlers(parser webhookParser, payments services.PaymentService) *WebhookHandlers {
	return &WebhookHandlers{parser: parser, payments: payments}
}

// Routes registers the /webhooks endpoints.
func (h *WebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/payments", h.paymentEvent)
}

func (h *WebhookHandlers) paymentEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.parser == nil || h.payments == nil {
		serviceUnavailable(ctx, w, "payment")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "webhook payload too large", http.StatusRequestEntityTooLarge))
			return
		}
		httpx.WriteError(ctx, w, httpx.BadRequest("unable to read webhook payload"))
		return
	}

	event, err := h.parser.Parse(body, r.Header.Get(stripeSignatureHeader))
	if err != nil {
		writeWebhookError(ctx, w, err)
		return
	}
	if err := h.payments.ApplyGatewayEvent(ctx, services.GatewayEvent{
		ID:               event.ID,
		Type:             event.Type,
		GatewayOrderID:   event.GatewayOrderID,
		GatewayPaymentID: event.GatewayPaymentID,
		Amount:           event.Amount,
		Reason:           event.Reason,
		OccurredAt:       event.OccurredAt,
	}); err != nil {
		writeWebhookError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]bool{"received": true})
}

func writeWebhookError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, payments.ErrInvalidSignature), errors.Is(err, services.ErrPaymentInvalidSignature):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_signature", "webhook signature verification failed", http.StatusBadRequest))
	case errors.Is(err, payments.ErrGatewayNotConfigured):
		httpx.WriteError(ctx, w, httpx.Unavailable("gateway_unavailable", "payment gateway not configured"))
	case errors.Is(err, services.ErrPaymentInvalidInput):
		httpx.WriteError(ctx, w, httpx.BadRequest(err.Error()))
	default:
		httpx.WriteError(ctx, w, httpx.Internal("webhook_error"))
	}
}
