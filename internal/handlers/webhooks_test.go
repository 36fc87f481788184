package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/campus-merch/api/internal/payments"
	"github.com/campus-merch/api/internal/services"
)

type stubWebhookParser struct {
	event payments.Event
	err   error

	gotPayload   string
	gotSignature string
}

func (p *stubWebhookParser) Parse(payload []byte, signatureHeader string) (payments.Event, error) {
	p.gotPayload = string(payload)
	p.gotSignature = signatureHeader
	return p.event, p.err
}

func TestWebhookHandlers_PaymentEvent(t *testing.T) {
	occurred := time.Date(2024, 8, 1, 10, 5, 0, 0, time.UTC)
	parser := &stubWebhookParser{event: payments.Event{
		ID:               "evt_1",
		Type:             payments.EventPaymentCaptured,
		GatewayOrderID:   "pi_123",
		GatewayPaymentID: "ch_456",
		Amount:           283200,
		OccurredAt:       occurred,
	}}
	var applied services.GatewayEvent
	svc := &stubPaymentService{
		applyFn: func(_ context.Context, event services.GatewayEvent) error {
			applied = event
			return nil
		},
	}
	router := NewRouter(WithWebhookRoutes(NewWebhookHandlers(parser, svc).Routes))

	rr := serve(t, router, http.MethodPost, "/api/v1/webhooks/payments", `{"id":"evt_1"}`, nil, "Stripe-Signature", "t=1,v1=abc")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if parser.gotPayload != `{"id":"evt_1"}` || parser.gotSignature != "t=1,v1=abc" {
		t.Fatalf("parser received %q / %q", parser.gotPayload, parser.gotSignature)
	}
	if applied.ID != "evt_1" || applied.Type != payments.EventPaymentCaptured || applied.GatewayOrderID != "pi_123" ||
		applied.GatewayPaymentID != "ch_456" || applied.Amount != 283200 || !applied.OccurredAt.Equal(occurred) {
		t.Fatalf("unexpected gateway event: %#v", applied)
	}
	var body map[string]bool
	decodeResponse(t, rr, &body)
	if !body["received"] {
		t.Fatalf("expected received acknowledgement, got %v", body)
	}
}

func TestWebhookHandlers_Errors(t *testing.T) {
	cases := []struct {
		name     string
		parseErr error
		applyErr error
		status   int
		code     string
	}{
		{name: "bad signature", parseErr: fmt.Errorf("%w: mismatch", payments.ErrInvalidSignature), status: http.StatusBadRequest, code: "invalid_signature"},
		{name: "gateway missing", parseErr: payments.ErrGatewayNotConfigured, status: http.StatusServiceUnavailable, code: "gateway_unavailable"},
		{name: "invalid event", applyErr: fmt.Errorf("%w: amount mismatch", services.ErrPaymentInvalidInput), status: http.StatusBadRequest, code: "invalid_request"},
		{name: "store failure", applyErr: errors.New("firestore down"), status: http.StatusInternalServerError, code: "webhook_error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			parser := &stubWebhookParser{event: payments.Event{ID: "evt_1", Type: payments.EventPaymentFailed}, err: tc.parseErr}
			applied := false
			svc := &stubPaymentService{
				applyFn: func(context.Context, services.GatewayEvent) error {
					applied = true
					return tc.applyErr
				},
			}
			router := NewRouter(WithWebhookRoutes(NewWebhookHandlers(parser, svc).Routes))

			rr := serve(t, router, http.MethodPost, "/api/v1/webhooks/payments", `{}`, nil, "Stripe-Signature", "sig")
			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rr.Code)
			}
			if code := errorCodeOf(t, rr); code != tc.code {
				t.Fatalf("expected %q, got %q", tc.code, code)
			}
			if tc.parseErr != nil && applied {
				t.Fatalf("event must not be applied when parsing fails")
			}
		})
	}
}

func TestWebhookHandlers_PayloadLimits(t *testing.T) {
	parser := &stubWebhookParser{}
	router := NewRouter(WithWebhookRoutes(NewWebhookHandlers(parser, &stubPaymentService{}).Routes))

	rr := serve(t, router, http.MethodPost, "/api/v1/webhooks/payments", strings.Repeat("a", maxWebhookBody+1), nil)
	if rr.Code != http.StatusRequestEntityTooLarge || errorCodeOf(t, rr) != "payload_too_large" {
		t.Fatalf("expected 413 payload_too_large, got %d", rr.Code)
	}

	router = NewRouter(WithWebhookRoutes(NewWebhookHandlers(nil, nil).Routes))
	rr = serve(t, router, http.MethodPost, "/api/v1/webhooks/payments", `{}`, nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without parser, got %d", rr.Code)
	}
}
