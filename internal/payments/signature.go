package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// CheckoutSigner issues and verifies the HMAC-SHA256 checkout token handed to the client when a
// payment is opened and echoed back on verify. The signed message is "<gatewayOrderID>|<orderID>".
type CheckoutSigner struct {
	secret []byte
}

// NewCheckoutSigner returns a signer keyed with secret.
func NewCheckoutSigner(secret string) (*CheckoutSigner, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("payments: signing secret is required")
	}
	return &CheckoutSigner{secret: []byte(secret)}, nil
}

// Sign returns the hex encoded signature.
func (s *CheckoutSigner) Sign(gatewayOrderID, orderID string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(gatewayOrderID + "|" + orderID))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature matches, in constant time.
func (s *CheckoutSigner) Verify(gatewayOrderID, orderID, signature string) bool {
	if s == nil || len(s.secret) == 0 {
		return false
	}
	provided, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return false
	}
	expected, _ := hex.DecodeString(s.Sign(gatewayOrderID, orderID))
	return hmac.Equal(provided, expected)
}
