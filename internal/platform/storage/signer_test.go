package storage

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"testing"
)

func TestParseServiceAccountKeySignsPayload(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}
	payload, _ := json.Marshal(map[string]string{
		"client_email": "uploader@campus-merch.iam.gserviceaccount.com",
		"private_key":  string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})),
	})

	signer, err := ParseServiceAccountKey(payload)
	if err != nil {
		t.Fatalf("ParseServiceAccountKey: %v", err)
	}
	if signer.Email() != "uploader@campus-merch.iam.gserviceaccount.com" {
		t.Fatalf("unexpected email %q", signer.Email())
	}
	sig, err := signer.SignBytes(context.Background(), []byte("payload"))
	if err != nil || len(sig) == 0 {
		t.Fatalf("expected signature, got %v (%d bytes)", err, len(sig))
	}
}

func TestParseServiceAccountKeyRejectsMissingFields(t *testing.T) {
	for _, raw := range []string{`{}`, `{"client_email":"a@b"}`, `not json`} {
		if _, err := ParseServiceAccountKey([]byte(raw)); err == nil {
			t.Fatalf("expected error for %s", raw)
		}
	}
}
