package storage

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"
)

type fakeSigner struct {
	email    string
	payloads [][]byte
}

func (f *fakeSigner) Email() string {
	return f.email
}

func (f *fakeSigner) SignBytes(_ context.Context, payload []byte) ([]byte, error) {
	f.payloads = append(f.payloads, append([]byte(nil), payload...))
	return []byte("signed"), nil
}

func newTestClient(t *testing.T, now time.Time) (*Client, *fakeSigner) {
	t.Helper()
	signer := &fakeSigner{email: "uploader@campus-merch.iam.gserviceaccount.com"}
	client, err := NewClient(signer, WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("unexpected error creating client: %v", err)
	}
	return client, signer
}

func TestSignedURLUploadSuccess(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	client, signer := newTestClient(t, now)

	res, err := client.SignedURL(context.Background(), "proofs", "distributions/dst_1/proofs/u1/photo.jpg", SignedURLOptions{
		Upload: &UploadOptions{
			ContentType:         "image/jpeg",
			AllowedContentTypes: []string{"image/*"},
			MaxSize:             1 << 20,
			ExpiresIn:           10 * time.Minute,
		},
	})
	if err != nil {
		t.Fatalf("SignedURL returned error: %v", err)
	}
	if res.Method != "PUT" {
		t.Fatalf("expected PUT, got %s", res.Method)
	}
	if !res.ExpiresAt.Equal(now.Add(10 * time.Minute)) {
		t.Fatalf("unexpected expiry %v", res.ExpiresAt)
	}
	if res.Headers["Content-Type"] != "image/jpeg" {
		t.Fatalf("expected content type header, got %v", res.Headers)
	}
	if res.Headers["x-goog-content-length-range"] != "0,1048576" {
		t.Fatalf("expected length range header, got %v", res.Headers)
	}
	parsed, err := url.Parse(res.URL)
	if err != nil {
		t.Fatalf("parse signed url: %v", err)
	}
	if !strings.Contains(parsed.RawQuery, "X-Goog-Signature=") {
		t.Fatalf("expected signature in query: %s", parsed.RawQuery)
	}
	if len(signer.payloads) == 0 {
		t.Fatalf("expected signer to be invoked")
	}
}

func TestSignedURLRejectsContentType(t *testing.T) {
	client, _ := newTestClient(t, time.Now())
	_, err := client.SignedURL(context.Background(), "proofs", "object", SignedURLOptions{
		Upload: &UploadOptions{ContentType: "application/pdf", AllowedContentTypes: []string{"image/png"}},
	})
	if !errors.Is(err, ErrContentTypeDenied) {
		t.Fatalf("expected ErrContentTypeDenied, got %v", err)
	}

	_, err = client.SignedURL(context.Background(), "proofs", "object", SignedURLOptions{Upload: &UploadOptions{}})
	if !errors.Is(err, ErrContentTypeMissing) {
		t.Fatalf("expected ErrContentTypeMissing, got %v", err)
	}
}

func TestSignedURLRejectsDownloadMethodsAndLongExpiry(t *testing.T) {
	client, _ := newTestClient(t, time.Now())
	_, err := client.SignedURL(context.Background(), "proofs", "object", SignedURLOptions{
		Upload: &UploadOptions{Method: "GET", ContentType: "image/png"},
	})
	if !errors.Is(err, errMethodNotAllowed) {
		t.Fatalf("expected errMethodNotAllowed, got %v", err)
	}
	_, err = client.SignedURL(context.Background(), "proofs", "object", SignedURLOptions{
		Upload: &UploadOptions{ContentType: "image/png", ExpiresIn: 2 * time.Hour},
	})
	if !errors.Is(err, errExpiryTooLong) {
		t.Fatalf("expected errExpiryTooLong, got %v", err)
	}
}

func TestNewClientRequiresSignerEmail(t *testing.T) {
	if _, err := NewClient(&fakeSigner{}); !errors.Is(err, errNoSigner) {
		t.Fatalf("expected errNoSigner, got %v", err)
	}
}
