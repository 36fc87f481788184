package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/storage"
)

const (
	defaultUploadExpiry = 15 * time.Minute
	maxUploadExpiry     = time.Hour
)

var (
	// ErrContentTypeMissing indicates an upload request without a content type.
	ErrContentTypeMissing = errors.New("storage: content type is required for uploads")
	// ErrContentTypeDenied indicates the content type is outside the allow list.
	ErrContentTypeDenied = errors.New("storage: content type not allowed")

	errNoSigner         = errors.New("storage: signer is required")
	errNoUpload         = errors.New("storage: upload options must be provided")
	errInvalidBucket    = errors.New("storage: bucket name is required")
	errInvalidObject    = errors.New("storage: object name is required")
	errMethodNotAllowed = errors.New("storage: HTTP method not allowed for uploads")
	errExpiryTooLong    = errors.New("storage: expiry exceeds permitted maximum")
)

// Client issues V4 signed upload URLs backed by a Signer.
type Client struct {
	signer Signer
	now    func() time.Time
}

// ClientOption customises client behaviour.
type ClientOption func(*Client)

// WithClock injects a custom clock.
func WithClock(clock func() time.Time) ClientOption {
	return func(c *Client) {
		if clock != nil {
			c.now = clock
		}
	}
}

// NewClient constructs a signed URL client.
func NewClient(signer Signer, opts ...ClientOption) (*Client, error) {
	if signer == nil || strings.TrimSpace(signer.Email()) == "" {
		return nil, errNoSigner
	}
	client := &Client{signer: signer, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// SignedURLOptions wraps the upload constraints baked into the signature.
type SignedURLOptions struct {
	Upload *UploadOptions
}

// UploadOptions control upload validation.
type UploadOptions struct {
	Method              string
	ContentType         string
	AllowedContentTypes []string
	MaxSize             int64
	ExpiresIn           time.Duration
}

// SignedURLResult describes a generated signed URL and the headers the caller must send.
type SignedURLResult struct {
	URL       string
	Method    string
	ExpiresAt time.Time
	Headers   map[string]string
}

// SignedURL creates a signed upload URL for bucket/object.
func (c *Client) SignedURL(ctx context.Context, bucket, object string, opts SignedURLOptions) (SignedURLResult, error) {
	if c == nil || c.signer == nil {
		return SignedURLResult{}, errNoSigner
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return SignedURLResult{}, errInvalidBucket
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return SignedURLResult{}, errInvalidObject
	}
	upload := opts.Upload
	if upload == nil {
		return SignedURLResult{}, errNoUpload
	}

	method := strings.ToUpper(strings.TrimSpace(upload.Method))
	if method == "" {
		method = "PUT"
	}
	if method != "PUT" && method != "POST" {
		return SignedURLResult{}, errMethodNotAllowed
	}
	contentType := strings.ToLower(strings.TrimSpace(upload.ContentType))
	if contentType == "" {
		return SignedURLResult{}, ErrContentTypeMissing
	}
	if len(upload.AllowedContentTypes) > 0 && !contentTypeAllowed(contentType, upload.AllowedContentTypes) {
		return SignedURLResult{}, ErrContentTypeDenied
	}
	expiry := upload.ExpiresIn
	if expiry <= 0 {
		expiry = defaultUploadExpiry
	}
	if expiry > maxUploadExpiry {
		return SignedURLResult{}, errExpiryTooLong
	}

	headers := map[string]string{"Content-Type": contentType}
	var extHeaders []string
	if upload.MaxSize > 0 {
		sizeRange := fmt.Sprintf("0,%d", upload.MaxSize)
		headers["x-goog-content-length-range"] = sizeRange
		extHeaders = append(extHeaders, "x-goog-content-length-range:"+sizeRange)
	}

	expiresAt := c.now().Add(expiry)
	signed, err := storage.SignedURL(bucket, object, &storage.SignedURLOptions{
		GoogleAccessID: c.signer.Email(),
		Scheme:         storage.SigningSchemeV4,
		Method:         method,
		ContentType:    contentType,
		Headers:        extHeaders,
		Expires:        expiresAt,
		SignBytes: func(payload []byte) ([]byte, error) {
			return c.signer.SignBytes(ctx, payload)
		},
	})
	if err != nil {
		return SignedURLResult{}, fmt.Errorf("storage: sign upload url: %w", err)
	}
	return SignedURLResult{URL: signed, Method: method, ExpiresAt: expiresAt, Headers: headers}, nil
}

func contentTypeAllowed(contentType string, allowed []string) bool {
	for _, candidate := range allowed {
		candidate = strings.ToLower(strings.TrimSpace(candidate))
		switch {
		case candidate == "":
			continue
		case candidate == "*", candidate == contentType:
			return true
		case strings.HasSuffix(candidate, "/*") && strings.HasPrefix(contentType, strings.TrimSuffix(candidate, "*")):
			return true
		}
	}
	return false
}
