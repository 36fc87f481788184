package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	jwt "github.com/golang-jwt/jwt/v4"
	"go.uber.org/zap"

	"github.com/campus-merch/api/internal/platform/httpx"
	"github.com/campus-merch/api/internal/platform/requestctx"
)

var (
	// ErrJWKSKeyNotFound is returned when no key matches the token kid.
	ErrJWKSKeyNotFound = errors.New("auth: jwks key not found")
	// ErrJWKSFetchFailed wraps transport and decoding failures while refreshing keys.
	ErrJWKSFetchFailed = errors.New("auth: jwks fetch failed")
)

const defaultJWKSTTL = time.Hour

// JWKSCache fetches Google's signing keys and keeps them until Cache-Control max-age expires.
// An unknown kid forces one refresh so key rotation is picked up early.
type JWKSCache struct {
	url    string
	client *http.Client
	now    func() time.Time

	mu     sync.Mutex
	keys   map[string]jose.JSONWebKey
	expiry time.Time
}

// NewJWKSCache builds a cache for url. A nil client uses a 10 second timeout client.
func NewJWKSCache(url string, client *http.Client, now func() time.Time) *JWKSCache {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if now == nil {
		now = time.Now
	}
	return &JWKSCache{url: url, client: client, now: now}
}

// Key returns the public key for kid.
func (c *JWKSCache) Key(ctx context.Context, kid string) (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.keys) == 0 || !c.now().Before(c.expiry) {
		if err := c.refreshLocked(ctx); err != nil {
			return nil, err
		}
	}
	if key, ok := c.keys[kid]; ok {
		return key.Key, nil
	}
	if err := c.refreshLocked(ctx); err != nil {
		return nil, err
	}
	if key, ok := c.keys[kid]; ok {
		return key.Key, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrJWKSKeyNotFound, kid)
}

func (c *JWKSCache) refreshLocked(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrJWKSFetchFailed, err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrJWKSFetchFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrJWKSFetchFailed, resp.StatusCode)
	}

	var set jose.JSONWebKeySet
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return fmt.Errorf("%w: decode: %v", ErrJWKSFetchFailed, err)
	}
	keys := make(map[string]jose.JSONWebKey, len(set.Keys))
	for _, key := range set.Keys {
		if key.KeyID != "" && key.Valid() {
			keys[key.KeyID] = key
		}
	}
	if len(keys) == 0 {
		return fmt.Errorf("%w: empty key set", ErrJWKSFetchFailed)
	}

	c.keys = keys
	c.expiry = c.now().Add(maxAge(resp.Header.Get("Cache-Control")))
	return nil
}

func maxAge(header string) time.Duration {
	for _, directive := range strings.Split(header, ",") {
		name, value, ok := strings.Cut(strings.TrimSpace(directive), "=")
		if !ok || !strings.EqualFold(name, "max-age") {
			continue
		}
		if seconds, err := strconv.Atoi(strings.TrimSpace(value)); err == nil && seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultJWKSTTL
}

// ServiceIdentity is the verified caller of an internal endpoint.
type ServiceIdentity struct {
	Subject string
	Email   string
	Issuer  string
}

type serviceIdentityKey struct{}

// ServiceIdentityFromContext returns the caller stored by RequireServiceToken.
func ServiceIdentityFromContext(ctx context.Context) (*ServiceIdentity, bool) {
	identity, ok := ctx.Value(serviceIdentityKey{}).(*ServiceIdentity)
	return identity, ok && identity != nil
}

// ServiceTokenPolicy describes which Google-signed tokens are accepted.
type ServiceTokenPolicy struct {
	Audience string
	Issuers  []string
	// Emails restricts callers to these service accounts when non-empty.
	Emails []string
}

// RequireServiceToken admits requests carrying an RS256 OIDC token, such as those Cloud
// Scheduler attaches, that match policy.
func RequireServiceToken(keys *JWKSCache, policy ServiceTokenPolicy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			logger := requestctx.Logger(ctx)
			if keys == nil || strings.TrimSpace(policy.Audience) == "" {
				httpx.WriteError(ctx, w, httpx.Unavailable("verification_unavailable", "service token verification is not configured"))
				return
			}
			raw, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				httpx.WriteError(ctx, w, httpx.Unauthenticated("service token missing"))
				return
			}

			claims := jwt.MapClaims{}
			parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}))
			_, err := parser.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
				kid, _ := token.Header["kid"].(string)
				if kid == "" {
					return nil, errors.New("token missing kid header")
				}
				return keys.Key(ctx, kid)
			})
			if err != nil {
				logger.Warn("auth: service token rejected", zap.Error(err))
				if errors.Is(err, ErrJWKSFetchFailed) {
					httpx.WriteError(ctx, w, httpx.Unavailable("verification_unavailable", "signing keys unavailable"))
					return
				}
				httpx.WriteError(ctx, w, httpx.NewError("invalid_token", "service token verification failed", http.StatusUnauthorized))
				return
			}

			issuer, _ := claims["iss"].(string)
			email, _ := claims["email"].(string)
			subject, _ := claims["sub"].(string)
			switch {
			case len(policy.Issuers) > 0 && !slices.Contains(policy.Issuers, issuer):
				logger.Warn("auth: service token issuer mismatch", zap.String("issuer", issuer))
				httpx.WriteError(ctx, w, httpx.NewError("invalid_token", "issuer not accepted", http.StatusUnauthorized))
				return
			case !claims.VerifyAudience(policy.Audience, true):
				logger.Warn("auth: service token audience mismatch")
				httpx.WriteError(ctx, w, httpx.NewError("invalid_token", "audience not accepted", http.StatusUnauthorized))
				return
			case len(policy.Emails) > 0 && !slices.Contains(policy.Emails, email):
				httpx.WriteError(ctx, w, httpx.Forbidden("service account not allowed"))
				return
			}

			identity := &ServiceIdentity{Subject: subject, Email: email, Issuer: issuer}
			ctx = context.WithValue(ctx, serviceIdentityKey{}, identity)
			ctx = requestctx.WithActor(ctx, requestctx.Actor{ID: firstNonBlank(email, subject)})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
