package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	firebaseauth "firebase.google.com/go/v4/auth"
	"go.uber.org/zap"

	"github.com/campus-merch/api/internal/platform/httpx"
	"github.com/campus-merch/api/internal/platform/requestctx"
)

const (
	roleClaim       = "role"
	departmentClaim = "department"
	emailClaim      = "email"

	defaultVerifyTimeout = 5 * time.Second
)

// TokenVerifier verifies Firebase ID tokens. *firebaseauth.Client satisfies it.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error)
}

// Authenticator turns bearer ID tokens into an Identity on the request context.
type Authenticator struct {
	verifier TokenVerifier
	timeout  time.Duration
}

// NewAuthenticator returns an Authenticator. A zero timeout uses five seconds.
func NewAuthenticator(verifier TokenVerifier, timeout time.Duration) *Authenticator {
	if timeout <= 0 {
		timeout = defaultVerifyTimeout
	}
	return &Authenticator{verifier: verifier, timeout: timeout}
}

// RequireUser rejects requests without a valid ID token. Tokens without a role claim are
// treated as students.
func (a *Authenticator) RequireUser() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			raw, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				httpx.WriteError(ctx, w, httpx.Unauthenticated("authorization header missing or invalid"))
				return
			}
			if a == nil || a.verifier == nil {
				httpx.WriteError(ctx, w, httpx.Unavailable("auth_unavailable", "authentication is not configured"))
				return
			}

			verifyCtx, cancel := context.WithTimeout(ctx, a.timeout)
			token, err := a.verifier.VerifyIDToken(verifyCtx, raw)
			cancel()
			if err != nil {
				code := "invalid_token"
				if firebaseauth.IsIDTokenExpired(err) {
					code = "token_expired"
				}
				httpx.WriteError(ctx, w, httpx.NewError(code, "id token verification failed", http.StatusUnauthorized))
				return
			}

			identity := &Identity{
				UID:        token.UID,
				Email:      stringClaim(token.Claims, emailClaim),
				Role:       roleFromClaims(token.Claims),
				Department: stringClaim(token.Claims, departmentClaim),
			}
			if !ValidRole(identity.Role) {
				httpx.WriteError(ctx, w, httpx.Forbidden("unknown role "+identity.Role))
				return
			}

			ctx = WithIdentity(ctx, identity)
			ctx = requestctx.WithActor(ctx, requestctx.Actor{ID: identity.UID, Role: identity.Role})
			ctx = requestctx.WithLogger(ctx, requestctx.Logger(ctx).With(zap.String("user_id", identity.UID)))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func roleFromClaims(claims map[string]any) string {
	switch v := claims[roleClaim].(type) {
	case string:
		if role := normaliseRole(v); role != "" {
			return role
		}
	case []any:
		// the first recognised role wins for tokens minted with a role list
		for _, item := range v {
			if s, ok := item.(string); ok && ValidRole(normaliseRole(s)) {
				return normaliseRole(s)
			}
		}
	}
	return RoleStudent
}

func normaliseRole(role string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(role)), "-", "_")
}

func stringClaim(claims map[string]any, key string) string {
	value, _ := claims[key].(string)
	return strings.TrimSpace(value)
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
