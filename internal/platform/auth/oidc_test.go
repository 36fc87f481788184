package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	jwt "github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testAudience = "https://api.campus.example/internal"
	testIssuer   = "https://accounts.google.com"
)

type oidcFixture struct {
	key      *rsa.PrivateKey
	cache    *JWKSCache
	requests *atomic.Int32
}

func newOIDCFixture(t *testing.T) oidcFixture {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	requests := &atomic.Int32{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Header().Set("Cache-Control", "public, max-age=3600")
		_ = json.NewEncoder(w).Encode(jose.JSONWebKeySet{Keys: []jose.JSONWebKey{{
			Key:       &key.PublicKey,
			KeyID:     "kid-1",
			Algorithm: jwt.SigningMethodRS256.Alg(),
			Use:       "sig",
		}}})
	}))
	t.Cleanup(server.Close)

	return oidcFixture{key: key, cache: NewJWKSCache(server.URL, server.Client(), nil), requests: requests}
}

func (f oidcFixture) sign(t *testing.T, kid string, mutate func(jwt.MapClaims)) string {
	t.Helper()
	claims := jwt.MapClaims{
		"iss":   testIssuer,
		"aud":   testAudience,
		"sub":   "1234567890",
		"email": "scheduler@campus-prod.iam.gserviceaccount.com",
		"iat":   time.Now().Unix(),
		"exp":   time.Now().Add(time.Hour).Unix(),
	}
	if mutate != nil {
		mutate(claims)
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	signed, err := token.SignedString(f.key)
	require.NoError(t, err)
	return signed
}

func (f oidcFixture) call(t *testing.T, policy ServiceTokenPolicy, token string) (*httptest.ResponseRecorder, *ServiceIdentity) {
	t.Helper()
	var seen *ServiceIdentity
	handler := RequireServiceToken(f.cache, policy)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = ServiceIdentityFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))
	req := httptest.NewRequest(http.MethodPost, "/internal/maintenance/group-orders:close-expired", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec, seen
}

func TestRequireServiceTokenAcceptsScheduler(t *testing.T) {
	f := newOIDCFixture(t)
	policy := ServiceTokenPolicy{
		Audience: testAudience,
		Issuers:  []string{testIssuer},
		Emails:   []string{"scheduler@campus-prod.iam.gserviceaccount.com"},
	}

	rec, identity := f.call(t, policy, f.sign(t, "kid-1", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.NotNil(t, identity)
	assert.Equal(t, "scheduler@campus-prod.iam.gserviceaccount.com", identity.Email)

	// keys are cached between requests.
	rec, _ = f.call(t, policy, f.sign(t, "kid-1", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.EqualValues(t, 1, f.requests.Load())
}

func TestRequireServiceTokenRejections(t *testing.T) {
	f := newOIDCFixture(t)
	policy := ServiceTokenPolicy{Audience: testAudience, Issuers: []string{testIssuer}, Emails: []string{"scheduler@campus-prod.iam.gserviceaccount.com"}}

	cases := []struct {
		name   string
		token  string
		status int
	}{
		{name: "missing", status: http.StatusUnauthorized},
		{name: "expired", token: f.sign(t, "kid-1", func(c jwt.MapClaims) { c["exp"] = time.Now().Add(-time.Minute).Unix() }), status: http.StatusUnauthorized},
		{name: "wrong audience", token: f.sign(t, "kid-1", func(c jwt.MapClaims) { c["aud"] = "https://elsewhere" }), status: http.StatusUnauthorized},
		{name: "wrong issuer", token: f.sign(t, "kid-1", func(c jwt.MapClaims) { c["iss"] = "https://evil.example" }), status: http.StatusUnauthorized},
		{name: "unknown kid", token: f.sign(t, "kid-9", nil), status: http.StatusUnauthorized},
		{name: "other account", token: f.sign(t, "kid-1", func(c jwt.MapClaims) { c["email"] = "intruder@example.com" }), status: http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, identity := f.call(t, policy, tc.token)
			assert.Equal(t, tc.status, rec.Code)
			assert.Nil(t, identity)
		})
	}

	rec, _ := f.call(t, ServiceTokenPolicy{}, f.sign(t, "kid-1", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMaxAge(t *testing.T) {
	assert.Equal(t, 120*time.Second, maxAge("public, max-age=120, must-revalidate"))
	assert.Equal(t, defaultJWKSTTL, maxAge("no-cache"))
	assert.Equal(t, defaultJWKSTTL, maxAge("max-age=abc"))
}
