package config

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
)

const (
	secretScheme       = "secret://"
	legacySecretScheme = "sm://"
)

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// SecretResolver turns a secret:// reference into its value.
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts a function to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// SecretError reports a reference that could not be resolved.
type SecretError struct {
	Ref string
	Err error
}

func (e *SecretError) Error() string {
	return fmt.Sprintf("config: resolve secret %q: %v", e.Ref, e.Err)
}

func (e *SecretError) Unwrap() error { return e.Err }

// MissingSecretsError lists required secrets that resolved to nothing. Names are kept private so
// logs only ever see the redacted digests.
type MissingSecretsError struct {
	redacted []string
}

func (e *MissingSecretsError) Error() string {
	return fmt.Sprintf("config: missing required secrets [%s]", strings.Join(e.RedactedNames(), ", "))
}

// RedactedNames returns sorted digests of the missing secret names.
func (e *MissingSecretsError) RedactedNames() []string {
	if e == nil {
		return nil
	}
	out := append([]string(nil), e.redacted...)
	sort.Strings(out)
	return out
}

// secretField is a config string that may hold a reference instead of a literal value.
type secretField struct {
	name  string
	value *string
}

func (c *Config) secretFields() []secretField {
	return []secretField{
		{"Payments.StripeAPIKey", &c.Payments.StripeAPIKey},
		{"Payments.StripeWebhookSecret", &c.Payments.StripeWebhookSecret},
		{"Payments.SigningSecret", &c.Payments.SigningSecret},
		{"Redis.Password", &c.Redis.Password},
	}
}

// resolveSecrets replaces every reference in place and returns the final value per field name.
func (c *Config) resolveSecrets(ctx context.Context, resolver SecretResolver) (map[string]string, error) {
	resolved := make(map[string]string)
	for _, field := range c.secretFields() {
		ref, ok := secretReference(*field.value)
		if ok {
			if resolver == nil {
				return nil, &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
			}
			value, err := resolver.ResolveSecret(ctx, ref)
			if err != nil {
				return nil, &SecretError{Ref: ref, Err: err}
			}
			*field.value = value
		}
		resolved[field.name] = strings.TrimSpace(*field.value)
	}
	return resolved, nil
}

// secretReference normalises sm:// to secret:// and reports whether value is a reference.
func secretReference(value string) (string, bool) {
	value = strings.TrimSpace(value)
	switch {
	case strings.HasPrefix(value, secretScheme):
		return value, true
	case strings.HasPrefix(value, legacySecretScheme):
		return secretScheme + strings.TrimPrefix(value, legacySecretScheme), true
	default:
		return "", false
	}
}

func missingSecrets(required []string, resolved map[string]string) *MissingSecretsError {
	seen := make(map[string]bool, len(required))
	var redacted []string
	for _, name := range required {
		name = strings.TrimSpace(name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		if resolved[name] == "" {
			redacted = append(redacted, redactSecretName(name))
		}
	}
	if len(redacted) == 0 {
		return nil
	}
	return &MissingSecretsError{redacted: redacted}
}

func redactSecretName(name string) string {
	sum := sha256.Sum256([]byte(name))
	return hex.EncodeToString(sum[:8])
}
