// Package vault stores remote tracker API keys, keyed by provider and by
// scope (the user or device the key belongs to).
package vault

import (
	"context"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// ServiceName is the OS keychain service identifier.
const ServiceName = "repcoach"

// ErrNotFound is returned when no key is stored for a provider.
var ErrNotFound = errors.New("credential not found")

// Vault loads, saves and deletes provider API keys.
type Vault interface {
	Load(ctx context.Context, provider string) (string, error)
	Save(ctx context.Context, provider, apiKey string) error
	Delete(ctx context.Context, provider string) error
}

type scopeKey struct{}

// WithScope returns a context whose vault operations use scope.
func WithScope(ctx context.Context, scope string) context.Context {
	return context.WithValue(ctx, scopeKey{}, scope)
}

// ScopeFrom returns the scope carried by ctx, or def.
func ScopeFrom(ctx context.Context, def string) string {
	if s, ok := ctx.Value(scopeKey{}).(string); ok && s != "" {
		return s
	}
	return def
}

var (
	_ Vault = (*Keyring)(nil)
	_ Vault = (*Sealed)(nil)
)

// Keyring keeps keys in the OS keychain.
type Keyring struct {
	service string
	scope   string
}

// NewKeyring creates a keychain vault. scope is used when the context
// carries none and may be empty.
func NewKeyring(scope string) *Keyring {
	return &Keyring{service: ServiceName, scope: scope}
}

func (k *Keyring) account(ctx context.Context, provider string) string {
	scope := ScopeFrom(ctx, k.scope)
	if scope == "" {
		return provider
	}
	return provider + "@" + scope
}

func (k *Keyring) Load(ctx context.Context, provider string) (string, error) {
	v, err := keyring.Get(k.service, k.account(ctx, provider))
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get secret: %w", err)
	}
	return v, nil
}

func (k *Keyring) Save(ctx context.Context, provider, apiKey string) error {
	if apiKey == "" {
		return errors.New("api key is required")
	}
	if err := keyring.Set(k.service, k.account(ctx, provider), apiKey); err != nil {
		return fmt.Errorf("store secret: %w", err)
	}
	return nil
}

func (k *Keyring) Delete(ctx context.Context, provider string) error {
	err := keyring.Delete(k.service, k.account(ctx, provider))
	if errors.Is(err, keyring.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("delete secret: %w", err)
	}
	return nil
}
