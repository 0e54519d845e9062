package vault

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/pbkdf2"
)

const (
	saltSize   = 16
	kdfRounds  = 100000
	keySize    = chacha20poly1305.KeySize
	sealedMinN = saltSize + chacha20poly1305.NonceSizeX + chacha20poly1305.Overhead
)

// ErrCorrupt is returned when a stored blob cannot be opened.
var ErrCorrupt = errors.New("sealed credential is corrupt or the secret changed")

// CredentialStore persists sealed blobs. Get reports ok=false when nothing
// is stored.
type CredentialStore interface {
	GetCredential(ctx context.Context, scope, provider string) (sealed []byte, ok bool, err error)
	PutCredential(ctx context.Context, scope, provider string, sealed []byte) error
	DeleteCredential(ctx context.Context, scope, provider string) (bool, error)
}

// Sealed encrypts keys with XChaCha20-Poly1305 before handing them to a
// CredentialStore. Each blob carries its own PBKDF2 salt:
//
//	salt(16) | nonce(24) | ciphertext+tag
type Sealed struct {
	store  CredentialStore
	secret []byte
	scope  string

	mu   sync.Mutex
	keys map[string][]byte // salt -> derived key
}

// NewSealed creates a vault sealing keys under secret. scope is used when
// the context carries none.
func NewSealed(store CredentialStore, secret, scope string) (*Sealed, error) {
	if secret == "" {
		return nil, errors.New("vault secret is required")
	}
	return &Sealed{store: store, secret: []byte(secret), scope: scope, keys: make(map[string][]byte)}, nil
}

func (s *Sealed) Load(ctx context.Context, provider string) (string, error) {
	scope := ScopeFrom(ctx, s.scope)
	blob, ok, err := s.store.GetCredential(ctx, scope, provider)
	if err != nil {
		return "", fmt.Errorf("loading credential: %w", err)
	}
	if !ok {
		return "", ErrNotFound
	}
	plain, err := s.open(blob, scope, provider)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

func (s *Sealed) Save(ctx context.Context, provider, apiKey string) error {
	if apiKey == "" {
		return errors.New("api key is required")
	}
	scope := ScopeFrom(ctx, s.scope)
	blob, err := s.seal([]byte(apiKey), scope, provider)
	if err != nil {
		return err
	}
	if err := s.store.PutCredential(ctx, scope, provider, blob); err != nil {
		return fmt.Errorf("storing credential: %w", err)
	}
	return nil
}

func (s *Sealed) Delete(ctx context.Context, provider string) error {
	ok, err := s.store.DeleteCredential(ctx, ScopeFrom(ctx, s.scope), provider)
	if err != nil {
		return fmt.Errorf("deleting credential: %w", err)
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

func (s *Sealed) seal(plain []byte, scope, provider string) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	aead, err := chacha20poly1305.NewX(s.derive(salt))
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plain)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	sealed := aead.Seal(nonce, nonce, plain, additional(scope, provider))
	return append(salt, sealed...), nil
}

func (s *Sealed) open(blob []byte, scope, provider string) ([]byte, error) {
	if len(blob) < sealedMinN {
		return nil, ErrCorrupt
	}
	salt, rest := blob[:saltSize], blob[saltSize:]
	aead, err := chacha20poly1305.NewX(s.derive(salt))
	if err != nil {
		return nil, err
	}
	nonce, ct := rest[:aead.NonceSize()], rest[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ct, additional(scope, provider))
	if err != nil {
		return nil, ErrCorrupt
	}
	return plain, nil
}

// additional binds a blob to its scope and provider so rows cannot be
// swapped between users.
func additional(scope, provider string) []byte {
	return []byte(scope + "\x00" + provider)
}

func (s *Sealed) derive(salt []byte) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if k, ok := s.keys[string(salt)]; ok {
		return k
	}
	k := pbkdf2.Key(s.secret, salt, kdfRounds, keySize, sha256.New)
	s.keys[string(salt)] = k
	return k
}
