package secret

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"io"
	"os"
	"strings"

	"github.com/m-mizutani/goerr/v2"

	"github.com/Netflix/dispatch-sub000/pkg/domain/model"
)

// Scheme prefixes configuration values that name a secret
const Scheme = "secret://"

// Provider names accepted by SECRET_PROVIDER
const (
	ProviderEnv       = "env"
	ProviderEncrypted = "encrypted"
)

// Provider looks secrets up by name
type Provider interface {
	Get(ctx context.Context, name string) (string, error)
}

// LookupFunc reads a variable; os.LookupEnv by default
type LookupFunc func(name string) (string, bool)

// Env reads secrets from environment variables
type Env struct {
	lookup LookupFunc
}

// NewEnv creates an environment secret provider
func NewEnv(lookup LookupFunc) *Env {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	return &Env{lookup: lookup}
}

func (e *Env) Get(_ context.Context, name string) (string, error) {
	v, ok := e.lookup(name)
	if !ok {
		return "", goerr.Wrap(model.ErrNotFound, "secret is not set", goerr.V("name", name))
	}
	return v, nil
}

// Encrypted reads base64 AES-GCM ciphertexts from environment variables and
// decrypts them with the ENCRYPTION_KEY
type Encrypted struct {
	lookup LookupFunc
	aead   cipher.AEAD
}

func newAEAD(key string) (cipher.AEAD, error) {
	if key == "" {
		return nil, goerr.New("encryption key is required for encrypted secrets")
	}
	sum := sha256.Sum256([]byte(key))
	block, err := aes.NewCipher(sum[:])
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create cipher")
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create GCM")
	}
	return aead, nil
}

// NewEncrypted creates an encrypted secret provider
func NewEncrypted(key string, lookup LookupFunc) (*Encrypted, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	if lookup == nil {
		lookup = os.LookupEnv
	}
	return &Encrypted{lookup: lookup, aead: aead}, nil
}

func (e *Encrypted) Get(_ context.Context, name string) (string, error) {
	v, ok := e.lookup(name)
	if !ok {
		return "", goerr.Wrap(model.ErrNotFound, "secret is not set", goerr.V("name", name))
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(v))
	if err != nil {
		return "", goerr.Wrap(err, "secret is not base64", goerr.V("name", name))
	}
	n := e.aead.NonceSize()
	if len(raw) < n {
		return "", goerr.New("secret ciphertext is too short", goerr.V("name", name))
	}
	plain, err := e.aead.Open(nil, raw[:n], raw[n:], nil)
	if err != nil {
		return "", goerr.Wrap(err, "failed to decrypt secret", goerr.V("name", name))
	}
	return string(plain), nil
}

// Encrypt produces a value Encrypted can read back. Used by `init` and
// operators preparing secrets.
func Encrypt(key, plaintext string) (string, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", goerr.Wrap(err, "failed to generate nonce")
	}
	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// New creates the provider named by SECRET_PROVIDER. An empty name selects env.
func New(name, encryptionKey string) (Provider, error) {
	switch name {
	case "", ProviderEnv:
		return NewEnv(nil), nil
	case ProviderEncrypted:
		return NewEncrypted(encryptionKey, nil)
	}
	return nil, goerr.New("unknown secret provider", goerr.V("provider", name))
}

// Resolve returns a copy of conf where every string of the form
// secret://NAME, at any depth, is replaced with the secret value
func Resolve(ctx context.Context, p Provider, conf map[string]any) (map[string]any, error) {
	out, err := resolveValue(ctx, p, conf)
	if err != nil {
		return nil, err
	}
	m, _ := out.(map[string]any)
	return m, nil
}

func resolveValue(ctx context.Context, p Provider, v any) (any, error) {
	switch x := v.(type) {
	case string:
		name, ok := strings.CutPrefix(x, Scheme)
		if !ok {
			return x, nil
		}
		return p.Get(ctx, name)
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, item := range x {
			r, err := resolveValue(ctx, p, item)
			if err != nil {
				return nil, goerr.Wrap(err, "failed to resolve secret", goerr.V("key", k))
			}
			out[k] = r
		}
		return out, nil
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			r, err := resolveValue(ctx, p, item)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	}
	return v, nil
}
