// Package secret implements resolve_secret(ref) over two backends: an
// environment variable backend and a file-backed encrypted-keystore
// backend, with results cached per process lifetime via an LRU cache.
package secret

import (
	"fmt"
	"os"
	"strings"

	"github.com/heytcass/jasper/internal/cache"
	"github.com/heytcass/jasper/internal/jasperr"
)

// Ref is a parsed secret reference, e.g. "env:ANTHROPIC_API_KEY" or
// "keystore:anthropic_api_key".
type Ref struct {
	Backend string
	Key     string
}

// ParseRef splits a "backend:key" reference string.
func ParseRef(raw string) (Ref, error) {
	backend, key, ok := strings.Cut(raw, ":")
	if !ok || key == "" {
		return Ref{}, jasperr.New(jasperr.ConfigInvalid, "secret.ParseRef", fmt.Sprintf("malformed secret reference %q, want backend:key", raw))
	}
	return Ref{Backend: backend, Key: key}, nil
}

// Backend resolves one Ref kind to a secret value.
type Backend interface {
	Resolve(ref Ref) (string, error)
}

// Resolver dispatches resolve_secret calls to the backend named in the
// reference, caching results for the life of the process so repeated
// resolution of the same ref (e.g. on every config reload) doesn't re-read
// the environment or decrypt the keystore file again.
type Resolver struct {
	backends map[string]Backend
	cache    *cache.Cache[string, string]
}

// NewResolver builds a Resolver with the environment and keystore backends
// registered under "env" and "keystore".
func NewResolver(keystorePath string, keystoreKey []byte) (*Resolver, error) {
	c, err := cache.New[string, string](64)
	if err != nil {
		return nil, err
	}
	return &Resolver{
		backends: map[string]Backend{
			"env":      EnvBackend{},
			"keystore": NewKeystoreBackend(keystorePath, keystoreKey),
		},
		cache: c,
	}, nil
}

// Resolve returns the secret value for raw ("backend:key"), consulting the
// process-lifetime cache first.
func (r *Resolver) Resolve(raw string) (string, error) {
	if v, ok := r.cache.Get(raw); ok {
		return v, nil
	}
	ref, err := ParseRef(raw)
	if err != nil {
		return "", err
	}
	backend, ok := r.backends[ref.Backend]
	if !ok {
		return "", jasperr.New(jasperr.ConfigInvalid, "secret.Resolve", fmt.Sprintf("unknown secret backend %q", ref.Backend))
	}
	value, err := backend.Resolve(ref)
	if err != nil {
		return "", err
	}
	r.cache.Set(raw, value)
	return value, nil
}

// EnvBackend resolves a secret from an environment variable named by Ref.Key.
type EnvBackend struct{}

func (EnvBackend) Resolve(ref Ref) (string, error) {
	v, ok := os.LookupEnv(ref.Key)
	if !ok {
		return "", jasperr.New(jasperr.ConfigInvalid, "secret.EnvBackend.Resolve", fmt.Sprintf("environment variable %s is not set", ref.Key))
	}
	return v, nil
}
