package auth

import (
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	josejose "github.com/go-jose/go-jose/v4"
)

// StaticKeySet is a JWKSource backed by an in-memory set of public keys,
// useful for tests and for a locally pinned identity provider key.
type StaticKeySet struct {
	keys map[string]any
}

// NewStaticKeySet wraps a fixed key-ID to public-key map.
func NewStaticKeySet(keys map[string]any) *StaticKeySet {
	return &StaticKeySet{keys: keys}
}

// Key implements JWKSource.
func (s *StaticKeySet) Key(keyID string) (any, bool) {
	k, ok := s.keys[keyID]
	return k, ok
}

// RemoteKeySet fetches and caches a JWKS document over HTTP, refreshing it
// once the cache ages past refreshInterval. This is the production
// JWKSource a deployment points at its identity provider's well-known
// JWKS endpoint.
type RemoteKeySet struct {
	url             string
	refreshInterval time.Duration
	client          *http.Client

	mu        sync.Mutex
	fetchedAt time.Time
	keys      map[string]any
}

// NewRemoteKeySet builds a RemoteKeySet pointed at url.
func NewRemoteKeySet(url string, refreshInterval time.Duration) *RemoteKeySet {
	return &RemoteKeySet{
		url:             url,
		refreshInterval: refreshInterval,
		client:          &http.Client{Timeout: 10 * time.Second},
		keys:            make(map[string]any),
	}
}

// Key implements JWKSource, refreshing the cached JWKS document if stale.
func (r *RemoteKeySet) Key(keyID string) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if time.Since(r.fetchedAt) > r.refreshInterval {
		if err := r.refreshLocked(); err != nil {
			// Keep serving the stale cache rather than locking every client
			// out because one fetch failed.
			if _, ok := r.keys[keyID]; ok {
				return r.keys[keyID], true
			}
			return nil, false
		}
	}

	k, ok := r.keys[keyID]
	return k, ok
}

func (r *RemoteKeySet) refreshLocked() error {
	resp, err := r.client.Get(r.url)
	if err != nil {
		return fmt.Errorf("auth: fetch jwks: %w", err)
	}
	defer resp.Body.Close()

	var set josejose.JSONWebKeySet
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return fmt.Errorf("auth: decode jwks: %w", err)
	}

	keys := make(map[string]any, len(set.Keys))
	for _, k := range set.Keys {
		if pub, ok := k.Key.(*rsa.PublicKey); ok {
			keys[k.KeyID] = pub
		}
	}
	r.keys = keys
	r.fetchedAt = time.Now()
	return nil
}
