// Package querycache builds stable cache keys for retrieval results and RAG
// answers over internal/tenantcache.
package querycache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Kind discriminates the cached artifact; it prefixes the fingerprint so a
// result entry and an answer entry for the same query never collide.
type Kind string

const (
	KindResult Kind = "result"
	KindAnswer Kind = "answer"
)

// Store is the subset of *tenantcache.Cache querycache depends on, so tests
// can substitute a fake.
type Store interface {
	Get(ctx context.Context, scope, fingerprint string, out any) bool
	Set(ctx context.Context, scope, fingerprint string, val any)
}

// Fingerprint derives a stable, order-independent cache key component from
// a query mode and its normalized parameters.
func Fingerprint(mode string, params map[string]string) string {
	h := sha256.New()
	fmt.Fprintf(h, "mode=%s;", mode)
	for _, k := range sortedKeys(params) {
		fmt.Fprintf(h, "%s=%s;", k, params[k])
	}
	return hex.EncodeToString(h.Sum(nil))
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j-1] > keys[j]; j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
	return keys
}

// Get reads a cached value for kind/scope/fingerprint.
func Get(ctx context.Context, s Store, kind Kind, scope, fingerprint string, out any) bool {
	return s.Get(ctx, scope, string(kind)+":"+fingerprint, out)
}

// Set stores val for kind/scope/fingerprint.
func Set(ctx context.Context, s Store, kind Kind, scope, fingerprint string, val any) {
	s.Set(ctx, scope, string(kind)+":"+fingerprint, val)
}
