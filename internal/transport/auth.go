package transport

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
)

// ErrUnauthorized indicates invalid or missing credentials.
var ErrUnauthorized = errors.New("unauthorized")

type auditorKey struct{}

// AuditorResolver resolves the auditor behind a bearer token.
type AuditorResolver interface {
	ResolveAuditor(ctx context.Context, token string) (string, error)
}

// AuditorFromContext returns the authenticated auditor ID, if present.
func AuditorFromContext(ctx context.Context) (string, bool) {
	auditorID, ok := ctx.Value(auditorKey{}).(string)
	return auditorID, ok
}

// AuthMiddleware enforces bearer token authentication.
func AuthMiddleware(resolver AuditorResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			token := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
			if token == "" {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing bearer token")
				return
			}

			auditorID, err := resolver.ResolveAuditor(r.Context(), token)
			if err != nil || auditorID == "" {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid bearer token")
				return
			}

			ctx := context.WithValue(r.Context(), auditorKey{}, auditorID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// KeyRing resolves auditors from a fixed set of API keys. Only token hashes
// are held in memory.
type KeyRing struct {
	byHash map[string]string
}

// NewKeyRing builds a KeyRing from a token to auditor ID map.
func NewKeyRing(keys map[string]string) *KeyRing {
	ring := &KeyRing{byHash: make(map[string]string, len(keys))}
	for token, auditorID := range keys {
		ring.byHash[hashToken(token)] = auditorID
	}
	return ring
}

// ResolveAuditor implements AuditorResolver.
func (k *KeyRing) ResolveAuditor(_ context.Context, token string) (string, error) {
	auditorID, ok := k.byHash[hashToken(token)]
	if !ok || auditorID == "" {
		return "", ErrUnauthorized
	}
	return auditorID, nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
