package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/Harshitk-cp/trustfuse/internal/domain"
	"github.com/Harshitk-cp/trustfuse/internal/store"
)

type contextKey string

const (
	tenantContextKey contextKey = "tenant"

	// APIKeyHeader is accepted as an alternative to a bearer token.
	APIKeyHeader = "X-API-Key"
)

func TenantFromContext(ctx context.Context) *domain.Tenant {
	t, _ := ctx.Value(tenantContextKey).(*domain.Tenant)
	return t
}

// WithTenant returns a context carrying tenant, as APIKeyAuth does.
func WithTenant(ctx context.Context, tenant *domain.Tenant) context.Context {
	return context.WithValue(ctx, tenantContextKey, tenant)
}

// APIKeyAuth resolves the caller's tenant from its API key. Every session
// lookup downstream is scoped to that tenant.
func APIKeyAuth(tenantStore domain.TenantStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey, msg := apiKeyFromRequest(r)
			if msg != "" {
				writeError(w, http.StatusUnauthorized, msg)
				return
			}

			tenant, err := tenantStore.GetByAPIKeyHash(r.Context(), hashAPIKey(apiKey))
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					writeError(w, http.StatusUnauthorized, "invalid API key")
					return
				}
				writeError(w, http.StatusInternalServerError, "failed to authenticate")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithTenant(r.Context(), tenant)))
		})
	}
}

func apiKeyFromRequest(r *http.Request) (string, string) {
	if key := strings.TrimSpace(r.Header.Get(APIKeyHeader)); key != "" {
		return key, ""
	}

	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", "missing authorization header"
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", "invalid authorization header format"
	}
	return strings.TrimSpace(parts[1]), ""
}

func hashAPIKey(key string) string {
	h := sha256.Sum256([]byte(key))
	return hex.EncodeToString(h[:])
}

// HashAPIKey is exported for use when creating tenants.
func HashAPIKey(key string) string {
	return hashAPIKey(key)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
