package auth

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
)

// Resolver extracts a Principal from a request. ErrUnauthenticated means the
// request carries no usable credential for this resolver.
type Resolver interface {
	Principal(r *http.Request) (Principal, error)
}

// BearerResolver reads an "Authorization: Bearer <jwt>" header.
type BearerResolver struct {
	Tokens *TokenManager
}

func (b BearerResolver) Principal(r *http.Request) (Principal, error) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		return Principal{}, ErrUnauthenticated
	}
	return b.Tokens.Validate(strings.TrimSpace(token))
}

// Middleware tries each resolver in order and rejects the request with 401
// when none yields a principal.
func Middleware(logger *slog.Logger, resolvers ...Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			lastErr := ErrUnauthenticated
			for _, res := range resolvers {
				p, err := res.Principal(r)
				if err == nil {
					next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
					return
				}
				if err != ErrUnauthenticated {
					lastErr = err
				}
			}

			logger.Debug("request rejected", slog.String("path", r.URL.Path), slog.Any("error", lastErr))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"error": ErrUnauthenticated.Error()})
		})
	}
}
