package auth

import (
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// TokenVerifier turns a raw bearer token into a Principal.
type TokenVerifier interface {
	Verify(token string) (Principal, error)
}

// Middleware rejects requests without a valid bearer token and stores the
// principal on the request context.
func Middleware(v TokenVerifier, logger *zap.Logger, onFail http.HandlerFunc) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r.Header.Get("Authorization"))
			if raw == "" {
				onFail(w, r)
				return
			}
			p, err := v.Verify(raw)
			if err != nil {
				logger.Debug("token rejected", zap.Error(err))
				onFail(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
