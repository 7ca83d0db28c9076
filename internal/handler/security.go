package handler

import (
	"net/http"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// APIKeyHeader carries the machine client's API key.
const APIKeyHeader = "X-API-Key"

// RequireAPIKey rejects requests whose API key is missing, unknown or
// lacks scope. The key name is added to the request logger.
func (h *Handler) RequireAPIKey(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info, err := h.keys.Authenticate(r.Context(), r.Header.Get(APIKeyHeader), scope)
			if err != nil {
				zctx.From(r.Context()).Warn("API key rejected",
					zap.String("scope", scope),
					zap.Error(err),
				)
				fail(w, r, err)
				return
			}
			ctx := zctx.With(r.Context(), zap.String("api_key", info.Name))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
