package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/odyssey-erp/odyssey-pcm/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-pcm/internal/shared"
)

// Middleware resolves bearer tokens into the request actor. Requests without
// an Authorization header pass through anonymously; route guards decide.
func Middleware(tokens *Issuer, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}
			scheme, raw, ok := strings.Cut(header, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(raw) == "" {
				httpx.RespondError(w, ErrInvalidToken)
				return
			}
			actor, err := tokens.Verify(strings.TrimSpace(raw))
			if err != nil {
				if logger != nil {
					logger.Debug("reject bearer token", slog.String("path", r.URL.Path), slog.Any("error", err))
				}
				httpx.RespondError(w, ErrInvalidToken)
				return
			}
			next.ServeHTTP(w, r.WithContext(shared.ContextWithActor(r.Context(), actor)))
		})
	}
}

func actorOf(u *User) shared.Actor {
	return shared.Actor{ID: u.ID, Role: u.Role}
}
