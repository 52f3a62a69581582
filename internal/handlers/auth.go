package handlers

import (
	"context"
	"net/http"

	"github.com/jason-s-yu/aiquiz/internal/auth"
	"github.com/sirupsen/logrus"
)

// TokenValidator resolves a bearer token to its caller.
type TokenValidator interface {
	ValidateToken(ctx context.Context, raw string) (auth.Principal, error)
}

// requireAuth rejects requests without a valid bearer token and stores the caller in the
// request context.
func requireAuth(v TokenValidator, logger *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractBearerToken(r.Header.Get("Authorization"))
			p, err := v.ValidateToken(r.Context(), token)
			if err != nil {
				logger.WithError(err).WithField("path", r.URL.Path).Debug("rejected bearer token")
				w.Header().Set("WWW-Authenticate", `Bearer realm="aiquiz"`)
				writeError(w, logger, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), p)))
		})
	}
}

// playerID returns the caller placed in the context by requireAuth.
func playerID(r *http.Request) string {
	p, _ := auth.PrincipalFrom(r.Context())
	return p.PlayerID
}
