package middleware

import (
	"net/http"
	"strings"

	"github.com/tiptune/tiptune/internal/auth"
)

// OptionalAuth extracts and validates a bearer token if one is present.
// On a valid access token the user ID from the token's subject claim is
// stored in the request context. Requests without a token, or with an
// invalid one, proceed anonymously: play recording and analytics reads
// are open endpoints, and a stale token should not break playback.
func OptionalAuth(jwtService *auth.JWTService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}

			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := jwtService.ValidateAccessToken(token)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			ctx := SetUserID(r.Context(), claims.Subject)
			UpdateResponseContext(w, ctx)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
