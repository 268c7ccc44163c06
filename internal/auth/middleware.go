package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/odyssey-erp/odyssey-pos/internal/platform/httpx"
)

// Middleware wires bearer authentication and role authorization for HTTP handlers.
type Middleware struct {
	Tokens *TokenIssuer
	Logger *slog.Logger
}

// Authenticate requires a valid bearer token and stores the principal in context.
func (m Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearerToken(r)
		if !ok {
			httpx.WriteProblem(w, httpx.ProblemDetail{Status: http.StatusUnauthorized, Title: "Unauthorized", Detail: "missing bearer token", Kind: "unauthorized"})
			return
		}
		principal, err := m.Tokens.Parse(raw)
		if err != nil {
			if m.Logger != nil {
				m.Logger.Debug("reject bearer token", slog.Any("error", err))
			}
			httpx.WriteProblem(w, httpx.ProblemDetail{Status: http.StatusUnauthorized, Title: "Unauthorized", Detail: "invalid or expired token", Kind: "unauthorized"})
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), principal)))
	})
}

// RequireRole ensures the current principal holds one of the roles.
func (m Middleware) RequireRole(roles ...Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := PrincipalFromContext(r.Context())
			if !ok {
				httpx.WriteProblem(w, httpx.ProblemDetail{Status: http.StatusUnauthorized, Title: "Unauthorized", Kind: "unauthorized"})
				return
			}
			if !Allowed(principal, roles...) {
				if m.Logger != nil {
					m.Logger.Warn("role denied",
						slog.Int64("user_id", principal.UserID),
						slog.String("role", string(principal.Role)),
						slog.String("path", r.URL.Path))
				}
				httpx.WriteProblem(w, httpx.ProblemDetail{Status: http.StatusForbidden, Title: "Forbidden", Detail: "insufficient role", Kind: "forbidden"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return "", false
	}
	token := strings.TrimSpace(header[7:])
	return token, token != ""
}
