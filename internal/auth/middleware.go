package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ecofacility/facility-erp/internal/platform/httpx"
)

// Authenticator resolves bearer tokens into principals.
type Authenticator interface {
	Authenticate(ctx context.Context, raw string) (Principal, error)
}

// Middleware guards routes with bearer authentication and a minimum level.
type Middleware struct {
	Service Authenticator
	Logger  *slog.Logger
}

// Require authenticates the request and rejects callers below level.
func (m Middleware) Require(level int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := PrincipalFromContext(r.Context())
			if !ok {
				raw, found := BearerToken(r.Header.Get("Authorization"))
				if !found {
					httpx.Fail(w, http.StatusUnauthorized, "인증이 필요합니다.")
					return
				}
				var err error
				principal, err = m.Service.Authenticate(r.Context(), raw)
				if err != nil {
					m.respondAuthError(w, err)
					return
				}
			}
			if !principal.Allows(level) {
				if m.Logger != nil {
					m.Logger.Warn("permission denied",
						slog.String("user_id", principal.UserID),
						slog.Int("level", principal.PermissionLevel),
						slog.Int("required", level),
						slog.String("path", r.URL.Path))
				}
				httpx.Fail(w, http.StatusForbidden, "접근 권한이 없습니다.")
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), principal)))
		})
	}
}

func (m Middleware) respondAuthError(w http.ResponseWriter, err error) {
	if errors.Is(err, httpx.ErrUnauthorized) {
		httpx.Fail(w, http.StatusUnauthorized, "유효하지 않은 토큰입니다.")
		return
	}
	if m.Logger != nil {
		m.Logger.Error("authenticate", slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
