package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/crsmanager/crs-backend/api/responses"
	pkgAuth "github.com/crsmanager/crs-backend/pkg/auth"
	"github.com/crsmanager/crs-backend/pkg/config"
	pkgerrors "github.com/crsmanager/crs-backend/pkg/errors"
	"github.com/crsmanager/crs-backend/pkg/logger"
)

// AdminAuth validates a bearer token carrying the admin role.
func AdminAuth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get("Authorization"))
			token := raw
			if strings.HasPrefix(strings.ToLower(token), "bearer ") {
				token = strings.TrimSpace(token[7:])
			}
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := pkgAuth.ParseAdminToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}
			if !claims.IsAdmin() {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "admin role required"))
				return
			}

			ctx := context.WithValue(r.Context(), ctxAdminSubject, claims.Subject)
			if logg != nil {
				ctx = logg.WithField(ctx, "admin_subject", claims.Subject)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
