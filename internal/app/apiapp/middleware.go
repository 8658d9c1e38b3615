package apiapp

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/ivankudzin/matchcore/internal/infra/metrics"
	authsvc "github.com/ivankudzin/matchcore/internal/services/auth"
	httperrors "github.com/ivankudzin/matchcore/internal/transport/http/errors"
)

type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (authsvc.Identity, error)
}

type PremiumChecker interface {
	IsPremium(ctx context.Context, userID int64) (bool, error)
}

func ApplyMiddlewares(r chiRouter, log *zap.Logger) {
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(60 * time.Second))
	r.Use(requestLogger(log))
}

func AuthMiddleware(tokens Authenticator, log *zap.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tokens == nil {
				httperrors.WriteError(w, http.StatusInternalServerError, "AUTH_SERVICE_UNAVAILABLE", "auth service is unavailable")
				return
			}

			accessToken, ok := extractBearerToken(r.Header.Get("Authorization"))
			if !ok {
				httperrors.WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing bearer token")
				return
			}

			identity, err := tokens.Authenticate(r.Context(), accessToken)
			switch {
			case err == nil:
			case errors.Is(err, authsvc.ErrAccountInactive):
				httperrors.WriteError(w, http.StatusForbidden, "FORBIDDEN", "account is inactive")
				return
			case errors.Is(err, authsvc.ErrUnauthorized):
				log.Debug("auth middleware validation failed", zap.Error(err))
				httperrors.WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid access token")
				return
			default:
				log.Error("auth middleware lookup failed", zap.Error(err))
				httperrors.WriteError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to authenticate request")
				return
			}

			next.ServeHTTP(w, r.WithContext(authsvc.WithIdentity(r.Context(), identity)))
		})
	}
}

// RequireVerified must run after AuthMiddleware.
func RequireVerified(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := authsvc.IdentityFromContext(r.Context())
		if !ok {
			httperrors.WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing identity")
			return
		}
		if !identity.Verified {
			httperrors.WriteError(w, http.StatusForbidden, "VERIFICATION_REQUIRED", "profile verification required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequirePremium must run after AuthMiddleware.
func RequirePremium(premium PremiumChecker, log *zap.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := authsvc.IdentityFromContext(r.Context())
			if !ok {
				httperrors.WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing identity")
				return
			}
			if premium == nil {
				httperrors.WriteError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "entitlements are unavailable")
				return
			}

			isPremium, err := premium.IsPremium(r.Context(), identity.UserID)
			if err != nil {
				log.Error("premium check failed", zap.Int64("user_id", identity.UserID), zap.Error(err))
				httperrors.WriteError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to check subscription")
				return
			}
			if !isPremium {
				httperrors.WriteError(w, http.StatusForbidden, "PREMIUM_REQUIRED", "premium subscription required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func extractBearerToken(value string) (string, bool) {
	parts := strings.SplitN(strings.TrimSpace(value), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return parts[1], true
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			route := routePattern(r)
			metrics.HTTPRequest(r.Method, route, status)

			if log != nil {
				log.Info("http_request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.String("route", route),
					zap.Int("status", status),
					zap.String("request_id", chimiddleware.GetReqID(r.Context())),
					zap.Duration("duration", time.Since(start)),
				)
			}
		})
	}
}

// routePattern returns the matched chi pattern, or "unmatched".
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}

type chiRouter interface {
	Use(middlewares ...func(http.Handler) http.Handler)
}
