package authz

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
)

// PermissionSeparator splits alternative permission names in a middleware
// requirement string ("posts.edit|posts.delete" grants on either).
const PermissionSeparator = "|"

// ErrorHandler handles authorization failures in the middleware.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

// middlewareConfig holds middleware configuration.
type middlewareConfig struct {
	errorHandler ErrorHandler
	logger       *slog.Logger
}

// MiddlewareOption configures the middleware.
type MiddlewareOption func(*middlewareConfig)

// WithErrorHandler sets a custom failure handler.
func WithErrorHandler(handler ErrorHandler) MiddlewareOption {
	return func(c *middlewareConfig) {
		if handler != nil {
			c.errorHandler = handler
		}
	}
}

// WithLogger sets the logger for denied checks.
func WithLogger(logger *slog.Logger) MiddlewareOption {
	return func(c *middlewareConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// RequirePermission creates HTTP middleware that admits a request only when
// the principal in the request context holds any of the pipe-separated
// permission names for the guard. Unauthenticated requests get 401, denied
// requests 403, infrastructure failures 500 (fail closed). The checked names
// are logged for diagnostics, never written to the response body.
func RequirePermission(checker *Checker, permission, guard string, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	cfg := &middlewareConfig{
		errorHandler: defaultErrorHandler,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	names := strings.Split(permission, PermissionSeparator)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, _ := PrincipalFromContext(r.Context())

			result, err := checker.HasAnyPermission(r.Context(), principal, names, guard)
			if err != nil {
				cfg.errorHandler(w, r, err)
				return
			}

			switch result.Decision {
			case DecisionGranted:
				next.ServeHTTP(w, r)
			case DecisionUnauthenticated:
				cfg.errorHandler(w, r, ErrUnauthenticated)
			default:
				cfg.logger.DebugContext(r.Context(), "permission denied",
					slog.String("path", r.URL.Path),
					slog.Any("checked", result.Checked))
				cfg.errorHandler(w, r, ErrPermissionDenied)
			}
		})
	}
}

func defaultErrorHandler(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrUnauthenticated):
		http.Error(w, "Authentication required", http.StatusUnauthorized)
	case errors.Is(err, ErrPermissionDenied):
		http.Error(w, "Forbidden", http.StatusForbidden)
	default:
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}
