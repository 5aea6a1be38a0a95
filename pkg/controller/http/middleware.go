package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/Netflix/dispatch-sub000/pkg/usecase"
	"github.com/Netflix/dispatch-sub000/pkg/utils/errutil"
	"github.com/Netflix/dispatch-sub000/pkg/utils/logging"
)

type contextKey string

const (
	principalKey    contextKey = "principal"
	organizationKey contextKey = "organization"
)

// principalFrom returns the email of the authenticated caller
func principalFrom(ctx context.Context) string {
	if v, ok := ctx.Value(principalKey).(string); ok {
		return v
	}
	return ""
}

// organizationFrom returns the organization slug of an /api/v1 request
func organizationFrom(ctx context.Context) string {
	if v, ok := ctx.Value(organizationKey).(string); ok {
		return v
	}
	return ""
}

func unauthorized(w http.ResponseWriter, r *http.Request, msg string) {
	writeJSON(w, r, http.StatusUnauthorized, errutil.ErrorBody{Message: msg})
}

// jwtMiddleware validates the HS256 bearer token and stores the caller email
// taken from the "email" claim, or the subject when absent.
func jwtMiddleware(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || raw == "" {
				unauthorized(w, r, "authentication required")
				return
			}

			token, err := jwt.Parse([]byte(raw),
				jwt.WithKey(jwa.HS256, secret),
				jwt.WithValidate(true),
				jwt.WithAcceptableSkew(10*time.Second),
			)
			if err != nil {
				logging.From(r.Context()).Warn("invalid bearer token", "error", err.Error())
				unauthorized(w, r, "invalid authentication token")
				return
			}

			email := token.Subject()
			if v, ok := token.PrivateClaims()["email"].(string); ok && v != "" {
				email = v
			}
			if email == "" {
				unauthorized(w, r, "token has no principal")
				return
			}
			email = strings.ToLower(email)

			ctx := context.WithValue(r.Context(), principalKey, email)
			ctx = logging.WithAttrs(ctx, "principal", email)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// organizationMiddleware resolves the {organization} URL parameter
func organizationMiddleware(uc *usecase.UseCases) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			slug := chi.URLParam(r, "organization")
			if _, err := uc.Organizations().Get(slug); err != nil {
				errutil.HandleHTTP(r.Context(), w, err)
				return
			}
			ctx := context.WithValue(r.Context(), organizationKey, slug)
			ctx = logging.WithAttrs(ctx, "organization", slug)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
