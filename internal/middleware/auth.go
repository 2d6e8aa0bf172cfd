package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/josh-kwaku/agency-ledger/internal/auth"
	"github.com/josh-kwaku/agency-ledger/internal/handler"
	"github.com/josh-kwaku/agency-ledger/internal/logging"
)

// Auth admits requests that carry a valid bearer token. The signed-in
// principal goes on the context and its user id on the request logger.
func Auth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, appErr := bearerToken(r.Header.Get("Authorization"))
			if appErr != nil {
				handler.RespondAppError(w, appErr, nil)
				return
			}

			claims, err := auth.ValidateToken(token, secret)
			if err != nil {
				logging.FromContext(r.Context()).Debug("bearer token rejected", "reason", rejectReason(err))
				handler.RespondAppError(w, handler.ErrInvalidToken, nil)
				return
			}

			next.ServeHTTP(w, r.WithContext(withPrincipal(r.Context(), claims)))
		})
	}
}

// bearerToken extracts the credential from an Authorization header. The
// scheme name is matched case-insensitively.
func bearerToken(header string) (string, *handler.AppError) {
	if header == "" {
		return "", handler.ErrMissingToken
	}
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", handler.ErrInvalidToken
	}
	if token = strings.TrimSpace(token); token == "" {
		return "", handler.ErrInvalidToken
	}
	return token, nil
}

func withPrincipal(ctx context.Context, claims *auth.Claims) context.Context {
	ctx = auth.ContextWithPrincipal(ctx, auth.Principal{UserID: claims.UserID, Email: claims.Email})
	ctx, _ = logging.With(ctx, "user_id", claims.UserID)
	return ctx
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return "expired"
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return "issuer"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return "signature"
	case errors.Is(err, jwt.ErrTokenMalformed):
		return "malformed"
	default:
		return "invalid"
	}
}
