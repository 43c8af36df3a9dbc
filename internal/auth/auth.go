// Package auth resolves the acting user of a request.
package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// HeaderUserID is set by the gateway after it has verified the caller.
const HeaderUserID = "X-User-Id"

const tokenTypeAccess = "access"

type TokenClaims struct {
	UserID    string `json:"uid"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

type ctxUserKey struct{}

// UserID returns the authenticated user stored by Middleware.
func UserID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ctxUserKey{}).(string)
	return id, ok && id != ""
}

// WithUserID returns a context carrying userID.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxUserKey{}, userID)
}

// Middleware requires an acting user. With a secret configured only a verified bearer
// token is accepted and X-User-Id from the client is ignored. Without one the gateway's
// X-User-Id header is trusted.
func Middleware(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var userID string

			if len(secret) > 0 {
				header := r.Header.Get("Authorization")
				if header == "" {
					writeUnauthorized(w, "missing bearer token")
					return
				}
				uid, ok := parseBearer(header, secret)
				if !ok {
					writeUnauthorized(w, "invalid token")
					return
				}
				userID = uid
			} else {
				userID = strings.TrimSpace(r.Header.Get(HeaderUserID))
			}

			if userID == "" {
				writeUnauthorized(w, "missing user context")
				return
			}

			r.Header.Set(HeaderUserID, userID)
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

func parseBearer(header string, secret []byte) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}

	claims := &TokenClaims{}
	token, err := jwt.ParseWithClaims(parts[1], claims, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid || claims.TokenType != tokenTypeAccess || claims.UserID == "" {
		return "", false
	}
	return claims.UserID, true
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error": msg,
		"code":  "unauthorized",
	})
}
