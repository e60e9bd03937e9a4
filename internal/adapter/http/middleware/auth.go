package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/mheravagimyan/real-estate-ledger/internal/marketplace/domain"
)

// CallerKeyType is a custom type for the caller context key to avoid
// collisions.
type CallerKeyType string

// CallerKey is the key the authenticated caller address is stored under.
const CallerKey CallerKeyType = "authenticatedCaller"

// Claims is the JWT payload the gateway issues: the caller's ledger address
// plus the registered claims. The token is the HTTP port's stand-in for a
// wallet signature; operator authorization stays inside the ledger.
type Claims struct {
	Address string `json:"address"`
	Role    string `json:"role"`
	jwt.RegisteredClaims
}

// JWTAuth authenticates the Bearer token and puts the caller address on the
// request context. Requests without a valid token are rejected with 401.
func JWTAuth(jwtSecret string, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				log.Warn("JWTAuth: 'Authorization' header not found", zap.String("path", r.URL.Path))
				http.Error(w, "authorization token is not provided", http.StatusUnauthorized)
				return
			}

			parts := strings.Fields(authHeader)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				log.Warn("JWTAuth: invalid 'Authorization' header format", zap.String("path", r.URL.Path))
				http.Error(w, "authorization token format is invalid, expected 'Bearer <token>'", http.StatusUnauthorized)
				return
			}
			tokenString := parts[1]

			claims := &Claims{}
			token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, errors.New("unexpected signing method")
				}
				return []byte(jwtSecret), nil
			})
			if err != nil {
				log.Warn("JWTAuth: token parsing/validation failed", zap.String("path", r.URL.Path), zap.Error(err))
				if errors.Is(err, jwt.ErrTokenExpired) {
					http.Error(w, "token has expired", http.StatusUnauthorized)
					return
				}
				http.Error(w, "token is invalid", http.StatusUnauthorized)
				return
			}
			if !token.Valid {
				log.Warn("JWTAuth: token is not valid", zap.String("path", r.URL.Path))
				http.Error(w, "token is not valid", http.StatusUnauthorized)
				return
			}
			if claims.Address == "" {
				log.Warn("JWTAuth: address claim missing from token", zap.String("path", r.URL.Path))
				http.Error(w, "address claim is missing", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), CallerKey, domain.Address(claims.Address))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// CallerFromContext extracts the authenticated caller address set by JWTAuth.
func CallerFromContext(ctx context.Context) (domain.Address, bool) {
	caller, ok := ctx.Value(CallerKey).(domain.Address)
	return caller, ok
}
