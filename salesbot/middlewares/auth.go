// salesbot/middlewares/auth.go
package middlewares

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const AdminSubjectKey contextKey = "admin_subject"

const adminRole = "admin"

// IssueAdminToken signs an HS256 token accepted by AdminAuth.
func IssueAdminToken(secret, subject string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"sub":  subject,
		"role": adminRole,
		"exp":  time.Now().Add(ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// AdminAuth rejects requests without a valid admin bearer token. An empty
// secret disables the routes it guards entirely.
func AdminAuth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				http.Error(w, "admin api disabled", http.StatusForbidden)
				return
			}
			auth := r.Header.Get("Authorization")
			parts := strings.Split(auth, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			token, err := jwt.Parse(parts[1], func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok || claims["role"] != adminRole {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			subject, _ := claims["sub"].(string)
			ctx := context.WithValue(r.Context(), AdminSubjectKey, subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
