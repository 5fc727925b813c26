package transport

import (
	"context"
	"net/http"
	"strings"

	"quizlive/internal/apperr"
	"quizlive/internal/config"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const ownerIDKey contextKey = "owner_id"

// AdminAuth validates the bearer JWT identifying the session owner
// (quiz host / controller), narrowed from the teacher's JWTMiddleware:
// participants never carry a JWT, only the opaque sessionToken from the
// join response, so this middleware guards the admin REST surface and the
// controller WebSocket upgrade only.
type AdminAuth struct {
	secret string
}

func NewAdminAuth(cfg *config.Config) *AdminAuth {
	return &AdminAuth{secret: cfg.JWT.Secret}
}

func (a *AdminAuth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ownerID, err := a.ValidateRequest(r)
		if err != nil {
			writeError(w, r, apperr.Authentication("missing or invalid admin token", err))
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ownerIDKey, ownerID)))
	})
}

// ValidateRequest extracts the owner id from the Authorization header, or
// (for the WebSocket upgrade, which can't set headers from a browser) the
// token query parameter.
func (a *AdminAuth) ValidateRequest(r *http.Request) (string, error) {
	raw := r.URL.Query().Get("token")
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && parts[0] == "Bearer" {
			raw = parts[1]
		}
	}
	if raw == "" {
		return "", jwt.ErrTokenMalformed
	}
	return a.validateToken(raw)
}

func (a *AdminAuth) validateToken(raw string) (string, error) {
	token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(a.secret), nil
	})
	if err != nil || !token.Valid {
		return "", jwt.ErrTokenInvalidClaims
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", jwt.ErrTokenInvalidClaims
	}
	ownerID, _ := claims["sub"].(string)
	if ownerID == "" {
		return "", jwt.ErrTokenInvalidClaims
	}
	return ownerID, nil
}

func ownerIDFromContext(ctx context.Context) string {
	ownerID, _ := ctx.Value(ownerIDKey).(string)
	return ownerID
}
