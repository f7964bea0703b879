package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/rickshauling/ticketdrop/internal/shared/requestid"
)

// Actor roles. Admin passes every gate.
const (
	RoleDispatcher = "dispatcher"
	RoleDriver     = "driver"
	RoleBiller     = "biller"
	RoleAdmin      = "admin"
)

type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type ctxKeyActor struct{}

type Actor struct {
	Subject string
	Role    string
}

func ActorFrom(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(ctxKeyActor{}).(Actor)
	return a, ok
}

// Auth gates routes by the role claim of an HS256 bearer token.
// A nil *Auth lets every request through.
type Auth struct {
	secret []byte
}

func NewAuth(secret string) *Auth {
	if secret == "" {
		return nil
	}
	return &Auth{secret: []byte(secret)}
}

// Issue signs a token for subject with role; used by tooling and tests.
func (a *Auth) Issue(subject, role string, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func (a *Auth) parse(raw string) (Claims, error) {
	var c Claims
	_, err := jwt.ParseWithClaims(raw, &c, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return Claims{}, err
	}
	if c.Role == "" {
		return Claims{}, errors.New("token has no role")
	}
	return c, nil
}

func (a *Auth) Require(next http.Handler, roles ...string) http.Handler {
	if a == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			writeAuthError(w, r, http.StatusUnauthorized, "unauthorized", "missing bearer token")
			return
		}
		claims, err := a.parse(strings.TrimSpace(raw))
		if err != nil {
			writeAuthError(w, r, http.StatusUnauthorized, "unauthorized", "invalid token")
			return
		}
		if claims.Role != RoleAdmin && len(roles) > 0 && !slices.Contains(roles, claims.Role) {
			writeAuthError(w, r, http.StatusForbidden, "forbidden", "role "+claims.Role+" may not do this")
			return
		}
		ctx := context.WithValue(r.Context(), ctxKeyActor{}, Actor{Subject: claims.Subject, Role: claims.Role})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func writeAuthError(w http.ResponseWriter, r *http.Request, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{"code": code, "message": msg, "request_id": requestid.Get(r.Context())},
	})
}
