package api

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RoleHR may manage profiles, contracts and holidays.
const RoleHR = "hr"

// Identity is the authenticated caller. EmployeeID is the actor ID used for
// every requester and approver check.
type Identity struct {
	EmployeeID string
	LoginID    string
	Roles      []string
}

func (id Identity) HasRole(role string) bool { return slices.Contains(id.Roles, role) }

// Claims is the bearer token payload issued by the auth layer.
type Claims struct {
	EmployeeID string   `json:"eid"`
	Roles      []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

type identityKey struct{}

// IdentityFrom returns the caller set by the auth middleware.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// WithIdentity stores id in ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// =============================================================================
// AUTHENTICATOR
// =============================================================================

// Authenticator verifies HS256 bearer tokens.
type Authenticator struct {
	secret []byte
	issuer string
}

func NewAuthenticator(secret, issuer string) *Authenticator {
	return &Authenticator{secret: []byte(secret), issuer: issuer}
}

// Issue signs a token. Used by tests and local tooling; production tokens
// come from the auth layer.
func (a *Authenticator) Issue(id Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		EmployeeID: id.EmployeeID,
		Roles:      id.Roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.LoginID,
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Parse verifies a token and returns its identity.
func (a *Authenticator) Parse(tokenString string) (Identity, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return Identity{}, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return Identity{}, errors.New("invalid token")
	}
	if claims.EmployeeID == "" {
		return Identity{}, errors.New("token carries no employee id")
	}
	return Identity{EmployeeID: claims.EmployeeID, LoginID: claims.Subject, Roles: claims.Roles}, nil
}

// Middleware rejects requests without a valid bearer token.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			writeError(w, http.StatusUnauthorized, "Authorization header required", nil)
			return
		}
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
			writeError(w, http.StatusUnauthorized, "Invalid authorization header format", nil)
			return
		}
		id, err := a.Parse(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid token", err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

// RequireRole lets only callers holding role through.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFrom(r.Context())
			if !ok || !id.HasRole(role) {
				writeError(w, http.StatusForbidden, "Requires role "+role, nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
