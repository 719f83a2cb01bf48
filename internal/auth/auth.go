// Package auth verifies the HS256 bearer JWT required on every external
// HTTP call, and maps the decoded principal onto a role-checked User record.
package auth

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"petnet-coordinator/internal/db"
	"petnet-coordinator/internal/httpx"
)

type contextKey string

const userContextKey contextKey = "auth_user"

// Verifier validates bearer tokens against secret and loads the named user.
type Verifier struct {
	secret []byte
	sqlDB  *sql.DB
}

func NewVerifier(secret string, sqlDB *sql.DB) *Verifier {
	return &Verifier{secret: []byte(secret), sqlDB: sqlDB}
}

// claims is the minimal JWT payload this system issues: a "name" claim
// identifying the principal.
type claims struct {
	Name string `json:"name"`
	jwt.RegisteredClaims
}

// Authenticate parses and verifies the bearer token from r, loads the named
// user, and rejects if the user is missing or not Normal.
func (v *Verifier) Authenticate(r *http.Request) (*db.User, error) {
	header := r.Header.Get("Authorization")
	tokenStr, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || tokenStr == "" {
		return nil, errors.New("missing bearer token")
	}

	var c claims
	token, err := jwt.ParseWithClaims(tokenStr, &c, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, errors.New("invalid token")
	}
	if c.Name == "" {
		return nil, errors.New("token missing name claim")
	}

	user, err := db.GetUser(r.Context(), v.sqlDB, c.Name)
	if err != nil {
		return nil, errors.New("unknown user")
	}
	if user.Status != db.UserNormal {
		return nil, errors.New("user is not active")
	}
	return user, nil
}

// Middleware authenticates every request and, on failure, writes a 401
// envelope instead of calling next.
func (v *Verifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := v.Authenticate(r)
		if err != nil {
			httpx.Write(w, r, httpx.Unauthorized(err.Error()))
			return
		}
		ctx := context.WithValue(r.Context(), userContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole wraps next, rejecting with 403 unless the authenticated user
// has one of the allowed roles.
func RequireRole(next http.Handler, roles ...string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := UserFromContext(r.Context())
		if !ok {
			httpx.Write(w, r, httpx.Unauthorized("no authenticated user"))
			return
		}
		for _, role := range roles {
			if user.Role == role {
				next.ServeHTTP(w, r)
				return
			}
		}
		httpx.Write(w, r, httpx.Forbidden("role "+user.Role+" not permitted"))
	})
}

// UserFromContext returns the authenticated user attached by Middleware.
func UserFromContext(ctx context.Context) (*db.User, bool) {
	u, ok := ctx.Value(userContextKey).(*db.User)
	return u, ok
}
