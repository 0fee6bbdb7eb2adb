// Package middleware provides the tenant gatekeeper HTTP layer: every
// protected route resolves credentials to a Principal before any handler
// runs, so downstream code never trusts payload identity fields.
package middleware

import (
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/attendly/attendly-backend/internal/auth/service"
	"github.com/attendly/attendly-backend/pkg/errors"
	"github.com/attendly/attendly-backend/pkg/httputil"
	"github.com/attendly/attendly-backend/pkg/principal"
)

// Gatekeeper wires the auth service into chi middleware
type Gatekeeper struct {
	auth                 *service.AuthService
	systemCredentialHash string
}

// NewGatekeeper creates the auth middleware set
func NewGatekeeper(auth *service.AuthService, systemCredentialHash string) *Gatekeeper {
	return &Gatekeeper{
		auth:                 auth,
		systemCredentialHash: systemCredentialHash,
	}
}

// RequireEmployee admits only requests carrying a live employee session token
func (g *Gatekeeper) RequireEmployee(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			httputil.Error(w, errors.Unauthenticated("missing bearer token"))
			return
		}

		p, err := g.auth.AuthorizeEmployee(r.Context(), token)
		if err != nil {
			httputil.Error(w, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(principal.WithPrincipal(r.Context(), p)))
	})
}

// RequireAdmin admits only requests carrying a valid admin bearer token
func (g *Gatekeeper) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			httputil.Error(w, errors.Unauthenticated("missing bearer token"))
			return
		}

		p, err := g.auth.AuthorizeAdmin(r.Context(), token)
		if err != nil {
			httputil.Error(w, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(principal.WithPrincipal(r.Context(), p)))
	})
}

// RequireSystem admits only the scheduler/ops credential presented to the
// internal reconciler trigger
func (g *Gatekeeper) RequireSystem(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			httputil.Error(w, errors.Unauthenticated("missing system credential"))
			return
		}

		if g.systemCredentialHash == "" {
			httputil.Error(w, errors.Forbidden("system endpoint disabled"))
			return
		}
		if err := bcrypt.CompareHashAndPassword([]byte(g.systemCredentialHash), []byte(token)); err != nil {
			httputil.Error(w, errors.Unauthenticated("invalid system credential"))
			return
		}

		next.ServeHTTP(w, r.WithContext(principal.WithPrincipal(r.Context(), principal.System())))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
