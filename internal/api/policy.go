package api

import (
	"context"
	"net/http"
	"strings"

	"retailpos/m/domain"
	"retailpos/m/internal/apperr"
	"retailpos/m/internal/identity"
)

type Permission string

const (
	PermCatalogRead   Permission = "catalog:read"
	PermCatalogWrite  Permission = "catalog:write"
	PermSalesCreate   Permission = "sales:create"
	PermSalesRead     Permission = "sales:read"
	PermBranchesRead  Permission = "branches:read"
	PermBranchesWrite Permission = "branches:write"
	PermUsersRead     Permission = "users:read"
)

// policy lists what each role may do. A role missing from the table may do
// nothing.
var policy = map[domain.Role]map[Permission]bool{
	domain.RoleStandard: {
		PermCatalogRead:  true,
		PermSalesCreate:  true,
		PermBranchesRead: true,
	},
	domain.RoleManager: {
		PermCatalogRead:   true,
		PermCatalogWrite:  true,
		PermSalesCreate:   true,
		PermSalesRead:     true,
		PermBranchesRead:  true,
		PermBranchesWrite: true,
		PermUsersRead:     true,
	},
}

// Allowed reports whether role holds perm.
func Allowed(role domain.Role, perm Permission) bool {
	return policy[role][perm]
}

// kindForbidden is only produced here; components never decide permissions.
const kindForbidden apperr.Kind = "forbidden"

type ctxKey string

const ctxClaims ctxKey = "claims"

func claimsFrom(ctx context.Context) (*identity.Claims, bool) {
	c, ok := ctx.Value(ctxClaims).(*identity.Claims)
	return c, ok
}

func (h *Handler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" || !strings.HasPrefix(strings.ToLower(header), "bearer ") {
			respondError(w, http.StatusUnauthorized, apperr.KindAuth, "missing bearer token")
			return
		}
		claims, err := h.identity.VerifyToken(strings.TrimSpace(header[len("Bearer "):]))
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		ctx := context.WithValue(r.Context(), ctxClaims, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requirePermission rejects callers whose role lacks perm with 403.
func requirePermission(perm Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := claimsFrom(r.Context())
			if !ok {
				respondError(w, http.StatusUnauthorized, apperr.KindAuth, "missing credentials")
				return
			}
			if !Allowed(claims.Role, perm) {
				respondError(w, http.StatusForbidden, kindForbidden, "insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
