package api

import (
	"fmt"
	"net/http"

	"github.com/asksql/asksql/internal/auth"
)

// requireRole passes when auth is disabled. Admins hold every asker permission.
func requireRole(r *http.Request, role string) error {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		return nil
	}
	if identity.HasRole(role) || identity.HasRole(auth.RoleAdmin) {
		return nil
	}
	return fmt.Errorf("missing required role %q", role)
}
