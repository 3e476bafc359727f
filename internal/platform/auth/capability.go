package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/example/bunnyvideo/internal/platform/api"
)

// Capability is a named permission granted to roles.
type Capability string

const (
	// CapOverrideCompletion allows forcing a learner's completion state.
	CapOverrideCompletion Capability = "completion:override"
	// CapConfigureVideo allows changing a video's watch requirement.
	CapConfigureVideo Capability = "video:configure"
	// CapReadAnyCompletion allows reading completion for users other than the caller.
	CapReadAnyCompletion Capability = "completion:read_any"
	// CapReconcile allows triggering a drift reconciliation pass.
	CapReconcile Capability = "completion:reconcile"
)

var roleCapabilities = map[string][]Capability{
	"admin":          {CapOverrideCompletion, CapConfigureVideo, CapReadAnyCompletion, CapReconcile},
	"manager":        {CapOverrideCompletion, CapConfigureVideo, CapReadAnyCompletion},
	"editingteacher": {CapOverrideCompletion, CapConfigureVideo, CapReadAnyCompletion},
	"teacher":        {CapOverrideCompletion, CapReadAnyCompletion},
	"engine":         {CapReadAnyCompletion, CapReconcile},
}

// RoleHas reports whether role is granted c. Role matching is case-insensitive.
func RoleHas(role string, c Capability) bool {
	for _, granted := range roleCapabilities[strings.ToLower(strings.TrimSpace(role))] {
		if granted == c {
			return true
		}
	}
	return false
}

// Can reports whether the caller in ctx holds c.
func Can(ctx context.Context, c Capability) bool {
	role, _ := RoleFromContext(ctx)
	return RoleHas(role, c)
}

// RequireCapability allows the request only if RequireUser injected a role holding c.
func RequireCapability(c Capability) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !Can(r.Context(), c) {
				api.Forbidden(w, "PERMISSION_DENIED", "missing capability "+string(c), requestID(w))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
