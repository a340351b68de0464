// Package authz answers the consumer-facing authorization question: does this
// principal hold a permission implying the requested one?
//
// The Checker combines a principal's resolved permission set (direct grants
// plus permissions attached to the principal's roles, resolved through
// permcache) with wildcard implication from pkg/wildcard. Checks return a
// tri-state decision so callers can distinguish "log in" from "forbidden":
//
//	checker := authz.NewChecker(registrar)
//
//	res, err := checker.HasAnyPermission(ctx, principal, []string{"posts.edit", "posts.delete"}, "web")
//	if err != nil {
//	    // infrastructure failure: fail closed
//	}
//	switch res.Decision {
//	case authz.DecisionGranted:
//	case authz.DecisionUnauthenticated: // 401
//	case authz.DecisionDenied:          // 403
//	}
//
// Before-hooks run ahead of wildcard matching and compose super-admin bypass
// or ban rules without ambient global interception:
//
//	checker := authz.NewChecker(registrar,
//	    authz.WithHook(func(ctx context.Context, p *authz.Principal, permission string) authz.Effect {
//	        if p.HasRole("super-admin") {
//	            return authz.EffectAllow
//	        }
//	        return authz.EffectDefer
//	    }),
//	)
//
// RequirePermission wraps the checker as net/http middleware for applications
// that gate routes on permission strings.
package authz
