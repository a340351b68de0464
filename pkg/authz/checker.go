package authz

import (
	"context"
	"log/slog"
	"slices"

	"github.com/dmitrymomot/authzkit/pkg/permcache"
	"github.com/dmitrymomot/authzkit/pkg/wildcard"
)

// Principal is an authenticated subject. The zero Guard marks an
// unauthenticated principal; checks against it short-circuit to
// DecisionUnauthenticated before any matching.
type Principal struct {
	ID    string
	Guard string

	// Roles are the names of roles held by the principal.
	Roles []string

	// Permissions are wildcard permission strings granted directly, bypassing
	// roles.
	Permissions []string
}

// HasRole reports whether the principal holds the named role.
func (p *Principal) HasRole(name string) bool {
	return p != nil && slices.Contains(p.Roles, name)
}

// Decision is the tri-state outcome of an authorization check.
type Decision int

const (
	// DecisionDenied means the principal is authenticated but no granted
	// permission implies a requested one.
	DecisionDenied Decision = iota
	// DecisionGranted means at least the required permissions are implied.
	DecisionGranted
	// DecisionUnauthenticated means no principal was authenticated for the
	// requested guard; reported before any matching.
	DecisionUnauthenticated
)

// String implements fmt.Stringer.
func (d Decision) String() string {
	switch d {
	case DecisionGranted:
		return "granted"
	case DecisionUnauthenticated:
		return "unauthenticated"
	default:
		return "denied"
	}
}

// Result carries the decision plus diagnostics: the permission names that
// were checked and, when granted, the granted pattern that matched.
type Result struct {
	Decision  Decision
	Checked   []string
	MatchedBy string
}

// Effect is a before-hook verdict.
type Effect int

const (
	// EffectDefer passes the name on to wildcard matching.
	EffectDefer Effect = iota
	// EffectAllow grants the name without matching (super-admin bypass).
	EffectAllow
	// EffectDeny forbids the name without matching (ban rules). Other
	// requested names may still match.
	EffectDeny
)

// Hook is a policy step evaluated before wildcard matching for each requested
// permission name.
type Hook func(ctx context.Context, p *Principal, permission string) Effect

// CheckerOption configures a Checker.
type CheckerOption func(*Checker)

// WithHook appends a before-hook. Hooks run in registration order; the first
// non-defer effect wins.
func WithHook(hook Hook) CheckerOption {
	return func(c *Checker) {
		if hook != nil {
			c.hooks = append(c.hooks, hook)
		}
	}
}

// WithCheckerLogger sets the logger used for skipped malformed patterns.
func WithCheckerLogger(log *slog.Logger) CheckerOption {
	return func(c *Checker) {
		if log != nil {
			c.log = log
		}
	}
}

// Checker evaluates permission checks against the cached permission graph.
// Safe for concurrent use.
type Checker struct {
	registrar *permcache.Registrar
	hooks     []Hook
	log       *slog.Logger
}

// NewChecker creates a Checker over the given registrar.
func NewChecker(registrar *permcache.Registrar, opts ...CheckerOption) *Checker {
	c := &Checker{registrar: registrar, log: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HasAnyPermission reports whether the principal holds any permission
// implying one of the requested names within the guard (OR semantics).
//
// An unauthenticated principal (nil, or authenticated against a different
// guard) yields DecisionUnauthenticated without any matching. A malformed
// requested name is a wildcard.ErrNotProperlyFormatted error. Infrastructure
// failures propagate; the check never converts an error into a grant.
func (c *Checker) HasAnyPermission(ctx context.Context, p *Principal, names []string, guard string) (Result, error) {
	checked := slices.Clone(names)

	if !authenticated(p, guard) {
		return Result{Decision: DecisionUnauthenticated, Checked: checked}, nil
	}

	granted, err := c.grantedPermissions(ctx, p, guard)
	if err != nil {
		return Result{Decision: DecisionDenied, Checked: checked}, err
	}

	for _, name := range names {
		matched, matchedBy, err := c.check(ctx, p, name, granted)
		if err != nil {
			return Result{Decision: DecisionDenied, Checked: checked}, err
		}
		if matched {
			return Result{Decision: DecisionGranted, Checked: checked, MatchedBy: matchedBy}, nil
		}
	}

	return Result{Decision: DecisionDenied, Checked: checked}, nil
}

// HasAllPermissions is the AND variant: every requested name must be implied.
func (c *Checker) HasAllPermissions(ctx context.Context, p *Principal, names []string, guard string) (Result, error) {
	checked := slices.Clone(names)

	if !authenticated(p, guard) {
		return Result{Decision: DecisionUnauthenticated, Checked: checked}, nil
	}

	granted, err := c.grantedPermissions(ctx, p, guard)
	if err != nil {
		return Result{Decision: DecisionDenied, Checked: checked}, err
	}

	for _, name := range names {
		matched, _, err := c.check(ctx, p, name, granted)
		if err != nil {
			return Result{Decision: DecisionDenied, Checked: checked}, err
		}
		if !matched {
			return Result{Decision: DecisionDenied, Checked: checked}, nil
		}
	}

	return Result{Decision: DecisionGranted, Checked: checked}, nil
}

// check evaluates one requested name: hooks first, then wildcard matching
// against the granted set.
func (c *Checker) check(ctx context.Context, p *Principal, name string, granted []string) (bool, string, error) {
	for _, hook := range c.hooks {
		switch hook(ctx, p, name) {
		case EffectAllow:
			return true, name, nil
		case EffectDeny:
			return false, "", nil
		}
	}

	requested, err := wildcard.New(name)
	if err != nil {
		return false, "", err
	}

	for _, pattern := range granted {
		grantedPerm, err := wildcard.New(pattern)
		if err != nil {
			// A malformed stored pattern must not grant anything.
			c.log.DebugContext(ctx, "skipping malformed granted permission",
				slog.String("pattern", pattern), slog.Any("error", err))
			continue
		}
		if grantedPerm.Implies(requested) {
			return true, pattern, nil
		}
	}
	return false, "", nil
}

// grantedPermissions resolves the principal's full permission set for the
// guard: direct grants plus the names of cached permissions attached to any
// held role, honoring the registrar's team scope against the role's team.
func (c *Checker) grantedPermissions(ctx context.Context, p *Principal, guard string) ([]string, error) {
	granted := slices.Clone(p.Permissions)

	if len(p.Roles) == 0 {
		return granted, nil
	}

	permissions, err := c.registrar.GetPermissions(ctx, map[string]any{"guard": guard})
	if err != nil {
		return nil, err
	}

	teamID := c.registrar.TeamID()
	for _, permission := range permissions {
		for _, role := range permission.Roles {
			if role.Guard != guard || !p.HasRole(role.Name) {
				continue
			}
			if !teamMatches(role, teamID) {
				continue
			}
			granted = append(granted, permission.Name)
			break
		}
	}
	return granted, nil
}

// teamMatches applies team scoping: global roles always apply; team-bound
// roles only within the matching scope.
func teamMatches(role *permcache.Role, teamID string) bool {
	if role.TeamID == nil {
		return true
	}
	return teamID != "" && *role.TeamID == teamID
}

func authenticated(p *Principal, guard string) bool {
	return p != nil && p.Guard != "" && p.Guard == guard
}
