package middleware

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/deptconnect/deptconnect-api/internal/models"
	"github.com/deptconnect/deptconnect-api/internal/service"
	appErrors "github.com/deptconnect/deptconnect-api/pkg/errors"
	"github.com/deptconnect/deptconnect-api/pkg/response"
)

// OwnershipFinder resolves the owning user of a resource instance.
// Implementations return sql.ErrNoRows when the id does not exist.
type OwnershipFinder interface {
	FindOwner(ctx context.Context, id string) (string, error)
}

// ResourceRegistry maps resource types to their ownership finders. The set
// is closed: guarding a route against an unregistered resource is a
// programming error and fails at startup, not per request.
type ResourceRegistry struct {
	finders map[models.ResourceType]OwnershipFinder
	metrics *service.MetricsService
}

// NewResourceRegistry builds an empty registry.
func NewResourceRegistry() *ResourceRegistry {
	return &ResourceRegistry{finders: make(map[models.ResourceType]OwnershipFinder)}
}

// WithMetrics makes guards built from this registry count their decisions.
func (r *ResourceRegistry) WithMetrics(m *service.MetricsService) *ResourceRegistry {
	r.metrics = m
	return r
}

// Register binds a finder to a resource type.
func (r *ResourceRegistry) Register(resource models.ResourceType, finder OwnershipFinder) {
	r.finders[resource] = finder
}

// MustFinder returns the finder for a resource type, panicking when the
// resource was never registered. Called during route construction so a
// miswired route crashes the process at boot.
func (r *ResourceRegistry) MustFinder(resource models.ResourceType) OwnershipFinder {
	finder, ok := r.finders[resource]
	if !ok {
		panic(fmt.Sprintf("no ownership finder registered for resource %q", resource))
	}
	return finder
}

// GuardOptions declares the access rule for a guarded route.
type GuardOptions struct {
	// Roles a caller must hold. When Own is set the role alone is not
	// enough; the caller must also own the target resource.
	Roles []models.UserRole
	// Own requires the caller to be the resource owner in addition to
	// holding one of Roles.
	Own bool
	// Override roles bypass the ownership requirement entirely.
	Override []models.UserRole
}

// Decide is the pure access rule. When owner scoping is off, holding a
// required or override role is sufficient. When it is on, a required role
// only grants access to the caller's own resource; override roles are
// exempt from the ownership check.
func Decide(principal models.Principal, opts GuardOptions, ownerID string) bool {
	if hasRole(opts.Override, principal.Role) {
		return true
	}
	if !hasRole(opts.Roles, principal.Role) {
		return false
	}
	if !opts.Own {
		return true
	}
	return ownerID != "" && principal.SubjectID == ownerID
}

func hasRole(roles []models.UserRole, role models.UserRole) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

// Guard enforces the access rule on a route. Failures are ordered: a
// missing session is 401, a missing resource is 404, and an authenticated
// caller who fails the rule gets 403. The 404 comes before the 403 so a
// caller without access cannot probe which ids exist.
func Guard(registry *ResourceRegistry, resource models.ResourceType, opts GuardOptions) gin.HandlerFunc {
	var finder OwnershipFinder
	if opts.Own {
		finder = registry.MustFinder(resource)
	}

	return func(c *gin.Context) {
		principal, ok := CurrentPrincipal(c)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		ownerID := ""
		if finder != nil {
			if id := c.Param("id"); id != "" {
				owner, err := finder.FindOwner(c.Request.Context(), id)
				if err != nil {
					if errors.Is(err, sql.ErrNoRows) {
						response.Error(c, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("%s not found", resource)))
					} else {
						response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve resource owner"))
					}
					c.Abort()
					return
				}
				ownerID = owner
			}
		}

		allowed := Decide(principal, opts, ownerID)
		registry.metrics.RecordGuardDecision(string(resource), allowed)
		if !allowed {
			response.Error(c, appErrors.ErrForbidden)
			c.Abort()
			return
		}

		c.Next()
	}
}

// RequireRoles guards a route on role membership alone.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := CurrentPrincipal(c)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if !hasRole(roles, principal.Role) {
			response.Error(c, appErrors.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}
