// Package authz enforces the role permissions of the API with casbin. Roles inherit: a
// department head can do what a student can, and an admin can do everything.
package authz

import (
	"fmt"
	"net/http"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"

	"github.com/campus-merch/api/internal/platform/httpx"
	"github.com/campus-merch/api/internal/platform/requestctx"
)

// Resources guarded by the policy.
const (
	ResourceProducts      = "products"
	ResourceOrders        = "orders"
	ResourcePayments      = "payments"
	ResourceGroupOrders   = "group_orders"
	ResourceDistributions = "distributions"
	ResourceReviews       = "reviews"
	ResourceStats         = "stats"
)

// Actions granted by the policy.
const (
	ActionRead     = "read"
	ActionCreate   = "create"
	ActionManage   = "manage"
	ActionModerate = "moderate"
	ActionRefund   = "refund"
	ActionDeliver  = "deliver"
)

const rbacModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && (p.obj == "*" || r.obj == p.obj) && (p.act == "*" || r.act == p.act)
`

var defaultPolicies = [][]string{
	{"student", ResourceProducts, ActionRead},
	{"student", ResourceOrders, ActionCreate},
	{"student", ResourceOrders, ActionRead},
	{"student", ResourcePayments, ActionCreate},
	{"student", ResourceGroupOrders, ActionRead},
	{"student", ResourceReviews, ActionCreate},
	{"department_head", ResourceGroupOrders, ActionCreate},
	{"department_head", ResourceGroupOrders, ActionManage},
	{"distributor", ResourceProducts, ActionRead},
	{"distributor", ResourceDistributions, ActionRead},
	{"distributor", ResourceDistributions, ActionDeliver},
	{"admin", "*", "*"},
}

var defaultGroupings = [][]string{
	{"department_head", "student"},
}

// Enforcer answers whether a role may perform an action on a resource.
type Enforcer struct {
	enforcer *casbin.SyncedEnforcer
}

// New builds the enforcer with the built-in policy.
func New() (*Enforcer, error) {
	m, err := model.NewModelFromString(rbacModel)
	if err != nil {
		return nil, fmt.Errorf("authz: parse model: %w", err)
	}
	e, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("authz: create enforcer: %w", err)
	}
	if _, err := e.AddPolicies(defaultPolicies); err != nil {
		return nil, fmt.Errorf("authz: load policies: %w", err)
	}
	if _, err := e.AddGroupingPolicies(defaultGroupings); err != nil {
		return nil, fmt.Errorf("authz: load role inheritance: %w", err)
	}
	return &Enforcer{enforcer: e}, nil
}

// Allowed reports whether role may perform action on resource. Evaluation errors deny.
func (e *Enforcer) Allowed(role, resource, action string) bool {
	if e == nil || role == "" {
		return false
	}
	ok, err := e.enforcer.Enforce(role, resource, action)
	return err == nil && ok
}

// Require responds 403 unless the authenticated actor's role is allowed the action. It must run
// after the authentication middleware.
func (e *Enforcer) Require(resource, action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			actor, ok := requestctx.ActorFrom(ctx)
			if !ok {
				httpx.WriteError(ctx, w, httpx.Unauthenticated("authentication required"))
				return
			}
			if !e.Allowed(actor.Role, resource, action) {
				httpx.WriteError(ctx, w, httpx.Forbidden(fmt.Sprintf("role %s may not %s %s", actor.Role, action, resource)))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
