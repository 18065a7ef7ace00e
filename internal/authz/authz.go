package authz

import (
	"fmt"

	"github.com/casbin/casbin/v2"
	casbinmodel "github.com/casbin/casbin/v2/model"

	"bpark-backend/internal/model"
)

// RoleAnonymous is the subject used for connections that have not logged in.
const RoleAnonymous = "anonymous"

const modelText = `
[request_definition]
r = sub, act

[policy_definition]
p = sub, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && (r.act == p.act || p.act == "*")
`

var policies = [][]string{
	{RoleAnonymous, "LOGIN"},
	{string(model.RoleUser), "LOGIN"},
	{string(model.RoleUser), "LOGOUT"},
	{string(model.RoleUser), "DEPOSIT"},
	{string(model.RoleUser), "PICKUP"},
	{string(model.RoleUser), "EXTEND"},
	{string(model.RoleUser), "RESERVE"},
	{string(model.RoleUser), "EDIT_USER"},
	{string(model.RoleUser), "USER_HISTORY"},
	{string(model.RoleUser), "RECOVER"},
	{string(model.RoleAdmin), "CREATE"},
	{string(model.RoleAdmin), "CURRENT_PARKING"},
	{string(model.RoleAdmin), "REPORT"},
}

// Authorizer decides which role may issue which protocol command.
type Authorizer struct {
	enforcer *casbin.Enforcer
}

// New builds the role/command policy. Admins inherit every user permission.
func New() (*Authorizer, error) {
	m, err := casbinmodel.NewModelFromString(modelText)
	if err != nil {
		return nil, fmt.Errorf("failed to parse authorization model: %w", err)
	}
	e, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize enforcer: %w", err)
	}
	if _, err := e.AddPolicies(policies); err != nil {
		return nil, fmt.Errorf("failed to load policies: %w", err)
	}
	if _, err := e.AddGroupingPolicy(string(model.RoleAdmin), string(model.RoleUser)); err != nil {
		return nil, fmt.Errorf("failed to load role hierarchy: %w", err)
	}
	return &Authorizer{enforcer: e}, nil
}

// Allowed reports whether role may issue command.
func (a *Authorizer) Allowed(role, command string) (bool, error) {
	ok, err := a.enforcer.Enforce(role, command)
	if err != nil {
		return false, fmt.Errorf("authorization check failed: %w", err)
	}
	return ok, nil
}

// CanActFor reports whether the caller may act on behalf of targetID. Admins
// may act for anyone; everyone else only for themselves.
func CanActFor(role model.Role, callerID, targetID int64) bool {
	return role == model.RoleAdmin || callerID == targetID
}
