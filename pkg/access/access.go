package access

import (
	"fmt"

	"licensing-controlplane/pkg/config"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("access", fx.Provide(NewPolicy))

const (
	ObjectLicence          = "licence"
	ActIssueWithoutPayment = "issue_without_payment"
)

const defaultModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && r.obj == p.obj && r.act == p.act
`

// DefaultPolicies grant the elevated roles the right to issue before payment is recorded.
var DefaultPolicies = [][]string{
	{"council_admin", ObjectLicence, ActIssueWithoutPayment},
	{"system_admin", ObjectLicence, ActIssueWithoutPayment},
}

// Policy answers privilege questions for the caller's role.
type Policy struct {
	enforcer *casbin.Enforcer
}

func NewPolicy(cfg *config.Config) (*Policy, error) {
	if cfg.AccessControl.Model != "" && cfg.AccessControl.Policy != "" {
		e, err := casbin.NewEnforcer(cfg.AccessControl.Model, cfg.AccessControl.Policy)
		if err != nil {
			return nil, fmt.Errorf("load access control: %w", err)
		}
		return &Policy{enforcer: e}, nil
	}
	return NewDefaultPolicy()
}

// NewDefaultPolicy builds an in-memory policy holding DefaultPolicies.
func NewDefaultPolicy() (*Policy, error) {
	m, err := model.NewModelFromString(defaultModel)
	if err != nil {
		return nil, fmt.Errorf("parse access model: %w", err)
	}

	e, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("create enforcer: %w", err)
	}

	for _, p := range DefaultPolicies {
		if _, err := e.AddPolicy(p[0], p[1], p[2]); err != nil {
			return nil, fmt.Errorf("add policy: %w", err)
		}
	}

	return &Policy{enforcer: e}, nil
}

// CanBypassPayment reports whether role may issue a licence without a completed payment.
func (p *Policy) CanBypassPayment(role string) bool {
	if role == "" {
		return false
	}
	ok, err := p.enforcer.Enforce(role, ObjectLicence, ActIssueWithoutPayment)
	if err != nil {
		zap.L().Warn("access enforcement failed", zap.String("role", role), zap.Error(err))
		return false
	}
	return ok
}
