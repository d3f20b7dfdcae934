package auth

import (
	"fmt"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"gorm.io/gorm"
)

// RBACModel is the request model used when no model file is configured
const RBACModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && keyMatch2(r.obj, p.obj) && regexMatch(r.act, p.act)
`

// RolePrefix namespaces role codes inside casbin subjects
const RolePrefix = "role_"

// DefaultPolicies grants every known role access to its own session endpoints
// and ADMIN access to the admin surface.
var DefaultPolicies = [][]string{
	{RolePrefix + "ADMIN", "/admin/*", "(GET|POST|PUT|DELETE)"},
	{RolePrefix + "ADMIN", "/auth/me", "GET"},
	{RolePrefix + "HR", "/auth/me", "GET"},
	{RolePrefix + "TRAINER", "/auth/me", "GET"},
	{RolePrefix + "EMPLOYEE", "/auth/me", "GET"},
}

type CasbinService struct{ E *casbin.Enforcer }

// NewCasbinService builds an enforcer backed by the gorm adapter. An empty
// modelPath selects RBACModel.
func NewCasbinService(db *gorm.DB, modelPath string) (*CasbinService, error) {
	adp, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, fmt.Errorf("failed to create casbin adapter: %w", err)
	}
	m, err := loadModel(modelPath)
	if err != nil {
		return nil, err
	}
	e, err := casbin.NewEnforcer(m, adp)
	if err != nil {
		return nil, fmt.Errorf("failed to create casbin enforcer: %w", err)
	}
	if err := e.LoadPolicy(); err != nil {
		return nil, fmt.Errorf("failed to load casbin policy: %w", err)
	}
	return &CasbinService{E: e}, nil
}

// NewMemoryCasbinService builds an enforcer with no persistence, seeded with DefaultPolicies
func NewMemoryCasbinService() (*CasbinService, error) {
	m, err := loadModel("")
	if err != nil {
		return nil, err
	}
	e, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("failed to create casbin enforcer: %w", err)
	}
	svc := &CasbinService{E: e}
	if _, err := svc.SeedDefaults(false); err != nil {
		return nil, err
	}
	return svc, nil
}

// SeedDefaults installs DefaultPolicies when the enforcer has none.
// Reports whether anything was added.
func (s *CasbinService) SeedDefaults(persist bool) (bool, error) {
	policies, err := s.E.GetPolicy()
	if err != nil {
		return false, fmt.Errorf("failed to read casbin policy: %w", err)
	}
	if len(policies) > 0 {
		return false, nil
	}
	if _, err := s.E.AddPolicies(DefaultPolicies); err != nil {
		return false, fmt.Errorf("failed to seed casbin policy: %w", err)
	}
	if persist {
		if err := s.E.SavePolicy(); err != nil {
			return false, fmt.Errorf("failed to save casbin policy: %w", err)
		}
	}
	return true, nil
}

func loadModel(path string) (model.Model, error) {
	if path != "" {
		m, err := model.NewModelFromFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load casbin model %s: %w", path, err)
		}
		return m, nil
	}
	m, err := model.NewModelFromString(RBACModel)
	if err != nil {
		return nil, fmt.Errorf("failed to parse casbin model: %w", err)
	}
	return m, nil
}
