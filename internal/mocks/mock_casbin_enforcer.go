package mocks

import (
	"strings"

	"github.com/you/authsvc/domain"
)

// MockCasbinEnforcer implements the CasbinEnforcer interface for testing
type MockCasbinEnforcer struct {
	EnforceFunc func(rvals ...interface{}) (bool, error)
	policies    [][]string
	calls       [][]interface{}
}

// Compile-time interface compliance verification
var _ domain.CasbinEnforcer = (*MockCasbinEnforcer)(nil)

// NewMockCasbinEnforcer creates a new MockCasbinEnforcer with default behaviors
func NewMockCasbinEnforcer() *MockCasbinEnforcer {
	return &MockCasbinEnforcer{
		policies: [][]string{
			{"role_ADMIN", "/admin/*", "GET|POST|PUT|DELETE"},
			{"role_ADMIN", "/auth/me", "GET"},
			{"role_EMPLOYEE", "/auth/me", "GET"},
		},
	}
}

// Enforce checks if a request should be allowed
func (m *MockCasbinEnforcer) Enforce(rvals ...interface{}) (bool, error) {
	m.calls = append(m.calls, rvals)
	if m.EnforceFunc != nil {
		return m.EnforceFunc(rvals...)
	}

	// Default behavior: exact path or trailing wildcard match against stored policies
	if len(rvals) < 3 {
		return false, nil
	}
	sub, ok1 := rvals[0].(string)
	obj, ok2 := rvals[1].(string)
	act, ok3 := rvals[2].(string)
	if !ok1 || !ok2 || !ok3 {
		return false, nil
	}
	for _, p := range m.policies {
		if len(p) < 3 || p[0] != sub {
			continue
		}
		pathOK := p[1] == obj || (strings.HasSuffix(p[1], "/*") && strings.HasPrefix(obj, strings.TrimSuffix(p[1], "*")))
		if !pathOK {
			continue
		}
		for _, a := range strings.Split(p[2], "|") {
			if a == act {
				return true, nil
			}
		}
	}
	return false, nil
}

// Calls returns the argument lists Enforce was called with
func (m *MockCasbinEnforcer) Calls() [][]interface{} {
	return m.calls
}

// GetPolicy returns a copy of the stored policies
func (m *MockCasbinEnforcer) GetPolicy() ([][]string, error) {
	out := make([][]string, len(m.policies))
	for i, policy := range m.policies {
		out[i] = append([]string(nil), policy...)
	}
	return out, nil
}

// SetPolicies sets the internal policies (test helper)
func (m *MockCasbinEnforcer) SetPolicies(policies [][]string) {
	m.policies = make([][]string, len(policies))
	for i, policy := range policies {
		m.policies[i] = make([]string, len(policy))
		copy(m.policies[i], policy)
	}
}
