package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// PolicyLister is the read side of the casbin enforcer
type PolicyLister interface {
	GetPolicy() ([][]string, error)
}

// PolicyHandlers exposes the active role policy to administrators
type PolicyHandlers struct {
	policies PolicyLister
	logger   *slog.Logger
}

// NewPolicyHandlers creates new policy handlers
func NewPolicyHandlers(policies PolicyLister, logger *slog.Logger) *PolicyHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &PolicyHandlers{policies: policies, logger: logger}
}

type policyRule struct {
	Sub string `json:"sub"`
	Obj string `json:"obj"`
	Act string `json:"act"`
}

// List returns every policy rule
func (h *PolicyHandlers) List(c *gin.Context) {
	policies, err := h.policies.GetPolicy()
	if err != nil {
		h.logger.ErrorContext(c.Request.Context(), "failed to read policy", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read policy"})
		return
	}

	rules := make([]policyRule, 0, len(policies))
	for _, p := range policies {
		if len(p) < 3 {
			continue
		}
		rules = append(rules, policyRule{Sub: p[0], Obj: p[1], Act: p[2]})
	}
	c.JSON(http.StatusOK, gin.H{"data": rules})
}
