package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/appointment-booking-api/internal/models"
	"github.com/noah-isme/appointment-booking-api/pkg/response"
)

type policyService interface {
	GetPolicy(ctx context.Context) (*models.OrganizationPolicy, error)
	SetPolicy(ctx context.Context, actor models.Identity, req models.SetPolicyRequest) (*models.PolicyUpdateResult, error)
}

// PolicyHandler exposes the organization working hours and holidays.
type PolicyHandler struct {
	service policyService
}

// NewPolicyHandler constructs the handler.
func NewPolicyHandler(service policyService) *PolicyHandler {
	return &PolicyHandler{service: service}
}

// Get godoc
// @Summary Organization policy
// @Description Working window and upcoming holidays
// @Tags Policy
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /policy [get]
func (h *PolicyHandler) Get(c *gin.Context) {
	policy, err := h.service.GetPolicy(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, policy, nil)
}

// Set godoc
// @Summary Replace organization policy
// @Description Stores the policy and cancels future appointments that no longer fit
// @Tags Policy
// @Accept json
// @Produce json
// @Param payload body models.SetPolicyRequest true "Policy"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /admin/policy [put]
func (h *PolicyHandler) Set(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req models.SetPolicyRequest
	if !bindJSON(c, &req, "invalid policy payload") {
		return
	}
	result, err := h.service.SetPolicy(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
