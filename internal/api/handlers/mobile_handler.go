// internal/api/handlers/mobile_handler.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"property-delivery-api-server/internal/api/middleware"
	"property-delivery-api-server/internal/delivery"
	"property-delivery-api-server/internal/fault"
)

// MobileHandler serves the tenant app. Every answer carries success.
type MobileHandler struct {
	Workflow *delivery.Workflow
}

func (h *MobileHandler) Register(c *gin.Context) {
	var req delivery.RegisterInput
	if err := c.ShouldBindJSON(&req); err != nil {
		respondMobile(c, fault.InvalidError(err.Error()), nil)
		return
	}

	d, err := h.Workflow.RegisterMobile(c.Request.Context(), middleware.CurrentUser(c), req)
	respondMobile(c, err, gin.H{"delivery": d})
}

func (h *MobileHandler) ConfirmReceipt(c *gin.Context) {
	d, err := h.Workflow.ConfirmReceipt(c.Request.Context(), middleware.CurrentUser(c), c.Param("id"))
	respondMobile(c, err, gin.H{"delivery": d})
}

func (h *MobileHandler) ReportIssue(c *gin.Context) {
	var req delivery.IssueInput
	if err := c.ShouldBindJSON(&req); err != nil {
		respondMobile(c, fault.InvalidError(err.Error()), nil)
		return
	}

	d, err := h.Workflow.ReportIssue(c.Request.Context(), middleware.CurrentUser(c), c.Param("id"), req)
	respondMobile(c, err, gin.H{"delivery": d})
}

func (h *MobileHandler) GetByHash(c *gin.Context) {
	d, err := h.Workflow.GetByPIIHash(c.Request.Context(), middleware.CurrentUser(c), c.Param("hash"))
	respondMobile(c, err, gin.H{"delivery": d})
}
