// internal/api/handlers/auth_handler.go
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"property-delivery-api-server/internal/auth"
	"property-delivery-api-server/internal/fault"
	"property-delivery-api-server/internal/models"
	"property-delivery-api-server/internal/repository"
)

type AuthHandler struct {
	Users  repository.UserStore
	Issuer *auth.Issuer
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.Users.GetByEmail(c.Request.Context(), strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		if fault.IsErrNotFound(err) {
			respondError(c, fault.ErrInvalidCredentials)
			return
		}
		respondError(c, err)
		return
	}
	if user.Status == models.UserDisabled || !auth.CheckPasswordHash(req.Password, user.PasswordHash) {
		respondError(c, fault.ErrInvalidCredentials)
		return
	}

	token, err := h.Issuer.GenerateJWT(user)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token": token,
		"user":  user,
	})
}
