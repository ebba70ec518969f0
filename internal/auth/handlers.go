package auth

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// LoginRequest represents a login request
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse represents a login response
type LoginResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
	User      *User  `json:"user"`
}

// LoginHandler returns a gin handler that exchanges credentials for a JWT token
func (m *Manager) LoginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		user, err := m.GetUserByUsername(req.Username)
		if err != nil || !m.ValidatePassword(user, req.Password) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}

		if !user.Active {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "user is inactive"})
			return
		}

		token, err := m.CreateJWTToken(user)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create token"})
			return
		}

		c.JSON(http.StatusOK, LoginResponse{
			Token:     token,
			ExpiresAt: time.Now().Add(m.config.JWTExpiry).Format(time.RFC3339),
			User:      user,
		})
	}
}
