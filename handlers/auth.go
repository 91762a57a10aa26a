package handlers

import (
	"net/http"
	"strings"

	"sessionledger/middleware"
	"sessionledger/services/user"

	"github.com/gin-gonic/gin"
)

// Register creates a new account and returns a session token.
func Register(c *gin.Context) {
	var input struct {
		Name     string `json:"name"`
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
		Timezone string `json:"timezone"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input", "details": err.Error()})
		return
	}

	res, err := UserService.Register(c.Request.Context(), user.RegisterInput{
		Name:     input.Name,
		Email:    input.Email,
		Password: input.Password,
		Timezone: input.Timezone,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"user": res.User, "token": res.Token})
}

// Login authenticates an existing account.
func Login(c *gin.Context) {
	var input struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input", "details": err.Error()})
		return
	}

	res, err := UserService.Authenticate(c.Request.Context(), input.Email, input.Password)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": res.User, "token": res.Token})
}

// Logout revokes the caller's token.
func Logout(c *gin.Context) {
	token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	if err := UserService.Logout(c.Request.Context(), token); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// GetProfile returns the authenticated user's profile.
func GetProfile(c *gin.Context) {
	u, err := UserService.GetByID(c.Request.Context(), middleware.AuthenticatedUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

// UpdateDeviceToken stores the caller's push notification token.
func UpdateDeviceToken(c *gin.Context) {
	var input struct {
		Token string `json:"token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input", "details": err.Error()})
		return
	}
	if err := UserService.UpdateFCMToken(c.Request.Context(), middleware.AuthenticatedUserID(c), input.Token); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "device token updated"})
}
