package handlers

import (
	"net/http"
	"time"

	"sessionledger/middleware"
	"sessionledger/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// GetDayAvailability returns a provider's open time blocks for one day.
// The date query parameter is interpreted in the provider's timezone.
func GetDayAvailability(c *gin.Context) {
	providerID := c.Param("providerID")
	day, err := time.Parse("2006-01-02", c.Query("date"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be formatted YYYY-MM-DD"})
		return
	}

	intervals, err := AvailabilityService.OpenIntervals(c.Request.Context(), providerID, day)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"date": day.Format("2006-01-02"), "intervals": intervals})
}

// UpsertAvailabilityRule creates or replaces one of the caller's weekly rules.
func UpsertAvailabilityRule(c *gin.Context) {
	var input struct {
		ID          string `json:"id"`
		Weekday     int    `json:"weekday"`
		StartMinute int    `json:"start_minute"`
		EndMinute   int    `json:"end_minute"`
		IsActive    *bool  `json:"is_active"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input", "details": err.Error()})
		return
	}

	active := true
	if input.IsActive != nil {
		active = *input.IsActive
	}
	if input.ID == "" {
		input.ID = uuid.New().String()
	}

	rule := &models.AvailabilityRule{
		ID:          input.ID,
		ProviderID:  middleware.AuthenticatedUserID(c),
		Weekday:     time.Weekday(input.Weekday),
		StartMinute: input.StartMinute,
		EndMinute:   input.EndMinute,
		IsActive:    active,
	}
	if err := AvailabilityService.UpsertRule(c.Request.Context(), rule); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rule)
}

// DeleteAvailabilityRule removes one of the caller's weekly rules.
func DeleteAvailabilityRule(c *gin.Context) {
	if err := AvailabilityService.DeleteRule(c.Request.Context(), middleware.AuthenticatedUserID(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "rule deleted"})
}

// ListAvailabilityRules returns the caller's weekly rules.
func ListAvailabilityRules(c *gin.Context) {
	rules, err := AvailabilityService.ListRules(c.Request.Context(), middleware.AuthenticatedUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rules": rules})
}

// AddAvailabilityException records a date-specific opening or block.
func AddAvailabilityException(c *gin.Context) {
	var input struct {
		Date        string `json:"date" binding:"required"`
		StartMinute int    `json:"start_minute"`
		EndMinute   int    `json:"end_minute"`
		IsAvailable bool   `json:"is_available"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input", "details": err.Error()})
		return
	}

	exc := &models.AvailabilityException{
		ID:          uuid.New().String(),
		ProviderID:  middleware.AuthenticatedUserID(c),
		Date:        input.Date,
		StartMinute: input.StartMinute,
		EndMinute:   input.EndMinute,
		IsAvailable: input.IsAvailable,
	}
	if err := AvailabilityService.AddException(c.Request.Context(), exc); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, exc)
}

// DeleteAvailabilityException removes a date-specific override.
func DeleteAvailabilityException(c *gin.Context) {
	if err := AvailabilityService.DeleteException(c.Request.Context(), middleware.AuthenticatedUserID(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "exception deleted"})
}

// ListAvailabilityExceptions returns the caller's exceptions.
func ListAvailabilityExceptions(c *gin.Context) {
	excs, err := AvailabilityService.ListExceptions(c.Request.Context(), middleware.AuthenticatedUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"exceptions": excs})
}
