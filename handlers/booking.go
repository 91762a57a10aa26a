package handlers

import (
	"net/http"
	"time"

	"sessionledger/middleware"
	"sessionledger/services/booking"

	"github.com/gin-gonic/gin"
)

// RequestBooking creates a pending booking with a provider.
func RequestBooking(c *gin.Context) {
	var input struct {
		ProviderID      string    `json:"provider_id" binding:"required"`
		StartTime       time.Time `json:"start_time" binding:"required"`
		DurationMinutes int       `json:"duration_minutes" binding:"required"`
		Notes           string    `json:"notes"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input", "details": err.Error()})
		return
	}

	b, err := BookingService.RequestBooking(c.Request.Context(), booking.RequestInput{
		ProviderID:      input.ProviderID,
		RequesterID:     middleware.AuthenticatedUserID(c),
		StartTime:       input.StartTime,
		DurationMinutes: input.DurationMinutes,
		Notes:           input.Notes,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, b)
}

// ConfirmBooking accepts a pending request (provider only). The provider may
// supply their own meeting_ref; otherwise a room is provisioned.
func ConfirmBooking(c *gin.Context) {
	var input struct {
		MeetingRef string `json:"meeting_ref"`
	}
	if err := c.ShouldBindJSON(&input); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input", "details": err.Error()})
		return
	}
	b, err := BookingService.ConfirmBooking(c.Request.Context(), c.Param("id"), middleware.AuthenticatedUserID(c), input.MeetingRef)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

// CancelBooking cancels a pending or confirmed booking. The provider may
// pass reason "no_show" to record a missed session.
func CancelBooking(c *gin.Context) {
	var input struct {
		Reason string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&input); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input", "details": err.Error()})
		return
	}

	b, err := BookingService.CancelBooking(c.Request.Context(), c.Param("id"), middleware.AuthenticatedUserID(c), input.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

// CompleteBooking marks a session delivered (provider only).
func CompleteBooking(c *gin.Context) {
	var input struct {
		RecordingRef string `json:"recording_ref"`
	}
	if err := c.ShouldBindJSON(&input); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input", "details": err.Error()})
		return
	}

	b, err := BookingService.CompleteBooking(c.Request.Context(), c.Param("id"), middleware.AuthenticatedUserID(c), input.RecordingRef)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

// SubmitFeedback records a write-once rating for a completed session.
func SubmitFeedback(c *gin.Context) {
	var input struct {
		Rating  int    `json:"rating" binding:"required"`
		Comment string `json:"comment"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input", "details": err.Error()})
		return
	}

	b, err := BookingService.SubmitFeedback(c.Request.Context(), c.Param("id"), middleware.AuthenticatedUserID(c), input.Rating, input.Comment)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

// GetBooking returns one booking visible to the caller.
func GetBooking(c *gin.Context) {
	b, err := BookingService.GetBooking(c.Request.Context(), c.Param("id"), middleware.AuthenticatedUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

// ListBookings returns every booking the caller participates in.
func ListBookings(c *gin.Context) {
	bookings, err := BookingService.ListBookings(c.Request.Context(), middleware.AuthenticatedUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bookings": bookings})
}
