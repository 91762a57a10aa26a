package notification

import (
	"context"
	"fmt"

	userRepo "sessionledger/database/repository/user"
	"sessionledger/utils"

	"firebase.google.com/go/v4/messaging"
	"go.uber.org/zap"
)

// Service delivers push notifications for booking lifecycle events. Delivery
// is best effort, a failed push never fails the operation that triggered it.
type Service interface {
	NotifyUser(ctx context.Context, userID, eventType string, data map[string]string) error
}

// Booking event types.
const (
	EventBookingRequested = "booking_requested"
	EventBookingConfirmed = "booking_confirmed"
	EventBookingCancelled = "booking_cancelled"
	EventBookingCompleted = "booking_completed"
	EventBookingReminder  = "booking_reminder"
	EventCreditsLow       = "credits_low"
)

// FCMNotificationService sends notifications through Firebase Cloud
// Messaging using the user's registered device token.
type FCMNotificationService struct {
	Users  userRepo.UserRepository
	Logger *zap.Logger
}

func NewFCMNotificationService(users userRepo.UserRepository, logger *zap.Logger) *FCMNotificationService {
	return &FCMNotificationService{Users: users, Logger: logger}
}

func messageContent(eventType string, data map[string]string) (title, body string) {
	switch eventType {
	case EventBookingRequested:
		return "New booking request", "You have a new session request awaiting confirmation."
	case EventBookingConfirmed:
		return "Booking confirmed", "Your session has been confirmed."
	case EventBookingCancelled:
		return "Booking cancelled", fmt.Sprintf("Your session was cancelled: %s", data["reason"])
	case EventBookingCompleted:
		return "Session completed", "Your session has been marked complete. Leave feedback when you are ready."
	case EventBookingReminder:
		return "Upcoming session", "You have a session coming up soon."
	case EventCreditsLow:
		return "Credits running low", "Your credit balance is low. Top up to keep booking sessions."
	default:
		return "Notification", "You have a new update."
	}
}

// NotifyUser pushes one event to the user's device. Users without a device
// token, and deployments without Firebase credentials, are skipped silently.
func (s *FCMNotificationService) NotifyUser(ctx context.Context, userID, eventType string, data map[string]string) error {
	if utils.FCMClient == nil {
		return nil
	}

	user, err := s.Users.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load user %s for notification: %w", userID, err)
	}
	if user.FCMToken == "" {
		return nil
	}

	title, body := messageContent(eventType, data)
	payload := map[string]string{"event": eventType}
	for k, v := range data {
		payload[k] = v
	}

	msg := &messaging.Message{
		Token:        user.FCMToken,
		Notification: &messaging.Notification{Title: title, Body: body},
		Data:         payload,
	}
	if _, err := utils.FCMClient.Send(ctx, msg); err != nil {
		return fmt.Errorf("failed to send %s push to user %s: %w", eventType, userID, err)
	}

	s.Logger.Debug("push notification sent",
		zap.String("userID", userID),
		zap.String("event", eventType))
	return nil
}
