package tasks

import (
	"encoding/json"
	"fmt"
	"time"

	"sessionledger/config"

	"github.com/hibiken/asynq"
)

// Task types handled by the background worker.
const (
	TypeCompensationResolve = "compensation:resolve"
	TypeBookingReminder     = "booking:reminder"
)

// CompensationPayload names the marker to settle.
type CompensationPayload struct {
	MarkerID string `json:"marker_id"`
}

// ReminderPayload names the booking to remind both parties about.
type ReminderPayload struct {
	BookingID string `json:"booking_id"`
}

// RedisOpt returns the asynq connection options for the queue database.
func RedisOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     config.AppConfig.RedisAddr,
		Password: config.AppConfig.RedisPassword,
		DB:       config.AppConfig.RedisQueueDB,
	}
}

// Client enqueues background tasks. It implements booking.TaskEnqueuer.
type Client struct {
	inner *asynq.Client
}

func NewClient() *Client {
	return &Client{inner: asynq.NewClient(RedisOpt())}
}

func (c *Client) Close() error {
	return c.inner.Close()
}

// EnqueueCompensation schedules a marker for settlement. Compensations run on
// the critical queue with a deep retry budget: they must eventually land.
func (c *Client) EnqueueCompensation(markerID string) error {
	payload, err := json.Marshal(CompensationPayload{MarkerID: markerID})
	if err != nil {
		return err
	}
	task := asynq.NewTask(TypeCompensationResolve, payload)
	_, err = c.inner.Enqueue(task,
		asynq.Queue("critical"),
		asynq.MaxRetry(25),
		asynq.Timeout(30*time.Second))
	if err != nil {
		return fmt.Errorf("failed to enqueue compensation for marker %s: %w", markerID, err)
	}
	return nil
}

// EnqueueReminder schedules a session reminder to fire at the given time.
func (c *Client) EnqueueReminder(bookingID string, fireAt time.Time) error {
	payload, err := json.Marshal(ReminderPayload{BookingID: bookingID})
	if err != nil {
		return err
	}
	task := asynq.NewTask(TypeBookingReminder, payload)
	_, err = c.inner.Enqueue(task,
		asynq.ProcessAt(fireAt),
		asynq.MaxRetry(3),
		asynq.Timeout(30*time.Second))
	if err != nil {
		return fmt.Errorf("failed to enqueue reminder for booking %s: %w", bookingID, err)
	}
	return nil
}
