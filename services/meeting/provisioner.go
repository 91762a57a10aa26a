package meeting

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Provisioner creates the meeting link attached to a booking when the
// provider confirms it.
type Provisioner interface {
	Provision(ctx context.Context, bookingID string) (string, error)
}

// RoomProvisioner issues links to the built-in meeting room service. Rooms
// are addressed by an unguessable identifier, so the link doubles as the
// access credential for both parties.
type RoomProvisioner struct {
	BaseURL string
}

func NewRoomProvisioner(baseURL string) *RoomProvisioner {
	if baseURL == "" {
		baseURL = "https://meet.sessionledger.app"
	}
	return &RoomProvisioner{BaseURL: baseURL}
}

func (p *RoomProvisioner) Provision(_ context.Context, bookingID string) (string, error) {
	if bookingID == "" {
		return "", fmt.Errorf("cannot provision a meeting room without a booking ID")
	}
	return fmt.Sprintf("%s/room/%s", p.BaseURL, uuid.New().String()), nil
}
