package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCreditsForDuration(t *testing.T) {
	cases := map[int]int{
		15:  1,
		30:  1,
		31:  2,
		45:  2,
		60:  2,
		90:  3,
		91:  4,
		180: 6,
	}
	for duration, want := range cases {
		assert.Equal(t, want, CreditsForDuration(duration), "duration=%d", duration)
	}
}

func TestStatusTerminal(t *testing.T) {
	assert.False(t, BookingPending.Terminal())
	assert.False(t, BookingConfirmed.Terminal())
	assert.False(t, BookingInProgress.Terminal())
	assert.True(t, BookingCompleted.Terminal())
	assert.True(t, BookingCancelled.Terminal())
	assert.True(t, BookingNoShow.Terminal())
}

func TestIsParty(t *testing.T) {
	b := &Booking{ProviderID: "p", RequesterID: "r"}
	assert.True(t, b.IsParty("p"))
	assert.True(t, b.IsParty("r"))
	assert.False(t, b.IsParty("x"))
}
