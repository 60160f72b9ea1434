package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParticipation_ReadHorizonIsMonotonic(t *testing.T) {
	req := require.New(t)
	now := time.Now().UTC()
	participation := Participation{JoinedAt: now}

	// When the horizon advances
	req.True(participation.AdvanceReadHorizon(now.Add(time.Minute)))
	req.Equal(now.Add(time.Minute), participation.LastReadAt)

	// Then an older or equal timestamp never moves it back
	req.False(participation.AdvanceReadHorizon(now))
	req.False(participation.AdvanceReadHorizon(now.Add(time.Minute)))
	req.Equal(now.Add(time.Minute), participation.LastReadAt)

	// And a newer one still moves it forward
	req.True(participation.AdvanceReadHorizon(now.Add(2 * time.Minute)))
	req.Equal(now.Add(2*time.Minute), participation.LastReadAt)
}
