package qsensor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Disconnect must terminate the reader goroutine and close the port within
// the join bound, without waiting for a clean menu exchange.
func TestDisconnectDuringFreerun(t *testing.T) {
	c, sim := connectSim(t, SimOptions{StreamInterval: 5 * time.Millisecond})

	require.NoError(t, c.StartAcquisition(0))
	require.Eventually(t, func() bool {
		return len(c.BufferSnapshot()) >= 1
	}, 2*time.Second, 10*time.Millisecond)

	start := time.Now()
	require.NoError(t, c.Disconnect())
	assert.Less(t, time.Since(start), 3*time.Second, "disconnect must not hang on the reader")
	assert.Equal(t, Disconnected, c.State())

	// The simulated port must have been closed underneath.
	_, err := sim.Write([]byte{ESC})
	assert.Error(t, err, "port should be closed after disconnect")
}

func TestDisconnectDuringPolled(t *testing.T) {
	c, _ := connectSim(t, SimOptions{Mode: ModePolled, Tag: "D", Averaging: 1})

	require.NoError(t, c.StartAcquisition(20))
	require.Eventually(t, func() bool {
		return len(c.BufferSnapshot()) >= 1
	}, 3*time.Second, 10*time.Millisecond)

	start := time.Now()
	require.NoError(t, c.Disconnect())
	assert.Less(t, time.Since(start), 3*time.Second)
	assert.Equal(t, Disconnected, c.State())
}

// A reconnect after disconnect must come up clean: fresh config, fresh
// identity, no leftovers from the previous session.
func TestReconnectAfterDisconnect(t *testing.T) {
	c, _ := connectSim(t, SimOptions{StreamInterval: 5 * time.Millisecond})
	require.NoError(t, c.Disconnect())

	fresh := NewSim(SimOptions{
		SerialNumber:   "QSE0099",
		StreamInterval: 5 * time.Millisecond,
	})
	require.NoError(t, c.ConnectPort(fresh))
	defer c.Disconnect()

	assert.Equal(t, ConfigMenu, c.State())
	assert.Equal(t, "QSE0099", c.SensorID())
}
