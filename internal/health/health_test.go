package health

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSnapshot(t *testing.T) {
	r := NewReporter(time.Now().Add(-time.Minute))

	snap := r.Snapshot(RelayState{Sessions: 3, Controller: true, Categories: 2, Effects: 5})

	assert.Equal(t, "ok", snap.Status)
	assert.Equal(t, 3, snap.Sessions)
	assert.True(t, snap.Controller)
	assert.Equal(t, 2, snap.Categories)
	assert.Equal(t, 5, snap.Effects)
	assert.GreaterOrEqual(t, snap.UptimeSeconds, 60.0)
	assert.Positive(t, snap.Goroutines)
	assert.GreaterOrEqual(t, snap.CPUPercent, 0.0)
}
