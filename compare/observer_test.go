package compare

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestObserverStopClearsThrottle(t *testing.T) {
	ts := &ThreadSync{}
	o := &Observer{
		Sync:         ts,
		ThrottleSize: 100,
		StagedCount:  func(Side) (int64, error) { return 0, nil },
	}
	o.Start()
	ts.SetThrottle(true)
	o.Stop()
	// Extractors must never stay stalled once the observer is gone.
	assert.False(t, ts.Throttled())
}
