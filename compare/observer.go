package compare

import (
	"time"

	log "github.com/sirupsen/logrus"
)

// observerInterval is the sampling period for staged volume.
const observerInterval = 2 * time.Second

// Observer supervises staged volume during a compare: above the
// watermark it raises the throttle flag that stalls extractors before
// their next enqueue, and clears it once the loaders have drained below
// half the watermark. It can also vacuum the staging tables between
// samples.
type Observer struct {
	Sync *ThreadSync

	ThrottleSize int64
	Vacuum       bool

	// StagedCount reports rows currently staged for a side.
	StagedCount func(Side) (int64, error)
	// VacuumStaging reclaims space in the staging tables.
	VacuumStaging func() error

	stop chan struct{}
}

// Start launches the observer goroutine.
func (o *Observer) Start() {
	o.stop = make(chan struct{})
	go o.run()
}

// Stop terminates the observer and clears any outstanding throttle.
func (o *Observer) Stop() {
	close(o.stop)
	o.Sync.SetThrottle(false)
}

func (o *Observer) run() {
	logger := log.WithField("thread", "observer")
	ticker := time.NewTicker(observerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-o.stop:
			return
		case <-ticker.C:
		}

		var total int64
		failed := false
		for _, side := range Sides {
			n, err := o.StagedCount(side)
			if err != nil {
				logger.Debugf("Could not sample staged count for %s: %s", side, err)
				failed = true
				break
			}
			total += n
		}
		if failed {
			continue
		}

		switch {
		case !o.Sync.Throttled() && total > o.ThrottleSize:
			logger.Warnf("Staged volume %d exceeds watermark %d, throttling extractors", total, o.ThrottleSize)
			o.Sync.SetThrottle(true)
		case o.Sync.Throttled() && total < o.ThrottleSize/2:
			logger.Infof("Staged volume %d below half watermark, resuming extractors", total)
			o.Sync.SetThrottle(false)
		}

		if o.Vacuum && o.VacuumStaging != nil {
			if err := o.VacuumStaging(); err != nil {
				logger.Debugf("Vacuum of staging tables failed: %s", err)
			}
		}
	}
}
