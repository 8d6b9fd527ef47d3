package compare

import (
	"sync/atomic"
	"time"
)

// ThreadSync coordinates the extractor, loader and observer workers of
// one table run: typed counters instead of shared booleans, and a single
// atomic throttle flag.
type ThreadSync struct {
	sourceComplete       atomic.Bool
	targetComplete       atomic.Bool
	runningExtractors    [2]atomic.Int32
	loaderThreadComplete atomic.Int32
	extractorErrors      atomic.Int32
	loadedRows           [2]atomic.Int64
	throttle             atomic.Bool
	cancel               atomic.Bool
}

// Reset clears the per-table state so the next table's workers start
// from a clean slate. The cancel flag survives: a shutdown request
// spans tables.
func (ts *ThreadSync) Reset() {
	ts.sourceComplete.Store(false)
	ts.targetComplete.Store(false)
	ts.runningExtractors[0].Store(0)
	ts.runningExtractors[1].Store(0)
	ts.loaderThreadComplete.Store(0)
	ts.extractorErrors.Store(0)
	ts.loadedRows[0].Store(0)
	ts.loadedRows[1].Store(0)
	ts.throttle.Store(false)
}

func sideIndex(s Side) int {
	if s == SideSource {
		return 0
	}
	return 1
}

// ExtractorStarted registers a running shard for a side.
func (ts *ThreadSync) ExtractorStarted(s Side) {
	ts.runningExtractors[sideIndex(s)].Add(1)
}

// ExtractorFinished deregisters a shard; the last one out raises the
// side's complete flag for the loaders.
func (ts *ThreadSync) ExtractorFinished(s Side) {
	if ts.runningExtractors[sideIndex(s)].Add(-1) == 0 {
		if s == SideSource {
			ts.sourceComplete.Store(true)
		} else {
			ts.targetComplete.Store(true)
		}
	}
}

// SidesComplete reports whether both sides have drained their shards.
func (ts *ThreadSync) SidesComplete() bool {
	return ts.sourceComplete.Load() && ts.targetComplete.Load()
}

// LoaderFinished counts a loader that observed completion and exited.
func (ts *ThreadSync) LoaderFinished() { ts.loaderThreadComplete.Add(1) }

// LoadersFinished is the number of loaders that have exited.
func (ts *ThreadSync) LoadersFinished() int { return int(ts.loaderThreadComplete.Load()) }

// RecordExtractError marks a failed shard; any failure fails the table.
func (ts *ThreadSync) RecordExtractError() { ts.extractorErrors.Add(1) }

// ExtractErrors is the number of failed shards.
func (ts *ThreadSync) ExtractErrors() int { return int(ts.extractorErrors.Load()) }

// AddLoaded accumulates rows persisted to staging for a side.
func (ts *ThreadSync) AddLoaded(s Side, n int64) { ts.loadedRows[sideIndex(s)].Add(n) }

// Loaded returns rows persisted to staging for a side.
func (ts *ThreadSync) Loaded(s Side) int64 { return ts.loadedRows[sideIndex(s)].Load() }

// SetThrottle raises or clears the observer's throttle flag.
func (ts *ThreadSync) SetThrottle(on bool) { ts.throttle.Store(on) }

// Throttled reports whether extractors must stall before enqueueing.
func (ts *ThreadSync) Throttled() bool { return ts.throttle.Load() }

// Cancel sets the process-wide shutdown flag checked between batches.
func (ts *ThreadSync) Cancel() { ts.cancel.Store(true) }

// Cancelled reports whether a shutdown was requested.
func (ts *ThreadSync) Cancelled() bool { return ts.cancel.Load() }

// AwaitThrottle blocks while the throttle flag is raised, polling at a
// coarse interval; returns early on cancel.
func (ts *ThreadSync) AwaitThrottle() {
	for ts.Throttled() && !ts.Cancelled() {
		time.Sleep(250 * time.Millisecond)
	}
}
