package build

import (
	"sync"
	"time"

	"github.com/conneroisu/sitesmith/internal/taskgraph"
)

// BuildMetrics counts task outcomes of the latest Run.
type BuildMetrics struct {
	TotalRuns      int64
	SucceededRuns  int64
	FailedRuns     int64
	SkippedRuns    int64
	OutputsWritten int64
	TotalDuration  time.Duration
	mutex          sync.RWMutex
}

// NewBuildMetrics creates a new build metrics tracker
func NewBuildMetrics() *BuildMetrics {
	return &BuildMetrics{}
}

// Record adds a finished task event. Started events are ignored.
func (bm *BuildMetrics) Record(ev taskgraph.Event) {
	if ev.Status == taskgraph.StatusStarted {
		return
	}

	bm.mutex.Lock()
	defer bm.mutex.Unlock()

	bm.TotalRuns++
	bm.TotalDuration += ev.Duration
	bm.OutputsWritten += int64(len(ev.Outputs))

	switch ev.Status {
	case taskgraph.StatusSucceeded:
		bm.SucceededRuns++
	case taskgraph.StatusFailed:
		bm.FailedRuns++
	case taskgraph.StatusSkipped:
		bm.SkippedRuns++
	}
}

// GetSnapshot returns a snapshot of current metrics
func (bm *BuildMetrics) GetSnapshot() BuildMetrics {
	bm.mutex.RLock()
	defer bm.mutex.RUnlock()
	return BuildMetrics{
		TotalRuns:      bm.TotalRuns,
		SucceededRuns:  bm.SucceededRuns,
		FailedRuns:     bm.FailedRuns,
		SkippedRuns:    bm.SkippedRuns,
		OutputsWritten: bm.OutputsWritten,
		TotalDuration:  bm.TotalDuration,
	}
}

// Reset resets all metrics
func (bm *BuildMetrics) Reset() {
	bm.mutex.Lock()
	defer bm.mutex.Unlock()

	bm.TotalRuns = 0
	bm.SucceededRuns = 0
	bm.FailedRuns = 0
	bm.SkippedRuns = 0
	bm.OutputsWritten = 0
	bm.TotalDuration = 0
}
