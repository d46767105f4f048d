package ui

import (
	"sync"

	"go.uber.org/zap"
)

const (
	progressCompletedFieldNameConstant = "completed"
	progressTotalFieldNameConstant     = "total"
	progressFinishedMessageSuffix      = " finished"
)

// ProgressMeter reports monotonic progress across a fixed number of attempts.
//
// Increment is safe for concurrent use; callers invoke it exactly once per
// completed attempt so the counter never overshoots the configured total.
type ProgressMeter struct {
	logger         *zap.Logger
	title          string
	totalCount     int
	completedCount int
	mutex          sync.Mutex
}

// NewProgressMeter constructs a progress meter for the given title and attempt count.
func NewProgressMeter(logger *zap.Logger, title string, totalCount int) *ProgressMeter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProgressMeter{logger: logger, title: title, totalCount: totalCount}
}

// Increment records one completed attempt and logs the updated counter.
func (meter *ProgressMeter) Increment() {
	if meter == nil {
		return
	}

	meter.mutex.Lock()
	if meter.completedCount < meter.totalCount {
		meter.completedCount++
	}
	completedSnapshot := meter.completedCount
	meter.mutex.Unlock()

	meter.logger.Info(
		meter.title,
		zap.Int(progressCompletedFieldNameConstant, completedSnapshot),
		zap.Int(progressTotalFieldNameConstant, meter.totalCount),
	)
}

// Completed returns the number of attempts recorded so far.
func (meter *ProgressMeter) Completed() int {
	if meter == nil {
		return 0
	}

	meter.mutex.Lock()
	defer meter.mutex.Unlock()
	return meter.completedCount
}

// End logs the final counter state for the meter.
func (meter *ProgressMeter) End() {
	if meter == nil {
		return
	}

	meter.mutex.Lock()
	completedSnapshot := meter.completedCount
	meter.mutex.Unlock()

	meter.logger.Info(
		meter.title+progressFinishedMessageSuffix,
		zap.Int(progressCompletedFieldNameConstant, completedSnapshot),
		zap.Int(progressTotalFieldNameConstant, meter.totalCount),
	)
}
