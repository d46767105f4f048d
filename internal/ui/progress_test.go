package ui_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/grovecli/grove/internal/ui"
)

const (
	testProgressTitleConstant          = "Fetching projects"
	testProgressTotalCountConstant     = 4
	testProgressWorkerCountConstant    = 8
	testProgressFinishedTitleConstant  = testProgressTitleConstant + " finished"
	testProgressCompletedFieldConstant = "completed"
)

func TestProgressMeterIncrementsMonotonically(testInstance *testing.T) {
	observerCore, observedLogs := observer.New(zap.InfoLevel)
	meter := ui.NewProgressMeter(zap.New(observerCore), testProgressTitleConstant, testProgressTotalCountConstant)

	for attemptIndex := 0; attemptIndex < testProgressTotalCountConstant; attemptIndex++ {
		meter.Increment()
	}
	meter.End()

	require.Equal(testInstance, testProgressTotalCountConstant, meter.Completed())

	entries := observedLogs.All()
	require.Len(testInstance, entries, testProgressTotalCountConstant+1)
	require.Equal(testInstance, testProgressFinishedTitleConstant, entries[len(entries)-1].Message)

	previousCompleted := int64(0)
	for _, entry := range entries[:testProgressTotalCountConstant] {
		require.Equal(testInstance, testProgressTitleConstant, entry.Message)
		completedValue := entry.ContextMap()[testProgressCompletedFieldConstant].(int64)
		require.Greater(testInstance, completedValue, previousCompleted)
		previousCompleted = completedValue
	}
}

func TestProgressMeterNeverOvershootsUnderConcurrency(testInstance *testing.T) {
	meter := ui.NewProgressMeter(zap.NewNop(), testProgressTitleConstant, testProgressTotalCountConstant)

	var waitGroup sync.WaitGroup
	for workerIndex := 0; workerIndex < testProgressWorkerCountConstant; workerIndex++ {
		waitGroup.Add(1)
		go func() {
			defer waitGroup.Done()
			meter.Increment()
		}()
	}
	waitGroup.Wait()

	require.Equal(testInstance, testProgressTotalCountConstant, meter.Completed())
}
