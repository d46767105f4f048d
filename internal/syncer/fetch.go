package syncer

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/grovecli/grove/internal/ui"
)

const (
	fetchProgressTitleConstant       = "Fetching projects"
	fetchSkippedMessageConstant      = "fetch failed; continuing with remaining projects"
	fetchProjectFieldConstant        = "project"
	minimumJobCountConstant          = 1
)

// NetworkProject is the view of a project the fetch scheduler needs.
type NetworkProject interface {
	Name() string
	GitDirectory() string
	SyncNetworkHalf(executionContext context.Context, quiet bool) error
}

// FetchOptions configure one network-fetch pass.
type FetchOptions struct {
	JobCount      int
	Quiet         bool
	ForceContinue bool
}

// FetchOutcome identifies the projects whose fetch succeeded, keyed by their
// metadata directory.
type FetchOutcome struct {
	FetchedGitDirectories map[string]struct{}
}

// Fetched reports whether the given metadata directory fetched successfully.
func (outcome FetchOutcome) Fetched(gitDirectory string) bool {
	_, fetched := outcome.FetchedGitDirectories[gitDirectory]
	return fetched
}

type fetchAccumulator struct {
	mutex                 sync.Mutex
	fetchedGitDirectories map[string]struct{}
}

func newFetchAccumulator() *fetchAccumulator {
	return &fetchAccumulator{fetchedGitDirectories: map[string]struct{}{}}
}

func (accumulator *fetchAccumulator) recordSuccess(gitDirectory string) {
	accumulator.mutex.Lock()
	defer accumulator.mutex.Unlock()
	accumulator.fetchedGitDirectories[gitDirectory] = struct{}{}
}

func (accumulator *fetchAccumulator) snapshot() map[string]struct{} {
	accumulator.mutex.Lock()
	defer accumulator.mutex.Unlock()

	snapshotSet := make(map[string]struct{}, len(accumulator.fetchedGitDirectories))
	for gitDirectory := range accumulator.fetchedGitDirectories {
		snapshotSet[gitDirectory] = struct{}{}
	}
	return snapshotSet
}

// FetchScheduler runs the network-fetch phase across many projects with bounded
// concurrency.
type FetchScheduler struct {
	logger *zap.Logger
}

// NewFetchScheduler constructs a scheduler logging through the given logger.
func NewFetchScheduler(logger *zap.Logger) *FetchScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FetchScheduler{logger: logger}
}

// Fetch attempts the network half of every project. With ForceContinue a failed
// fetch is logged and skipped; without it the first failure stops admission and
// returns promptly, without waiting for in-flight fetches to be reported.
func (scheduler *FetchScheduler) Fetch(executionContext context.Context, projects []NetworkProject, options FetchOptions) (FetchOutcome, error) {
	jobCount := options.JobCount
	if jobCount < minimumJobCountConstant {
		jobCount = minimumJobCountConstant
	}

	progressMeter := ui.NewProgressMeter(scheduler.logger, fetchProgressTitleConstant, len(projects))
	defer progressMeter.End()

	if jobCount == minimumJobCountConstant {
		return scheduler.fetchSequentially(executionContext, projects, options, progressMeter)
	}
	return scheduler.fetchConcurrently(executionContext, projects, options, jobCount, progressMeter)
}

func (scheduler *FetchScheduler) fetchSequentially(executionContext context.Context, projects []NetworkProject, options FetchOptions, progressMeter *ui.ProgressMeter) (FetchOutcome, error) {
	accumulator := newFetchAccumulator()
	for _, networkProject := range projects {
		fetchError := networkProject.SyncNetworkHalf(executionContext, options.Quiet)
		progressMeter.Increment()
		if fetchError == nil {
			accumulator.recordSuccess(networkProject.GitDirectory())
			continue
		}
		if options.ForceContinue {
			scheduler.logger.Warn(fetchSkippedMessageConstant,
				zap.String(fetchProjectFieldConstant, networkProject.Name()),
				zap.Error(fetchError),
			)
			continue
		}
		return FetchOutcome{FetchedGitDirectories: accumulator.snapshot()}, fetchError
	}
	return FetchOutcome{FetchedGitDirectories: accumulator.snapshot()}, nil
}

func (scheduler *FetchScheduler) fetchConcurrently(executionContext context.Context, projects []NetworkProject, options FetchOptions, jobCount int, progressMeter *ui.ProgressMeter) (FetchOutcome, error) {
	accumulator := newFetchAccumulator()
	admission := semaphore.NewWeighted(int64(jobCount))
	failureChannel := make(chan error, 1)
	var workerGroup sync.WaitGroup

	for _, networkProject := range projects {
		select {
		case fetchFailure := <-failureChannel:
			return FetchOutcome{FetchedGitDirectories: accumulator.snapshot()}, fetchFailure
		default:
		}

		if admissionError := admission.Acquire(executionContext, 1); admissionError != nil {
			return FetchOutcome{FetchedGitDirectories: accumulator.snapshot()}, admissionError
		}

		workerGroup.Add(1)
		go func(fetchedProject NetworkProject) {
			defer workerGroup.Done()

			fetchError := fetchedProject.SyncNetworkHalf(executionContext, options.Quiet)
			// Release before any failure report so admission slots never leak.
			admission.Release(1)
			progressMeter.Increment()

			if fetchError == nil {
				accumulator.recordSuccess(fetchedProject.GitDirectory())
				return
			}
			if options.ForceContinue {
				scheduler.logger.Warn(fetchSkippedMessageConstant,
					zap.String(fetchProjectFieldConstant, fetchedProject.Name()),
					zap.Error(fetchError),
				)
				return
			}
			select {
			case failureChannel <- fetchError:
			default:
			}
		}(networkProject)
	}

	allWorkersDone := make(chan struct{})
	go func() {
		workerGroup.Wait()
		close(allWorkersDone)
	}()

	select {
	case fetchFailure := <-failureChannel:
		return FetchOutcome{FetchedGitDirectories: accumulator.snapshot()}, fetchFailure
	case <-allWorkersDone:
	}

	select {
	case fetchFailure := <-failureChannel:
		return FetchOutcome{FetchedGitDirectories: accumulator.snapshot()}, fetchFailure
	default:
	}
	return FetchOutcome{FetchedGitDirectories: accumulator.snapshot()}, nil
}
