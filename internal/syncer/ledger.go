package syncer

import (
	"sync"

	"go.uber.org/zap"
)

const (
	ledgerFailureMessageConstant  = "local update failed"
	ledgerDeferredMessageConstant = "local update deferred"
	ledgerVerdictMessageConstant  = "local update pass finished"
	ledgerProjectFieldConstant    = "project"
	ledgerReasonFieldConstant     = "reason"
	ledgerCleanFieldConstant      = "clean"
	ledgerFailureCountField       = "failures"
	ledgerDeferredCountField      = "deferred"
)

// LedgerOptions configure one local-update pass.
type LedgerOptions struct {
	DetachHead bool
}

type ledgerFailureEntry struct {
	projectName string
	failure     error
}

type ledgerDeferredEntry struct {
	projectName string
	reason      string
}

// Ledger accumulates local-update outcomes across many projects and yields one
// aggregate verdict. Safe for concurrent recording.
type Ledger struct {
	logger     *zap.Logger
	detachHead bool
	mutex      sync.Mutex
	failures   []ledgerFailureEntry
	deferred   []ledgerDeferredEntry
	finished   bool
	verdict    bool
}

// NewLedger constructs a ledger for one pass.
func NewLedger(logger *zap.Logger, options LedgerOptions) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{logger: logger, detachHead: options.DetachHead}
}

// DetachRequested reports whether projects should detach to the manifest revision.
func (ledger *Ledger) DetachRequested() bool {
	return ledger.detachHead
}

// RecordFailure notes a project whose local update failed outright.
func (ledger *Ledger) RecordFailure(projectName string, failure error) {
	ledger.mutex.Lock()
	defer ledger.mutex.Unlock()
	ledger.failures = append(ledger.failures, ledgerFailureEntry{projectName: projectName, failure: failure})
}

// RecordDeferred notes a project whose local update needs manual resolution.
func (ledger *Ledger) RecordDeferred(projectName string, reason string) {
	ledger.mutex.Lock()
	defer ledger.mutex.Unlock()
	ledger.deferred = append(ledger.deferred, ledgerDeferredEntry{projectName: projectName, reason: reason})
}

// Finish logs every recorded entry and returns the aggregate all-clean verdict.
// The entries are reported exactly once; later calls return the same verdict.
func (ledger *Ledger) Finish() bool {
	ledger.mutex.Lock()
	defer ledger.mutex.Unlock()

	if ledger.finished {
		return ledger.verdict
	}
	ledger.finished = true

	for _, failureEntry := range ledger.failures {
		ledger.logger.Error(ledgerFailureMessageConstant,
			zap.String(ledgerProjectFieldConstant, failureEntry.projectName),
			zap.Error(failureEntry.failure),
		)
	}
	for _, deferredEntry := range ledger.deferred {
		ledger.logger.Warn(ledgerDeferredMessageConstant,
			zap.String(ledgerProjectFieldConstant, deferredEntry.projectName),
			zap.String(ledgerReasonFieldConstant, deferredEntry.reason),
		)
	}

	ledger.verdict = len(ledger.failures) == 0 && len(ledger.deferred) == 0
	ledger.logger.Debug(ledgerVerdictMessageConstant,
		zap.Bool(ledgerCleanFieldConstant, ledger.verdict),
		zap.Int(ledgerFailureCountField, len(ledger.failures)),
		zap.Int(ledgerDeferredCountField, len(ledger.deferred)),
	)
	return ledger.verdict
}
