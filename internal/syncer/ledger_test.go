package syncer_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/grovecli/grove/internal/syncer"
)

const (
	testLedgerFailingProjectConstant  = "platform/app"
	testLedgerDeferredProjectConstant = "platform/lib"
	testLedgerDeferredReasonConstant  = "rebase onto refs/remotes/origin/main stopped with conflicts; rebase aborted"
)

func TestLedgerCleanVerdict(testInstance *testing.T) {
	ledger := syncer.NewLedger(zap.NewNop(), syncer.LedgerOptions{})
	require.False(testInstance, ledger.DetachRequested())
	require.True(testInstance, ledger.Finish())
}

func TestLedgerDetachOption(testInstance *testing.T) {
	ledger := syncer.NewLedger(zap.NewNop(), syncer.LedgerOptions{DetachHead: true})
	require.True(testInstance, ledger.DetachRequested())
}

func TestLedgerReportsEntriesOnce(testInstance *testing.T) {
	observerCore, observedLogs := observer.New(zapcore.WarnLevel)
	ledger := syncer.NewLedger(zap.New(observerCore), syncer.LedgerOptions{})

	ledger.RecordFailure(testLedgerFailingProjectConstant, errors.New("merge failed"))
	ledger.RecordDeferred(testLedgerDeferredProjectConstant, testLedgerDeferredReasonConstant)

	require.False(testInstance, ledger.Finish())

	entries := observedLogs.All()
	require.Len(testInstance, entries, 2)
	require.Equal(testInstance, zapcore.ErrorLevel, entries[0].Level)
	require.Equal(testInstance, testLedgerFailingProjectConstant, entries[0].ContextMap()["project"])
	require.Equal(testInstance, zapcore.WarnLevel, entries[1].Level)
	require.Equal(testInstance, testLedgerDeferredReasonConstant, entries[1].ContextMap()["reason"])

	// A second Finish returns the prior verdict without replaying the entries.
	require.False(testInstance, ledger.Finish())
	require.Len(testInstance, observedLogs.All(), 2)
}
