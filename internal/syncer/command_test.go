package syncer_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/grovecli/grove/internal/selfupdate"
	"github.com/grovecli/grove/internal/syncer"
	"github.com/grovecli/grove/internal/workspace"
)

const (
	testJobsFlagShorthandConstant      = "j"
	testLocalOnlyFlagShorthandConstant = "l"
)

func TestSyncCommandRegistersFlags(testInstance *testing.T) {
	builder := syncer.CommandBuilder{}
	command, buildError := builder.Build()
	require.NoError(testInstance, buildError)

	require.Equal(testInstance, "sync", command.Name())

	jobsFlag := command.Flags().Lookup("jobs")
	require.NotNil(testInstance, jobsFlag)
	require.Equal(testInstance, testJobsFlagShorthandConstant, jobsFlag.Shorthand)

	localOnlyFlag := command.Flags().Lookup("local-only")
	require.NotNil(testInstance, localOnlyFlag)
	require.Equal(testInstance, testLocalOnlyFlagShorthandConstant, localOnlyFlag.Shorthand)

	for _, flagName := range []string{"force-broken", "network-only", "detach", "quiet", "smart-sync", "no-verify"} {
		require.NotNil(testInstance, command.Flags().Lookup(flagName), flagName)
	}

	alreadyUpgradedFlag := command.Flags().Lookup(selfupdate.AlreadyUpgradedFlagName)
	require.NotNil(testInstance, alreadyUpgradedFlag)
	require.True(testInstance, alreadyUpgradedFlag.Hidden)
}

func TestSyncCommandFailsOutsideWorkspace(testInstance *testing.T) {
	workingDirectory := testInstance.TempDir()
	builder := syncer.CommandBuilder{
		LoggerProvider:           func() *zap.Logger { return zap.NewNop() },
		WorkingDirectoryProvider: func() (string, error) { return workingDirectory, nil },
	}

	command, buildError := builder.Build()
	require.NoError(testInstance, buildError)

	command.SetContext(context.Background())
	command.SetArgs([]string{})

	executionError := command.Execute()
	require.ErrorIs(testInstance, executionError, workspace.ErrWorkspaceNotFound)
}
