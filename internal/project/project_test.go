package project_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/grovecli/grove/internal/execshell"
	"github.com/grovecli/grove/internal/project"
)

const (
	testProjectNameConstant          = "platform/app"
	testRemoteNameConstant           = "origin"
	testRemoteFetchURLConstant       = "https://git.example.com/"
	testRevisionExpressionConstant   = "refs/heads/main"
	testResolvedRevisionConstant     = "refs/remotes/origin/main"
	testHeadCommitConstant           = "1111111111111111111111111111111111111111"
	testTargetCommitConstant         = "2222222222222222222222222222222222222222"
	testDivergedBaseCommitConstant   = "3333333333333333333333333333333333333333"
	testFastForwardCaseNameConstant  = "fast_forward"
	testUpToDateCaseNameConstant     = "already_up_to_date"
	testLocalAheadCaseNameConstant   = "local_work_ahead"
	testDetachCaseNameConstant       = "detached_checkout"
	testRebaseConflictCaseName       = "rebase_conflict_deferred"
	testUnbornHeadCaseNameConstant   = "unborn_head_checkout"
	testDirtyStatusOutputConstant    = " M app/main.go\n"
)

type scriptedResponse struct {
	result         execshell.ExecutionResult
	executionError error
}

type scriptedGitExecutor struct {
	responses        map[string]scriptedResponse
	executedCommands []string
}

func (executor *scriptedGitExecutor) ExecuteGit(executionContext context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error) {
	commandKey := strings.Join(details.Arguments, " ")
	executor.executedCommands = append(executor.executedCommands, commandKey)
	if response, responseFound := executor.responses[commandKey]; responseFound {
		return response.result, response.executionError
	}
	return execshell.ExecutionResult{}, nil
}

func (executor *scriptedGitExecutor) executed(commandFragment string) bool {
	for _, executedCommand := range executor.executedCommands {
		if strings.Contains(executedCommand, commandFragment) {
			return true
		}
	}
	return false
}

type recordingLedger struct {
	detachRequested bool
	failures        map[string]error
	deferred        map[string]string
}

func newRecordingLedger(detachRequested bool) *recordingLedger {
	return &recordingLedger{
		detachRequested: detachRequested,
		failures:        map[string]error{},
		deferred:        map[string]string{},
	}
}

func (ledger *recordingLedger) DetachRequested() bool { return ledger.detachRequested }

func (ledger *recordingLedger) RecordFailure(projectName string, failure error) {
	ledger.failures[projectName] = failure
}

func (ledger *recordingLedger) RecordDeferred(projectName string, reason string) {
	ledger.deferred[projectName] = reason
}

func buildDefinition(testInstance *testing.T, createGitDirectory bool) project.Definition {
	temporaryDirectory := testInstance.TempDir()
	gitDirectory := filepath.Join(temporaryDirectory, "app.git")
	if createGitDirectory {
		require.NoError(testInstance, os.MkdirAll(gitDirectory, 0o755))
	}
	workTree := filepath.Join(temporaryDirectory, "app")
	require.NoError(testInstance, os.MkdirAll(workTree, 0o755))

	return project.Definition{
		Name:               testProjectNameConstant,
		GitDirectory:       gitDirectory,
		WorkTree:           workTree,
		RelativePath:       "app",
		RemoteName:         testRemoteNameConstant,
		RemoteFetchURL:     testRemoteFetchURLConstant,
		RevisionExpression: testRevisionExpressionConstant,
	}
}

func revisionLookupResponses(headCommit string, targetCommit string) map[string]scriptedResponse {
	return map[string]scriptedResponse{
		"rev-parse --verify HEAD":                       {result: execshell.ExecutionResult{StandardOutput: headCommit + "\n"}},
		"rev-parse --verify " + testResolvedRevisionConstant: {result: execshell.ExecutionResult{StandardOutput: targetCommit + "\n"}},
	}
}

func TestNewProjectValidation(testInstance *testing.T) {
	_, missingExecutorError := project.NewProject(project.Definition{Name: testProjectNameConstant, GitDirectory: "/tmp/app.git"}, nil, zap.NewNop())
	require.ErrorIs(testInstance, missingExecutorError, project.ErrGitExecutorNotConfigured)

	_, incompleteError := project.NewProject(project.Definition{Name: testProjectNameConstant}, &scriptedGitExecutor{}, zap.NewNop())
	require.ErrorIs(testInstance, incompleteError, project.ErrIncompleteDefinition)
}

func TestSyncNetworkHalfClonesMissingRepository(testInstance *testing.T) {
	definition := buildDefinition(testInstance, false)
	executor := &scriptedGitExecutor{responses: map[string]scriptedResponse{}}
	syncedProject, creationError := project.NewProject(definition, executor, zap.NewNop())
	require.NoError(testInstance, creationError)
	require.False(testInstance, syncedProject.Exists())

	require.NoError(testInstance, syncedProject.SyncNetworkHalf(context.Background(), false))
	require.Len(testInstance, executor.executedCommands, 1)
	require.True(testInstance, strings.HasPrefix(executor.executedCommands[0], "clone --no-checkout --separate-git-dir"))
	require.Contains(testInstance, executor.executedCommands[0], "https://git.example.com/platform/app")
}

func TestSyncNetworkHalfFetchesExistingRepository(testInstance *testing.T) {
	definition := buildDefinition(testInstance, true)
	executor := &scriptedGitExecutor{responses: map[string]scriptedResponse{}}
	syncedProject, creationError := project.NewProject(definition, executor, zap.NewNop())
	require.NoError(testInstance, creationError)

	require.NoError(testInstance, syncedProject.SyncNetworkHalf(context.Background(), true))
	require.Len(testInstance, executor.executedCommands, 1)
	require.Equal(testInstance, "--git-dir "+definition.GitDirectory+" fetch --quiet origin", executor.executedCommands[0])
}

func TestSyncNetworkHalfPropagatesFetchFailure(testInstance *testing.T) {
	definition := buildDefinition(testInstance, true)
	executor := &scriptedGitExecutor{responses: map[string]scriptedResponse{
		"--git-dir " + definition.GitDirectory + " fetch origin": {executionError: errors.New("remote unavailable")},
	}}
	syncedProject, creationError := project.NewProject(definition, executor, zap.NewNop())
	require.NoError(testInstance, creationError)

	fetchError := syncedProject.SyncNetworkHalf(context.Background(), false)
	require.Error(testInstance, fetchError)
	require.Contains(testInstance, fetchError.Error(), testProjectNameConstant)
}

func TestSyncLocalHalfScenarios(testInstance *testing.T) {
	testCases := []struct {
		name                  string
		detachRequested       bool
		responses             func(definition project.Definition) map[string]scriptedResponse
		expectedCommand       string
		unexpectedCommand     string
		expectDeferredEntry   bool
	}{
		{
			name: testFastForwardCaseNameConstant,
			responses: func(definition project.Definition) map[string]scriptedResponse {
				responses := revisionLookupResponses(testHeadCommitConstant, testTargetCommitConstant)
				responses["merge-base HEAD "+testResolvedRevisionConstant] = scriptedResponse{result: execshell.ExecutionResult{StandardOutput: testHeadCommitConstant + "\n"}}
				return responses
			},
			expectedCommand:   "merge --ff-only " + testResolvedRevisionConstant,
			unexpectedCommand: "rebase",
		},
		{
			name: testUpToDateCaseNameConstant,
			responses: func(definition project.Definition) map[string]scriptedResponse {
				return revisionLookupResponses(testHeadCommitConstant, testHeadCommitConstant)
			},
			unexpectedCommand: "merge",
		},
		{
			name: testLocalAheadCaseNameConstant,
			responses: func(definition project.Definition) map[string]scriptedResponse {
				responses := revisionLookupResponses(testHeadCommitConstant, testTargetCommitConstant)
				responses["merge-base HEAD "+testResolvedRevisionConstant] = scriptedResponse{result: execshell.ExecutionResult{StandardOutput: testTargetCommitConstant + "\n"}}
				return responses
			},
			unexpectedCommand: "rebase",
		},
		{
			name:            testDetachCaseNameConstant,
			detachRequested: true,
			responses: func(definition project.Definition) map[string]scriptedResponse {
				return revisionLookupResponses(testHeadCommitConstant, testTargetCommitConstant)
			},
			expectedCommand:   "checkout --detach " + testResolvedRevisionConstant,
			unexpectedCommand: "merge",
		},
		{
			name: testRebaseConflictCaseName,
			responses: func(definition project.Definition) map[string]scriptedResponse {
				responses := revisionLookupResponses(testHeadCommitConstant, testTargetCommitConstant)
				responses["merge-base HEAD "+testResolvedRevisionConstant] = scriptedResponse{result: execshell.ExecutionResult{StandardOutput: testDivergedBaseCommitConstant + "\n"}}
				responses["rebase "+testResolvedRevisionConstant] = scriptedResponse{executionError: errors.New("merge conflict")}
				return responses
			},
			expectedCommand:     "rebase --abort",
			expectDeferredEntry: true,
		},
		{
			name: testUnbornHeadCaseNameConstant,
			responses: func(definition project.Definition) map[string]scriptedResponse {
				return map[string]scriptedResponse{
					"rev-parse --verify HEAD": {executionError: errors.New("needed a single revision")},
				}
			},
			expectedCommand:   "checkout " + testResolvedRevisionConstant,
			unexpectedCommand: "merge",
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			definition := buildDefinition(testInstance, true)
			executor := &scriptedGitExecutor{responses: testCase.responses(definition)}
			syncedProject, creationError := project.NewProject(definition, executor, zap.NewNop())
			require.NoError(testInstance, creationError)

			ledger := newRecordingLedger(testCase.detachRequested)
			syncedProject.SyncLocalHalf(context.Background(), ledger)

			if len(testCase.expectedCommand) > 0 {
				require.True(testInstance, executor.executed(testCase.expectedCommand), "expected command %q in %v", testCase.expectedCommand, executor.executedCommands)
			}
			if len(testCase.unexpectedCommand) > 0 {
				require.False(testInstance, executor.executed(testCase.unexpectedCommand), "unexpected command %q in %v", testCase.unexpectedCommand, executor.executedCommands)
			}
			if testCase.expectDeferredEntry {
				require.Contains(testInstance, ledger.deferred, testProjectNameConstant)
			} else {
				require.Empty(testInstance, ledger.deferred)
			}
			require.Empty(testInstance, ledger.failures)
		})
	}
}

func TestIsDirtyReflectsStatusOutput(testInstance *testing.T) {
	definition := buildDefinition(testInstance, true)
	executor := &scriptedGitExecutor{responses: map[string]scriptedResponse{
		"status --porcelain": {result: execshell.ExecutionResult{StandardOutput: testDirtyStatusOutputConstant}},
	}}
	syncedProject, creationError := project.NewProject(definition, executor, zap.NewNop())
	require.NoError(testInstance, creationError)

	dirty, dirtyError := syncedProject.IsDirty(context.Background())
	require.NoError(testInstance, dirtyError)
	require.True(testInstance, dirty)

	executor.responses["status --porcelain"] = scriptedResponse{result: execshell.ExecutionResult{StandardOutput: "\n"}}
	clean, cleanError := syncedProject.IsDirty(context.Background())
	require.NoError(testInstance, cleanError)
	require.False(testInstance, clean)
}

func TestHasChangesComparesHeadWithTarget(testInstance *testing.T) {
	definition := buildDefinition(testInstance, true)
	executor := &scriptedGitExecutor{responses: revisionLookupResponses(testHeadCommitConstant, testTargetCommitConstant)}
	syncedProject, creationError := project.NewProject(definition, executor, zap.NewNop())
	require.NoError(testInstance, creationError)
	require.True(testInstance, syncedProject.HasChanges(context.Background()))

	executor.responses = revisionLookupResponses(testHeadCommitConstant, testHeadCommitConstant)
	require.False(testInstance, syncedProject.HasChanges(context.Background()))
}

func TestLastFetchReadsFetchHeadTimestamp(testInstance *testing.T) {
	definition := buildDefinition(testInstance, true)
	executor := &scriptedGitExecutor{}
	syncedProject, creationError := project.NewProject(definition, executor, zap.NewNop())
	require.NoError(testInstance, creationError)

	require.True(testInstance, syncedProject.LastFetch().IsZero())

	fetchHeadPath := filepath.Join(definition.GitDirectory, "FETCH_HEAD")
	require.NoError(testInstance, os.WriteFile(fetchHeadPath, []byte(testHeadCommitConstant), 0o644))
	require.False(testInstance, syncedProject.LastFetch().IsZero())
}

func TestCurrentBranchHandlesDetachedHead(testInstance *testing.T) {
	definition := buildDefinition(testInstance, true)
	executor := &scriptedGitExecutor{responses: map[string]scriptedResponse{
		"rev-parse --abbrev-ref HEAD": {result: execshell.ExecutionResult{StandardOutput: "main\n"}},
	}}
	syncedProject, creationError := project.NewProject(definition, executor, zap.NewNop())
	require.NoError(testInstance, creationError)

	branchName, branchError := syncedProject.CurrentBranch(context.Background())
	require.NoError(testInstance, branchError)
	require.Equal(testInstance, "main", branchName)

	executor.responses["rev-parse --abbrev-ref HEAD"] = scriptedResponse{result: execshell.ExecutionResult{StandardOutput: "HEAD\n"}}
	detachedBranchName, detachedBranchError := syncedProject.CurrentBranch(context.Background())
	require.NoError(testInstance, detachedBranchError)
	require.Empty(testInstance, detachedBranchName)
}

func TestTrackingBranchReadsBranchConfiguration(testInstance *testing.T) {
	definition := buildDefinition(testInstance, true)
	executor := &scriptedGitExecutor{responses: map[string]scriptedResponse{
		"rev-parse --abbrev-ref HEAD": {result: execshell.ExecutionResult{StandardOutput: "main\n"}},
		"config branch.main.merge":    {result: execshell.ExecutionResult{StandardOutput: "refs/heads/main\n"}},
	}}
	syncedProject, creationError := project.NewProject(definition, executor, zap.NewNop())
	require.NoError(testInstance, creationError)

	trackingReference, trackingError := syncedProject.TrackingBranch(context.Background())
	require.NoError(testInstance, trackingError)
	require.Equal(testInstance, "refs/heads/main", trackingReference)
}
