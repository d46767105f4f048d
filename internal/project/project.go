package project

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/grovecli/grove/internal/execshell"
)

const (
	gitDirectoryFlagConstant          = "--git-dir"
	gitFetchSubcommandConstant        = "fetch"
	gitCloneSubcommandConstant        = "clone"
	gitStatusSubcommandConstant       = "status"
	gitCheckoutSubcommandConstant     = "checkout"
	gitMergeSubcommandConstant        = "merge"
	gitRebaseSubcommandConstant       = "rebase"
	gitDescribeSubcommandConstant     = "describe"
	gitRevParseSubcommandConstant     = "rev-parse"
	gitMergeBaseSubcommandConstant    = "merge-base"
	gitConfigSubcommandConstant       = "config"
	quietFlagConstant                 = "--quiet"
	noCheckoutFlagConstant            = "--no-checkout"
	separateGitDirectoryFlagConstant  = "--separate-git-dir"
	mirrorFlagConstant                = "--mirror"
	porcelainFlagConstant             = "--porcelain"
	detachFlagConstant                = "--detach"
	fastForwardOnlyFlagConstant       = "--ff-only"
	abortFlagConstant                 = "--abort"
	abbreviatedReferenceFlagConstant  = "--abbrev-ref"
	verifyFlagConstant                = "--verify"
	headReferenceConstant             = "HEAD"
	remoteBranchReferenceTemplate     = "refs/remotes/%s/%s"
	branchReferencePrefixConstant     = "refs/heads/"
	branchMergeConfigurationTemplate  = "branch.%s.merge"
	fetchHeadFileNameConstant         = "FETCH_HEAD"
	rebaseConflictReasonTemplate      = "rebase onto %s stopped with conflicts; rebase aborted"
	missingExecutorMessageConstant    = "project requires a git executor"
	missingDefinitionMessageConstant  = "project requires a name and a git directory"
	projectOperationErrorTemplate     = "project %s: %w"
	projectNameFieldConstant          = "project"
	presyncSkippedMessageConstant     = "pre-sync fast-forward skipped"
)

// ErrGitExecutorNotConfigured indicates a project was constructed without a git executor.
var ErrGitExecutorNotConfigured = errors.New(missingExecutorMessageConstant)

// ErrIncompleteDefinition indicates a project definition is missing required fields.
var ErrIncompleteDefinition = errors.New(missingDefinitionMessageConstant)

// Definition carries the declared identity and paths of one project.
type Definition struct {
	Name               string
	GitDirectory       string
	WorkTree           string
	RelativePath       string
	RemoteName         string
	RemoteFetchURL     string
	RevisionExpression string
	RevisionID         string
}

// GitExecutor runs git commands on behalf of a project.
type GitExecutor interface {
	ExecuteGit(executionContext context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error)
}

// SyncLedger collects local-update outcomes across many projects.
//
// Declared here because projects feed the ledger during the local half while the
// orchestrator owns its lifecycle.
type SyncLedger interface {
	DetachRequested() bool
	RecordFailure(projectName string, failure error)
	RecordDeferred(projectName string, reason string)
}

// Project wraps one source-control working tree and its metadata directory.
type Project struct {
	definition  Definition
	gitExecutor GitExecutor
	logger      *zap.Logger
}

// NewProject validates the definition and binds it to a git executor.
func NewProject(definition Definition, gitExecutor GitExecutor, logger *zap.Logger) (*Project, error) {
	if gitExecutor == nil {
		return nil, ErrGitExecutorNotConfigured
	}
	if len(definition.Name) == 0 || len(definition.GitDirectory) == 0 {
		return nil, ErrIncompleteDefinition
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Project{definition: definition, gitExecutor: gitExecutor, logger: logger}, nil
}

// Name returns the declared project name.
func (syncedProject *Project) Name() string { return syncedProject.definition.Name }

// GitDirectory returns the project metadata directory.
func (syncedProject *Project) GitDirectory() string { return syncedProject.definition.GitDirectory }

// WorkTree returns the checked-out working tree, empty for fetch-only projects.
func (syncedProject *Project) WorkTree() string { return syncedProject.definition.WorkTree }

// RelativePath returns the declared path relative to the workspace root.
func (syncedProject *Project) RelativePath() string { return syncedProject.definition.RelativePath }

// RevisionExpression returns the symbolic target revision.
func (syncedProject *Project) RevisionExpression() string {
	return syncedProject.definition.RevisionExpression
}

// Exists reports whether the project metadata directory is present on disk.
func (syncedProject *Project) Exists() bool {
	directoryInfo, statError := os.Stat(syncedProject.definition.GitDirectory)
	return statError == nil && directoryInfo.IsDir()
}

// SyncNetworkHalf downloads new objects from the project remote without touching
// the working tree, cloning first when the repository does not exist yet.
func (syncedProject *Project) SyncNetworkHalf(executionContext context.Context, quiet bool) error {
	if !syncedProject.Exists() {
		return syncedProject.clone(executionContext, quiet)
	}

	fetchArguments := []string{gitDirectoryFlagConstant, syncedProject.definition.GitDirectory, gitFetchSubcommandConstant}
	if quiet {
		fetchArguments = append(fetchArguments, quietFlagConstant)
	}
	fetchArguments = append(fetchArguments, syncedProject.definition.RemoteName)

	_, fetchError := syncedProject.runGit(executionContext, "", fetchArguments...)
	if fetchError != nil {
		return fmt.Errorf(projectOperationErrorTemplate, syncedProject.definition.Name, fetchError)
	}
	return nil
}

func (syncedProject *Project) clone(executionContext context.Context, quiet bool) error {
	remoteURL := strings.TrimSuffix(syncedProject.definition.RemoteFetchURL, "/") + "/" + syncedProject.definition.Name

	cloneArguments := []string{gitCloneSubcommandConstant}
	if quiet {
		cloneArguments = append(cloneArguments, quietFlagConstant)
	}
	if len(syncedProject.definition.WorkTree) > 0 {
		cloneArguments = append(cloneArguments,
			noCheckoutFlagConstant,
			separateGitDirectoryFlagConstant, syncedProject.definition.GitDirectory,
			remoteURL,
			syncedProject.definition.WorkTree,
		)
	} else {
		cloneArguments = append(cloneArguments, mirrorFlagConstant, remoteURL, syncedProject.definition.GitDirectory)
	}

	_, cloneError := syncedProject.runGit(executionContext, "", cloneArguments...)
	if cloneError != nil {
		return fmt.Errorf(projectOperationErrorTemplate, syncedProject.definition.Name, cloneError)
	}
	return nil
}

// SyncLocalHalf applies the fetched revision to the working tree. Conflicts and
// failures are recorded on the ledger; the pass over remaining projects continues.
func (syncedProject *Project) SyncLocalHalf(executionContext context.Context, ledger SyncLedger) {
	targetRevision := syncedProject.resolveRevision()

	headCommit, headError := syncedProject.revisionCommit(executionContext, headReferenceConstant)
	if headError != nil {
		// Unborn HEAD after a no-checkout clone: populate the tree directly.
		if _, checkoutError := syncedProject.runGit(executionContext, syncedProject.definition.WorkTree, gitCheckoutSubcommandConstant, targetRevision); checkoutError != nil {
			ledger.RecordFailure(syncedProject.definition.Name, checkoutError)
		}
		return
	}

	if ledger.DetachRequested() {
		if _, detachError := syncedProject.runGit(executionContext, syncedProject.definition.WorkTree, gitCheckoutSubcommandConstant, detachFlagConstant, targetRevision); detachError != nil {
			ledger.RecordFailure(syncedProject.definition.Name, detachError)
		}
		return
	}

	targetCommit, targetError := syncedProject.revisionCommit(executionContext, targetRevision)
	if targetError != nil {
		ledger.RecordFailure(syncedProject.definition.Name, targetError)
		return
	}
	if headCommit == targetCommit {
		return
	}

	mergeBaseResult, mergeBaseError := syncedProject.runGit(executionContext, syncedProject.definition.WorkTree, gitMergeBaseSubcommandConstant, headReferenceConstant, targetRevision)
	if mergeBaseError != nil {
		ledger.RecordFailure(syncedProject.definition.Name, mergeBaseError)
		return
	}
	mergeBaseCommit := strings.TrimSpace(mergeBaseResult.StandardOutput)

	if mergeBaseCommit == headCommit {
		if _, mergeError := syncedProject.runGit(executionContext, syncedProject.definition.WorkTree, gitMergeSubcommandConstant, fastForwardOnlyFlagConstant, targetRevision); mergeError != nil {
			ledger.RecordFailure(syncedProject.definition.Name, mergeError)
		}
		return
	}
	if mergeBaseCommit == targetCommit {
		// Local work is ahead of the manifest revision; nothing to apply.
		return
	}

	if _, rebaseError := syncedProject.runGit(executionContext, syncedProject.definition.WorkTree, gitRebaseSubcommandConstant, targetRevision); rebaseError != nil {
		_, _ = syncedProject.runGit(executionContext, syncedProject.definition.WorkTree, gitRebaseSubcommandConstant, abortFlagConstant)
		ledger.RecordDeferred(syncedProject.definition.Name, fmt.Sprintf(rebaseConflictReasonTemplate, targetRevision))
	}
}

// IsDirty reports whether the working tree has uncommitted changes.
func (syncedProject *Project) IsDirty(executionContext context.Context) (bool, error) {
	statusResult, statusError := syncedProject.runGit(executionContext, syncedProject.definition.WorkTree, gitStatusSubcommandConstant, porcelainFlagConstant)
	if statusError != nil {
		return false, fmt.Errorf(projectOperationErrorTemplate, syncedProject.definition.Name, statusError)
	}
	return len(strings.TrimSpace(statusResult.StandardOutput)) > 0, nil
}

// HasChanges reports whether the fetched target revision differs from HEAD.
func (syncedProject *Project) HasChanges(executionContext context.Context) bool {
	headCommit, headError := syncedProject.revisionCommit(executionContext, headReferenceConstant)
	if headError != nil {
		return true
	}
	targetCommit, targetError := syncedProject.revisionCommit(executionContext, syncedProject.resolveRevision())
	if targetError != nil {
		return false
	}
	return headCommit != targetCommit
}

// LastFetch returns the modification time of FETCH_HEAD, zero when never fetched.
func (syncedProject *Project) LastFetch() time.Time {
	fetchHeadInfo, statError := os.Stat(syncedProject.definition.GitDirectory + string(os.PathSeparator) + fetchHeadFileNameConstant)
	if statError != nil {
		return time.Time{}
	}
	return fetchHeadInfo.ModTime()
}

// PreSync fast-forwards the current branch onto its tracking branch when that is
// trivially possible. Failures are tolerated; the sync run decides what to apply.
func (syncedProject *Project) PreSync(executionContext context.Context) {
	if len(syncedProject.definition.WorkTree) == 0 {
		return
	}

	trackingReference, trackingError := syncedProject.TrackingBranch(executionContext)
	if trackingError != nil || len(trackingReference) == 0 {
		return
	}

	if _, mergeError := syncedProject.runGit(executionContext, syncedProject.definition.WorkTree, gitMergeSubcommandConstant, fastForwardOnlyFlagConstant, trackingReference); mergeError != nil {
		syncedProject.logger.Debug(presyncSkippedMessageConstant,
			zap.String(projectNameFieldConstant, syncedProject.definition.Name),
			zap.Error(mergeError),
		)
	}
}

// PostUpgrade verifies the repository metadata is still usable after the tool
// replaced itself, before any further git traffic.
func (syncedProject *Project) PostUpgrade(executionContext context.Context) error {
	_, verifyError := syncedProject.runGit(executionContext, "", gitDirectoryFlagConstant, syncedProject.definition.GitDirectory, gitRevParseSubcommandConstant, gitDirectoryFlagConstant)
	if verifyError != nil {
		return fmt.Errorf(projectOperationErrorTemplate, syncedProject.definition.Name, verifyError)
	}
	return nil
}

// RevisionDescription returns the closest tag description of the fetched revision.
func (syncedProject *Project) RevisionDescription(executionContext context.Context) (string, error) {
	describeResult, describeError := syncedProject.runGit(executionContext, "", gitDirectoryFlagConstant, syncedProject.definition.GitDirectory, gitDescribeSubcommandConstant, syncedProject.resolveRevision())
	if describeError != nil {
		return "", describeError
	}
	return strings.TrimSpace(describeResult.StandardOutput), nil
}

// CurrentBranch returns the checked-out branch name, empty when detached.
func (syncedProject *Project) CurrentBranch(executionContext context.Context) (string, error) {
	branchResult, branchError := syncedProject.runGit(executionContext, syncedProject.definition.WorkTree, gitRevParseSubcommandConstant, abbreviatedReferenceFlagConstant, headReferenceConstant)
	if branchError != nil {
		return "", fmt.Errorf(projectOperationErrorTemplate, syncedProject.definition.Name, branchError)
	}

	branchName := strings.TrimSpace(branchResult.StandardOutput)
	if branchName == headReferenceConstant {
		return "", nil
	}
	return branchName, nil
}

// TrackingBranch returns the merge configuration of the current branch, empty
// when the branch tracks nothing.
func (syncedProject *Project) TrackingBranch(executionContext context.Context) (string, error) {
	branchName, branchError := syncedProject.CurrentBranch(executionContext)
	if branchError != nil || len(branchName) == 0 {
		return "", branchError
	}

	configurationResult, configurationError := syncedProject.runGit(executionContext, syncedProject.definition.WorkTree, gitConfigSubcommandConstant, fmt.Sprintf(branchMergeConfigurationTemplate, branchName))
	if configurationError != nil {
		return "", nil
	}
	return strings.TrimSpace(configurationResult.StandardOutput), nil
}

func (syncedProject *Project) resolveRevision() string {
	if len(syncedProject.definition.RevisionID) > 0 {
		return syncedProject.definition.RevisionID
	}
	if strings.HasPrefix(syncedProject.definition.RevisionExpression, branchReferencePrefixConstant) {
		branchName := strings.TrimPrefix(syncedProject.definition.RevisionExpression, branchReferencePrefixConstant)
		return fmt.Sprintf(remoteBranchReferenceTemplate, syncedProject.definition.RemoteName, branchName)
	}
	return syncedProject.definition.RevisionExpression
}

func (syncedProject *Project) revisionCommit(executionContext context.Context, revisionReference string) (string, error) {
	workingDirectory := syncedProject.definition.WorkTree
	arguments := []string{gitRevParseSubcommandConstant, verifyFlagConstant, revisionReference}
	if len(workingDirectory) == 0 {
		arguments = append([]string{gitDirectoryFlagConstant, syncedProject.definition.GitDirectory}, arguments...)
	}

	revisionResult, revisionError := syncedProject.runGit(executionContext, workingDirectory, arguments...)
	if revisionError != nil {
		return "", revisionError
	}
	return strings.TrimSpace(revisionResult.StandardOutput), nil
}

func (syncedProject *Project) runGit(executionContext context.Context, workingDirectory string, arguments ...string) (execshell.ExecutionResult, error) {
	return syncedProject.gitExecutor.ExecuteGit(executionContext, execshell.CommandDetails{
		Arguments:        arguments,
		WorkingDirectory: workingDirectory,
	})
}
