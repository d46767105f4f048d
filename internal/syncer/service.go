package syncer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/grovecli/grove/internal/manifest"
	"github.com/grovecli/grove/internal/project"
	"github.com/grovecli/grove/internal/selfupdate"
	"github.com/grovecli/grove/internal/ui"
	"github.com/grovecli/grove/internal/utils"
	"github.com/grovecli/grove/internal/workspace"
)

const (
	conflictingFlagsMessageConstant          = "--network-only cannot combine with --detach or --local-only"
	incompleteDependenciesMessageConstant    = "sync service requires a workspace, a git executor, and a manifest loader"
	manifestServerMissingMessageConstant     = "smart sync requires a manifest-server declaration in the manifest"
	manifestFetcherMissingMessageConstant    = "smart sync requires a manifest service client"
	manifestBranchMissingMessageConstant     = "smart sync could not determine the manifest tracking branch"
	manifestUpdateFailedMessageConstant      = "manifest checkout update failed"
	localUpdateFailedMessageConstant         = "one or more projects failed to update"
	toolUpdateFailedMessageConstant          = "tool checkout update failed"
	upgradeSkippedMessageConstant            = "tool upgrade skipped; continuing on the current version"
	smartSyncFailedErrorTemplateConstant     = "smart sync failed: %w"
	writeOverrideErrorTemplateConstant       = "unable to write smart sync override %s: %w"
	localUpdateProgressTitleConstant         = "Syncing work trees"
	smartSyncOverrideFileNameConstant        = "smart_sync_override.xml"
	targetProductEnvironmentNameConstant     = "TARGET_PRODUCT"
	targetVariantEnvironmentNameConstant     = "TARGET_BUILD_VARIANT"
	targetIdentifierSeparatorConstant        = "-"
	branchReferencePrefixConstant            = "refs/heads/"
	toolProjectNameConstant                  = "grove"
	manifestProjectNameConstant              = "manifests"
	metaProjectRemoteNameConstant            = "origin"
	transientGitDirectoryNameConstant        = ".git"
	transientRevisionExpressionConstant      = "HEAD"
	toolFetchIntervalConstant                = 24 * time.Hour
)

// ErrConflictingSyncFlags indicates mutually exclusive sync flags were combined.
var ErrConflictingSyncFlags = errors.New(conflictingFlagsMessageConstant)

// ErrServiceDependenciesIncomplete indicates the service was built without required collaborators.
var ErrServiceDependenciesIncomplete = errors.New(incompleteDependenciesMessageConstant)

// ErrManifestServerNotConfigured indicates smart sync was requested without a manifest-server declaration.
var ErrManifestServerNotConfigured = errors.New(manifestServerMissingMessageConstant)

// ErrManifestFetcherNotConfigured indicates smart sync was requested without a service client.
var ErrManifestFetcherNotConfigured = errors.New(manifestFetcherMissingMessageConstant)

// ErrManifestBranchUnknown indicates the manifest checkout exposes no branch to pin against.
var ErrManifestBranchUnknown = errors.New(manifestBranchMissingMessageConstant)

// ErrManifestUpdateFailed indicates the manifest checkout could not be advanced.
var ErrManifestUpdateFailed = errors.New(manifestUpdateFailedMessageConstant)

// ErrLocalUpdateFailed indicates the local-update pass finished with failures.
var ErrLocalUpdateFailed = errors.New(localUpdateFailedMessageConstant)

// ErrToolUpdateFailed indicates the tool checkout could not be advanced during an upgrade.
var ErrToolUpdateFailed = errors.New(toolUpdateFailedMessageConstant)

// ApprovedManifestFetcher retrieves an approved manifest snapshot from the manifest service.
type ApprovedManifestFetcher interface {
	FetchApprovedManifest(executionContext context.Context, serverURL string, branch string, target string) (string, error)
}

// UpgradeVerifier decides whether a fetched tool version may be adopted.
type UpgradeVerifier interface {
	Verify(executionContext context.Context, toolRepository selfupdate.ToolRepository) (bool, error)
}

// SyncOptions are the per-run options of one sync invocation.
type SyncOptions struct {
	ForceBroken     bool
	LocalOnly       bool
	NetworkOnly     bool
	DetachHead      bool
	Quiet           bool
	JobCount        int
	SmartSync       bool
	AlreadyUpgraded bool
}

// ServiceDependencies enumerate the collaborators a sync service needs.
type ServiceDependencies struct {
	Logger          *zap.Logger
	Workspace       *workspace.Workspace
	Settings        workspace.Settings
	GitExecutor     project.GitExecutor
	ManifestLoader  *manifest.Loader
	ManifestFetcher ApprovedManifestFetcher
	UpgradeVerifier UpgradeVerifier
	Output          io.Writer
}

// Service drives the two-phase synchronization of a workspace.
type Service struct {
	logger          *zap.Logger
	workspace       *workspace.Workspace
	settings        workspace.Settings
	gitExecutor     project.GitExecutor
	manifestLoader  *manifest.Loader
	manifestFetcher ApprovedManifestFetcher
	upgradeVerifier UpgradeVerifier
	fetchScheduler  *FetchScheduler
	output          io.Writer
}

// NewService validates the dependencies and constructs a sync service.
func NewService(dependencies ServiceDependencies) (*Service, error) {
	if dependencies.Workspace == nil || dependencies.GitExecutor == nil || dependencies.ManifestLoader == nil {
		return nil, ErrServiceDependenciesIncomplete
	}
	if dependencies.Logger == nil {
		dependencies.Logger = zap.NewNop()
	}
	if dependencies.Output == nil {
		dependencies.Output = os.Stdout
	}
	return &Service{
		logger:          dependencies.Logger,
		workspace:       dependencies.Workspace,
		settings:        dependencies.Settings,
		gitExecutor:     dependencies.GitExecutor,
		manifestLoader:  dependencies.ManifestLoader,
		manifestFetcher: dependencies.ManifestFetcher,
		upgradeVerifier: dependencies.UpgradeVerifier,
		fetchScheduler:  NewFetchScheduler(dependencies.Logger),
		output:          utils.NewFlushingWriter(dependencies.Output),
	}, nil
}

// Sync runs the full synchronization state machine for one invocation.
func (service *Service) Sync(executionContext context.Context, options SyncOptions) error {
	if options.NetworkOnly && (options.DetachHead || options.LocalOnly) {
		return ErrConflictingSyncFlags
	}

	currentManifest, loadError := service.manifestLoader.Load()
	if loadError != nil {
		return loadError
	}

	toolProject, manifestProject, metaError := service.buildMetaProjects()
	if metaError != nil {
		return metaError
	}

	if options.SmartSync {
		overriddenManifest, smartSyncError := service.applySmartSync(executionContext, manifestProject, currentManifest)
		if smartSyncError != nil {
			return smartSyncError
		}
		currentManifest = overriddenManifest
	}

	toolProject.PreSync(executionContext)
	manifestProject.PreSync(executionContext)

	if options.AlreadyUpgraded {
		if postUpgradeError := toolProject.PostUpgrade(executionContext); postUpgradeError != nil {
			return postUpgradeError
		}
		if postUpgradeError := manifestProject.PostUpgrade(executionContext); postUpgradeError != nil {
			return postUpgradeError
		}
	}

	if !options.LocalOnly {
		updatedManifest, manifestError := service.updateManifestCheckout(executionContext, manifestProject, options)
		if manifestError != nil {
			return manifestError
		}
		if updatedManifest != nil {
			currentManifest = updatedManifest
		}
	}

	allProjects, buildError := service.buildProjects(currentManifest)
	if buildError != nil {
		return buildError
	}

	if !options.LocalOnly {
		fetchError := service.runFetchPhase(executionContext, toolProject, allProjects, options)
		if fetchError != nil {
			return fetchError
		}
		if options.NetworkOnly {
			return nil
		}
	}

	if service.settings.Mirror {
		return nil
	}

	if reconcileError := service.reconcileProjectSet(executionContext, currentManifest); reconcileError != nil {
		return reconcileError
	}

	if localUpdateError := service.runLocalUpdatePhase(executionContext, allProjects, options); localUpdateError != nil {
		return localUpdateError
	}

	if noticeText := currentManifest.Notice(); len(noticeText) > 0 {
		fmt.Fprintln(service.output, noticeText)
	}
	return nil
}

func (service *Service) buildMetaProjects() (*project.Project, *project.Project, error) {
	toolRevision := service.settings.ToolRevision
	if len(toolRevision) == 0 {
		toolRevision = workspace.DefaultToolRevision
	}
	manifestRevision := service.settings.ManifestRevision
	if len(manifestRevision) == 0 {
		manifestRevision = workspace.DefaultManifestRevision
	}

	toolProject, toolError := project.NewProject(project.Definition{
		Name:               toolProjectNameConstant,
		GitDirectory:       service.workspace.ToolGitDirectory(),
		WorkTree:           service.workspace.ToolWorkTree(),
		RelativePath:       toolProjectNameConstant,
		RemoteName:         metaProjectRemoteNameConstant,
		RevisionExpression: toolRevision,
	}, service.gitExecutor, service.logger)
	if toolError != nil {
		return nil, nil, toolError
	}

	manifestProject, manifestError := project.NewProject(project.Definition{
		Name:               manifestProjectNameConstant,
		GitDirectory:       service.workspace.ManifestsGitDirectory(),
		WorkTree:           service.workspace.ManifestsWorkTree(),
		RelativePath:       manifestProjectNameConstant,
		RemoteName:         metaProjectRemoteNameConstant,
		RevisionExpression: manifestRevision,
	}, service.gitExecutor, service.logger)
	if manifestError != nil {
		return nil, nil, manifestError
	}
	return toolProject, manifestProject, nil
}

func (service *Service) buildProjects(currentManifest *manifest.Manifest) ([]*project.Project, error) {
	declaredProjects := currentManifest.Projects()
	builtProjects := make([]*project.Project, 0, len(declaredProjects))
	for _, declaredProject := range declaredProjects {
		workTree := service.workspace.ProjectWorkTree(declaredProject.RelativePath)
		if service.settings.Mirror {
			workTree = ""
		}

		builtProject, buildError := project.NewProject(project.Definition{
			Name:               declaredProject.Name,
			GitDirectory:       service.workspace.ProjectGitDirectory(declaredProject.RelativePath),
			WorkTree:           workTree,
			RelativePath:       declaredProject.RelativePath,
			RemoteName:         declaredProject.RemoteName,
			RemoteFetchURL:     declaredProject.RemoteFetchURL,
			RevisionExpression: declaredProject.RevisionExpression,
		}, service.gitExecutor, service.logger)
		if buildError != nil {
			return nil, buildError
		}
		builtProjects = append(builtProjects, builtProject)
	}
	return builtProjects, nil
}

func (service *Service) applySmartSync(executionContext context.Context, manifestProject *project.Project, currentManifest *manifest.Manifest) (*manifest.Manifest, error) {
	serverURL := currentManifest.ManifestServerURL()
	if len(serverURL) == 0 {
		return nil, ErrManifestServerNotConfigured
	}
	if service.manifestFetcher == nil {
		return nil, ErrManifestFetcherNotConfigured
	}

	trackingReference, trackingError := manifestProject.TrackingBranch(executionContext)
	if trackingError != nil {
		return nil, trackingError
	}
	branchName := strings.TrimPrefix(trackingReference, branchReferencePrefixConstant)
	if len(branchName) == 0 {
		currentBranch, branchError := manifestProject.CurrentBranch(executionContext)
		if branchError != nil {
			return nil, branchError
		}
		branchName = currentBranch
	}
	if len(branchName) == 0 {
		return nil, ErrManifestBranchUnknown
	}

	targetIdentifier := ""
	targetProduct := os.Getenv(targetProductEnvironmentNameConstant)
	targetVariant := os.Getenv(targetVariantEnvironmentNameConstant)
	if len(targetProduct) > 0 && len(targetVariant) > 0 {
		targetIdentifier = targetProduct + targetIdentifierSeparatorConstant + targetVariant
	}

	manifestPayload, fetchError := service.manifestFetcher.FetchApprovedManifest(executionContext, serverURL, branchName, targetIdentifier)
	if fetchError != nil {
		return nil, fmt.Errorf(smartSyncFailedErrorTemplateConstant, fetchError)
	}

	overridePath := filepath.Join(service.workspace.ManifestsWorkTree(), smartSyncOverrideFileNameConstant)
	if writeError := os.WriteFile(overridePath, []byte(manifestPayload), 0o644); writeError != nil {
		return nil, fmt.Errorf(writeOverrideErrorTemplateConstant, overridePath, writeError)
	}
	return service.manifestLoader.Override(overridePath)
}

// updateManifestCheckout fetches the manifest repository and, when the checkout
// moved, applies it and reloads the manifest. Returns the reloaded manifest or
// nil when nothing changed.
func (service *Service) updateManifestCheckout(executionContext context.Context, manifestProject *project.Project, options SyncOptions) (*manifest.Manifest, error) {
	if fetchError := manifestProject.SyncNetworkHalf(executionContext, options.Quiet); fetchError != nil {
		return nil, fetchError
	}
	if !manifestProject.HasChanges(executionContext) {
		return nil, nil
	}

	manifestLedger := NewLedger(service.logger, LedgerOptions{})
	manifestProject.SyncLocalHalf(executionContext, manifestLedger)
	if !manifestLedger.Finish() {
		return nil, ErrManifestUpdateFailed
	}
	return service.manifestLoader.Reload()
}

func (service *Service) runFetchPhase(executionContext context.Context, toolProject *project.Project, allProjects []*project.Project, options SyncOptions) error {
	fetchList := make([]NetworkProject, 0, len(allProjects)+1)
	if time.Since(toolProject.LastFetch()) > toolFetchIntervalConstant {
		fetchList = append(fetchList, toolProject)
	}
	for _, fetchedProject := range allProjects {
		fetchList = append(fetchList, fetchedProject)
	}

	fetchOutcome, fetchError := service.fetchScheduler.Fetch(executionContext, fetchList, FetchOptions{
		JobCount:      options.JobCount,
		Quiet:         options.Quiet,
		ForceContinue: options.ForceBroken,
	})
	if fetchError != nil {
		return fetchError
	}

	if upgradeError := service.maybeUpgradeTool(executionContext, toolProject, options); upgradeError != nil {
		return upgradeError
	}
	if options.NetworkOnly {
		return nil
	}

	// Second pass over projects the first enumeration missed, typically ones a
	// reloaded manifest introduced after the fetch set was built.
	for _, declaredProject := range allProjects {
		if fetchOutcome.Fetched(declaredProject.GitDirectory()) {
			continue
		}
		retryError := declaredProject.SyncNetworkHalf(executionContext, options.Quiet)
		if retryError == nil {
			continue
		}
		if options.ForceBroken {
			service.logger.Warn(fetchSkippedMessageConstant,
				zap.String(fetchProjectFieldConstant, declaredProject.Name()),
				zap.Error(retryError),
			)
			continue
		}
		return retryError
	}
	return nil
}

func (service *Service) maybeUpgradeTool(executionContext context.Context, toolProject *project.Project, options SyncOptions) error {
	if options.AlreadyUpgraded || !toolProject.HasChanges(executionContext) {
		return nil
	}

	adoptable := true
	if service.upgradeVerifier != nil {
		verifierAdoptable, verifyError := service.upgradeVerifier.Verify(executionContext, toolProject)
		if verifyError != nil {
			return verifyError
		}
		adoptable = verifierAdoptable
	}
	if !adoptable {
		service.logger.Warn(upgradeSkippedMessageConstant)
		return nil
	}

	toolLedger := NewLedger(service.logger, LedgerOptions{})
	toolProject.SyncLocalHalf(executionContext, toolLedger)
	if !toolLedger.Finish() {
		return ErrToolUpdateFailed
	}
	return selfupdate.NewRestartRequiredError()
}

func (service *Service) reconcileProjectSet(executionContext context.Context, currentManifest *manifest.Manifest) error {
	declaredPaths := make([]string, 0, len(currentManifest.Projects()))
	for _, declaredProject := range currentManifest.Projects() {
		declaredPaths = append(declaredPaths, declaredProject.RelativePath)
	}

	reconciler, reconcilerError := NewReconciler(
		service.logger,
		service.workspace.RootDirectory(),
		service.workspace.ProjectListPath(),
		service.checkWorkTreeDirty,
	)
	if reconcilerError != nil {
		return reconcilerError
	}
	return reconciler.Reconcile(executionContext, declaredPaths)
}

func (service *Service) runLocalUpdatePhase(executionContext context.Context, allProjects []*project.Project, options SyncOptions) error {
	workTreeProjects := make([]*project.Project, 0, len(allProjects))
	for _, candidateProject := range allProjects {
		if len(candidateProject.WorkTree()) > 0 {
			workTreeProjects = append(workTreeProjects, candidateProject)
		}
	}

	localLedger := NewLedger(service.logger, LedgerOptions{DetachHead: options.DetachHead})
	progressMeter := ui.NewProgressMeter(service.logger, localUpdateProgressTitleConstant, len(workTreeProjects))
	for _, updatedProject := range workTreeProjects {
		updatedProject.SyncLocalHalf(executionContext, localLedger)
		progressMeter.Increment()
	}
	progressMeter.End()

	if !localLedger.Finish() {
		return ErrLocalUpdateFailed
	}
	return nil
}

func (service *Service) checkWorkTreeDirty(executionContext context.Context, workTreePath string) (bool, error) {
	transientProject, buildError := project.NewProject(project.Definition{
		Name:               filepath.Base(workTreePath),
		GitDirectory:       filepath.Join(workTreePath, transientGitDirectoryNameConstant),
		WorkTree:           workTreePath,
		RevisionExpression: transientRevisionExpressionConstant,
	}, service.gitExecutor, service.logger)
	if buildError != nil {
		return false, buildError
	}
	return transientProject.IsDirty(executionContext)
}
