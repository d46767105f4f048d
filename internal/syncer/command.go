package syncer

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/grovecli/grove/internal/execshell"
	"github.com/grovecli/grove/internal/manifest"
	"github.com/grovecli/grove/internal/project"
	"github.com/grovecli/grove/internal/selfupdate"
	"github.com/grovecli/grove/internal/smartsync"
	"github.com/grovecli/grove/internal/ui"
	"github.com/grovecli/grove/internal/workspace"
)

const (
	commandUseConstant              = "sync"
	commandShortDescriptionConstant = "Synchronize the workspace against its manifest"
	commandLongDescriptionConstant  = "sync fetches every manifest-declared project with bounded parallelism, reconciles the on-disk project set, and applies the fetched revisions to the working trees."

	forceBrokenFlagNameConstant        = "force-broken"
	forceBrokenFlagDescriptionConstant = "Continue past projects whose fetch fails"
	localOnlyFlagNameConstant          = "local-only"
	localOnlyFlagDescriptionConstant   = "Only update working trees, do not fetch"
	networkOnlyFlagNameConstant        = "network-only"
	networkOnlyFlagDescriptionConstant = "Only fetch, do not update working trees"
	detachFlagNameConstant             = "detach"
	detachFlagDescriptionConstant      = "Detach projects back to the manifest revision"
	quietFlagNameConstant              = "quiet"
	quietFlagDescriptionConstant       = "Reduce git output during the fetch phase"
	jobsFlagNameConstant               = "jobs"
	jobsFlagDescriptionConstant        = "Number of projects to fetch simultaneously"
	smartSyncFlagNameConstant          = "smart-sync"
	smartSyncFlagDescriptionConstant   = "Pin to a known-good manifest from the manifest service"
	noVerifyFlagNameConstant           = "no-verify"
	noVerifyFlagDescriptionConstant    = "Do not verify tool signatures before self-upgrade"
	alreadyUpgradedFlagDescription     = "Internal marker set by a restarted upgraded process"
)

// LoggerProvider yields a zap logger for command execution.
type LoggerProvider func() *zap.Logger

// CommandBuilder assembles the sync command.
type CommandBuilder struct {
	LoggerProvider               LoggerProvider
	GitExecutor                  project.GitExecutor
	WorkingDirectoryProvider     func() (string, error)
	HumanReadableLoggingProvider func() bool
	ConfigurationProvider        func() CommandConfiguration
}

// Build constructs the sync command.
func (builder *CommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   commandUseConstant,
		Short: commandShortDescriptionConstant,
		Long:  commandLongDescriptionConstant,
		Args:  cobra.NoArgs,
		RunE:  builder.run,
	}

	command.Flags().Bool(forceBrokenFlagNameConstant, false, forceBrokenFlagDescriptionConstant)
	command.Flags().BoolP(localOnlyFlagNameConstant, "l", false, localOnlyFlagDescriptionConstant)
	command.Flags().BoolP(networkOnlyFlagNameConstant, "n", false, networkOnlyFlagDescriptionConstant)
	command.Flags().BoolP(detachFlagNameConstant, "d", false, detachFlagDescriptionConstant)
	command.Flags().BoolP(quietFlagNameConstant, "q", false, quietFlagDescriptionConstant)
	command.Flags().IntP(jobsFlagNameConstant, "j", 0, jobsFlagDescriptionConstant)
	command.Flags().BoolP(smartSyncFlagNameConstant, "s", false, smartSyncFlagDescriptionConstant)
	command.Flags().Bool(noVerifyFlagNameConstant, false, noVerifyFlagDescriptionConstant)
	command.Flags().Bool(selfupdate.AlreadyUpgradedFlagName, false, alreadyUpgradedFlagDescription)
	if markError := command.Flags().MarkHidden(selfupdate.AlreadyUpgradedFlagName); markError != nil {
		return nil, markError
	}

	return command, nil
}

func (builder *CommandBuilder) run(command *cobra.Command, arguments []string) error {
	configuration := builder.resolveConfiguration()

	options, optionsError := builder.resolveOptions(command, configuration)
	if optionsError != nil {
		return optionsError
	}

	workingDirectory, workingDirectoryError := builder.resolveWorkingDirectory()
	if workingDirectoryError != nil {
		return workingDirectoryError
	}

	locatedWorkspace, locateError := workspace.Locate(workingDirectory)
	if locateError != nil {
		return locateError
	}
	workspaceSettings, settingsError := locatedWorkspace.LoadSettings()
	if settingsError != nil {
		return settingsError
	}
	if options.JobCount < 1 {
		options.JobCount = workspaceSettings.Jobs
	}
	if options.JobCount < 1 {
		options.JobCount = configuration.JobCount
	}

	logger := builder.resolveLogger()
	gitExecutor, executorError := builder.resolveGitExecutor(logger)
	if executorError != nil {
		return executorError
	}

	noVerifyRequested, noVerifyError := command.Flags().GetBool(noVerifyFlagNameConstant)
	if noVerifyError != nil {
		return noVerifyError
	}
	trustPolicy := selfupdate.DefaultTrustPolicy()
	trustPolicy.SkipVerification = noVerifyRequested || configuration.SkipVerification
	trustPolicy.TrustMaterialDirectory = workspaceSettings.TrustMaterialDirectory
	upgradeVerifier, verifierError := selfupdate.NewVerifier(logger, gitExecutor, trustPolicy)
	if verifierError != nil {
		return verifierError
	}

	service, serviceError := NewService(ServiceDependencies{
		Logger:          logger,
		Workspace:       locatedWorkspace,
		Settings:        workspaceSettings,
		GitExecutor:     gitExecutor,
		ManifestLoader:  manifest.NewLoader(locatedWorkspace.ManifestPath()),
		ManifestFetcher: smartsync.NewClient(logger, nil),
		UpgradeVerifier: upgradeVerifier,
		Output:          command.OutOrStdout(),
	})
	if serviceError != nil {
		return serviceError
	}

	return service.Sync(command.Context(), options)
}

func (builder *CommandBuilder) resolveOptions(command *cobra.Command, configuration CommandConfiguration) (SyncOptions, error) {
	options := SyncOptions{}

	booleanFlagTargets := map[string]*bool{
		forceBrokenFlagNameConstant:        &options.ForceBroken,
		localOnlyFlagNameConstant:          &options.LocalOnly,
		networkOnlyFlagNameConstant:        &options.NetworkOnly,
		detachFlagNameConstant:             &options.DetachHead,
		quietFlagNameConstant:              &options.Quiet,
		smartSyncFlagNameConstant:          &options.SmartSync,
		selfupdate.AlreadyUpgradedFlagName: &options.AlreadyUpgraded,
	}
	for flagName, flagTarget := range booleanFlagTargets {
		flagValue, flagError := command.Flags().GetBool(flagName)
		if flagError != nil {
			return SyncOptions{}, flagError
		}
		*flagTarget = flagValue
	}

	if !options.Quiet {
		options.Quiet = configuration.Quiet
	}

	// Job-count precedence: explicit flag, then workspace settings, then the
	// configured default.
	jobCount, jobsError := command.Flags().GetInt(jobsFlagNameConstant)
	if jobsError != nil {
		return SyncOptions{}, jobsError
	}
	if !command.Flags().Changed(jobsFlagNameConstant) {
		jobCount = 0
	}
	options.JobCount = jobCount

	return options, nil
}

func (builder *CommandBuilder) resolveWorkingDirectory() (string, error) {
	if builder.WorkingDirectoryProvider != nil {
		return builder.WorkingDirectoryProvider()
	}
	return os.Getwd()
}

func (builder *CommandBuilder) resolveGitExecutor(logger *zap.Logger) (project.GitExecutor, error) {
	if builder.GitExecutor != nil {
		return builder.GitExecutor, nil
	}

	var eventObserver execshell.CommandEventObserver
	if builder.HumanReadableLoggingProvider != nil && builder.HumanReadableLoggingProvider() {
		eventObserver = ui.NewConsoleCommandEventLogger(logger)
	}
	return execshell.NewShellExecutor(logger, execshell.NewOSCommandRunner(), eventObserver)
}

func (builder *CommandBuilder) resolveConfiguration() CommandConfiguration {
	if builder.ConfigurationProvider == nil {
		return DefaultCommandConfiguration()
	}
	return builder.ConfigurationProvider().Sanitize()
}

func (builder *CommandBuilder) resolveLogger() *zap.Logger {
	if builder.LoggerProvider == nil {
		return zap.NewNop()
	}
	logger := builder.LoggerProvider()
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}
