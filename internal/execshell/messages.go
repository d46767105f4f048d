package execshell

import (
	"fmt"
	"strings"
)

type messageStage int

const (
	messageStageStart messageStage = iota
	messageStageSuccess
	messageStageFailure
	messageStageExecutionFailure
)

const (
	genericStartTemplateConstant            = "Running %s"
	genericSuccessTemplateConstant          = "Completed %s"
	genericFailureTemplateConstant          = "%s failed with exit code %d%s"
	genericExecutionFailureTemplateConstant = "%s failed: %s"
	commandLabelTemplateConstant            = "%s%s"
	workingDirectorySuffixTemplateConstant  = " (in %s)"
	commandArgumentsJoinSeparatorConstant   = " "
	standardErrorSuffixTemplateConstant     = ": %s"
	unknownFailureMessageConstant           = "unknown error"
	emptyStringConstant                     = ""
	defaultWorkingDirectoryLabelConstant    = "current directory"
	fallbackUnknownValueLabelConstant       = "unknown"
)

const (
	gitFetchSubcommandNameConstant        = "fetch"
	gitCloneSubcommandNameConstant        = "clone"
	gitStatusSubcommandNameConstant       = "status"
	gitCheckoutSubcommandNameConstant     = "checkout"
	gitRebaseSubcommandNameConstant       = "rebase"
	gitMergeSubcommandNameConstant        = "merge"
	gitDescribeSubcommandNameConstant     = "describe"
	gitRevParseSubcommandNameConstant     = "rev-parse"
	gitMergeBaseSubcommandNameConstant    = "merge-base"
	gitTagSubcommandNameConstant          = "tag"
	gitTagVerifyFlagConstant              = "-v"
	gitGitDirFlagConstant                 = "--git-dir"
	subcommandArgumentSkipCountConstant   = 1
	gitDirFlagWithValueSkipCountConstant  = 2
	flagPrefixConstant                    = "-"
)

const (
	gitFetchStartTemplateConstant                = "Fetching from %s%s"
	gitFetchSuccessTemplateConstant              = "Fetched from %s%s"
	gitFetchFailureTemplateConstant              = "Failed to fetch from %s%s (exit code %d%s)"
	gitFetchExecutionFailureTemplateConstant     = "Unable to fetch from %s%s: %s"
	gitFetchAllRemotesLabelConstant              = "all remotes"
	gitCloneStartTemplateConstant                = "Cloning %s into %s"
	gitCloneSuccessTemplateConstant              = "Cloned %s into %s"
	gitCloneFailureTemplateConstant              = "Failed to clone %s into %s (exit code %d%s)"
	gitCloneExecutionFailureTemplateConstant     = "Unable to clone %s into %s: %s"
	gitStatusStartTemplateConstant               = "Reviewing working tree status%s"
	gitStatusSuccessTemplateConstant             = "Collected working tree status%s"
	gitStatusFailureTemplateConstant             = "Failed to review working tree status%s (exit code %d%s)"
	gitStatusExecutionFailureTemplateConstant    = "Unable to review working tree status%s: %s"
	gitCheckoutStartTemplateConstant             = "Checking out %s%s"
	gitCheckoutSuccessTemplateConstant           = "Checked out %s%s"
	gitCheckoutFailureTemplateConstant           = "Failed to check out %s%s (exit code %d%s)"
	gitCheckoutExecutionFailureTemplateConstant  = "Unable to check out %s%s: %s"
	gitRebaseStartTemplateConstant               = "Rebasing onto %s%s"
	gitRebaseSuccessTemplateConstant             = "Rebased onto %s%s"
	gitRebaseFailureTemplateConstant             = "Failed to rebase onto %s%s (exit code %d%s)"
	gitRebaseExecutionFailureTemplateConstant    = "Unable to rebase onto %s%s: %s"
	gitMergeStartTemplateConstant                = "Merging %s%s"
	gitMergeSuccessTemplateConstant              = "Merged %s%s"
	gitMergeFailureTemplateConstant              = "Failed to merge %s%s (exit code %d%s)"
	gitMergeExecutionFailureTemplateConstant     = "Unable to merge %s%s: %s"
	gitDescribeStartTemplateConstant             = "Describing revision %s%s"
	gitDescribeSuccessTemplateConstant           = "Described revision %s%s"
	gitDescribeFailureTemplateConstant           = "Failed to describe revision %s%s (exit code %d%s)"
	gitDescribeExecutionFailureTemplateConstant  = "Unable to describe revision %s%s: %s"
	gitRevisionStartTemplateConstant             = "Resolving %s%s"
	gitRevisionSuccessTemplateConstant           = "Resolved %s%s"
	gitRevisionFailureTemplateConstant           = "Failed to resolve %s%s (exit code %d%s)"
	gitRevisionExecutionFailureTemplateConstant  = "Unable to resolve %s%s: %s"
	gitTagVerifyStartTemplateConstant            = "Verifying tag signature for %s"
	gitTagVerifySuccessTemplateConstant          = "Verified tag signature for %s"
	gitTagVerifyFailureTemplateConstant          = "Tag signature verification failed for %s (exit code %d%s)"
	gitTagVerifyExecutionFailureTemplateConstant = "Unable to verify tag signature for %s: %s"
)

// CommandMessageFormatter builds human-readable messages for command lifecycle events.
type CommandMessageFormatter struct{}

// BuildStartedMessage formats the message describing a command about to run.
func (formatter CommandMessageFormatter) BuildStartedMessage(command ShellCommand) string {
	return formatter.buildMessage(command, ExecutionResult{}, nil, messageStageStart)
}

// BuildSuccessMessage formats the message describing a completed command with a zero exit code.
func (formatter CommandMessageFormatter) BuildSuccessMessage(command ShellCommand) string {
	return formatter.buildMessage(command, ExecutionResult{}, nil, messageStageSuccess)
}

// BuildFailureMessage formats the message describing a command that returned a non-zero exit code.
func (formatter CommandMessageFormatter) BuildFailureMessage(command ShellCommand, result ExecutionResult) string {
	return formatter.buildMessage(command, result, nil, messageStageFailure)
}

// BuildExecutionFailureMessage formats the message describing an unexpected execution failure.
func (formatter CommandMessageFormatter) BuildExecutionFailureMessage(command ShellCommand, failure error) string {
	return formatter.buildMessage(command, ExecutionResult{}, failure, messageStageExecutionFailure)
}

func (formatter CommandMessageFormatter) buildMessage(command ShellCommand, result ExecutionResult, failure error, stage messageStage) string {
	if command.Name == CommandGit {
		if gitMessage, recognized := formatter.buildGitMessage(command, result, failure, stage); recognized {
			return gitMessage
		}
	}
	return formatter.buildGenericMessage(command, result, failure, stage)
}

func (formatter CommandMessageFormatter) buildGitMessage(command ShellCommand, result ExecutionResult, failure error, stage messageStage) (string, bool) {
	subcommandName, subcommandArguments := formatter.splitGitArguments(command.Details.Arguments)
	directorySuffix := formatter.workingDirectorySuffix(command)

	switch subcommandName {
	case gitFetchSubcommandNameConstant:
		remoteLabel := formatter.firstPositionalArgument(subcommandArguments, gitFetchAllRemotesLabelConstant)
		return formatter.renderStage(stage,
			fmt.Sprintf(gitFetchStartTemplateConstant, remoteLabel, directorySuffix),
			fmt.Sprintf(gitFetchSuccessTemplateConstant, remoteLabel, directorySuffix),
			fmt.Sprintf(gitFetchFailureTemplateConstant, remoteLabel, directorySuffix, result.ExitCode, formatter.standardErrorSuffix(result.StandardError)),
			fmt.Sprintf(gitFetchExecutionFailureTemplateConstant, remoteLabel, directorySuffix, formatter.failureLabel(failure)),
		), true
	case gitCloneSubcommandNameConstant:
		sourceLabel, destinationLabel := formatter.cloneArguments(subcommandArguments)
		return formatter.renderStage(stage,
			fmt.Sprintf(gitCloneStartTemplateConstant, sourceLabel, destinationLabel),
			fmt.Sprintf(gitCloneSuccessTemplateConstant, sourceLabel, destinationLabel),
			fmt.Sprintf(gitCloneFailureTemplateConstant, sourceLabel, destinationLabel, result.ExitCode, formatter.standardErrorSuffix(result.StandardError)),
			fmt.Sprintf(gitCloneExecutionFailureTemplateConstant, sourceLabel, destinationLabel, formatter.failureLabel(failure)),
		), true
	case gitStatusSubcommandNameConstant:
		return formatter.renderStage(stage,
			fmt.Sprintf(gitStatusStartTemplateConstant, directorySuffix),
			fmt.Sprintf(gitStatusSuccessTemplateConstant, directorySuffix),
			fmt.Sprintf(gitStatusFailureTemplateConstant, directorySuffix, result.ExitCode, formatter.standardErrorSuffix(result.StandardError)),
			fmt.Sprintf(gitStatusExecutionFailureTemplateConstant, directorySuffix, formatter.failureLabel(failure)),
		), true
	case gitCheckoutSubcommandNameConstant:
		targetLabel := formatter.lastPositionalArgument(subcommandArguments)
		return formatter.renderStage(stage,
			fmt.Sprintf(gitCheckoutStartTemplateConstant, targetLabel, directorySuffix),
			fmt.Sprintf(gitCheckoutSuccessTemplateConstant, targetLabel, directorySuffix),
			fmt.Sprintf(gitCheckoutFailureTemplateConstant, targetLabel, directorySuffix, result.ExitCode, formatter.standardErrorSuffix(result.StandardError)),
			fmt.Sprintf(gitCheckoutExecutionFailureTemplateConstant, targetLabel, directorySuffix, formatter.failureLabel(failure)),
		), true
	case gitRebaseSubcommandNameConstant:
		targetLabel := formatter.lastPositionalArgument(subcommandArguments)
		return formatter.renderStage(stage,
			fmt.Sprintf(gitRebaseStartTemplateConstant, targetLabel, directorySuffix),
			fmt.Sprintf(gitRebaseSuccessTemplateConstant, targetLabel, directorySuffix),
			fmt.Sprintf(gitRebaseFailureTemplateConstant, targetLabel, directorySuffix, result.ExitCode, formatter.standardErrorSuffix(result.StandardError)),
			fmt.Sprintf(gitRebaseExecutionFailureTemplateConstant, targetLabel, directorySuffix, formatter.failureLabel(failure)),
		), true
	case gitMergeSubcommandNameConstant:
		targetLabel := formatter.lastPositionalArgument(subcommandArguments)
		return formatter.renderStage(stage,
			fmt.Sprintf(gitMergeStartTemplateConstant, targetLabel, directorySuffix),
			fmt.Sprintf(gitMergeSuccessTemplateConstant, targetLabel, directorySuffix),
			fmt.Sprintf(gitMergeFailureTemplateConstant, targetLabel, directorySuffix, result.ExitCode, formatter.standardErrorSuffix(result.StandardError)),
			fmt.Sprintf(gitMergeExecutionFailureTemplateConstant, targetLabel, directorySuffix, formatter.failureLabel(failure)),
		), true
	case gitDescribeSubcommandNameConstant:
		revisionLabel := formatter.lastPositionalArgument(subcommandArguments)
		return formatter.renderStage(stage,
			fmt.Sprintf(gitDescribeStartTemplateConstant, revisionLabel, directorySuffix),
			fmt.Sprintf(gitDescribeSuccessTemplateConstant, revisionLabel, directorySuffix),
			fmt.Sprintf(gitDescribeFailureTemplateConstant, revisionLabel, directorySuffix, result.ExitCode, formatter.standardErrorSuffix(result.StandardError)),
			fmt.Sprintf(gitDescribeExecutionFailureTemplateConstant, revisionLabel, directorySuffix, formatter.failureLabel(failure)),
		), true
	case gitRevParseSubcommandNameConstant, gitMergeBaseSubcommandNameConstant:
		revisionLabel := formatter.lastPositionalArgument(subcommandArguments)
		return formatter.renderStage(stage,
			fmt.Sprintf(gitRevisionStartTemplateConstant, revisionLabel, directorySuffix),
			fmt.Sprintf(gitRevisionSuccessTemplateConstant, revisionLabel, directorySuffix),
			fmt.Sprintf(gitRevisionFailureTemplateConstant, revisionLabel, directorySuffix, result.ExitCode, formatter.standardErrorSuffix(result.StandardError)),
			fmt.Sprintf(gitRevisionExecutionFailureTemplateConstant, revisionLabel, directorySuffix, formatter.failureLabel(failure)),
		), true
	case gitTagSubcommandNameConstant:
		if !formatter.isTagVerification(subcommandArguments) {
			return emptyStringConstant, false
		}
		tagLabel := formatter.lastPositionalArgument(subcommandArguments)
		return formatter.renderStage(stage,
			fmt.Sprintf(gitTagVerifyStartTemplateConstant, tagLabel),
			fmt.Sprintf(gitTagVerifySuccessTemplateConstant, tagLabel),
			fmt.Sprintf(gitTagVerifyFailureTemplateConstant, tagLabel, result.ExitCode, formatter.standardErrorSuffix(result.StandardError)),
			fmt.Sprintf(gitTagVerifyExecutionFailureTemplateConstant, tagLabel, formatter.failureLabel(failure)),
		), true
	}

	return emptyStringConstant, false
}

func (formatter CommandMessageFormatter) buildGenericMessage(command ShellCommand, result ExecutionResult, failure error, stage messageStage) string {
	commandLabel := formatter.formatCommandLabel(command)
	return formatter.renderStage(stage,
		fmt.Sprintf(genericStartTemplateConstant, commandLabel),
		fmt.Sprintf(genericSuccessTemplateConstant, commandLabel),
		fmt.Sprintf(genericFailureTemplateConstant, commandLabel, result.ExitCode, formatter.standardErrorSuffix(result.StandardError)),
		fmt.Sprintf(genericExecutionFailureTemplateConstant, commandLabel, formatter.failureLabel(failure)),
	)
}

func (formatter CommandMessageFormatter) renderStage(stage messageStage, startMessage string, successMessage string, failureMessage string, executionFailureMessage string) string {
	switch stage {
	case messageStageStart:
		return startMessage
	case messageStageSuccess:
		return successMessage
	case messageStageFailure:
		return failureMessage
	default:
		return executionFailureMessage
	}
}

func (formatter CommandMessageFormatter) splitGitArguments(arguments []string) (string, []string) {
	remainingArguments := arguments
	for len(remainingArguments) > 0 && strings.HasPrefix(remainingArguments[0], gitGitDirFlagConstant) {
		if remainingArguments[0] == gitGitDirFlagConstant && len(remainingArguments) > 1 {
			remainingArguments = remainingArguments[gitDirFlagWithValueSkipCountConstant:]
			continue
		}
		remainingArguments = remainingArguments[subcommandArgumentSkipCountConstant:]
	}
	if len(remainingArguments) == 0 {
		return emptyStringConstant, nil
	}
	return remainingArguments[0], remainingArguments[subcommandArgumentSkipCountConstant:]
}

func (formatter CommandMessageFormatter) firstPositionalArgument(arguments []string, fallbackLabel string) string {
	for _, argument := range arguments {
		if !strings.HasPrefix(argument, flagPrefixConstant) {
			return argument
		}
	}
	return fallbackLabel
}

func (formatter CommandMessageFormatter) lastPositionalArgument(arguments []string) string {
	lastPositional := fallbackUnknownValueLabelConstant
	for _, argument := range arguments {
		if !strings.HasPrefix(argument, flagPrefixConstant) {
			lastPositional = argument
		}
	}
	return lastPositional
}

func (formatter CommandMessageFormatter) cloneArguments(arguments []string) (string, string) {
	positionalArguments := make([]string, 0, len(arguments))
	for _, argument := range arguments {
		if !strings.HasPrefix(argument, flagPrefixConstant) {
			positionalArguments = append(positionalArguments, argument)
		}
	}
	sourceLabel := fallbackUnknownValueLabelConstant
	destinationLabel := defaultWorkingDirectoryLabelConstant
	if len(positionalArguments) > 0 {
		sourceLabel = positionalArguments[0]
	}
	if len(positionalArguments) > 1 {
		destinationLabel = positionalArguments[len(positionalArguments)-1]
	}
	return sourceLabel, destinationLabel
}

func (formatter CommandMessageFormatter) isTagVerification(arguments []string) bool {
	for _, argument := range arguments {
		if argument == gitTagVerifyFlagConstant {
			return true
		}
	}
	return false
}

func (formatter CommandMessageFormatter) formatCommandLabel(command ShellCommand) string {
	commandParts := []string{string(command.Name)}
	if len(command.Details.Arguments) > 0 {
		commandParts = append(commandParts, strings.Join(command.Details.Arguments, commandArgumentsJoinSeparatorConstant))
	}
	commandLabel := strings.Join(commandParts, commandArgumentsJoinSeparatorConstant)
	return fmt.Sprintf(commandLabelTemplateConstant, commandLabel, formatter.workingDirectorySuffix(command))
}

func (formatter CommandMessageFormatter) workingDirectorySuffix(command ShellCommand) string {
	trimmedWorkingDirectory := strings.TrimSpace(command.Details.WorkingDirectory)
	if len(trimmedWorkingDirectory) == 0 {
		return emptyStringConstant
	}
	return fmt.Sprintf(workingDirectorySuffixTemplateConstant, trimmedWorkingDirectory)
}

func (formatter CommandMessageFormatter) standardErrorSuffix(standardError string) string {
	trimmedStandardError := strings.TrimSpace(standardError)
	if len(trimmedStandardError) == 0 {
		return emptyStringConstant
	}
	return fmt.Sprintf(standardErrorSuffixTemplateConstant, trimmedStandardError)
}

func (formatter CommandMessageFormatter) failureLabel(failure error) string {
	if failure == nil {
		return unknownFailureMessageConstant
	}
	return failure.Error()
}
