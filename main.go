package main

import (
	"errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/grovecli/grove/cmd/cli"
	"github.com/grovecli/grove/internal/selfupdate"
)

const (
	exitErrorTemplateConstant     = "%v\n"
	restartNoticeMessageConstant  = "grove: restarting with upgraded version\n"
	restartFailureExitCodeDefault = 1
)

// main executes the grove command-line application and re-invokes the binary
// when a completed run adopted an upgraded version of the tool itself.
func main() {
	executionError := cli.Execute()
	if executionError == nil {
		return
	}

	restartRequired := selfupdate.RestartRequiredError{}
	if errors.As(executionError, &restartRequired) {
		os.Exit(restartUpgradedProcess(restartRequired))
	}

	fmt.Fprintf(os.Stderr, exitErrorTemplateConstant, executionError)
	os.Exit(1)
}

func restartUpgradedProcess(restartRequired selfupdate.RestartRequiredError) int {
	fmt.Fprint(os.Stderr, restartNoticeMessageConstant)

	restartArguments := append([]string{}, os.Args[1:]...)
	for _, markerArgument := range restartRequired.Arguments {
		if !containsArgument(restartArguments, markerArgument) {
			restartArguments = append(restartArguments, markerArgument)
		}
	}

	restartedProcess := exec.Command(os.Args[0], restartArguments...)
	restartedProcess.Stdin = os.Stdin
	restartedProcess.Stdout = os.Stdout
	restartedProcess.Stderr = os.Stderr

	runError := restartedProcess.Run()
	if runError == nil {
		return 0
	}

	exitError := &exec.ExitError{}
	if errors.As(runError, &exitError) {
		return exitError.ExitCode()
	}

	fmt.Fprintf(os.Stderr, exitErrorTemplateConstant, runError)
	return restartFailureExitCodeDefault
}

func containsArgument(arguments []string, candidate string) bool {
	for _, argument := range arguments {
		if argument == candidate {
			return true
		}
	}
	return false
}
