package selfupdate

const (
	restartRequiredMessageConstant = "restart required to adopt the upgraded tool"

	// AlreadyUpgradedFlagName marks a restarted invocation so it skips the upgrade check.
	AlreadyUpgradedFlagName = "already-upgraded"

	alreadyUpgradedArgumentConstant = "--" + AlreadyUpgradedFlagName
)

// RestartRequiredError signals that the tool replaced itself and the current
// process must re-invoke the binary with the carried arguments appended.
type RestartRequiredError struct {
	Arguments []string
}

// Error describes the restart request.
func (restartRequired RestartRequiredError) Error() string {
	return restartRequiredMessageConstant
}

// NewRestartRequiredError builds the restart signal carrying the upgrade marker flag.
func NewRestartRequiredError() RestartRequiredError {
	return RestartRequiredError{Arguments: []string{alreadyUpgradedArgumentConstant}}
}
