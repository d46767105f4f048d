package syncer

// Configuration keys merged into the application configuration loader.
const (
	jobsConfigurationKeyConstant     = "tools.sync.jobs"
	quietConfigurationKeyConstant    = "tools.sync.quiet"
	noVerifyConfigurationKeyConstant = "tools.sync.no_verify"

	defaultJobCountConstant = 1
)

// CommandConfiguration carries the configurable defaults of the sync command.
type CommandConfiguration struct {
	JobCount         int  `mapstructure:"jobs"`
	Quiet            bool `mapstructure:"quiet"`
	SkipVerification bool `mapstructure:"no_verify"`
}

// DefaultCommandConfiguration returns the built-in sync defaults.
func DefaultCommandConfiguration() CommandConfiguration {
	return CommandConfiguration{JobCount: defaultJobCountConstant}
}

// Sanitize normalizes configured values into usable ranges.
func (configuration CommandConfiguration) Sanitize() CommandConfiguration {
	sanitized := configuration
	if sanitized.JobCount < 1 {
		sanitized.JobCount = defaultJobCountConstant
	}
	return sanitized
}

// DefaultConfigurationValues exposes the sync defaults for the configuration loader.
func DefaultConfigurationValues() map[string]any {
	return map[string]any{
		jobsConfigurationKeyConstant:     defaultJobCountConstant,
		quietConfigurationKeyConstant:    false,
		noVerifyConfigurationKeyConstant: false,
	}
}
