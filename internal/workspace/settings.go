package workspace

import (
	"github.com/grovecli/grove/internal/utils"
)

const (
	settingsConfigurationNameConstant = "config"
	settingsConfigurationTypeConstant = "yaml"
	settingsEnvironmentPrefixConstant = "GROVE"

	mirrorSettingKeyConstant                 = "mirror"
	jobsSettingKeyConstant                   = "jobs"
	trustMaterialDirectorySettingKeyConstant = "trust_material_directory"
	manifestRevisionSettingKeyConstant       = "manifest_revision"
	toolRevisionSettingKeyConstant           = "tool_revision"

	defaultJobCountConstant = 1

	// DefaultManifestRevision is the manifest checkout revision used when the
	// workspace settings file does not name one.
	DefaultManifestRevision = "refs/heads/main"
	// DefaultToolRevision is the tool checkout revision used when the workspace
	// settings file does not name one.
	DefaultToolRevision = "refs/heads/stable"
)

// Settings are workspace-level options read from the metadata configuration file.
type Settings struct {
	Mirror                 bool   `mapstructure:"mirror"`
	Jobs                   int    `mapstructure:"jobs"`
	TrustMaterialDirectory string `mapstructure:"trust_material_directory"`
	ManifestRevision       string `mapstructure:"manifest_revision"`
	ToolRevision           string `mapstructure:"tool_revision"`
}

// LoadSettings reads workspace settings, falling back to defaults when no file exists.
func (locatedWorkspace *Workspace) LoadSettings() (Settings, error) {
	configurationLoader := utils.NewConfigurationLoader(
		settingsConfigurationNameConstant,
		settingsConfigurationTypeConstant,
		settingsEnvironmentPrefixConstant,
		[]string{locatedWorkspace.MetadataDirectory()},
	)

	defaultValues := map[string]any{
		mirrorSettingKeyConstant:                 false,
		jobsSettingKeyConstant:                   defaultJobCountConstant,
		trustMaterialDirectorySettingKeyConstant: "",
		manifestRevisionSettingKeyConstant:       DefaultManifestRevision,
		toolRevisionSettingKeyConstant:           DefaultToolRevision,
	}

	loadedSettings := Settings{}
	if _, loadError := configurationLoader.LoadConfiguration("", defaultValues, &loadedSettings); loadError != nil {
		return Settings{}, loadError
	}
	if loadedSettings.Jobs < 1 {
		loadedSettings.Jobs = defaultJobCountConstant
	}
	if len(loadedSettings.ManifestRevision) == 0 {
		loadedSettings.ManifestRevision = DefaultManifestRevision
	}
	if len(loadedSettings.ToolRevision) == 0 {
		loadedSettings.ToolRevision = DefaultToolRevision
	}
	return loadedSettings, nil
}
