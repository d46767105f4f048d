package cli_test

import (
	"testing"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/stretchr/testify/require"
	yaml "gopkg.in/yaml.v3"

	"github.com/grovecli/grove/cmd/cli"
	"github.com/grovecli/grove/internal/syncer"
)

const (
	testApplicationConfigurationDocumentConstant = "common:\n" +
		"  log_level: debug\n" +
		"  log_format: console\n" +
		"tools:\n" +
		"  sync:\n" +
		"    jobs: 6\n" +
		"    quiet: true\n" +
		"    no_verify: true\n"
	testDecodedJobCountConstant = 6
)

func decodeApplicationConfiguration(testInstance *testing.T, rawConfiguration map[string]any) cli.ApplicationConfiguration {
	testInstance.Helper()

	var configuration cli.ApplicationConfiguration
	decoder, decoderError := mapstructure.NewDecoder(&mapstructure.DecoderConfig{TagName: "mapstructure", Result: &configuration})
	require.NoError(testInstance, decoderError)
	require.NoError(testInstance, decoder.Decode(rawConfiguration))
	return configuration
}

func TestApplicationConfigurationDecodesFromYAMLDocument(testInstance *testing.T) {
	var rawConfiguration map[string]any
	require.NoError(testInstance, yaml.Unmarshal([]byte(testApplicationConfigurationDocumentConstant), &rawConfiguration))

	configuration := decodeApplicationConfiguration(testInstance, rawConfiguration)

	require.Equal(testInstance, "debug", configuration.Common.LogLevel)
	require.Equal(testInstance, "console", configuration.Common.LogFormat)
	require.Equal(testInstance, testDecodedJobCountConstant, configuration.Tools.Sync.JobCount)
	require.True(testInstance, configuration.Tools.Sync.Quiet)
	require.True(testInstance, configuration.Tools.Sync.SkipVerification)
}

func TestEmbeddedDefaultConfigurationMatchesBuiltInDefaults(testInstance *testing.T) {
	embeddedData, embeddedType := cli.EmbeddedDefaultConfiguration()
	require.Equal(testInstance, "yaml", embeddedType)

	var rawConfiguration map[string]any
	require.NoError(testInstance, yaml.Unmarshal(embeddedData, &rawConfiguration))

	configuration := decodeApplicationConfiguration(testInstance, rawConfiguration)

	require.Equal(testInstance, "info", configuration.Common.LogLevel)
	require.Equal(testInstance, "structured", configuration.Common.LogFormat)
	require.Equal(testInstance, syncer.DefaultCommandConfiguration(), configuration.Tools.Sync)
}

func TestApplicationConfigurationDefaultsLeaveSyncSectionEmpty(testInstance *testing.T) {
	configuration := decodeApplicationConfiguration(testInstance, map[string]any{})

	sanitized := configuration.Tools.Sync.Sanitize()
	require.Equal(testInstance, 1, sanitized.JobCount)
	require.False(testInstance, sanitized.Quiet)
}
