package syncer_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/grovecli/grove/internal/syncer"
)

const (
	testCaseNegativeJobCountConstant   = "negative job count normalizes to the default"
	testCaseZeroJobCountConstant       = "zero job count normalizes to the default"
	testCaseConfiguredJobCountConstant = "configured job count is preserved"
	testConfiguredJobCountConstant     = 8
	testDefaultJobCountConstant        = 1
)

func TestDefaultCommandConfiguration(testInstance *testing.T) {
	configuration := syncer.DefaultCommandConfiguration()

	require.Equal(testInstance, testDefaultJobCountConstant, configuration.JobCount)
	require.False(testInstance, configuration.Quiet)
	require.False(testInstance, configuration.SkipVerification)
}

func TestCommandConfigurationSanitize(testInstance *testing.T) {
	testCases := []struct {
		name             string
		configuration    syncer.CommandConfiguration
		expectedJobCount int
	}{
		{
			name:             testCaseNegativeJobCountConstant,
			configuration:    syncer.CommandConfiguration{JobCount: -3},
			expectedJobCount: testDefaultJobCountConstant,
		},
		{
			name:             testCaseZeroJobCountConstant,
			configuration:    syncer.CommandConfiguration{JobCount: 0},
			expectedJobCount: testDefaultJobCountConstant,
		},
		{
			name:             testCaseConfiguredJobCountConstant,
			configuration:    syncer.CommandConfiguration{JobCount: testConfiguredJobCountConstant},
			expectedJobCount: testConfiguredJobCountConstant,
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			require.Equal(testInstance, testCase.expectedJobCount, testCase.configuration.Sanitize().JobCount)
		})
	}
}

func TestDefaultConfigurationValues(testInstance *testing.T) {
	defaultValues := syncer.DefaultConfigurationValues()

	require.Equal(testInstance, testDefaultJobCountConstant, defaultValues["tools.sync.jobs"])
	require.Equal(testInstance, false, defaultValues["tools.sync.quiet"])
	require.Equal(testInstance, false, defaultValues["tools.sync.no_verify"])
}
