package execshell_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/temirov/shellwire/internal/execshell"
)

func TestConfigurationEnvironmentEntries(testInstance *testing.T) {
	testCases := []struct {
		name              string
		environment       []string
		expectedSanitized []string
		expectedVariables map[string]string
	}{
		{
			name:              "case_preserved",
			environment:       []string{"LC_ALL=C", "Path_Mixed=value"},
			expectedSanitized: []string{"LC_ALL=C", "Path_Mixed=value"},
			expectedVariables: map[string]string{"LC_ALL": "C", "Path_Mixed": "value"},
		},
		{
			name:              "value_keeps_equals_and_spaces",
			environment:       []string{" GREETING = hello=world "},
			expectedSanitized: []string{"GREETING= hello=world "},
			expectedVariables: map[string]string{"GREETING": " hello=world "},
		},
		{
			name:              "empty_value_allowed",
			environment:       []string{"EMPTY="},
			expectedSanitized: []string{"EMPTY="},
			expectedVariables: map[string]string{"EMPTY": ""},
		},
		{
			name:              "invalid_entries_dropped",
			environment:       []string{"", "NO_ASSIGNMENT", "=value", "  =value"},
			expectedSanitized: []string{},
			expectedVariables: map[string]string{},
		},
		{
			name:              "later_entries_win",
			environment:       []string{"LANG=C", "LANG=en_US.UTF-8"},
			expectedSanitized: []string{"LANG=C", "LANG=en_US.UTF-8"},
			expectedVariables: map[string]string{"LANG": "en_US.UTF-8"},
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			configuration := execshell.DefaultConfiguration()
			configuration.Environment = testCase.environment

			sanitized := configuration.Sanitize()
			require.Equal(testInstance, testCase.expectedSanitized, sanitized.Environment)
			require.Equal(testInstance, testCase.expectedVariables, sanitized.EnvironmentVariables())
			require.Equal(testInstance, testCase.expectedVariables, configuration.EnvironmentVariables())
		})
	}
}
