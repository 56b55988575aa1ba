package script_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/temirov/shellwire/internal/script"
)

const (
	scriptTestFileName          = "commands.yaml"
	topLevelScriptConfiguration = `commands:
  - echo hello
  - name: export
    run: X=1
  - run: |
      if true; then
        echo $X
      fi
`
	wrappedScriptConfiguration = `script:
  commands:
    - pwd
`
	anchoredScriptConfiguration = `defaults:
  greet: &greet echo greeting
commands:
  - *greet
  - *greet
`
	emptyScriptConfiguration        = "commands: []\n"
	missingRunScriptConfiguration   = "commands:\n  - name: nothing\n"
	sequenceStepScriptConfiguration = "commands:\n  - [echo, hello]\n"
	malformedScriptConfiguration    = "commands: [\n"
)

func TestParse(testInstance *testing.T) {
	testCases := []struct {
		name          string
		content       string
		expectedTexts []string
		expectedNames []string
	}{
		{
			name:          "top level commands",
			content:       topLevelScriptConfiguration,
			expectedTexts: []string{"echo hello", "X=1", "if true; then\n  echo $X\nfi\n"},
			expectedNames: []string{"", "export", ""},
		},
		{
			name:          "script wrapper",
			content:       wrappedScriptConfiguration,
			expectedTexts: []string{"pwd"},
			expectedNames: []string{""},
		},
		{
			name:          "anchored commands",
			content:       anchoredScriptConfiguration,
			expectedTexts: []string{"echo greeting", "echo greeting"},
			expectedNames: []string{"", ""},
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			parsedScript, parseError := script.Parse([]byte(testCase.content))
			require.NoError(testInstance, parseError)
			require.Equal(testInstance, testCase.expectedTexts, parsedScript.Texts())

			names := make([]string, 0, len(parsedScript.Commands))
			for _, step := range parsedScript.Commands {
				names = append(names, step.Name)
			}
			require.Equal(testInstance, testCase.expectedNames, names)
		})
	}
}

func TestParseRejectsInvalidScripts(testInstance *testing.T) {
	testCases := []struct {
		name            string
		content         string
		expectEmpty     bool
		expectedMessage string
	}{
		{name: "empty list", content: emptyScriptConfiguration, expectEmpty: true},
		{name: "empty document", content: "", expectEmpty: true},
		{name: "missing run", content: missingRunScriptConfiguration, expectedMessage: "missing a run field"},
		{name: "sequence entry", content: sequenceStepScriptConfiguration, expectedMessage: "must be a string or a mapping"},
		{name: "malformed yaml", content: malformedScriptConfiguration, expectedMessage: "failed to parse command script"},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			_, parseError := script.Parse([]byte(testCase.content))
			require.Error(testInstance, parseError)
			if testCase.expectEmpty {
				require.ErrorIs(testInstance, parseError, script.ErrEmptyScript)
				return
			}
			require.ErrorContains(testInstance, parseError, testCase.expectedMessage)
		})
	}
}

func TestLoad(testInstance *testing.T) {
	scriptPath := filepath.Join(testInstance.TempDir(), scriptTestFileName)
	require.NoError(testInstance, os.WriteFile(scriptPath, []byte(wrappedScriptConfiguration), 0o600))

	loadedScript, loadError := script.Load(scriptPath)
	require.NoError(testInstance, loadError)
	require.Equal(testInstance, []string{"pwd"}, loadedScript.Texts())

	_, missingError := script.Load(filepath.Join(testInstance.TempDir(), "missing.yaml"))
	require.ErrorIs(testInstance, missingError, os.ErrNotExist)

	_, blankPathError := script.Load("  ")
	require.Error(testInstance, blankPathError)
}

func TestReadLines(testInstance *testing.T) {
	input := "echo one\n\n# comment\n  echo two  \n"

	lineScript, readError := script.ReadLines(strings.NewReader(input))
	require.NoError(testInstance, readError)
	require.Equal(testInstance, []string{"echo one", "echo two"}, lineScript.Texts())

	_, emptyError := script.ReadLines(strings.NewReader("\n# only comments\n"))
	require.ErrorIs(testInstance, emptyError, script.ErrEmptyScript)
}
