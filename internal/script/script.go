package script

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	scriptLoadErrorTemplateConstant      = "failed to load command script: %w"
	scriptParseErrorTemplateConstant     = "failed to parse command script: %w"
	scriptReadErrorTemplateConstant      = "failed to read commands: %w"
	scriptStepKindTemplateConstant       = "command script entry at line %d must be a string or a mapping with a run field"
	scriptStepRunMissingTemplateConstant = "command script entry at line %d is missing a run field"
	scriptPathRequiredMessageConstant    = "command script path must be provided"
	scriptCommentPrefixConstant          = "#"
)

// ErrEmptyScript indicates a script without any commands.
var ErrEmptyScript = errors.New("command script must define at least one command")

// Step is a single command of a script.
type Step struct {
	Name string `yaml:"name"`
	Run  string `yaml:"run"`
}

// Script is an ordered list of commands executed in one shell session.
type Script struct {
	Commands []Step `yaml:"commands"`
}

// Texts returns the command text of every step in order.
func (script Script) Texts() []string {
	texts := make([]string, 0, len(script.Commands))
	for _, step := range script.Commands {
		texts = append(texts, step.Run)
	}
	return texts
}

// UnmarshalYAML accepts either a plain string or a mapping with name and run fields.
func (step *Step) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		step.Run = node.Value
		return nil
	case yaml.MappingNode:
		type plainStep Step
		var decoded plainStep
		if decodeError := node.Decode(&decoded); decodeError != nil {
			return decodeError
		}
		if len(strings.TrimSpace(decoded.Run)) == 0 {
			return fmt.Errorf(scriptStepRunMissingTemplateConstant, node.Line)
		}
		*step = Step(decoded)
		return nil
	default:
		return fmt.Errorf(scriptStepKindTemplateConstant, node.Line)
	}
}

// Load reads a YAML command script from disk. Both a top-level commands list and a
// script mapping wrapping it are accepted.
func Load(filePath string) (Script, error) {
	trimmedPath := strings.TrimSpace(filePath)
	if len(trimmedPath) == 0 {
		return Script{}, errors.New(scriptPathRequiredMessageConstant)
	}

	contentBytes, readError := os.ReadFile(trimmedPath)
	if readError != nil {
		return Script{}, fmt.Errorf(scriptLoadErrorTemplateConstant, readError)
	}
	return Parse(contentBytes)
}

// Parse decodes a YAML command script.
func Parse(contentBytes []byte) (Script, error) {
	var document struct {
		Commands []Step  `yaml:"commands"`
		Script   *Script `yaml:"script"`
	}
	if unmarshalError := yaml.Unmarshal(contentBytes, &document); unmarshalError != nil {
		return Script{}, fmt.Errorf(scriptParseErrorTemplateConstant, unmarshalError)
	}

	script := Script{Commands: document.Commands}
	if len(script.Commands) == 0 && document.Script != nil {
		script = *document.Script
	}
	if len(script.Commands) == 0 {
		return Script{}, ErrEmptyScript
	}
	return script, nil
}

// ReadLines builds a script from one command per line. Blank lines and lines starting with # are skipped.
func ReadLines(reader io.Reader) (Script, error) {
	var script Script
	scanner := bufio.NewScanner(reader)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if len(line) == 0 || strings.HasPrefix(line, scriptCommentPrefixConstant) {
			continue
		}
		script.Commands = append(script.Commands, Step{Run: line})
	}
	if scanError := scanner.Err(); scanError != nil {
		return Script{}, fmt.Errorf(scriptReadErrorTemplateConstant, scanError)
	}
	if len(script.Commands) == 0 {
		return Script{}, ErrEmptyScript
	}
	return script, nil
}
