package execshell

import (
	"strings"
	"time"

	"github.com/temirov/shellwire/internal/channel"
	"github.com/temirov/shellwire/internal/delimiter"
	"github.com/temirov/shellwire/internal/guard"
	"github.com/temirov/shellwire/internal/session"
)

const (
	defaultExitGracePeriodConstant = time.Second
	blockedEntrySeparatorConstant  = " "
	environmentAssignmentConstant  = "="
)

// Configuration describes the shell a CommandDriver starts and how it talks to it.
type Configuration struct {
	Program            string        `mapstructure:"program"`
	Arguments          []string      `mapstructure:"arguments"`
	WorkingDirectory   string        `mapstructure:"working_directory"`
	InheritEnvironment bool          `mapstructure:"inherit_environment"`
	Environment        []string      `mapstructure:"environment"`
	DelimiterLength    int           `mapstructure:"delimiter_length"`
	DelimiterAlphabet  string        `mapstructure:"delimiter_alphabet"`
	ReadChunkSize      int           `mapstructure:"read_chunk_size"`
	ReadTimeout        time.Duration `mapstructure:"read_timeout"`
	ExitGracePeriod    time.Duration `mapstructure:"exit_grace_period"`
	ValidateSyntax     bool          `mapstructure:"validate_syntax"`
	BlockedCommands    []string      `mapstructure:"blocked_commands"`
	LegacyFraming      bool          `mapstructure:"legacy_framing"`
}

// DefaultConfiguration returns the configuration used when nothing is overridden.
func DefaultConfiguration() Configuration {
	return Configuration{
		Program:            session.DefaultProgram,
		Arguments:          []string{},
		InheritEnvironment: true,
		Environment:        []string{},
		DelimiterLength:    delimiter.DefaultLength,
		DelimiterAlphabet:  delimiter.DefaultAlphabet,
		ReadChunkSize:      channel.DefaultChunkSize,
		ExitGracePeriod:    defaultExitGracePeriodConstant,
		ValidateSyntax:     true,
		BlockedCommands:    []string{},
	}
}

// Sanitize trims textual values, drops empty list entries and fills zero values with defaults.
func (configuration Configuration) Sanitize() Configuration {
	defaults := DefaultConfiguration()
	sanitized := configuration

	sanitized.Program = strings.TrimSpace(sanitized.Program)
	if len(sanitized.Program) == 0 {
		sanitized.Program = defaults.Program
	}
	sanitized.WorkingDirectory = strings.TrimSpace(sanitized.WorkingDirectory)
	sanitized.DelimiterAlphabet = strings.TrimSpace(sanitized.DelimiterAlphabet)
	if len(sanitized.DelimiterAlphabet) == 0 {
		sanitized.DelimiterAlphabet = defaults.DelimiterAlphabet
	}
	if sanitized.DelimiterLength == 0 {
		sanitized.DelimiterLength = defaults.DelimiterLength
	}
	if sanitized.ReadChunkSize <= 0 {
		sanitized.ReadChunkSize = defaults.ReadChunkSize
	}
	if sanitized.ReadTimeout < 0 {
		sanitized.ReadTimeout = 0
	}
	if sanitized.ExitGracePeriod <= 0 {
		sanitized.ExitGracePeriod = defaults.ExitGracePeriod
	}

	sanitized.Arguments = append([]string{}, sanitized.Arguments...)

	environment := make([]string, 0, len(sanitized.Environment))
	for _, environmentEntry := range sanitized.Environment {
		name, value, valid := splitEnvironmentEntry(environmentEntry)
		if !valid {
			continue
		}
		environment = append(environment, name+environmentAssignmentConstant+value)
	}
	sanitized.Environment = environment

	blockedCommands := make([]string, 0, len(sanitized.BlockedCommands))
	for _, blockedCommand := range sanitized.BlockedCommands {
		normalized := strings.Join(strings.Fields(blockedCommand), blockedEntrySeparatorConstant)
		if len(normalized) == 0 {
			continue
		}
		blockedCommands = append(blockedCommands, normalized)
	}
	sanitized.BlockedCommands = blockedCommands

	return sanitized
}

// EnvironmentVariables returns the NAME=VALUE entries of Environment keyed by name. Names keep
// their case, later entries win and entries without a name or an equals sign are ignored.
func (configuration Configuration) EnvironmentVariables() map[string]string {
	variables := make(map[string]string, len(configuration.Environment))
	for _, environmentEntry := range configuration.Environment {
		if name, value, valid := splitEnvironmentEntry(environmentEntry); valid {
			variables[name] = value
		}
	}
	return variables
}

func splitEnvironmentEntry(environmentEntry string) (string, string, bool) {
	name, value, assigned := strings.Cut(environmentEntry, environmentAssignmentConstant)
	name = strings.TrimSpace(name)
	return name, value, assigned && len(name) > 0
}

func (configuration Configuration) sessionOptions() session.Options {
	return session.Options{
		Program:            configuration.Program,
		Arguments:          configuration.Arguments,
		WorkingDirectory:   configuration.WorkingDirectory,
		Environment:        configuration.EnvironmentVariables(),
		InheritEnvironment: configuration.InheritEnvironment,
	}
}

func (configuration Configuration) channelOptions() channel.Options {
	framing := channel.DefaultFraming()
	if configuration.LegacyFraming {
		framing = channel.LegacyFraming()
	}
	return channel.Options{
		Framing:     framing,
		ChunkSize:   configuration.ReadChunkSize,
		ReadTimeout: configuration.ReadTimeout,
	}
}

func (configuration Configuration) delimiterOptions() delimiter.Options {
	return delimiter.Options{
		Length:   configuration.DelimiterLength,
		Alphabet: configuration.DelimiterAlphabet,
	}
}

// guardOptions splits blocked entries into whole commands ("rm") and argument prefixes ("git push").
func (configuration Configuration) guardOptions() guard.Options {
	var bannedCommands []string
	var bannedPrefixes [][]string
	for _, blockedCommand := range configuration.BlockedCommands {
		fields := strings.Fields(blockedCommand)
		switch len(fields) {
		case 0:
		case 1:
			bannedCommands = append(bannedCommands, fields[0])
		default:
			bannedPrefixes = append(bannedPrefixes, fields)
		}
	}

	var blockFuncs []guard.BlockFunc
	if len(bannedCommands) > 0 {
		blockFuncs = append(blockFuncs, guard.CommandsBlocker(bannedCommands))
	}
	if len(bannedPrefixes) > 0 {
		blockFuncs = append(blockFuncs, guard.ArgumentsBlocker(bannedPrefixes))
	}

	return guard.Options{ValidateSyntax: configuration.ValidateSyntax, BlockFuncs: blockFuncs}
}
