package guard

import (
	"errors"
	"fmt"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

const (
	backslashCharacterConstant      = '\\'
	argumentsJoinSeparatorConstant  = " "
	syntaxErrorTemplateConstant     = "%w: %v"
	incompleteErrorTemplateConstant = "%w: %v"
	continuationMessageConstant     = "ends with a line continuation"
	errorReasonTemplateConstant     = "%w: %s"
)

var (
	// ErrInvalidSyntax indicates a command the shell would reject with a syntax error.
	ErrInvalidSyntax     = errors.New("command is not valid shell syntax")
	// ErrIncompleteCommand indicates a command that leaves a quote, block, here-document or line
	// continuation open and would absorb the status echo that follows it.
	ErrIncompleteCommand = errors.New("command is incomplete")
	// ErrBlockedCommand indicates a command matched by a BlockFunc.
	ErrBlockedCommand    = errors.New("command is not allowed")
)

// BlockFunc reports whether a simple command, given as its literal arguments, must be refused.
type BlockFunc func(arguments []string) bool

// CommandsBlocker blocks simple commands whose name is one of bannedCommands.
func CommandsBlocker(bannedCommands []string) BlockFunc {
	bannedSet := make(map[string]struct{}, len(bannedCommands))
	for _, bannedCommand := range bannedCommands {
		bannedSet[bannedCommand] = struct{}{}
	}

	return func(arguments []string) bool {
		if len(arguments) == 0 {
			return false
		}
		_, banned := bannedSet[arguments[0]]
		return banned
	}
}

// ArgumentsBlocker blocks simple commands starting with any of blockedPrefixes, such as
// {"git", "push"}.
func ArgumentsBlocker(blockedPrefixes [][]string) BlockFunc {
	return func(arguments []string) bool {
		for _, blockedPrefix := range blockedPrefixes {
			if len(blockedPrefix) == 0 || len(arguments) < len(blockedPrefix) {
				continue
			}
			matches := true
			for prefixIndex, prefixPart := range blockedPrefix {
				if arguments[prefixIndex] != prefixPart {
					matches = false
					break
				}
			}
			if matches {
				return true
			}
		}
		return false
	}
}

// Options configure a Validator.
type Options struct {
	ValidateSyntax bool
	BlockFuncs     []BlockFunc
}

// Validator checks commands before they are framed and written to the shell.
type Validator struct {
	validateSyntax bool
	blockFuncs     []BlockFunc
}

// NewValidator constructs a Validator.
func NewValidator(options Options) *Validator {
	blockFuncs := make([]BlockFunc, 0, len(options.BlockFuncs))
	for _, blockFunc := range options.BlockFuncs {
		if blockFunc != nil {
			blockFuncs = append(blockFuncs, blockFunc)
		}
	}
	return &Validator{validateSyntax: options.ValidateSyntax, blockFuncs: blockFuncs}
}

// Validate returns nil when command may be sent to the shell.
//
// With syntax validation disabled, commands that fail to parse are passed through and only
// parsable commands are checked against the block functions.
func (validator *Validator) Validate(command string) error {
	if validator == nil || (!validator.validateSyntax && len(validator.blockFuncs) == 0) {
		return nil
	}

	if validator.validateSyntax && endsWithContinuation(command) && !endsInComment(command[:len(command)-1]) {
		return fmt.Errorf(errorReasonTemplateConstant, ErrIncompleteCommand, continuationMessageConstant)
	}

	parser := syntax.NewParser(syntax.Variant(syntax.LangBash))
	file, parseError := parser.Parse(strings.NewReader(command), "")
	if parseError != nil {
		if !validator.validateSyntax {
			return nil
		}
		if syntax.IsIncomplete(parseError) {
			return fmt.Errorf(incompleteErrorTemplateConstant, ErrIncompleteCommand, parseError)
		}
		return fmt.Errorf(syntaxErrorTemplateConstant, ErrInvalidSyntax, parseError)
	}

	if len(validator.blockFuncs) == 0 {
		return nil
	}

	var blockedArguments []string
	syntax.Walk(file, func(node syntax.Node) bool {
		if blockedArguments != nil {
			return false
		}
		callExpression, isCall := node.(*syntax.CallExpr)
		if !isCall {
			return true
		}
		arguments := literalArguments(callExpression)
		for _, blockFunc := range validator.blockFuncs {
			if blockFunc(arguments) {
				blockedArguments = arguments
				return false
			}
		}
		return true
	})

	if blockedArguments != nil {
		return fmt.Errorf(errorReasonTemplateConstant, ErrBlockedCommand, strings.Join(blockedArguments, argumentsJoinSeparatorConstant))
	}
	return nil
}

// literalArguments returns the leading arguments of a call that are plain literals, with quotes removed.
func literalArguments(callExpression *syntax.CallExpr) []string {
	arguments := make([]string, 0, len(callExpression.Args))
	for _, word := range callExpression.Args {
		literal, isLiteral := unquotedLiteral(word)
		if !isLiteral {
			break
		}
		arguments = append(arguments, literal)
	}
	return arguments
}

func unquotedLiteral(word *syntax.Word) (string, bool) {
	var builder strings.Builder
	for _, part := range word.Parts {
		switch typedPart := part.(type) {
		case *syntax.Lit:
			builder.WriteString(removeEscapes(typedPart.Value))
		case *syntax.SglQuoted:
			builder.WriteString(typedPart.Value)
		case *syntax.DblQuoted:
			for _, quotedPart := range typedPart.Parts {
				literalPart, isLiteral := quotedPart.(*syntax.Lit)
				if !isLiteral {
					return "", false
				}
				builder.WriteString(literalPart.Value)
			}
		default:
			return "", false
		}
	}
	return builder.String(), true
}

// removeEscapes drops the backslashes of an unquoted literal so r\m compares equal to rm.
func removeEscapes(literal string) string {
	if strings.IndexByte(literal, backslashCharacterConstant) < 0 {
		return literal
	}
	var builder strings.Builder
	escaped := false
	for characterIndex := 0; characterIndex < len(literal); characterIndex++ {
		character := literal[characterIndex]
		if character == backslashCharacterConstant && !escaped {
			escaped = true
			continue
		}
		escaped = false
		builder.WriteByte(character)
	}
	return builder.String()
}

// endsInComment reports whether the last byte of command belongs to a comment. A backslash
// appended to such a command is comment text, not a line continuation.
func endsInComment(command string) bool {
	parser := syntax.NewParser(syntax.Variant(syntax.LangBash), syntax.KeepComments(true))
	file, parseError := parser.Parse(strings.NewReader(command), "")
	if parseError != nil {
		return false
	}

	commentAtEnd := false
	syntax.Walk(file, func(node syntax.Node) bool {
		if comment, isComment := node.(*syntax.Comment); isComment && int(comment.End().Offset()) == len(command) {
			commentAtEnd = true
		}
		return !commentAtEnd
	})
	return commentAtEnd
}

// endsWithContinuation reports whether the final byte is an unescaped backslash.
func endsWithContinuation(command string) bool {
	trailingBackslashes := 0
	for characterIndex := len(command) - 1; characterIndex >= 0 && command[characterIndex] == backslashCharacterConstant; characterIndex-- {
		trailingBackslashes++
	}
	return trailingBackslashes%2 == 1
}
