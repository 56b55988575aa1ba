package delimiter

import (
	cryptorand "crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// DefaultLength is the number of characters in a generated delimiter.
	DefaultLength   = 128
	// DefaultAlphabet is the character set delimiters are drawn from.
	DefaultAlphabet = "abcdefghijklmnopqrstuvwxyz"
	// MinimumLength is the shortest delimiter accepted by NewGenerator.
	MinimumLength   = 16

	lineTerminatorConstant                  = "\n"
	seedSizeConstant                        = 32
	minimumDistinctCharactersConstant       = 2
	allowedPunctuationConstant              = "-_."
	invalidLengthMessageTemplateConstant    = "delimiter length %d is below the minimum of %d"
	invalidAlphabetMessageTemplateConstant  = "delimiter alphabet %q: %s"
	alphabetTooSmallReasonConstant          = "needs at least two distinct characters"
	alphabetCharacterReasonTemplateConstant = "character %q is not a letter, digit, or one of " + allowedPunctuationConstant
)

// ErrInvalidLength indicates a delimiter length below MinimumLength.
var ErrInvalidLength = errors.New("invalid delimiter length")

// ErrInvalidAlphabet indicates an alphabet that cannot produce safe delimiters.
var ErrInvalidAlphabet = errors.New("invalid delimiter alphabet")

var fallbackSeedCounter atomic.Uint64

// Options configure a Generator. Zero values select the defaults.
type Options struct {
	Length   int
	Alphabet string
}

// Generator produces fresh high-entropy delimiters. It is safe for concurrent use.
type Generator struct {
	length   int
	alphabet []byte
	degraded bool

	mutex  sync.Mutex
	source *rand.Rand
}

// NewGenerator validates the options and seeds a generator from the operating system entropy source.
func NewGenerator(options Options) (*Generator, error) {
	length := options.Length
	if length == 0 {
		length = DefaultLength
	}
	if length < MinimumLength {
		return nil, fmt.Errorf("%w: "+invalidLengthMessageTemplateConstant, ErrInvalidLength, length, MinimumLength)
	}

	alphabet := options.Alphabet
	if len(alphabet) == 0 {
		alphabet = DefaultAlphabet
	}
	if validationError := validateAlphabet(alphabet); validationError != nil {
		return nil, validationError
	}

	seed, degraded := newSeed()

	return &Generator{
		length:   length,
		alphabet: []byte(alphabet),
		degraded: degraded,
		source:   rand.New(rand.NewChaCha8(seed)),
	}, nil
}

// Generate returns a new delimiter without a line terminator.
func (generator *Generator) Generate() string {
	generator.mutex.Lock()
	defer generator.mutex.Unlock()

	delimiterBytes := make([]byte, generator.length)
	alphabetSize := len(generator.alphabet)
	for characterIndex := range delimiterBytes {
		delimiterBytes[characterIndex] = generator.alphabet[generator.source.IntN(alphabetSize)]
	}
	return string(delimiterBytes)
}

// GenerateLine returns a new delimiter followed by a line terminator.
func (generator *Generator) GenerateLine() string {
	return generator.Generate() + lineTerminatorConstant
}

// Length reports the number of characters in each delimiter.
func (generator *Generator) Length() int {
	return generator.length
}

// Alphabet reports the characters delimiters are drawn from.
func (generator *Generator) Alphabet() string {
	return string(generator.alphabet)
}

// Degraded reports whether the generator was seeded without operating system entropy.
// A degraded generator produces predictable delimiters.
func (generator *Generator) Degraded() bool {
	return generator.degraded
}

// CollisionProbability returns the birthday bound for count delimiters sharing a value.
func (generator *Generator) CollisionProbability(count int) float64 {
	return CollisionProbability(count, len(generator.alphabet), generator.length)
}

// CollisionProbability approximates the chance that count delimiters of the given length drawn
// uniformly from an alphabet of alphabetSize characters contain a duplicate.
func CollisionProbability(count int, alphabetSize int, length int) float64 {
	if count < 2 || alphabetSize < 1 || length < 1 {
		return 0
	}
	logSpace := float64(length) * math.Log(float64(alphabetSize))
	logPairs := math.Log(float64(count)) + math.Log(float64(count-1)) - math.Ln2
	return math.Min(1, math.Exp(logPairs-logSpace))
}

func validateAlphabet(alphabet string) error {
	distinctCharacters := make(map[byte]struct{}, len(alphabet))
	for characterIndex := 0; characterIndex < len(alphabet); characterIndex++ {
		character := alphabet[characterIndex]
		if !isSafeCharacter(character) {
			reason := fmt.Sprintf(alphabetCharacterReasonTemplateConstant, character)
			return fmt.Errorf("%w: "+invalidAlphabetMessageTemplateConstant, ErrInvalidAlphabet, alphabet, reason)
		}
		distinctCharacters[character] = struct{}{}
	}
	if len(distinctCharacters) < minimumDistinctCharactersConstant {
		return fmt.Errorf("%w: "+invalidAlphabetMessageTemplateConstant, ErrInvalidAlphabet, alphabet, alphabetTooSmallReasonConstant)
	}
	return nil
}

// isSafeCharacter accepts characters that need no quoting in any POSIX shell word.
func isSafeCharacter(character byte) bool {
	switch {
	case character >= 'a' && character <= 'z':
		return true
	case character >= 'A' && character <= 'Z':
		return true
	case character >= '0' && character <= '9':
		return true
	default:
		return strings.IndexByte(allowedPunctuationConstant, character) >= 0
	}
}

func newSeed() ([seedSizeConstant]byte, bool) {
	var seed [seedSizeConstant]byte
	if _, readError := cryptorand.Read(seed[:]); readError == nil {
		return seed, false
	}

	// Fallback seed: wall clock plus a process-wide counter so two generators never share a stream.
	binary.LittleEndian.PutUint64(seed[0:8], uint64(time.Now().UnixNano()))
	binary.LittleEndian.PutUint64(seed[8:16], fallbackSeedCounter.Add(1))
	binary.LittleEndian.PutUint64(seed[16:24], uint64(time.Now().UnixNano())^0x9e3779b97f4a7c15)
	return seed, true
}
