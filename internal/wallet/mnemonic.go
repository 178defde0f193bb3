// Package wallet provides the key material side of discovery: BIP39 mnemonic
// handling, key identifier parsing, and deterministic address derivation for
// the Legacy, WrappedSegwit, and NativeSegwit schemes.
package wallet

import (
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/tyler-smith/go-bip39"
)

var (
	// ErrInvalidWordCount indicates an unsupported mnemonic length was requested.
	ErrInvalidWordCount = errors.New("word count must be 12, 15, 18, 21 or 24")

	// ErrInvalidMnemonic indicates the mnemonic is not valid.
	ErrInvalidMnemonic = errors.New("invalid mnemonic phrase")

	// whitespaceRegex matches one or more whitespace characters.
	whitespaceRegex = regexp.MustCompile(`\s+`)

	// numberedListRegex matches numbered list prefixes like "1." "2)" "3:"
	numberedListRegex = regexp.MustCompile(`(?m)^\s*\d+[\.\)\:]\s*`)

	// bulletListRegex matches bullet prefixes like "- " "* " "• "
	bulletListRegex = regexp.MustCompile(`(?m)^\s*[-*•]\s*`)
)

// entropyBits maps a BIP39 word count to its entropy size.
//
//nolint:gochecknoglobals // Fixed BIP39 table
var entropyBits = map[int]int{
	12: 128,
	15: 160,
	18: 192,
	21: 224,
	24: 256,
}

// GenerateMnemonic creates a new BIP39 mnemonic phrase.
func GenerateMnemonic(wordCount int) (string, error) {
	bitSize, ok := entropyBits[wordCount]
	if !ok {
		return "", ErrInvalidWordCount
	}

	entropy, err := bip39.NewEntropy(bitSize)
	if err != nil {
		return "", err
	}

	return bip39.NewMnemonic(entropy)
}

// ValidateMnemonic checks if a mnemonic phrase is valid according to BIP39.
// It verifies word count, word validity, and checksum.
func ValidateMnemonic(mnemonic string) error {
	if mnemonic == "" {
		return ErrInvalidMnemonic
	}

	normalized := NormalizeMnemonicInput(mnemonic)

	// Cheap word count check before the checksum
	if _, ok := entropyBits[len(strings.Fields(normalized))]; !ok {
		return ErrInvalidMnemonic
	}

	if !bip39.IsMnemonicValid(normalized) {
		return ErrInvalidMnemonic
	}

	return nil
}

// NormalizeMnemonicInput cleans and normalizes mnemonic input by:
// - Converting to lowercase
// - Removing numbered list prefixes (1. 2) 3: etc.)
// - Removing bullet prefixes (- * •)
// - Replacing commas with spaces
// - Collapsing whitespace and trimming
func NormalizeMnemonicInput(input string) string {
	input = strings.ToLower(input)
	input = numberedListRegex.ReplaceAllString(input, " ")
	input = bulletListRegex.ReplaceAllString(input, " ")
	input = strings.ReplaceAll(input, ",", " ")
	input = whitespaceRegex.ReplaceAllString(input, " ")
	return strings.TrimSpace(input)
}

// MnemonicToSeed converts a BIP39 mnemonic phrase to a 64-byte seed.
// The passphrase is optional (can be empty string).
// The returned seed should be handled securely and zeroed after use.
func MnemonicToSeed(mnemonic, passphrase string) ([]byte, error) {
	seed, err := bip39.NewSeedWithErrorChecking(NormalizeMnemonicInput(mnemonic), passphrase)
	if err != nil {
		return nil, ErrInvalidMnemonic
	}
	return seed, nil
}

// IsValidWord checks if a word is in the BIP39 word list.
func IsValidWord(word string) bool {
	_, ok := bip39.GetWordIndex(strings.ToLower(word))
	return ok
}

// MaxTypoDistance is the maximum Levenshtein distance to consider a suggestion.
const MaxTypoDistance = 2

// TypoInfo contains information about a detected typo and its suggestion.
type TypoInfo struct {
	// Index is the word position in the mnemonic (0-based).
	Index int
	// Word is the original (possibly misspelled) word.
	Word string
	// Suggestion is the closest BIP39 word, or empty if none found.
	Suggestion string
	// Distance is the Levenshtein distance to the suggestion.
	Distance int
}

// SuggestWord finds the closest BIP39 word to the input using Levenshtein distance.
// Returns empty string if no word is close enough (distance > MaxTypoDistance).
func SuggestWord(input string) string {
	input = strings.ToLower(input)

	minDist := math.MaxInt
	var suggestion string

	for _, word := range bip39.GetWordList() {
		dist := levenshtein.ComputeDistance(input, word)
		if dist == 0 {
			return word
		}
		if dist < minDist {
			minDist = dist
			suggestion = word
		}
	}

	if minDist <= MaxTypoDistance {
		return suggestion
	}
	return ""
}

// DetectTypos returns every word of the phrase that is not in the BIP39 word
// list together with the closest suggestion.
func DetectTypos(mnemonic string) []TypoInfo {
	if mnemonic == "" {
		return nil
	}

	var typos []TypoInfo
	for i, word := range strings.Fields(NormalizeMnemonicInput(mnemonic)) {
		if IsValidWord(word) {
			continue
		}
		suggestion := SuggestWord(word)
		distance := 0
		if suggestion != "" {
			distance = levenshtein.ComputeDistance(word, suggestion)
		}
		typos = append(typos, TypoInfo{
			Index:      i,
			Word:       word,
			Suggestion: suggestion,
			Distance:   distance,
		})
	}

	return typos
}

// FormatTypoSuggestions formats typo information into human-readable suggestions.
func FormatTypoSuggestions(typos []TypoInfo) string {
	if len(typos) == 0 {
		return ""
	}

	var b strings.Builder
	for i, typo := range typos {
		if i > 0 {
			b.WriteString("; ")
		}
		// Word position is 1-indexed for human readability
		b.WriteString("word ")
		b.WriteString(strconv.Itoa(typo.Index + 1))
		b.WriteString(": '")
		b.WriteString(typo.Word)
		b.WriteByte('\'')
		if typo.Suggestion != "" {
			b.WriteString(" - did you mean '")
			b.WriteString(typo.Suggestion)
			b.WriteString("'?")
		} else {
			b.WriteString(" is not a valid BIP39 word")
		}
	}
	return b.String()
}
