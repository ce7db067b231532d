package wormhole

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	kerrors "github.com/PolarWolf314/enseal/internal/errors"
)

const (
	// DefaultWords is the number of words in a generated code.
	DefaultWords = 2
	// MinWords and MaxWords bound the word count.
	MinWords = 1
	MaxWords = 8

	nameplateMin = 1000
	nameplateMax = 9999
)

// Code is a parsed wormhole code.
type Code struct {
	Nameplate string
	Words     []string
}

// GenerateCode draws a random nameplate and n random words.
func GenerateCode(n int) (Code, error) {
	if n < MinWords || n > MaxWords {
		return Code{}, fmt.Errorf("%w: word count must be between %d and %d", kerrors.ErrInvalidCode, MinWords, MaxWords)
	}

	plate, err := rand.Int(rand.Reader, big.NewInt(nameplateMax-nameplateMin+1))
	if err != nil {
		return Code{}, fmt.Errorf("failed to draw nameplate: %w", err)
	}

	idx := make([]byte, n)
	if _, err := rand.Read(idx); err != nil {
		return Code{}, fmt.Errorf("failed to draw code words: %w", err)
	}
	words := make([]string, n)
	for i, b := range idx {
		words[i] = wordlist[b]
	}

	return Code{
		Nameplate: strconv.Itoa(nameplateMin + int(plate.Int64())),
		Words:     words,
	}, nil
}

// ParseCode parses user input. Case, surrounding whitespace and spaces or
// underscores in place of hyphens are tolerated.
func ParseCode(s string) (Code, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer(" ", "-", "_", "-", "\t", "-").Replace(s)

	var parts []string
	for _, p := range strings.Split(s, "-") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) < 1+MinWords {
		return Code{}, fmt.Errorf("%w: expected nameplate-word-word", kerrors.ErrInvalidCode)
	}
	if len(parts) > 1+MaxWords {
		return Code{}, fmt.Errorf("%w: too many words", kerrors.ErrInvalidCode)
	}

	plate, err := strconv.Atoi(parts[0])
	if err != nil || plate < nameplateMin || plate > nameplateMax || len(parts[0]) != 4 {
		return Code{}, fmt.Errorf("%w: nameplate must be a number from %d to %d", kerrors.ErrInvalidCode, nameplateMin, nameplateMax)
	}
	for _, w := range parts[1:] {
		if _, ok := wordIndex[w]; !ok {
			return Code{}, fmt.Errorf("%w: unknown word %q", kerrors.ErrInvalidCode, w)
		}
	}

	return Code{Nameplate: parts[0], Words: parts[1:]}, nil
}

func (c Code) String() string {
	return c.Nameplate + "-" + strings.Join(c.Words, "-")
}

// ChannelID is the relay channel the code rendezvouses on.
func (c Code) ChannelID() string {
	return "wh-" + c.Nameplate
}

func (c Code) password() []byte {
	return []byte(c.String())
}
