package wormhole

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	kerrors "github.com/PolarWolf314/enseal/internal/errors"
)

func TestWordlistUnique(t *testing.T) {
	require.Len(t, wordIndex, len(wordlist))
	for _, w := range wordlist {
		require.Equal(t, strings.ToLower(w), w)
		require.NotContains(t, w, "-")
	}
}

func TestGenerateCode(t *testing.T) {
	for n := MinWords; n <= MaxWords; n++ {
		code, err := GenerateCode(n)
		require.NoError(t, err)
		require.Len(t, code.Words, n)
		require.Len(t, code.Nameplate, 4)

		parsed, err := ParseCode(code.String())
		require.NoError(t, err)
		require.Equal(t, code, parsed)
	}

	_, err := GenerateCode(0)
	require.ErrorIs(t, err, kerrors.ErrInvalidCode)
	_, err = GenerateCode(MaxWords + 1)
	require.ErrorIs(t, err, kerrors.ErrInvalidCode)
}

func TestGenerateCodeVaries(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 50; i++ {
		code, err := GenerateCode(4)
		require.NoError(t, err)
		seen[code.String()] = struct{}{}
	}
	require.Greater(t, len(seen), 45)
}

func TestParseCodeNormalizes(t *testing.T) {
	want := Code{Nameplate: "4821", Words: []string{"copper", "falcon"}}
	for _, in := range []string{
		"4821-copper-falcon",
		"  4821-Copper-FALCON \n",
		"4821 copper falcon",
		"4821_copper_falcon",
		"4821--copper-falcon",
	} {
		got, err := ParseCode(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}
}

func TestParseCodeRejects(t *testing.T) {
	for _, in := range []string{
		"",
		"4821",
		"copper-falcon",
		"999-copper",
		"10000-copper",
		"04821-copper",
		"abcd-copper",
		"4821-notaword",
		"4821-copper-falcon-" + strings.Repeat("copper-", MaxWords),
	} {
		_, err := ParseCode(in)
		require.ErrorIs(t, err, kerrors.ErrInvalidCode, in)
	}
}

func TestChannelID(t *testing.T) {
	code, err := ParseCode("4821-copper-falcon")
	require.NoError(t, err)
	require.Equal(t, "wh-4821", code.ChannelID())
	require.NotContains(t, code.ChannelID(), "copper")
}
