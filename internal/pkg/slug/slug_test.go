package slug

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMake(t *testing.T) {
	cases := map[string]string{
		"Zero Trust Basics":               "zero-trust-basics",
		"  SOC 2 -- Type II!  ":           "soc-2-type-ii",
		"Pénétration & Red-Teaming":       "penetration-red-teaming",
		"What's new in CVE-2024-3094?":    "whats-new-in-cve-2024-3094",
		"日本語":                             "",
		"__already__slugged__":            "already-slugged",
	}
	for in, want := range cases {
		assert.Equal(t, want, Make(in), in)
	}
}

func TestMakeTruncatesOnWordBoundary(t *testing.T) {
	got := Make(strings.Repeat("word ", 60))
	assert.LessOrEqual(t, len(got), MaxLength)
	assert.True(t, Valid(got))
	assert.False(t, strings.HasSuffix(got, "-"))
}

func TestNormalize(t *testing.T) {
	got, err := Normalize("  ZTB_Guide ")
	require.NoError(t, err)
	assert.Equal(t, "ztb-guide", got)

	got, err = Normalize("ztb guide 2")
	require.NoError(t, err)
	assert.Equal(t, "ztb-guide-2", got)

	_, err = Normalize("   ")
	assert.ErrorIs(t, err, ErrEmpty)

	for _, bad := range []string{"ztb--guide", "-ztb", "ztb/guide", "zéro", "a.b"} {
		_, err = Normalize(bad)
		assert.ErrorIs(t, err, ErrInvalid, bad)
	}

	_, err = Normalize(strings.Repeat("a", MaxLength+1))
	assert.ErrorIs(t, err, ErrTooLong)
}

func TestValid(t *testing.T) {
	assert.True(t, Valid("zero-trust-basics-1"))
	assert.False(t, Valid("Zero"))
	assert.False(t, Valid(""))
}
