package utils

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var alnum = regexp.MustCompile(`^[A-Za-z0-9]+$`)

func TestRandomString_LengthRange(t *testing.T) {
	for i := 0; i < 200; i++ {
		s, err := RandomString(16, 22)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, len(s), 16)
		assert.LessOrEqual(t, len(s), 22)
		assert.Regexp(t, alnum, s)
	}
}

func TestRandomString_FixedLength(t *testing.T) {
	s, err := RandomString(12, 12)
	require.NoError(t, err)
	assert.Len(t, s, 12)
}

func TestRandomString_InvalidRange(t *testing.T) {
	_, err := RandomString(5, 4)
	assert.Error(t, err)
	_, err = RandomString(0, 4)
	assert.Error(t, err)
}

func TestRandomDigits(t *testing.T) {
	s, err := RandomDigits(6)
	require.NoError(t, err)
	assert.Regexp(t, `^[0-9]{6}$`, s)
}

func TestDetectPlatform(t *testing.T) {
	tests := []struct {
		ua   string
		want string
	}{
		{"Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X)", PlatformMobile},
		{"Mozilla/5.0 (Linux; Android 14; Pixel 8) Mobile Safari/537.36", PlatformMobile},
		{"Mozilla/5.0 (Windows NT 10.0; Win64; x64) Chrome/120.0", PlatformDesktop},
		{"", PlatformDesktop},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DetectPlatform(tt.ua), tt.ua)
	}
}

func TestRemoveControlCharacters(t *testing.T) {
	assert.Equal(t, "a\tb\nc", RemoveControlCharacters("a\tb\x00\nc\x07"))
}
