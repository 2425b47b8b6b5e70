package adminapi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashRoundTrip(t *testing.T) {
	var h [32]byte
	h[0] = 0xab
	h[31] = 0xcd

	s := hashString(h)
	assert.Len(t, s, 64)

	parsed, err := parseHash(s)
	require.NoError(t, err)
	assert.Equal(t, h, parsed)
}

func TestParseHash_WrongLength(t *testing.T) {
	_, err := parseHash("abcd")
	assert.Error(t, err)
}

func TestParseHash_NotHex(t *testing.T) {
	_, err := parseHash("not-hex-at-all-zzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzz")
	assert.Error(t, err)
}
