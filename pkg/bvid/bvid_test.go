package bvid

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKnownPairs(t *testing.T) {
	pairs := []struct {
		aid  int64
		bvid string
	}{
		{1, "BV1xx411c7mQ"},
		{2, "BV1xx411c7mD"},
		{170001, "BV17x411w7KC"},
		{455017605, "BV1Q541167Qg"},
		{882584971, "BV1mK4y1C7Bz"},
		{maskCode - 1, "BV1aPPTfmvQB"},
	}

	for _, p := range pairs {
		t.Run(p.bvid, func(t *testing.T) {
			got, err := Encode(p.aid)
			require.NoError(t, err)
			assert.Equal(t, p.bvid, got)

			aid, err := Decode(p.bvid)
			require.NoError(t, err)
			assert.Equal(t, p.aid, aid)
		})
	}
}

func TestShortcodeRoundTrip(t *testing.T) {
	aid, err := Decode("BV1xx411c7mD")
	require.NoError(t, err)
	code, err := Encode(aid)
	require.NoError(t, err)
	assert.Equal(t, "BV1xx411c7mD", code)
}

func TestNumericRoundTrip(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for i := 0; i < 2000; i++ {
		aid := r.Int63n(maskCode-1) + 1
		code, err := Encode(aid)
		require.NoError(t, err)
		require.Len(t, code, 12)

		back, err := Decode(code)
		require.NoError(t, err)
		require.Equal(t, aid, back, "aid %d via %s", aid, code)
	}
}

func TestDecodeFailures(t *testing.T) {
	tests := []string{
		"BVinvalid!!!",
		"BV1xx411c7m0", // 0 is not in the alphabet
		"BV1xx411c7",
		"",
		"BV1xx411c7mDD",
	}
	for _, code := range tests {
		t.Run(code, func(t *testing.T) {
			aid, err := Decode(code)
			assert.ErrorIs(t, err, ErrInvalidShortcode)
			assert.Zero(t, aid)
		})
	}
}

func TestEncodeOutOfRange(t *testing.T) {
	for _, aid := range []int64{0, -5, maxAID} {
		_, err := Encode(aid)
		assert.ErrorIs(t, err, ErrOutOfRange)
	}
}

func TestValid(t *testing.T) {
	assert.True(t, Valid("BV17x411w7KC"))
	assert.False(t, Valid("AV17x411w7KC"))
	assert.False(t, Valid("BVinvalid!!!"))
}
