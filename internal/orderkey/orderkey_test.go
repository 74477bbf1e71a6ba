package orderkey

import (
	"errors"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyAfter_EmptyReturnsInitial(t *testing.T) {
	s := New()
	key, err := s.KeyAfter("")
	require.NoError(t, err)
	assert.Equal(t, InitialKey, key)
}

func TestKeyAfter_StrictlyIncreasing(t *testing.T) {
	s := New()
	prev := ""
	for i := 0; i < 500; i++ {
		key, err := s.KeyAfter(prev)
		require.NoError(t, err, "append %d", i)
		require.True(t, Valid(key), "key %q should be valid", key)
		if prev != "" {
			require.Greater(t, key, prev, "append %d", i)
		}
		prev = key
	}
}

func TestKeyAfter_Examples(t *testing.T) {
	s := New()
	tests := []struct {
		last string
		want string
	}{
		{"V", "W"},
		{"Vx", "W"},
		{"y", "z"},
		{"z", "zV"},
		{"zV", "zW"},
		{"zz", "zzV"},
	}
	for _, tt := range tests {
		t.Run(tt.last, func(t *testing.T) {
			got, err := s.KeyAfter(tt.last)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestKeyBefore_Examples(t *testing.T) {
	s := New()
	tests := []struct {
		first string
		want  string
	}{
		{"V", "U"},
		{"2", "1"},
		{"1", "0V"},
		{"0V", "0U"},
		{"01", "00V"},
	}
	for _, tt := range tests {
		t.Run(tt.first, func(t *testing.T) {
			got, err := s.KeyBefore(tt.first)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Less(t, got, tt.first)
			assert.True(t, Valid(got))
		})
	}
}

func TestKeyBefore_RepeatedPrepend(t *testing.T) {
	s := New()
	first := InitialKey
	for i := 0; i < 300; i++ {
		key, err := s.KeyBefore(first)
		require.NoError(t, err, "prepend %d", i)
		require.Less(t, key, first)
		require.True(t, Valid(key))
		first = key
	}
}

func TestKeyBetween_AdjacentDigitsExtendLength(t *testing.T) {
	s := New()
	key, err := s.KeyBetween("V", "W")
	require.NoError(t, err)
	assert.Equal(t, "VV", key)
}

func TestKeyBetween_Midpoint(t *testing.T) {
	s := New()
	key, err := s.KeyBetween("A", "a")
	require.NoError(t, err)
	assert.Greater(t, key, "A")
	assert.Less(t, key, "a")
	assert.Len(t, key, 1)
}

func TestKeyBetween_PrefixNeighbors(t *testing.T) {
	s := New()
	key, err := s.KeyBetween("V", "VV")
	require.NoError(t, err)
	assert.Equal(t, "VG", key)
}

func TestKeyBetween_BothEmpty(t *testing.T) {
	s := New()
	key, err := s.KeyBetween("", "")
	require.NoError(t, err)
	assert.Equal(t, InitialKey, key)
}

func TestKeyBetween_RejectsBadNeighbors(t *testing.T) {
	s := New()
	tests := []struct {
		name   string
		lo, hi string
	}{
		{"equal", "V", "V"},
		{"reversed", "W", "V"},
		{"trailing zero low", "V0", "W"},
		{"invalid char high", "V", "W-"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.KeyBetween(tt.lo, tt.hi)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrExhausted))
		})
	}
}

// Repeatedly inserting directly after a fixed key must not degrade quickly.
func TestKeyBetween_UnboundedDensityAfterFixedLow(t *testing.T) {
	s := New()
	lo := "V"
	hi := "W"
	for i := 0; i < 200; i++ {
		key, err := s.KeyBetween(lo, hi)
		require.NoError(t, err, "insert %d", i)
		require.Greater(t, key, lo)
		require.Less(t, key, hi)
		require.True(t, Valid(key))
		hi = key
	}
}

func TestKeyBetween_UnboundedDensityBeforeFixedHigh(t *testing.T) {
	s := New()
	lo := "V"
	hi := "W"
	for i := 0; i < 150; i++ {
		key, err := s.KeyBetween(lo, hi)
		require.NoError(t, err, "insert %d", i)
		require.Greater(t, key, lo)
		require.Less(t, key, hi)
		lo = key
	}
}

func TestKeyBetween_FiftyInsertionsWithinDefaultLength(t *testing.T) {
	s := New()
	lo, hi := "V", "W"
	for i := 0; i < 50; i++ {
		key, err := s.KeyBetween(lo, hi)
		require.NoError(t, err, "insert %d", i)
		hi = key
	}
	assert.LessOrEqual(t, len(hi), 12, "50 insertions should stay short, got %q", hi)
}

func TestKeyBetween_ExhaustsAtMaxLength(t *testing.T) {
	s := New(WithMaxKeyLength(4))
	lo, hi := "V", "W"
	var err error
	for i := 0; i < 100; i++ {
		var key string
		key, err = s.KeyBetween(lo, hi)
		if err != nil {
			break
		}
		hi = key
	}
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExhausted)
}

func TestWithMaxKeyLength_IgnoresTinyValues(t *testing.T) {
	s := New(WithMaxKeyLength(1))
	assert.Equal(t, DefaultMaxKeyLength, s.MaxKeyLength())
}

func TestRebalance_EvenlySpacedAndInsertable(t *testing.T) {
	s := New()
	for _, n := range []int{1, 2, 3, 10, 61, 62, 100, 1000} {
		keys := s.Rebalance(n)
		require.Len(t, keys, n)
		require.True(t, sort.StringsAreSorted(keys), "n=%d", n)
		for i, k := range keys {
			require.True(t, Valid(k), "n=%d key %q", n, k)
			if i > 0 {
				require.Less(t, keys[i-1], k, "n=%d", n)
				between, err := s.KeyBetween(keys[i-1], k)
				require.NoError(t, err)
				require.Greater(t, between, keys[i-1])
				require.Less(t, between, k)
			}
		}
		before, err := s.KeyBefore(keys[0])
		require.NoError(t, err)
		require.Less(t, before, keys[0])
	}
}

func TestRebalance_Zero(t *testing.T) {
	assert.Nil(t, New().Rebalance(0))
}

func TestRebalance_SmallGroup(t *testing.T) {
	assert.Equal(t, []string{"FV", "V", "kV"}, New().Rebalance(3))
}

func TestSpread_OrderedWithinBounds(t *testing.T) {
	s := New()
	keys, err := s.Spread("V", "W", 20)
	require.NoError(t, err)
	require.Len(t, keys, 20)
	prev := "V"
	for _, k := range keys {
		require.Greater(t, k, prev)
		prev = k
	}
	assert.Less(t, prev, "W")
	for _, k := range keys {
		assert.LessOrEqual(t, len(k), 6, "bisection should keep keys short, got %q", k)
	}
}

func TestSpread_Unbounded(t *testing.T) {
	keys, err := New().Spread("", "", 5)
	require.NoError(t, err)
	assert.True(t, sort.StringsAreSorted(keys))
}

func TestValid(t *testing.T) {
	assert.True(t, Valid("V"))
	assert.True(t, Valid("0V"))
	assert.False(t, Valid(""))
	assert.False(t, Valid("V0"))
	assert.False(t, Valid("V V"))
	assert.False(t, Valid(strings.Repeat("0", 3)))
}
