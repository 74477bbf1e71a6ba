// Package orderkey generates sortable, opaque order keys for sibling tasks.
//
// Keys are strings over the base-62 alphabet 0-9A-Za-z (ASCII order), so
// plain byte-wise string comparison gives the display order. A valid key is
// non-empty and never ends with the zero digit '0'; this guarantees that a
// key strictly below any valid key always exists.
//
// Inserting between two neighbors extends the key length instead of relying
// on fixed-precision midpoints, so any fixed pair of neighbors admits an
// unbounded number of insertions without touching other siblings. The only
// practical bound is the configured maximum key length; beyond it the
// Sequencer reports ErrExhausted and the caller rebalances the sibling group.
//
// The Sequencer never inspects task content. It is a pure string utility
// and safe for concurrent use.
package orderkey

import (
	"errors"
	"fmt"
)

const (
	digits = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
	base   = len(digits)

	// InitialKey is the key given to the first task in an empty sibling group.
	InitialKey = "V"

	// DefaultMaxKeyLength bounds key growth before a rebalance is requested.
	DefaultMaxKeyLength = 48

	// maxRebalanceWidth keeps base^width within uint64.
	maxRebalanceWidth = 10
)

// ErrExhausted reports that no key can be produced between two neighbors
// under the encoding: the neighbors are equal or out of order, one of them is
// not a valid key, or the result would exceed the maximum key length.
// Callers respond by rebalancing the sibling group.
var ErrExhausted = errors.New("orderkey: no key fits between neighbors")

// Sequencer produces order keys.
type Sequencer struct {
	maxLen int
}

// Option configures a Sequencer.
type Option func(*Sequencer)

// WithMaxKeyLength sets the maximum key length. Values below 2 are ignored.
func WithMaxKeyLength(n int) Option {
	return func(s *Sequencer) {
		if n >= 2 {
			s.maxLen = n
		}
	}
}

// New creates a Sequencer.
func New(opts ...Option) *Sequencer {
	s := &Sequencer{maxLen: DefaultMaxKeyLength}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MaxKeyLength returns the configured key length bound.
func (s *Sequencer) MaxKeyLength() int {
	return s.maxLen
}

// KeyAfter returns a key sorting strictly after last.
// An empty last yields InitialKey.
func (s *Sequencer) KeyAfter(last string) (string, error) {
	return s.KeyBetween(last, "")
}

// KeyBefore returns a key sorting strictly before first.
// An empty first yields InitialKey.
func (s *Sequencer) KeyBefore(first string) (string, error) {
	return s.KeyBetween("", first)
}

// KeyBetween returns a key sorting strictly between lo and hi.
// An empty lo means "no lower neighbor", an empty hi "no upper neighbor".
//
// Returns ErrExhausted (wrapped) when no key fits.
func (s *Sequencer) KeyBetween(lo, hi string) (string, error) {
	if lo != "" && !Valid(lo) {
		return "", fmt.Errorf("%w: invalid lower key %q", ErrExhausted, lo)
	}
	if hi != "" && !Valid(hi) {
		return "", fmt.Errorf("%w: invalid upper key %q", ErrExhausted, hi)
	}
	if lo != "" && hi != "" && lo >= hi {
		return "", fmt.Errorf("%w: %q is not below %q", ErrExhausted, lo, hi)
	}

	var key string
	switch {
	case lo == "" && hi == "":
		key = InitialKey
	case hi == "":
		key = after(lo)
	case lo == "":
		key = before(hi)
	default:
		key = midpoint(lo, hi)
	}

	if len(key) > s.maxLen {
		return "", fmt.Errorf("%w: key length %d exceeds %d", ErrExhausted, len(key), s.maxLen)
	}
	return key, nil
}

// Spread returns n strictly increasing keys between lo and hi (either may be
// empty). Keys are produced by bisection so their length grows with log(n),
// not n.
func (s *Sequencer) Spread(lo, hi string, n int) ([]string, error) {
	keys := make([]string, n)
	if err := s.fill(lo, hi, keys); err != nil {
		return nil, err
	}
	return keys, nil
}

func (s *Sequencer) fill(lo, hi string, out []string) error {
	if len(out) == 0 {
		return nil
	}
	mid := len(out) / 2
	key, err := s.KeyBetween(lo, hi)
	if err != nil {
		return err
	}
	out[mid] = key
	if err := s.fill(lo, key, out[:mid]); err != nil {
		return err
	}
	return s.fill(key, hi, out[mid+1:])
}

// Rebalance returns n evenly spaced, strictly increasing keys for an entire
// sibling group. Every adjacent pair leaves room for further insertions.
//
// This is the O(n) repair for ErrExhausted; it is applied to one sibling
// group at a time, never globally.
func (s *Sequencer) Rebalance(n int) []string {
	if n <= 0 {
		return nil
	}

	// Pick the narrowest width whose key space leaves a gap of at least one
	// full digit between neighbors.
	width := 1
	space := uint64(base)
	need := uint64(n+1) * uint64(base)
	for space < need && width < maxRebalanceWidth {
		width++
		space *= uint64(base)
	}

	step := space / uint64(n+1)
	keys := make([]string, n)
	for i := range keys {
		keys[i] = encodeFixed(uint64(i+1)*step, width)
	}
	return keys
}

// Valid reports whether key is a well-formed order key.
func Valid(key string) bool {
	if key == "" || key[len(key)-1] == digits[0] {
		return false
	}
	for i := 0; i < len(key); i++ {
		if digitValue(key[i]) < 0 {
			return false
		}
	}
	return true
}

// after returns the shortest-ish key greater than k: the first digit that can
// be incremented is, and the rest is dropped.
func after(k string) string {
	for i := 0; i < len(k); i++ {
		if d := digitValue(k[i]); d < base-1 {
			return k[:i] + string(digits[d+1])
		}
	}
	return k + InitialKey
}

// before returns a key smaller than k. A leading run of zero digits is kept;
// the first digit above one is decremented, a one becomes "0" + InitialKey.
func before(k string) string {
	for i := 0; i < len(k); i++ {
		switch d := digitValue(k[i]); {
		case d > 1:
			return k[:i] + string(digits[d-1])
		case d == 1:
			return k[:i] + string(digits[0]) + InitialKey
		}
	}
	// Unreachable for valid keys: they never end with '0'.
	return string(digits[0]) + InitialKey
}

// midpoint returns a key strictly between a and b.
// a may be empty (treated as an infinite run of zero digits); b may be empty
// (no upper bound). When both are set, a < b must hold.
func midpoint(a, b string) string {
	if b == "" {
		if a == "" {
			return InitialKey
		}
		da := digitValue(a[0])
		if da < base-2 {
			return string(digits[(da+base+1)/2])
		}
		if da == base-2 {
			return string(digits[base-1])
		}
		return string(digits[base-1]) + midpoint(a[1:], "")
	}

	// Shared prefix, padding a with zero digits.
	n := 0
	for n < len(b) {
		ca := digits[0]
		if n < len(a) {
			ca = a[n]
		}
		if ca != b[n] {
			break
		}
		n++
	}
	if n > 0 {
		rest := ""
		if n < len(a) {
			rest = a[n:]
		}
		return b[:n] + midpoint(rest, b[n:])
	}

	da := 0
	if a != "" {
		da = digitValue(a[0])
	}
	db := digitValue(b[0])
	if db-da > 1 {
		return string(digits[(da+db+1)/2])
	}
	// Adjacent first digits.
	if len(b) > 1 {
		return b[:1]
	}
	rest := ""
	if len(a) > 1 {
		rest = a[1:]
	}
	return string(digits[da]) + midpoint(rest, "")
}

// encodeFixed renders v as exactly width base-62 digits, then strips
// trailing zero digits. Stripping preserves order among equal-width values.
func encodeFixed(v uint64, width int) string {
	buf := make([]byte, width)
	for i := width - 1; i >= 0; i-- {
		buf[i] = digits[v%uint64(base)]
		v /= uint64(base)
	}
	end := width
	for end > 1 && buf[end-1] == digits[0] {
		end--
	}
	return string(buf[:end])
}

func digitValue(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'A' && c <= 'Z':
		return int(c-'A') + 10
	case c >= 'a' && c <= 'z':
		return int(c-'a') + 36
	default:
		return -1
	}
}
