package pack_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lukasojd/puregit/pack"
)

// Scenario 3 (spec.md §8): OFS delta round-trip.
func TestEncodeDecodeDeltaRoundTrip(t *testing.T) {
	base := []byte("AAAAAAAAAAAAAAAA") // 16 A's
	target := append(append([]byte{}, base...), []byte("BBBBBBBBBBBBBBBB")...)

	delta, ok := pack.EncodeDelta(base, target, len(target))
	require.True(t, ok, "delta should be beneficial for this input")
	require.Less(t, len(delta), len(target))

	got, err := pack.DecodeDelta(base, delta)
	require.NoError(t, err)
	require.Equal(t, target, got)
}

func TestEncodeDeltaRejectedWhenNotBeneficial(t *testing.T) {
	base := []byte("x")
	target := []byte("completely different and much longer content than the base")
	_, ok := pack.EncodeDelta(base, target, 1)
	require.False(t, ok)
}

func TestDecodeDeltaRejectsSizeMismatch(t *testing.T) {
	base := []byte("hello")
	// Valid header (base size 5, target size 5) but an instruction
	// stream that produces fewer bytes than declared.
	delta := []byte{5, 5, 2, 'h', 'i'}
	_, err := pack.DecodeDelta(base, delta)
	require.Error(t, err)
}

func TestDecodeDeltaRejectsZeroCommand(t *testing.T) {
	base := []byte("hello")
	delta := []byte{5, 1, 0}
	_, err := pack.DecodeDelta(base, delta)
	require.Error(t, err)
}

func TestDecodeDeltaCopyFromBase(t *testing.T) {
	base := []byte("0123456789")
	// header: base size 10, target size 4
	// instruction: copy offset=2 size=4 -> cmd = 0x80 | 0x01(offset) | 0x10(size)
	delta := []byte{10, 4, byte(0x80 | 0x01 | 0x10), 2, 4}
	got, err := pack.DecodeDelta(base, delta)
	require.NoError(t, err)
	require.Equal(t, []byte("2345"), got)
}
