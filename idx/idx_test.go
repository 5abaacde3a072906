package idx_test

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lukasojd/puregit/idx"
	"github.com/lukasojd/puregit/objectid"
)

func idWithFirstByte(b byte, fill byte) objectid.ID {
	var raw [objectid.Size]byte
	raw[0] = b
	for i := 1; i < len(raw); i++ {
		raw[i] = fill
	}
	id, _ := objectid.FromBinary(raw[:])
	return id
}

// Scenario 4 (spec.md §8): pack index fanout.
func TestFanout(t *testing.T) {
	e1 := idx.Entry{ID: idWithFirstByte(0x1A, 0x00), Offset: 12, CRC32: 1}
	e2 := idx.Entry{ID: idWithFirstByte(0xB0, 0x00), Offset: 34, CRC32: 2}

	index := idx.New([]idx.Entry{e1, e2})

	var buf bytes.Buffer
	packSHA := objectid.Hash(objectid.BlobObject, []byte("pack"))
	_, err := idx.Encode(&buf, index.Entries(), packSHA)
	require.NoError(t, err)

	// The fanout table follows the 4-byte magic and 4-byte version.
	raw := buf.Bytes()
	fanout := func(b int) uint32 { return binary.BigEndian.Uint32(raw[8+4*b:]) }
	for b := 0x00; b <= 0xFF; b++ {
		switch {
		case b < 0x1A:
			require.Equal(t, uint32(0), fanout(b), "fanout[%#x]", b)
		case b < 0xB0:
			require.Equal(t, uint32(1), fanout(b), "fanout[%#x]", b)
		default:
			require.Equal(t, uint32(2), fanout(b), "fanout[%#x]", b)
		}
	}

	decoded, err := idx.Decode(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	require.Equal(t, 2, decoded.Count())

	off, err := decoded.FindOffset(e1.ID)
	require.NoError(t, err)
	require.Equal(t, int64(12), off)

	id, err := decoded.FindID(34)
	require.NoError(t, err)
	require.Equal(t, e2.ID, id)
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	buf := bytes.Repeat([]byte{0}, 64)
	_, err := idx.Decode(bytes.NewReader(buf))
	require.Error(t, err)
}

func TestEncodeDecodeRoundTripWithLargeOffset(t *testing.T) {
	e1 := idx.Entry{ID: idWithFirstByte(0x01, 0x11), Offset: 1 << 33, CRC32: 7}
	e2 := idx.Entry{ID: idWithFirstByte(0x02, 0x22), Offset: 100, CRC32: 9}

	var buf bytes.Buffer
	packSHA := objectid.Hash(objectid.BlobObject, []byte("pack2"))
	_, err := idx.Encode(&buf, []idx.Entry{e1, e2}, packSHA)
	require.NoError(t, err)

	decoded, err := idx.Decode(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)

	off, err := decoded.FindOffset(e1.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1<<33), off)
	require.Equal(t, packSHA, decoded.PackSHA)
}
