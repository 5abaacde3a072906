package pktline_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lukasojd/puregit/transport/pktline"
)

func TestWriteReadPacketRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	_, err := pktline.WritePacketString(&buf, "want deadbeef\n")
	require.NoError(t, err)

	require.Equal(t, "0012want deadbeef\n", buf.String())

	length, payload, err := pktline.ReadPacket(&buf)
	require.NoError(t, err)
	require.Equal(t, 14, length)
	require.Equal(t, "want deadbeef\n", string(payload))
}

func TestWriteFlush(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, pktline.WriteFlush(&buf))
	require.Equal(t, "0000", buf.String())

	length, payload, err := pktline.ReadPacket(&buf)
	require.NoError(t, err)
	require.Equal(t, pktline.Flush, length)
	require.Nil(t, payload)
}

func TestWriteDelim(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, pktline.WriteDelim(&buf))

	length, payload, err := pktline.ReadPacket(&buf)
	require.NoError(t, err)
	require.Equal(t, pktline.Delim, length)
	require.Nil(t, payload)
}

func TestScannerTokenizesMultiplePackets(t *testing.T) {
	var buf bytes.Buffer
	_, err := pktline.WritePacketString(&buf, "first\n")
	require.NoError(t, err)
	_, err = pktline.WritePacketString(&buf, "second\n")
	require.NoError(t, err)
	require.NoError(t, pktline.WriteFlush(&buf))

	scanner := pktline.NewScanner(&buf)

	require.True(t, scanner.Scan())
	require.Equal(t, "first\n", string(scanner.Bytes()))

	require.True(t, scanner.Scan())
	require.Equal(t, "second\n", string(scanner.Bytes()))

	require.True(t, scanner.Scan())
	require.Equal(t, pktline.Flush, scanner.Status())

	require.False(t, scanner.Scan())
	require.NoError(t, scanner.Err())
}

func TestReadPacketErrorLine(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, pktline.WriteError(&buf, "access denied"))

	_, _, err := pktline.ReadPacket(&buf)
	require.Error(t, err)
	var errLine *pktline.ErrorLine
	require.ErrorAs(t, err, &errLine)
	require.Equal(t, "access denied", errLine.Text)
}

func TestWritePacketRejectsOversizedPayload(t *testing.T) {
	var buf bytes.Buffer
	_, err := pktline.WritePacket(&buf, make([]byte, pktline.MaxPayloadSize+1))
	require.ErrorIs(t, err, pktline.ErrPayloadTooLong)
}
