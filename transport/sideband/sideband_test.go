package sideband_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lukasojd/puregit/transport/pktline"
	"github.com/lukasojd/puregit/transport/sideband"
)

func writeChannelPacket(t *testing.T, buf *bytes.Buffer, ch sideband.Channel, payload []byte) {
	t.Helper()
	_, err := pktline.WritePacket(buf, append([]byte{byte(ch)}, payload...))
	require.NoError(t, err)
}

func TestDemuxerReadsPackDataAcrossPackets(t *testing.T) {
	expected := []byte("abcdefghijklmnopqrstuvwxyz")

	var buf bytes.Buffer
	writeChannelPacket(t, &buf, sideband.PackData, expected[0:8])
	writeChannelPacket(t, &buf, sideband.ProgressMessage, []byte("FOO\n"))
	writeChannelPacket(t, &buf, sideband.PackData, expected[8:16])
	writeChannelPacket(t, &buf, sideband.PackData, expected[16:26])
	require.NoError(t, pktline.WriteFlush(&buf))

	d := sideband.NewDemuxer(sideband.Sideband64k, &buf)
	content := make([]byte, 26)
	n, err := io.ReadFull(d, content)
	require.NoError(t, err)
	require.Equal(t, 26, n)
	require.Equal(t, expected, content)
}

func TestDemuxerRoutesProgressToWriter(t *testing.T) {
	expected := []byte("abcdefgh")

	var buf bytes.Buffer
	writeChannelPacket(t, &buf, sideband.PackData, expected)
	writeChannelPacket(t, &buf, sideband.ProgressMessage, []byte("working...\n"))
	require.NoError(t, pktline.WriteFlush(&buf))

	var progress bytes.Buffer
	d := sideband.NewDemuxer(sideband.Sideband64k, &buf)
	d.Progress = &progress

	content := make([]byte, len(expected))
	n, err := io.ReadFull(d, content)
	require.NoError(t, err)
	require.Equal(t, expected, content[:n])
	require.Equal(t, "working...\n", progress.String())
}

func TestDemuxerStopsOnErrorChannel(t *testing.T) {
	var buf bytes.Buffer
	writeChannelPacket(t, &buf, sideband.PackData, []byte("abcd"))
	writeChannelPacket(t, &buf, sideband.ErrorMessage, []byte("access denied\n"))

	d := sideband.NewDemuxer(sideband.Sideband64k, &buf)
	content := make([]byte, 4)
	n, err := io.ReadFull(d, content)
	require.NoError(t, err)
	require.Equal(t, "abcd", string(content[:n]))

	_, err = io.ReadFull(d, make([]byte, 1))
	require.Error(t, err)
	require.Contains(t, err.Error(), "access denied")
}

func TestMuxerWriteSplitsOversizedPayload(t *testing.T) {
	var buf bytes.Buffer
	m := sideband.NewMuxer(sideband.Sideband64k, &buf)

	payload := bytes.Repeat([]byte{'x'}, sideband.Sideband64k.MaxPayloadSize()*2+10)
	n, err := m.Write(payload)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)

	d := sideband.NewDemuxer(sideband.Sideband64k, &buf)
	got := make([]byte, len(payload))
	_, err = io.ReadFull(d, got)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}
