package transport_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lukasojd/puregit/objectid"
	"github.com/lukasojd/puregit/transport"
	"github.com/lukasojd/puregit/transport/pktline"
)

func testID(b byte) objectid.ID {
	var id objectid.ID
	id[0] = b
	id[19] = b
	return id
}

func TestParseRefAdvertisement(t *testing.T) {
	var buf bytes.Buffer
	first := testID(0x11).String() + " refs/heads/main\x00ofs-delta side-band-64k\n"
	pktline.WritePacketString(&buf, first)
	pktline.WritePacketString(&buf, testID(0x22).String()+" refs/heads/dev\n")
	pktline.WriteFlush(&buf)

	adv, err := transport.ParseRefAdvertisement(&buf)
	require.NoError(t, err)
	require.Equal(t, []string{"ofs-delta", "side-band-64k"}, adv.Capabilities)
	require.Equal(t, testID(0x11), adv.Refs["refs/heads/main"])
	require.Equal(t, testID(0x22), adv.Refs["refs/heads/dev"])
}

func TestParseRefAdvertisementEmptyRepository(t *testing.T) {
	var buf bytes.Buffer
	zero := objectid.ID{}
	pktline.WritePacketString(&buf, zero.String()+" capabilities^{}\x00report-status\n")
	pktline.WriteFlush(&buf)

	adv, err := transport.ParseRefAdvertisement(&buf)
	require.NoError(t, err)
	require.Empty(t, adv.Refs)
	require.Equal(t, []string{"report-status"}, adv.Capabilities)
}

func TestWriteWantHaves(t *testing.T) {
	var buf bytes.Buffer
	want := testID(0x33)
	have := testID(0x44)
	err := transport.WriteWantHaves(&buf, []objectid.ID{want}, []objectid.ID{have})
	require.NoError(t, err)

	s := pktline.NewScanner(&buf)
	require.True(t, s.Scan())
	require.Equal(t, "want "+want.String()+" ofs-delta side-band-64k\n", string(s.Bytes()))
	require.True(t, s.Scan())
	require.Equal(t, pktline.Flush, s.Status())
	require.True(t, s.Scan())
	require.Equal(t, "have "+have.String()+"\n", string(s.Bytes()))
	require.True(t, s.Scan())
	require.Equal(t, "done\n", string(s.Bytes()))
}

func TestWriteWantHavesRequiresAtLeastOneWant(t *testing.T) {
	var buf bytes.Buffer
	err := transport.WriteWantHaves(&buf, nil, nil)
	require.Error(t, err)
}

func TestReadAckNakStopsAtNak(t *testing.T) {
	var buf bytes.Buffer
	pktline.WritePacketString(&buf, "NAK\n")
	require.NoError(t, transport.ReadAckNak(&buf))
}

func TestReadAckNakStopsAtAck(t *testing.T) {
	var buf bytes.Buffer
	id := testID(0x55)
	pktline.WritePacketString(&buf, "ACK "+id.String()+"\n")
	require.NoError(t, transport.ReadAckNak(&buf))
}

func TestWriteRefUpdates(t *testing.T) {
	var buf bytes.Buffer
	updates := []transport.RefUpdate{
		{Name: "refs/heads/main", Old: testID(0x01), New: testID(0x02)},
	}
	require.NoError(t, transport.WriteRefUpdates(&buf, updates))

	s := pktline.NewScanner(&buf)
	require.True(t, s.Scan())
	require.Equal(t, testID(0x01).String()+" "+testID(0x02).String()+" refs/heads/main\x00report-status\n", string(s.Bytes()))
	require.True(t, s.Scan())
	require.Equal(t, pktline.Flush, s.Status())
}

func TestParseReportStatusAllOK(t *testing.T) {
	var buf bytes.Buffer
	pktline.WritePacketString(&buf, "unpack ok\n")
	pktline.WritePacketString(&buf, "ok refs/heads/main\n")
	pktline.WriteFlush(&buf)

	report, err := transport.ParseReportStatus(&buf)
	require.NoError(t, err)
	require.True(t, report.OK())
}

func TestParseReportStatusRejected(t *testing.T) {
	var buf bytes.Buffer
	pktline.WritePacketString(&buf, "unpack ok\n")
	pktline.WritePacketString(&buf, "ng refs/heads/main non-fast-forward\n")
	pktline.WriteFlush(&buf)

	report, err := transport.ParseReportStatus(&buf)
	require.NoError(t, err)
	require.False(t, report.OK())
	require.Equal(t, "non-fast-forward", report.RefStatus["refs/heads/main"])
}

func TestParseReportStatusUnpackFailed(t *testing.T) {
	var buf bytes.Buffer
	pktline.WritePacketString(&buf, "unpack index-pack failed\n")
	pktline.WriteFlush(&buf)

	report, err := transport.ParseReportStatus(&buf)
	require.NoError(t, err)
	require.False(t, report.UnpackOK)
	require.Equal(t, "index-pack failed", report.UnpackError)
	require.False(t, report.OK())
}
