// Package sideband implements the side-band-64k multiplexing of
// spec.md §4.I: every pkt-line payload on a side-band channel is
// prefixed with a 1-byte channel tag (1=pack data, 2=progress text,
// 3=fatal error), letting pack bytes and human-readable progress share
// one connection. Grounded on go-git's
// plumbing/protocol/packp/sideband package (Demuxer/Muxer split,
// channel byte values, WithPayload framing), reimplemented against
// this module's own pktline package instead of go-git's.
package sideband

import (
	"fmt"
	"io"

	"github.com/lukasojd/puregit/transport/pktline"
)

// Channel identifies a side-band stream's purpose (spec.md §4.I).
type Channel byte

const (
	PackData        Channel = 1
	ProgressMessage Channel = 2
	ErrorMessage    Channel = 3
)

// Type distinguishes the two side-band protocol variants the pack
// protocol negotiates: Sideband caps payloads at 1000 bytes total,
// Sideband64k at 65520.
type Type int

const (
	Sideband Type = iota
	Sideband64k
)

func (t Type) maxPacketSize() int {
	if t == Sideband64k {
		return 65520
	}
	return 1000
}

// MaxPayloadSize returns the largest payload WithPayload (and thus
// Muxer.Write) may carry for this side-band type, accounting for the
// pkt-line length prefix and the channel byte.
func (t Type) MaxPayloadSize() int {
	return t.maxPacketSize() - 4 - 1
}

// Demuxer reads a side-band-multiplexed stream, exposing the pack-data
// channel as an io.Reader. Progress channel content is written to
// Progress if set, or discarded; an error channel message ends the
// stream with an error carrying its text.
type Demuxer struct {
	t        Type
	r        io.Reader
	Progress io.Writer

	pending []byte
	err     error
}

// NewDemuxer wraps r, a stream of side-band pkt-lines, as an
// io.Reader over its pack-data channel.
func NewDemuxer(t Type, r io.Reader) *Demuxer {
	return &Demuxer{t: t, r: r}
}

// Read implements io.Reader, pulling and filtering pkt-lines from the
// underlying stream until p is filled, EOF, or a fatal error-channel
// message arrives.
func (d *Demuxer) Read(p []byte) (int, error) {
	total := 0
	for total < len(p) {
		if len(d.pending) == 0 {
			if d.err != nil {
				if total > 0 {
					return total, nil
				}
				return 0, d.err
			}
			if err := d.fill(); err != nil {
				if total > 0 {
					d.err = err
					return total, nil
				}
				return 0, err
			}
			if len(d.pending) == 0 {
				// Flush packet or EOF with no more content.
				return total, io.EOF
			}
		}
		n := copy(p[total:], d.pending)
		d.pending = d.pending[n:]
		total += n
	}
	return total, nil
}

func (d *Demuxer) fill() error {
	for {
		status, payload, err := pktline.ReadPacket(d.r)
		if err != nil {
			return err
		}
		if status == pktline.Flush {
			return io.EOF
		}
		if len(payload) == 0 {
			continue
		}

		channel := Channel(payload[0])
		body := payload[1:]
		switch channel {
		case PackData:
			d.pending = body
			return nil
		case ProgressMessage:
			if d.Progress != nil {
				if _, werr := d.Progress.Write(body); werr != nil {
					return werr
				}
			}
		case ErrorMessage:
			return fmt.Errorf("unexpected error: %s", body)
		default:
			return fmt.Errorf("unknown side-band channel %d", channel)
		}
	}
}

// Muxer writes pack data (and, via WriteProgress/WriteError, the other
// two channels) as side-band pkt-lines to w.
type Muxer struct {
	t Type
	w io.Writer
}

// NewMuxer returns a Muxer writing side-band pkt-lines of type t to w.
func NewMuxer(t Type, w io.Writer) *Muxer {
	return &Muxer{t: t, w: w}
}

// Write implements io.Writer over the pack-data channel, splitting p
// into as many pkt-lines as MaxPayloadSize requires.
func (m *Muxer) Write(p []byte) (int, error) {
	return m.writeChannel(PackData, p)
}

// WriteProgress sends msg on the progress channel.
func (m *Muxer) WriteProgress(msg []byte) error {
	_, err := m.writeChannel(ProgressMessage, msg)
	return err
}

// WriteError sends msg on the error channel, which signals the reader
// to abort (spec.md §4.I).
func (m *Muxer) WriteError(msg []byte) error {
	_, err := m.writeChannel(ErrorMessage, msg)
	return err
}

func (m *Muxer) writeChannel(ch Channel, p []byte) (int, error) {
	max := m.t.MaxPayloadSize()
	written := 0
	for written < len(p) || (len(p) == 0 && written == 0) {
		end := written + max
		if end > len(p) {
			end = len(p)
		}
		chunk := append([]byte{byte(ch)}, p[written:end]...)
		if _, err := pktline.WritePacket(m.w, chunk); err != nil {
			return written, err
		}
		written = end
		if len(p) == 0 {
			break
		}
	}
	return written, nil
}
