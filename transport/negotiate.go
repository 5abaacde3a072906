package transport

import (
	"fmt"
	"io"
	"strings"

	"github.com/lukasojd/puregit/objectid"
	"github.com/lukasojd/puregit/transport/pktline"
)

// ParseRefAdvertisement reads the initial ref advertisement shared by
// every smart protocol (git-upload-pack and git-receive-pack alike):
// one pkt-line per ref as "<id> <name>", the first line additionally
// carrying a NUL-separated capability list, terminated by a flush.
func ParseRefAdvertisement(r io.Reader) (*RefAdvertisement, error) {
	adv := &RefAdvertisement{Refs: map[string]objectid.ID{}}

	s := pktline.NewScanner(r)
	first := true
	for s.Scan() {
		if s.Status() == pktline.Flush {
			break
		}
		line := strings.TrimRight(string(s.Bytes()), "\n")
		if line == "" {
			continue
		}

		if first {
			first = false
			if idx := strings.IndexByte(line, 0); idx >= 0 {
				adv.Capabilities = strings.Fields(line[idx+1:])
				line = line[:idx]
			}
			// A server with no refs advertises "0000000...0 capabilities^{}".
			if strings.HasSuffix(line, "capabilities^{}") {
				continue
			}
		}

		sp := strings.IndexByte(line, ' ')
		if sp < 0 {
			return nil, fmt.Errorf("transport: malformed ref advertisement line %q", line)
		}
		id, err := objectid.FromHex(line[:sp])
		if err != nil {
			return nil, err
		}
		adv.Refs[line[sp+1:]] = id
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return adv, nil
}

// WriteWantHaves writes the fetch negotiation request body (spec.md
// §4.J "Fetch negotiation"): "want <hex> ofs-delta side-band-64k" for
// the first want, "want <hex>" for the rest, a flush, "have <hex>" for
// each have, then "done".
func WriteWantHaves(w io.Writer, wants, haves []objectid.ID) error {
	if len(wants) == 0 {
		return fmt.Errorf("transport: fetch requires at least one want")
	}
	for i, id := range wants {
		line := "want " + id.String()
		if i == 0 {
			line += " ofs-delta side-band-64k"
		}
		if _, err := pktline.WritePacketString(w, line+"\n"); err != nil {
			return err
		}
	}
	if err := pktline.WriteFlush(w); err != nil {
		return err
	}
	for _, id := range haves {
		if _, err := pktline.WritePacketString(w, "have "+id.String()+"\n"); err != nil {
			return err
		}
	}
	_, err := pktline.WritePacketString(w, "done\n")
	return err
}

// ReadAckNak consumes the ACK/NAK lines a server sends in response to
// WriteWantHaves, stopping at the first indication the negotiation is
// over (a bare "NAK" or any "ACK <id>" line), after which side-band
// pack data follows.
func ReadAckNak(r io.Reader) error {
	s := pktline.NewScanner(r)
	for s.Scan() {
		line := strings.TrimRight(string(s.Bytes()), "\n")
		if line == "NAK" || strings.HasPrefix(line, "ACK ") {
			return nil
		}
	}
	if err := s.Err(); err != nil {
		return err
	}
	return fmt.Errorf("transport: server closed connection before ACK/NAK")
}

// WriteRefUpdates writes a push's ref-update command list (spec.md
// §4.J "Push"): one pkt-line per update, "old-hex new-hex ref-name",
// the first line also carrying "\0report-status", then a flush.
func WriteRefUpdates(w io.Writer, updates []RefUpdate) error {
	for i, u := range updates {
		line := fmt.Sprintf("%s %s %s", u.Old.String(), u.New.String(), u.Name)
		if i == 0 {
			line += "\x00report-status"
		}
		if _, err := pktline.WritePacketString(w, line+"\n"); err != nil {
			return err
		}
	}
	return pktline.WriteFlush(w)
}

// ParseReportStatus parses the reply to a push: "unpack ok|<reason>",
// then one "ok <ref>" or "ng <ref> <reason>" line per update, ending in
// a flush (spec.md §4.J "read the report-status reply").
func ParseReportStatus(r io.Reader) (*ReportStatus, error) {
	report := &ReportStatus{RefStatus: map[string]string{}}

	s := pktline.NewScanner(r)
	first := true
	for s.Scan() {
		if s.Status() == pktline.Flush {
			break
		}
		line := strings.TrimRight(string(s.Bytes()), "\n")
		if first {
			first = false
			const prefix = "unpack "
			if !strings.HasPrefix(line, prefix) {
				return nil, fmt.Errorf("transport: expected unpack status, got %q", line)
			}
			status := strings.TrimPrefix(line, prefix)
			report.UnpackOK = status == "ok"
			if !report.UnpackOK {
				report.UnpackError = status
			}
			continue
		}

		switch {
		case strings.HasPrefix(line, "ok "):
			report.RefStatus[strings.TrimPrefix(line, "ok ")] = "ok"
		case strings.HasPrefix(line, "ng "):
			rest := strings.TrimPrefix(line, "ng ")
			sp := strings.IndexByte(rest, ' ')
			if sp < 0 {
				report.RefStatus[rest] = "ng"
			} else {
				report.RefStatus[rest[:sp]] = rest[sp+1:]
			}
		default:
			return nil, fmt.Errorf("transport: malformed report-status line %q", line)
		}
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return report, nil
}
