package transport

import (
	"io"

	"github.com/lukasojd/puregit/objectid"
)

// RefAdvertisement is what a server offers at the start of either the
// fetch or push dialogue: the capability list and the current value of
// every advertised ref (spec.md §4.J "list_refs()").
type RefAdvertisement struct {
	Capabilities []string
	Refs         map[string]objectid.ID
}

// RefUpdate is one line of a push's ref-update command (spec.md §4.J
// "Push"): move name from Old to New. A New of the zero ID deletes the
// ref; an Old of the zero ID creates it.
type RefUpdate struct {
	Name string
	Old  objectid.ID
	New  objectid.ID
}

// ReportStatus is the parsed reply to a push (spec.md §4.J "read the
// report-status reply for per-ref ok/ng").
type ReportStatus struct {
	UnpackOK    bool
	UnpackError string
	RefStatus   map[string]string // ref name -> "ok" or the ng reason
}

// OK reports whether the unpack and every ref update succeeded.
func (r *ReportStatus) OK() bool {
	if !r.UnpackOK {
		return false
	}
	for _, status := range r.RefStatus {
		if status != "ok" {
			return false
		}
	}
	return true
}

// Client is the capability set spec.md §4.J exposes, implemented once
// per concrete protocol (http(s), ssh, git, local filesystem).
type Client interface {
	// ListRefs fetches the ref advertisement without transferring a
	// pack.
	ListRefs(ep *Endpoint, auth AuthMethod) (*RefAdvertisement, error)

	// FetchPack requests a pack containing wants reachable but not
	// already covered by haves, streaming the result to out.
	FetchPack(ep *Endpoint, auth AuthMethod, wants, haves []objectid.ID, out io.Writer) error

	// SendPack pushes the ref updates and the accompanying pack,
	// returning the server's per-ref report.
	SendPack(ep *Endpoint, auth AuthMethod, updates []RefUpdate, pack io.Reader) (*ReportStatus, error)
}
