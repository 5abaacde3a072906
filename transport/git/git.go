// Package git implements the "git://" TCP daemon transport of spec.md
// §4.J. Grounded on go-git's plumbing/transport/git package for the
// request-line wire format (GitProtoRequest), reworked against this
// module's own transport.Client interface instead of go-git's
// Command/Session abstraction.
package git

import (
	"bufio"
	"fmt"
	"io"
	"net"

	"github.com/lukasojd/puregit/objectid"
	"github.com/lukasojd/puregit/transport"
	"github.com/lukasojd/puregit/transport/pktline"
	"github.com/lukasojd/puregit/transport/sideband"
)

// DefaultPort is the git:// protocol's well-known TCP port.
const DefaultPort = 9418

// Client speaks the anonymous git:// daemon protocol: a single
// pkt-line request naming the service and repository path, then the
// same smart-protocol dialogue as the other transports.
type Client struct{}

func New() *Client { return &Client{} }

func dialHost(ep *transport.Endpoint) string {
	host := ep.HostWithPort()
	if ep.Port == 0 {
		host = fmt.Sprintf("%s:%d", ep.Host, DefaultPort)
	}
	return host
}

func (c *Client) connect(ep *transport.Endpoint, service string) (net.Conn, error) {
	conn, err := net.Dial("tcp", dialHost(ep))
	if err != nil {
		return nil, err
	}

	req := fmt.Sprintf("%s %s\x00host=%s\x00", service, ep.Path, ep.Host)
	if _, err := pktline.WritePacketString(conn, req); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

func (c *Client) ListRefs(ep *transport.Endpoint, _ transport.AuthMethod) (*transport.RefAdvertisement, error) {
	conn, err := c.connect(ep, "git-upload-pack")
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	return transport.ParseRefAdvertisement(bufio.NewReader(conn))
}

func (c *Client) FetchPack(ep *transport.Endpoint, _ transport.AuthMethod, wants, haves []objectid.ID, out io.Writer) error {
	conn, err := c.connect(ep, "git-upload-pack")
	if err != nil {
		return err
	}
	defer conn.Close()

	br := bufio.NewReader(conn)
	if _, err := transport.ParseRefAdvertisement(br); err != nil {
		return err
	}
	if err := transport.WriteWantHaves(conn, wants, haves); err != nil {
		return err
	}
	if err := transport.ReadAckNak(br); err != nil {
		return err
	}

	demux := sideband.NewDemuxer(sideband.Sideband64k, br)
	_, err = io.Copy(out, demux)
	return err
}

func (c *Client) SendPack(ep *transport.Endpoint, _ transport.AuthMethod, updates []transport.RefUpdate, pack io.Reader) (*transport.ReportStatus, error) {
	conn, err := c.connect(ep, "git-receive-pack")
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	br := bufio.NewReader(conn)
	if _, err := transport.ParseRefAdvertisement(br); err != nil {
		return nil, err
	}
	if err := transport.WriteRefUpdates(conn, updates); err != nil {
		return nil, err
	}
	if _, err := io.Copy(conn, pack); err != nil {
		return nil, err
	}

	return transport.ParseReportStatus(br)
}

var _ transport.Client = (*Client)(nil)
