// Package http implements the smart-HTTP transport of spec.md §4.J.
// Grounded on go-git's plumbing/transport/http package for the
// info/refs discovery GET and the upload-pack/receive-pack POST
// endpoints, reworked against this module's own transport.Client
// interface and pktline/sideband packages.
package http

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/lukasojd/puregit/objectid"
	"github.com/lukasojd/puregit/transport"
	"github.com/lukasojd/puregit/transport/pktline"
	"github.com/lukasojd/puregit/transport/sideband"
)

const (
	uploadPackService  = "git-upload-pack"
	receivePackService = "git-receive-pack"
)

// BasicAuth is the transport.AuthMethod carrying HTTP basic credentials.
type BasicAuth struct {
	Username, Password string
}

func (BasicAuth) Name() string { return "http-basic-auth" }

// Client speaks the smart-HTTP protocol over net/http.
type Client struct {
	HTTPClient *http.Client
}

// New returns a Client using http.DefaultClient unless hc is given.
func New(hc *http.Client) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{HTTPClient: hc}
}

func baseURL(ep *transport.Endpoint) string {
	return fmt.Sprintf("%s://%s%s", ep.Protocol, ep.Host, ep.Path)
}

func (c *Client) newRequest(method, url string, body io.Reader, auth transport.AuthMethod) (*http.Request, error) {
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "puregit/1.0")
	if basic, ok := auth.(BasicAuth); ok {
		req.SetBasicAuth(basic.Username, basic.Password)
	}
	return req, nil
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	res, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	if res.StatusCode == http.StatusUnauthorized {
		res.Body.Close()
		return nil, transport.ErrAuthenticationRequired
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		res.Body.Close()
		return nil, fmt.Errorf("transport: http status %s", res.Status)
	}
	return res, nil
}

// discardServicePreamble consumes the "# service=<name>\n" pkt-line and
// the flush that follows it, which the smart-HTTP discovery GET
// prepends to the ordinary ref advertisement.
func discardServicePreamble(r *bufio.Reader) error {
	status, payload, err := pktline.ReadPacket(r)
	if err != nil {
		return err
	}
	if status == pktline.Flush {
		return nil
	}
	if !strings.HasPrefix(string(payload), "# service=") {
		return fmt.Errorf("transport: unexpected smart-http preamble %q", payload)
	}
	status, _, err = pktline.ReadPacket(r)
	if err != nil {
		return err
	}
	if status != pktline.Flush {
		return fmt.Errorf("transport: expected flush after service preamble")
	}
	return nil
}

func (c *Client) ListRefs(ep *transport.Endpoint, auth transport.AuthMethod) (*transport.RefAdvertisement, error) {
	return c.listRefsForService(ep, auth, uploadPackService)
}

func (c *Client) listRefsForService(ep *transport.Endpoint, auth transport.AuthMethod, service string) (*transport.RefAdvertisement, error) {
	url := fmt.Sprintf("%s/info/refs?service=%s", baseURL(ep), service)
	req, err := c.newRequest(http.MethodGet, url, nil, auth)
	if err != nil {
		return nil, err
	}
	res, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	br := bufio.NewReader(res.Body)
	if err := discardServicePreamble(br); err != nil {
		return nil, err
	}
	return transport.ParseRefAdvertisement(br)
}

func (c *Client) FetchPack(ep *transport.Endpoint, auth transport.AuthMethod, wants, haves []objectid.ID, out io.Writer) error {
	var body bytes.Buffer
	if err := transport.WriteWantHaves(&body, wants, haves); err != nil {
		return err
	}

	url := fmt.Sprintf("%s/%s", baseURL(ep), uploadPackService)
	req, err := c.newRequest(http.MethodPost, url, &body, auth)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-git-upload-pack-request")
	req.Header.Set("Accept", "application/x-git-upload-pack-result")

	res, err := c.do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	br := bufio.NewReader(res.Body)
	if err := transport.ReadAckNak(br); err != nil {
		return err
	}

	demux := sideband.NewDemuxer(sideband.Sideband64k, br)
	_, err = io.Copy(out, demux)
	return err
}

func (c *Client) SendPack(ep *transport.Endpoint, auth transport.AuthMethod, updates []transport.RefUpdate, pack io.Reader) (*transport.ReportStatus, error) {
	pr, pw := io.Pipe()
	go func() {
		err := transport.WriteRefUpdates(pw, updates)
		if err == nil {
			_, err = io.Copy(pw, pack)
		}
		pw.CloseWithError(err)
	}()

	url := fmt.Sprintf("%s/%s", baseURL(ep), receivePackService)
	req, err := c.newRequest(http.MethodPost, url, pr, auth)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-git-receive-pack-request")
	req.Header.Set("Accept", "application/x-git-receive-pack-result")

	res, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	return transport.ParseReportStatus(bufio.NewReader(res.Body))
}

var _ transport.Client = (*Client)(nil)
