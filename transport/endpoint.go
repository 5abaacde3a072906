// Package transport defines the Git transport capability set of
// spec.md §4.J (list_refs, fetch_pack, send_pack) and the URL handling
// shared by its concrete variants. Grounded on go-git's
// plumbing/transport package for the Endpoint shape and URL parsing,
// adapted to this module's own objectid/refs types.
package transport

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

var (
	ErrRepositoryNotFound = errors.New("repository not found")
	ErrAuthenticationRequired = errors.New("authentication required")
	ErrInvalidAuthMethod = errors.New("invalid auth method")
)

// AuthMethod is implemented by every credential kind a concrete
// transport accepts (ssh.PublicKeys, http BasicAuth, and so on).
type AuthMethod interface {
	Name() string
}

// Endpoint is a parsed Git remote URL, in any of the supported
// protocols (spec.md §4.J).
type Endpoint struct {
	Protocol string
	User     string
	Password string
	Host     string
	Port     int
	Path     string
}

var defaultPorts = map[string]int{
	"http":  80,
	"https": 443,
	"git":   9418,
	"ssh":   22,
}

// HostWithPort returns "host:port", substituting the protocol's
// default port when none was given explicitly.
func (e *Endpoint) HostWithPort() string {
	port := e.Port
	if port == 0 {
		port = defaultPorts[strings.ToLower(e.Protocol)]
	}
	return fmt.Sprintf("%s:%d", e.Host, port)
}

var (
	isSchemeRE  = regexp.MustCompile(`^[^:]+://`)
	scpLikeRE   = regexp.MustCompile(`^(?:(?P<user>[^@]+)@)?(?P<host>[^:\s]+):(?P<path>[^\\].*)$`)
)

// NewEndpoint parses a Git remote URL: scp-like ("user@host:path"),
// a bare local path, or a scheme URL (http(s)/ssh/git/file). Scp-like
// canonicalization matches spec.md §4.J: host, user, path="/"+path,
// port=22.
func NewEndpoint(raw string) (*Endpoint, error) {
	if !isSchemeRE.MatchString(raw) {
		if m := scpLikeRE.FindStringSubmatch(raw); m != nil {
			return &Endpoint{
				Protocol: "ssh",
				User:     m[1],
				Host:     m[2],
				Port:     22,
				Path:     "/" + strings.TrimPrefix(m[3], "/"),
			}, nil
		}
		return &Endpoint{Protocol: "file", Path: raw}, nil
	}

	if strings.HasPrefix(raw, "file://") {
		return &Endpoint{Protocol: "file", Path: strings.TrimPrefix(raw, "file://")}, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint %q: %w", raw, err)
	}

	var user, pass string
	if u.User != nil {
		user = u.User.Username()
		pass, _ = u.User.Password()
	}

	port := 0
	if p := u.Port(); p != "" {
		port, _ = strconv.Atoi(p)
	}

	return &Endpoint{
		Protocol: u.Scheme,
		User:     user,
		Password: pass,
		Host:     u.Hostname(),
		Port:     port,
		Path:     u.Path,
	}, nil
}
