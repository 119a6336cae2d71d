package remote

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// Endpoint identifies a repository on a server.
type Endpoint struct {
	Host string
	Port int
	Repo string
}

// ParseEndpoint parses a remote URL.
//
// Supported inputs:
//   - git://host/repo and git://host:port/repo
//   - host:port/repo and host/repo
func ParseEndpoint(raw string) (Endpoint, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Endpoint{}, fmt.Errorf("remote URL is required")
	}
	if !strings.Contains(raw, "://") {
		raw = "git://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return Endpoint{}, fmt.Errorf("parse remote URL: %w", err)
	}
	if u.Scheme != "git" {
		return Endpoint{}, fmt.Errorf("parse remote URL %q: unsupported scheme %q", raw, u.Scheme)
	}
	if u.Hostname() == "" {
		return Endpoint{}, fmt.Errorf("parse remote URL %q: host is required", raw)
	}

	port := DefaultPort
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil || port <= 0 || port > 65535 {
			return Endpoint{}, fmt.Errorf("parse remote URL %q: invalid port %q", raw, p)
		}
	}

	repoPath := strings.Trim(u.Path, "/")
	if repoPath == "" {
		return Endpoint{}, fmt.Errorf("parse remote URL %q: repository is required", raw)
	}
	for _, part := range strings.Split(repoPath, "/") {
		if part == "" || part == "." || part == ".." {
			return Endpoint{}, fmt.Errorf("parse remote URL %q: invalid repository path", raw)
		}
	}
	return Endpoint{Host: u.Hostname(), Port: port, Repo: repoPath}, nil
}

// Address returns the host:port to dial.
func (e Endpoint) Address() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

func (e Endpoint) String() string {
	return "git://" + e.Address() + "/" + e.Repo
}
