package indexer

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Endpoint is one Electrum server.
type Endpoint struct {
	Host string
	Port int
	TLS  bool

	// SkipVerify disables certificate verification. Most public Electrum
	// servers use self-signed certificates.
	SkipVerify bool
}

// ParseEndpoint parses the Electrum server string convention
// "host:port:s" (TLS) or "host:port:t" (plain TCP). The "v" suffix is TLS
// with certificate verification; "s" skips it. Without a suffix the
// endpoint is "s".
func ParseEndpoint(s string) (Endpoint, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Endpoint{}, fmt.Errorf("empty endpoint")
	}

	ep := Endpoint{TLS: true, SkipVerify: true}
	switch {
	case strings.HasSuffix(s, ":v"):
		s = strings.TrimSuffix(s, ":v")
		ep.SkipVerify = false
	case strings.HasSuffix(s, ":s"):
		s = strings.TrimSuffix(s, ":s")
	case strings.HasSuffix(s, ":t"):
		s = strings.TrimSuffix(s, ":t")
		ep.TLS = false
		ep.SkipVerify = false
	}

	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return Endpoint{}, fmt.Errorf("invalid endpoint %q: %w", s, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return Endpoint{}, fmt.Errorf("invalid port in endpoint %q", s)
	}
	if host == "" {
		return Endpoint{}, fmt.Errorf("missing host in endpoint %q", s)
	}

	ep.Host = host
	ep.Port = port
	return ep, nil
}

// ParseEndpoints parses a list, failing on the first bad entry.
func ParseEndpoints(list []string) ([]Endpoint, error) {
	endpoints := make([]Endpoint, 0, len(list))
	for _, s := range list {
		ep, err := ParseEndpoint(s)
		if err != nil {
			return nil, err
		}
		endpoints = append(endpoints, ep)
	}
	return endpoints, nil
}

// Address returns "host:port".
func (e Endpoint) Address() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// String returns the endpoint in "host:port:s|v|t" form.
func (e Endpoint) String() string {
	proto := "t"
	switch {
	case e.TLS && e.SkipVerify:
		proto = "s"
	case e.TLS:
		proto = "v"
	}
	return e.Address() + ":" + proto
}

// DefaultServers returns the public Electrum servers tried when no list is
// configured, in failover order.
func DefaultServers() []string {
	return []string{
		"fulcrum.sethforprivacy.com:50002:s",
		"mempool.blocktrainer.de:50002:s",
		"fulcrum.grey.pw:51002:s",
		"fortress.qtornado.com:50002:s",
		"electrumx-core.1209k.com:50002:s",
		"pipedream.fiatfaucet.com:50002:s",
		"fulcrum.not.fyi:51002:s",
	}
}
