package util

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
)

var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
	"tls":   "443",
}

// HostPort extracts a dialable host:port from an upstream URL. Schemes
// with a well-known port may omit it; tcp:// URLs must carry one.
func HostPort(u *url.URL) (string, error) {
	if u == nil {
		return "", fmt.Errorf("no upstream URL")
	}
	host := u.Hostname()
	if host == "" {
		return "", fmt.Errorf("upstream %q has no host", u.String())
	}
	port := u.Port()
	if port == "" {
		p, ok := defaultPorts[u.Scheme]
		if !ok {
			return "", fmt.Errorf("upstream %q has no port", u.String())
		}
		port = p
	}
	if n, err := strconv.Atoi(port); err != nil || n < 1 || n > 65535 {
		return "", fmt.Errorf("upstream %q: invalid port %q", u.String(), port)
	}
	return net.JoinHostPort(host, port), nil
}

// FormatAddr returns "host:port".
func FormatAddr(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
