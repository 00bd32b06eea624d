package mitm

import (
	"fmt"
	"log/slog"
	"net"
	"path"
	"strconv"
	"strings"
)

const defaultTLSPort = "443"

// hostRule is one "pattern[:port]" entry. Port "0" matches every port.
type hostRule struct {
	pattern string
	port    string
}

func (r hostRule) matches(host, port string) bool {
	if r.port != "0" && r.port != port {
		return false
	}
	ok, err := path.Match(r.pattern, host)
	if err != nil {
		return r.pattern == host
	}
	return ok
}

// HostnameFilter selects the CONNECT targets that are decrypted. Everything
// else is tunnelled untouched.
type HostnameFilter struct {
	rules []hostRule
}

// NewHostnameFilter parses a comma separated list such as
// "backend.wplace.live,*.wplace.live:0". Patterns use path.Match globs and
// are case insensitive; the port defaults to 443.
func NewHostnameFilter(list string) (*HostnameFilter, error) {
	f := &HostnameFilter{}
	for _, item := range strings.Split(list, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		r, err := parseHostRule(item)
		if err != nil {
			return nil, fmt.Errorf("mitm hostname %q: %w", item, err)
		}
		f.rules = append(f.rules, r)
	}
	slog.Info("MitM hostname filter configured", slog.Int("entries", len(f.rules)))
	return f, nil
}

func parseHostRule(s string) (hostRule, error) {
	r := hostRule{pattern: s, port: defaultTLSPort}
	if i := strings.LastIndexByte(s, ':'); i >= 0 {
		if p, err := strconv.Atoi(s[i+1:]); err == nil {
			if p < 0 || p > 65535 {
				return r, fmt.Errorf("port %d out of range", p)
			}
			r.pattern, r.port = s[:i], strconv.Itoa(p)
		}
	}
	r.pattern = strings.ToLower(strings.TrimSpace(r.pattern))
	if r.pattern == "" {
		return r, fmt.Errorf("empty domain")
	}
	return r, nil
}

// Allow reports whether host on port is decrypted.
func (f *HostnameFilter) Allow(host, port string) bool {
	if f == nil {
		return false
	}
	host = strings.ToLower(host)
	for _, r := range f.rules {
		if r.matches(host, port) {
			return true
		}
	}
	return false
}

// AllowAddr is Allow for a "host:port" CONNECT target. A missing port means
// 443.
func (f *HostnameFilter) AllowAddr(addr string) bool {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		host, port = addr, defaultTLSPort
	}
	return f.Allow(host, port)
}

func (f *HostnameFilter) Len() int {
	if f == nil {
		return 0
	}
	return len(f.rules)
}
