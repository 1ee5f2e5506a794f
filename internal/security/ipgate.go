package security

import (
	"errors"
	"net"
	"net/http"
	"strings"
)

// ErrIPDenied is returned when a remote address is not permitted by the
// configured allow-list.
var ErrIPDenied = errors.New("ip denied by allow-list")

// IPGate implements the proxy's only access-control surface: a CIDR
// allow-list for the remote client address. Adapted from URLFilter's
// allow/deny-precedence shape, simplified to a single allow list (spec has
// no IP deny list) and an inverted empty-list default: an empty allow-list
// means "allow all", not "deny all" — an IP allow-list is opt-in hardening,
// whereas URLFilter's domain list guards outbound calls and defaults closed.
type IPGate struct {
	nets []*net.IPNet
	ips  []net.IP
}

// NewIPGate builds a gate from a list of CIDRs or bare IP addresses (a bare
// IP is treated as a /32 or /128). Returns an error if any entry fails to
// parse.
func NewIPGate(allowlist []string) (*IPGate, error) {
	g := &IPGate{}
	for _, raw := range allowlist {
		entry := strings.TrimSpace(raw)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			_, ipnet, err := net.ParseCIDR(entry)
			if err != nil {
				return nil, err
			}
			g.nets = append(g.nets, ipnet)
			continue
		}
		ip := net.ParseIP(entry)
		if ip == nil {
			return nil, &net.ParseError{Type: "IP address", Text: entry}
		}
		g.ips = append(g.ips, ip)
	}
	return g, nil
}

// Allowed reports whether ip is permitted. An empty configured allow-list
// permits everything.
func (g *IPGate) Allowed(ip net.IP) bool {
	if len(g.nets) == 0 && len(g.ips) == 0 {
		return true
	}
	for _, allowed := range g.ips {
		if allowed.Equal(ip) {
			return true
		}
	}
	for _, n := range g.nets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// Middleware returns a chi-compatible middleware enforcing the gate,
// responding 403 with ErrIPDenied's message for a denied remote address.
func (g *IPGate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		ip := net.ParseIP(host)
		if ip == nil || !g.Allowed(ip) {
			http.Error(w, ErrIPDenied.Error(), http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
