package httpx

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// MaxIPLen is the width of the ip_address column.
const MaxIPLen = 45

// ClientIP returns the first X-Forwarded-For entry when present, the peer address
// otherwise. ok is false when the candidate is not a plain IP address: zoned IPv6
// addresses and anything longer than MaxIPLen are rejected.
// The forwarded entry is client-controlled; use it for recording, never for throttling.
func ClientIP(r *http.Request) (ip string, ok bool) {
	candidate := ""
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		candidate = strings.TrimSpace(strings.Split(fwd, ",")[0])
	} else {
		candidate = peerHost(r)
	}
	return parseIP(candidate)
}

// PeerIP returns the address of the connection's remote end, which the client cannot forge.
func PeerIP(r *http.Request) string {
	host := peerHost(r)
	if ip, ok := parseIP(host); ok {
		return ip
	}
	return host
}

// ThrottleKey identifies the client for rate limiting. Forwarded headers are honored only
// when the peer is one of the trusted proxies.
func ThrottleKey(r *http.Request, trusted []netip.Prefix) string {
	peer := PeerIP(r)
	addr, err := netip.ParseAddr(peer)
	if err != nil {
		return peer
	}
	for _, p := range trusted {
		if p.Contains(addr.Unmap()) {
			if ip, ok := ClientIP(r); ok {
				return ip
			}
			break
		}
	}
	return peer
}

func peerHost(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func parseIP(candidate string) (string, bool) {
	addr, err := netip.ParseAddr(candidate)
	if err != nil || addr.Zone() != "" {
		return candidate, false
	}
	ip := addr.String()
	if len(ip) > MaxIPLen {
		return candidate, false
	}
	return ip, true
}
