package proximity

import (
	"net"
	"strings"
)

// virtualAdapterMarkers name host interfaces that never face the facility network.
var virtualAdapterMarkers = []string{"virtualbox", "vmware", "vethernet", "docker", "vbox"}

// ParsePrefixes splits a comma separated prefix list, dropping blanks.
func ParsePrefixes(list string) []string {
	parts := strings.Split(list, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// MatchesAnyPrefix is a literal string-prefix test of ip against each prefix.
// "192.168.86" therefore also matches "192.168.860.1"; no subnet arithmetic is
// attempted.
func MatchesAnyPrefix(ip string, prefixes []string) bool {
	if ip == "" {
		return false
	}
	for _, p := range prefixes {
		if strings.HasPrefix(ip, p) {
			return true
		}
	}
	return false
}

// IsLoopback reports whether ip carries no usable network origin: empty,
// "unknown", or a loopback address in any textual form.
func IsLoopback(ip string) bool {
	ip = strings.TrimSpace(ip)
	if ip == "" || strings.EqualFold(ip, "unknown") {
		return true
	}
	if strings.Contains(ip, "127.0.0.1") || ip == "::1" || ip == "[::1]" {
		return true
	}
	parsed := net.ParseIP(strings.Trim(ip, "[]"))
	return parsed != nil && parsed.IsLoopback()
}

// InterfaceDiscoverer lists candidate non-loopback IPv4 addresses of the host.
type InterfaceDiscoverer interface {
	Candidates() ([]string, error)
}

// HostInterfaces discovers addresses from the machine's network interfaces.
type HostInterfaces struct{}

// Candidates returns non-internal IPv4 addresses, skipping virtual adapters.
func (HostInterfaces) Candidates() ([]string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	var out []string
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}
		if isVirtualAdapter(iface.Name) {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			if v4 := ipNet.IP.To4(); v4 != nil && !v4.IsLoopback() {
				out = append(out, v4.String())
			}
		}
	}
	return out, nil
}

// StaticInterfaces returns a fixed candidate list.
type StaticInterfaces []string

// Candidates returns the list as is.
func (s StaticInterfaces) Candidates() ([]string, error) {
	return []string(s), nil
}

// PickHostAddress prefers the first candidate matching a prefix, falling back
// to the first candidate. It returns "" when there are none.
func PickHostAddress(candidates, prefixes []string) string {
	for _, c := range candidates {
		if MatchesAnyPrefix(c, prefixes) {
			return c
		}
	}
	if len(candidates) > 0 {
		return candidates[0]
	}
	return ""
}

func isVirtualAdapter(name string) bool {
	lower := strings.ToLower(name)
	for _, marker := range virtualAdapterMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
