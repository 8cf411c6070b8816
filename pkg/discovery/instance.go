// Package discovery resolves operational Matter nodes over DNS-SD so a
// session can be dialed by fabric and node ID instead of by address.
package discovery

import (
	"encoding/binary"
	"fmt"
	"net"
	"sort"
	"strconv"
)

// DNS-SD names for operational discovery.
const (
	ServiceOperational = "_matter._tcp"
	DefaultDomain      = "local."
)

// OperationalInstanceName returns "<CompressedFabricID>-<NodeID>", each
// as 16 uppercase hex digits.
func OperationalInstanceName(compressedFabricID [8]byte, nodeID uint64) string {
	return fmt.Sprintf("%016X-%016X", binary.BigEndian.Uint64(compressedFabricID[:]), nodeID)
}

// ParseOperationalInstanceName is the inverse of OperationalInstanceName.
func ParseOperationalInstanceName(name string) ([8]byte, uint64, error) {
	var cfid [8]byte
	if len(name) != 33 || name[16] != '-' {
		return cfid, 0, ErrInvalidInstanceName
	}
	fabric, err := parseUpperHex(name[:16])
	if err != nil {
		return cfid, 0, err
	}
	node, err := parseUpperHex(name[17:])
	if err != nil {
		return cfid, 0, err
	}
	binary.BigEndian.PutUint64(cfid[:], fabric)
	return cfid, node, nil
}

func parseUpperHex(s string) (uint64, error) {
	for i := 0; i < len(s); i++ {
		if c := s[i]; (c < '0' || c > '9') && (c < 'A' || c > 'F') {
			return 0, ErrInvalidInstanceName
		}
	}
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, ErrInvalidInstanceName
	}
	return v, nil
}

// SortIPsByPreference orders addresses for dialing: global IPv6, ULA,
// link-local IPv6, other IPv6, then IPv4. The input is not modified.
func SortIPsByPreference(ips []net.IP) []net.IP {
	sorted := append([]net.IP(nil), ips...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return ipRank(sorted[i]) < ipRank(sorted[j])
	})
	return sorted
}

func ipRank(ip net.IP) int {
	switch {
	case ip.To16() == nil:
		return 99
	case ip.IsLoopback():
		return 80
	case ip.IsMulticast():
		return 90
	case ip.To4() != nil:
		return 50
	case isUniqueLocal(ip):
		return 1
	case ip.IsGlobalUnicast():
		return 0
	case ip.IsLinkLocalUnicast():
		return 2
	default:
		return 10
	}
}

// fc00::/7
func isUniqueLocal(ip net.IP) bool {
	ip = ip.To16()
	return ip != nil && ip[0]&0xfe == 0xfc
}
