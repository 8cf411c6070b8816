package transport

import (
	"context"
	"net"
	"strconv"
)

// DefaultPort is the IANA-assigned Matter UDP port.
const DefaultPort = 5540

// DialUDP connects a UDP socket to a Matter node. A host without a port
// gets DefaultPort.
func DialUDP(ctx context.Context, address string) (net.Conn, error) {
	if _, _, err := net.SplitHostPort(address); err != nil {
		address = net.JoinHostPort(address, strconv.Itoa(DefaultPort))
	}
	var d net.Dialer
	return d.DialContext(ctx, "udp", address)
}
