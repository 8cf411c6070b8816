package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/backkem/protogate/internal/config"
	"github.com/backkem/protogate/pkg/discovery"
	"github.com/backkem/protogate/pkg/session"
	"github.com/backkem/protogate/pkg/transport"
	"github.com/pion/logging"
)

// dial resolves the peer if needed and opens the datagram link. The
// returned interval is the peer's advertised active retry interval, or
// zero when unknown.
func dial(ctx context.Context, cfg config.Config, lf logging.LoggerFactory) (net.Conn, time.Duration, error) {
	address := cfg.Peer.Address
	var retry time.Duration

	if address == "" {
		resolver, err := discovery.NewResolver(discovery.ResolverConfig{LoggerFactory: lf})
		if err != nil {
			return nil, 0, fmt.Errorf("discovery: %w", err)
		}
		svc, err := resolver.LookupOperational(ctx, cfg.Peer.CompressedFabricID, cfg.Peer.NodeID)
		if err != nil {
			return nil, 0, err
		}
		if address, err = svc.Address(); err != nil {
			return nil, 0, err
		}
		retry = svc.TXT.ActiveInterval
	}

	conn, err := transport.DialUDP(ctx, address)
	if err != nil {
		return nil, 0, fmt.Errorf("dial %s: %w", address, err)
	}
	if conn, err = wrapTransport(conn, cfg.Peer, lf); err != nil {
		return nil, 0, err
	}
	return conn, retry, nil
}

// wrapTransport layers BTP segmentation over conn when configured.
func wrapTransport(conn net.Conn, peer config.Peer, lf logging.LoggerFactory) (net.Conn, error) {
	if peer.Transport != config.TransportBTP {
		return conn, nil
	}
	btp, err := transport.NewBTPConn(conn, transport.BTPConfig{
		SegmentSize:   peer.BTPSegmentSize,
		LoggerFactory: lf,
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("btp: %w", err)
	}
	return btp, nil
}

// newSession opens the configured session over conn.
func newSession(conn net.Conn, s config.Session, lf logging.LoggerFactory) (interface {
	session.Session
	io.Closer
}, error) {
	if !s.Secure {
		u, err := session.NewUnsecured(session.UnsecuredConfig{
			Conn:            conn,
			EphemeralNodeID: s.LocalNodeID,
			Reliable:        s.Reliable,
			LoggerFactory:   lf,
		})
		if err != nil {
			return nil, err
		}
		return u, nil
	}

	i2r, r2i, err := s.SessionKeys()
	if err != nil {
		return nil, err
	}
	role := session.RoleInitiator
	if !s.Initiator {
		role = session.RoleResponder
	}
	sec, err := session.NewSecure(session.SecureConfig{
		Conn:           conn,
		LocalSessionID: s.LocalSessionID,
		PeerSessionID:  s.PeerSessionID,
		Role:           role,
		I2RKey:         i2r,
		R2IKey:         r2i,
		LocalNodeID:    s.LocalNodeID,
		PeerNodeID:     s.PeerNodeID,
		NodeAddressing: s.NodeAddressing,
		Reliable:       s.Reliable,
		LoggerFactory:  lf,
	})
	if err != nil {
		return nil, err
	}
	return sec, nil
}

// mirror returns the session parameters of the other end.
func mirror(s config.Session) config.Session {
	m := s
	m.Initiator = !s.Initiator
	m.LocalSessionID, m.PeerSessionID = s.PeerSessionID, s.LocalSessionID
	m.LocalNodeID, m.PeerNodeID = s.PeerNodeID, s.LocalNodeID
	return m
}
