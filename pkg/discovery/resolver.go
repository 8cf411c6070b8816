package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/pion/logging"
)

// DefaultLookupTimeout bounds a lookup whose context has no deadline.
const DefaultLookupTimeout = 5 * time.Second

// ResolvedService is one resolved operational node.
type ResolvedService struct {
	InstanceName string
	HostName     string
	Port         int

	// IPs are sorted by SortIPsByPreference.
	IPs []net.IP

	TXT OperationalTXT
}

// Address returns host:port of the preferred IP, ready for
// transport.DialUDP.
func (s *ResolvedService) Address() (string, error) {
	if len(s.IPs) == 0 {
		return "", ErrNoAddress
	}
	return net.JoinHostPort(s.IPs[0].String(), strconv.Itoa(s.Port)), nil
}

// MDNSResolver is the mDNS lookup primitive. Tests substitute a fake.
type MDNSResolver interface {
	Lookup(ctx context.Context, instance, service, domain string, entries chan<- *zeroconf.ServiceEntry) error
}

// ResolverConfig holds configuration for the Resolver.
type ResolverConfig struct {
	// MDNSResolver defaults to a grandcat/zeroconf resolver on all
	// interfaces.
	MDNSResolver MDNSResolver

	// LookupTimeout defaults to DefaultLookupTimeout.
	LookupTimeout time.Duration

	// LoggerFactory creates the "discovery" logger. If nil, logging is
	// disabled.
	LoggerFactory logging.LoggerFactory
}

// Resolver finds operational nodes via DNS-SD.
type Resolver struct {
	mdns    MDNSResolver
	timeout time.Duration
	log     logging.LeveledLogger
}

// NewResolver creates a Resolver.
func NewResolver(config ResolverConfig) (*Resolver, error) {
	r := &Resolver{mdns: config.MDNSResolver, timeout: config.LookupTimeout}
	if r.mdns == nil {
		zr, err := zeroconf.NewResolver(nil)
		if err != nil {
			return nil, err
		}
		r.mdns = zr
	}
	if r.timeout <= 0 {
		r.timeout = DefaultLookupTimeout
	}
	if config.LoggerFactory != nil {
		r.log = config.LoggerFactory.NewLogger("discovery")
	}
	return r, nil
}

// LookupOperational resolves the node with nodeID on the fabric identified
// by compressedFabricID.
func (r *Resolver) LookupOperational(ctx context.Context, compressedFabricID [8]byte, nodeID uint64) (*ResolvedService, error) {
	instance := OperationalInstanceName(compressedFabricID, nodeID)

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	entries := make(chan *zeroconf.ServiceEntry)
	lookupErr := make(chan error, 1)
	go func() {
		// zeroconf closes entries when the lookup ends.
		lookupErr <- r.mdns.Lookup(ctx, instance, ServiceOperational, DefaultDomain, entries)
	}()

	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				if ctx.Err() != nil {
					return nil, r.ctxErr(ctx, instance)
				}
				return nil, ErrServiceNotFound
			}
			if entry != nil {
				return r.resolved(entry)
			}
		case err := <-lookupErr:
			if err != nil {
				return nil, fmt.Errorf("discovery: lookup %s: %w", instance, err)
			}
			lookupErr = nil
		case <-ctx.Done():
			return nil, r.ctxErr(ctx, instance)
		}
	}
}

func (r *Resolver) ctxErr(ctx context.Context, instance string) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		if r.log != nil {
			r.log.Infof("no answer for %s within lookup timeout", instance)
		}
		return ErrTimeout
	}
	return ctx.Err()
}

func (r *Resolver) resolved(entry *zeroconf.ServiceEntry) (*ResolvedService, error) {
	txt, err := ParseOperationalTXT(entry.Text)
	if err != nil {
		return nil, err
	}

	ips := make([]net.IP, 0, len(entry.AddrIPv6)+len(entry.AddrIPv4))
	ips = append(ips, entry.AddrIPv6...)
	ips = append(ips, entry.AddrIPv4...)

	svc := &ResolvedService{
		InstanceName: entry.Instance,
		HostName:     entry.HostName,
		Port:         entry.Port,
		IPs:          SortIPsByPreference(ips),
		TXT:          *txt,
	}
	if r.log != nil {
		r.log.Debugf("resolved %s to %s port %d (%d addresses)", svc.InstanceName, svc.HostName, svc.Port, len(svc.IPs))
	}
	return svc, nil
}
