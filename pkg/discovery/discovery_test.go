package discovery

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/grandcat/zeroconf"
)

// fakeMDNS answers lookups from a fixed set of entries.
type fakeMDNS struct {
	entries []*zeroconf.ServiceEntry
	// closeOnMiss closes the channel when nothing matches, the way
	// zeroconf does once its context ends.
	closeOnMiss bool
	err         error
}

func (f *fakeMDNS) Lookup(ctx context.Context, instance, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
	if f.err != nil {
		return f.err
	}
	for _, e := range f.entries {
		if e.Instance == instance && e.Service == service {
			select {
			case entries <- e:
			case <-ctx.Done():
				return ctx.Err()
			}
			return nil
		}
	}
	if f.closeOnMiss {
		close(entries)
	}
	return nil
}

var testFabric = [8]byte{0x87, 0xE1, 0xB0, 0x04, 0xE2, 0x35, 0xA1, 0x30}

func operationalEntry(nodeID uint64, port int, ips ...net.IP) *zeroconf.ServiceEntry {
	e := &zeroconf.ServiceEntry{
		ServiceRecord: zeroconf.ServiceRecord{
			Instance: OperationalInstanceName(testFabric, nodeID),
			Service:  ServiceOperational,
			Domain:   DefaultDomain,
		},
		HostName: "node.local.",
		Port:     port,
		Text:     []string{"SII=5000", "SAI=300", "T=1"},
	}
	for _, ip := range ips {
		if ip.To4() != nil {
			e.AddrIPv4 = append(e.AddrIPv4, ip)
		} else {
			e.AddrIPv6 = append(e.AddrIPv6, ip)
		}
	}
	return e
}

func TestOperationalInstanceName(t *testing.T) {
	name := OperationalInstanceName(testFabric, 0x8FC7772401CD0696)
	if want := "87E1B004E235A130-8FC7772401CD0696"; name != want {
		t.Fatalf("OperationalInstanceName() = %q, want %q", name, want)
	}

	cfid, node, err := ParseOperationalInstanceName(name)
	if err != nil {
		t.Fatalf("ParseOperationalInstanceName() error = %v", err)
	}
	if cfid != testFabric || node != 0x8FC7772401CD0696 {
		t.Errorf("parsed %X-%X", cfid, node)
	}

	for _, bad := range []string{
		"",
		"87E1B004E235A130_8FC7772401CD0696",
		"87e1b004e235a130-8FC7772401CD0696",
		"87E1B004E235A130-8FC7772401CD069",
		"87E1B004E235A13G-8FC7772401CD0696",
	} {
		if _, _, err := ParseOperationalInstanceName(bad); !errors.Is(err, ErrInvalidInstanceName) {
			t.Errorf("ParseOperationalInstanceName(%q) error = %v", bad, err)
		}
	}
}

func TestSortIPsByPreference(t *testing.T) {
	in := []net.IP{
		net.ParseIP("192.168.1.10"),
		net.ParseIP("fe80::1"),
		net.ParseIP("::1"),
		net.ParseIP("fd00::1"),
		net.ParseIP("2001:db8::1"),
	}
	want := []string{"2001:db8::1", "fd00::1", "fe80::1", "192.168.1.10", "::1"}

	got := SortIPsByPreference(in)
	for i := range want {
		if got[i].String() != want[i] {
			t.Fatalf("SortIPsByPreference() = %v, want %v", got, want)
		}
	}
	if in[0].String() != "192.168.1.10" {
		t.Error("input slice modified")
	}
}

func TestParseOperationalTXT(t *testing.T) {
	txt, err := ParseOperationalTXT([]string{"SII=5000", "SAI=300", "SAT=4000", "T=1", "flag"})
	if err != nil {
		t.Fatal(err)
	}
	if txt.IdleInterval != 5*time.Second || txt.ActiveInterval != 300*time.Millisecond || txt.ActiveThreshold != 4*time.Second || !txt.TCPSupported {
		t.Errorf("ParseOperationalTXT() = %+v", txt)
	}

	if _, err := ParseOperationalTXT([]string{"SAI=fast"}); !errors.Is(err, ErrInvalidTXTRecord) {
		t.Errorf("bad SAI error = %v", err)
	}
}

func TestLookupOperational(t *testing.T) {
	mdns := &fakeMDNS{entries: []*zeroconf.ServiceEntry{
		operationalEntry(1, 5540, net.ParseIP("10.0.0.2"), net.ParseIP("fd11::2")),
	}}
	r, err := NewResolver(ResolverConfig{MDNSResolver: mdns})
	if err != nil {
		t.Fatal(err)
	}

	svc, err := r.LookupOperational(context.Background(), testFabric, 1)
	if err != nil {
		t.Fatalf("LookupOperational() error = %v", err)
	}
	addr, err := svc.Address()
	if err != nil {
		t.Fatal(err)
	}
	if addr != "[fd11::2]:5540" {
		t.Errorf("Address() = %q, want [fd11::2]:5540", addr)
	}
	if svc.TXT.ActiveInterval != 300*time.Millisecond {
		t.Errorf("ActiveInterval = %v", svc.TXT.ActiveInterval)
	}
}

func TestLookupOperationalMisses(t *testing.T) {
	t.Run("timeout", func(t *testing.T) {
		r, err := NewResolver(ResolverConfig{MDNSResolver: &fakeMDNS{}, LookupTimeout: 20 * time.Millisecond})
		if err != nil {
			t.Fatal(err)
		}
		if _, err := r.LookupOperational(context.Background(), testFabric, 2); !errors.Is(err, ErrTimeout) {
			t.Errorf("error = %v, want ErrTimeout", err)
		}
	})

	t.Run("closed", func(t *testing.T) {
		r, err := NewResolver(ResolverConfig{MDNSResolver: &fakeMDNS{closeOnMiss: true}})
		if err != nil {
			t.Fatal(err)
		}
		if _, err := r.LookupOperational(context.Background(), testFabric, 2); !errors.Is(err, ErrServiceNotFound) {
			t.Errorf("error = %v, want ErrServiceNotFound", err)
		}
	})

	t.Run("lookup error", func(t *testing.T) {
		boom := errors.New("no multicast interface")
		r, err := NewResolver(ResolverConfig{MDNSResolver: &fakeMDNS{err: boom}})
		if err != nil {
			t.Fatal(err)
		}
		if _, err := r.LookupOperational(context.Background(), testFabric, 2); !errors.Is(err, boom) {
			t.Errorf("error = %v, want wrapped lookup error", err)
		}
	})

	t.Run("no address", func(t *testing.T) {
		svc := &ResolvedService{Port: 5540}
		if _, err := svc.Address(); !errors.Is(err, ErrNoAddress) {
			t.Errorf("Address() error = %v", err)
		}
	})
}
