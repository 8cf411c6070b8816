package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/backkem/protogate/pkg/crypto"
	"github.com/backkem/protogate/pkg/exchange"
	"github.com/pion/logging"
)

const minimal = `
[peer]
address = "[fd00::1]:5540"
`

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse(minimal)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := Default()
	want.Peer.Address = "[fd00::1]:5540"

	if cfg.Exchange != want.Exchange {
		t.Errorf("Exchange = %+v, want %+v", cfg.Exchange, want.Exchange)
	}
	if cfg.Peer != want.Peer {
		t.Errorf("Peer = %+v, want %+v", cfg.Peer, want.Peer)
	}
	if cfg.Session.Secure || !cfg.Session.Reliable || !cfg.Session.Initiator {
		t.Errorf("Session = %+v", cfg.Session)
	}
	if lvl, err := cfg.Level(); err != nil || lvl != logging.LogLevelInfo {
		t.Errorf("Level() = %v, %v", lvl, err)
	}
}

func TestParseFull(t *testing.T) {
	cfg, err := Parse(`
[log]
level = "DEBUG"

[exchange]
response_timeout = "2s"
idle_timeout = "30s"
close_grace = "50ms"
retry_interval = "500ms"
max_transmissions = 3

[session]
secure = true
role = "responder"
local_session_id = 4660
peer_session_id = 22136
local_node_id = "0x1122334455667788"
peer_node_id = "42"
node_addressing = true
reliable = false
i2r_key = "000102030405060708090a0b0c0d0e0f"
r2i_key = "101112131415161718191a1b1c1d1e1f"

[peer]
compressed_fabric_id = "87E1B004E235A130"
node_id = "0x8FC7772401CD0696"
transport = "btp"
btp_segment_size = 64
`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	wantExchange := Exchange{
		ResponseTimeout:  2 * time.Second,
		IdleTimeout:      30 * time.Second,
		CloseGrace:       50 * time.Millisecond,
		RetryInterval:    500 * time.Millisecond,
		MaxTransmissions: 3,
	}
	if cfg.Exchange != wantExchange {
		t.Errorf("Exchange = %+v, want %+v", cfg.Exchange, wantExchange)
	}
	if lvl, _ := cfg.Level(); lvl != logging.LogLevelDebug {
		t.Errorf("Level() = %v, want debug", lvl)
	}

	s := cfg.Session
	if !s.Secure || s.Initiator || s.Reliable || !s.NodeAddressing {
		t.Errorf("Session flags = %+v", s)
	}
	if s.LocalSessionID != 0x1234 || s.PeerSessionID != 0x5678 {
		t.Errorf("session ids = %#x/%#x", s.LocalSessionID, s.PeerSessionID)
	}
	if s.LocalNodeID != 0x1122334455667788 || s.PeerNodeID != 42 {
		t.Errorf("node ids = %#x/%d", s.LocalNodeID, s.PeerNodeID)
	}
	i2r, r2i, err := s.SessionKeys()
	if err != nil {
		t.Fatalf("SessionKeys: %v", err)
	}
	if i2r[0] != 0x00 || i2r[15] != 0x0f || r2i[0] != 0x10 || r2i[15] != 0x1f {
		t.Errorf("keys = %x/%x", i2r, r2i)
	}

	p := cfg.Peer
	wantFabric := [8]byte{0x87, 0xE1, 0xB0, 0x04, 0xE2, 0x35, 0xA1, 0x30}
	if !p.HasFabricID || p.CompressedFabricID != wantFabric {
		t.Errorf("fabric = %x (%v)", p.CompressedFabricID, p.HasFabricID)
	}
	if p.NodeID != 0x8FC7772401CD0696 || p.Transport != TransportBTP || p.BTPSegmentSize != 64 {
		t.Errorf("Peer = %+v", p)
	}
}

func TestSessionKeysFromSecret(t *testing.T) {
	cfg, err := Parse(minimal + `
[session]
secure = true
local_session_id = 1
shared_secret = "0a0b0c0d"
salt = "01"
`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	i2r, r2i, err := cfg.Session.SessionKeys()
	if err != nil {
		t.Fatalf("SessionKeys: %v", err)
	}
	want, err := crypto.DeriveSessionKeys([]byte{0x0a, 0x0b, 0x0c, 0x0d}, []byte{0x01})
	if err != nil {
		t.Fatalf("DeriveSessionKeys: %v", err)
	}
	if string(i2r) != string(want.I2R[:]) || string(r2i) != string(want.R2I[:]) {
		t.Errorf("derived keys differ")
	}
}

func TestParseInvalid(t *testing.T) {
	tests := []struct {
		name string
		toml string
	}{
		{"no peer", ``},
		{"unknown key", minimal + "bogus = 1\n"},
		{"bad level", minimal + "[log]\nlevel = \"loud\"\n"},
		{"bad duration", minimal + "[exchange]\nresponse_timeout = \"soon\"\n"},
		{"zero duration", minimal + "[exchange]\nclose_grace = \"0s\"\n"},
		{"no transmissions", minimal + "[exchange]\nmax_transmissions = 0\n"},
		{"bad role", minimal + "[session]\nrole = \"observer\"\n"},
		{"session id range", minimal + "[session]\nlocal_session_id = 70000\n"},
		{"bad node id", minimal + "[session]\npeer_node_id = \"zz\"\n"},
		{"secure without id", minimal + "[session]\nsecure = true\nshared_secret = \"00\"\n"},
		{"secure without keys", minimal + "[session]\nsecure = true\nlocal_session_id = 1\n"},
		{"secret and keys", minimal + "[session]\nsecure = true\nlocal_session_id = 1\nshared_secret = \"00\"\ni2r_key = \"00\"\n"},
		{"short key", minimal + "[session]\nsecure = true\nlocal_session_id = 1\ni2r_key = \"00\"\nr2i_key = \"00\"\n"},
		{"bad hex", minimal + "[session]\nshared_secret = \"xyz\"\n"},
		{"short fabric", "[peer]\ncompressed_fabric_id = \"0102\"\n"},
		{"bad transport", minimal + "transport = \"tcp\"\n"},
		{"tiny segment", minimal + "transport = \"btp\"\nbtp_segment_size = 2\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.toml)
			if !errors.Is(err, ErrInvalid) {
				t.Errorf("Parse() error = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestParseSyntaxError(t *testing.T) {
	if _, err := Parse("[peer\n"); err == nil || errors.Is(err, ErrInvalid) {
		t.Errorf("Parse() error = %v, want decode error", err)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "invoke.toml")
	if err := os.WriteFile(path, []byte(minimal), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Peer.Address != "[fd00::1]:5540" {
		t.Errorf("Address = %q", cfg.Peer.Address)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("Load(missing) succeeded")
	}
}

func TestExchangeConfig(t *testing.T) {
	cfg, err := Parse(minimal + "[exchange]\nmax_transmissions = 2\n")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	factory := logging.NewDefaultLoggerFactory()
	got := cfg.ExchangeConfig(factory)
	want := exchange.Config{
		ResponseTimeout:  exchange.DefaultResponseTimeout,
		IdleTimeout:      exchange.DefaultIdleTimeout,
		CloseGrace:       exchange.DefaultCloseGrace,
		RetryInterval:    exchange.MRPActiveRetryInterval,
		MaxTransmissions: 2,
		LoggerFactory:    factory,
	}
	if got != want {
		t.Errorf("ExchangeConfig() = %+v, want %+v", got, want)
	}
}
