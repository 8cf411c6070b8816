// Package config loads the matter-invoke TOML configuration: exchange
// timing, session parameters and key material, and how to reach the peer.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/backkem/protogate/pkg/crypto"
	"github.com/backkem/protogate/pkg/exchange"
	"github.com/pion/logging"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("config: invalid")

// Transport names accepted by [peer] transport.
const (
	TransportUDP = "udp"
	TransportBTP = "btp"
)

// Config is the validated configuration.
type Config struct {
	LogLevel string
	Exchange Exchange
	Session  Session
	Peer     Peer
}

// Exchange mirrors exchange.Config.
type Exchange struct {
	ResponseTimeout  time.Duration
	IdleTimeout      time.Duration
	CloseGrace       time.Duration
	RetryInterval    time.Duration
	MaxTransmissions int
}

// Session describes the session to the peer. With Secure unset the
// unsecured session is used.
type Session struct {
	Secure         bool
	Initiator      bool
	LocalSessionID uint16
	PeerSessionID  uint16
	LocalNodeID    uint64
	PeerNodeID     uint64
	NodeAddressing bool
	Reliable       bool

	// Either SharedSecret (expanded with HKDF) or both explicit keys.
	SharedSecret []byte
	Salt         []byte
	I2RKey       []byte
	R2IKey       []byte
}

// Peer says how to reach the node. Address wins over DNS-SD.
type Peer struct {
	Address            string
	CompressedFabricID [8]byte
	HasFabricID        bool
	NodeID             uint64
	Transport          string
	BTPSegmentSize     int
}

// Default returns the configuration used for keys absent from the file.
func Default() Config {
	return Config{
		LogLevel: "info",
		Exchange: Exchange{
			ResponseTimeout:  exchange.DefaultResponseTimeout,
			IdleTimeout:      exchange.DefaultIdleTimeout,
			CloseGrace:       exchange.DefaultCloseGrace,
			RetryInterval:    exchange.MRPActiveRetryInterval,
			MaxTransmissions: exchange.MRPMaxTransmissions,
		},
		Session: Session{
			Initiator: true,
			Reliable:  true,
		},
		Peer: Peer{
			Transport:      TransportUDP,
			BTPSegmentSize: 244,
		},
	}
}

type fileConfig struct {
	Log struct {
		Level string `toml:"level"`
	} `toml:"log"`

	Exchange struct {
		ResponseTimeout  string `toml:"response_timeout"`
		IdleTimeout      string `toml:"idle_timeout"`
		CloseGrace       string `toml:"close_grace"`
		RetryInterval    string `toml:"retry_interval"`
		MaxTransmissions int    `toml:"max_transmissions"`
	} `toml:"exchange"`

	Session struct {
		Secure         bool   `toml:"secure"`
		Role           string `toml:"role"`
		LocalSessionID int64  `toml:"local_session_id"`
		PeerSessionID  int64  `toml:"peer_session_id"`
		LocalNodeID    string `toml:"local_node_id"`
		PeerNodeID     string `toml:"peer_node_id"`
		NodeAddressing bool   `toml:"node_addressing"`
		Reliable       bool   `toml:"reliable"`
		SharedSecret   string `toml:"shared_secret"`
		Salt           string `toml:"salt"`
		I2RKey         string `toml:"i2r_key"`
		R2IKey         string `toml:"r2i_key"`
	} `toml:"session"`

	Peer struct {
		Address        string `toml:"address"`
		FabricID       string `toml:"compressed_fabric_id"`
		NodeID         string `toml:"node_id"`
		Transport      string `toml:"transport"`
		BTPSegmentSize int    `toml:"btp_segment_size"`
	} `toml:"peer"`
}

// Load reads and validates the TOML file at path.
func Load(path string) (Config, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("config: load %s: %w", path, err)
	}
	return build(raw, meta)
}

// Parse decodes and validates TOML text.
func Parse(data string) (Config, error) {
	var raw fileConfig
	meta, err := toml.Decode(data, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("config: parse: %w", err)
	}
	return build(raw, meta)
}

func build(raw fileConfig, meta toml.MetaData) (Config, error) {
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("%w: unknown key %s", ErrInvalid, undecoded[0])
	}

	cfg := Default()
	var err error

	if meta.IsDefined("log", "level") {
		cfg.LogLevel = strings.ToLower(strings.TrimSpace(raw.Log.Level))
	}

	durations := []struct {
		key string
		src string
		dst *time.Duration
	}{
		{"response_timeout", raw.Exchange.ResponseTimeout, &cfg.Exchange.ResponseTimeout},
		{"idle_timeout", raw.Exchange.IdleTimeout, &cfg.Exchange.IdleTimeout},
		{"close_grace", raw.Exchange.CloseGrace, &cfg.Exchange.CloseGrace},
		{"retry_interval", raw.Exchange.RetryInterval, &cfg.Exchange.RetryInterval},
	}
	for _, d := range durations {
		if !meta.IsDefined("exchange", d.key) {
			continue
		}
		if *d.dst, err = time.ParseDuration(strings.TrimSpace(d.src)); err != nil {
			return Config{}, fmt.Errorf("%w: exchange.%s: %v", ErrInvalid, d.key, err)
		}
	}
	if meta.IsDefined("exchange", "max_transmissions") {
		cfg.Exchange.MaxTransmissions = raw.Exchange.MaxTransmissions
	}

	s := &cfg.Session
	if meta.IsDefined("session", "secure") {
		s.Secure = raw.Session.Secure
	}
	if meta.IsDefined("session", "role") {
		switch strings.ToLower(strings.TrimSpace(raw.Session.Role)) {
		case "initiator":
			s.Initiator = true
		case "responder":
			s.Initiator = false
		default:
			return Config{}, fmt.Errorf("%w: session.role %q", ErrInvalid, raw.Session.Role)
		}
	}
	if s.LocalSessionID, err = sessionID("local_session_id", raw.Session.LocalSessionID); err != nil {
		return Config{}, err
	}
	if s.PeerSessionID, err = sessionID("peer_session_id", raw.Session.PeerSessionID); err != nil {
		return Config{}, err
	}
	if meta.IsDefined("session", "local_node_id") {
		if s.LocalNodeID, err = nodeID("session.local_node_id", raw.Session.LocalNodeID); err != nil {
			return Config{}, err
		}
	}
	if meta.IsDefined("session", "peer_node_id") {
		if s.PeerNodeID, err = nodeID("session.peer_node_id", raw.Session.PeerNodeID); err != nil {
			return Config{}, err
		}
	}
	if meta.IsDefined("session", "node_addressing") {
		s.NodeAddressing = raw.Session.NodeAddressing
	}
	if meta.IsDefined("session", "reliable") {
		s.Reliable = raw.Session.Reliable
	}

	keys := []struct {
		key string
		src string
		dst *[]byte
	}{
		{"shared_secret", raw.Session.SharedSecret, &s.SharedSecret},
		{"salt", raw.Session.Salt, &s.Salt},
		{"i2r_key", raw.Session.I2RKey, &s.I2RKey},
		{"r2i_key", raw.Session.R2IKey, &s.R2IKey},
	}
	for _, k := range keys {
		if !meta.IsDefined("session", k.key) {
			continue
		}
		if *k.dst, err = hex.DecodeString(strings.TrimSpace(k.src)); err != nil {
			return Config{}, fmt.Errorf("%w: session.%s: %v", ErrInvalid, k.key, err)
		}
	}

	p := &cfg.Peer
	if meta.IsDefined("peer", "address") {
		p.Address = strings.TrimSpace(raw.Peer.Address)
	}
	if meta.IsDefined("peer", "compressed_fabric_id") {
		b, err := hex.DecodeString(strings.TrimSpace(raw.Peer.FabricID))
		if err != nil || len(b) != len(p.CompressedFabricID) {
			return Config{}, fmt.Errorf("%w: peer.compressed_fabric_id must be 16 hex digits", ErrInvalid)
		}
		copy(p.CompressedFabricID[:], b)
		p.HasFabricID = true
	}
	if meta.IsDefined("peer", "node_id") {
		if p.NodeID, err = nodeID("peer.node_id", raw.Peer.NodeID); err != nil {
			return Config{}, err
		}
	}
	if meta.IsDefined("peer", "transport") {
		p.Transport = strings.ToLower(strings.TrimSpace(raw.Peer.Transport))
	}
	if meta.IsDefined("peer", "btp_segment_size") {
		p.BTPSegmentSize = raw.Peer.BTPSegmentSize
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func sessionID(key string, v int64) (uint16, error) {
	if v < 0 || v > 0xFFFF {
		return 0, fmt.Errorf("%w: session.%s %d out of range", ErrInvalid, key, v)
	}
	return uint16(v), nil
}

// nodeID accepts decimal or 0x-prefixed hex; node IDs overflow TOML's
// signed integers.
func nodeID(key, s string) (uint64, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 0, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrInvalid, key, err)
	}
	return v, nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	if _, err := c.Level(); err != nil {
		return err
	}

	e := c.Exchange
	if e.ResponseTimeout <= 0 || e.IdleTimeout <= 0 || e.CloseGrace <= 0 || e.RetryInterval <= 0 {
		return fmt.Errorf("%w: exchange durations must be positive", ErrInvalid)
	}
	if e.MaxTransmissions < 1 {
		return fmt.Errorf("%w: exchange.max_transmissions must be at least 1", ErrInvalid)
	}

	s := c.Session
	if s.Secure {
		if s.LocalSessionID == 0 {
			return fmt.Errorf("%w: secure session needs a non-zero local_session_id", ErrInvalid)
		}
		hasSecret := len(s.SharedSecret) > 0
		hasKeys := len(s.I2RKey) > 0 || len(s.R2IKey) > 0
		switch {
		case hasSecret && hasKeys:
			return fmt.Errorf("%w: set shared_secret or i2r_key/r2i_key, not both", ErrInvalid)
		case !hasSecret && !hasKeys:
			return fmt.Errorf("%w: secure session needs key material", ErrInvalid)
		case hasKeys && (len(s.I2RKey) != crypto.KeySize || len(s.R2IKey) != crypto.KeySize):
			return fmt.Errorf("%w: i2r_key and r2i_key must be %d bytes", ErrInvalid, crypto.KeySize)
		}
	}

	p := c.Peer
	switch p.Transport {
	case TransportUDP:
	case TransportBTP:
		if p.BTPSegmentSize < 5 {
			return fmt.Errorf("%w: peer.btp_segment_size %d too small", ErrInvalid, p.BTPSegmentSize)
		}
	default:
		return fmt.Errorf("%w: peer.transport %q", ErrInvalid, p.Transport)
	}
	if p.Address == "" && !p.HasFabricID {
		return fmt.Errorf("%w: peer needs address or compressed_fabric_id and node_id", ErrInvalid)
	}
	return nil
}

// Level maps LogLevel to a pion log level.
func (c Config) Level() (logging.LogLevel, error) {
	switch c.LogLevel {
	case "disabled":
		return logging.LogLevelDisabled, nil
	case "error":
		return logging.LogLevelError, nil
	case "warn":
		return logging.LogLevelWarn, nil
	case "info":
		return logging.LogLevelInfo, nil
	case "debug":
		return logging.LogLevelDebug, nil
	case "trace":
		return logging.LogLevelTrace, nil
	default:
		return 0, fmt.Errorf("%w: log.level %q", ErrInvalid, c.LogLevel)
	}
}

// SessionKeys returns the I2R and R2I keys, deriving them from the shared
// secret when no explicit keys are configured.
func (s Session) SessionKeys() (i2r, r2i []byte, err error) {
	if len(s.SharedSecret) == 0 {
		return s.I2RKey, s.R2IKey, nil
	}
	keys, err := crypto.DeriveSessionKeys(s.SharedSecret, s.Salt)
	if err != nil {
		return nil, nil, err
	}
	return keys.I2R[:], keys.R2I[:], nil
}

// ExchangeConfig converts the [exchange] table.
func (c Config) ExchangeConfig(loggerFactory logging.LoggerFactory) exchange.Config {
	return exchange.Config{
		ResponseTimeout:  c.Exchange.ResponseTimeout,
		IdleTimeout:      c.Exchange.IdleTimeout,
		CloseGrace:       c.Exchange.CloseGrace,
		RetryInterval:    c.Exchange.RetryInterval,
		MaxTransmissions: c.Exchange.MaxTransmissions,
		LoggerFactory:    loggerFactory,
	}
}
