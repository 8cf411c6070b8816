package discovery

import (
	"strconv"
	"strings"
	"time"
)

// TXT keys of an operational record.
const (
	TXTKeyIdleInterval    = "SII"
	TXTKeyActiveInterval  = "SAI"
	TXTKeyActiveThreshold = "SAT"
	TXTKeyTCPSupported    = "T"
)

// OperationalTXT holds the MRP parameters a node advertises. Zero means
// the key was absent and the default applies.
type OperationalTXT struct {
	IdleInterval    time.Duration
	ActiveInterval  time.Duration
	ActiveThreshold time.Duration
	TCPSupported    bool
}

// ParseTXT splits "key=value" records. A record without '=' maps to "".
func ParseTXT(records []string) map[string]string {
	m := make(map[string]string, len(records))
	for _, r := range records {
		k, v, _ := strings.Cut(r, "=")
		m[k] = v
	}
	return m
}

// ParseOperationalTXT reads the MRP keys from raw TXT records.
func ParseOperationalTXT(records []string) (*OperationalTXT, error) {
	m := ParseTXT(records)
	txt := &OperationalTXT{}

	for key, dst := range map[string]*time.Duration{
		TXTKeyIdleInterval:    &txt.IdleInterval,
		TXTKeyActiveInterval:  &txt.ActiveInterval,
		TXTKeyActiveThreshold: &txt.ActiveThreshold,
	} {
		v, ok := m[key]
		if !ok {
			continue
		}
		ms, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return nil, ErrInvalidTXTRecord
		}
		*dst = time.Duration(ms) * time.Millisecond
	}
	txt.TCPSupported = m[TXTKeyTCPSupported] == "1"

	return txt, nil
}
