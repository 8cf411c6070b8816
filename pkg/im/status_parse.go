package im

import (
	"github.com/backkem/protogate/pkg/tlv"
	"github.com/pion/logging"
)

// StatusResult is the lenient reading of a status-bearing payload.
type StatusResult struct {
	Status        Status
	ClusterStatus *uint16
	Revision      *uint8

	// HasStatus records whether the status field was present. When false,
	// Status is StatusFailure.
	HasStatus bool
}

// Context tags of a status payload.
const (
	statusTagStatus        = 0
	statusTagClusterStatus = 1
)

// ParseStatus extracts the status, cluster status and IM revision from an
// application payload. Two layouts are accepted: fields directly in the
// top-level structure, or inside a nested structure. Unknown tags are
// skipped and decode problems end the scan early; the best-effort result
// is always returned. log may be nil.
func ParseStatus(payload []byte, log logging.LeveledLogger) StatusResult {
	var res StatusResult
	r := tlv.NewReader(payload)

	if err := r.Next(); err != nil || r.Type() != tlv.ElementTypeStruct {
		if log != nil {
			log.Warnf("status payload is not a structure: %x", payload)
		}
		res.Status = StatusFailure
		return res
	}
	if err := r.EnterContainer(); err == nil {
		if err := scanStatusFields(r, &res, true); err != nil && log != nil {
			log.Debugf("status payload truncated: %v", err)
		}
	}

	if !res.HasStatus {
		if log != nil {
			log.Warnf("status field missing from payload: %x", payload)
		}
		res.Status = StatusFailure
	}
	return res
}

// scanStatusFields walks one container level, descending into nested
// structures. The reader must have just entered the container.
func scanStatusFields(r *tlv.Reader, res *StatusResult, topLevel bool) error {
	for {
		if err := r.Next(); err != nil {
			return err
		}
		if r.IsEndOfContainer() {
			return r.ExitContainer()
		}

		tag := r.Tag()
		switch {
		case r.Type() == tlv.ElementTypeStruct:
			if err := r.EnterContainer(); err != nil {
				return err
			}
			if err := scanStatusFields(r, res, false); err != nil {
				return err
			}
			continue

		case tag.Is(statusTagStatus):
			if v, err := r.Uint(); err == nil && !res.HasStatus {
				res.Status = Status(v)
				res.HasStatus = true
			}

		case tag.Is(statusTagClusterStatus):
			if v, err := r.Uint(); err == nil && res.ClusterStatus == nil {
				cs := uint16(v)
				res.ClusterStatus = &cs
			}

		case topLevel && tag.Is(RevisionTag):
			if v, err := r.Uint(); err == nil {
				rev := uint8(v)
				res.Revision = &rev
			}
		}

		if err := r.Skip(); err != nil {
			return err
		}
	}
}
