package im

import "errors"

// ErrUnsupportedParameterType is returned when a command parameter has a Go
// type with no TLV mapping. Nothing has been sent when it is returned.
var ErrUnsupportedParameterType = errors.New("im: unsupported parameter type")
