package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"strconv"
	"strings"
)

// Options holds the matter-invoke command line.
type Options struct {
	// ConfigPath is the TOML file with exchange, session and peer settings.
	// Optional with -loopback.
	ConfigPath string

	Endpoint uint16
	Cluster  uint32
	Command  uint32

	// TimedMs opens a timed interaction of that many milliseconds before
	// the invoke. Zero sends a plain invoke.
	TimedMs uint16

	ExchangeID uint16

	// Args are the command fields in order.
	Args argList

	// Loopback answers the command with an in-process responder instead of
	// contacting a node.
	Loopback bool
}

// DefaultOptions returns Options for the On/Off cluster Toggle command on
// endpoint 1.
func DefaultOptions() Options {
	return Options{
		Endpoint:   1,
		Cluster:    0x0006,
		Command:    0x02,
		ExchangeID: 1,
	}
}

// parseFlags registers the matter-invoke flags on fs and parses args.
// Numeric flags accept decimal or 0x-prefixed hex.
//
//	-config   TOML configuration file
//	-endpoint Endpoint ID (default: 1)
//	-cluster  Cluster ID (default: 0x0006)
//	-command  Command ID (default: 0x02)
//	-timed    Timed interaction timeout in ms (default: 0, untimed)
//	-exchange Exchange ID (default: 1)
//	-arg      Command field as type:value, repeatable
//	-loopback Answer with an in-process responder
func parseFlags(fs *flag.FlagSet, args []string) (Options, error) {
	o := DefaultOptions()

	fs.StringVar(&o.ConfigPath, "config", "", "TOML configuration file")
	fs.BoolVar(&o.Loopback, "loopback", false, "Answer with an in-process responder")
	fs.Func("endpoint", fmt.Sprintf("Endpoint ID (default: %d)", o.Endpoint), func(s string) error {
		v, err := strconv.ParseUint(s, 0, 16)
		if err != nil {
			return err
		}
		o.Endpoint = uint16(v)
		return nil
	})
	fs.Func("cluster", fmt.Sprintf("Cluster ID (default: %#04x)", o.Cluster), func(s string) error {
		v, err := strconv.ParseUint(s, 0, 32)
		if err != nil {
			return err
		}
		o.Cluster = uint32(v)
		return nil
	})
	fs.Func("command", fmt.Sprintf("Command ID (default: %#02x)", o.Command), func(s string) error {
		v, err := strconv.ParseUint(s, 0, 32)
		if err != nil {
			return err
		}
		o.Command = uint32(v)
		return nil
	})
	fs.Func("timed", "Timed interaction timeout in ms (default: 0, untimed)", func(s string) error {
		v, err := strconv.ParseUint(s, 0, 16)
		if err != nil {
			return err
		}
		o.TimedMs = uint16(v)
		return nil
	})
	fs.Func("exchange", fmt.Sprintf("Exchange ID (default: %d)", o.ExchangeID), func(s string) error {
		v, err := strconv.ParseUint(s, 0, 16)
		if err != nil {
			return err
		}
		o.ExchangeID = uint16(v)
		return nil
	})
	fs.Var(&o.Args, "arg", "Command field as type:value (u8..u64, i8..i64, bool, str, hex, f64), repeatable")

	if err := fs.Parse(args); err != nil {
		return Options{}, err
	}
	if fs.NArg() > 0 {
		return Options{}, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	if o.ConfigPath == "" && !o.Loopback {
		return Options{}, fmt.Errorf("-config is required unless -loopback is set")
	}
	return o, nil
}

// argList collects typed command fields. Each value is "type:value".
type argList []any

func (a *argList) String() string {
	if a == nil {
		return ""
	}
	parts := make([]string, len(*a))
	for i, v := range *a {
		parts[i] = fmt.Sprintf("%T:%v", v, v)
	}
	return strings.Join(parts, ",")
}

func (a *argList) Set(s string) error {
	kind, value, ok := strings.Cut(s, ":")
	if !ok {
		return fmt.Errorf("argument %q: want type:value", s)
	}
	v, err := parseArg(kind, value)
	if err != nil {
		return fmt.Errorf("argument %q: %w", s, err)
	}
	*a = append(*a, v)
	return nil
}

func parseArg(kind, value string) (any, error) {
	switch kind {
	case "u8", "u16", "u32", "u64":
		bits, _ := strconv.Atoi(kind[1:])
		v, err := strconv.ParseUint(value, 0, bits)
		if err != nil {
			return nil, err
		}
		switch bits {
		case 8:
			return uint8(v), nil
		case 16:
			return uint16(v), nil
		case 32:
			return uint32(v), nil
		}
		return v, nil
	case "i8", "i16", "i32", "i64":
		bits, _ := strconv.Atoi(kind[1:])
		v, err := strconv.ParseInt(value, 0, bits)
		if err != nil {
			return nil, err
		}
		switch bits {
		case 8:
			return int8(v), nil
		case 16:
			return int16(v), nil
		case 32:
			return int32(v), nil
		}
		return v, nil
	case "bool":
		return strconv.ParseBool(value)
	case "str":
		return value, nil
	case "hex":
		return hex.DecodeString(value)
	case "f64":
		return strconv.ParseFloat(value, 64)
	default:
		return nil, fmt.Errorf("unknown type %q", kind)
	}
}
