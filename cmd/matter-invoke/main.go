// matter-invoke sends one Interaction Model command to a Matter node over
// a single reliable exchange and prints the response.
//
// The session and peer are described by a TOML file (see
// internal/config). Without a peer address the node is found through
// DNS-SD by compressed fabric ID and node ID.
//
// Usage:
//
//	matter-invoke -config <file> [options]
//
// Options:
//
//	-config   TOML configuration file
//	-endpoint Endpoint ID (default: 1)
//	-cluster  Cluster ID (default: 0x0006)
//	-command  Command ID (default: 0x02)
//	-timed    Timed interaction timeout in ms (default: 0, untimed)
//	-exchange Exchange ID (default: 1)
//	-arg      Command field as type:value, repeatable
//	-loopback Answer with an in-process responder
//
// Example:
//
//	matter-invoke -config node.toml -cluster 0x0008 -command 0x00 -arg u8:128 -arg u16:10
package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"os/signal"
	"time"

	"github.com/backkem/protogate/internal/config"
	"github.com/backkem/protogate/pkg/exchange"
	"github.com/backkem/protogate/pkg/im"
	"github.com/backkem/protogate/pkg/message"
	"github.com/backkem/protogate/pkg/transport"
	"github.com/pion/logging"
)

func main() {
	opts, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("Invalid arguments: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, opts, os.Stdout); err != nil {
		log.Fatalf("Invoke failed: %v", err)
	}
}

func loadConfig(opts Options) (config.Config, error) {
	if opts.ConfigPath == "" {
		cfg := config.Default()
		cfg.Peer.Address = "loopback"
		return cfg, nil
	}
	return config.Load(opts.ConfigPath)
}

func run(ctx context.Context, opts Options, out io.Writer) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	level, err := cfg.Level()
	if err != nil {
		return err
	}
	lf := &logging.DefaultLoggerFactory{
		Writer:          os.Stderr,
		DefaultLogLevel: level,
		ScopeLevels:     make(map[string]logging.LogLevel),
	}
	xcfg := cfg.ExchangeConfig(lf)

	var conn net.Conn
	if opts.Loopback {
		pipe := transport.NewPipe()
		defer pipe.Close()

		peerConn, err := wrapTransport(pipe.Conn1(), cfg.Peer, lf)
		if err != nil {
			return err
		}
		peer, err := newSession(peerConn, mirror(cfg.Session), lf)
		if err != nil {
			return fmt.Errorf("loopback session: %w", err)
		}
		defer peer.Close()

		peerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go responder(peerCtx, peer, lf.NewLogger("loopback"))

		if conn, err = wrapTransport(pipe.Conn0(), cfg.Peer, lf); err != nil {
			return err
		}
	} else {
		var retry time.Duration
		if conn, retry, err = dial(ctx, cfg, lf); err != nil {
			return err
		}
		if retry > 0 {
			xcfg.RetryInterval = retry
		}
	}

	sess, err := newSession(conn, cfg.Session, lf)
	if err != nil {
		conn.Close()
		return fmt.Errorf("session: %w", err)
	}
	defer sess.Close()

	ex, err := exchange.New(opts.ExchangeID, sess, xcfg)
	if err != nil {
		return err
	}
	defer ex.Close()

	var resp *message.Frame
	if opts.TimedMs > 0 {
		resp, err = ex.SendTimedCommand(ctx, opts.TimedMs, opts.Endpoint, opts.Cluster, opts.Command, opts.Args)
	} else {
		resp, err = ex.SendCommand(ctx, opts.Endpoint, opts.Cluster, opts.Command, opts.Args, false)
	}
	if err != nil {
		return err
	}
	return printResponse(out, resp)
}

func printResponse(out io.Writer, resp *message.Frame) error {
	if resp == nil {
		_, err := fmt.Fprintln(out, "no response")
		return err
	}
	opcode := im.Opcode(resp.Protocol.ProtocolOpcode)
	if _, err := fmt.Fprintf(out, "%s %s\n", opcode, hex.EncodeToString(resp.Payload)); err != nil {
		return err
	}
	if opcode == im.OpcodeStatusResponse {
		status := im.ParseStatus(resp.Payload, nil)
		if _, err := fmt.Fprintf(out, "status %s\n", status.Status); err != nil {
			return err
		}
	}
	return nil
}
