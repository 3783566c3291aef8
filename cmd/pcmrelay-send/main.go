// ABOUTME: Entry point for the pcmrelay sender
// ABOUTME: Paces a local source and pushes it to a receiver over websocket
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Resonate-Protocol/pcmrelay/internal/config"
	"github.com/Resonate-Protocol/pcmrelay/internal/discovery"
	"github.com/Resonate-Protocol/pcmrelay/internal/logging"
	"github.com/Resonate-Protocol/pcmrelay/internal/pacer"
	"github.com/Resonate-Protocol/pcmrelay/internal/sender"
	"github.com/Resonate-Protocol/pcmrelay/internal/source"
	"github.com/Resonate-Protocol/pcmrelay/internal/version"
	"golang.org/x/sync/errgroup"
)

var (
	configPath = flag.String("config", "", "YAML config file")
	serverAddr = flag.String("server", "", "Receiver host:port (default: first found via mDNS)")
	sourcePath = flag.String("source", "tone", "Audio source: file path, tone, or - for stdin")
	params     = flag.String("params", source.DefaultParams, "Raw pipe format rate:bits:channels:swap")
	speed      = flag.Int("speed", 0, "Playback speed percent, 75 to 150")
	loop       = flag.Bool("loop", false, "Loop file sources")
	blocking   = flag.Bool("blocking", false, "Raw pipe input already arrives at playback rate")
	rate       = flag.Int("rate", 0, "Convert the source to this sample rate")
	name       = flag.String("name", "", "Sender name (default: hostname-pcmrelay-send)")
	logLevel   = flag.String("log-level", "", "Log level: debug, info, warn, error")
	discoverIn = flag.Duration("discover-timeout", 10*time.Second, "How long to browse mDNS for a receiver")
)

func main() {
	flag.Parse()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "pcmrelay-send: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *speed != 0 {
		cfg.Sender.Speed = *speed
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	closeLog, err := logging.Setup(logging.Options{Level: cfg.Log.Level, File: cfg.Log.File})
	if err != nil {
		return err
	}
	defer closeLog()
	log := logging.Component("main")

	senderName := *name
	if senderName == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		senderName = fmt.Sprintf("%s-pcmrelay-send", hostname)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := *serverAddr
	if addr == "" {
		addr, err = discover(ctx, senderName)
		if err != nil {
			return err
		}
	}

	src, err := source.Open(*sourcePath, source.Options{
		Params:   *params,
		Loop:     *loop,
		Blocking: *blocking,
		Rate:     *rate,
	})
	if err != nil {
		return err
	}

	s := sender.New(sender.Config{ServerAddr: addr, Name: senderName, Software: version.String()})
	if err := s.Connect(ctx); err != nil {
		return err
	}
	defer s.Close()

	// stream/start goes out once the reader has opened the source and
	// before its first packet
	started := false
	handler := func(pkt []byte) error {
		if !started {
			if err := s.StartStream(src.Format()); err != nil {
				return err
			}
			started = true
		}
		return s.Send(pkt)
	}

	reader := pacer.NewReader(src, handler, pacer.Options{
		Speed:  cfg.Sender.Speed,
		Period: cfg.Sender.Period(),
	})
	if err := reader.Start(); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		select {
		case <-reader.Done():
			log.Info().Uint64("packets", reader.Packets()).Msg("Source finished")
			if err := reader.Err(); err != nil {
				return fmt.Errorf("sending stopped: %w", err)
			}
			return s.EndStream("eof")
		case <-ctx.Done():
			reader.Stop()
			return s.EndStream("shutdown")
		}
	})
	g.Go(func() error {
		select {
		case <-s.Done():
			select {
			case <-reader.Done():
				return nil
			default:
			}
			reader.Stop()
			return errors.New("receiver closed the connection")
		case <-reader.Done():
			return nil
		}
	})

	return g.Wait()
}

func discover(ctx context.Context, senderName string) (string, error) {
	log := logging.Component("main")
	log.Info().Msg("Browsing for receivers")

	ctx, cancel := context.WithTimeout(ctx, *discoverIn)
	defer cancel()

	mgr := discovery.NewManager(discovery.Config{ServiceName: senderName})
	defer mgr.Stop()

	server, err := mgr.FindFirst(ctx)
	if err != nil {
		return "", err
	}
	log.Info().Str("name", server.Name).Str("addr", server.Addr()).Msg("Using receiver")
	return server.Addr(), nil
}
