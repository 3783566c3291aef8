// ABOUTME: Entry point for the pcmrelay receiver and player
// ABOUTME: Parses CLI flags, builds the pipeline and runs ingest, HTTP and TUI
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Resonate-Protocol/pcmrelay/internal/config"
	"github.com/Resonate-Protocol/pcmrelay/internal/discovery"
	"github.com/Resonate-Protocol/pcmrelay/internal/httpgate"
	"github.com/Resonate-Protocol/pcmrelay/internal/logging"
	"github.com/Resonate-Protocol/pcmrelay/internal/pacer"
	"github.com/Resonate-Protocol/pcmrelay/internal/protocol"
	"github.com/Resonate-Protocol/pcmrelay/internal/receiver"
	"github.com/Resonate-Protocol/pcmrelay/internal/relay"
	"github.com/Resonate-Protocol/pcmrelay/internal/sink"
	"github.com/Resonate-Protocol/pcmrelay/internal/source"
	"github.com/Resonate-Protocol/pcmrelay/internal/ui"
	"github.com/Resonate-Protocol/pcmrelay/internal/version"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

var (
	configPath  = flag.String("config", "", "YAML config file")
	sinkKind    = flag.String("sink", "", "Playback sink: device or stream")
	outputName  = flag.String("output", "", "Device backend: oto, malgo, portaudio or null")
	listenAddr  = flag.String("listen", "", "Websocket ingest address")
	httpAddr    = flag.String("http", "", "HTTP address for /stream.wav, /status and /metrics")
	sourcePath  = flag.String("source", "", "Play a local source (file, tone, -) instead of network ingest")
	params      = flag.String("params", source.DefaultParams, "Raw pipe format rate:bits:channels:swap")
	loop        = flag.Bool("loop", false, "Loop file sources")
	name        = flag.String("name", "", "Receiver name (default: hostname-pcmrelay)")
	noTUI       = flag.Bool("no-tui", false, "Disable TUI, use streaming logs instead")
	logLevel    = flag.String("log-level", "", "Log level: debug, info, warn, error")
	logFile     = flag.String("log-file", "", "Log file path")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "pcmrelay: %v\n", err)
		os.Exit(1)
	}
}

// applyFlags overrides config values with flags given on the command line
func applyFlags(cfg *config.Config) {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "sink":
			cfg.Sink.Kind = *sinkKind
		case "output":
			cfg.Sink.Output = *outputName
		case "listen":
			cfg.Receiver.Listen = *listenAddr
		case "http":
			cfg.HTTP.Listen = *httpAddr
		case "name":
			cfg.Receiver.Name = *name
		case "log-level":
			cfg.Log.Level = *logLevel
		case "log-file":
			cfg.Log.File = *logFile
		}
	})

	if cfg.Receiver.Name == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		cfg.Receiver.Name = fmt.Sprintf("%s-pcmrelay", hostname)
	}
}

func run() error {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	applyFlags(cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	useTUI := !*noTUI
	closeLog, err := logging.Setup(logging.Options{
		Level: cfg.Log.Level,
		File:  cfg.Log.File,
		Quiet: useTUI,
	})
	if err != nil {
		return err
	}
	defer closeLog()
	log := logging.Component("main")

	log.Info().Str("name", cfg.Receiver.Name).Str("version", version.Version).
		Str("sink", cfg.Sink.Kind).Msg("Starting pcmrelay")

	pipeline, err := relay.NewFromConfig(cfg)
	if err != nil {
		return err
	}
	if err := pipeline.Start(); err != nil {
		return err
	}
	defer pipeline.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	if device, ok := pipeline.Sink().(*sink.DeviceSink); ok {
		g.Go(func() error { return watchDevice(ctx, device) })
	}

	if *sourcePath != "" {
		reader, err := startLocalSource(pipeline, cfg)
		if err != nil {
			return err
		}
		g.Go(func() error {
			select {
			case <-reader.Done():
				log.Info().Uint64("packets", reader.Packets()).Msg("Local source finished")
				if err := reader.Err(); err != nil {
					return err
				}
				return errFinished
			case <-ctx.Done():
				reader.Stop()
				return nil
			}
		})
	} else {
		startIngest(ctx, g, pipeline, cfg, log)
	}

	if cfg.HTTP.Listen != "" {
		gate := httpgate.New(httpgate.Config{
			Addr:      cfg.HTTP.Listen,
			LocalOnly: cfg.HTTP.LocalOnly,
			BlockSize: cfg.HTTP.BlockSize,
			Metrics:   cfg.HTTP.Metrics,
		}, pipeline.Stream(), func() any { return pipeline.Status() })
		g.Go(func() error { return gate.ListenAndServe(ctx) })
	}

	if useTUI {
		prog := ui.Run(cfg.Receiver.Name, pipeline.Status)
		g.Go(func() error {
			if _, err := prog.Run(); err != nil {
				return fmt.Errorf("TUI failed: %w", err)
			}
			return errQuit
		})
		g.Go(func() error {
			<-ctx.Done()
			prog.Quit()
			return nil
		})
	}

	err = g.Wait()
	log.Info().Msg("Shutting down")
	if errors.Is(err, errQuit) || errors.Is(err, errFinished) {
		return nil
	}
	return err
}

// Sentinels that end the group without failing the process
var (
	errQuit     = errors.New("quit requested")
	errFinished = errors.New("local source finished")
)

// watchDevice turns a device sink failure into a group error
func watchDevice(ctx context.Context, device *sink.DeviceSink) error {
	select {
	case <-device.Done():
		if err := device.Err(); err != nil {
			return fmt.Errorf("audio device: %w", err)
		}
		return nil
	case <-ctx.Done():
		return nil
	}
}

func startLocalSource(pipeline *relay.Pipeline, cfg *config.Config) (*pacer.Reader, error) {
	src, err := source.Open(*sourcePath, source.Options{
		Params: *params,
		Loop:   *loop,
	})
	if err != nil {
		return nil, err
	}

	// the format is known only once the reader has opened the source
	var feed pacer.PacketHandler
	handler := func(pkt []byte) error {
		if feed == nil {
			feed = pipeline.Feed(src.Format())
		}
		return feed(pkt)
	}

	reader := pacer.NewReader(src, handler, pacer.Options{
		Speed:  cfg.Sender.Speed,
		Period: cfg.Sender.Period(),
	})
	if err := reader.Start(); err != nil {
		return nil, err
	}
	return reader, nil
}

func startIngest(ctx context.Context, g *errgroup.Group, pipeline *relay.Pipeline, cfg *config.Config, log *zerolog.Logger) {
	recv := receiver.New(receiver.Config{Name: cfg.Receiver.Name}, pipeline)
	pipeline.AttachReceiver(recv.Status)

	mux := http.NewServeMux()
	mux.Handle(protocol.Path, recv)
	server := &http.Server{
		Addr:              cfg.Receiver.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		log.Info().Str("addr", cfg.Receiver.Listen).Str("path", protocol.Path).Msg("WebSocket ingest listening")
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("ingest server failed: %w", err)
		}
		return nil
	})

	if cfg.Receiver.MDNS {
		port, err := portOf(cfg.Receiver.Listen)
		if err != nil {
			log.Warn().Err(err).Msg("Skipping mDNS advertisement")
		} else {
			mdns := discovery.NewManager(discovery.Config{ServiceName: cfg.Receiver.Name, Port: port})
			if err := mdns.Advertise(); err != nil {
				log.Warn().Err(err).Msg("Failed to start mDNS advertisement")
			}
			g.Go(func() error {
				<-ctx.Done()
				mdns.Stop()
				return nil
			})
		}
	}

	g.Go(func() error {
		<-ctx.Done()
		recv.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
}
