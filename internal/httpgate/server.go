// ABOUTME: HTTP front end for pulled WAV streams, metrics and status
// ABOUTME: Maps GET /stream.wav onto stream sink sessions
package httpgate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Resonate-Protocol/pcmrelay/internal/logging"
	"github.com/Resonate-Protocol/pcmrelay/internal/metrics"
	"github.com/Resonate-Protocol/pcmrelay/internal/sink"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultBlockSize is the response write size
const DefaultBlockSize = 4096

// Config holds gateway configuration
type Config struct {
	Addr      string
	LocalOnly bool
	BlockSize int
	Metrics   bool
}

// StatusFunc returns a JSON-encodable snapshot
type StatusFunc func() any

// Server serves the HTTP endpoints
type Server struct {
	config Config
	stream *sink.StreamSink
	status StatusFunc
	log    *zerolog.Logger

	mux        *http.ServeMux
	httpServer *http.Server
}

// New creates the gateway. stream may be nil when the relay plays to a
// local device, in which case /stream.wav answers 404.
func New(config Config, stream *sink.StreamSink, status StatusFunc) *Server {
	if config.BlockSize < 1 {
		config.BlockSize = DefaultBlockSize
	}
	s := &Server{
		config: config,
		stream: stream,
		status: status,
		log:    logging.Component("http"),
		mux:    http.NewServeMux(),
	}

	s.mux.HandleFunc("GET /stream.wav", s.handleStream)
	s.mux.HandleFunc("GET /status", s.handleStatus)
	if config.Metrics {
		s.mux.Handle("GET /metrics", metrics.Handler())
	}
	return s
}

// Handler returns the route table
func (s *Server) Handler() http.Handler {
	return s.mux
}

// ListenAndServe serves until ctx is cancelled
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errChan := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.config.Addr).Msg("HTTP server listening")
		if err := s.httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
		close(errChan)
	}()

	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.log.Warn().Err(err).Msg("HTTP server shutdown error")
	}
	return nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	var snapshot any = struct{}{}
	if s.status != nil {
		snapshot = s.status()
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snapshot); err != nil {
		s.log.Warn().Err(err).Msg("Failed to write status")
	}
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if s.config.LocalOnly && !isLoopback(r.RemoteAddr) {
		s.log.Warn().Str("remote", r.RemoteAddr).Msg("Rejecting non-local stream client")
		http.Error(w, "stream is restricted to local clients", http.StatusForbidden)
		return
	}
	if s.stream == nil {
		http.Error(w, "relay is not in stream mode", http.StatusNotFound)
		return
	}

	base, ranged, err := parseRange(r.Header.Get("Range"))
	if err != nil {
		s.log.Debug().Str("range", r.Header.Get("Range")).Err(err).Msg("Ignoring malformed range")
		base, ranged = 0, false
	}

	id := uuid.New().String()
	se, err := s.stream.NewSession(r.Context(), id, base)
	if err != nil {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", sink.StreamTotalBytes))
		http.Error(w, err.Error(), http.StatusRequestedRangeNotSatisfiable)
		return
	}
	defer se.Close()

	length := se.Length()
	h := w.Header()
	h.Set("Content-Type", "audio/x-wav")
	h.Set("Accept-Ranges", "bytes")
	h.Set("Cache-Control", "no-cache")
	h.Set("Content-Length", strconv.FormatInt(length, 10))
	status := http.StatusOK
	if ranged {
		status = http.StatusPartialContent
		if length > 0 {
			h.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", base, sink.StreamTotalBytes-1, sink.StreamTotalBytes))
		} else {
			h.Set("Content-Range", fmt.Sprintf("bytes */%d", sink.StreamTotalBytes))
		}
	}
	w.WriteHeader(status)
	if r.Method == http.MethodHead || length == 0 {
		return
	}

	s.copyStream(r.Context(), w, se)
}

// copyStream writes session bytes block by block, flushing each one
func (s *Server) copyStream(ctx context.Context, w http.ResponseWriter, se *sink.Session) {
	rc := http.NewResponseController(w)
	buf := make([]byte, s.config.BlockSize)
	var pos int64

	for {
		n, err := se.FillBytes(ctx, pos, buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				s.log.Debug().Str("session", se.ID).Err(werr).Msg("Client write failed")
				return
			}
			rc.Flush()
			pos += int64(n)
		}
		if err != nil {
			s.log.Debug().Str("session", se.ID).Err(err).Int64("sent", pos).Msg("Stream session ended")
			return
		}
	}
}

// parseRange reads the start of a single "bytes=N-[M]" range. The end is
// ignored since the live stream is served to its nominal end.
func parseRange(header string) (int64, bool, error) {
	if header == "" {
		return 0, false, nil
	}
	spec, ok := strings.CutPrefix(header, "bytes=")
	if !ok || strings.Contains(spec, ",") {
		return 0, false, fmt.Errorf("unsupported range %q", header)
	}
	start, _, ok := strings.Cut(spec, "-")
	if !ok || start == "" {
		return 0, false, fmt.Errorf("unsupported range %q", header)
	}
	base, err := strconv.ParseInt(start, 10, 64)
	if err != nil || base < 0 {
		return 0, false, fmt.Errorf("invalid range start %q", start)
	}
	return base, true, nil
}

func isLoopback(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
