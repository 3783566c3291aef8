// ABOUTME: Websocket client that pushes paced PCM packets to a receiver
// ABOUTME: Handles connection, handshake, stream announcement and frame sequencing
package sender

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/Resonate-Protocol/pcmrelay/internal/logging"
	"github.com/Resonate-Protocol/pcmrelay/internal/metrics"
	"github.com/Resonate-Protocol/pcmrelay/internal/protocol"
	"github.com/Resonate-Protocol/pcmrelay/pkg/audio"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	helloTimeout  = 5 * time.Second
	writeDeadline = 10 * time.Second
)

var (
	ErrNotConnected = errors.New("sender not connected")
	ErrNoStream     = errors.New("stream not started")
)

// Config holds sender configuration
type Config struct {
	ServerAddr string // host:port
	ClientID   string // generated when empty
	Name       string
	Software   string
}

// Sender streams PCM to one receiver
type Sender struct {
	config Config
	log    *zerolog.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	format    audio.Format
	streaming bool
	seq       uint64
	server    protocol.ServerHello

	done      chan struct{}
	closeOnce sync.Once
}

// New creates a sender; call Connect before anything else
func New(config Config) *Sender {
	if config.ClientID == "" {
		config.ClientID = uuid.New().String()
	}
	return &Sender{
		config: config,
		log:    logging.Component("sender"),
		done:   make(chan struct{}),
	}
}

// Connect dials the receiver and performs the handshake
func (s *Sender) Connect(ctx context.Context) error {
	u := url.URL{Scheme: "ws", Host: s.config.ServerAddr, Path: protocol.Path}
	s.log.Info().Str("url", u.String()).Msg("Connecting")

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}

	hello, err := handshake(conn, s.config)
	if err != nil {
		conn.Close()
		return fmt.Errorf("handshake failed: %w", err)
	}

	s.mu.Lock()
	s.conn = conn
	s.connected = true
	s.server = hello
	s.mu.Unlock()

	s.log.Info().Str("server", hello.Name).Str("server_id", hello.ServerID).Msg("Handshake complete")

	go s.readLoop(conn)
	return nil
}

func handshake(conn *websocket.Conn, config Config) (protocol.ServerHello, error) {
	var reply protocol.ServerHello

	hello := protocol.Message{
		Type: protocol.TypeClientHello,
		Payload: protocol.ClientHello{
			ClientID: config.ClientID,
			Name:     config.Name,
			Version:  protocol.Version,
			Software: config.Software,
		},
	}
	conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	if err := conn.WriteJSON(hello); err != nil {
		return reply, fmt.Errorf("failed to send client/hello: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(helloTimeout))
	_, data, err := conn.ReadMessage()
	if err != nil {
		return reply, fmt.Errorf("failed to read server/hello: %w", err)
	}
	conn.SetReadDeadline(time.Time{})

	msg, err := protocol.ParseMessage(data)
	if err != nil {
		return reply, err
	}
	if msg.Type != protocol.TypeServerHello {
		return reply, fmt.Errorf("expected server/hello, got %s", msg.Type)
	}
	if err := protocol.DecodePayload(msg, &reply); err != nil {
		return reply, err
	}
	return reply, nil
}

// readLoop services control frames and notices when the receiver goes away
func (s *Sender) readLoop(conn *websocket.Conn) {
	defer s.markClosed()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Error().Err(err).Msg("Read error")
			}
			return
		}
	}
}

func (s *Sender) markClosed() {
	s.mu.Lock()
	s.connected = false
	s.mu.Unlock()
	s.closeOnce.Do(func() { close(s.done) })
}

// Server returns the receiver's hello
func (s *Sender) Server() protocol.ServerHello {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.server
}

// Done is closed when the connection ends
func (s *Sender) Done() <-chan struct{} {
	return s.done
}

// StartStream announces format; sequence numbers restart at zero
func (s *Sender) StartStream(format audio.Format) error {
	if err := format.Validate(); err != nil {
		return err
	}
	msg := protocol.Message{Type: protocol.TypeStreamStart, Payload: protocol.NewStreamStart(format)}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writeJSONLocked(msg); err != nil {
		return fmt.Errorf("failed to send stream/start: %w", err)
	}
	s.format = format
	s.streaming = true
	s.seq = 0
	return nil
}

// Send writes one packet of little-endian PCM as a big-endian audio
// frame. pkt is not modified.
func (s *Sender) Send(pkt []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected {
		return ErrNotConnected
	}
	if !s.streaming {
		return ErrNoStream
	}

	frame := protocol.EncodeAudioFrame(s.seq, pkt)
	audio.SwapBytes(frame[protocol.FrameHeaderSize:], s.format.BitDepth)

	s.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	if err := s.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		return fmt.Errorf("failed to write audio frame %d: %w", s.seq, err)
	}
	s.seq++
	metrics.SenderPacketsTotal.Inc()
	return nil
}

// EndStream tells the receiver no more audio follows
func (s *Sender) EndStream(reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.streaming {
		return nil
	}
	s.streaming = false
	msg := protocol.Message{Type: protocol.TypeStreamEnd, Payload: protocol.StreamEnd{Reason: reason}}
	return s.writeJSONLocked(msg)
}

func (s *Sender) writeJSONLocked(msg protocol.Message) error {
	if !s.connected {
		return ErrNotConnected
	}
	s.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	return s.conn.WriteJSON(msg)
}

// Close sends a close frame and tears down the connection
func (s *Sender) Close() error {
	s.mu.Lock()
	conn := s.conn
	wasConnected := s.connected
	s.connected = false
	s.mu.Unlock()

	if conn == nil {
		return nil
	}
	if wasConnected {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
	}
	return conn.Close()
}
