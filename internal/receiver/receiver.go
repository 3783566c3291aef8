// ABOUTME: Websocket ingest endpoint for network PCM streams
// ABOUTME: Performs the handshake, checks frame sequence and hands audio to a Listener
package receiver

import (
	"errors"
	"net/http"
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

// Listener receives stream lifecycle events and audio in arrival order.
// Audio takes ownership of msg.
type Listener interface {
	Connected(remote string)
	Playing(format audio.Format)
	Audio(msg *audio.Message)
	Disconnected(remote string)
}

// Config holds receiver configuration
type Config struct {
	Name     string
	ServerID string // generated when empty
}

// Status is a snapshot of the current sender connection
type Status struct {
	Connected bool
	Remote    string
	Sender    string
	Format    audio.Format
	Frames    uint64
	Missed    uint64
}

// Receiver accepts one sender at a time on protocol.Path
type Receiver struct {
	config   Config
	listener Listener
	log      *zerolog.Logger
	upgrader websocket.Upgrader

	mu     sync.Mutex
	conn   *websocket.Conn
	busy   bool
	status Status
	closed bool
}

// New creates a receiver delivering to l
func New(config Config, l Listener) *Receiver {
	if config.ServerID == "" {
		config.ServerID = uuid.New().String()
	}
	return &Receiver{
		config:   config,
		listener: l,
		log:      logging.Component("receiver"),
		upgrader: websocket.Upgrader{
			// Senders are not browsers
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// ServerID returns the id sent in server/hello
func (r *Receiver) ServerID() string {
	return r.config.ServerID
}

// ServeHTTP upgrades the request and runs the connection until it ends
func (r *Receiver) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		http.Error(w, "receiver shutting down", http.StatusServiceUnavailable)
		return
	}
	if r.busy {
		remote := r.status.Remote
		r.mu.Unlock()
		r.log.Warn().Str("remote", req.RemoteAddr).Str("active", remote).Msg("Rejecting second sender")
		http.Error(w, "another sender is active", http.StatusConflict)
		return
	}
	r.busy = true
	r.mu.Unlock()

	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.log.Error().Err(err).Msg("WebSocket upgrade error")
		r.release()
		return
	}

	r.log.Info().Str("remote", req.RemoteAddr).Msg("New WebSocket connection")
	r.handleConnection(conn, req.RemoteAddr)
}

// Status returns the current connection snapshot
func (r *Receiver) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Close drops the active sender and rejects new ones
func (r *Receiver) Close() {
	r.mu.Lock()
	r.closed = true
	conn := r.conn
	r.mu.Unlock()

	if conn != nil {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutdown"),
			time.Now().Add(time.Second))
		conn.Close()
	}
}

func (r *Receiver) release() {
	r.mu.Lock()
	r.busy = false
	r.conn = nil
	r.status = Status{}
	r.mu.Unlock()
}

func (r *Receiver) handleConnection(conn *websocket.Conn, remote string) {
	defer conn.Close()
	defer r.release()

	hello, err := r.handshake(conn)
	if err != nil {
		r.log.Error().Err(err).Str("remote", remote).Msg("Handshake failed")
		return
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.conn = conn
	r.status = Status{Connected: true, Remote: remote, Sender: hello.Name}
	r.mu.Unlock()

	log := r.log.With().Str("sender", hello.Name).Str("client_id", hello.ClientID).Logger()
	log.Info().Msg("Sender connected")
	r.listener.Connected(remote)
	defer func() {
		log.Info().Msg("Sender disconnected")
		r.listener.Disconnected(remote)
	}()

	s := stream{r: r, log: &log}
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Error().Err(err).Msg("WebSocket error")
			}
			return
		}

		switch msgType {
		case websocket.TextMessage:
			if s.handleText(data) {
				return
			}
		case websocket.BinaryMessage:
			s.handleBinary(data)
		}
	}
}

// handshake waits for client/hello and answers with server/hello
func (r *Receiver) handshake(conn *websocket.Conn) (protocol.ClientHello, error) {
	var hello protocol.ClientHello

	conn.SetReadDeadline(time.Now().Add(helloTimeout))
	_, data, err := conn.ReadMessage()
	if err != nil {
		return hello, err
	}
	conn.SetReadDeadline(time.Time{})

	msg, err := protocol.ParseMessage(data)
	if err != nil {
		return hello, err
	}
	if msg.Type != protocol.TypeClientHello {
		return hello, errors.New("expected client/hello, got " + msg.Type)
	}
	if err := protocol.DecodePayload(msg, &hello); err != nil {
		return hello, err
	}
	if hello.Name == "" {
		hello.Name = hello.ClientID
	}

	reply := protocol.Message{
		Type: protocol.TypeServerHello,
		Payload: protocol.ServerHello{
			ServerID: r.config.ServerID,
			Name:     r.config.Name,
			Version:  protocol.Version,
		},
	}
	conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	if err := conn.WriteJSON(reply); err != nil {
		return hello, err
	}
	return hello, nil
}

// stream tracks per-connection format and sequence state
type stream struct {
	r      *Receiver
	log    *zerolog.Logger
	format audio.Format
	active bool

	haveSeq bool
	nextSeq uint64
}

// handleText processes a control message. It returns true when the
// sender ended the stream.
func (s *stream) handleText(data []byte) bool {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		s.log.Warn().Err(err).Msg("Dropping malformed message")
		return false
	}

	switch msg.Type {
	case protocol.TypeStreamStart:
		var start protocol.StreamStart
		if err := protocol.DecodePayload(msg, &start); err != nil {
			s.log.Warn().Err(err).Msg("Dropping stream/start")
			return false
		}
		format, err := start.Format()
		if err != nil {
			s.log.Error().Err(err).Msg("Unsupported stream format")
			s.active = false
			return false
		}
		s.format = format
		s.active = true
		s.haveSeq = false
		s.r.mu.Lock()
		s.r.status.Format = format
		s.r.mu.Unlock()
		s.log.Info().Stringer("format", format).Msg("Stream started")
		s.r.listener.Playing(format)
	case protocol.TypeStreamEnd:
		var end protocol.StreamEnd
		if err := protocol.DecodePayload(msg, &end); err != nil {
			s.log.Debug().Err(err).Msg("Unreadable stream/end payload")
		}
		s.log.Info().Str("reason", end.Reason).Msg("Stream ended")
		return true
	default:
		s.log.Debug().Str("type", msg.Type).Msg("Ignoring unknown message type")
	}
	return false
}

func (s *stream) handleBinary(data []byte) {
	seq, payload, err := protocol.DecodeAudioFrame(data)
	if err != nil {
		s.log.Warn().Err(err).Msg("Dropping binary frame")
		return
	}
	if !s.active {
		s.log.Debug().Uint64("seq", seq).Msg("Audio before stream/start, dropping")
		return
	}

	var missed uint64
	if s.haveSeq && seq != s.nextSeq {
		if seq > s.nextSeq {
			missed = seq - s.nextSeq
		}
		s.log.Warn().Uint64("expected", s.nextSeq).Uint64("got", seq).Uint64("missed", missed).Msg("Missed frames")
		metrics.ReceiverMissedTotal.Add(float64(missed))
	}
	s.haveSeq = true
	s.nextSeq = seq + 1

	audio.SwapBytes(payload, s.format.BitDepth)
	msg, err := audio.NewMessage(s.format, payload)
	if err != nil {
		s.log.Warn().Err(err).Int("bytes", len(payload)).Msg("Dropping misaligned frame")
		return
	}

	s.r.mu.Lock()
	s.r.status.Frames++
	s.r.status.Missed += missed
	s.r.mu.Unlock()
	metrics.ReceiverFramesTotal.Inc()

	s.r.listener.Audio(msg)
}
