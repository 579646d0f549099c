// Package tunnel implements the per-connection session: the handshake
// against guacd, and the bidirectional relay that follows it, with the
// shutdown/timeout/ordering semantics a connection lifecycle needs. The
// shutdown discipline (closeOnce, a single completion signal) keeps only
// the one-shot-close-of-two-sockets shape this gateway actually needs.
package tunnel

import (
	"context"
	"io"
	"net"
	"sync/atomic"
	"time"

	"github.com/jpillora/sizestr"

	"github.com/sammck-go/guacgw/internal/gwerr"
	"github.com/sammck-go/guacgw/internal/handshake"
	"github.com/sammck-go/guacgw/internal/metrics"
	"github.com/sammck-go/guacgw/internal/obslog"
	"github.com/sammck-go/guacgw/internal/wire"
)

// Phase is the session lifecycle state. It is monotonic: once advanced
// it never moves backward.
type Phase int32

const (
	PhaseHandshaking Phase = iota
	PhaseRelaying
	PhaseClosing
	PhaseClosed
)

// ClientSocket is the narrow upstream interface the browser side needs.
// internal/wsconn.Conn satisfies it.
type ClientSocket interface {
	ReceiveText() (string, error)
	SendText(string) error
	Close(code int, reason string) error
}

// Config bundles everything a Session needs to run, beyond the two
// sockets themselves.
type Config struct {
	ID               int64
	ConnectionType   string
	Arguments        map[string]string
	Screen           handshake.ScreenDefaults
	HandshakeTimeout time.Duration
	MaxInactivity    time.Duration
	Logger           obslog.Logger
	Metrics          *metrics.Collectors
}

// Session owns one browser<->guacd relay. It is created fresh for each
// accepted intake and destroyed on close; nothing about it is shared
// across sessions except the read-only Config it was built with.
type Session struct {
	closeOnce

	id           int64
	client       ClientSocket
	daemon       net.Conn
	daemonReader *wire.Reader
	cfg          Config

	phase        atomic.Int32
	lastActivity atomic.Int64

	bytesUp   atomic.Int64
	bytesDown atomic.Int64

	closeErr     error
	reachedReady bool
}

// New creates a Session over an already-accepted client socket and an
// already-dialed daemon socket. Run must be called to drive it.
func New(client ClientSocket, daemon net.Conn, cfg Config) *Session {
	s := &Session{
		id:           cfg.ID,
		client:       client,
		daemon:       daemon,
		daemonReader: wire.NewReader(daemon),
		cfg:          cfg,
	}
	s.initCloseOnce(cfg.Logger.Fork("session#%d", cfg.ID), s)
	s.touch()
	return s
}

func (s *Session) touch() {
	s.lastActivity.Store(time.Now().UnixNano())
}

// Phase returns the session's current lifecycle phase.
func (s *Session) Phase() Phase {
	return Phase(s.phase.Load())
}

// advancePhase moves the phase forward, never backward.
func (s *Session) advancePhase(p Phase) {
	for {
		cur := Phase(s.phase.Load())
		if cur >= p {
			return
		}
		if s.phase.CompareAndSwap(int32(cur), int32(p)) {
			return
		}
	}
}

// Run drives the handshake, then (on success) the bidirectional relay,
// until either side disconnects, the inactivity timeout fires, or ctx is
// cancelled. It returns after the session has been fully torn down. The
// returned error's gwerr.Kind is what the caller should use to pick the
// WebSocket close code.
func (s *Session) Run(ctx context.Context) error {
	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.shutdownOnContext(sessionCtx)

	hsCtx := sessionCtx
	if s.cfg.HandshakeTimeout > 0 {
		var hsCancel context.CancelFunc
		hsCtx, hsCancel = context.WithTimeout(sessionCtx, s.cfg.HandshakeTimeout)
		defer hsCancel()
		_ = s.daemon.SetReadDeadline(time.Now().Add(s.cfg.HandshakeTimeout))
	}

	start := time.Now()
	ready, err := handshake.Run(hsCtx, s.daemon, s.daemonReader, handshake.Config{
		ConnectionType: s.cfg.ConnectionType,
		Arguments:      s.cfg.Arguments,
		Screen:         s.cfg.Screen,
	})
	_ = s.daemon.SetReadDeadline(time.Time{})
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.HandshakeSeconds.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		s.StartShutdown(err)
		return s.WaitShutdown()
	}

	if sendErr := s.client.SendText(ready.String()); sendErr != nil {
		wrapped := gwerr.New(gwerr.Internal, sendErr)
		s.StartShutdown(wrapped)
		return s.WaitShutdown()
	}

	s.reachedReady = true
	s.advancePhase(PhaseRelaying)
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.ActiveSessions.Inc()
		s.cfg.Metrics.SessionsTotal.Inc()
		defer s.cfg.Metrics.ActiveSessions.Dec()
	}

	s.runRelay(sessionCtx)

	return s.WaitShutdown()
}

// runRelay starts the two pipelines and waits for shutdown to be
// initiated by either of them (or by an external cancellation, handled
// by shutdownOnContext above), then blocks until teardown completes.
func (s *Session) runRelay(ctx context.Context) {
	done := make(chan struct{}, 2)
	go func() {
		s.pumpClientToDaemon(ctx)
		done <- struct{}{}
	}()
	go func() {
		s.pumpDaemonToClient(ctx)
		done <- struct{}{}
	}()

	// The inactivity check runs on its own ticker so that a session
	// idle in both directions still gets torn down within one interval
	// of exceeding maxInactivityMinutes.
	stopTimeout := make(chan struct{})
	go s.watchInactivity(ctx, stopTimeout)

	<-done
	close(stopTimeout)
	s.WaitShutdown()
}

const inactivityCheckInterval = time.Second

func (s *Session) watchInactivity(ctx context.Context, stop <-chan struct{}) {
	if s.cfg.MaxInactivity <= 0 {
		return
	}
	ticker := time.NewTicker(inactivityCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			last := time.Unix(0, s.lastActivity.Load())
			if time.Since(last) >= s.cfg.MaxInactivity {
				s.StartShutdown(gwerr.New(gwerr.Timeout, nil))
				return
			}
		}
	}
}

func (s *Session) pumpClientToDaemon(ctx context.Context) {
	for {
		text, err := s.client.ReceiveText()
		if err != nil {
			s.StartShutdown(classifyClientErr(err))
			return
		}
		if text == "" {
			continue
		}
		s.touch()
		s.bytesUp.Add(int64(len(text)))
		if _, err := s.daemon.Write([]byte(text)); err != nil {
			s.StartShutdown(gwerr.New(gwerr.Internal, err))
			return
		}
		if containsDisconnectInstruction(text) {
			s.StartShutdown(gwerr.New(gwerr.PeerClosed, nil))
			return
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func (s *Session) pumpDaemonToClient(ctx context.Context) {
	for {
		ins, err := s.daemonReader.Next(ctx)
		if err != nil {
			s.StartShutdown(classifyDaemonErr(err))
			return
		}
		s.touch()
		encoded := wire.EncodeInstruction(ins)
		s.bytesDown.Add(int64(len(encoded)))
		if err := s.client.SendText(string(encoded)); err != nil {
			s.StartShutdown(gwerr.New(gwerr.Internal, err))
			return
		}
		if ctx.Err() != nil {
			return
		}
	}
}

// containsDisconnectInstruction reports whether any instruction in a raw
// client->daemon text frame is "disconnect", which should begin a
// graceful close. A single WebSocket text frame can bundle more than one
// completed instruction, so every instruction in the frame is checked,
// not just the first.
func containsDisconnectInstruction(text string) bool {
	r := wire.NewReader(&stringReader{text})
	for {
		ins, err := r.Next(context.Background())
		if err != nil {
			return false
		}
		if ins.Opcode == "disconnect" {
			return true
		}
	}
}

func classifyClientErr(err error) error {
	if ge, ok := err.(*gwerr.GatewayError); ok {
		return ge
	}
	if err == io.EOF {
		return gwerr.New(gwerr.PeerClosed, nil)
	}
	return gwerr.New(gwerr.Internal, err)
}

func classifyDaemonErr(err error) error {
	if ge, ok := err.(*gwerr.GatewayError); ok {
		return ge
	}
	if err == io.EOF {
		return gwerr.New(gwerr.PeerClosed, nil)
	}
	return gwerr.New(gwerr.Internal, err)
}

// HandleOnceShutdown is the closeOnce handler: idempotently closes both
// sockets and records the final completion status. A closed session
// produces no further writes on either socket.
func (s *Session) HandleOnceShutdown(completionErr error) error {
	s.advancePhase(PhaseClosing)

	clientCode, reason := closeCodeFor(completionErr)
	_ = s.client.Close(clientCode, reason)

	var daemonErr error
	if s.daemon != nil {
		daemonErr = s.daemon.Close()
	}

	s.advancePhase(PhaseClosed)

	s.cfg.Logger.ILogf(
		"closed: up=%s down=%s kind=%s reachedReady=%v",
		sizestr.ToString(s.bytesUp.Load()),
		sizestr.ToString(s.bytesDown.Load()),
		gwerr.KindOf(completionErr),
		s.reachedReady,
	)

	if s.cfg.Metrics != nil {
		s.cfg.Metrics.BytesRelayed.WithLabelValues("up").Add(float64(s.bytesUp.Load()))
		s.cfg.Metrics.BytesRelayed.WithLabelValues("down").Add(float64(s.bytesDown.Load()))
		s.cfg.Metrics.SessionFailures.WithLabelValues(gwerr.KindOf(completionErr).String()).Inc()
	}

	err := completionErr
	if err == nil {
		err = daemonErr
	}
	s.closeErr = err
	return err
}

// Succeeded reports whether the session reached the relaying phase
// before it was torn down — the success flag the intake completion
// signal resolves with.
func (s *Session) Succeeded() bool {
	return s.reachedReady
}

// closeCodeFor maps a GatewayError's Kind to a WebSocket close code.
func closeCodeFor(err error) (int, string) {
	switch gwerr.KindOf(err) {
	case gwerr.BadToken, gwerr.Handshake, gwerr.Internal:
		return 1011, "internal error" // CloseInternalServerErr
	case gwerr.Cancelled:
		return 1001, "going away" // CloseGoingAway
	default:
		return 1000, "normal closure" // CloseNormalClosure
	}
}

// stringReader adapts a string to io.Reader for one-shot parses, used by
// containsDisconnectInstruction to avoid pulling in strings.NewReader's
// ReadRune machinery for a single byte-oriented pass.
type stringReader struct{ s string }

func (r *stringReader) Read(p []byte) (int, error) {
	if len(r.s) == 0 {
		return 0, io.EOF
	}
	n := copy(p, r.s)
	r.s = r.s[n:]
	return n, nil
}
