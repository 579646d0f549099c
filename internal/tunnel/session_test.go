package tunnel

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/sammck-go/guacgw/internal/gwerr"
	"github.com/sammck-go/guacgw/internal/handshake"
	"github.com/sammck-go/guacgw/internal/metrics"
	"github.com/sammck-go/guacgw/internal/obslog"
	"github.com/sammck-go/guacgw/internal/wire"
)

// fakeClient is an in-memory ClientSocket: ReceiveText plays back queued
// frames, SendText records what the session wrote, Close records the
// code it was asked to close with.
type fakeClient struct {
	toSend    chan string
	received  chan string
	closeCode int
	closeErr  error
	closed    chan struct{}
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		toSend:   make(chan string, 16),
		received: make(chan string, 16),
		closed:   make(chan struct{}),
	}
}

func (f *fakeClient) ReceiveText() (string, error) {
	select {
	case s, ok := <-f.toSend:
		if !ok {
			return "", f.errOrEOF()
		}
		return s, nil
	case <-f.closed:
		return "", f.errOrEOF()
	}
}

func (f *fakeClient) errOrEOF() error {
	return gwerr.New(gwerr.PeerClosed, nil)
}

func (f *fakeClient) SendText(s string) error {
	select {
	case f.received <- s:
		return nil
	default:
		return nil
	}
}

func (f *fakeClient) Close(code int, reason string) error {
	select {
	case <-f.closed:
	default:
		f.closeCode = code
		close(f.closed)
	}
	return nil
}

// pairedDaemon runs a minimal guacd stand-in over a net.Pipe: it answers
// the handshake, then silently drains whatever it is sent and never
// writes anything back.
func pairedDaemon(t *testing.T) (serverSide net.Conn, driveHandshake func()) {
	t.Helper()
	client, server := net.Pipe()
	return client, func() {
		go func() {
			r := wire.NewReader(server)
			if _, err := r.Next(context.Background()); err != nil {
				return
			}
			server.Write(wire.Encode("args", "VERSION_1_3_0"))
			for i := 0; i < 5; i++ {
				if _, err := r.Next(context.Background()); err != nil {
					return
				}
			}
			server.Write(wire.Encode("ready", "$session"))

			// Keep draining whatever the session relays downstream after
			// the handshake completes, so a net.Pipe write from the
			// session never blocks waiting for a reader that already
			// went away.
			for {
				if _, err := r.Next(context.Background()); err != nil {
					return
				}
			}
		}()
	}
}

func testConfig(id int64) Config {
	return Config{
		ID:             id,
		ConnectionType: "rdp",
		Arguments:      map[string]string{},
		Screen:         handshake.ScreenDefaults{Width: "1024", Height: "768", DPI: "96"},
		Logger:         obslog.Discard(),
		Metrics:        metrics.Noop(),
	}
}

func TestSessionDisconnectInstructionClosesCleanly(t *testing.T) {
	client := newFakeClient()
	daemonConn, driveHandshake := pairedDaemon(t)
	driveHandshake()

	cfg := testConfig(1)
	sess := New(client, daemonConn, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- sess.Run(ctx) }()

	select {
	case ready := <-client.received:
		if ready == "" {
			t.Fatal("expected a ready instruction forwarded to the client")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for ready instruction")
	}

	client.toSend <- string(wire.Encode("disconnect"))

	select {
	case err := <-done:
		if !sess.Succeeded() {
			t.Errorf("session should have reached the relaying phase before disconnecting")
		}
		if sess.Phase() != PhaseClosed {
			t.Errorf("phase = %v, want PhaseClosed", sess.Phase())
		}
		_ = err
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for session to close after disconnect")
	}
}

func TestSessionInactivityTimeout(t *testing.T) {
	client := newFakeClient()
	daemonConn, driveHandshake := pairedDaemon(t)
	driveHandshake()

	cfg := testConfig(2)
	cfg.MaxInactivity = 150 * time.Millisecond
	sess := New(client, daemonConn, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- sess.Run(ctx) }()

	select {
	case <-client.received:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for ready instruction")
	}

	select {
	case <-done:
		if gwerr.KindOf(sess.closeErr) != gwerr.Timeout {
			t.Errorf("close error kind = %v, want Timeout", gwerr.KindOf(sess.closeErr))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("session did not time out on inactivity")
	}
}

func TestSessionShutdownIsIdempotent(t *testing.T) {
	client := newFakeClient()
	daemonConn, driveHandshake := pairedDaemon(t)
	driveHandshake()

	sess := New(client, daemonConn, testConfig(3))
	sess.StartShutdown(gwerr.New(gwerr.Cancelled, nil))
	sess.StartShutdown(gwerr.New(gwerr.Internal, nil))

	if err := sess.WaitShutdown(); gwerr.KindOf(err) != gwerr.Cancelled {
		t.Errorf("first StartShutdown call should win; got kind %v", gwerr.KindOf(err))
	}
	if client.closeCode != 1001 {
		t.Errorf("client close code = %d, want 1001 (going away)", client.closeCode)
	}
}
