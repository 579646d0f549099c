// Package gateway wires the token, handshake, wsconn, guacd, intake, and
// tunnel packages behind a single http.Handler: validate, upgrade, hand
// off to a worker, log the outcome. Token presence is checked before
// any socket work begins, before the WebSocket upgrade is even
// attempted.
package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jpillora/requestlog"
	"github.com/tomasen/realip"

	"github.com/sammck-go/guacgw/internal/config"
	"github.com/sammck-go/guacgw/internal/guacd"
	"github.com/sammck-go/guacgw/internal/gwerr"
	"github.com/sammck-go/guacgw/internal/handshake"
	"github.com/sammck-go/guacgw/internal/intake"
	"github.com/sammck-go/guacgw/internal/metrics"
	"github.com/sammck-go/guacgw/internal/obslog"
	"github.com/sammck-go/guacgw/internal/token"
	"github.com/sammck-go/guacgw/internal/tunnel"
	"github.com/sammck-go/guacgw/internal/wsconn"
)

// Handler is the http.Handler the service host mounts at the gateway's
// WebSocket endpoint.
type Handler struct {
	Store    *config.Store
	Queue    *intake.Queue
	Logger   obslog.Logger
	Metrics  *metrics.Collectors
	Upgrader websocket.Upgrader
}

// New builds a Handler, wrapping it in a debug-level request log.
func New(store *config.Store, queue *intake.Queue, logger obslog.Logger, m *metrics.Collectors) http.Handler {
	h := &Handler{
		Store:   store,
		Queue:   queue,
		Logger:  logger,
		Metrics: m,
		Upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	if logger.GetLogLevel() >= obslog.LogLevelDebug {
		return requestlog.Wrap(h)
	}
	return h
}

// ServeHTTP validates the token query parameter, decrypts and merges its
// arguments, upgrades the connection, dials guacd, and enqueues the
// resulting session onto the intake queue. Any failure before the
// upgrade is a plain HTTP error response; any failure after the upgrade
// is reported as a WebSocket close with a code reflecting the failure
// kind.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rawToken := r.URL.Query().Get("token")
	if rawToken == "" {
		http.Error(w, "missing token", http.StatusBadRequest)
		return
	}

	cfg := h.Store.Current()

	desc, err := token.Decrypt(cfg.KDFMode, cfg.Password, rawToken)
	if err != nil {
		h.Logger.WLogf("rejecting connection from %s: %s", realip.FromRequest(r), err)
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	merged, err := token.MergeArguments(desc, cfg.Policy(), r.URL.Query())
	if err != nil {
		http.Error(w, "invalid arguments", http.StatusBadRequest)
		return
	}

	ws, err := h.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Logger.WLogf("websocket upgrade failed for %s: %s", realip.FromRequest(r), err)
		return
	}
	client := wsconn.New(ws)

	id := h.Queue.NextID()
	job := &intake.Job{
		ID: id,
		Run: func(ctx context.Context) error {
			return h.runSession(ctx, id, client, desc, merged, cfg)
		},
	}

	if err := h.Queue.Enqueue(job); err != nil {
		h.Logger.WLogf("rejecting session #%d at intake: %s", id, err)
		_ = client.Close(1011, "intake unavailable")
		return
	}
}

func (h *Handler) runSession(ctx context.Context, id int64, client tunnel.ClientSocket, desc *token.Descriptor, args map[string]string, cfg *config.Config) error {
	daemon, err := guacd.Dial(ctx, &cfg.Guacd)
	if err != nil {
		wrapped := gwerr.New(gwerr.Handshake, err)
		_ = client.Close(1011, "cannot reach guacd")
		return wrapped
	}

	sess := tunnel.New(client, daemon, tunnel.Config{
		ID:             id,
		ConnectionType: desc.Type,
		Arguments:      args,
		Screen: handshake.ScreenDefaults{
			Width:  cfg.Screen.Width,
			Height: cfg.Screen.Height,
			DPI:    cfg.Screen.DPI,
		},
		HandshakeTimeout: time.Duration(cfg.Guacd.TimeoutMs) * time.Millisecond,
		MaxInactivity:    time.Duration(cfg.WebSocket.MaxInactivityMin) * time.Minute,
		Logger:           h.Logger,
		Metrics:          h.Metrics,
	})

	return sess.Run(ctx)
}
