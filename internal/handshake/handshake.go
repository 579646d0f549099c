// Package handshake drives the select/args/size-audio-video-image/connect/
// ready exchange with guacd.
package handshake

import (
	"context"
	"io"
	"strings"

	"github.com/sammck-go/guacgw/internal/gwerr"
	"github.com/sammck-go/guacgw/internal/wire"
)

// ScreenDefaults supplies the width/height/dpi values used when the
// merged arguments do not specify them.
type ScreenDefaults struct {
	Width  string
	Height string
	DPI    string
}

// Config bundles everything the handshake needs beyond the daemon
// connection itself.
type Config struct {
	ConnectionType string
	Arguments      map[string]string
	Screen         ScreenDefaults
}

// Run performs the full handshake against daemon, reading replies
// through reader, and returns the "ready" instruction so the caller can
// forward it verbatim to the browser client. ctx bounds the whole
// exchange; the caller is expected to derive it with a timeout from
// guacd.timeoutMs. The caller owns reader and must keep using the same
// one for anything guacd sends after "ready" — guacd routinely starts
// streaming immediately, and a reply can arrive in the same read as
// trailing instructions that a fresh reader would lose.
func Run(ctx context.Context, daemon io.Writer, reader *wire.Reader, cfg Config) (*wire.Instruction, error) {
	if err := ctx.Err(); err != nil {
		return nil, gwerr.New(gwerr.Handshake, err)
	}

	// 1. select
	if _, err := daemon.Write(wire.Encode("select", cfg.ConnectionType)); err != nil {
		return nil, gwerr.New(gwerr.Handshake, err)
	}

	// 2. args
	argsIns, err := nextOrFail(ctx, reader, "args")
	if err != nil {
		return nil, err
	}
	paramNames := argsIns.Args

	// 3. client info: size, audio, video, image
	width := valueOr(cfg.Arguments, "width", cfg.Screen.Width)
	height := valueOr(cfg.Arguments, "height", cfg.Screen.Height)
	dpi := valueOr(cfg.Arguments, "dpi", cfg.Screen.DPI)
	if _, err := daemon.Write(wire.Encode("size", width, height, dpi)); err != nil {
		return nil, gwerr.New(gwerr.Handshake, err)
	}
	if err := sendMimeList(daemon, "audio", cfg.Arguments["audio"]); err != nil {
		return nil, err
	}
	if err := sendMimeList(daemon, "video", cfg.Arguments["video"]); err != nil {
		return nil, err
	}
	if err := sendMimeList(daemon, "image", cfg.Arguments["image"]); err != nil {
		return nil, err
	}

	// 4. connect — positional elements follow the order guacd declared
	// in step 2, looked up in the merged arguments; missing keys are
	// zero-length so positional alignment is preserved. guacd's first
	// declared "parameter name" is conventionally its own protocol
	// version tag (e.g. "VERSION_1_3_0") rather than a real connection
	// setting, and the client is expected to echo it back verbatim —
	// there is no corresponding key in the argument map to look up.
	connectArgs := make([]string, len(paramNames))
	for i, name := range paramNames {
		if strings.HasPrefix(name, "VERSION_") {
			connectArgs[i] = name
			continue
		}
		connectArgs[i] = cfg.Arguments[name]
	}
	if _, err := daemon.Write(wire.Encode("connect", connectArgs...)); err != nil {
		return nil, gwerr.New(gwerr.Handshake, err)
	}

	// 5. ready
	readyIns, err := nextOrFail(ctx, reader, "ready")
	if err != nil {
		return nil, err
	}

	return readyIns, nil
}

func sendMimeList(daemon io.Writer, opcode, csv string) error {
	var elements []string
	if csv != "" {
		elements = splitNonEmpty(csv)
	}
	if _, err := daemon.Write(wire.Encode(opcode, elements...)); err != nil {
		return gwerr.New(gwerr.Handshake, err)
	}
	return nil
}

func splitNonEmpty(csv string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(csv); i++ {
		if i == len(csv) || csv[i] == ',' {
			if i > start {
				out = append(out, csv[start:i])
			}
			start = i + 1
		}
	}
	return out
}

func valueOr(args map[string]string, key, fallback string) string {
	if v, ok := args[key]; ok && v != "" {
		return v
	}
	return fallback
}

func nextOrFail(ctx context.Context, r *wire.Reader, wantOpcode string) (*wire.Instruction, error) {
	ins, err := r.Next(ctx)
	if err != nil {
		if gwerr.KindOf(err) == gwerr.Framing {
			return nil, err
		}
		return nil, gwerr.New(gwerr.Handshake, err)
	}
	if ins.Opcode != wantOpcode {
		return nil, gwerr.Newf(gwerr.Handshake, "expected opcode %q, got %q", wantOpcode, ins.Opcode)
	}
	return ins, nil
}
