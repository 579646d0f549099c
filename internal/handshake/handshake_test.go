package handshake

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/sammck-go/guacgw/internal/wire"
)

// fakeDaemon is an io.ReadWriter standing in for guacd: writes from the
// driver land in Sent, and Read plays back whatever was queued in To.
type fakeDaemon struct {
	sent bytes.Buffer
	to   bytes.Buffer
}

func (f *fakeDaemon) Write(p []byte) (int, error) { return f.sent.Write(p) }
func (f *fakeDaemon) Read(p []byte) (int, error)  { return f.to.Read(p) }

func (f *fakeDaemon) queue(opcode string, elements ...string) {
	f.to.Write(wire.Encode(opcode, elements...))
}

func TestRunEchoesVersionTagInConnect(t *testing.T) {
	daemon := &fakeDaemon{}
	daemon.queue("args", "VERSION_1_3_0", "hostname", "port", "password")
	daemon.queue("ready", "$abc123")

	cfg := Config{
		ConnectionType: "rdp",
		Arguments:      map[string]string{"hostname": "h", "port": "3389"},
		Screen:         ScreenDefaults{Width: "1024", Height: "768", DPI: "96"},
	}

	ready, err := Run(context.Background(), daemon, wire.NewReader(daemon), cfg)
	if err != nil {
		t.Fatalf("Run returned error: %s", err)
	}
	if ready.Opcode != "ready" || len(ready.Args) != 1 || ready.Args[0] != "$abc123" {
		t.Fatalf("unexpected ready instruction: %+v", ready)
	}

	sent := parseAll(t, daemon.sent.Bytes())
	connect := findInstruction(t, sent, "connect")
	want := []string{"VERSION_1_3_0", "h", "3389", ""}
	if len(connect.Args) != len(want) {
		t.Fatalf("connect args = %v, want %v", connect.Args, want)
	}
	for i := range want {
		if connect.Args[i] != want[i] {
			t.Errorf("connect.Args[%d] = %q, want %q", i, connect.Args[i], want[i])
		}
	}
}

func TestRunSendsSizeAudioVideoImage(t *testing.T) {
	daemon := &fakeDaemon{}
	daemon.queue("args", "VERSION_1_3_0")
	daemon.queue("ready", "tok")

	cfg := Config{
		ConnectionType: "vnc",
		Arguments: map[string]string{
			"audio": "audio/L16,audio/L8",
			"video": "",
			"image": "image/png",
		},
		Screen: ScreenDefaults{Width: "800", Height: "600", DPI: "96"},
	}
	if _, err := Run(context.Background(), daemon, wire.NewReader(daemon), cfg); err != nil {
		t.Fatalf("Run returned error: %s", err)
	}

	sent := parseAll(t, daemon.sent.Bytes())
	size := findInstruction(t, sent, "size")
	if len(size.Args) != 3 || size.Args[0] != "800" || size.Args[1] != "600" || size.Args[2] != "96" {
		t.Errorf("size args = %v, want [800 600 96]", size.Args)
	}
	audio := findInstruction(t, sent, "audio")
	if len(audio.Args) != 2 || audio.Args[0] != "audio/L16" || audio.Args[1] != "audio/L8" {
		t.Errorf("audio args = %v, want [audio/L16 audio/L8]", audio.Args)
	}
	video := findInstruction(t, sent, "video")
	if len(video.Args) != 0 {
		t.Errorf("video args = %v, want empty list for blank argument", video.Args)
	}
}

func TestRunFailsOnUnexpectedOpcode(t *testing.T) {
	daemon := &fakeDaemon{}
	daemon.queue("error", "nope")
	cfg := Config{ConnectionType: "rdp", Arguments: map[string]string{}}
	if _, err := Run(context.Background(), daemon, wire.NewReader(daemon), cfg); err == nil {
		t.Fatal("expected Run to fail when guacd does not reply with args")
	}
}

func parseAll(t *testing.T, buf []byte) []*wire.Instruction {
	t.Helper()
	r := wire.NewReader(bytes.NewReader(buf))
	var out []*wire.Instruction
	for {
		ins, err := r.Next(context.Background())
		if err == io.EOF {
			return out
		}
		if err != nil {
			t.Fatalf("parseAll: %s", err)
		}
		out = append(out, ins)
	}
}

func findInstruction(t *testing.T, instructions []*wire.Instruction, opcode string) *wire.Instruction {
	t.Helper()
	for _, ins := range instructions {
		if ins.Opcode == opcode {
			return ins
		}
	}
	t.Fatalf("no %q instruction found among %d sent", opcode, len(instructions))
	return nil
}
