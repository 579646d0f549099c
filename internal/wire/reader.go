package wire

import (
	"bytes"
	"context"
	"io"

	"github.com/sammck-go/guacgw/internal/gwerr"
)

// readChunkSize is the size of each underlying Read call. It bounds how
// much unparsed data a single Next() call can pull in before re-checking
// the carry-over buffer for already-complete instructions.
const readChunkSize = 8192

// Reader turns a byte stream into a sequence of complete Instructions:
// concatenate chunks into a carry-over buffer, find the rightmost ';' in
// the buffer, parse everything up to and including it, and carry the
// remainder forward. scanned tracks how far the previous call already
// searched for a ';', so a new chunk only needs to search the bytes
// appended since then — a rolling index anchored at the last scanned
// position, giving amortized O(n) behavior with no whole-buffer rescan.
type Reader struct {
	src     io.Reader
	buf     []byte
	scanned int
	pending []*Instruction
	chunk   []byte
}

// NewReader wraps src for instruction-at-a-time consumption.
func NewReader(src io.Reader) *Reader {
	return &Reader{
		src:   src,
		chunk: make([]byte, readChunkSize),
	}
}

// Next returns the next complete instruction, blocking on underlying
// reads as necessary. It returns io.EOF when the stream ends with no
// further complete instructions buffered, and a *gwerr.GatewayError with
// Kind Framing on any malformed instruction.
func (r *Reader) Next(ctx context.Context) (*Instruction, error) {
	for {
		if len(r.pending) > 0 {
			ins := r.pending[0]
			r.pending = r.pending[1:]
			return ins, nil
		}

		if err := ctx.Err(); err != nil {
			return nil, err
		}

		n, err := r.src.Read(r.chunk)
		if n > 0 {
			start := len(r.buf)
			r.buf = append(r.buf, r.chunk[:n]...)

			searchFrom := r.scanned
			if searchFrom > start {
				searchFrom = start
			}
			rel := bytes.LastIndexByte(r.buf[searchFrom:], Delimiter)
			if rel < 0 {
				r.scanned = len(r.buf)
			} else {
				boundary := searchFrom + rel + 1
				span := r.buf[:boundary]
				instructions, perr := parseSpan(span)
				if perr != nil {
					return nil, gwerr.New(gwerr.Framing, perr)
				}
				remainder := append([]byte(nil), r.buf[boundary:]...)
				r.buf = remainder
				r.scanned = 0
				r.pending = instructions
			}
		}
		if err != nil {
			if len(r.pending) > 0 {
				continue
			}
			if err == io.EOF && len(r.buf) > 0 {
				return nil, gwerr.New(gwerr.Framing, io.ErrUnexpectedEOF)
			}
			return nil, err
		}
	}
}
