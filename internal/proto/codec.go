package proto

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// MaxMessageSize bounds a single request or response, comfortably above
// the "≥ 1 MiB" floor spec §4.1 requires so large status snapshots still
// fit (their entries carry no stdout/stderr).
const MaxMessageSize = 4 << 20 // 4 MiB

// Codec hides the wire format behind an interface so it can change without
// touching callers (spec §9 design note). The concrete implementation is
// length-prefixed JSON: a 4-byte big-endian length followed by a JSON
// object. Implementers MUST NOT assume a single Read returns a whole
// message — Decode below always reads exactly the declared length.
type Codec interface {
	Encode(w io.Writer, v any) error
	Decode(r io.Reader, v any) error
}

// JSONCodec is the Codec used on the wire.
type JSONCodec struct{}

var _ Codec = JSONCodec{}

// Encode writes v as a length-prefixed JSON frame.
func (JSONCodec) Encode(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	if len(data) > MaxMessageSize {
		return fmt.Errorf("encode: message of %d bytes exceeds limit of %d", len(data), MaxMessageSize)
	}
	hdr := make([]byte, 4)
	binary.BigEndian.PutUint32(hdr, uint32(len(data)))
	if _, err := w.Write(hdr); err != nil {
		return fmt.Errorf("write frame header: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write frame body: %w", err)
	}
	return nil
}

// Decode reads one length-prefixed JSON frame from r into v.
func (JSONCodec) Decode(r io.Reader, v any) error {
	hdr := make([]byte, 4)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return fmt.Errorf("read frame header: %w", err)
	}
	n := binary.BigEndian.Uint32(hdr)
	if n > MaxMessageSize {
		return fmt.Errorf("decode: declared frame size %d exceeds limit of %d", n, MaxMessageSize)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return fmt.Errorf("read frame body: %w", err)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}
