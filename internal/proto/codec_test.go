package proto

import (
	"bytes"
	"reflect"
	"strings"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	req := Request{Mode: ModeAdd, Command: "ls /tmp", Path: "/tmp"}

	codec := JSONCodec{}
	if err := codec.Encode(&buf, &req); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	var got Request
	if err := codec.Decode(&buf, &got); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !reflect.DeepEqual(got, req) {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, req)
	}
}

func TestDecodeRejectsOversizeFrame(t *testing.T) {
	var buf bytes.Buffer
	hdr := []byte{0xFF, 0xFF, 0xFF, 0xFF} // declares ~4 GiB
	buf.Write(hdr)

	var got Request
	if err := (JSONCodec{}).Decode(&buf, &got); err == nil {
		t.Fatalf("expected oversize frame to be rejected")
	}
}

func TestEncodeRejectsOversizeMessage(t *testing.T) {
	var buf bytes.Buffer
	req := Request{Mode: ModeAdd, Command: strings.Repeat("x", MaxMessageSize+1)}

	if err := (JSONCodec{}).Encode(&buf, &req); err == nil {
		t.Fatalf("expected oversize message to be rejected")
	}
}

func TestDecodeTruncatedFrameErrors(t *testing.T) {
	var buf bytes.Buffer
	hdr := []byte{0, 0, 0, 10} // declares 10 bytes, supplies none
	buf.Write(hdr)

	var got Request
	if err := (JSONCodec{}).Decode(&buf, &got); err == nil {
		t.Fatalf("expected truncated frame to error")
	}
}
