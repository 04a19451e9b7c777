package speech

import (
	"bytes"
	"errors"
	"testing"
)

func TestFrameRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		in   *frame
	}{
		{"full client", fullClientFrame([]byte(`{"a":1}`), compressNone)},
		{"audio sequenced", audioFrame([]byte{1, 2, 3}, 2, false, compressGzip)},
		{"audio last", audioFrame([]byte{4}, 5, true, compressGzip)},
		{"audio last no sequence", audioFrame([]byte{4}, 0, true, compressNone)},
		{"server event", &frame{kind: frameFullServer, flags: flagEvent, serial: serialJSON, event: eventSessionFinished, sessionID: "sess-1", payload: []byte(`{}`)}},
		{"connection event", &frame{kind: frameFullServer, flags: flagEvent, serial: serialJSON, event: eventConnectionStarted, connectID: "conn-9"}},
		{"error", &frame{kind: frameError, serial: serialJSON, errorCode: 45000001, payload: []byte("bad request")}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := decodeFrame(tc.in.encode())
			if err != nil {
				t.Fatalf("decode err: %v", err)
			}
			if out.kind != tc.in.kind || out.flags != tc.in.flags || out.sequence != tc.in.sequence {
				t.Fatalf("header mismatch: got %+v, want %+v", out, tc.in)
			}
			if out.event != tc.in.event || out.sessionID != tc.in.sessionID || out.connectID != tc.in.connectID || out.errorCode != tc.in.errorCode {
				t.Fatalf("metadata mismatch: got %+v, want %+v", out, tc.in)
			}
			if !bytes.Equal(out.payload, tc.in.payload) {
				t.Fatalf("payload mismatch")
			}
		})
	}
}

func TestAudioFrameLastUsesNegativeSequence(t *testing.T) {
	f := audioFrame([]byte{1}, 7, true, compressNone)
	if !f.isLast() || f.sequence != -7 {
		t.Fatalf("unexpected last frame: flags=%04b seq=%d", f.flags, f.sequence)
	}
}

func TestDecodeFrameRejectsBadInput(t *testing.T) {
	if _, err := decodeFrame([]byte{0x21, 0x10, 0x10, 0x00, 0, 0, 0, 0}); !errors.Is(err, errUnsupportedVersion) {
		t.Fatalf("expected version error, got %v", err)
	}

	good := fullClientFrame([]byte("payload"), compressNone).encode()
	if _, err := decodeFrame(good[:len(good)-2]); err == nil {
		t.Fatal("expected error for truncated payload")
	}
}

func TestGzipBody(t *testing.T) {
	raw := []byte(`{"text":"नमस्ते"}`)
	packed, err := gzipBytes(raw)
	if err != nil {
		t.Fatalf("gzip err: %v", err)
	}
	f := fullClientFrame(packed, compressGzip)
	decoded, err := decodeFrame(f.encode())
	if err != nil {
		t.Fatalf("decode err: %v", err)
	}
	body, err := decoded.body()
	if err != nil {
		t.Fatalf("body err: %v", err)
	}
	if !bytes.Equal(body, raw) {
		t.Fatalf("body = %q, want %q", body, raw)
	}
}
