package audio

import (
	"bytes"
	"errors"
	"testing"
)

func mp3Frame(fill byte, n int) []byte {
	b := []byte{0xFF, 0xFB, 0x90, 0x64}
	return append(b, bytes.Repeat([]byte{fill}, n)...)
}

func TestSniff(t *testing.T) {
	cases := []struct {
		name string
		data []byte
		want string
	}{
		{"mp3 frame", mp3Frame(1, 4), FormatMP3},
		{"mp3 id3", []byte("ID3\x04\x00\x00\x00\x00\x00\x00"), FormatMP3},
		{"wav", BuildWAV(PCMFormat(16000, 1), []byte{1, 2}), FormatWAV},
		{"ogg", []byte("OggS\x00\x02"), FormatOGG},
		{"text", []byte("<html>"), ""},
		{"short", []byte{0xFF}, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Sniff(tc.data); got != tc.want {
				t.Fatalf("Sniff = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestVerify(t *testing.T) {
	if err := Verify(nil, FormatMP3); !errors.Is(err, ErrEmpty) {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
	if err := Verify([]byte(`{"error":"quota"}`), FormatMP3); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt for JSON body, got %v", err)
	}
	if err := Verify([]byte("OggS...."), "mp3"); !errors.Is(err, ErrMixedFormats) {
		t.Fatalf("expected ErrMixedFormats, got %v", err)
	}
	if err := Verify([]byte{0, 1, 2}, FormatPCM); err != nil {
		t.Fatalf("pcm should pass: %v", err)
	}
}

func TestConcatMP3KeepsOrderAndLength(t *testing.T) {
	parts := [][]byte{mp3Frame('a', 10), mp3Frame('b', 20), mp3Frame('c', 30)}

	out, err := Concat(FormatMP3, parts)
	if err != nil {
		t.Fatalf("Concat err: %v", err)
	}
	if want := bytes.Join(parts, nil); !bytes.Equal(out, want) {
		t.Fatalf("concatenated stream not in order")
	}
}

func TestConcatMP3StripsLaterID3Tags(t *testing.T) {
	tag := []byte{'I', 'D', '3', 4, 0, 0, 0, 0, 0, 5, 'x', 'x', 'x', 'x', 'x'}
	first := append(append([]byte(nil), tag...), mp3Frame('a', 3)...)
	second := append(append([]byte(nil), tag...), mp3Frame('b', 3)...)

	out, err := Concat(FormatMP3, [][]byte{first, second})
	if err != nil {
		t.Fatalf("Concat err: %v", err)
	}
	want := append(append([]byte(nil), first...), mp3Frame('b', 3)...)
	if !bytes.Equal(out, want) {
		t.Fatalf("unexpected output %v", out)
	}
}

func TestConcatWAVRewritesHeader(t *testing.T) {
	format := PCMFormat(24000, 1)
	a := BuildWAV(format, []byte{1, 2, 3, 4})
	b := BuildWAV(format, []byte{5, 6})

	out, err := Concat(FormatWAV, [][]byte{a, b})
	if err != nil {
		t.Fatalf("Concat err: %v", err)
	}
	w, err := parseWAV(out)
	if err != nil {
		t.Fatalf("parse output: %v", err)
	}
	if !bytes.Equal(w.data, []byte{1, 2, 3, 4, 5, 6}) {
		t.Fatalf("unexpected samples %v", w.data)
	}
	if len(out) != len(a)+2 {
		t.Fatalf("expected a single header, got %d bytes", len(out))
	}

	other := BuildWAV(PCMFormat(16000, 1), []byte{7})
	if _, err := Concat(FormatWAV, [][]byte{a, other}); !errors.Is(err, ErrMixedFormats) {
		t.Fatalf("expected ErrMixedFormats, got %v", err)
	}
}

func TestConcatRejectsEmptyParts(t *testing.T) {
	if _, err := Concat(FormatMP3, nil); !errors.Is(err, ErrEmpty) {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
	if _, err := Concat(FormatMP3, [][]byte{mp3Frame('a', 1), {}}); !errors.Is(err, ErrEmpty) {
		t.Fatalf("expected ErrEmpty for empty part, got %v", err)
	}
}

func TestContentType(t *testing.T) {
	for format, want := range map[string]string{
		"mp3":      "audio/mpeg",
		"wav":      "audio/wav",
		"ogg_opus": "audio/ogg",
		"flac":     "application/octet-stream",
	} {
		if got := ContentType(format); got != want {
			t.Fatalf("ContentType(%q) = %q, want %q", format, got, want)
		}
	}
}
