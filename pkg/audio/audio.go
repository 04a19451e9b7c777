// Package audio sniffs and concatenates the container formats returned by
// speech synthesis engines.
package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

// Format names match the encoding parameter sent to synthesis engines.
const (
	FormatMP3 = "mp3"
	FormatWAV = "wav"
	FormatOGG = "ogg_opus"
	FormatPCM = "pcm"
)

var (
	ErrEmpty        = errors.New("audio: empty payload")
	ErrMixedFormats = errors.New("audio: segments use different formats")
	ErrCorrupt      = errors.New("audio: corrupt container")
)

// Normalize maps aliases to a canonical format name.
func Normalize(format string) string {
	format = strings.ToLower(strings.TrimSpace(format))
	switch format {
	case "mp3", "mpeg", "audio/mpeg":
		return FormatMP3
	case "wav", "wave", "audio/wav":
		return FormatWAV
	case "ogg", "opus", "ogg_opus", "audio/ogg":
		return FormatOGG
	case "pcm", "raw":
		return FormatPCM
	default:
		return format
	}
}

// ContentType returns the MIME type served for format.
func ContentType(format string) string {
	switch Normalize(format) {
	case FormatMP3:
		return "audio/mpeg"
	case FormatWAV:
		return "audio/wav"
	case FormatOGG:
		return "audio/ogg"
	case FormatPCM:
		return "audio/L16"
	default:
		return "application/octet-stream"
	}
}

// Sniff detects the container from magic bytes. Raw PCM has no signature
// and yields "".
func Sniff(data []byte) string {
	switch {
	case len(data) >= 12 && bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WAVE")):
		return FormatWAV
	case len(data) >= 4 && bytes.Equal(data[0:4], []byte("OggS")):
		return FormatOGG
	case len(data) >= 3 && bytes.Equal(data[0:3], []byte("ID3")):
		return FormatMP3
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		return FormatMP3
	default:
		return ""
	}
}

// Verify checks that data is non-empty and, when the container carries a
// signature, that it matches format.
func Verify(data []byte, format string) error {
	if len(data) == 0 {
		return ErrEmpty
	}
	format = Normalize(format)
	if format == FormatPCM {
		return nil
	}
	got := Sniff(data)
	if got == "" {
		return fmt.Errorf("%w: unrecognised %s payload", ErrCorrupt, format)
	}
	if got != format {
		return fmt.Errorf("%w: expected %s, found %s", ErrMixedFormats, format, got)
	}
	return nil
}

// Concat joins parts in order into one playable stream of format.
func Concat(format string, parts [][]byte) ([]byte, error) {
	if len(parts) == 0 {
		return nil, ErrEmpty
	}
	format = Normalize(format)
	for i, p := range parts {
		if err := Verify(p, format); err != nil {
			return nil, fmt.Errorf("part %d: %w", i, err)
		}
	}

	switch format {
	case FormatWAV:
		return concatWAV(parts)
	case FormatMP3:
		out := append([]byte(nil), parts[0]...)
		for _, p := range parts[1:] {
			out = append(out, stripID3v2(p)...)
		}
		return out, nil
	default:
		// PCM is headerless; chained Ogg streams play back to back.
		return bytes.Join(parts, nil), nil
	}
}

// stripID3v2 drops a leading ID3v2 tag so only the first part carries metadata.
func stripID3v2(data []byte) []byte {
	if len(data) < 10 || !bytes.Equal(data[0:3], []byte("ID3")) {
		return data
	}
	// tag size is a 28-bit syncsafe integer
	size := int(data[6]&0x7F)<<21 | int(data[7]&0x7F)<<14 | int(data[8]&0x7F)<<7 | int(data[9]&0x7F)
	end := 10 + size
	if data[5]&0x10 != 0 {
		end += 10 // footer present
	}
	if end > len(data) {
		return data
	}
	return data[end:]
}

type wavFile struct {
	format []byte
	data   []byte
}

func parseWAV(b []byte) (wavFile, error) {
	var w wavFile
	pos := 12
	for pos+8 <= len(b) {
		id := string(b[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(b[pos+4 : pos+8]))
		body := pos + 8
		end := body + size
		if end > len(b) {
			// streaming encoders may leave the data size unset
			if id == "data" {
				end = len(b)
			} else {
				return w, fmt.Errorf("%w: chunk %q overruns payload", ErrCorrupt, id)
			}
		}
		switch id {
		case "fmt ":
			w.format = b[body:end]
		case "data":
			w.data = b[body:end]
		}
		pos = end + size%2
	}
	if w.format == nil || w.data == nil {
		return w, fmt.Errorf("%w: missing fmt or data chunk", ErrCorrupt)
	}
	return w, nil
}

func concatWAV(parts [][]byte) ([]byte, error) {
	var (
		format []byte
		data   bytes.Buffer
	)
	for i, p := range parts {
		w, err := parseWAV(p)
		if err != nil {
			return nil, fmt.Errorf("part %d: %w", i, err)
		}
		if format == nil {
			format = w.format
		} else if !bytes.Equal(format, w.format) {
			return nil, fmt.Errorf("part %d: %w: sample format differs", i, ErrMixedFormats)
		}
		data.Write(w.data)
	}
	return BuildWAV(format, data.Bytes()), nil
}

// BuildWAV writes a RIFF/WAVE container around a fmt chunk body and sample data.
func BuildWAV(format, samples []byte) []byte {
	var buf bytes.Buffer
	riffSize := 4 + 8 + len(format) + 8 + len(samples)

	buf.WriteString("RIFF")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(riffSize))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(format)))
	buf.Write(format)
	buf.WriteString("data")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(samples)))
	buf.Write(samples)
	return buf.Bytes()
}

// PCMFormat returns a 16-bit little-endian PCM fmt chunk body.
func PCMFormat(sampleRate, channels int) []byte {
	b := make([]byte, 16)
	binary.LittleEndian.PutUint16(b[0:2], 1)
	binary.LittleEndian.PutUint16(b[2:4], uint16(channels))
	binary.LittleEndian.PutUint32(b[4:8], uint32(sampleRate))
	binary.LittleEndian.PutUint32(b[8:12], uint32(sampleRate*channels*2))
	binary.LittleEndian.PutUint16(b[12:14], uint16(channels*2))
	binary.LittleEndian.PutUint16(b[14:16], 16)
	return b
}
