package speech

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Volcengine 语音 WebSocket 二进制帧：4 字节头 + 可选序号/事件 + 负载长度 + 负载。
const frameVersion = 0b0001

type frameType uint8

const (
	frameFullClient  frameType = 0b0001
	frameAudioClient frameType = 0b0010
	frameFullServer  frameType = 0b1001
	frameAudioServer frameType = 0b1011
	frameError       frameType = 0b1111
)

type frameFlags uint8

const (
	flagNoSequence   frameFlags = 0b0000
	flagSequence     frameFlags = 0b0001
	flagLastNoSeq    frameFlags = 0b0010
	flagLastSequence frameFlags = 0b0011
	flagEvent        frameFlags = 0b0100
)

const (
	serialNone uint8 = 0b0000
	serialJSON uint8 = 0b0001
)

const (
	compressNone uint8 = 0b0000
	compressGzip uint8 = 0b0001
)

type frameEvent int32

const (
	eventStartConnection    frameEvent = 1
	eventFinishConnection   frameEvent = 2
	eventConnectionStarted  frameEvent = 50
	eventConnectionFailed   frameEvent = 51
	eventConnectionFinished frameEvent = 52
	eventSessionFinished    frameEvent = 152
)

var errUnsupportedVersion = errors.New("unsupported frame protocol version")

type frame struct {
	kind        frameType
	flags       frameFlags
	serial      uint8
	compression uint8
	sequence    int32
	event       frameEvent
	sessionID   string
	connectID   string
	errorCode   uint32
	payload     []byte
}

func (f *frame) hasSequence() bool {
	s := f.flags & 0b0011
	return s == flagSequence || s == flagLastSequence
}

func (f *frame) isLast() bool {
	s := f.flags & 0b0011
	return s == flagLastNoSeq || s == flagLastSequence
}

func (f *frame) hasEvent() bool {
	return f.flags&flagEvent != 0
}

// body returns the payload with compression removed.
func (f *frame) body() ([]byte, error) {
	switch f.compression {
	case compressNone:
		return f.payload, nil
	case compressGzip:
		return gunzip(f.payload)
	default:
		return nil, fmt.Errorf("unsupported compression method: %d", f.compression)
	}
}

func eventCarriesSession(e frameEvent) bool {
	switch e {
	case eventStartConnection, eventFinishConnection,
		eventConnectionStarted, eventConnectionFailed, eventConnectionFinished:
		return false
	}
	return true
}

func eventCarriesConnect(e frameEvent) bool {
	switch e {
	case eventConnectionStarted, eventConnectionFailed, eventConnectionFinished:
		return true
	}
	return false
}

func (f *frame) encode() []byte {
	buf := make([]byte, 0, 16+len(f.payload))
	buf = append(buf,
		frameVersion<<4|0b0001,
		uint8(f.kind)<<4|uint8(f.flags),
		f.serial<<4|f.compression,
		0x00,
	)
	if f.hasSequence() {
		buf = binary.BigEndian.AppendUint32(buf, uint32(f.sequence))
	}
	if f.hasEvent() {
		buf = binary.BigEndian.AppendUint32(buf, uint32(f.event))
		if eventCarriesSession(f.event) {
			buf = appendSized(buf, f.sessionID)
		}
		if eventCarriesConnect(f.event) {
			buf = appendSized(buf, f.connectID)
		}
	}
	if f.kind == frameError {
		buf = binary.BigEndian.AppendUint32(buf, f.errorCode)
	}
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(f.payload)))
	return append(buf, f.payload...)
}

func appendSized(buf []byte, s string) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(s)))
	return append(buf, s...)
}

func decodeFrame(data []byte) (*frame, error) {
	r := bytes.NewReader(data)

	var head [4]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return nil, fmt.Errorf("read frame header: %w", err)
	}
	if head[0]>>4 != frameVersion {
		return nil, fmt.Errorf("%w: %d", errUnsupportedVersion, head[0]>>4)
	}

	f := &frame{
		kind:        frameType(head[1] >> 4),
		flags:       frameFlags(head[1] & 0x0F),
		serial:      head[2] >> 4,
		compression: head[2] & 0x0F,
	}

	// header size is counted in 4-byte words
	if extra := int(head[0]&0x0F)*4 - 4; extra > 0 {
		if _, err := r.Seek(int64(extra), io.SeekCurrent); err != nil {
			return nil, fmt.Errorf("skip extended header: %w", err)
		}
	}

	if f.hasSequence() {
		v, err := readUint32(r, "sequence")
		if err != nil {
			return nil, err
		}
		f.sequence = int32(v)
	}

	if f.hasEvent() {
		v, err := readUint32(r, "event")
		if err != nil {
			return nil, err
		}
		f.event = frameEvent(int32(v))
		if eventCarriesSession(f.event) {
			if f.sessionID, err = readSized(r, "session id"); err != nil {
				return nil, err
			}
		}
		if eventCarriesConnect(f.event) {
			if f.connectID, err = readSized(r, "connect id"); err != nil {
				return nil, err
			}
		}
	}

	if f.kind == frameError {
		code, err := readUint32(r, "error code")
		if err != nil {
			return nil, err
		}
		f.errorCode = code
	}

	size, err := readUint32(r, "payload size")
	if err != nil {
		return nil, err
	}
	if int64(size) > int64(r.Len()) {
		return nil, fmt.Errorf("payload truncated: want %d bytes, have %d", size, r.Len())
	}
	if size > 0 {
		f.payload = make([]byte, size)
		_, _ = io.ReadFull(r, f.payload)
	}
	return f, nil
}

func readUint32(r io.Reader, what string) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, fmt.Errorf("read %s: %w", what, err)
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func readSized(r *bytes.Reader, what string) (string, error) {
	n, err := readUint32(r, what+" size")
	if err != nil {
		return "", err
	}
	if int64(n) > int64(r.Len()) {
		return "", fmt.Errorf("%s truncated", what)
	}
	b := make([]byte, n)
	_, _ = io.ReadFull(r, b)
	return string(b), nil
}

// fullClientFrame carries a JSON request.
func fullClientFrame(payload []byte, compression uint8) *frame {
	return &frame{kind: frameFullClient, serial: serialJSON, compression: compression, payload: payload}
}

// audioFrame carries one audio chunk. The last chunk of a sequenced stream
// uses a negative sequence number.
func audioFrame(chunk []byte, sequence int32, last bool, compression uint8) *frame {
	f := &frame{kind: frameAudioClient, serial: serialNone, compression: compression, sequence: sequence, payload: chunk}
	switch {
	case last && sequence != 0:
		f.flags = flagLastSequence
		f.sequence = -sequence
	case last:
		f.flags = flagLastNoSeq
	case sequence > 0:
		f.flags = flagSequence
	default:
		f.flags = flagNoSequence
	}
	return f
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, fmt.Errorf("gzip write failed: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("gzip close failed: %w", err)
	}
	return buf.Bytes(), nil
}

func gunzip(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("gzip reader creation failed: %w", err)
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("gzip read failed: %w", err)
	}
	return out, nil
}
