package speech

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shankh-ai/shankh/backend/internal/model/language"
	speechmodel "github.com/shankh-ai/shankh/backend/internal/model/speech"
	"github.com/shankh-ai/shankh/backend/internal/service/fallback"
	"github.com/shankh-ai/shankh/backend/pkg/audio"
)

type fakeSaver struct {
	mu     sync.Mutex
	data   []byte
	format string
	saved  int
}

func (s *fakeSaver) Save(_ context.Context, data []byte, format string, segments int) (*speechmodel.Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := audio.Verify(data, format); err != nil {
		return nil, err
	}
	s.data = append([]byte(nil), data...)
	s.format = format
	s.saved++
	return &speechmodel.Artifact{Handle: fmt.Sprintf("h-%d", s.saved), Format: format, Size: int64(len(data)), Segments: segments}, nil
}

// mp3Like returns bytes that start with an MPEG frame sync.
func mp3Like(text string) []byte {
	return append([]byte{0xFF, 0xFB}, text...)
}

func fakeTTS(name string, calls *atomic.Int32, fn func(req *speechmodel.TTSRequest) (*speechmodel.TTSResponse, error)) TTSProvider {
	return fallback.Func(name, func(ctx context.Context, req *speechmodel.TTSRequest) (*speechmodel.TTSResponse, error) {
		calls.Add(1)
		return fn(req)
	})
}

func englishProfile() language.Profile {
	return language.NewMemoryStore(language.Seed()).Resolve("en")
}

// longReply builds n sentences of exactly 100 characters each, including the
// separating space.
func longReply(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		s := fmt.Sprintf("Sentence %02d explains how a fixed deposit earns interest", i)
		s += strings.Repeat(" x", (98-len(s))/2)
		if len(s) < 98 {
			s += "y"
		}
		b.WriteString(s + ". ")
	}
	return strings.TrimSpace(b.String())
}

func TestSynthesizeEmptyTextMakesNoCall(t *testing.T) {
	var calls atomic.Int32
	router := NewTTSRouter(time.Second, fakeTTS("fake", &calls, func(req *speechmodel.TTSRequest) (*speechmodel.TTSResponse, error) {
		return &speechmodel.TTSResponse{AudioData: mp3Like(req.Text), Format: "mp3"}, nil
	}))
	saver := &fakeSaver{}
	synth := NewSynthesizer(router, saver, SynthesizerOptions{MaxSegment: 900})

	for _, text := range []string{"", "   ", "\n\t "} {
		if _, err := synth.Synthesize(context.Background(), text, englishProfile()); !errors.Is(err, ErrEmptyText) {
			t.Fatalf("Synthesize(%q) err = %v, want ErrEmptyText", text, err)
		}
	}
	if calls.Load() != 0 || saver.saved != 0 {
		t.Fatalf("expected no provider calls, got %d calls and %d saves", calls.Load(), saver.saved)
	}
}

func TestSynthesizeLongReplyAssemblesSegmentsInOrder(t *testing.T) {
	text := longReply(24)
	if len(text) != 2399 {
		t.Fatalf("test reply has %d chars", len(text))
	}

	var (
		calls atomic.Int32
		mu    sync.Mutex
		seen  = map[string][]byte{}
	)
	router := NewTTSRouter(time.Second, fakeTTS("fake", &calls, func(req *speechmodel.TTSRequest) (*speechmodel.TTSResponse, error) {
		// make the first segment finish last
		if strings.HasPrefix(req.Text, "Sentence 00") {
			time.Sleep(30 * time.Millisecond)
		}
		out := mp3Like(req.Text)
		mu.Lock()
		seen[req.Text] = out
		mu.Unlock()
		return &speechmodel.TTSResponse{AudioData: out, Format: "mp3"}, nil
	}))
	saver := &fakeSaver{}
	synth := NewSynthesizer(router, saver, SynthesizerOptions{MaxSegment: 900})

	art, err := synth.Synthesize(context.Background(), text, englishProfile())
	if err != nil {
		t.Fatalf("Synthesize err: %v", err)
	}
	if n := calls.Load(); n != 3 {
		t.Fatalf("expected 3 synthesis calls, got %d", n)
	}
	if art.Segments != 3 || saver.saved != 1 {
		t.Fatalf("unexpected artifact %+v (saves %d)", art, saver.saved)
	}

	var want []byte
	total := 0
	for _, seg := range []string{"Sentence 00", "Sentence 09", "Sentence 18"} {
		found := false
		for segText, out := range seen {
			if strings.HasPrefix(segText, seg) {
				want = append(want, out...)
				total += len(out)
				found = true
			}
		}
		if !found {
			t.Fatalf("no segment starting with %q", seg)
		}
	}
	if !bytes.Equal(saver.data, want) {
		t.Fatal("assembled audio is not the in-order concatenation of segment outputs")
	}
	if int(art.Size) != total {
		t.Fatalf("artifact size %d, want %d", art.Size, total)
	}
}

func TestSynthesizeSegmentFailureFailsArtifact(t *testing.T) {
	var calls atomic.Int32
	boom := errors.New("engine down")
	router := NewTTSRouter(time.Second, fakeTTS("fake", &calls, func(req *speechmodel.TTSRequest) (*speechmodel.TTSResponse, error) {
		if strings.HasPrefix(req.Text, "Sentence 09") {
			return nil, boom
		}
		return &speechmodel.TTSResponse{AudioData: mp3Like(req.Text), Format: "mp3"}, nil
	}))
	saver := &fakeSaver{}
	synth := NewSynthesizer(router, saver, SynthesizerOptions{MaxSegment: 900})

	_, err := synth.Synthesize(context.Background(), longReply(24), englishProfile())
	if !errors.Is(err, boom) || !errors.Is(err, fallback.ErrExhausted) {
		t.Fatalf("expected wrapped provider failure, got %v", err)
	}
	if !strings.Contains(err.Error(), "segment 1") {
		t.Fatalf("error should name the segment: %v", err)
	}
	if saver.saved != 0 {
		t.Fatal("no artifact should be saved when a segment fails")
	}
}

func TestSynthesizeFallsBackPerSegment(t *testing.T) {
	var primaryCalls, backupCalls atomic.Int32
	primary := fakeTTS("primary", &primaryCalls, func(req *speechmodel.TTSRequest) (*speechmodel.TTSResponse, error) {
		return nil, errors.New("quota")
	})
	backup := fakeTTS("openai", &backupCalls, func(req *speechmodel.TTSRequest) (*speechmodel.TTSResponse, error) {
		if req.VoiceFor("openai") != "nova" {
			return nil, fmt.Errorf("unexpected voice %q", req.VoiceFor("openai"))
		}
		return &speechmodel.TTSResponse{AudioData: mp3Like(req.Text), Format: "mp3"}, nil
	})
	synth := NewSynthesizer(NewTTSRouter(time.Second, primary, backup), &fakeSaver{}, SynthesizerOptions{})

	if _, err := synth.Synthesize(context.Background(), "Short reply.", englishProfile()); err != nil {
		t.Fatalf("Synthesize err: %v", err)
	}
	if primaryCalls.Load() != 1 || backupCalls.Load() != 1 {
		t.Fatalf("calls primary=%d backup=%d", primaryCalls.Load(), backupCalls.Load())
	}
}

func TestSynthesizeRejectsMixedFormats(t *testing.T) {
	var calls atomic.Int32
	router := NewTTSRouter(time.Second, fakeTTS("fake", &calls, func(req *speechmodel.TTSRequest) (*speechmodel.TTSResponse, error) {
		if strings.HasPrefix(req.Text, "Sentence 00") {
			return &speechmodel.TTSResponse{AudioData: mp3Like(req.Text), Format: "mp3"}, nil
		}
		return &speechmodel.TTSResponse{AudioData: append([]byte("OggS"), req.Text...), Format: "ogg_opus"}, nil
	}))
	synth := NewSynthesizer(router, &fakeSaver{}, SynthesizerOptions{MaxSegment: 900})

	if _, err := synth.Synthesize(context.Background(), longReply(12), englishProfile()); !errors.Is(err, ErrMixedFormats) {
		t.Fatalf("expected ErrMixedFormats, got %v", err)
	}
}

func TestSynthesizeRejectsEmptySegmentAudio(t *testing.T) {
	var calls atomic.Int32
	router := NewTTSRouter(time.Second, fakeTTS("fake", &calls, func(req *speechmodel.TTSRequest) (*speechmodel.TTSResponse, error) {
		return &speechmodel.TTSResponse{Format: "mp3"}, nil
	}))
	saver := &fakeSaver{}
	synth := NewSynthesizer(router, saver, SynthesizerOptions{})

	if _, err := synth.Synthesize(context.Background(), "Hello.", englishProfile()); !errors.Is(err, audio.ErrEmpty) {
		t.Fatalf("expected audio.ErrEmpty, got %v", err)
	}
	if saver.saved != 0 {
		t.Fatal("empty audio must not be saved")
	}
}
