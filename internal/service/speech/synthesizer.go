package speech

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/shankh-ai/shankh/backend/internal/analysis/segment"
	"github.com/shankh-ai/shankh/backend/internal/model/language"
	speechmodel "github.com/shankh-ai/shankh/backend/internal/model/speech"
	"github.com/shankh-ai/shankh/backend/internal/service/fallback"
	"github.com/shankh-ai/shankh/backend/pkg/audio"
)

var (
	ErrEmptyText    = errors.New("speech: empty text")
	ErrMixedFormats = audio.ErrMixedFormats
	ErrCorruptAudio = audio.ErrCorrupt
)

const (
	defaultMaxSegment  = 900
	defaultParallelism = 3
)

// TTSRouter tries synthesis providers in order.
type TTSRouter = fallback.Router[*speechmodel.TTSRequest, *speechmodel.TTSResponse]

// TTSProvider is one synthesis engine.
type TTSProvider = fallback.Provider[*speechmodel.TTSRequest, *speechmodel.TTSResponse]

// NewTTSRouter builds the synthesis router.
func NewTTSRouter(timeout time.Duration, providers ...TTSProvider) *TTSRouter {
	return fallback.New(fallback.Synthesis, timeout, providers...)
}

// ArtifactSaver persists an assembled, verified recording.
type ArtifactSaver interface {
	Save(ctx context.Context, data []byte, format string, segments int) (*speechmodel.Artifact, error)
}

// SynthesizerOptions 语音合成参数。
type SynthesizerOptions struct {
	MaxSegment  int
	Format      string
	Parallelism int
	Speed       float32
	Volume      float32
}

// Synthesizer splits reply text into segments, synthesizes each through the
// router and stores the ordered concatenation as one artifact.
type Synthesizer struct {
	router *TTSRouter
	saver  ArtifactSaver
	opts   SynthesizerOptions
}

func NewSynthesizer(router *TTSRouter, saver ArtifactSaver, opts SynthesizerOptions) *Synthesizer {
	if opts.MaxSegment <= 0 {
		opts.MaxSegment = defaultMaxSegment
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = defaultParallelism
	}
	if opts.Format == "" {
		opts.Format = audio.FormatMP3
	}
	return &Synthesizer{router: router, saver: saver, opts: opts}
}

// Synthesize returns the artifact for text spoken in profile's language.
// If any segment fails, no artifact is produced.
func (s *Synthesizer) Synthesize(ctx context.Context, text string, profile language.Profile) (*speechmodel.Artifact, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}

	segments := segment.Split(text, s.opts.MaxSegment)
	outputs := make([]*speechmodel.TTSResponse, len(segments))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Parallelism)
	for i, seg := range segments {
		g.Go(func() error {
			resp, err := s.router.Invoke(gctx, s.request(seg, profile))
			if err != nil {
				return fmt.Errorf("segment %d: %w", i, err)
			}
			if len(resp.AudioData) == 0 {
				return fmt.Errorf("segment %d: %w", i, audio.ErrEmpty)
			}
			outputs[i] = resp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	format := audio.Normalize(outputs[0].Format)
	if format == "" {
		format = audio.Sniff(outputs[0].AudioData)
	}
	parts := make([][]byte, len(outputs))
	for i, out := range outputs {
		if f := audio.Normalize(out.Format); f != "" && f != format {
			return nil, fmt.Errorf("segment %d: %w: %s after %s", i, ErrMixedFormats, f, format)
		}
		parts[i] = out.AudioData
	}

	data, err := audio.Concat(format, parts)
	if err != nil {
		return nil, fmt.Errorf("assemble audio: %w", err)
	}

	art, err := s.saver.Save(ctx, data, format, len(segments))
	if err != nil {
		return nil, err
	}
	if len(segments) > 1 {
		log.Printf("[tts] assembled %d segments into %s (%d bytes)", len(segments), art.Handle, art.Size)
	}
	return art, nil
}

func (s *Synthesizer) request(text string, profile language.Profile) *speechmodel.TTSRequest {
	return &speechmodel.TTSRequest{
		Text:     text,
		Voice:    profile.VoiceID,
		Speed:    s.opts.Speed,
		Volume:   s.opts.Volume,
		Format:   s.opts.Format,
		Language: profile.TTSLocale,
		Voices:   map[string]string{"openai": profile.OpenAIVoice},
	}
}
