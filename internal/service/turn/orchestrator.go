package turn

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/shankh-ai/shankh/backend/internal/analysis/sanitize"
	"github.com/shankh-ai/shankh/backend/internal/analysis/symbols"
	chatmodel "github.com/shankh-ai/shankh/backend/internal/model/chat"
	"github.com/shankh-ai/shankh/backend/internal/model/knowledge"
	"github.com/shankh-ai/shankh/backend/internal/model/language"
	"github.com/shankh-ai/shankh/backend/internal/model/market"
	speechmodel "github.com/shankh-ai/shankh/backend/internal/model/speech"
	"github.com/shankh-ai/shankh/backend/internal/service/ai"
	chatservice "github.com/shankh-ai/shankh/backend/internal/service/chat"
	"github.com/shankh-ai/shankh/backend/internal/service/delivery"
)

// Retriever finds passages relevant to a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int, threshold float64, languageHint string) ([]knowledge.Passage, error)
}

// QuoteFetcher looks up live quotes for symbols.
type QuoteFetcher interface {
	Fetch(ctx context.Context, symbols []string) ([]market.Quote, error)
}

// Generator produces the assistant reply; *ai.Router satisfies it.
type Generator interface {
	Invoke(ctx context.Context, req *ai.Request) (*ai.Reply, error)
}

// Synthesizer turns reply text into a stored audio artifact.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, profile language.Profile) (*speechmodel.Artifact, error)
}

// Transcriber turns recorded speech into text.
type Transcriber interface {
	Transcribe(ctx context.Context, req *speechmodel.ASRRequest) (*speechmodel.Transcript, error)
}

// Publisher mirrors results to live connections.
type Publisher interface {
	Push(ctx context.Context, sessionID string, env delivery.Envelope) int
}

// Languages resolves a hint to a supported profile.
type Languages interface {
	Resolve(code string) language.Profile
}

// Deps are the collaborators of an Orchestrator. Sessions, Generator and
// Languages are required; the rest may be nil.
type Deps struct {
	Sessions    chatservice.Store
	Generator   Generator
	Languages   Languages
	Retriever   Retriever
	Quotes      QuoteFetcher
	Symbols     *symbols.Detector
	Synthesizer Synthesizer
	Transcriber Transcriber
	Publisher   Publisher
}

// Options 单轮对话的检索参数与超时预算。
type Options struct {
	TopK                 int
	Threshold            float64
	HistoryWindow        int
	Timeout              time.Duration
	GenerationTimeout    time.Duration
	SynthesisTimeout     time.Duration
	TranscriptionTimeout time.Duration
	// AudioURLPrefix is joined with an artifact handle to build AudioURL.
	AudioURLPrefix string
}

func (o Options) normalized() Options {
	if o.TopK <= 0 {
		o.TopK = 5
	}
	if o.HistoryWindow <= 0 {
		o.HistoryWindow = 10
	}
	if o.Timeout <= 0 {
		o.Timeout = 60 * time.Second
	}
	if o.GenerationTimeout <= 0 || o.GenerationTimeout > o.Timeout {
		o.GenerationTimeout = o.Timeout
	}
	if o.SynthesisTimeout <= 0 {
		o.SynthesisTimeout = 25 * time.Second
	}
	if o.TranscriptionTimeout <= 0 {
		o.TranscriptionTimeout = 30 * time.Second
	}
	if o.AudioURLPrefix == "" {
		o.AudioURLPrefix = "/api/audio/"
	}
	return o
}

// Orchestrator runs turns. Turns for one session are processed in the order
// they acquire the session's slot; different sessions run in parallel.
type Orchestrator struct {
	deps Deps
	opts Options
	now  func() time.Time
}

func New(deps Deps, opts Options) *Orchestrator {
	if deps.Symbols == nil {
		deps.Symbols = symbols.New(5)
	}
	return &Orchestrator{deps: deps, opts: opts.normalized(), now: time.Now}
}

// HandleTurn answers a text turn.
func (o *Orchestrator) HandleTurn(ctx context.Context, sessionID, text, languageHint string) (*Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyInput
	}

	parent := ctx
	ctx, cancel := context.WithTimeout(ctx, o.opts.Timeout)
	defer cancel()

	release, err := o.claim(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return o.answer(parent, ctx, sessionID, text, languageHint, nil, release)
}

// HandleAudioTurn transcribes audio and answers it as a text turn. A
// low-confidence transcript is returned for confirmation instead.
func (o *Orchestrator) HandleAudioTurn(ctx context.Context, sessionID string, audioData []byte, format, languageHint string) (*Result, error) {
	if len(audioData) == 0 {
		return nil, ErrEmptyInput
	}

	parent := ctx
	ctx, cancel := context.WithTimeout(ctx, o.opts.Timeout)
	defer cancel()

	release, err := o.claim(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if o.deps.Transcriber == nil {
		release()
		return nil, fmt.Errorf("%w: no transcription providers configured", ErrTranscriptionFailed)
	}

	hint := strings.TrimSpace(languageHint)
	asrLocale := ""
	if hint != "" {
		asrLocale = o.deps.Languages.Resolve(hint).ASRLocale
	}

	tctx, tcancel := context.WithTimeout(ctx, o.opts.TranscriptionTimeout)
	transcript, err := o.deps.Transcriber.Transcribe(tctx, &speechmodel.ASRRequest{
		SessionID: sessionID,
		AudioData: audioData,
		Format:    format,
		Language:  asrLocale,
	})
	tcancel()
	if err != nil {
		release()
		log.Printf("[turn] transcription failed session=%s: %v", sessionID, err)
		return nil, fmt.Errorf("%w: %w", ErrTranscriptionFailed, err)
	}

	if hint == "" {
		hint = transcript.Language
	}

	if transcript.NeedsConfirmation {
		release()
		profile := o.deps.Languages.Resolve(hint)
		result := &Result{
			SessionID:  sessionID,
			Status:     StatusConfirmationRequired,
			Query:      transcript.Text,
			Citations:  []knowledge.Citation{},
			Language:   profile.Code,
			Transcript: transcript,
			CreatedAt:  o.now(),
		}
		log.Printf("[turn] transcript needs confirmation session=%s confidence=%.2f", sessionID, transcript.Confidence)
		o.publish(parent, result)
		return result, nil
	}

	return o.answer(parent, ctx, sessionID, transcript.Text, hint, transcript, release)
}

// claim makes sure the session is stored and takes its turn slot. Both happen
// before any external call.
func (o *Orchestrator) claim(ctx context.Context, sessionID string) (func(), error) {
	if _, err := o.deps.Sessions.Ensure(ctx, sessionID); err != nil {
		return nil, storeError(err)
	}
	release, err := o.deps.Sessions.Acquire(ctx, sessionID)
	if err != nil {
		// 排队等待期间超时或取消，不算存储故障
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return nil, fmt.Errorf("turn: waiting for session %s: %w", sessionID, err)
		}
		return nil, storeError(err)
	}
	return release, nil
}

func storeError(err error) error {
	if errors.Is(err, chatservice.ErrInvalidSession) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrSessionStore, err)
}

// answer runs the text pipeline while holding the session slot. The slot is
// released once the assistant turn is stored, before synthesis starts.
func (o *Orchestrator) answer(parent, ctx context.Context, sessionID, text, languageHint string, transcript *speechmodel.Transcript, release func()) (*Result, error) {
	var once sync.Once
	unlock := func() { once.Do(release) }
	defer unlock()

	started := o.now()
	profile := o.resolveLanguage(languageHint, text)

	history, err := o.deps.Sessions.History(ctx, sessionID)
	if err != nil && !errors.Is(err, chatservice.ErrSessionNotFound) {
		return nil, storeError(err)
	}
	if n := len(history); n > o.opts.HistoryWindow {
		history = history[n-o.opts.HistoryWindow:]
	}

	detection := o.deps.Symbols.Detect(text)

	if _, err := o.deps.Sessions.Append(ctx, sessionID, chatmodel.Turn{
		Role:     chatmodel.RoleUser,
		Content:  text,
		Language: profile.Code,
		Symbols:  detection.Symbols,
	}); err != nil {
		return nil, storeError(err)
	}

	passages, quotes, warnings := o.gather(ctx, text, profile, detection.Symbols)

	genCtx, genCancel := context.WithTimeout(ctx, o.opts.GenerationTimeout)
	reply, err := o.deps.Generator.Invoke(genCtx, &ai.Request{
		SessionID: sessionID,
		Query:     text,
		Language:  profile,
		Passages:  passages,
		Quotes:    quotes,
		History:   history,
	})
	genCancel()
	if err != nil {
		log.Printf("[turn] generation failed session=%s: %v", sessionID, err)
		return nil, fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}

	replyLang := profile.Code
	if reply.Language != "" {
		replyLang = language.Normalize(reply.Language)
	}
	citations := reply.Citations
	if citations == nil {
		citations = []knowledge.Citation{}
	}

	stored, err := o.deps.Sessions.Append(ctx, sessionID, chatmodel.Turn{
		Role:      chatmodel.RoleAssistant,
		Content:   reply.Text,
		Language:  replyLang,
		Citations: citations,
		Symbols:   detection.Symbols,
	})
	if err != nil {
		return nil, storeError(err)
	}
	unlock()

	result := &Result{
		SessionID:  sessionID,
		TurnID:     stored.ID,
		Status:     StatusCompleted,
		Query:      text,
		Text:       reply.Text,
		Citations:  citations,
		FollowUps:  reply.FollowUps,
		Language:   replyLang,
		Quotes:     quotes,
		Transcript: transcript,
		Provider:   reply.Provider,
		Warnings:   warnings,
		CreatedAt:  stored.CreatedAt,
	}

	if art := o.synthesize(parent, sessionID, reply.Text, o.deps.Languages.Resolve(replyLang)); art != nil {
		result.Audio = art
		result.AudioURL = o.opts.AudioURLPrefix + art.Handle
	}

	log.Printf("[turn] session=%s provider=%s citations=%d audio=%t took=%s",
		sessionID, reply.Provider, len(citations), result.Audio != nil, o.now().Sub(started).Round(time.Millisecond))

	o.publish(parent, result)
	return result, nil
}

// gather runs retrieval and the quote lookup concurrently. Either may fail
// without failing the turn.
func (o *Orchestrator) gather(ctx context.Context, text string, profile language.Profile, syms []string) ([]knowledge.Passage, []market.Quote, []string) {
	var (
		wg       sync.WaitGroup
		passages []knowledge.Passage
		quotes   []market.Quote
		retErr   error
		quoteErr error
	)

	if o.deps.Retriever != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			passages, retErr = o.deps.Retriever.Retrieve(ctx, text, o.opts.TopK, o.opts.Threshold, profile.Code)
		}()
	}
	if o.deps.Quotes != nil && len(syms) > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			quotes, quoteErr = o.deps.Quotes.Fetch(ctx, syms)
		}()
	}
	wg.Wait()

	var warnings []string
	if retErr != nil {
		log.Printf("[turn] retrieval degraded: %v", retErr)
		passages = nil
		warnings = append(warnings, WarningRetrieval)
	}
	if quoteErr != nil {
		log.Printf("[turn] market lookup degraded for %v: %v", syms, quoteErr)
		quotes = nil
		warnings = append(warnings, WarningMarket)
	}
	return passages, quotes, warnings
}

// synthesize never fails the turn. It runs on its own budget so the turn
// deadline does not cut it short.
func (o *Orchestrator) synthesize(parent context.Context, sessionID, text string, profile language.Profile) *speechmodel.Artifact {
	if o.deps.Synthesizer == nil {
		return nil
	}
	spoken := sanitize.Clean(text)
	if spoken == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), o.opts.SynthesisTimeout)
	defer cancel()

	art, err := o.deps.Synthesizer.Synthesize(ctx, spoken, profile)
	if err != nil {
		log.Printf("[turn] synthesis failed session=%s: %v", sessionID, err)
		return nil
	}
	return art
}

func (o *Orchestrator) publish(parent context.Context, result *Result) {
	if o.deps.Publisher == nil {
		return
	}
	env := delivery.NewEnvelope(delivery.TypeTurnResult, result.SessionID, result)
	o.deps.Publisher.Push(context.WithoutCancel(parent), result.SessionID, env)
}

func (o *Orchestrator) resolveLanguage(hint, text string) language.Profile {
	if strings.TrimSpace(hint) == "" {
		hint = language.Detect(text)
	}
	return o.deps.Languages.Resolve(hint)
}
