package speech

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// Pipeline composes extraction, detection, caching and synthesis. A request
// moves through the stages
//
//	received -> extracted -> language-resolved -> key-computed ->
//	cache-checked -> (hit -> done) | (miss -> synthesizing -> cached -> done)
//
// and any stage failure transitions to failed with the originating error
// kind attached. Only backend synthesis is retried, inside the Selector.
type Pipeline struct {
	extractor Extractor
	detector  Detector
	store     Store // nil when the cache is unavailable; pipeline degrades
	backends  Selector
	cfg       Config

	logger *log.Logger
}

// NewPipeline wires the pipeline from its collaborators. A nil store is
// accepted and means every request synthesizes uncached.
func NewPipeline(cfg Config, extractor Extractor, detector Detector, store Store, backends Selector) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if extractor == nil || detector == nil || backends == nil {
		return nil, fmt.Errorf("%w: pipeline requires extractor, detector and selector", ErrInvalidConfig)
	}
	if store == nil {
		log.Warn("audio cache unavailable, synthesis results will not be cached")
	}
	return &Pipeline{
		extractor: extractor,
		detector:  detector,
		store:     store,
		backends:  backends,
		cfg:       cfg,
		logger:    log.Default().WithPrefix("speech"),
	}, nil
}

// Extract runs the extraction dispatcher and normalizes its output.
func (p *Pipeline) Extract(ctx context.Context, in Input) ExtractionResult {
	res := p.extractor.Extract(ctx, in)
	if res.Err != nil {
		return res
	}
	res.Text = NormalizeText(res.Text)
	return res
}

// DetectLanguage guesses the language of text. It never fails: text without
// signal comes back as ("unknown", 0).
func (p *Pipeline) DetectLanguage(text string) (string, float64) {
	return p.detector.Detect(text)
}

// Synthesize turns a request into a cached audio artifact reference. The
// request's language may be empty, in which case it is detected and, below
// the confidence threshold, replaced with the configured default.
func (p *Pipeline) Synthesize(ctx context.Context, req Request) (*Result, error) {
	id := uuid.NewString()[:8]
	logger := p.logger.With("request", id)
	stage := StageReceived

	text := NormalizeText(req.Text)
	if VisibleLength(text) < 2 {
		return nil, NewPipelineError(stage, ErrEmptyInput)
	}
	if len([]rune(text)) > p.cfg.MaxTextLength {
		return nil, NewPipelineError(stage, ErrInputTooLarge).
			WithContext("length", len([]rune(text))).
			WithContext("max", p.cfg.MaxTextLength)
	}

	mode := req.Mode
	if mode == "" {
		mode = Mode(p.cfg.DefaultMode)
	}
	if !mode.Valid() {
		return nil, NewPipelineError(stage, fmt.Errorf("%w: unknown mode %q", ErrInvalidConfig, req.Mode))
	}

	language := req.Language
	if language == "" {
		detected, confidence := p.detector.Detect(text)
		if detected == "unknown" || confidence < p.cfg.ConfidenceThreshold {
			logger.Debug("language detection inconclusive, using default",
				"detected", detected, "confidence", confidence, "default", p.cfg.DefaultLanguage)
			language = p.cfg.DefaultLanguage
		} else {
			language = detected
		}
	}
	stage = StageLanguageResolved

	text = PrepareForSynthesis(text, language)

	backend, ok := p.backends.BackendFor(mode)
	if !ok {
		return nil, NewPipelineError(stage, ErrSynthesisUnavailable).WithContext("mode", mode)
	}
	key := CacheKey(text, language, mode, backend.Name())

	if p.store == nil {
		return p.synthesizeUncached(ctx, logger, text, language, mode)
	}

	entry, hit, err := p.store.GetOrCreate(ctx, key, func(ctx context.Context) (*Audio, error) {
		audio, _, synthErr := p.backends.Synthesize(ctx, text, language, mode)
		return audio, synthErr
	})
	if err != nil {
		if IsFatal(err) {
			logger.Error("synthesis failed", "stage", StageSynthesizing, "language", language, "mode", mode, "err", err)
			return nil, NewPipelineError(StageSynthesizing, err)
		}
		// Cache trouble is not fatal: serve the request uncached.
		logger.Warn("cache degraded, serving uncached", "err", err)
		return p.synthesizeUncached(ctx, logger, text, language, mode)
	}

	// A served backend other than the one selected for the mode means the
	// request was degraded to the offline fallback.
	degraded := entry.Backend != backend.Name()

	logger.Info("request done",
		"language", language, "mode", mode, "cached", hit, "backend", entry.Backend, "bytes", entry.Size)
	return &Result{
		AudioRef: entry.Path,
		Cached:   hit,
		Backend:  entry.Backend,
		Language: language,
		Degraded: degraded,
	}, nil
}

// Process runs the full pipeline over raw input: extract, detect, synthesize.
func (p *Pipeline) Process(ctx context.Context, in Input, language string, mode Mode) (*Result, error) {
	var text string
	if in.Text != "" && in.Data == nil {
		text = in.Text
	} else {
		res := p.Extract(ctx, in)
		if res.Err != nil {
			return nil, NewPipelineError(StageExtracted, res.Err).WithContext("media_type", res.MediaType)
		}
		text = res.Text
	}
	return p.Synthesize(ctx, Request{Text: text, Language: language, Mode: mode})
}

func (p *Pipeline) synthesizeUncached(ctx context.Context, logger *log.Logger, text, language string, mode Mode) (*Result, error) {
	audio, degraded, err := p.backends.Synthesize(ctx, text, language, mode)
	if err != nil {
		return nil, NewPipelineError(StageSynthesizing, err)
	}
	path, err := writeTempArtifact(audio)
	if err != nil {
		return nil, NewPipelineError(StageSynthesizing, fmt.Errorf("writing artifact: %w", err))
	}
	logger.Info("request done uncached",
		"language", language, "mode", mode, "backend", audio.Backend, "bytes", len(audio.Data))
	return &Result{
		AudioRef: path,
		Cached:   false,
		Backend:  audio.Backend,
		Language: language,
		Degraded: degraded,
	}, nil
}
