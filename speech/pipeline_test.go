package speech_test

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/readaloud/readaloud/speech"
	"github.com/readaloud/readaloud/speech/backends"
	"github.com/readaloud/readaloud/speech/backends/mock"
	"github.com/readaloud/readaloud/speech/cache"
)

// stubExtractor passes input text through untouched.
type stubExtractor struct{}

func (stubExtractor) Extract(_ context.Context, in speech.Input) speech.ExtractionResult {
	if in.Text != "" {
		return speech.ExtractionResult{Text: in.Text, MediaType: "text/plain"}
	}
	return speech.ExtractionResult{Text: string(in.Data), MediaType: "text/plain"}
}

// stubDetector returns a fixed guess.
type stubDetector struct {
	language   string
	confidence float64
}

func (d stubDetector) Detect(string) (string, float64) {
	return d.language, d.confidence
}

func testStore(t *testing.T) *cache.Store {
	t.Helper()
	store, err := cache.Open(speech.CacheConfig{
		Dir:             t.TempDir(),
		MaxBytes:        1 << 20,
		MaxAge:          time.Hour,
		CleanupInterval: time.Minute,
	})
	if err != nil {
		t.Fatalf("opening test store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testPipeline(t *testing.T, store speech.Store, online, offline speech.Backend) *speech.Pipeline {
	t.Helper()
	p, err := speech.NewPipeline(speech.DefaultConfig(),
		stubExtractor{},
		stubDetector{language: "en", confidence: 0.9},
		store,
		backends.NewSelector(online, offline),
	)
	if err != nil {
		t.Fatalf("building pipeline: %v", err)
	}
	return p
}

// TestSynthesizeWritesArtifact verifies the basic happy path: a request
// yields a readable audio artifact attributed to the online backend.
func TestSynthesizeWritesArtifact(t *testing.T) {
	online := mock.New().WithName("gtts")
	p := testPipeline(t, testStore(t), online, mock.New().WithName("espeak"))

	res, err := p.Synthesize(context.Background(), speech.Request{Text: "hello world", Language: "en"})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if res.Cached {
		t.Error("first synthesis should not be a cache hit")
	}
	if res.Backend != "gtts" {
		t.Errorf("Backend = %q, want gtts", res.Backend)
	}
	if res.Language != "en" {
		t.Errorf("Language = %q, want en", res.Language)
	}
	if res.Degraded {
		t.Error("healthy online backend should not report degraded")
	}

	data, err := os.ReadFile(res.AudioRef)
	if err != nil {
		t.Fatalf("reading artifact: %v", err)
	}
	if !strings.Contains(string(data), "hello world") {
		t.Errorf("artifact %q does not carry the synthesized text", data)
	}
}

// TestSynthesizeCacheHit verifies the second identical request is served
// from the cache without another backend call.
func TestSynthesizeCacheHit(t *testing.T) {
	online := mock.New().WithName("gtts")
	p := testPipeline(t, testStore(t), online, mock.New().WithName("espeak"))
	req := speech.Request{Text: "hello again", Language: "en"}

	first, err := p.Synthesize(context.Background(), req)
	if err != nil {
		t.Fatalf("first Synthesize: %v", err)
	}
	second, err := p.Synthesize(context.Background(), req)
	if err != nil {
		t.Fatalf("second Synthesize: %v", err)
	}

	if !second.Cached {
		t.Error("second identical request should hit the cache")
	}
	if second.AudioRef != first.AudioRef {
		t.Errorf("cache hit should return the same artifact: %q vs %q", second.AudioRef, first.AudioRef)
	}
	if online.Calls() != 1 {
		t.Errorf("backend called %d times, want 1", online.Calls())
	}
}

// TestSynthesizeConcurrentSingleProduction verifies that concurrent
// identical requests share one backend call.
func TestSynthesizeConcurrentSingleProduction(t *testing.T) {
	online := mock.New().WithName("gtts")
	online.SetDelay(20 * time.Millisecond)
	p := testPipeline(t, testStore(t), online, mock.New().WithName("espeak"))
	req := speech.Request{Text: "shared production", Language: "en"}

	const workers = 16
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = p.Synthesize(context.Background(), req)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("worker %d: %v", i, err)
		}
	}
	if online.Calls() != 1 {
		t.Errorf("backend called %d times for identical concurrent requests, want 1", online.Calls())
	}
}

// TestSynthesizeDegradesToOffline verifies that a failing online backend
// degrades the request to the offline backend and marks the result.
func TestSynthesizeDegradesToOffline(t *testing.T) {
	online := mock.New().WithName("gtts")
	online.FailTimes(-1, errors.New("network down"))
	offline := mock.New().WithName("espeak")
	p := testPipeline(t, testStore(t), online, offline)

	res, err := p.Synthesize(context.Background(), speech.Request{Text: "fall back please", Language: "en", Mode: speech.ModeOnline})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if !res.Degraded {
		t.Error("result should be marked degraded")
	}
	if res.Backend != "espeak" {
		t.Errorf("Backend = %q, want espeak", res.Backend)
	}
}

// TestSynthesizeOfflineModeNoFallback verifies that an explicit offline
// request failing does not get re-routed anywhere.
func TestSynthesizeOfflineModeNoFallback(t *testing.T) {
	offline := mock.New().WithName("espeak")
	offline.FailTimes(-1, errors.New("binary missing"))
	p := testPipeline(t, testStore(t), mock.New().WithName("gtts"), offline)

	_, err := p.Synthesize(context.Background(), speech.Request{Text: "offline only", Language: "en", Mode: speech.ModeOffline})
	if err == nil {
		t.Fatal("expected offline failure to surface")
	}
}

// TestSynthesizeEmptyInput verifies inputs without language signal are
// rejected.
func TestSynthesizeEmptyInput(t *testing.T) {
	p := testPipeline(t, nil, mock.New().WithName("gtts"), mock.New().WithName("espeak"))

	for _, text := range []string{"", "   ", "...", "a"} {
		if _, err := p.Synthesize(context.Background(), speech.Request{Text: text, Language: "en"}); !errors.Is(err, speech.ErrEmptyInput) {
			t.Errorf("Synthesize(%q) error = %v, want ErrEmptyInput", text, err)
		}
	}
}

// TestSynthesizeInputTooLarge verifies the character cap.
func TestSynthesizeInputTooLarge(t *testing.T) {
	p := testPipeline(t, nil, mock.New().WithName("gtts"), mock.New().WithName("espeak"))

	long := strings.Repeat("a", 5001)
	_, err := p.Synthesize(context.Background(), speech.Request{Text: long, Language: "en"})
	if !errors.Is(err, speech.ErrInputTooLarge) {
		t.Errorf("error = %v, want ErrInputTooLarge", err)
	}

	exact := strings.Repeat("a", 5000)
	if _, err := p.Synthesize(context.Background(), speech.Request{Text: exact, Language: "en"}); err != nil {
		t.Errorf("text at the cap should be accepted, got: %v", err)
	}
}

// TestSynthesizeUnknownMode verifies unknown modes are rejected.
func TestSynthesizeUnknownMode(t *testing.T) {
	p := testPipeline(t, nil, mock.New().WithName("gtts"), mock.New().WithName("espeak"))

	_, err := p.Synthesize(context.Background(), speech.Request{Text: "hello there", Language: "en", Mode: "hybrid"})
	if !errors.Is(err, speech.ErrInvalidConfig) {
		t.Errorf("error = %v, want ErrInvalidConfig", err)
	}
}

// TestSynthesizeDetectionFallback verifies low-confidence detection falls
// back to the configured default language.
func TestSynthesizeDetectionFallback(t *testing.T) {
	online := mock.New().WithName("gtts")
	p, err := speech.NewPipeline(speech.DefaultConfig(),
		stubExtractor{},
		stubDetector{language: "fr", confidence: 0.2},
		nil,
		backends.NewSelector(online, mock.New().WithName("espeak")),
	)
	if err != nil {
		t.Fatalf("building pipeline: %v", err)
	}

	res, err := p.Synthesize(context.Background(), speech.Request{Text: "bonjour tout le monde"})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if res.Language != "en" {
		t.Errorf("Language = %q, want default en after low-confidence detection", res.Language)
	}
}

// TestSynthesizeDetectionAccepted verifies confident detection wins.
func TestSynthesizeDetectionAccepted(t *testing.T) {
	p, err := speech.NewPipeline(speech.DefaultConfig(),
		stubExtractor{},
		stubDetector{language: "ur", confidence: 0.9},
		nil,
		backends.NewSelector(mock.New().WithName("gtts"), mock.New().WithName("espeak")),
	)
	if err != nil {
		t.Fatalf("building pipeline: %v", err)
	}

	res, err := p.Synthesize(context.Background(), speech.Request{Text: "یہ اردو متن ہے"})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if res.Language != "ur" {
		t.Errorf("Language = %q, want detected ur", res.Language)
	}
}

// TestSynthesizeNilStore verifies the pipeline serves requests uncached
// when no store is configured.
func TestSynthesizeNilStore(t *testing.T) {
	online := mock.New().WithName("gtts")
	p := testPipeline(t, nil, online, mock.New().WithName("espeak"))
	req := speech.Request{Text: "no cache here", Language: "en"}

	for i := 0; i < 2; i++ {
		res, err := p.Synthesize(context.Background(), req)
		if err != nil {
			t.Fatalf("Synthesize %d: %v", i, err)
		}
		if res.Cached {
			t.Error("store-less pipeline must never report a cache hit")
		}
		if _, err := os.Stat(res.AudioRef); err != nil {
			t.Errorf("artifact missing: %v", err)
		}
		os.Remove(res.AudioRef)
	}
	if online.Calls() != 2 {
		t.Errorf("backend called %d times, want 2 without a cache", online.Calls())
	}
}

// TestProcessTextInput verifies Process handles pre-extracted text.
func TestProcessTextInput(t *testing.T) {
	p := testPipeline(t, testStore(t), mock.New().WithName("gtts"), mock.New().WithName("espeak"))

	res, err := p.Process(context.Background(), speech.Input{Text: "process me"}, "en", speech.ModeOnline)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Backend != "gtts" {
		t.Errorf("Backend = %q, want gtts", res.Backend)
	}
}

// TestProcessExtractionFailure verifies extraction errors surface with
// their kind intact and attributed to the extraction stage.
func TestProcessExtractionFailure(t *testing.T) {
	failing := extractorFunc(func(context.Context, speech.Input) speech.ExtractionResult {
		return speech.ExtractionResult{MediaType: "application/pdf", Err: speech.ErrCorruptInput}
	})
	p, err := speech.NewPipeline(speech.DefaultConfig(),
		failing,
		stubDetector{language: "en", confidence: 0.9},
		nil,
		backends.NewSelector(mock.New().WithName("gtts"), mock.New().WithName("espeak")),
	)
	if err != nil {
		t.Fatalf("building pipeline: %v", err)
	}

	_, err = p.Process(context.Background(), speech.Input{Data: []byte("junk")}, "", "")
	if !errors.Is(err, speech.ErrCorruptInput) {
		t.Errorf("error = %v, want ErrCorruptInput", err)
	}
	var perr *speech.PipelineError
	if !errors.As(err, &perr) {
		t.Fatalf("error = %T, want *speech.PipelineError", err)
	}
	if perr.Stage != speech.StageExtracted {
		t.Errorf("Stage = %v, want StageExtracted", perr.Stage)
	}
}

type extractorFunc func(context.Context, speech.Input) speech.ExtractionResult

func (f extractorFunc) Extract(ctx context.Context, in speech.Input) speech.ExtractionResult {
	return f(ctx, in)
}

// TestNewPipelineRequiresCollaborators verifies constructor validation.
func TestNewPipelineRequiresCollaborators(t *testing.T) {
	sel := backends.NewSelector(mock.New(), nil)

	if _, err := speech.NewPipeline(speech.DefaultConfig(), nil, stubDetector{}, nil, sel); err == nil {
		t.Error("expected error for nil extractor")
	}
	if _, err := speech.NewPipeline(speech.DefaultConfig(), stubExtractor{}, nil, nil, sel); err == nil {
		t.Error("expected error for nil detector")
	}

	bad := speech.DefaultConfig()
	bad.MaxTextLength = 0
	if _, err := speech.NewPipeline(bad, stubExtractor{}, stubDetector{}, nil, sel); !errors.Is(err, speech.ErrInvalidConfig) {
		t.Errorf("error = %v, want ErrInvalidConfig", err)
	}
}
