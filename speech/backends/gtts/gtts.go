// Package gtts implements the online synthesis backend against the Google
// Translate text-to-speech endpoint.
package gtts

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/cenkalti/backoff/v4"
	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/readaloud/readaloud/speech"
)

// Name identifies this backend in cache keys and results.
const Name = "gtts"

// maxChunkRunes is the longest text fragment the endpoint accepts per call.
const maxChunkRunes = 100

// Backend synthesizes MP3 audio over HTTP. Transient failures (network
// errors, 429, 5xx) are retried with exponential backoff up to the
// configured bound; 4xx responses are permanent.
type Backend struct {
	cfg     speech.OnlineConfig
	client  *http.Client
	limiter *rate.Limiter
	logger  *log.Logger
}

// New creates the online backend.
func New(cfg speech.OnlineConfig) *Backend {
	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 50
	}
	return &Backend{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 1),
		logger:  log.Default().WithPrefix("gtts"),
	}
}

// Name returns the backend identity.
func (b *Backend) Name() string { return Name }

// Available always returns true; reachability is discovered per request and
// handled by the retry and fallback policy.
func (b *Backend) Available() bool { return true }

// SupportsLanguage reports whether the endpoint has a voice for the tag.
func (b *Backend) SupportsLanguage(language string) bool {
	return voices[language]
}

// Synthesize fetches audio for the text, one endpoint call per chunk, and
// concatenates the MP3 payloads.
func (b *Backend) Synthesize(ctx context.Context, text, language string) (*speech.Audio, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty text", speech.ErrSynthesisUnavailable)
	}
	if !b.SupportsLanguage(language) {
		return nil, fmt.Errorf("%w: no %s voice for %q", speech.ErrSynthesisUnavailable, Name, language)
	}

	chunks := splitChunks(text, maxChunkRunes)
	var data []byte
	for i, chunk := range chunks {
		part, err := b.fetchChunk(ctx, chunk, language, i, len(chunks))
		if err != nil {
			return nil, err
		}
		data = append(data, part...)
	}
	return &speech.Audio{Data: data, Format: speech.FormatMP3, Backend: Name}, nil
}

// fetchChunk performs one endpoint call with bounded exponential backoff.
func (b *Backend) fetchChunk(ctx context.Context, chunk, language string, idx, total int) ([]byte, error) {
	var data []byte
	operation := func() error {
		part, err := b.doRequest(ctx, chunk, language, idx, total)
		if err != nil {
			return err
		}
		data = part
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(b.cfg.MaxRetries)), ctx)
	notify := func(err error, wait time.Duration) {
		b.logger.Debug("retrying chunk", "idx", idx, "wait", wait, "err", err)
	}
	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		return nil, fmt.Errorf("online synthesis: %w", err)
	}
	return data, nil
}

func (b *Backend) doRequest(ctx context.Context, chunk, language string, idx, total int) ([]byte, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, backoff.Permanent(err)
	}

	q := url.Values{}
	q.Set("ie", "UTF-8")
	q.Set("client", "tw-ob")
	q.Set("tl", language)
	q.Set("q", chunk)
	q.Set("total", strconv.Itoa(total))
	q.Set("idx", strconv.Itoa(idx))
	q.Set("textlen", strconv.Itoa(len([]rune(chunk))))
	if b.cfg.Slow {
		q.Set("ttsspeed", "0.3")
	} else {
		q.Set("ttsspeed", "1")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.cfg.Endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, err // network errors are transient
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, fmt.Errorf("endpoint returned %d", resp.StatusCode)
	default:
		return nil, backoff.Permanent(fmt.Errorf("endpoint rejected request: %d", resp.StatusCode))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("endpoint returned empty body")
	}
	return data, nil
}

// splitChunks cuts text into fragments of at most max runes, preferring
// sentence boundaries, then spaces, then a hard cut.
func splitChunks(text string, max int) []string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) <= max {
		return []string{string(runes)}
	}

	var chunks []string
	for len(runes) > 0 {
		if len(runes) <= max {
			chunks = append(chunks, strings.TrimSpace(string(runes)))
			break
		}
		cut := -1
		for i := max; i > 0; i-- {
			r := runes[i-1]
			if r == '.' || r == '!' || r == '?' {
				cut = i
				break
			}
		}
		if cut == -1 {
			for i := max; i > 0; i-- {
				if unicode.IsSpace(runes[i-1]) {
					cut = i
					break
				}
			}
		}
		if cut <= 0 {
			cut = max
		}
		chunk := strings.TrimSpace(string(runes[:cut]))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		runes = runes[cut:]
		for len(runes) > 0 && unicode.IsSpace(runes[0]) {
			runes = runes[1:]
		}
	}
	return chunks
}

// voices lists the language tags the endpoint is known to speak.
var voices = map[string]bool{
	"af": true, "ar": true, "bn": true, "cs": true, "da": true,
	"de": true, "el": true, "en": true, "es": true, "fi": true,
	"fr": true, "gu": true, "hi": true, "hu": true, "id": true,
	"it": true, "ja": true, "kn": true, "ko": true, "ml": true,
	"mr": true, "ms": true, "nl": true, "no": true, "pl": true,
	"pt": true, "ro": true, "ru": true, "sk": true, "sv": true,
	"ta": true, "te": true, "th": true, "tl": true, "tr": true,
	"uk": true, "ur": true, "vi": true, "zh": true,
}
