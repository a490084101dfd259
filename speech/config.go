package speech

import (
	"fmt"
	"time"
)

// Config contains all pipeline configuration options.
type Config struct {
	// Request limits
	MaxTextLength int `yaml:"max_text_length" env:"READALOUD_MAX_TEXT_LENGTH" envDefault:"5000"`

	// Language handling
	DefaultLanguage     string  `yaml:"default_language" env:"READALOUD_DEFAULT_LANGUAGE" envDefault:"en"`
	ConfidenceThreshold float64 `yaml:"confidence_threshold" env:"READALOUD_CONFIDENCE_THRESHOLD" envDefault:"0.6"`

	// DefaultMode is used when a request does not name one.
	DefaultMode string `yaml:"default_mode" env:"READALOUD_DEFAULT_MODE" envDefault:"online"`

	Cache   CacheConfig   `yaml:"cache"`
	Online  OnlineConfig  `yaml:"online"`
	Offline OfflineConfig `yaml:"offline"`
	OCR     OCRConfig     `yaml:"ocr"`
}

// CacheConfig contains audio cache settings.
type CacheConfig struct {
	// Dir is the cache directory. Empty means the user cache dir.
	Dir string `yaml:"dir" env:"READALOUD_CACHE_DIR"`

	// MaxBytes bounds the total artifact size before LRU eviction.
	MaxBytes int64 `yaml:"max_bytes" env:"READALOUD_CACHE_MAX_BYTES" envDefault:"268435456"`

	// MaxAge bounds entry age; older entries are purged.
	MaxAge time.Duration `yaml:"max_age" env:"READALOUD_CACHE_MAX_AGE" envDefault:"336h"`

	// CleanupInterval is how often the janitor enforces the bounds.
	CleanupInterval time.Duration `yaml:"cleanup_interval" env:"READALOUD_CACHE_CLEANUP_INTERVAL" envDefault:"1h"`

	// CompressionLevel is the zstd level for the index snapshot, 0 disables.
	CompressionLevel int `yaml:"compression_level" env:"READALOUD_CACHE_COMPRESSION_LEVEL" envDefault:"3"`
}

// OnlineConfig contains settings for the networked backend.
type OnlineConfig struct {
	Endpoint   string        `yaml:"endpoint" env:"READALOUD_ONLINE_ENDPOINT" envDefault:"https://translate.google.com/translate_tts"`
	Timeout    time.Duration `yaml:"timeout" env:"READALOUD_ONLINE_TIMEOUT" envDefault:"10s"`
	MaxRetries int           `yaml:"max_retries" env:"READALOUD_ONLINE_MAX_RETRIES" envDefault:"3"`
	Slow       bool          `yaml:"slow" env:"READALOUD_ONLINE_SLOW" envDefault:"false"`

	// RequestsPerMinute throttles endpoint calls so chunked synthesis does
	// not trip the endpoint's quota.
	RequestsPerMinute int `yaml:"requests_per_minute" env:"READALOUD_ONLINE_RPM" envDefault:"50"`
}

// OfflineConfig contains settings for the local backend.
type OfflineConfig struct {
	Binary         string        `yaml:"binary" env:"READALOUD_OFFLINE_BINARY" envDefault:"espeak-ng"`
	WordsPerMinute int           `yaml:"words_per_minute" env:"READALOUD_OFFLINE_WPM" envDefault:"155"`
	Timeout        time.Duration `yaml:"timeout" env:"READALOUD_OFFLINE_TIMEOUT" envDefault:"30s"`
}

// OCRConfig contains settings for image text extraction.
type OCRConfig struct {
	Binary    string        `yaml:"binary" env:"READALOUD_OCR_BINARY" envDefault:"tesseract"`
	Languages string        `yaml:"languages" env:"READALOUD_OCR_LANGUAGES" envDefault:"eng+urd"`
	Timeout   time.Duration `yaml:"timeout" env:"READALOUD_OCR_TIMEOUT" envDefault:"30s"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxTextLength:       5000,
		DefaultLanguage:     "en",
		ConfidenceThreshold: 0.6,
		DefaultMode:         string(ModeOnline),
		Cache: CacheConfig{
			MaxBytes:         256 * 1024 * 1024,
			MaxAge:           14 * 24 * time.Hour,
			CleanupInterval:  time.Hour,
			CompressionLevel: 3,
		},
		Online: OnlineConfig{
			Endpoint:          "https://translate.google.com/translate_tts",
			Timeout:           10 * time.Second,
			MaxRetries:        3,
			RequestsPerMinute: 50,
		},
		Offline: OfflineConfig{
			Binary:         "espeak-ng",
			WordsPerMinute: 155,
			Timeout:        30 * time.Second,
		},
		OCR: OCRConfig{
			Binary:    "tesseract",
			Languages: "eng+urd",
			Timeout:   30 * time.Second,
		},
	}
}

// Validate checks the configuration for consistency.
func (c Config) Validate() error {
	if c.MaxTextLength <= 0 {
		return fmt.Errorf("%w: max_text_length must be positive, got %d", ErrInvalidConfig, c.MaxTextLength)
	}
	if c.DefaultLanguage == "" {
		return fmt.Errorf("%w: default_language must not be empty", ErrInvalidConfig)
	}
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return fmt.Errorf("%w: confidence_threshold must be in [0, 1], got %v", ErrInvalidConfig, c.ConfidenceThreshold)
	}
	if !Mode(c.DefaultMode).Valid() {
		return fmt.Errorf("%w: default_mode must be %q or %q, got %q", ErrInvalidConfig, ModeOnline, ModeOffline, c.DefaultMode)
	}
	if c.Cache.MaxBytes <= 0 {
		return fmt.Errorf("%w: cache max_bytes must be positive", ErrInvalidConfig)
	}
	if c.Cache.MaxAge <= 0 {
		return fmt.Errorf("%w: cache max_age must be positive", ErrInvalidConfig)
	}
	if c.Cache.CleanupInterval <= 0 {
		return fmt.Errorf("%w: cache cleanup_interval must be positive", ErrInvalidConfig)
	}
	if c.Cache.CompressionLevel < 0 || c.Cache.CompressionLevel > 22 {
		return fmt.Errorf("%w: cache compression_level must be in [0, 22]", ErrInvalidConfig)
	}
	if c.Online.Endpoint == "" {
		return fmt.Errorf("%w: online endpoint must not be empty", ErrInvalidConfig)
	}
	if c.Online.Timeout <= 0 {
		return fmt.Errorf("%w: online timeout must be positive", ErrInvalidConfig)
	}
	if c.Online.MaxRetries < 0 {
		return fmt.Errorf("%w: online max_retries must not be negative", ErrInvalidConfig)
	}
	if c.Online.RequestsPerMinute <= 0 {
		return fmt.Errorf("%w: online requests_per_minute must be positive", ErrInvalidConfig)
	}
	if c.Offline.Binary == "" {
		return fmt.Errorf("%w: offline binary must not be empty", ErrInvalidConfig)
	}
	if c.Offline.WordsPerMinute < 80 || c.Offline.WordsPerMinute > 450 {
		return fmt.Errorf("%w: offline words_per_minute must be in [80, 450]", ErrInvalidConfig)
	}
	return nil
}
