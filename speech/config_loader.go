package speech

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/viper"
)

// LoadConfigFromViper loads pipeline configuration from Viper, starting from
// defaults and only overriding keys that are actually set.
func LoadConfigFromViper() (Config, error) {
	cfg := DefaultConfig()

	if viper.IsSet("speech.max_text_length") {
		cfg.MaxTextLength = viper.GetInt("speech.max_text_length")
	}
	if viper.IsSet("speech.default_language") {
		cfg.DefaultLanguage = viper.GetString("speech.default_language")
	}
	if viper.IsSet("speech.confidence_threshold") {
		cfg.ConfidenceThreshold = viper.GetFloat64("speech.confidence_threshold")
	}
	if viper.IsSet("speech.default_mode") {
		cfg.DefaultMode = viper.GetString("speech.default_mode")
	}

	cfg.Cache = loadCacheConfig(cfg.Cache)
	cfg.Online = loadOnlineConfig(cfg.Online)
	cfg.Offline = loadOfflineConfig(cfg.Offline)
	cfg.OCR = loadOCRConfig(cfg.OCR)

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid speech configuration: %w", err)
	}
	return cfg, nil
}

// LoadConfigFromEnv loads pipeline configuration from environment variables.
func LoadConfigFromEnv() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return cfg, fmt.Errorf("error parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid speech configuration: %w", err)
	}
	return cfg, nil
}

func loadCacheConfig(cfg CacheConfig) CacheConfig {
	if viper.IsSet("speech.cache.dir") {
		cfg.Dir = viper.GetString("speech.cache.dir")
	}
	if viper.IsSet("speech.cache.max_bytes") {
		cfg.MaxBytes = viper.GetInt64("speech.cache.max_bytes")
	}
	if viper.IsSet("speech.cache.max_age") {
		cfg.MaxAge = viper.GetDuration("speech.cache.max_age")
	}
	if viper.IsSet("speech.cache.cleanup_interval") {
		cfg.CleanupInterval = viper.GetDuration("speech.cache.cleanup_interval")
	}
	if viper.IsSet("speech.cache.compression_level") {
		cfg.CompressionLevel = viper.GetInt("speech.cache.compression_level")
	}
	return cfg
}

func loadOnlineConfig(cfg OnlineConfig) OnlineConfig {
	if viper.IsSet("speech.online.endpoint") {
		cfg.Endpoint = viper.GetString("speech.online.endpoint")
	}
	if viper.IsSet("speech.online.timeout") {
		cfg.Timeout = viper.GetDuration("speech.online.timeout")
	}
	if viper.IsSet("speech.online.max_retries") {
		cfg.MaxRetries = viper.GetInt("speech.online.max_retries")
	}
	if viper.IsSet("speech.online.requests_per_minute") {
		cfg.RequestsPerMinute = viper.GetInt("speech.online.requests_per_minute")
	}
	if viper.IsSet("speech.online.slow") {
		cfg.Slow = viper.GetBool("speech.online.slow")
	}
	return cfg
}

func loadOfflineConfig(cfg OfflineConfig) OfflineConfig {
	if viper.IsSet("speech.offline.binary") {
		cfg.Binary = viper.GetString("speech.offline.binary")
	}
	if viper.IsSet("speech.offline.words_per_minute") {
		cfg.WordsPerMinute = viper.GetInt("speech.offline.words_per_minute")
	}
	if viper.IsSet("speech.offline.timeout") {
		cfg.Timeout = viper.GetDuration("speech.offline.timeout")
	}
	return cfg
}

func loadOCRConfig(cfg OCRConfig) OCRConfig {
	if viper.IsSet("speech.ocr.binary") {
		cfg.Binary = viper.GetString("speech.ocr.binary")
	}
	if viper.IsSet("speech.ocr.languages") {
		cfg.Languages = viper.GetString("speech.ocr.languages")
	}
	if viper.IsSet("speech.ocr.timeout") {
		cfg.Timeout = viper.GetDuration("speech.ocr.timeout")
	}
	return cfg
}
