// Package config loads runtime settings from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
)

type Config struct {
	LogLevel string

	// Reuse pool watermarks in MiB.
	HighWatermarkMB int
	LowWatermarkMB  int

	Workers int

	FadeAnimation         bool
	FadeAnimationCached   bool
	TransformPlaceholders bool
	ClearCacheOnOOM       bool
	CallbacksOnDispatcher bool

	VerboseCache  bool
	VerboseCancel bool

	// DPI is the display density used to convert DIP sizes to pixels.
	DPI int

	MetricsAddr string
}

func Load() *Config {
	return &Config{
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		HighWatermarkMB:       getEnvInt("CACHE_HIGH_WATERMARK_MB", 64),
		LowWatermarkMB:        getEnvInt("CACHE_LOW_WATERMARK_MB", 48),
		Workers:               getEnvInt("WORKERS", 4),
		FadeAnimation:         getEnvBool("FADE_ANIMATION", true),
		FadeAnimationCached:   getEnvBool("FADE_ANIMATION_CACHED", false),
		TransformPlaceholders: getEnvBool("TRANSFORM_PLACEHOLDERS", true),
		ClearCacheOnOOM:       getEnvBool("CLEAR_CACHE_ON_OOM", true),
		CallbacksOnDispatcher: getEnvBool("CALLBACKS_ON_DISPATCHER", false),
		VerboseCache:          getEnvBool("VERBOSE_CACHE", false),
		VerboseCancel:         getEnvBool("VERBOSE_CANCEL", false),
		DPI:                   getEnvInt("DPI", 160),
		MetricsAddr:           getEnv("METRICS_ADDR", ""),
	}
}

// HighWatermark returns the high watermark in bytes.
func (c *Config) HighWatermark() int64 { return int64(c.HighWatermarkMB) << 20 }

// LowWatermark returns the low watermark in bytes, clamped to the high one.
func (c *Config) LowWatermark() int64 {
	low := int64(c.LowWatermarkMB) << 20
	if high := c.HighWatermark(); low > high {
		return high
	}
	if low < 0 {
		return 0
	}
	return low
}

// DPIToPixels converts a DIP size using the configured density (160 = 1x).
func (c *Config) DPIToPixels(size int) int {
	if c.DPI <= 0 {
		return size
	}
	return (size*c.DPI + 80) / 160
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
