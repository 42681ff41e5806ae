package backoff

import (
	"math"
	"math/rand"
	"time"
)

// Config for exponential backoff
type Config struct {
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Multiplier float64
	Jitter     float64 // Jitter factor (0.0 to 1.0)
}

// DefaultConfig returns the retry schedule used by the job queue:
// 2s, 4s, 8s, ... capped at one minute.
func DefaultConfig() Config {
	return Config{
		BaseDelay:  1 * time.Second,
		MaxDelay:   60 * time.Second,
		Multiplier: 2.0,
		Jitter:     0,
	}
}

// Calculate computes the delay before the next attempt of a job that has
// already been attempted `attempts` times.
// Formula: min(base * multiplier^attempts, maxDelay) + jitter
func Calculate(cfg Config, attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}

	multiplier := cfg.Multiplier
	if multiplier <= 0 {
		multiplier = 2.0
	}

	delay := float64(cfg.BaseDelay) * math.Pow(multiplier, float64(attempts))

	// Cap at max delay
	if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}

	// Add jitter (±jitter%)
	if cfg.Jitter > 0 {
		jitterRange := delay * cfg.Jitter
		jitterDelta := (rand.Float64()*2 - 1) * jitterRange
		delay += jitterDelta
	}

	if delay < 0 {
		delay = 0
	}
	// Uncapped growth must not wrap around to a negative duration
	if delay >= float64(math.MaxInt64) {
		return time.Duration(math.MaxInt64)
	}

	return time.Duration(delay)
}

// CalculateDefault calculates backoff with default config
func CalculateDefault(attempts int) time.Duration {
	return Calculate(DefaultConfig(), attempts)
}
