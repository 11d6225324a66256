package kream

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/meaningyoung99-cmyk/my-kream-bot/internal/pricing"
)

const (
	MaxTimeoutSeconds = 300
	MaxRetries        = 10
)

var (
	ErrEmptyModel      = errors.New("model is required")
	ErrInvalidTimeout  = fmt.Errorf("timeout must be between 1 and %d seconds", MaxTimeoutSeconds)
	ErrInvalidRetries  = fmt.Errorf("retries must be between 0 and %d", MaxRetries)
	ErrInvalidSettings = errors.New("invalid settings")
)

// Settings is everything the operator can tune per quote. Two quotes with
// the same model and equal Settings share a memoized result.
type Settings struct {
	pricing.Formula
	TimeoutSeconds int  `json:"timeout_seconds"`
	Retries        int  `json:"retries"`
	WarmUp         bool `json:"warm_up"`
	Debug          bool `json:"debug"`
}

func DefaultSettings() Settings {
	return Settings{
		Formula:        pricing.DefaultFormula(),
		TimeoutSeconds: 60,
		Retries:        2,
		WarmUp:         true,
		Debug:          false,
	}
}

func (s Settings) Validate() error {
	if err := s.Formula.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSettings, err)
	}
	if s.TimeoutSeconds <= 0 || s.TimeoutSeconds > MaxTimeoutSeconds {
		return fmt.Errorf("%w: %w", ErrInvalidSettings, ErrInvalidTimeout)
	}
	if s.Retries < 0 || s.Retries > MaxRetries {
		return fmt.Errorf("%w: %w", ErrInvalidSettings, ErrInvalidRetries)
	}
	return nil
}

// Timeout converts the operator's seconds into the browser's budget.
func (s Settings) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// NormalizeModel trims and upper-cases a model identifier.
func NormalizeModel(model string) string {
	return strings.ToUpper(strings.TrimSpace(model))
}
