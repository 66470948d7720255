package chat

import (
	"errors"
	"fmt"
)

// ErrEmptyMessage is returned for user text that is blank after trimming.
// Such messages are ignored rather than answered.
var ErrEmptyMessage = errors.New("empty message")

// ProviderErrorKind classifies completion failures.
type ProviderErrorKind string

const (
	KindTimeout     ProviderErrorKind = "timeout"
	KindRateLimit   ProviderErrorKind = "rate_limit"
	KindAuth        ProviderErrorKind = "auth"
	KindUnavailable ProviderErrorKind = "unavailable"
	KindEmpty       ProviderErrorKind = "empty"
)

// ProviderError is a failed or empty completion.
type ProviderError struct {
	Kind   ProviderErrorKind
	Status int
	Err    error
}

func (e *ProviderError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("completion provider: %s", e.Kind)
	}
	if e.Status > 0 {
		return fmt.Sprintf("completion provider: %s (status %d): %v", e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("completion provider: %s: %v", e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// ReasonNoAPIKey is the ConfigError reason when no key is available.
const ReasonNoAPIKey = "no completion API key"

// ConfigError means no completion can be attempted for the bot.
type ConfigError struct {
	BotID  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("chat not configured for bot %s: %s", e.BotID, e.Reason)
}

// KindForStatus maps a provider HTTP status to an error kind.
func KindForStatus(status int) ProviderErrorKind {
	switch {
	case status == 429:
		return KindRateLimit
	case status == 401 || status == 403:
		return KindAuth
	case status == 408 || status == 504:
		return KindTimeout
	default:
		return KindUnavailable
	}
}
