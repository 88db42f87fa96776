// Package logging builds the shared zap logger and sanitizes prompt and
// SQL text before it is logged.
package logging

import (
	"regexp"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	// MaxPromptLogLength bounds how much of a prompt or SQL statement is
	// ever written to logs.
	MaxPromptLogLength = 200
	// RedactedText replaces sensitive values.
	RedactedText = "[REDACTED]"
)

var (
	apiKeyPattern   = regexp.MustCompile(`(?i)(api[_-]?key|apikey|authorization|bearer)[=: ]+[A-Za-z0-9-_.]{16,}`)
	passwordPattern = regexp.MustCompile(`(?i)(password|pwd|pass)=[^;&\s]+`)
	connPattern     = regexp.MustCompile(`://[^:]+:[^@]+@[^/\s]+`)
)

// New builds the root logger. env "local" gets the development console
// encoder; anything else logs structured JSON at Info.
func New(env string) (*zap.Logger, error) {
	if env == "local" {
		cfg := zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return cfg.Build()
	}
	return zap.NewProduction()
}

// SanitizePrompt truncates and redacts prompt or SQL text for logging.
func SanitizePrompt(text string) string {
	if text == "" {
		return ""
	}
	if len(text) > MaxPromptLogLength {
		text = text[:MaxPromptLogLength] + "..."
	}
	text = apiKeyPattern.ReplaceAllString(text, "${1}="+RedactedText)
	return passwordPattern.ReplaceAllString(text, "${1}="+RedactedText)
}

// SanitizeError redacts credentials that can leak through driver and
// provider error strings.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	s := err.Error()
	s = passwordPattern.ReplaceAllString(s, "${1}="+RedactedText)
	s = apiKeyPattern.ReplaceAllString(s, "${1}="+RedactedText)
	return connPattern.ReplaceAllString(s, "://"+RedactedText+"@"+RedactedText)
}
