package utils

import (
	"go.uber.org/zap"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

// TextProcessor provides utilities for processing message text
type TextProcessor struct {
	logger *zap.Logger
}

// NewTextProcessor creates a new TextProcessor
func NewTextProcessor(logger *zap.Logger) *TextProcessor {
	return &TextProcessor{
		logger: logger,
	}
}

// TruncateText safely truncates text to the specified maximum size,
// keeping the result valid UTF-8
func (tp *TextProcessor) TruncateText(text string, maxSize int) string {
	if maxSize <= 0 || len(text) <= maxSize {
		return text
	}

	truncated := text[:maxSize]

	// Drop a partial trailing rune left by the byte cut
	sanitized, _, err := transform.String(runes.ReplaceIllFormed(), truncated)
	if err == nil {
		truncated = sanitized
	}

	tp.logger.Debug("Text truncated",
		zap.Int("original_size", len(text)),
		zap.Int("truncated_size", len(truncated)),
		zap.Int("max_size", maxSize))

	return truncated
}

// SanitizeUTF8 replaces ill-formed UTF-8 sequences with the Unicode
// replacement character
func (tp *TextProcessor) SanitizeUTF8(text string) string {
	sanitized, _, err := transform.String(runes.ReplaceIllFormed(), text)
	if err != nil {
		return text
	}
	return sanitized
}

// ProcessText truncates and sanitizes text in one operation
func (tp *TextProcessor) ProcessText(text string, maxSize int) string {
	return tp.SanitizeUTF8(tp.TruncateText(text, maxSize))
}
