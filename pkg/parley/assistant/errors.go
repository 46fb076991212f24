// Package assistant – errors.go defines the failure taxonomy for the message
// pipeline and validation errors for configuration mutations. Nothing here is
// ever fatal to the process: every failure is scoped to one message or one
// settings change.
package assistant

import (
	"fmt"
	"regexp"
)

// FailureKind classifies why a pipeline run stopped.
type FailureKind string

const (
	// FailureInference means the inference server was unreachable or
	// returned an error status.
	FailureInference FailureKind = "inference_unavailable"

	// FailureTimeout means an external call exceeded its bound.
	FailureTimeout FailureKind = "timeout"

	// FailureStore means a store itself was inaccessible.
	FailureStore FailureKind = "store"
)

// PipelineError carries the failure classification through the pipeline.
type PipelineError struct {
	Kind FailureKind
	Err  error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline %s: %v", e.Kind, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// ConfigValidationError is returned when an admin tries to set an
// out-of-range value. The reason states the allowed range.
type ConfigValidationError struct {
	Field  string
	Reason string
}

func (e *ConfigValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// maxSystemPromptLen bounds custom system prompts.
const maxSystemPromptLen = 10000

// promptInjectionPatterns flags prompts that try to override the assistant's
// behavior wholesale. Screening happens at configuration time, before the
// prompt is ever persisted.
var promptInjectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore\s+(previous|all|prior)\s+instructions`),
	regexp.MustCompile(`(?i)disregard\s+(previous|all|prior)`),
	regexp.MustCompile(`(?i)forget\s+(everything|all|previous)`),
	regexp.MustCompile(`(?i)system\s+override`),
	regexp.MustCompile(`(?i)developer\s+mode`),
	regexp.MustCompile(`(?i)jailbreak`),
	regexp.MustCompile(`(?i)<\s*system\s*>`),
	regexp.MustCompile(`(?i)you\s+are\s+now`),
}

// ValidateSystemPrompt rejects prompts that are too long or match known
// injection patterns. An empty prompt is always valid (it means "use default").
func ValidateSystemPrompt(prompt string) error {
	if prompt == "" {
		return nil
	}
	if len(prompt) > maxSystemPromptLen {
		return &ConfigValidationError{
			Field:  "system_prompt",
			Reason: fmt.Sprintf("too long (%d chars, max %d)", len(prompt), maxSystemPromptLen),
		}
	}
	for _, pat := range promptInjectionPatterns {
		if pat.MatchString(prompt) {
			return &ConfigValidationError{
				Field:  "system_prompt",
				Reason: "contains suspicious override patterns, please rephrase",
			}
		}
	}
	return nil
}
