// Package ai defines the adapter interfaces the annotation and image engines
// call, plus the Call record every adapter returns. Concrete clients live
// under internal/platform; rule-based tools under internal/tools expose the
// same shape so the ledger treats them uniformly.
package ai

import (
	"context"
	"time"
)

// Call records one external-model invocation. Rule tools return Cost 0.
type Call struct {
	Prompt    string        `json:"prompt"`
	Response  string        `json:"response,omitempty"`
	Cost      float64       `json:"cost"`
	Duration  time.Duration `json:"duration"`
	Retries   int           `json:"retries"`
	Timestamp time.Time     `json:"timestamp"`
}

type ImageResult struct {
	Bytes         []byte
	MimeType      string
	RevisedPrompt string
}

type TextClient interface {
	GenerateText(ctx context.Context, system, user string) (string, Call, error)
	GenerateJSON(ctx context.Context, system, user, schemaName string, schema map[string]any) (map[string]any, Call, error)
}

type ImageClient interface {
	GenerateImage(ctx context.Context, prompt string) (ImageResult, Call, error)
}

// Interpreter describes an image in text. The multimodal LLM client and the
// Vision label fallback both satisfy it.
type Interpreter interface {
	InterpretImage(ctx context.Context, prompt string, image []byte, mimeType string) (string, Call, error)
}

type TTSClient interface {
	EngineID() string
	Synthesize(ctx context.Context, language, voice, text string) ([]byte, Call, error)
}
