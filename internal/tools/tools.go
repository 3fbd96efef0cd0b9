// Package tools hosts the deterministic rule-based annotators the pipeline
// can use instead of a model call: TreeTagger for lemmas, kagome for
// Japanese segmentation, go-pinyin for pinyin. Tools cost nothing and are
// never retried; an unsupported language is reported, not worked around.
package tools

import (
	"context"

	"github.com/clara-platform/clara-backend/internal/textmodel"
)

// Tool derives one layer's text from its predecessor's text by rule.
type Tool interface {
	Name() string
	TargetLayer() textmodel.Layer
	Supports(language string) bool
	Annotate(ctx context.Context, predecessorText, l2, l1 string) (string, error)
}

// Registry maps tool names to implementations.
type Registry map[string]Tool

func NewRegistry(tools ...Tool) Registry {
	r := Registry{}
	for _, t := range tools {
		r[t.Name()] = t
	}
	return r
}
