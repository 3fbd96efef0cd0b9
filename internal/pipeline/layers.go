package pipeline

import (
	"fmt"

	"github.com/clara-platform/clara-backend/internal/textmodel"
)

// predecessors fixes the derivation graph between layers. lemma_and_gloss is
// a merge of two layers and is handled separately.
var predecessors = map[textmodel.Layer]textmodel.Layer{
	textmodel.LayerPlain:          textmodel.LayerPrompt,
	textmodel.LayerTitle:          textmodel.LayerPlain,
	textmodel.LayerSummary:        textmodel.LayerPlain,
	textmodel.LayerCEFR:           textmodel.LayerPlain,
	textmodel.LayerSegmented:      textmodel.LayerPlain,
	textmodel.LayerSegmentedTitle: textmodel.LayerTitle,
	textmodel.LayerTranslated:     textmodel.LayerSegmented,
	textmodel.LayerMWE:            textmodel.LayerSegmented,
	textmodel.LayerGloss:          textmodel.LayerSegmented,
	textmodel.LayerLemma:          textmodel.LayerSegmented,
	textmodel.LayerPinyin:         textmodel.LayerSegmented,
	textmodel.LayerPhonetic:       textmodel.LayerSegmented,
}

// Predecessor returns the layer a given layer is derived from, or "" for
// root layers (prompt) and the merged lemma_and_gloss view.
func Predecessor(layer textmodel.Layer) textmodel.Layer {
	return predecessors[layer]
}

// DerivedFrom lists the layers directly derived from the given layer, used
// to report what a write makes stale.
func DerivedFrom(layer textmodel.Layer) []textmodel.Layer {
	var out []textmodel.Layer
	for _, l := range textmodel.AllLayers {
		if predecessors[l] == layer {
			out = append(out, l)
		}
	}
	return out
}

// RenderPath lists the layers that must be up-to-date before composing the
// rendered artefact.
var RenderPath = []textmodel.Layer{
	textmodel.LayerSegmented,
	textmodel.LayerTranslated,
	textmodel.LayerMWE,
	textmodel.LayerGloss,
	textmodel.LayerLemma,
}

// LayerState is the lifecycle state of one layer of one project.
type LayerState string

const (
	StateAbsent  LayerState = "absent"  // never written
	StateCurrent LayerState = "current" // current file exists and is fresh
	StateStale   LayerState = "stale"   // predecessor rewritten since
	StateEmpty   LayerState = "empty"   // deleted; history preserved
)

// CurrentKey is the store key of a layer's current file.
func CurrentKey(internalID string, layer textmodel.Layer) string {
	return fmt.Sprintf("projects/%s/text_versions/%s.txt", internalID, layer)
}

// ArchiveKey is the store key of one archived snapshot.
func ArchiveKey(internalID string, layer textmodel.Layer, stamp string) string {
	return fmt.Sprintf("projects/%s/text_versions/archive/%s_%s.txt", internalID, layer, stamp)
}

// ProjectPrefix is the store prefix holding everything belonging to a
// project.
func ProjectPrefix(internalID string) string {
	return fmt.Sprintf("projects/%s", internalID)
}
