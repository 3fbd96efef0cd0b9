package textmodel

// Layer names one textual annotation layer of a project.
type Layer string

const (
	LayerPrompt         Layer = "prompt"
	LayerPlain          Layer = "plain"
	LayerTitle          Layer = "title"
	LayerSummary        Layer = "summary"
	LayerCEFR           Layer = "cefr_level"
	LayerSegmented      Layer = "segmented"
	LayerSegmentedTitle Layer = "segmented_title"
	LayerTranslated     Layer = "translated"
	LayerMWE            Layer = "mwe"
	LayerGloss          Layer = "gloss"
	LayerLemma          Layer = "lemma"
	LayerPinyin         Layer = "pinyin"
	LayerPhonetic       Layer = "phonetic"
	LayerLemmaAndGloss  Layer = "lemma_and_gloss"
)

// AllLayers lists every layer that can have a stored version, in pipeline
// order.
var AllLayers = []Layer{
	LayerPrompt, LayerPlain, LayerTitle, LayerSummary, LayerCEFR,
	LayerSegmented, LayerSegmentedTitle, LayerTranslated, LayerMWE,
	LayerGloss, LayerLemma, LayerPinyin, LayerPhonetic, LayerLemmaAndGloss,
}

func Valid(l Layer) bool {
	for _, known := range AllLayers {
		if l == known {
			return true
		}
	}
	return false
}

// segmentedFamily layers use the word/MWE/piece grammar without per-word
// annotations. All other layers attach a #...# annotation to each word.
func segmentedFamily(l Layer) bool {
	switch l {
	case LayerPrompt, LayerPlain, LayerTitle, LayerSummary, LayerCEFR,
		LayerSegmented, LayerSegmentedTitle:
		return true
	}
	return false
}

// jsonLayer layers are stored in canonical JSON form because their
// annotations live on segments rather than words.
func jsonLayer(l Layer) bool {
	return l == LayerMWE || l == LayerTranslated
}

// annotationKey gives the annotation map key a layer's word annotations are
// stored under.
func annotationKey(l Layer) string {
	return string(l)
}
