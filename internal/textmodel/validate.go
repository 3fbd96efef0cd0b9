package textmodel

import (
	"strings"

	"github.com/clara-platform/clara-backend/internal/core/clerror"
)

// ValidateMWEs checks that every multi-word expression asserted on a segment
// matches that segment's words: each MWE's surface forms must occur in order
// among the segment's Word elements.
func ValidateMWEs(t *Text) error {
	for pi := range t.Pages {
		for si := range t.Pages[pi].Segments {
			seg := &t.Pages[pi].Segments[si]
			words := seg.Words()
			for _, mwe := range seg.MWEs {
				if _, err := MWEPositions(words, mwe); err != nil {
					return clerror.At(clerror.Validation, pi+1, si+1,
						"MWE %q does not match segment words: %v", strings.Join(mwe, " "), err)
				}
			}
		}
	}
	return nil
}

// MWEPositions finds the 0-based positions of an MWE's component words
// within a segment's word list, matching left to right. Every component must
// be found, in order, or the MWE is rejected.
func MWEPositions(segmentWords, mwe []string) ([]int, error) {
	if len(mwe) == 0 {
		return nil, clerror.New(clerror.Validation, "empty MWE")
	}
	positions := make([]int, 0, len(mwe))
	next := 0
	for _, component := range mwe {
		found := -1
		for i := next; i < len(segmentWords); i++ {
			if equalWord(segmentWords[i], component) {
				found = i
				break
			}
		}
		if found < 0 {
			return nil, clerror.New(clerror.Validation, "word %q not found in segment", component)
		}
		positions = append(positions, found)
		next = found + 1
	}
	return positions, nil
}

func equalWord(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// CheckTokenAlignment verifies that two layers of the same text have the
// same page, segment and word structure, surface form by surface form. The
// lemma_and_gloss view requires this before merging.
func CheckTokenAlignment(a, b *Text) error {
	if len(a.Pages) != len(b.Pages) {
		return clerror.New(clerror.Validation,
			"page count mismatch: %d vs %d", len(a.Pages), len(b.Pages))
	}
	for pi := range a.Pages {
		if len(a.Pages[pi].Segments) != len(b.Pages[pi].Segments) {
			return clerror.At(clerror.Validation, pi+1, 0,
				"segment count mismatch: %d vs %d",
				len(a.Pages[pi].Segments), len(b.Pages[pi].Segments))
		}
		for si := range a.Pages[pi].Segments {
			wa := a.Pages[pi].Segments[si].Words()
			wb := b.Pages[pi].Segments[si].Words()
			if len(wa) != len(wb) {
				return clerror.At(clerror.Validation, pi+1, si+1,
					"word count mismatch: %d vs %d", len(wa), len(wb))
			}
			for wi := range wa {
				if wa[wi] != wb[wi] {
					return clerror.At(clerror.Validation, pi+1, si+1,
						"word mismatch at position %d: %q vs %q", wi+1, wa[wi], wb[wi])
				}
			}
		}
	}
	return nil
}

// MergeLemmaAndGloss combines aligned lemma and gloss layers into a single
// lemma_and_gloss view. The gloss layer contributes each word's gloss
// annotation; everything else comes from the lemma layer.
func MergeLemmaAndGloss(lemma, gloss *Text) (*Text, error) {
	if err := CheckTokenAlignment(lemma, gloss); err != nil {
		return nil, err
	}
	merged := &Text{
		L2Language: lemma.L2Language,
		L1Language: lemma.L1Language,
		Pages:      make([]Page, len(lemma.Pages)),
	}
	for pi := range lemma.Pages {
		src := lemma.Pages[pi]
		page := Page{Annotations: copyMap(src.Annotations), Segments: make([]Segment, len(src.Segments))}
		for si := range src.Segments {
			seg := Segment{
				Annotations: copyMap(src.Segments[si].Annotations),
				MWEs:        src.Segments[si].MWEs,
				Elements:    make([]ContentElement, len(src.Segments[si].Elements)),
			}
			glossWords := wordElements(&gloss.Pages[pi].Segments[si])
			wi := 0
			for ei, el := range src.Segments[si].Elements {
				copied := ContentElement{Type: el.Type, Content: el.Content, Annotations: copyMap(el.Annotations)}
				if el.Type == Word {
					if g, ok := glossWords[wi].Annotations["gloss"]; ok {
						copied.SetAnnotation("gloss", g)
					}
					wi++
				}
				seg.Elements[ei] = copied
			}
			page.Segments[si] = seg
		}
		merged.Pages[pi] = page
	}
	return merged, nil
}

func wordElements(s *Segment) []ContentElement {
	var out []ContentElement
	for _, e := range s.Elements {
		if e.Type == Word {
			out = append(out, e)
		}
	}
	return out
}

func copyMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
