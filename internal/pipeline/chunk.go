package pipeline

import (
	"github.com/clara-platform/clara-backend/internal/textmodel"
)

// segmentRef addresses one segment within a text.
type segmentRef struct {
	page    int
	segment int
}

// chunk is a run of consecutive segments annotated by one model call.
type chunk struct {
	refs  []segmentRef
	words int
}

// chunkSegments batches a text's segments so that no chunk exceeds
// maxElements words. Splits happen only on segment boundaries, never inside
// a segment, so an MWE or orthographic word is never divided; a single
// segment larger than the bound becomes its own chunk.
func chunkSegments(t *textmodel.Text, maxElements int) []chunk {
	if maxElements <= 0 {
		maxElements = 1
	}
	var chunks []chunk
	var cur chunk
	flush := func() {
		if len(cur.refs) > 0 {
			chunks = append(chunks, cur)
			cur = chunk{}
		}
	}
	for pi := range t.Pages {
		for si := range t.Pages[pi].Segments {
			n := t.Pages[pi].Segments[si].WordCount()
			if n == 0 {
				continue
			}
			if cur.words > 0 && cur.words+n > maxElements {
				flush()
			}
			cur.refs = append(cur.refs, segmentRef{page: pi, segment: si})
			cur.words += n
		}
	}
	flush()
	return chunks
}

// chunkWords collects the surface forms of every word in the chunk, in
// order.
func chunkWords(t *textmodel.Text, c chunk) []string {
	var words []string
	for _, ref := range c.refs {
		words = append(words, t.Pages[ref.page].Segments[ref.segment].Words()...)
	}
	return words
}
