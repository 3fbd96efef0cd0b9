package pipeline

import (
	"testing"

	"github.com/clara-platform/clara-backend/internal/textmodel"
)

func segmentedText(t *testing.T, raw string) *textmodel.Text {
	t.Helper()
	text, err := textmodel.Internalise(raw, "english", "french", textmodel.LayerSegmented)
	if err != nil {
		t.Fatalf("Internalise: %v", err)
	}
	return text
}

func TestChunkSegmentsNeverSplitsASegment(t *testing.T) {
	text := segmentedText(t, "One two three.||Four five.||Six.")

	chunks := chunkSegments(text, 4)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if chunks[0].words != 3 || chunks[1].words != 3 {
		t.Fatalf("unexpected chunk sizes: %d, %d", chunks[0].words, chunks[1].words)
	}
	// Segment 2 could not join chunk 1 without exceeding the bound, so it
	// starts chunk 2 whole.
	if len(chunks[0].refs) != 1 || len(chunks[1].refs) != 2 {
		t.Fatalf("unexpected chunk composition: %+v", chunks)
	}
}

func TestChunkSegmentsOversizedSegmentStandsAlone(t *testing.T) {
	text := segmentedText(t, "One.||Two three four five six.||Seven.")

	chunks := chunkSegments(text, 3)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	if chunks[1].words != 5 {
		t.Fatalf("oversized segment should be its own chunk, got %d words", chunks[1].words)
	}
}

func TestChunkSegmentsSkipsWordlessSegments(t *testing.T) {
	text := segmentedText(t, "One two.||...||Three.")

	chunks := chunkSegments(text, 10)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	words := chunkWords(text, chunks[0])
	if len(words) != 3 {
		t.Fatalf("expected 3 words, got %v", words)
	}
}

func TestChunkWordsPreservesOrderAcrossPages(t *testing.T) {
	text := segmentedText(t, "<page>One two.||Three.\n<page>Four five.")

	chunks := chunkSegments(text, 100)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	words := chunkWords(text, chunks[0])
	want := []string{"One", "two", "Three", "Four", "five"}
	if len(words) != len(want) {
		t.Fatalf("expected %v, got %v", want, words)
	}
	for i := range want {
		if words[i] != want[i] {
			t.Fatalf("word %d: expected %q, got %q", i, want[i], words[i])
		}
	}
}
