package textmodel

import (
	"testing"

	"github.com/clara-platform/clara-backend/internal/core/clerror"
)

func segmentedText(t *testing.T, input string) *Text {
	t.Helper()
	text, err := Internalise(input, "english", "french", LayerSegmented)
	if err != nil {
		t.Fatalf("Internalise: %v", err)
	}
	return text
}

func TestValidateMWEsAcceptsMatchingWords(t *testing.T) {
	text := segmentedText(t, "He kicked the bucket.")
	text.Pages[0].Segments[0].MWEs = [][]string{{"kicked", "the", "bucket"}}
	if err := ValidateMWEs(text); err != nil {
		t.Fatalf("ValidateMWEs: %v", err)
	}
}

func TestValidateMWEsRejectsMissingWord(t *testing.T) {
	text := segmentedText(t, "He kicked the bucket.")
	text.Pages[0].Segments[0].MWEs = [][]string{{"died"}}
	err := ValidateMWEs(text)
	if !clerror.Is(err, clerror.Validation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestValidateMWEsRejectsOutOfOrderWords(t *testing.T) {
	text := segmentedText(t, "He kicked the bucket.")
	text.Pages[0].Segments[0].MWEs = [][]string{{"bucket", "kicked"}}
	err := ValidateMWEs(text)
	if !clerror.Is(err, clerror.Validation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestMWEPositions(t *testing.T) {
	positions, err := MWEPositions([]string{"He", "kicked", "the", "bucket"}, []string{"kicked", "the", "bucket"})
	if err != nil {
		t.Fatalf("MWEPositions: %v", err)
	}
	if len(positions) != 3 || positions[0] != 1 || positions[2] != 3 {
		t.Fatalf("unexpected positions: %v", positions)
	}
}

func TestCheckTokenAlignmentMismatch(t *testing.T) {
	lemma, err := Internalise("kicked#kick/VERB# the#the#", "english", "french", LayerLemma)
	if err != nil {
		t.Fatalf("Internalise lemma: %v", err)
	}
	gloss, err := Internalise("kicked#frappé#", "english", "french", LayerGloss)
	if err != nil {
		t.Fatalf("Internalise gloss: %v", err)
	}
	err = CheckTokenAlignment(lemma, gloss)
	if !clerror.Is(err, clerror.Validation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestMergeLemmaAndGloss(t *testing.T) {
	lemma, err := Internalise("kicked#kick/VERB# the#the# bucket#bucket#", "english", "french", LayerLemma)
	if err != nil {
		t.Fatalf("Internalise lemma: %v", err)
	}
	gloss, err := Internalise("kicked#frappé# the#le# bucket#seau#", "english", "french", LayerGloss)
	if err != nil {
		t.Fatalf("Internalise gloss: %v", err)
	}
	merged, err := MergeLemmaAndGloss(lemma, gloss)
	if err != nil {
		t.Fatalf("MergeLemmaAndGloss: %v", err)
	}
	out, err := merged.Externalise(LayerLemmaAndGloss)
	if err != nil {
		t.Fatalf("Externalise: %v", err)
	}
	want := "<page>kicked#kick/VERB/frappé# the#the/NO_POS/le# bucket#bucket/NO_POS/seau#"
	if out != want {
		t.Fatalf("got %q, want %q", out, want)
	}
}
