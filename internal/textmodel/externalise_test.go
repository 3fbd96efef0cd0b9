package textmodel

import (
	"testing"
)

// Round trips through the in-memory form must preserve canonical stored
// files, otherwise every save would rewrite layers that did not change.
func TestRoundTripPreservesCanonicalText(t *testing.T) {
	cases := []struct {
		name  string
		layer Layer
		input string
	}{
		{"plain", LayerPlain, "<page>He kicked the bucket. It was sad."},
		{"segmented", LayerSegmented, "<page>He @kicked the bucket@.||It was sad."},
		{"segmented pieces", LayerSegmented, "<page>ki|cked the bucket."},
		{"glossed", LayerGloss, "<page>He#Il# kicked#a frappé# the#le# bucket#seau#."},
		{"lemma", LayerLemma, "<page>kicked#kick/VERB# the#the# bucket#bucket#"},
		{"lemma and gloss", LayerLemmaAndGloss, "<page>kicked#kick/VERB/frapper#"},
		{"phonetic", LayerPhonetic, "<page>k#k#|i#ɪ#|ck#k#"},
		{"pinyin", LayerPinyin, "<page>你好#nǐ hǎo#"},
		{"two pages", LayerPlain, "<page img='cover.jpg'>First page.\n<page>Second page."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			text, err := Internalise(tc.input, "english", "french", tc.layer)
			if err != nil {
				t.Fatalf("Internalise: %v", err)
			}
			out, err := text.Externalise(tc.layer)
			if err != nil {
				t.Fatalf("Externalise: %v", err)
			}
			if out != tc.input {
				t.Fatalf("round trip changed text:\n in: %q\nout: %q", tc.input, out)
			}
		})
	}
}

func TestExternaliseWrapsMultiwordGloss(t *testing.T) {
	text := &Text{Pages: []Page{{Segments: []Segment{{Elements: []ContentElement{
		{Type: Word, Content: "kicked the bucket", Annotations: map[string]string{"gloss": "est mort"}},
	}}}}}}
	out, err := text.Externalise(LayerGloss)
	if err != nil {
		t.Fatalf("Externalise: %v", err)
	}
	want := "<page>@kicked the bucket@#est mort#"
	if out != want {
		t.Fatalf("got %q, want %q", out, want)
	}
}

func TestExternaliseEscapesSpecialCharacters(t *testing.T) {
	text := &Text{Pages: []Page{{Segments: []Segment{{Elements: []ContentElement{
		{Type: Word, Content: "C#", Annotations: map[string]string{"gloss": "langage C"}},
	}}}}}}
	out, err := text.Externalise(LayerGloss)
	if err != nil {
		t.Fatalf("Externalise: %v", err)
	}
	want := `<page>C\##langage C#`
	if out != want {
		t.Fatalf("got %q, want %q", out, want)
	}
}

func TestExternaliseMissingAnnotationUsesPlaceholder(t *testing.T) {
	text := &Text{Pages: []Page{{Segments: []Segment{{Elements: []ContentElement{
		{Type: Word, Content: "dog"},
	}}}}}}
	out, err := text.Externalise(LayerGloss)
	if err != nil {
		t.Fatalf("Externalise: %v", err)
	}
	if out != "<page>dog#-#" {
		t.Fatalf("got %q", out)
	}

	out, err = text.Externalise(LayerLemmaAndGloss)
	if err != nil {
		t.Fatalf("Externalise: %v", err)
	}
	if out != "<page>dog#NO_LEMMA/NO_POS/NO_GLOSS#" {
		t.Fatalf("got %q", out)
	}
}

func TestJSONLayerRoundTrip(t *testing.T) {
	text, err := Internalise("He @kicked the bucket@.", "english", "french", LayerSegmented)
	if err != nil {
		t.Fatalf("Internalise: %v", err)
	}
	text.Pages[0].Segments[0].MWEs = [][]string{{"kicked the bucket"}}
	text.Pages[0].Segments[0].AddAnnotation("analysis", "idiomatic, non-compositional")

	out, err := text.Externalise(LayerMWE)
	if err != nil {
		t.Fatalf("Externalise mwe: %v", err)
	}
	back, err := Internalise(out, "english", "french", LayerMWE)
	if err != nil {
		t.Fatalf("Internalise mwe: %v", err)
	}
	seg := back.Pages[0].Segments[0]
	if len(seg.MWEs) != 1 || seg.MWEs[0][0] != "kicked the bucket" {
		t.Fatalf("MWEs lost in round trip: %v", seg.MWEs)
	}
	if seg.Annotations["analysis"] == "" {
		t.Fatalf("segment annotations lost: %v", seg.Annotations)
	}
}
