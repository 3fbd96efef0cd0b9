package audio

import (
	"context"
	"strings"
	"testing"

	"github.com/clara-platform/clara-backend/internal/core/clerror"
	"github.com/clara-platform/clara-backend/internal/textmodel"
)

func TestParseAudacityLabels(t *testing.T) {
	data := []byte("0.000000\t2.350000\tHello world.\n2.350000\t4.100000\tGoodbye.\n")

	labels, err := ParseAlignment(data, FormatAudacity)
	if err != nil {
		t.Fatalf("ParseAlignment: %v", err)
	}
	if len(labels) != 2 {
		t.Fatalf("expected 2 labels, got %d", len(labels))
	}
	if labels[0].Text != "Hello world." || labels[0].StartMS != 0 || labels[0].EndMS != 2350 {
		t.Fatalf("unexpected first label: %+v", labels[0])
	}
	if labels[1].StartMS != 2350 || labels[1].EndMS != 4100 {
		t.Fatalf("unexpected second label: %+v", labels[1])
	}
}

func TestParseAudacityLabelsRejectsShortLines(t *testing.T) {
	_, err := ParseAlignment([]byte("0.0\t1.0\n"), FormatAudacity)
	if !clerror.Is(err, clerror.Validation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestParseJSONAlignment(t *testing.T) {
	data := []byte(`[{"text": "Hello world.", "start_ms": 0, "end_ms": 2350},
		{"text": "Goodbye.", "start_ms": 2350, "end_ms": 4100}]`)

	labels, err := ParseAlignment(data, FormatJSON)
	if err != nil {
		t.Fatalf("ParseAlignment: %v", err)
	}
	if len(labels) != 2 || labels[1].Text != "Goodbye." {
		t.Fatalf("unexpected labels: %+v", labels)
	}
}

func TestParseAlignmentRequiresExplicitFormat(t *testing.T) {
	_, err := ParseAlignment([]byte("[]"), "guess")
	if !clerror.Is(err, clerror.Validation) {
		t.Fatalf("expected validation error for unknown format, got %v", err)
	}
}

func TestAlignToSegmentsPairsInOrder(t *testing.T) {
	text, err := textmodel.Internalise("Hello world.||Goodbye.", "english", "french", textmodel.LayerSegmented)
	if err != nil {
		t.Fatalf("Internalise: %v", err)
	}
	labels := []AlignedSegment{
		{Text: "Hello world.", StartMS: 0, EndMS: 2350},
		{Text: "Goodbye.", StartMS: 2350, EndMS: 4100},
	}

	aligned, err := AlignToSegments(text, labels)
	if err != nil {
		t.Fatalf("AlignToSegments: %v", err)
	}
	if len(aligned) != 2 {
		t.Fatalf("expected 2 alignments, got %d", len(aligned))
	}
	if aligned[0].SegmentText != "Hello world." || aligned[0].EndMS != 2350 {
		t.Fatalf("unexpected first alignment: %+v", aligned[0])
	}
	if aligned[1].SegmentText != "Goodbye." || aligned[1].StartMS != 2350 {
		t.Fatalf("unexpected second alignment: %+v", aligned[1])
	}
}

func TestAlignToSegmentsCountMismatchDiagnostic(t *testing.T) {
	text, err := textmodel.Internalise("Hello world.||Goodbye.", "english", "french", textmodel.LayerSegmented)
	if err != nil {
		t.Fatalf("Internalise: %v", err)
	}

	_, err = AlignToSegments(text, []AlignedSegment{{Text: "Hello world.", EndMS: 2350}})
	if !clerror.Is(err, clerror.Validation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	msg := err.Error()
	if !strings.Contains(msg, "1 labels") || !strings.Contains(msg, "2 segments") {
		t.Fatalf("diagnostic does not name both counts: %q", msg)
	}
}

func TestSaveAndLoadAlignment(t *testing.T) {
	f := newAudioFixture(t)
	ctx := context.Background()

	alignments := []SegmentAlignment{
		{SegmentText: "Hello world.", StartMS: 0, EndMS: 2350},
		{SegmentText: "Goodbye.", StartMS: 2350, EndMS: 4100},
	}
	if err := f.service.SaveAlignment(ctx, "hello_world_abc123", "audio/recording.mp3", "plain", alignments); err != nil {
		t.Fatalf("SaveAlignment: %v", err)
	}

	file, loaded, err := f.service.LoadAlignment(ctx, "hello_world_abc123")
	if err != nil {
		t.Fatalf("LoadAlignment: %v", err)
	}
	if file != "audio/recording.mp3" {
		t.Fatalf("unexpected audio file: %q", file)
	}
	if len(loaded) != 2 || loaded[1].StartMS != 2350 {
		t.Fatalf("unexpected alignments: %+v", loaded)
	}
}

func TestLoadAlignmentMissingIsNotAnError(t *testing.T) {
	f := newAudioFixture(t)

	file, loaded, err := f.service.LoadAlignment(context.Background(), "no_such_project")
	if err != nil {
		t.Fatalf("LoadAlignment: %v", err)
	}
	if file != "" || loaded != nil {
		t.Fatalf("expected empty result, got %q %+v", file, loaded)
	}
}
