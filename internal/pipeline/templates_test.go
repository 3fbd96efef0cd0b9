package pipeline

import (
	"context"
	"strings"
	"testing"

	"github.com/clara-platform/clara-backend/internal/core/clerror"
	"github.com/clara-platform/clara-backend/internal/data/repos/testutil"
	"github.com/clara-platform/clara-backend/internal/platform/filestore"
	"github.com/clara-platform/clara-backend/internal/textmodel"
)

func newTemplateStore(t *testing.T) (*TemplateStore, *filestore.Local) {
	t.Helper()
	local, err := filestore.NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	return NewTemplateStore(local, testutil.Logger(t)), local
}

func TestTemplateFallsBackToDefaultLanguage(t *testing.T) {
	s, _ := newTemplateStore(t)
	ctx := context.Background()

	if err := s.SaveTemplate(ctx, "default", textmodel.LayerGloss, "generate", "Default gloss prompt: {input}"); err != nil {
		t.Fatalf("SaveTemplate: %v", err)
	}
	if err := s.SaveTemplate(ctx, "french", textmodel.LayerGloss, "generate", "French gloss prompt: {input}"); err != nil {
		t.Fatalf("SaveTemplate: %v", err)
	}

	got, err := s.Template(ctx, "french", textmodel.LayerGloss, "generate")
	if err != nil {
		t.Fatalf("Template: %v", err)
	}
	if !strings.HasPrefix(got, "French") {
		t.Fatalf("expected the language's own template, got %q", got)
	}

	got, err = s.Template(ctx, "swedish", textmodel.LayerGloss, "generate")
	if err != nil {
		t.Fatalf("Template: %v", err)
	}
	if !strings.HasPrefix(got, "Default") {
		t.Fatalf("expected fallback to default, got %q", got)
	}
}

func TestTemplateFallsBackToBuiltin(t *testing.T) {
	s, _ := newTemplateStore(t)

	got, err := s.Template(context.Background(), "swedish", textmodel.LayerGloss, "generate")
	if err != nil {
		t.Fatalf("Template: %v", err)
	}
	if !strings.Contains(got, "{input}") {
		t.Fatalf("builtin template lacks input anchor: %q", got)
	}
}

func TestSaveTemplateRequiresInputAnchor(t *testing.T) {
	s, _ := newTemplateStore(t)

	err := s.SaveTemplate(context.Background(), "default", textmodel.LayerGloss, "generate", "no anchors here")
	if !clerror.Is(err, clerror.Validation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSaveTemplateArchivesPreviousVersion(t *testing.T) {
	s, local := newTemplateStore(t)
	ctx := context.Background()

	if err := s.SaveTemplate(ctx, "default", textmodel.LayerGloss, "generate", "First: {input}"); err != nil {
		t.Fatalf("SaveTemplate: %v", err)
	}
	if err := s.SaveTemplate(ctx, "default", textmodel.LayerGloss, "generate", "Second: {input}"); err != nil {
		t.Fatalf("SaveTemplate: %v", err)
	}

	archived, err := local.List(ctx, "prompts/default/archive")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(archived) != 1 {
		t.Fatalf("expected 1 archived template, got %d: %v", len(archived), archived)
	}

	got, err := s.Template(ctx, "default", textmodel.LayerGloss, "generate")
	if err != nil {
		t.Fatalf("Template: %v", err)
	}
	if !strings.HasPrefix(got, "Second") {
		t.Fatalf("expected the latest template, got %q", got)
	}
}

func TestExamplesMissingIsNotAnError(t *testing.T) {
	s, _ := newTemplateStore(t)

	examples, err := s.Examples(context.Background(), "swedish", textmodel.LayerGloss, "generate")
	if err != nil {
		t.Fatalf("Examples: %v", err)
	}
	if examples != nil {
		t.Fatalf("expected no examples, got %v", examples)
	}
}

func TestExamplesRoundTrip(t *testing.T) {
	s, _ := newTemplateStore(t)
	ctx := context.Background()

	in := [][]string{{"chien", "dog"}, {"chat", "cat"}}
	if err := s.SaveExamples(ctx, "french", textmodel.LayerGloss, "generate", in); err != nil {
		t.Fatalf("SaveExamples: %v", err)
	}
	out, err := s.Examples(ctx, "french", textmodel.LayerGloss, "generate")
	if err != nil {
		t.Fatalf("Examples: %v", err)
	}
	if len(out) != 2 || out[0][1] != "dog" {
		t.Fatalf("unexpected examples: %v", out)
	}

	formatted := FormatExamples(out)
	if !strings.Contains(formatted, "chien -> dog") {
		t.Fatalf("unexpected formatting: %q", formatted)
	}
}

func TestSubstituteFillsAllAnchors(t *testing.T) {
	got := Substitute("Translate from {l2_language} to {l1_language}.\n{examples}\n{input}", Substitution{
		L1: "french", L2: "english", Examples: "a -> b\n", Input: "Hello",
	})
	for _, anchor := range []string{"{l1_language}", "{l2_language}", "{examples}", "{input}"} {
		if strings.Contains(got, anchor) {
			t.Fatalf("anchor %s left unsubstituted: %q", anchor, got)
		}
	}
	if !strings.Contains(got, "english to french") || !strings.HasSuffix(got, "Hello") {
		t.Fatalf("unexpected substitution: %q", got)
	}
}
