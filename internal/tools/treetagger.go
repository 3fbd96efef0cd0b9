package tools

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	"github.com/clara-platform/clara-backend/internal/core/clerror"
	"github.com/clara-platform/clara-backend/internal/platform/logger"
	"github.com/clara-platform/clara-backend/internal/textmodel"
)

// treeTaggerLanguages maps language names to the TreeTagger wrapper script
// expected on PATH. Only languages with an installed parameter file work;
// anything else is reported as unsupported.
var treeTaggerLanguages = map[string]string{
	"english": "tree-tagger-english",
	"french":  "tree-tagger-french",
	"german":  "tree-tagger-german",
	"italian": "tree-tagger-italian",
	"spanish": "tree-tagger-spanish",
	"dutch":   "tree-tagger-dutch",
}

// TreeTagger derives the lemma layer from segmented text by running the
// TreeTagger binary over the words of each segment.
type TreeTagger struct {
	log *logger.Logger
}

func NewTreeTagger(baseLog *logger.Logger) *TreeTagger {
	return &TreeTagger{log: baseLog.With("tool", "tree_tagger")}
}

func (t *TreeTagger) Name() string                 { return "tree_tagger" }
func (t *TreeTagger) TargetLayer() textmodel.Layer { return textmodel.LayerLemma }

func (t *TreeTagger) Supports(language string) bool {
	script, ok := treeTaggerLanguages[strings.ToLower(language)]
	if !ok {
		return false
	}
	_, err := exec.LookPath(script)
	return err == nil
}

func (t *TreeTagger) Annotate(ctx context.Context, segmentedText, l2, l1 string) (string, error) {
	script, ok := treeTaggerLanguages[strings.ToLower(l2)]
	if !ok {
		return "", clerror.New(clerror.ToolUnsupported, "TreeTagger has no parameters for %s", l2)
	}
	path, err := exec.LookPath(script)
	if err != nil {
		return "", clerror.New(clerror.ToolUnsupported, "TreeTagger script %s not installed", script)
	}

	text, err := textmodel.Internalise(segmentedText, l2, l1, textmodel.LayerSegmented)
	if err != nil {
		return "", err
	}
	words := allWords(text)
	if len(words) == 0 {
		return text.Externalise(textmodel.LayerLemma)
	}

	cmd := exec.CommandContext(ctx, path)
	cmd.Stdin = strings.NewReader(strings.Join(words, "\n"))
	var out, errBuf bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errBuf
	if err := cmd.Run(); err != nil {
		return "", clerror.Wrap(clerror.ToolUnsupported, err, "TreeTagger failed: %s", errBuf.String())
	}

	lemmas, poss, err := parseTreeTaggerOutput(out.String(), len(words))
	if err != nil {
		return "", err
	}
	idx := 0
	for pi := range text.Pages {
		for si := range text.Pages[pi].Segments {
			seg := &text.Pages[pi].Segments[si]
			for ei := range seg.Elements {
				if seg.Elements[ei].Type != textmodel.Word {
					continue
				}
				seg.Elements[ei].SetAnnotation("lemma", lemmas[idx])
				seg.Elements[ei].SetAnnotation("pos", poss[idx])
				idx++
			}
		}
	}
	return text.Externalise(textmodel.LayerLemma)
}

// parseTreeTaggerOutput reads "token<TAB>pos<TAB>lemma" lines. An <unknown>
// lemma falls back to the surface form.
func parseTreeTaggerOutput(output string, wantWords int) (lemmas, poss []string, err error) {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 3 {
			return nil, nil, clerror.New(clerror.ToolUnsupported,
				"unexpected TreeTagger output line %q", line)
		}
		lemma := fields[2]
		if lemma == "<unknown>" || lemma == "" {
			lemma = fields[0]
		}
		lemmas = append(lemmas, lemma)
		poss = append(poss, fields[1])
	}
	if len(lemmas) != wantWords {
		return nil, nil, clerror.New(clerror.ToolUnsupported,
			"TreeTagger returned %d lines for %d words", len(lemmas), wantWords)
	}
	return lemmas, poss, nil
}

func allWords(t *textmodel.Text) []string {
	var words []string
	for pi := range t.Pages {
		for si := range t.Pages[pi].Segments {
			words = append(words, t.Pages[pi].Segments[si].Words()...)
		}
	}
	return words
}
