package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/clara-platform/clara-backend/internal/ai"
	"github.com/clara-platform/clara-backend/internal/core/clerror"
	"github.com/clara-platform/clara-backend/internal/platform/logger"
	"github.com/clara-platform/clara-backend/internal/textmodel"
)

// maxParallelChunks bounds concurrent model calls within one annotation job.
const maxParallelChunks = 5

// Annotator drives word- and segment-level model annotation of a text. It
// mutates the in-memory text; persisting the result stays with the engine.
type Annotator struct {
	client      ai.TextClient
	templates   *TemplateStore
	retryLimit  int
	maxElements int
	log         *logger.Logger
}

func NewAnnotator(client ai.TextClient, templates *TemplateStore, retryLimit, maxElements int, baseLog *logger.Logger) *Annotator {
	return &Annotator{
		client:      client,
		templates:   templates,
		retryLimit:  retryLimit,
		maxElements: maxElements,
		log:         baseLog.With("component", "Annotator"),
	}
}

// annotationArity gives the tuple width the model must return per word for a
// layer: [word, annotation] or [word, lemma, pos].
func annotationArity(layer textmodel.Layer) int {
	if layer == textmodel.LayerLemma {
		return 3
	}
	return 2
}

// AnnotateWords annotates every word of the text in the given layer by
// batching segments into chunks and calling the model once per chunk, in
// parallel. Chunks whose reply does not line up with the input words are
// retried with a stricter prompt.
func (a *Annotator) AnnotateWords(ctx context.Context, t *textmodel.Text, layer textmodel.Layer, l2, l1, operation string, progress func(string)) ([]ai.Call, error) {
	template, err := a.templates.Template(ctx, l2, layer, operation)
	if err != nil {
		return nil, err
	}
	examples, err := a.templates.Examples(ctx, l2, layer, operation)
	if err != nil {
		return nil, err
	}
	chunks := chunkSegments(t, a.maxElements)
	if len(chunks) == 0 {
		return nil, nil
	}
	if progress != nil {
		progress(fmt.Sprintf("Annotating %s: %d chunks", layer, len(chunks)))
	}

	results := make([][][]string, len(chunks))
	var mu sync.Mutex
	var calls []ai.Call

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelChunks)
	for i, c := range chunks {
		g.Go(func() error {
			words := chunkWords(t, c)
			tuples, chunkCalls, err := a.annotateChunk(gctx, template, examples, words, layer, l2, l1)
			mu.Lock()
			calls = append(calls, chunkCalls...)
			mu.Unlock()
			if err != nil {
				return err
			}
			results[i] = tuples
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return calls, err
	}

	for i, c := range chunks {
		applyWordAnnotations(t, c, results[i], layer)
	}
	return calls, nil
}

func (a *Annotator) annotateChunk(ctx context.Context, template string, examples [][]string, words []string, layer textmodel.Layer, l2, l1 string) ([][]string, []ai.Call, error) {
	input, err := json.Marshal(words)
	if err != nil {
		return nil, nil, err
	}
	prompt := Substitute(template, Substitution{
		L1:       l1,
		L2:       l2,
		Examples: FormatExamples(examples),
		Input:    string(input),
	})
	arity := annotationArity(layer)

	var calls []ai.Call
	var lastErr error
	for attempt := 0; attempt <= a.retryLimit; attempt++ {
		p := prompt
		if attempt > 0 {
			p += fmt.Sprintf("\nIMPORTANT: reply with a JSON list of exactly %d tuples of %d strings, one per input word, in the same order. No other text.", len(words), arity)
		}
		response, call, err := a.client.GenerateText(ctx, "", p)
		calls = append(calls, call)
		if err != nil {
			if !clerror.Retryable(err) {
				return nil, calls, err
			}
			lastErr = err
			continue
		}
		tuples, err := parseAnnotationTuples(response, arity)
		if err != nil {
			lastErr = err
			continue
		}
		if len(tuples) != len(words) {
			lastErr = clerror.New(clerror.AICallFailed,
				"model returned %d annotations for %d words", len(tuples), len(words))
			continue
		}
		return tuples, calls, nil
	}
	return nil, calls, clerror.Wrap(clerror.AICallFailed, lastErr,
		"annotation failed after %d attempts", a.retryLimit+1)
}

// applyWordAnnotations writes a chunk's annotation tuples onto the text's
// word elements, in order.
func applyWordAnnotations(t *textmodel.Text, c chunk, tuples [][]string, layer textmodel.Layer) {
	idx := 0
	for _, ref := range c.refs {
		seg := &t.Pages[ref.page].Segments[ref.segment]
		for ei := range seg.Elements {
			if seg.Elements[ei].Type != textmodel.Word {
				continue
			}
			if idx >= len(tuples) {
				return
			}
			tuple := tuples[idx]
			idx++
			switch layer {
			case textmodel.LayerLemma:
				seg.Elements[ei].SetAnnotation("lemma", tuple[1])
				if len(tuple) > 2 {
					seg.Elements[ei].SetAnnotation("pos", tuple[2])
				}
			default:
				seg.Elements[ei].SetAnnotation(annotationKeyForLayer(layer), tuple[1])
			}
		}
	}
}

func annotationKeyForLayer(layer textmodel.Layer) string {
	return string(layer)
}

// AnnotateSegments handles the layers whose annotations attach to whole
// segments: mwe and translated. Each non-empty segment gets its own call.
func (a *Annotator) AnnotateSegments(ctx context.Context, t *textmodel.Text, layer textmodel.Layer, l2, l1, operation string, progress func(string)) ([]ai.Call, error) {
	template, err := a.templates.Template(ctx, l2, layer, operation)
	if err != nil {
		return nil, err
	}
	examples, err := a.templates.Examples(ctx, l2, layer, operation)
	if err != nil {
		return nil, err
	}

	type segTask struct{ ref segmentRef }
	var tasks []segTask
	for pi := range t.Pages {
		for si := range t.Pages[pi].Segments {
			if t.Pages[pi].Segments[si].WordCount() > 0 {
				tasks = append(tasks, segTask{segmentRef{pi, si}})
			}
		}
	}
	if progress != nil {
		progress(fmt.Sprintf("Annotating %s: %d segments", layer, len(tasks)))
	}

	var mu sync.Mutex
	var calls []ai.Call
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelChunks)
	for _, task := range tasks {
		g.Go(func() error {
			seg := &t.Pages[task.ref.page].Segments[task.ref.segment]
			segCalls, err := a.annotateSegment(gctx, template, examples, seg, layer, l2, l1)
			mu.Lock()
			calls = append(calls, segCalls...)
			mu.Unlock()
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return calls, err
	}
	return calls, nil
}

func (a *Annotator) annotateSegment(ctx context.Context, template string, examples [][]string, seg *textmodel.Segment, layer textmodel.Layer, l2, l1 string) ([]ai.Call, error) {
	var calls []ai.Call
	switch layer {
	case textmodel.LayerTranslated:
		prompt := Substitute(template, Substitution{
			L1: l1, L2: l2,
			Examples: FormatExamples(examples),
			Input:    seg.SurfaceText(),
		})
		response, call, err := a.client.GenerateText(ctx, "", prompt)
		calls = append(calls, call)
		if err != nil {
			return calls, err
		}
		seg.AddAnnotation("translated", strings.TrimSpace(response))
		return calls, nil

	case textmodel.LayerMWE:
		input, err := json.Marshal(seg.Words())
		if err != nil {
			return calls, err
		}
		prompt := Substitute(template, Substitution{
			L1: l1, L2: l2,
			Examples: FormatExamples(examples),
			Input:    string(input),
		})
		var lastErr error
		for attempt := 0; attempt <= a.retryLimit; attempt++ {
			response, call, err := a.client.GenerateJSON(ctx, "", prompt, "mwe_annotation", nil)
			calls = append(calls, call)
			if err != nil {
				if !clerror.Retryable(err) {
					return calls, err
				}
				lastErr = err
				continue
			}
			mwes, analysis, err := decodeMWEResponse(response)
			if err != nil {
				lastErr = err
				continue
			}
			if err := validMWEsForSegment(seg, mwes); err != nil {
				lastErr = err
				continue
			}
			seg.MWEs = mwes
			if analysis != "" {
				seg.AddAnnotation("analysis", analysis)
			}
			return calls, nil
		}
		return calls, clerror.Wrap(clerror.AICallFailed, lastErr,
			"MWE annotation failed after %d attempts", a.retryLimit+1)

	default:
		return calls, clerror.New(clerror.Validation, "layer %s has no segment-level annotation", layer)
	}
}

func decodeMWEResponse(response map[string]any) ([][]string, string, error) {
	analysis, _ := response["analysis"].(string)
	raw, ok := response["mwes"].([]any)
	if !ok {
		return nil, "", clerror.New(clerror.AICallFailed, "reply lacks a mwes list")
	}
	var mwes [][]string
	for _, entry := range raw {
		items, ok := entry.([]any)
		if !ok {
			return nil, "", clerror.New(clerror.AICallFailed, "mwes entries must be lists of words")
		}
		var mwe []string
		for _, item := range items {
			s, ok := item.(string)
			if !ok {
				return nil, "", clerror.New(clerror.AICallFailed, "mwes entries must be lists of words")
			}
			mwe = append(mwe, s)
		}
		if len(mwe) > 0 {
			mwes = append(mwes, mwe)
		}
	}
	return mwes, analysis, nil
}

func validMWEsForSegment(seg *textmodel.Segment, mwes [][]string) error {
	words := seg.Words()
	for _, mwe := range mwes {
		if _, err := textmodel.MWEPositions(words, mwe); err != nil {
			return err
		}
	}
	return nil
}

// parseAnnotationTuples decodes a model reply as a JSON list of string
// tuples, tolerating a markdown code fence around the JSON.
func parseAnnotationTuples(response string, arity int) ([][]string, error) {
	cleaned := stripCodeFence(response)
	var tuples [][]string
	if err := json.Unmarshal([]byte(cleaned), &tuples); err != nil {
		return nil, clerror.Wrap(clerror.AICallFailed, err, "reply is not a JSON list of tuples")
	}
	for _, tuple := range tuples {
		if len(tuple) < 2 || len(tuple) > arity {
			return nil, clerror.New(clerror.AICallFailed,
				"expected tuples of up to %d strings, got %v", arity, tuple)
		}
	}
	return tuples, nil
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
