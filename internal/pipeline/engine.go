package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/clara-platform/clara-backend/internal/ai"
	"github.com/clara-platform/clara-backend/internal/core/clerror"
	types "github.com/clara-platform/clara-backend/internal/domain"
	"github.com/clara-platform/clara-backend/internal/platform/dbctx"
	"github.com/clara-platform/clara-backend/internal/platform/logger"
	"github.com/clara-platform/clara-backend/internal/textmodel"
	"github.com/clara-platform/clara-backend/internal/tools"
)

// Engine runs the per-layer annotation operations. All writes to a layer go
// through a per-project, per-layer lock; a concurrent writer is rejected
// with a Concurrency error and re-enqueued by the job layer.
type Engine struct {
	store     *LayerStore
	templates *TemplateStore
	annotator *Annotator
	client    ai.TextClient
	tools     tools.Registry
	locks     *lockTable
	log       *logger.Logger
}

func NewEngine(store *LayerStore, templates *TemplateStore, annotator *Annotator, client ai.TextClient, registry tools.Registry, baseLog *logger.Logger) *Engine {
	return &Engine{
		store:     store,
		templates: templates,
		annotator: annotator,
		client:    client,
		tools:     registry,
		locks:     newLockTable(),
		log:       baseLog.With("component", "PipelineEngine"),
	}
}

// Request parameterises one pipeline operation.
type Request struct {
	Project   *types.Project
	Layer     textmodel.Layer
	UserID    uuid.UUID
	Prompt    string    // instructions for generate/improve
	Text      string    // edited text for correct/manual
	ArchiveID uuid.UUID // for load_archived
	Tool      string    // for rule tools
	Progress  func(string)
}

func (r Request) progress(msg string) {
	if r.Progress != nil {
		r.Progress(msg)
	}
}

// Result is what an operation produced: the new layer text, its version row
// and the model calls to charge.
type Result struct {
	Text    string
	Version *types.TextVersion
	Calls   []ai.Call
}

func lockKey(p *types.Project, layer textmodel.Layer) string {
	return p.InternalID + "/" + string(layer)
}

func (e *Engine) withLayerLock(p *types.Project, layer textmodel.Layer, fn func() (*Result, error)) (*Result, error) {
	key := lockKey(p, layer)
	if err := e.locks.acquire(key); err != nil {
		return nil, err
	}
	defer e.locks.release(key)
	return fn()
}

// Generate derives a layer from its predecessor via the model or, for
// lemma_and_gloss, by merging the lemma and gloss layers.
func (e *Engine) Generate(ctx context.Context, dbc dbctx.Context, req Request) (*Result, error) {
	return e.withLayerLock(req.Project, req.Layer, func() (*Result, error) {
		return e.generateLocked(ctx, dbc, req, "generate")
	})
}

// Improve feeds the current layer back to the model with improvement
// instructions and replaces it.
func (e *Engine) Improve(ctx context.Context, dbc dbctx.Context, req Request) (*Result, error) {
	return e.withLayerLock(req.Project, req.Layer, func() (*Result, error) {
		return e.generateLocked(ctx, dbc, req, "improve")
	})
}

func (e *Engine) generateLocked(ctx context.Context, dbc dbctx.Context, req Request, operation string) (*Result, error) {
	p := req.Project
	layer := req.Layer

	if layer == textmodel.LayerLemmaAndGloss {
		return e.mergeLemmaAndGloss(ctx, dbc, req)
	}

	input, err := e.operationInput(ctx, dbc, req, operation)
	if err != nil {
		return nil, err
	}

	var (
		out   string
		calls []ai.Call
	)
	switch {
	case layer == textmodel.LayerPlain || layer == textmodel.LayerTitle ||
		layer == textmodel.LayerSummary || layer == textmodel.LayerCEFR:
		out, calls, err = e.generateFreeText(ctx, req, operation, input)
	case layer == textmodel.LayerSegmented || layer == textmodel.LayerSegmentedTitle:
		out, calls, err = e.generateSegmented(ctx, req, operation, input)
	case layer == textmodel.LayerMWE || layer == textmodel.LayerTranslated:
		out, calls, err = e.generateSegmentAnnotated(ctx, req, operation, input)
	default:
		out, calls, err = e.generateWordAnnotated(ctx, req, operation, input)
	}
	if err != nil {
		return &Result{Calls: calls}, err
	}

	version, err := e.store.Write(ctx, dbc, WriteRequest{
		Project:     p,
		Layer:       layer,
		Text:        out,
		Source:      types.SourceAIGenerated,
		UserID:      req.UserID,
		Description: fmt.Sprintf("%s via model", operation),
	})
	if err != nil {
		return &Result{Calls: calls}, err
	}
	req.progress(fmt.Sprintf("Saved new %s text", layer))
	return &Result{Text: out, Version: version, Calls: calls}, nil
}

// operationInput resolves what text an operation starts from: the current
// layer for improve, the predecessor's current for generate. Generating
// plain from a fresh prompt also records the prompt layer.
func (e *Engine) operationInput(ctx context.Context, dbc dbctx.Context, req Request, operation string) (string, error) {
	if operation == "improve" {
		return e.store.ReadCurrent(ctx, req.Project, req.Layer)
	}
	pred := Predecessor(req.Layer)
	if req.Layer == textmodel.LayerPlain && req.Prompt != "" {
		if _, err := e.store.Write(ctx, dbc, WriteRequest{
			Project: req.Project,
			Layer:   textmodel.LayerPrompt,
			Text:    req.Prompt,
			Source:  types.SourceHumanRevised,
			UserID:  req.UserID,
		}); err != nil {
			return "", err
		}
		return req.Prompt, nil
	}
	if pred == "" {
		return req.Prompt, nil
	}
	state, err := e.store.State(ctx, dbc, req.Project, pred)
	if err != nil {
		return "", err
	}
	switch state {
	case StateAbsent, StateEmpty:
		return "", clerror.New(clerror.ResourceMissing,
			"cannot derive %s: no %s text exists", req.Layer, pred)
	case StateStale:
		return "", clerror.New(clerror.Validation,
			"cannot derive %s: the %s text is stale, regenerate it first", req.Layer, pred)
	}
	return e.store.ReadCurrent(ctx, req.Project, pred)
}

func (e *Engine) generateFreeText(ctx context.Context, req Request, operation, input string) (string, []ai.Call, error) {
	template, err := e.templates.Template(ctx, req.Project.L2, req.Layer, operation)
	if err != nil {
		return "", nil, err
	}
	examples, err := e.templates.Examples(ctx, req.Project.L2, req.Layer, operation)
	if err != nil {
		return "", nil, err
	}
	if operation == "improve" && req.Prompt != "" {
		input = req.Prompt + "\n\n" + input
	}
	prompt := Substitute(template, Substitution{
		L1: req.Project.L1, L2: req.Project.L2,
		Examples: FormatExamples(examples),
		Input:    input,
	})
	req.progress(fmt.Sprintf("Generating %s text", req.Layer))
	response, call, err := e.client.GenerateText(ctx, "", prompt)
	calls := []ai.Call{call}
	if err != nil {
		return "", calls, err
	}
	out := strings.TrimSpace(response)
	if _, err := textmodel.Internalise(out, req.Project.L2, req.Project.L1, req.Layer); err != nil {
		return "", calls, err
	}
	return out, calls, nil
}

func (e *Engine) generateSegmented(ctx context.Context, req Request, operation, input string) (string, []ai.Call, error) {
	// Rule-based segmentation takes precedence where a tool covers the
	// language; the model is the general path.
	for _, tool := range e.tools {
		if tool.TargetLayer() == req.Layer && tool.Supports(req.Project.L2) {
			req.progress(fmt.Sprintf("Segmenting with %s", tool.Name()))
			out, err := tool.Annotate(ctx, input, req.Project.L2, req.Project.L1)
			return out, nil, err
		}
	}
	return e.generateSegmentedViaModel(ctx, req, operation, input)
}

func (e *Engine) generateSegmentedViaModel(ctx context.Context, req Request, operation, input string) (string, []ai.Call, error) {
	template, err := e.templates.Template(ctx, req.Project.L2, req.Layer, operation)
	if err != nil {
		return "", nil, err
	}
	examples, err := e.templates.Examples(ctx, req.Project.L2, req.Layer, operation)
	if err != nil {
		return "", nil, err
	}
	prompt := Substitute(template, Substitution{
		L1: req.Project.L1, L2: req.Project.L2,
		Examples: FormatExamples(examples),
		Input:    input,
	})
	req.progress("Segmenting text")
	response, call, err := e.client.GenerateText(ctx, "", prompt)
	calls := []ai.Call{call}
	if err != nil {
		return "", calls, err
	}
	out := strings.TrimSpace(response)
	if _, err := textmodel.Internalise(out, req.Project.L2, req.Project.L1, req.Layer); err != nil {
		return "", calls, err
	}
	return out, calls, nil
}

func (e *Engine) generateWordAnnotated(ctx context.Context, req Request, operation, input string) (string, []ai.Call, error) {
	sourceLayer := textmodel.LayerSegmented
	if operation == "improve" {
		sourceLayer = req.Layer
	}
	text, err := textmodel.Internalise(input, req.Project.L2, req.Project.L1, sourceLayer)
	if err != nil {
		return "", nil, err
	}
	calls, err := e.annotator.AnnotateWords(ctx, text, req.Layer, req.Project.L2, req.Project.L1, operation, req.Progress)
	if err != nil {
		return "", calls, err
	}
	out, err := text.Externalise(req.Layer)
	if err != nil {
		return "", calls, err
	}
	return out, calls, nil
}

func (e *Engine) generateSegmentAnnotated(ctx context.Context, req Request, operation, input string) (string, []ai.Call, error) {
	sourceLayer := textmodel.LayerSegmented
	if operation == "improve" {
		sourceLayer = req.Layer
	}
	text, err := textmodel.Internalise(input, req.Project.L2, req.Project.L1, sourceLayer)
	if err != nil {
		return "", nil, err
	}
	calls, err := e.annotator.AnnotateSegments(ctx, text, req.Layer, req.Project.L2, req.Project.L1, operation, req.Progress)
	if err != nil {
		return "", calls, err
	}
	out, err := text.Externalise(req.Layer)
	if err != nil {
		return "", calls, err
	}
	return out, calls, nil
}

func (e *Engine) mergeLemmaAndGloss(ctx context.Context, dbc dbctx.Context, req Request) (*Result, error) {
	lemmaText, err := e.store.ReadCurrent(ctx, req.Project, textmodel.LayerLemma)
	if err != nil {
		return nil, err
	}
	glossText, err := e.store.ReadCurrent(ctx, req.Project, textmodel.LayerGloss)
	if err != nil {
		return nil, err
	}
	lemma, err := textmodel.Internalise(lemmaText, req.Project.L2, req.Project.L1, textmodel.LayerLemma)
	if err != nil {
		return nil, err
	}
	gloss, err := textmodel.Internalise(glossText, req.Project.L2, req.Project.L1, textmodel.LayerGloss)
	if err != nil {
		return nil, err
	}
	merged, err := textmodel.MergeLemmaAndGloss(lemma, gloss)
	if err != nil {
		return nil, err
	}
	out, err := merged.Externalise(textmodel.LayerLemmaAndGloss)
	if err != nil {
		return nil, err
	}
	version, err := e.store.Write(ctx, dbc, WriteRequest{
		Project:     req.Project,
		Layer:       textmodel.LayerLemmaAndGloss,
		Text:        out,
		Source:      types.SourceRuleBased,
		UserID:      req.UserID,
		Description: "merged lemma and gloss layers",
	})
	if err != nil {
		return nil, err
	}
	return &Result{Text: out, Version: version}, nil
}

// Correct saves hand-edited text. If it fails to parse and a model is
// available, the model repairs it; otherwise the parse error, which points
// at the offending page and segment, goes back to the caller.
func (e *Engine) Correct(ctx context.Context, dbc dbctx.Context, req Request) (*Result, error) {
	return e.withLayerLock(req.Project, req.Layer, func() (*Result, error) {
		if _, parseErr := textmodel.Internalise(req.Text, req.Project.L2, req.Project.L1, req.Layer); parseErr == nil {
			return e.saveManualLocked(ctx, dbc, req, "corrected by hand")
		} else if e.client == nil {
			return nil, parseErr
		} else {
			return e.repairViaModel(ctx, dbc, req, parseErr)
		}
	})
}

func (e *Engine) repairViaModel(ctx context.Context, dbc dbctx.Context, req Request, parseErr error) (*Result, error) {
	template, err := e.templates.Template(ctx, req.Project.L2, req.Layer, "correct")
	if err != nil {
		template = builtinTemplates["correct"]
	}
	prompt := Substitute(template, Substitution{
		L1: req.Project.L1, L2: req.Project.L2,
		Examples: string(req.Layer),
		Input:    req.Text,
	})
	req.progress("Repairing text with the model")
	response, call, err := e.client.GenerateText(ctx, "", prompt)
	calls := []ai.Call{call}
	if err != nil {
		return &Result{Calls: calls}, err
	}
	repaired := strings.TrimSpace(response)
	if _, err := textmodel.Internalise(repaired, req.Project.L2, req.Project.L1, req.Layer); err != nil {
		// Repair did not converge; the user's parse error is the actionable one.
		return &Result{Calls: calls}, parseErr
	}
	version, err := e.store.Write(ctx, dbc, WriteRequest{
		Project:     req.Project,
		Layer:       req.Layer,
		Text:        repaired,
		Source:      types.SourceAIGenerated,
		UserID:      req.UserID,
		Description: "model repair of hand-edited text",
	})
	if err != nil {
		return &Result{Calls: calls}, err
	}
	return &Result{Text: repaired, Version: version, Calls: calls}, nil
}

// Manual saves edited text verbatim after structural validation.
func (e *Engine) Manual(ctx context.Context, dbc dbctx.Context, req Request) (*Result, error) {
	return e.withLayerLock(req.Project, req.Layer, func() (*Result, error) {
		text, err := textmodel.Internalise(req.Text, req.Project.L2, req.Project.L1, req.Layer)
		if err != nil {
			return nil, err
		}
		if req.Layer == textmodel.LayerMWE {
			if err := textmodel.ValidateMWEs(text); err != nil {
				return nil, err
			}
		}
		return e.saveManualLocked(ctx, dbc, req, "saved by hand")
	})
}

func (e *Engine) saveManualLocked(ctx context.Context, dbc dbctx.Context, req Request, description string) (*Result, error) {
	version, err := e.store.Write(ctx, dbc, WriteRequest{
		Project:     req.Project,
		Layer:       req.Layer,
		Text:        req.Text,
		Source:      types.SourceHumanRevised,
		UserID:      req.UserID,
		Description: description,
	})
	if err != nil {
		return nil, err
	}
	return &Result{Text: req.Text, Version: version}, nil
}

// Trivial produces a mechanically valid placeholder version of a layer so
// downstream steps can proceed: lemma = surface, gloss = "-", and so on.
func (e *Engine) Trivial(ctx context.Context, dbc dbctx.Context, req Request) (*Result, error) {
	return e.withLayerLock(req.Project, req.Layer, func() (*Result, error) {
		input, err := e.store.ReadCurrent(ctx, req.Project, textmodel.LayerSegmented)
		if err != nil {
			return nil, err
		}
		text, err := textmodel.Internalise(input, req.Project.L2, req.Project.L1, textmodel.LayerSegmented)
		if err != nil {
			return nil, err
		}
		applyTrivialAnnotations(text, req.Layer)
		out, err := text.Externalise(req.Layer)
		if err != nil {
			return nil, err
		}
		version, err := e.store.Write(ctx, dbc, WriteRequest{
			Project:     req.Project,
			Layer:       req.Layer,
			Text:        out,
			Source:      types.SourceRuleBased,
			UserID:      req.UserID,
			Description: "trivial placeholder version",
		})
		if err != nil {
			return nil, err
		}
		return &Result{Text: out, Version: version}, nil
	})
}

func applyTrivialAnnotations(t *textmodel.Text, layer textmodel.Layer) {
	for pi := range t.Pages {
		for si := range t.Pages[pi].Segments {
			seg := &t.Pages[pi].Segments[si]
			if layer == textmodel.LayerTranslated {
				seg.AddAnnotation("translated", "")
				continue
			}
			if layer == textmodel.LayerMWE {
				continue
			}
			for ei := range seg.Elements {
				if seg.Elements[ei].Type != textmodel.Word {
					continue
				}
				switch layer {
				case textmodel.LayerGloss:
					seg.Elements[ei].SetAnnotation("gloss", "-")
				case textmodel.LayerLemma:
					seg.Elements[ei].SetAnnotation("lemma", seg.Elements[ei].Content)
				default:
					seg.Elements[ei].SetAnnotation(annotationKeyForLayer(layer), seg.Elements[ei].Content)
				}
			}
		}
	}
}

// RuleTool derives a layer with a named deterministic tool. Unsupported
// languages or missing binaries report as unsupported and are never retried.
func (e *Engine) RuleTool(ctx context.Context, dbc dbctx.Context, req Request) (*Result, error) {
	tool, ok := e.tools[req.Tool]
	if !ok {
		return nil, clerror.New(clerror.ToolUnsupported, "unknown tool %q", req.Tool)
	}
	layer := tool.TargetLayer()
	req.Layer = layer
	return e.withLayerLock(req.Project, layer, func() (*Result, error) {
		if !tool.Supports(req.Project.L2) {
			return nil, clerror.New(clerror.ToolUnsupported,
				"tool %s does not support %s", tool.Name(), req.Project.L2)
		}
		pred := Predecessor(layer)
		input, err := e.store.ReadCurrent(ctx, req.Project, pred)
		if err != nil {
			return nil, err
		}
		req.progress(fmt.Sprintf("Running %s", tool.Name()))
		out, err := tool.Annotate(ctx, input, req.Project.L2, req.Project.L1)
		if err != nil {
			return nil, err
		}
		if _, err := textmodel.Internalise(out, req.Project.L2, req.Project.L1, layer); err != nil {
			return nil, err
		}
		version, err := e.store.Write(ctx, dbc, WriteRequest{
			Project:     req.Project,
			Layer:       layer,
			Text:        out,
			Source:      types.SourceRuleBased,
			UserID:      req.UserID,
			Description: fmt.Sprintf("generated by %s", tool.Name()),
		})
		if err != nil {
			return nil, err
		}
		return &Result{Text: out, Version: version}, nil
	})
}

// LoadArchived restores an archived version as the new current, through a
// fresh write so the restore itself is archived.
func (e *Engine) LoadArchived(ctx context.Context, dbc dbctx.Context, req Request) (*Result, error) {
	return e.withLayerLock(req.Project, req.Layer, func() (*Result, error) {
		version, err := e.store.LoadArchived(ctx, dbc, req.Project, req.ArchiveID, req.UserID)
		if err != nil {
			return nil, err
		}
		return &Result{Version: version}, nil
	})
}

// Delete empties the layer. Derived layers become stale implicitly since
// their predecessor no longer exists.
func (e *Engine) Delete(ctx context.Context, dbc dbctx.Context, req Request) (*Result, error) {
	return e.withLayerLock(req.Project, req.Layer, func() (*Result, error) {
		if err := e.store.Delete(ctx, req.Project, req.Layer); err != nil {
			return nil, err
		}
		return &Result{}, nil
	})
}

// RenderReady reports whether every layer on the render path is up-to-date,
// returning the first offender otherwise.
func (e *Engine) RenderReady(ctx context.Context, dbc dbctx.Context, p *types.Project) (textmodel.Layer, bool, error) {
	for _, layer := range RenderPath {
		ok, err := e.store.UpToDate(ctx, dbc, p, layer)
		if err != nil {
			return layer, false, err
		}
		if !ok {
			return layer, false, nil
		}
	}
	return "", true, nil
}
