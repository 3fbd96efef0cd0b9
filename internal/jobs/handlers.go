package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/clara-platform/clara-backend/internal/ai"
	"github.com/clara-platform/clara-backend/internal/core/clerror"
	projectrepo "github.com/clara-platform/clara-backend/internal/data/repos/project"
	types "github.com/clara-platform/clara-backend/internal/domain"
	imagesv2 "github.com/clara-platform/clara-backend/internal/images/v2"
	"github.com/clara-platform/clara-backend/internal/pipeline"
	"github.com/clara-platform/clara-backend/internal/platform/filestore"
	"github.com/clara-platform/clara-backend/internal/render"
	"github.com/clara-platform/clara-backend/internal/textmodel"
)

// HandlerDeps wires the default handlers to the engines they drive.
type HandlerDeps struct {
	FS       filestore.Store
	Projects projectrepo.ProjectRepo
	Pipeline *pipeline.Engine
	Composer *render.Composer
	Images   *imagesv2.Engine
	TTS      ai.TTSClient
}

// RegisterDefaults installs the standard task handlers.
func RegisterDefaults(reg Registry, deps HandlerDeps) {
	reg.Register(TaskAnnotate, deps.annotate)
	reg.Register(TaskRender, deps.render)
	reg.Register(TaskImagesStyle, deps.imagesStyle)
	reg.Register(TaskImagesElements, deps.imagesElements)
	reg.Register(TaskImagesPages, deps.imagesPages)
	reg.Register(TaskExport, deps.export)
	reg.Register(TaskSimpleAction, deps.simpleAction)
}

func (d HandlerDeps) project(jc *Context) (*types.Project, error) {
	if jc.Job.ProjectID == nil || *jc.Job.ProjectID == uuid.Nil {
		return nil, clerror.New(clerror.Validation, "job %s carries no project", jc.Job.ID)
	}
	p, err := d.Projects.GetByID(jc.DBC, *jc.Job.ProjectID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, clerror.New(clerror.ResourceMissing, "project %s not found", *jc.Job.ProjectID)
	}
	return p, nil
}

func decodePayload(jc *Context, v any) error {
	if len(jc.Job.Payload) == 0 {
		return clerror.New(clerror.Validation, "job %s has no payload", jc.Job.ID)
	}
	if err := json.Unmarshal(jc.Job.Payload, v); err != nil {
		return clerror.Wrap(clerror.Validation, err, "job %s payload", jc.Job.ID)
	}
	return nil
}

// AnnotatePayload drives one pipeline operation on one layer.
type AnnotatePayload struct {
	Layer     string    `json:"layer"`
	Operation string    `json:"operation"`
	Prompt    string    `json:"prompt,omitempty"`
	Text      string    `json:"text,omitempty"`
	Tool      string    `json:"tool,omitempty"`
	ArchiveID uuid.UUID `json:"archive_id,omitempty"`
	Label     string    `json:"label,omitempty"`
}

func (d HandlerDeps) annotate(jc *Context) error {
	var payload AnnotatePayload
	if err := decodePayload(jc, &payload); err != nil {
		return err
	}
	p, err := d.project(jc)
	if err != nil {
		return err
	}
	req := pipeline.Request{
		Project:   p,
		Layer:     textmodel.Layer(payload.Layer),
		UserID:    jc.Job.OwnerUserID,
		Prompt:    payload.Prompt,
		Text:      payload.Text,
		Tool:      payload.Tool,
		ArchiveID: payload.ArchiveID,
		Progress:  func(msg string) { jc.Progress(payload.Layer, 50, msg) },
	}

	jc.Progress(payload.Layer, 5, fmt.Sprintf("starting %s of %s layer", payload.Operation, payload.Layer))
	var result *pipeline.Result
	switch payload.Operation {
	case "generate":
		result, err = d.Pipeline.Generate(jc.Ctx, jc.DBC, req)
	case "improve":
		result, err = d.Pipeline.Improve(jc.Ctx, jc.DBC, req)
	case "correct":
		result, err = d.Pipeline.Correct(jc.Ctx, jc.DBC, req)
	case "manual":
		result, err = d.Pipeline.Manual(jc.Ctx, jc.DBC, req)
	case "trivial":
		result, err = d.Pipeline.Trivial(jc.Ctx, jc.DBC, req)
	case "rule_tool":
		result, err = d.Pipeline.RuleTool(jc.Ctx, jc.DBC, req)
	case "load_archived":
		result, err = d.Pipeline.LoadArchived(jc.Ctx, jc.DBC, req)
	case "delete":
		result, err = d.Pipeline.Delete(jc.Ctx, jc.DBC, req)
	default:
		return clerror.New(clerror.Validation, "unknown pipeline operation %q", payload.Operation)
	}
	if err != nil {
		return err
	}
	jc.Progress(payload.Layer, 95,
		fmt.Sprintf("%s layer written (%d model calls)", payload.Layer, len(result.Calls)))
	return nil
}

// RenderPayload drives one composer run.
type RenderPayload struct {
	Kind  string `json:"kind"`
	Voice string `json:"voice,omitempty"`
}

func (d HandlerDeps) render(jc *Context) error {
	var payload RenderPayload
	if err := decodePayload(jc, &payload); err != nil {
		return err
	}
	p, err := d.project(jc)
	if err != nil {
		return err
	}
	if payload.Kind == "" {
		payload.Kind = render.KindNormal
	}

	audioKind := string(types.AudioKindPlain)
	if payload.Kind == render.KindPhonetic {
		audioKind = string(types.AudioKindPhonetic)
	}
	audioInfo, err := d.Projects.GetHumanAudioInfo(jc.DBC, p.ID, audioKind)
	if err != nil {
		return err
	}

	jc.Progress("render", 10, fmt.Sprintf("rendering %s variant", payload.Kind))
	res, err := d.Composer.Render(jc.Ctx, jc.DBC, render.Request{
		Project:   p,
		Kind:      payload.Kind,
		TTS:       d.TTS,
		Voice:     payload.Voice,
		AudioInfo: audioInfo,
		Progress:  func(msg string) { jc.Progress("render", 50, msg) },
	})
	if err != nil {
		return err
	}
	jc.Progress("render", 95, fmt.Sprintf("rendered %d pages (%d unchanged), %d audio files synthesised",
		res.PagesRendered, res.PagesSkipped, res.AudioSynthesised))
	return nil
}

// ImagesStylePayload seeds the coherent image set.
type ImagesStylePayload struct {
	StyleAdvice string `json:"style_advice"`
}

func (d HandlerDeps) imagesStyle(jc *Context) error {
	var payload ImagesStylePayload
	if err := decodePayload(jc, &payload); err != nil {
		return err
	}
	p, err := d.project(jc)
	if err != nil {
		return err
	}
	jc.Progress("style", 10, "generating style samples")
	if _, err := d.Images.ProcessStyle(jc.Ctx, p.InternalID, payload.StyleAdvice); err != nil {
		return err
	}
	jc.Progress("style", 95, "style image promoted")
	return nil
}

func (d HandlerDeps) imagesElements(jc *Context) error {
	p, err := d.project(jc)
	if err != nil {
		return err
	}
	jc.Progress("elements", 10, "generating element images")
	if err := d.Images.ProcessElements(jc.Ctx, p.InternalID); err != nil {
		return err
	}
	jc.Progress("elements", 95, "element images promoted")
	return nil
}

// ImagesPagesPayload selects the pages to illustrate; empty means all.
type ImagesPagesPayload struct {
	Pages []int `json:"pages,omitempty"`
}

func (d HandlerDeps) imagesPages(jc *Context) error {
	var payload ImagesPagesPayload
	if len(jc.Job.Payload) > 0 {
		if err := decodePayload(jc, &payload); err != nil {
			return err
		}
	}
	p, err := d.project(jc)
	if err != nil {
		return err
	}
	jc.Progress("pages", 10, "generating page images")
	if err := d.Images.ProcessPages(jc.Ctx, p.InternalID, payload.Pages); err != nil {
		return err
	}
	jc.Progress("pages", 95, "page images promoted")
	return nil
}

// ExportKey is where a project's export zip lands in the store.
func ExportKey(internalID string) string {
	return fmt.Sprintf("exports/%s.zip", internalID)
}

func (d HandlerDeps) export(jc *Context) error {
	p, err := d.project(jc)
	if err != nil {
		return err
	}
	jc.Progress("export", 20, "collecting project files")
	data, err := d.Composer.ExportProject(jc.Ctx, p.InternalID)
	if err != nil {
		return err
	}
	key := ExportKey(p.InternalID)
	if err := d.FS.Write(jc.Ctx, key, data); err != nil {
		return err
	}
	jc.Progress("export", 95, fmt.Sprintf("export written to %s", key))
	return nil
}

// SimplePayload is the one-click flow: plain text in, rendered artefact out.
type SimplePayload struct {
	Text  string `json:"text"`
	Voice string `json:"voice,omitempty"`
}

// simpleAction chains plain, segmented, gloss and lemma generation and a
// normal render as one job with staged progress, closing with its own
// terminal token.
func (d HandlerDeps) simpleAction(jc *Context) error {
	var payload SimplePayload
	if err := decodePayload(jc, &payload); err != nil {
		return err
	}
	p, err := d.project(jc)
	if err != nil {
		return err
	}

	stages := []struct {
		name    string
		percent int
		run     func() error
	}{
		{"plain", 10, func() error {
			_, err := d.Pipeline.Manual(jc.Ctx, jc.DBC, pipeline.Request{
				Project: p, Layer: textmodel.LayerPlain, UserID: jc.Job.OwnerUserID, Text: payload.Text,
			})
			return err
		}},
		{"segmented", 25, func() error {
			_, err := d.Pipeline.Generate(jc.Ctx, jc.DBC, pipeline.Request{
				Project: p, Layer: textmodel.LayerSegmented, UserID: jc.Job.OwnerUserID,
			})
			return err
		}},
		// Simple mode skips translation and MWE tagging; placeholder layers
		// keep the render path satisfied.
		{"translated", 35, func() error {
			_, err := d.Pipeline.Trivial(jc.Ctx, jc.DBC, pipeline.Request{
				Project: p, Layer: textmodel.LayerTranslated, UserID: jc.Job.OwnerUserID,
			})
			return err
		}},
		{"mwe", 42, func() error {
			_, err := d.Pipeline.Trivial(jc.Ctx, jc.DBC, pipeline.Request{
				Project: p, Layer: textmodel.LayerMWE, UserID: jc.Job.OwnerUserID,
			})
			return err
		}},
		{"gloss", 50, func() error {
			_, err := d.Pipeline.Generate(jc.Ctx, jc.DBC, pipeline.Request{
				Project: p, Layer: textmodel.LayerGloss, UserID: jc.Job.OwnerUserID,
			})
			return err
		}},
		{"lemma", 70, func() error {
			_, err := d.Pipeline.Generate(jc.Ctx, jc.DBC, pipeline.Request{
				Project: p, Layer: textmodel.LayerLemma, UserID: jc.Job.OwnerUserID,
			})
			return err
		}},
		{"render", 90, func() error {
			_, err := d.Composer.Render(jc.Ctx, jc.DBC, render.Request{
				Project: p, Kind: render.KindNormal, TTS: d.TTS, Voice: payload.Voice,
			})
			return err
		}},
	}
	for _, stage := range stages {
		jc.Progress(stage.name, stage.percent, fmt.Sprintf("simple mode: %s", stage.name))
		if err := stage.run(); err != nil {
			return err
		}
	}
	jc.Finish(MessageFinishedSimple)
	return nil
}
