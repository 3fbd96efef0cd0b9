// Package render composes the self-contained reading artefact: one HTML file
// per page with clickable segment audio, per-word hover annotations and page
// images, plus the multimedia and static assets the pages reference.
// Rendering is idempotent on identical inputs; pages whose content is
// unchanged are not rewritten.
package render

import (
	"context"
	"fmt"
	"path"

	"github.com/clara-platform/clara-backend/internal/ai"
	audiosvc "github.com/clara-platform/clara-backend/internal/audio"
	"github.com/clara-platform/clara-backend/internal/core/clerror"
	imagesrepo "github.com/clara-platform/clara-backend/internal/data/repos/images"
	types "github.com/clara-platform/clara-backend/internal/domain"
	imagesv2 "github.com/clara-platform/clara-backend/internal/images/v2"
	"github.com/clara-platform/clara-backend/internal/phonetic"
	"github.com/clara-platform/clara-backend/internal/pipeline"
	"github.com/clara-platform/clara-backend/internal/platform/dbctx"
	"github.com/clara-platform/clara-backend/internal/platform/filestore"
	"github.com/clara-platform/clara-backend/internal/platform/logger"
	"github.com/clara-platform/clara-backend/internal/textmodel"
)

// Kind selects the artefact variant.
const (
	KindNormal   = "normal"
	KindPhonetic = "phonetic"
)

type Composer struct {
	fs       filestore.Store
	layers   *pipeline.LayerStore
	audio    *audiosvc.Service
	phonetic *phonetic.Service
	images   imagesrepo.ImageRecordRepo
	log      *logger.Logger
}

func NewComposer(fs filestore.Store, layers *pipeline.LayerStore, audio *audiosvc.Service, phon *phonetic.Service, images imagesrepo.ImageRecordRepo, baseLog *logger.Logger) *Composer {
	return &Composer{
		fs:       fs,
		layers:   layers,
		audio:    audio,
		phonetic: phon,
		images:   images,
		log:      baseLog.With("component", "Composer"),
	}
}

// Request parameterises one render. TTS is optional; without an engine the
// pages are composed silent. AudioInfo carries the project's per-kind audio
// preferences and may be nil for the TTS defaults.
type Request struct {
	Project   *types.Project
	Kind      string
	TTS       ai.TTSClient
	Voice     string
	AudioInfo *types.HumanAudioInfo
	Progress  func(string)
}

func (r Request) progress(msg string) {
	if r.Progress != nil {
		r.Progress(msg)
	}
}

// Result reports what the render actually did.
type Result struct {
	Pages            int
	PagesRendered    int
	PagesSkipped     int
	AudioSynthesised int
	Calls            []ai.Call
}

// RootKey is the store prefix of one rendered variant.
func RootKey(internalID, kind string) string {
	return fmt.Sprintf("rendered_texts/%s/%s", internalID, kind)
}

func pageKey(internalID, kind string, n int) string {
	return fmt.Sprintf("%s/page_%d.html", RootKey(internalID, kind), n)
}

func multimediaKey(internalID, kind, name string) string {
	return fmt.Sprintf("%s/multimedia/%s", RootKey(internalID, kind), name)
}

func staticKey(internalID, kind, name string) string {
	return fmt.Sprintf("%s/static/%s", RootKey(internalID, kind), name)
}

// Render composes the requested variant. Every layer on the render path must
// be up-to-date; the phonetic variant additionally needs a current phonetic
// layer.
func (c *Composer) Render(ctx context.Context, dbc dbctx.Context, req Request) (*Result, error) {
	if req.Kind != KindNormal && req.Kind != KindPhonetic {
		return nil, clerror.New(clerror.Validation, "unknown render kind %q", req.Kind)
	}
	required := pipeline.RenderPath
	if req.Kind == KindPhonetic {
		required = append(append([]textmodel.Layer{}, required...), textmodel.LayerPhonetic)
	}
	for _, layer := range required {
		ok, err := c.layers.UpToDate(ctx, dbc, req.Project, layer)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, clerror.New(clerror.Validation,
				"cannot render: layer %s of project %s is not up to date", layer, req.Project.InternalID)
		}
	}

	req.progress("assembling annotated text")
	var (
		text *textmodel.Text
		err  error
	)
	if req.Kind == KindPhonetic {
		text, err = c.loadPhoneticText(ctx, dbc, req.Project)
	} else {
		text, err = c.loadMergedText(ctx, dbc, req.Project)
	}
	if err != nil {
		return nil, err
	}

	result := &Result{Pages: len(text.Pages)}

	req.progress("resolving audio")
	sound, err := c.resolveAudio(ctx, dbc, req, text, result)
	if err != nil {
		return nil, err
	}

	req.progress("placing images")
	imagesByPage, err := c.resolveImages(ctx, dbc, req, len(text.Pages))
	if err != nil {
		return nil, err
	}

	views, err := c.buildPageViews(ctx, dbc, req, text, sound, imagesByPage)
	if err != nil {
		return nil, err
	}

	req.progress("writing pages")
	if err := c.writeStatic(ctx, req.Project.InternalID, req.Kind); err != nil {
		return nil, err
	}
	if err := c.writePages(ctx, req, views, result); err != nil {
		return nil, err
	}

	c.log.Info("render complete", "project", req.Project.InternalID, "kind", req.Kind,
		"pages", result.Pages, "rendered", result.PagesRendered, "skipped", result.PagesSkipped)
	return result, nil
}

// loadMergedText internalises the gloss layer and overlays lemma, pinyin and
// MWE annotations onto it by word position. Layers on the render path share
// the segmented predecessor, so their word sequences must agree.
func (c *Composer) loadMergedText(ctx context.Context, dbc dbctx.Context, p *types.Project) (*textmodel.Text, error) {
	base, err := c.loadLayer(ctx, p, textmodel.LayerGloss)
	if err != nil {
		return nil, err
	}
	for _, layer := range []textmodel.Layer{textmodel.LayerLemma, textmodel.LayerPinyin} {
		overlay, err := c.loadOptionalLayer(ctx, p, layer)
		if err != nil {
			return nil, err
		}
		if overlay == nil {
			continue
		}
		if err := mergeWordAnnotations(base, overlay, string(layer)); err != nil {
			return nil, err
		}
	}
	mwe, err := c.loadOptionalLayer(ctx, p, textmodel.LayerMWE)
	if err != nil {
		return nil, err
	}
	if mwe != nil {
		if err := mergeMWEs(base, mwe); err != nil {
			return nil, err
		}
	}
	translated, err := c.loadOptionalLayer(ctx, p, textmodel.LayerTranslated)
	if err != nil {
		return nil, err
	}
	if translated != nil {
		mergeSegmentAnnotations(base, translated, "translated")
	}
	return base, nil
}

func (c *Composer) loadPhoneticText(ctx context.Context, dbc dbctx.Context, p *types.Project) (*textmodel.Text, error) {
	return c.loadLayer(ctx, p, textmodel.LayerPhonetic)
}

func (c *Composer) loadLayer(ctx context.Context, p *types.Project, layer textmodel.Layer) (*textmodel.Text, error) {
	raw, err := c.layers.ReadCurrent(ctx, p, layer)
	if err != nil {
		return nil, err
	}
	return textmodel.Internalise(raw, p.L2, p.L1, layer)
}

func (c *Composer) loadOptionalLayer(ctx context.Context, p *types.Project, layer textmodel.Layer) (*textmodel.Text, error) {
	ok, err := c.fs.Exists(ctx, pipeline.CurrentKey(p.InternalID, layer))
	if err != nil || !ok {
		return nil, err
	}
	return c.loadLayer(ctx, p, layer)
}

// mergeWordAnnotations copies the overlay's per-word annotations under key
// onto the base text, pairing words in order.
func mergeWordAnnotations(base, overlay *textmodel.Text, key string) error {
	baseWords := wordElements(base)
	overlayWords := wordElements(overlay)
	if len(baseWords) != len(overlayWords) {
		return clerror.New(clerror.Validation,
			"layer %s has %d words where the gloss layer has %d; regenerate the stale layer",
			key, len(overlayWords), len(baseWords))
	}
	for i, w := range overlayWords {
		if v, ok := w.Annotation(key); ok {
			baseWords[i].SetAnnotation(key, v)
		}
	}
	return nil
}

// mergeMWEs copies segment-level multi-word expressions onto the base text.
func mergeMWEs(base, overlay *textmodel.Text) error {
	baseSegs := segmentPointers(base)
	overlaySegs := segmentPointers(overlay)
	if len(baseSegs) != len(overlaySegs) {
		return clerror.New(clerror.Validation,
			"mwe layer has %d segments where the gloss layer has %d; regenerate the stale layer",
			len(overlaySegs), len(baseSegs))
	}
	for i, s := range overlaySegs {
		baseSegs[i].MWEs = s.MWEs
	}
	return nil
}

// mergeSegmentAnnotations copies one segment annotation key across texts with
// matching segment counts; a mismatch just skips the overlay, translations
// are advisory.
func mergeSegmentAnnotations(base, overlay *textmodel.Text, key string) {
	baseSegs := segmentPointers(base)
	overlaySegs := segmentPointers(overlay)
	if len(baseSegs) != len(overlaySegs) {
		return
	}
	for i, s := range overlaySegs {
		if v, ok := s.Annotations[key]; ok {
			baseSegs[i].AddAnnotation(key, v)
		}
	}
}

func wordElements(t *textmodel.Text) []*textmodel.ContentElement {
	var out []*textmodel.ContentElement
	for pi := range t.Pages {
		for si := range t.Pages[pi].Segments {
			seg := &t.Pages[pi].Segments[si]
			for ei := range seg.Elements {
				if seg.Elements[ei].Type == textmodel.Word {
					out = append(out, &seg.Elements[ei])
				}
			}
		}
	}
	return out
}

func segmentPointers(t *textmodel.Text) []*textmodel.Segment {
	var out []*textmodel.Segment
	for pi := range t.Pages {
		for si := range t.Pages[pi].Segments {
			out = append(out, &t.Pages[pi].Segments[si])
		}
	}
	return out
}

// segmentRef addresses one segment within the text.
type segmentRef struct {
	Page    int
	Segment int
}

// audioSpan cues one segment inside a single manually aligned recording.
type audioSpan struct {
	File    string
	StartMS int
	EndMS   int
}

// wordKey addresses one word recording. Context is the surface text of the
// containing segment when the project records words in context, empty
// otherwise.
type wordKey struct {
	Text    string
	Context string
}

// resolvedAudio is everything the page builder needs to cue playback: one
// file per segment, or spans into a single aligned recording, plus optional
// per-word files.
type resolvedAudio struct {
	segments   map[segmentRef]string
	spans      map[segmentRef]audioSpan
	words      map[wordKey]string
	useContext bool
}

// wordFile looks up a word recording, with the segment surface as context
// when the project asked for in-context words.
func (a *resolvedAudio) wordFile(word, segmentSurface string) (string, bool) {
	key := wordKey{Text: word}
	if a.useContext {
		key.Context = segmentSurface
	}
	name, ok := a.words[key]
	return name, ok
}

// resolveAudio returns audio file names relative to multimedia/, either from
// a manual alignment or from the TTS cache, copying every referenced file
// into the artefact.
func (c *Composer) resolveAudio(ctx context.Context, dbc dbctx.Context, req Request, text *textmodel.Text, result *Result) (*resolvedAudio, error) {
	isPhonetic := req.Kind == KindPhonetic
	sound := &resolvedAudio{segments: map[segmentRef]string{}, words: map[wordKey]string{}}

	audioFile, alignments, err := c.audio.LoadAlignment(ctx, req.Project.InternalID)
	if err != nil {
		return nil, err
	}
	if audioFile != "" && len(alignments) > 0 && !isPhonetic {
		sound.spans, err = c.alignedAudio(ctx, req, text, audioFile, alignments)
		return sound, err
	}

	if req.TTS == nil {
		return sound, nil
	}

	refs, items := c.audioItems(text, isPhonetic)
	ensured, err := c.audio.Ensure(ctx, dbc, audiosvc.EnsureRequest{
		Engine:   req.TTS,
		Language: req.Project.L2,
		Voice:    req.Voice,
		Items:    items,
	})
	if err != nil {
		return nil, err
	}
	result.AudioSynthesised = ensured.Synthesised
	result.Calls = append(result.Calls, ensured.Calls...)

	for i, ref := range refs {
		cacheKey, ok := ensured.Paths[items[i]]
		if !ok {
			continue
		}
		name := path.Base(cacheKey)
		if err := c.fs.Copy(ctx, cacheKey, multimediaKey(req.Project.InternalID, req.Kind, name)); err != nil {
			return nil, err
		}
		sound.segments[ref] = name
	}

	if req.AudioInfo != nil && req.AudioInfo.UseForWords && !isPhonetic {
		if err := c.resolveWordAudio(ctx, dbc, req, text, result, sound); err != nil {
			return nil, err
		}
	}
	return sound, nil
}

// resolveWordAudio synthesises stand-alone word audio for projects that ask
// for it. With UseContext set, each word is keyed and synthesised per
// containing segment, so homographs get the reading their sentence calls
// for; otherwise one recording per surface form.
func (c *Composer) resolveWordAudio(ctx context.Context, dbc dbctx.Context, req Request, text *textmodel.Text, result *Result, sound *resolvedAudio) error {
	sound.useContext = req.AudioInfo != nil && req.AudioInfo.UseContext
	seen := map[wordKey]bool{}
	var items []audiosvc.Item
	for _, seg := range segmentPointers(text) {
		var segContext string
		if sound.useContext {
			segContext = seg.SurfaceText()
		}
		for ei := range seg.Elements {
			el := &seg.Elements[ei]
			if el.Type != textmodel.Word {
				continue
			}
			key := wordKey{Text: el.Content, Context: segContext}
			if seen[key] {
				continue
			}
			seen[key] = true
			items = append(items, audiosvc.Item{Text: el.Content, Context: segContext})
		}
	}
	ensured, err := c.audio.Ensure(ctx, dbc, audiosvc.EnsureRequest{
		Engine:   req.TTS,
		Language: req.Project.L2,
		Voice:    req.Voice,
		Items:    items,
	})
	if err != nil {
		return err
	}
	result.AudioSynthesised += ensured.Synthesised
	result.Calls = append(result.Calls, ensured.Calls...)
	for item, cacheKey := range ensured.Paths {
		name := path.Base(cacheKey)
		if err := c.fs.Copy(ctx, cacheKey, multimediaKey(req.Project.InternalID, req.Kind, name)); err != nil {
			return err
		}
		sound.words[wordKey{Text: item.Text, Context: item.Context}] = name
	}
	return nil
}

// audioItems lists the word-bearing segments in order, paired with their
// positions. In a phonetic text each segment is one orthographic word.
func (c *Composer) audioItems(text *textmodel.Text, phonetic bool) ([]segmentRef, []audiosvc.Item) {
	var refs []segmentRef
	var items []audiosvc.Item
	for pi := range text.Pages {
		for si := range text.Pages[pi].Segments {
			seg := &text.Pages[pi].Segments[si]
			var n int
			if phonetic {
				n = seg.PhoneticWordCount()
			} else {
				n = seg.WordCount()
			}
			if n == 0 {
				continue
			}
			refs = append(refs, segmentRef{Page: pi, Segment: si})
			items = append(items, audiosvc.Item{Text: seg.SurfaceText()})
		}
	}
	return refs, items
}

// alignedAudio copies the single manual recording into the artefact and cues
// each word-bearing segment by its stored span, pairing in order.
func (c *Composer) alignedAudio(ctx context.Context, req Request, text *textmodel.Text, audioFile string, alignments []audiosvc.SegmentAlignment) (map[segmentRef]audioSpan, error) {
	refs, _ := c.audioItems(text, false)
	if len(refs) != len(alignments) {
		return nil, clerror.New(clerror.Validation,
			"stored alignment has %d segments but the text has %d; re-import the alignment",
			len(alignments), len(refs))
	}
	name := path.Base(audioFile)
	if err := c.fs.Copy(ctx, audioFile, multimediaKey(req.Project.InternalID, req.Kind, name)); err != nil {
		return nil, err
	}
	spans := make(map[segmentRef]audioSpan, len(refs))
	for i, ref := range refs {
		spans[ref] = audioSpan{File: name, StartMS: alignments[i].StartMS, EndMS: alignments[i].EndMS}
	}
	return spans, nil
}

// pageImage is one image placed on a page. Thumb is set when the original
// was large enough to downscale.
type pageImage struct {
	File     string
	Thumb    string
	Alt      string
	Position string
}

// placeImage copies an image into the artefact and derives its thumbnail.
func (c *Composer) placeImage(ctx context.Context, internalID, kind, srcKey, name string) (string, error) {
	if err := c.fs.Copy(ctx, srcKey, multimediaKey(internalID, kind, name)); err != nil {
		return "", err
	}
	data, err := c.fs.Read(ctx, srcKey)
	if err != nil {
		return "", err
	}
	small, ok := thumbnail(data)
	if !ok {
		return "", nil
	}
	thumbName := "thumb_" + name
	if err := c.fs.Write(ctx, multimediaKey(internalID, kind, thumbName), small); err != nil {
		return "", err
	}
	return thumbName, nil
}

// resolveImages collects the images of every page: the promoted v2 page
// image when the project uses the coherent engine, plus any v1 records with
// explicit page and position. Files are copied into the artefact. A page
// without a promoted image (not yet processed, or its generation failed)
// renders without one; later pages keep theirs.
func (c *Composer) resolveImages(ctx context.Context, dbc dbctx.Context, req Request, pageCount int) (map[int][]pageImage, error) {
	out := make(map[int][]pageImage)
	id := req.Project.InternalID

	if req.Project.UsesCoherentImagesV2 {
		for page := 1; page <= pageCount; page++ {
			key := imagesv2.PromotedImageKey(id, imagesv2.PageUnit(page))
			ok, err := c.fs.Exists(ctx, key)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			name := fmt.Sprintf("page_%d.jpg", page)
			thumb, err := c.placeImage(ctx, id, req.Kind, key, name)
			if err != nil {
				return nil, err
			}
			out[page] = append(out[page], pageImage{File: name, Thumb: thumb, Alt: fmt.Sprintf("illustration for page %d", page), Position: "top"})
		}
	}

	records, err := c.images.ListCurrent(dbc, req.Project.ID)
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		if rec.FilePath == "" {
			continue
		}
		ok, err := c.fs.Exists(ctx, rec.FilePath)
		if err != nil {
			return nil, err
		}
		if !ok {
			c.log.Warn("image record file missing", "project", id, "image", rec.ImageName, "path", rec.FilePath)
			continue
		}
		name := path.Base(rec.FilePath)
		thumb, err := c.placeImage(ctx, id, req.Kind, rec.FilePath, name)
		if err != nil {
			return nil, err
		}
		out[rec.Page] = append(out[rec.Page], pageImage{File: name, Thumb: thumb, Alt: rec.ImageName, Position: rec.Position})
	}
	return out, nil
}
