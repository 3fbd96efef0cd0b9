package render

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"html/template"
	"strings"

	"github.com/clara-platform/clara-backend/internal/platform/dbctx"
	"github.com/clara-platform/clara-backend/internal/textmodel"
)

// PageView is everything one rendered page shows. The JSON form of the view
// is also the page's change fingerprint.
type PageView struct {
	Number   int           `json:"number"`
	Total    int           `json:"total"`
	Title    string        `json:"title"`
	L2       string        `json:"l2"`
	Kind     string        `json:"kind"`
	Images   []ImageView   `json:"images,omitempty"`
	Segments []SegmentView `json:"segments"`
	PrevHref string        `json:"prev,omitempty"`
	NextHref string        `json:"next,omitempty"`
}

type ImageView struct {
	File     string `json:"file"`
	Thumb    string `json:"thumb,omitempty"`
	Alt      string `json:"alt"`
	Position string `json:"position"`
}

type SegmentView struct {
	Audio      string        `json:"audio,omitempty"`
	SpanFile   string        `json:"span_file,omitempty"`
	StartMS    int           `json:"start_ms,omitempty"`
	EndMS      int           `json:"end_ms,omitempty"`
	Translated string        `json:"translated,omitempty"`
	MWEs       string        `json:"mwes,omitempty"`
	Elements   []ElementView `json:"elements"`
}

type ElementView struct {
	IsWord   bool   `json:"is_word"`
	Text     string `json:"text"`
	Gloss    string `json:"gloss,omitempty"`
	Lemma    string `json:"lemma,omitempty"`
	Pinyin   string `json:"pinyin,omitempty"`
	Phonetic string `json:"phonetic,omitempty"`
	Audio    string `json:"audio,omitempty"`
	Tile     string `json:"tile,omitempty"`
}

func (v ElementView) HasPopup() bool {
	return v.Gloss != "" || v.Lemma != "" || v.Pinyin != "" || v.Phonetic != "" || v.Tile != ""
}

func (v ImageView) Top() bool { return v.Position != "bottom" }

// annotationValue reads a word annotation, treating the parser's
// NO_ANNOTATION marker as absent.
func annotationValue(el textmodel.ContentElement, key string) string {
	v, _ := el.Annotation(key)
	if v == "NO_ANNOTATION" {
		return ""
	}
	return v
}

func (c *Composer) buildPageViews(ctx context.Context, dbc dbctx.Context, req Request, text *textmodel.Text, sound *resolvedAudio, imagesByPage map[int][]pageImage) ([]PageView, error) {
	isPhonetic := req.Kind == KindPhonetic

	// Phonetic hover forms in the normal variant come from the lexicon with
	// the orthography as fallback; skipped entirely when the language has no
	// orthography and no entries.
	orth, err := c.phonetic.LoadOrthography(dbc, req.Project.L2)
	if err != nil {
		return nil, err
	}
	transcribe := func(word string) (string, error) {
		if isPhonetic {
			return "", nil
		}
		form, err := c.phonetic.Transcribe(dbc, req.Project.L2, strings.ToLower(word), orth)
		if err != nil {
			return "", err
		}
		if form == strings.ToLower(word) {
			return "", nil
		}
		return form, nil
	}

	views := make([]PageView, 0, len(text.Pages))
	for pi := range text.Pages {
		page := &text.Pages[pi]
		view := PageView{
			Number: pi + 1,
			Total:  len(text.Pages),
			Title:  req.Project.Title,
			L2:     req.Project.L2,
			Kind:   req.Kind,
		}
		if pi > 0 {
			view.PrevHref = fmt.Sprintf("page_%d.html", pi)
		}
		if pi < len(text.Pages)-1 {
			view.NextHref = fmt.Sprintf("page_%d.html", pi+2)
		}
		for _, img := range imagesByPage[pi+1] {
			iv := ImageView{
				File:     "multimedia/" + img.File,
				Alt:      img.Alt,
				Position: img.Position,
			}
			if img.Thumb != "" {
				iv.Thumb = "multimedia/" + img.Thumb
			}
			view.Images = append(view.Images, iv)
		}

		for si := range page.Segments {
			seg := &page.Segments[si]
			sv := SegmentView{Translated: seg.Annotations["translated"]}
			if len(seg.MWEs) > 0 {
				var parts []string
				for _, mwe := range seg.MWEs {
					parts = append(parts, strings.Join(mwe, " "))
				}
				sv.MWEs = strings.Join(parts, "; ")
			}
			ref := segmentRef{Page: pi, Segment: si}
			if name, ok := sound.segments[ref]; ok {
				sv.Audio = "multimedia/" + name
			}
			if span, ok := sound.spans[ref]; ok {
				sv.SpanFile = "multimedia/" + span.File
				sv.StartMS = span.StartMS
				sv.EndMS = span.EndMS
			}

			for _, el := range seg.Elements {
				ev := ElementView{Text: el.Content}
				switch el.Type {
				case textmodel.Word:
					ev.IsWord = true
					ev.Gloss = annotationValue(el, "gloss")
					ev.Lemma = annotationValue(el, "lemma")
					ev.Pinyin = annotationValue(el, "pinyin")
					if isPhonetic {
						// In the phonetic variant each word element is one
						// letter group carrying its phoneme.
						ev.Phonetic = annotationValue(el, "phonetic")
						if ev.Phonetic == "" {
							ev.Phonetic, err = c.phonetic.Transcribe(dbc, req.Project.L2, strings.ToLower(el.Content), orth)
							if err != nil {
								return nil, err
							}
						}
					} else {
						ev.Phonetic, err = transcribe(el.Content)
						if err != nil {
							return nil, err
						}
						if name, ok := sound.wordFile(el.Content, seg.SurfaceText()); ok {
							ev.Audio = "multimedia/" + name
						}
						if req.Project.UsesPictureGlossing && ev.Gloss != "" {
							tile, err := c.ensureGlossTile(ctx, req, el.Content, ev.Gloss)
							if err != nil {
								return nil, err
							}
							ev.Tile = "multimedia/" + tile
						}
					}
				case textmodel.NonWordText:
					ev.IsWord = false
				default:
					continue
				}
				sv.Elements = append(sv.Elements, ev)
			}
			view.Segments = append(view.Segments, sv)
		}
		views = append(views, view)
	}
	return views, nil
}

// fingerprint identifies a page view's content; unchanged pages are skipped.
func fingerprint(v PageView) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

func manifestKey(internalID, kind string) string {
	return RootKey(internalID, kind) + "/render_manifest.json"
}

func (c *Composer) loadManifest(ctx context.Context, internalID, kind string) (map[string]string, error) {
	manifest := map[string]string{}
	key := manifestKey(internalID, kind)
	ok, err := c.fs.Exists(ctx, key)
	if err != nil || !ok {
		return manifest, err
	}
	data, err := c.fs.Read(ctx, key)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &manifest); err != nil {
		// A corrupt manifest only costs a full rebuild.
		return map[string]string{}, nil
	}
	return manifest, nil
}

// writePages renders the views through the page template, skipping pages
// whose fingerprint matches the stored manifest.
func (c *Composer) writePages(ctx context.Context, req Request, views []PageView, result *Result) error {
	id := req.Project.InternalID
	manifest, err := c.loadManifest(ctx, id, req.Kind)
	if err != nil {
		return err
	}
	fresh := make(map[string]string, len(views))

	for _, view := range views {
		fp, err := fingerprint(view)
		if err != nil {
			return err
		}
		name := fmt.Sprintf("page_%d", view.Number)
		fresh[name] = fp

		key := pageKey(id, req.Kind, view.Number)
		if manifest[name] == fp {
			exists, err := c.fs.Exists(ctx, key)
			if err != nil {
				return err
			}
			if exists {
				result.PagesSkipped++
				continue
			}
		}

		var buf bytes.Buffer
		if err := pageTemplate.Execute(&buf, view); err != nil {
			return fmt.Errorf("render page %d: %w", view.Number, err)
		}
		if err := c.fs.Write(ctx, key, buf.Bytes()); err != nil {
			return err
		}
		result.PagesRendered++
	}

	data, err := json.MarshalIndent(fresh, "", "  ")
	if err != nil {
		return err
	}
	return c.fs.Write(ctx, manifestKey(id, req.Kind), data)
}

func (c *Composer) writeStatic(ctx context.Context, internalID, kind string) error {
	for name, content := range staticAssets {
		if err := c.fs.Write(ctx, staticKey(internalID, kind, name), []byte(content)); err != nil {
			return err
		}
	}
	return nil
}

var pageTemplate = template.Must(template.New("page").Parse(pageHTML))

const pageHTML = `<!DOCTYPE html>
<html lang="{{.L2}}">
<head>
<meta charset="utf-8">
<title>{{.Title}} ({{.Number}}/{{.Total}})</title>
<link rel="stylesheet" href="static/clara.css">
</head>
<body class="{{.Kind}}">
<header>
<h1>{{.Title}}</h1>
<nav>
{{if .PrevHref}}<a class="nav-prev" href="{{.PrevHref}}">&laquo; previous</a>{{end}}
<span class="page-number">page {{.Number}} of {{.Total}}</span>
{{if .NextHref}}<a class="nav-next" href="{{.NextHref}}">next &raquo;</a>{{end}}
</nav>
</header>
{{range .Images}}{{if .Top}}<figure class="page-image top">{{if .Thumb}}<a href="{{.File}}"><img src="{{.Thumb}}" alt="{{.Alt}}"></a>{{else}}<img src="{{.File}}" alt="{{.Alt}}">{{end}}</figure>
{{end}}{{end}}<main>
{{range .Segments}}<span class="segment"{{if .Audio}} data-audio="{{.Audio}}"{{end}}{{if .SpanFile}} data-audio="{{.SpanFile}}" data-start="{{.StartMS}}" data-end="{{.EndMS}}"{{end}}{{if .Translated}} data-translation="{{.Translated}}"{{end}}{{if .MWEs}} data-mwes="{{.MWEs}}"{{end}}>
{{- range .Elements}}
{{- if .IsWord}}<span class="word"{{if .Audio}} data-audio="{{.Audio}}"{{end}}>{{.Text}}{{if .HasPopup}}<span class="popup">
{{- if .Gloss}}<span class="gloss">{{.Gloss}}</span>{{end}}
{{- if .Lemma}}<span class="lemma">{{.Lemma}}</span>{{end}}
{{- if .Pinyin}}<span class="pinyin">{{.Pinyin}}</span>{{end}}
{{- if .Phonetic}}<span class="phonetic">{{.Phonetic}}</span>{{end}}
{{- if .Tile}}<img class="tile" src="{{.Tile}}" alt="{{.Gloss}}">{{end}}</span>{{end}}</span>
{{- else}}{{.Text}}{{end}}
{{- end}}</span>
{{end}}</main>
{{range .Images}}{{if not .Top}}<figure class="page-image bottom">{{if .Thumb}}<a href="{{.File}}"><img src="{{.Thumb}}" alt="{{.Alt}}"></a>{{else}}<img src="{{.File}}" alt="{{.Alt}}">{{end}}</figure>
{{end}}{{end}}<script src="static/clara.js"></script>
</body>
</html>
`
