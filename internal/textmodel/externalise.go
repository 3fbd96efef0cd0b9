package textmodel

import (
	"sort"
	"strings"

	"github.com/clara-platform/clara-backend/internal/core/clerror"
)

// Externalise renders the text back into the delimited grammar of the given
// layer. Internalise and Externalise are inverses on canonical text, so a
// round trip through the in-memory form preserves the stored file.
func (t *Text) Externalise(layer Layer) (string, error) {
	if !Valid(layer) {
		return "", clerror.New(clerror.Validation, "unknown layer %q", layer)
	}
	if jsonLayer(layer) {
		data, err := t.ToJSON()
		if err != nil {
			return "", clerror.Wrap(clerror.InternalisationFailed, err, "cannot serialise %s layer", layer)
		}
		return string(data), nil
	}
	var pages []string
	for i := range t.Pages {
		pages = append(pages, t.Pages[i].externalise(layer))
	}
	return strings.Join(pages, "\n"), nil
}

func (p *Page) externalise(layer Layer) string {
	var segs []string
	for i := range p.Segments {
		segs = append(segs, p.Segments[i].externalise(layer))
	}
	body := strings.Join(segs, "||")
	if len(p.Annotations) > 0 {
		var attrs []string
		for _, key := range pageAttrOrder(p.Annotations) {
			attrs = append(attrs, key+"='"+p.Annotations[key]+"'")
		}
		return "<page " + strings.Join(attrs, " ") + ">" + body
	}
	return "<page>" + body
}

func (s *Segment) externalise(layer Layer) string {
	var b strings.Builder
	var lastType ElementType
	for _, el := range s.Elements {
		if (layer == LayerSegmented || layer == LayerPhonetic) && el.Type == Word && lastType == Word {
			b.WriteString("|")
		}
		b.WriteString(el.externalise(layer))
		lastType = el.Type
	}
	return b.String()
}

func (e *ContentElement) externalise(layer Layer) string {
	if e.Type != Word {
		return e.Content
	}
	if layer == LayerPlain || layer == LayerTitle || layer == LayerSummary ||
		layer == LayerCEFR || layer == LayerPrompt {
		return e.Content
	}
	content := escapeSpecial(e.Content)
	if strings.Contains(content, " ") && wrapsMultiwords(layer) {
		content = "@" + content + "@"
	}
	switch {
	case layer == LayerLemmaAndGloss:
		lemma := annotationOrDefault(e.Annotations, "lemma", "NO_LEMMA")
		pos := annotationOrDefault(e.Annotations, "pos", "NO_POS")
		gloss := annotationOrDefault(e.Annotations, "gloss", "NO_GLOSS")
		return content + "#" + escapeSpecial(lemma) + "/" + pos + "/" + escapeSpecial(gloss) + "#"
	case layer == LayerLemma && e.Annotations["lemma"] != "" && e.Annotations["pos"] != "":
		return content + "#" + escapeSpecial(e.Annotations["lemma"]) + "/" + e.Annotations["pos"] + "#"
	case layer == LayerSegmented || layer == LayerSegmentedTitle:
		return content
	default:
		if v, ok := e.Annotations[annotationKey(layer)]; ok {
			return content + "#" + escapeSpecial(v) + "#"
		}
		return content + "#-#"
	}
}

// wrapsMultiwords reports whether a Word containing spaces needs @ signs for
// the layer's text to re-internalise as a single element.
func wrapsMultiwords(layer Layer) bool {
	switch layer {
	case LayerSegmented, LayerGloss, LayerLemma, LayerPinyin:
		return true
	}
	return false
}

func escapeSpecial(s string) string {
	r := strings.NewReplacer("#", `\#`, "@", `\@`, "<", `\<`, ">", `\>`)
	return r.Replace(s)
}

func annotationOrDefault(m map[string]string, key, fallback string) string {
	if v, ok := m[key]; ok && v != "" {
		return v
	}
	return fallback
}

// pageAttrOrder keeps page attribute output deterministic: the well-known
// attributes first, anything else alphabetically after.
func pageAttrOrder(m map[string]string) []string {
	known := []string{"img", "page_number", "position"}
	var out []string
	for _, k := range known {
		if _, ok := m[k]; ok {
			out = append(out, k)
		}
	}
	var rest []string
	for k := range m {
		if k != "img" && k != "page_number" && k != "position" {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(out, rest...)
}
