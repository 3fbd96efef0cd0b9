package textmodel

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/clara-platform/clara-backend/internal/core/clerror"
)

var (
	pageTagRe  = regexp.MustCompile(`<page\s*(.*?)>`)
	pageAttrRe = regexp.MustCompile(`(\w+)='(.*?)'`)
	tagAttrRe  = regexp.MustCompile(`(\w+)=['"]([^'"]*)`)
	markupRe   = regexp.MustCompile(`^</?\w+>$`)
)

// Internalise parses one layer of annotated text into its in-memory form.
// Pages are delimited by <page> tags, segments by "||", and words carry
// annotations in the layer's grammar. MWE and translated layers use the
// canonical JSON form instead, since their annotations attach to segments.
func Internalise(input, l2, l1 string, layer Layer) (*Text, error) {
	if !Valid(layer) {
		return nil, clerror.New(clerror.Validation, "unknown layer %q", layer)
	}
	if jsonLayer(layer) {
		t, err := FromJSON([]byte(input))
		if err != nil {
			return nil, clerror.Wrap(clerror.InternalisationFailed, err, "layer %s is not valid JSON", layer)
		}
		t.L2Language, t.L1Language = l2, l1
		return t, nil
	}

	if !strings.HasPrefix(input, "<page") {
		input = "<page>" + input
	}

	var pages []Page
	tagMatches := pageTagRe.FindAllStringSubmatchIndex(input, -1)
	for i, m := range tagMatches {
		attrText := input[m[2]:m[3]]
		bodyStart := m[1]
		bodyEnd := len(input)
		last := i+1 >= len(tagMatches)
		if !last {
			bodyEnd = tagMatches[i+1][0]
		}
		body := input[bodyStart:bodyEnd]
		// Pages are written one per line; the separating newline belongs to
		// the file layout, not the page content.
		if !last {
			body = strings.TrimSuffix(body, "\n")
		}

		page := Page{}
		if attrText != "" {
			page.Annotations = map[string]string{}
			for _, kv := range pageAttrRe.FindAllStringSubmatch(attrText, -1) {
				page.Annotations[kv[1]] = kv[2]
			}
		}
		for segIdx, segText := range strings.Split(body, "||") {
			elements, err := parseSegment(segText, layer)
			if err != nil {
				if ce, ok := err.(*clerror.Error); ok && ce.Page == 0 {
					ce.Page, ce.Segment = i+1, segIdx+1
				}
				return nil, err
			}
			page.Segments = append(page.Segments, Segment{Elements: elements})
		}
		pages = append(pages, page)
	}

	return &Text{Pages: pages, L2Language: l2, L1Language: l1}, nil
}

func parseSegment(segText string, layer Layer) ([]ContentElement, error) {
	if segmentedFamily(layer) {
		return parsePlainSegment(segText), nil
	}
	return parseAnnotatedSegment(segText, annotationKey(layer))
}

// parsePlainSegment tokenises plain or segmented text. MWEs appear as
// @ multi word @, word pieces are separated by |, and runs of whitespace
// and punctuation become NonWordText. Apostrophes and # count as word
// characters so contractions and hashtags stay whole.
func parsePlainSegment(segText string) []ContentElement {
	var out []ContentElement
	rs := []rune(segText)
	i := 0
	for i < len(rs) {
		r := rs[i]
		switch {
		case r == '@':
			if end := indexRune(rs, i+1, '@'); end >= 0 {
				out = append(out, ContentElement{Type: Word, Content: string(rs[i+1 : end])})
				i = end + 1
				continue
			}
			// No closing @, treat as a word character.
			start := i
			i = scanWordRun(rs, i)
			out = append(out, ContentElement{Type: Word, Content: string(rs[start:i])})
		case r == '<':
			if end := indexRune(rs, i+1, '>'); end >= 0 && markupRe.MatchString(string(rs[i:end+1])) {
				out = append(out, ContentElement{Type: Markup, Content: string(rs[i : end+1])})
				i = end + 1
				continue
			}
			i++ // stray <, dropped
		case r == '|':
			i++ // piece boundary inside a word
		case isNonWordRune(r):
			start := i
			for i < len(rs) && isNonWordRune(rs[i]) {
				i++
			}
			out = append(out, ContentElement{Type: NonWordText, Content: string(rs[start:i])})
		default:
			start := i
			i = scanWordRun(rs, i)
			out = append(out, ContentElement{Type: Word, Content: string(rs[start:i])})
		}
	}
	return out
}

// parseAnnotatedSegment tokenises glossed, lemma-tagged, pinyin or phonetic
// text where each word carries a #...# annotation. Escaped characters
// (\#, \@, \<, \>) are unescaped in both word and annotation.
func parseAnnotatedSegment(segText, key string) ([]ContentElement, error) {
	var out []ContentElement
	rs := []rune(segText)
	i := 0
	for i < len(rs) {
		r := rs[i]
		switch {
		case r == '<':
			tag, end, ok := scanTag(rs, i)
			if !ok {
				return nil, clerror.New(clerror.InternalisationFailed,
					"unable to internalise %q: unterminated tag at position %d", segText, i)
			}
			if strings.HasPrefix(tag, "<img") || strings.HasPrefix(tag, "<audio") {
				attrs := map[string]string{}
				for _, kv := range tagAttrRe.FindAllStringSubmatch(tag, -1) {
					attrs[kv[1]] = kv[2]
				}
				out = append(out, ContentElement{Type: Embedded, Content: tag, Annotations: attrs})
			} else {
				out = append(out, ContentElement{Type: Markup, Content: tag})
			}
			i = end
		case r == '|':
			i++
		case r == '@':
			end := indexRune(rs, i+1, '@')
			if end < 0 {
				return nil, clerror.New(clerror.InternalisationFailed,
					"unable to internalise %q: unterminated @ at position %d", segText, i)
			}
			word := string(rs[i+1 : end])
			ann, hasAnn, next, err := scanAnnotation(rs, end+1, segText)
			if err != nil {
				return nil, err
			}
			el, err := annotatedWordElement(word, ann, hasAnn, key)
			if err != nil {
				return nil, err
			}
			out = append(out, *el)
			i = next
		case unicode.IsSpace(r):
			start := i
			for i < len(rs) && isAnnotatedNonWordRune(rs[i]) {
				i++
			}
			out = append(out, ContentElement{Type: NonWordText, Content: string(rs[start:i])})
		default:
			// Candidate word token: everything up to whitespace or an
			// annotation delimiter. A run of bare punctuation with no
			// annotation attached is NonWordText instead.
			j := i
			for j < len(rs) && !unicode.IsSpace(rs[j]) && rs[j] != '#' && rs[j] != '|' && rs[j] != '<' && rs[j] != '@' {
				if rs[j] == '\\' && j+1 < len(rs) {
					j++
				}
				j++
			}
			annotated := j < len(rs) && rs[j] == '#'
			if !annotated && isOnlyPunctuationAndSpace(string(rs[i:j])) {
				for j < len(rs) && isAnnotatedNonWordRune(rs[j]) {
					j++
				}
				out = append(out, ContentElement{Type: NonWordText, Content: string(rs[i:j])})
				i = j
				continue
			}
			word := unescape(string(rs[i:j]))
			ann, hasAnn, next, err := scanAnnotation(rs, j, segText)
			if err != nil {
				return nil, err
			}
			el, err := annotatedWordElement(word, ann, hasAnn, key)
			if err != nil {
				return nil, err
			}
			if el != nil {
				out = append(out, *el)
			}
			i = next
		}
	}
	return out, nil
}

// scanAnnotation reads a #...# annotation starting at i, honouring \#
// escapes. Returns the unescaped annotation body and whether one was found.
func scanAnnotation(rs []rune, i int, segText string) (string, bool, int, error) {
	if i >= len(rs) || rs[i] != '#' {
		return "", false, i, nil
	}
	var body strings.Builder
	j := i + 1
	for j < len(rs) {
		if rs[j] == '\\' && j+1 < len(rs) {
			body.WriteRune(rs[j+1])
			j += 2
			continue
		}
		if rs[j] == '#' {
			return body.String(), true, j + 1, nil
		}
		body.WriteRune(rs[j])
		j++
	}
	return "", false, 0, clerror.New(clerror.InternalisationFailed,
		"unable to internalise %q: unterminated annotation at position %d", segText, i)
}

// annotatedWordElement builds a Word element from a surface form and its
// annotation. Lemma annotations may take the form Lemma/POS, and
// lemma_and_gloss requires exactly Lemma/POS/Gloss.
func annotatedWordElement(content, annotation string, hasAnnotation bool, key string) (*ContentElement, error) {
	if content == "" {
		return nil, nil
	}
	if !hasAnnotation {
		annotation = "NO_ANNOTATION"
	}
	comps := strings.Split(annotation, "/")
	switch {
	case key == "lemma" && len(comps) == 2:
		return &ContentElement{Type: Word, Content: content,
			Annotations: map[string]string{"lemma": comps[0], "pos": comps[1]}}, nil
	case key == "lemma_and_gloss" && len(comps) == 3:
		return &ContentElement{Type: Word, Content: content,
			Annotations: map[string]string{"lemma": comps[0], "pos": comps[1], "gloss": comps[2]}}, nil
	case key == "lemma_and_gloss":
		return nil, clerror.New(clerror.InternalisationFailed,
			"unable to internalise %q: not of form Word#Lemma/POS/Gloss#", content+"#"+annotation+"#")
	default:
		return &ContentElement{Type: Word, Content: content,
			Annotations: map[string]string{key: annotation}}, nil
	}
}

// unescape strips backslash escapes (\#, \@, \<, \>).
func unescape(s string) string {
	if !strings.ContainsRune(s, '\\') {
		return s
	}
	var b strings.Builder
	escaped := false
	for _, r := range s {
		if escaped {
			b.WriteRune(r)
			escaped = false
			continue
		}
		if r == '\\' {
			escaped = true
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func indexRune(rs []rune, from int, want rune) int {
	for i := from; i < len(rs); i++ {
		if rs[i] == want {
			return i
		}
	}
	return -1
}

func scanTag(rs []rune, i int) (string, int, bool) {
	end := indexRune(rs, i+1, '>')
	if end < 0 {
		return "", 0, false
	}
	return string(rs[i : end+1]), end + 1, true
}

func scanWordRun(rs []rune, i int) int {
	for i < len(rs) {
		r := rs[i]
		if unicode.IsSpace(r) || r == '<' || r == '|' || r == '@' {
			break
		}
		if unicode.IsPunct(r) && r != '\'' && r != '#' {
			break
		}
		i++
	}
	return i
}

// isNonWordRune reports whether r belongs to a NonWordText run in plain or
// segmented text. Apostrophe and # stay inside words.
func isNonWordRune(r rune) bool {
	if unicode.IsSpace(r) {
		return true
	}
	return unicode.IsPunct(r) && r != '@' && r != '#' && r != '\''
}

// isAnnotatedNonWordRune is the annotated-grammar variant; apostrophes are
// ordinary punctuation there but backslash starts an escape.
func isAnnotatedNonWordRune(r rune) bool {
	if unicode.IsSpace(r) {
		return true
	}
	return unicode.IsPunct(r) && r != '@' && r != '#' && r != '\\'
}
