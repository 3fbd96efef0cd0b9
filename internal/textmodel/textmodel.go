package textmodel

import (
	"encoding/json"
	"strings"
	"unicode"
)

// ElementType discriminates the kinds of content element a segment can hold.
type ElementType string

const (
	Word        ElementType = "Word"
	NonWordText ElementType = "NonWordText"
	Markup      ElementType = "Markup"
	Embedded    ElementType = "Embedded"
)

// ContentElement is the atomic unit of an annotated text: a word carrying
// per-layer annotations, a run of whitespace/punctuation, an inline markup
// tag, or an embedded img/audio reference.
type ContentElement struct {
	Type        ElementType       `json:"type"`
	Content     string            `json:"content"`
	Annotations map[string]string `json:"annotations,omitempty"`
}

func (e ContentElement) Annotation(key string) (string, bool) {
	v, ok := e.Annotations[key]
	return v, ok
}

func (e *ContentElement) SetAnnotation(key, value string) {
	if e.Annotations == nil {
		e.Annotations = map[string]string{}
	}
	e.Annotations[key] = value
}

// Segment is an ordered run of content elements, normally a sentence.
// MWEs lists multi-word expressions asserted over this segment's words;
// each inner slice holds the surface forms in order of occurrence.
type Segment struct {
	Elements    []ContentElement  `json:"content_elements"`
	Annotations map[string]string `json:"annotations,omitempty"`
	MWEs        [][]string        `json:"mwes,omitempty"`
}

func (s *Segment) AddAnnotation(key, value string) {
	if s.Annotations == nil {
		s.Annotations = map[string]string{}
	}
	s.Annotations[key] = value
}

// Words returns the surface forms of the segment's Word elements in order.
func (s *Segment) Words() []string {
	var out []string
	for _, e := range s.Elements {
		if e.Type == Word {
			out = append(out, e.Content)
		}
	}
	return out
}

func (s *Segment) WordCount() int {
	n := 0
	for _, e := range s.Elements {
		if e.Type == Word {
			n++
		}
	}
	return n
}

// PhoneticWordCount counts the segment as a single word unless it consists
// entirely of whitespace, punctuation and separators. In a phonetic text a
// segment represents one orthographic word split into letter groups.
func (s *Segment) PhoneticWordCount() int {
	if isOnlyPunctuationAndSpace(s.plainText()) {
		return 0
	}
	return 1
}

func (s *Segment) plainText() string {
	var b strings.Builder
	for _, e := range s.Elements {
		b.WriteString(e.Content)
	}
	return b.String()
}

// SurfaceText renders the segment's raw surface string, dropping markup.
func (s *Segment) SurfaceText() string {
	var b strings.Builder
	for _, e := range s.Elements {
		if e.Type == Word || e.Type == NonWordText {
			b.WriteString(e.Content)
		}
	}
	return b.String()
}

// Page groups segments and carries page-level attributes such as img,
// page_number and position.
type Page struct {
	Segments    []Segment         `json:"segments"`
	Annotations map[string]string `json:"annotations,omitempty"`
}

func (p *Page) ContentElements() []ContentElement {
	var out []ContentElement
	for i := range p.Segments {
		out = append(out, p.Segments[i].Elements...)
	}
	return out
}

func (p *Page) WordCount(phonetic bool) int {
	n := 0
	for i := range p.Segments {
		if phonetic {
			n += p.Segments[i].PhoneticWordCount()
		} else {
			n += p.Segments[i].WordCount()
		}
	}
	return n
}

// Text is the in-memory form of one annotation layer of a project text.
type Text struct {
	Pages      []Page `json:"pages"`
	L2Language string `json:"l2_language"`
	L1Language string `json:"l1_language"`
}

func (t *Text) ContentElements() []ContentElement {
	var out []ContentElement
	for i := range t.Pages {
		out = append(out, t.Pages[i].ContentElements()...)
	}
	return out
}

func (t *Text) WordCount(phonetic bool) int {
	n := 0
	for i := range t.Pages {
		n += t.Pages[i].WordCount(phonetic)
	}
	return n
}

func (t *Text) AddPage(p Page) { t.Pages = append(t.Pages, p) }

// ToJSON serialises the text in its canonical JSON form, used for layers
// whose annotations cannot be carried by the delimited grammar.
func (t *Text) ToJSON() ([]byte, error) {
	return json.MarshalIndent(t, "", "  ")
}

func FromJSON(data []byte) (*Text, error) {
	var t Text
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func isOnlyPunctuationAndSpace(s string) bool {
	for _, r := range s {
		if unicode.IsSpace(r) || unicode.IsPunct(r) || r == '|' {
			continue
		}
		return false
	}
	return true
}
