// Package imagesv2 implements the coherent image set engine: a style sample,
// recurring story elements, and one image per page, kept visually consistent
// by feeding the promoted style and elements into every page description.
// All state lives in a per-project directory tree; every
// description_v{k}/image_v{j} directory is write-once and holds either a full
// artefact set or an error.txt with a zero evaluation.
package imagesv2

import (
	"fmt"
	"strings"
)

// UnitKind names the three stages of the engine.
type UnitKind string

const (
	UnitStyle   UnitKind = "style"
	UnitElement UnitKind = "element"
	UnitPage    UnitKind = "page"
)

// Unit addresses one content unit of the tree: the style, a named element,
// or a numbered page.
type Unit struct {
	Kind    UnitKind
	Element string
	Page    int
}

func StyleUnit() Unit              { return Unit{Kind: UnitStyle} }
func ElementUnit(name string) Unit { return Unit{Kind: UnitElement, Element: name} }
func PageUnit(n int) Unit          { return Unit{Kind: UnitPage, Page: n} }

func (u Unit) String() string {
	switch u.Kind {
	case UnitElement:
		return fmt.Sprintf("element %q", u.Element)
	case UnitPage:
		return fmt.Sprintf("page %d", u.Page)
	default:
		return "style"
	}
}

// Root is the store prefix of a project's v2 tree.
func Root(internalID string) string {
	return fmt.Sprintf("projects/%s/coherent_images_v2", internalID)
}

func StoryKey(internalID string) string       { return Root(internalID) + "/story.json" }
func StyleAdviceKey(internalID string) string { return Root(internalID) + "/style_description.txt" }
func ElementsKey(internalID string) string    { return Root(internalID) + "/elements/elements.json" }
func ElementsAdviceKey(internalID string) string {
	return Root(internalID) + "/elements/advice.json"
}
func PagesAdviceKey(internalID string) string { return Root(internalID) + "/pages/advice.json" }
func CostKey(internalID string) string        { return Root(internalID) + "/cost.json" }

// elementSlug makes an element name filesystem-safe.
func elementSlug(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "element"
	}
	return b.String()
}

// UnitDir is the directory of a unit's promoted artefacts and alternates.
func UnitDir(internalID string, u Unit) string {
	switch u.Kind {
	case UnitElement:
		return fmt.Sprintf("%s/elements/%s", Root(internalID), elementSlug(u.Element))
	case UnitPage:
		return fmt.Sprintf("%s/pages/page%d", Root(internalID), u.Page)
	default:
		return Root(internalID) + "/style"
	}
}

func DescriptionDir(internalID string, u Unit, k int) string {
	return fmt.Sprintf("%s/description_v%d", UnitDir(internalID, u), k)
}

func ImageDir(internalID string, u Unit, k, j int) string {
	return fmt.Sprintf("%s/image_v%d", DescriptionDir(internalID, u, k), j)
}

// Per-image-directory artefacts.
func imageKey(dir string) string          { return dir + "/image.jpg" }
func interpretationKey(dir string) string { return dir + "/image_interpretation.txt" }
func evaluationKey(dir string) string     { return dir + "/evaluation.json" }
func costDetailKey(dir string) string     { return dir + "/cost.json" }
func errorKey(dir string) string          { return dir + "/error.txt" }

// Per-description artefacts.
func expandedDescriptionKey(dir string) string { return dir + "/expanded_description.txt" }
func oldDescriptionKey(dir string) string      { return dir + "/expanded_description_old.txt" }
func imageInfoKey(dir string) string           { return dir + "/image_info.json" }

// Promoted artefacts at the unit directory.
func PromotedImageKey(internalID string, u Unit) string {
	return imageKey(UnitDir(internalID, u))
}
func PromotedDescriptionKey(internalID string, u Unit) string {
	return expandedDescriptionKey(UnitDir(internalID, u))
}
func PromotedInterpretationKey(internalID string, u Unit) string {
	return interpretationKey(UnitDir(internalID, u))
}
func PromotedEvaluationKey(internalID string, u Unit) string {
	return evaluationKey(UnitDir(internalID, u))
}

func AlternatesKey(internalID string, u Unit) string {
	return UnitDir(internalID, u) + "/alternate_images.json"
}

// Page-only artefacts.
func RelevantInfoKey(internalID string, page int) string {
	return UnitDir(internalID, PageUnit(page)) + "/relevant_pages_and_elements.json"
}
func FeedbackKey(internalID string, page int) string {
	return UnitDir(internalID, PageUnit(page)) + "/community_feedback.json"
}
