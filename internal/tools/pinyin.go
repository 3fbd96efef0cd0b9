package tools

import (
	"context"
	"strings"

	gopinyin "github.com/mozillazg/go-pinyin"

	"github.com/clara-platform/clara-backend/internal/core/clerror"
	"github.com/clara-platform/clara-backend/internal/platform/logger"
	"github.com/clara-platform/clara-backend/internal/textmodel"
)

var chineseLanguages = map[string]bool{
	"chinese":  true,
	"mandarin": true,
}

// PinyinTagger derives the pinyin layer from segmented Chinese text, one
// pinyin annotation per word.
type PinyinTagger struct {
	args gopinyin.Args
	log  *logger.Logger
}

func NewPinyinTagger(baseLog *logger.Logger) *PinyinTagger {
	args := gopinyin.NewArgs()
	args.Style = gopinyin.Tone
	return &PinyinTagger{args: args, log: baseLog.With("tool", "pinyin")}
}

func (p *PinyinTagger) Name() string                 { return "pinyin" }
func (p *PinyinTagger) TargetLayer() textmodel.Layer { return textmodel.LayerPinyin }

func (p *PinyinTagger) Supports(language string) bool {
	return chineseLanguages[strings.ToLower(language)]
}

func (p *PinyinTagger) Annotate(ctx context.Context, segmentedText, l2, l1 string) (string, error) {
	if !p.Supports(l2) {
		return "", clerror.New(clerror.ToolUnsupported, "pinyin tagging only supports Chinese, not %s", l2)
	}
	text, err := textmodel.Internalise(segmentedText, l2, l1, textmodel.LayerSegmented)
	if err != nil {
		return "", err
	}
	for pi := range text.Pages {
		for si := range text.Pages[pi].Segments {
			seg := &text.Pages[pi].Segments[si]
			for ei := range seg.Elements {
				if seg.Elements[ei].Type != textmodel.Word {
					continue
				}
				seg.Elements[ei].SetAnnotation("pinyin", p.wordPinyin(seg.Elements[ei].Content))
			}
		}
	}
	return text.Externalise(textmodel.LayerPinyin)
}

// wordPinyin joins the pinyin of each character with spaces. Characters
// go-pinyin cannot transcribe (latin letters, digits) pass through as-is.
func (p *PinyinTagger) wordPinyin(word string) string {
	var parts []string
	for _, r := range word {
		readings := gopinyin.SinglePinyin(r, p.args)
		if len(readings) > 0 {
			parts = append(parts, readings[0])
		} else {
			parts = append(parts, string(r))
		}
	}
	return strings.Join(parts, " ")
}
