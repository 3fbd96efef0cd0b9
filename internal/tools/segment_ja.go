package tools

import (
	"context"
	"strings"

	"github.com/ikawaha/kagome-dict/ipa"
	"github.com/ikawaha/kagome/v2/tokenizer"

	"github.com/clara-platform/clara-backend/internal/core/clerror"
	"github.com/clara-platform/clara-backend/internal/platform/logger"
	"github.com/clara-platform/clara-backend/internal/textmodel"
)

// JapaneseSegmenter derives the segmented layer of a Japanese text with the
// kagome morphological analyser, inserting word boundaries the plain text
// does not carry.
type JapaneseSegmenter struct {
	tok *tokenizer.Tokenizer
	log *logger.Logger
}

func NewJapaneseSegmenter(baseLog *logger.Logger) (*JapaneseSegmenter, error) {
	tok, err := tokenizer.New(ipa.Dict(), tokenizer.OmitBosEos())
	if err != nil {
		return nil, clerror.Wrap(clerror.ToolUnsupported, err, "kagome tokenizer init failed")
	}
	return &JapaneseSegmenter{tok: tok, log: baseLog.With("tool", "segment_ja")}, nil
}

func (j *JapaneseSegmenter) Name() string                 { return "segment_ja" }
func (j *JapaneseSegmenter) TargetLayer() textmodel.Layer { return textmodel.LayerSegmented }

func (j *JapaneseSegmenter) Supports(language string) bool {
	return strings.ToLower(language) == "japanese"
}

func (j *JapaneseSegmenter) Annotate(ctx context.Context, plainText, l2, l1 string) (string, error) {
	if !j.Supports(l2) {
		return "", clerror.New(clerror.ToolUnsupported, "kagome segmentation only supports japanese, not %s", l2)
	}
	text, err := textmodel.Internalise(plainText, l2, l1, textmodel.LayerPlain)
	if err != nil {
		return "", err
	}
	for pi := range text.Pages {
		var segments []textmodel.Segment
		for si := range text.Pages[pi].Segments {
			var elements []textmodel.ContentElement
			for _, el := range text.Pages[pi].Segments[si].Elements {
				if el.Type != textmodel.Word {
					elements = append(elements, el)
					if endsSentence(el.Content) {
						segments = append(segments, textmodel.Segment{Elements: elements})
						elements = nil
					}
					continue
				}
				for _, token := range j.tok.Tokenize(el.Content) {
					elements = append(elements, textmodel.ContentElement{
						Type:    textmodel.Word,
						Content: token.Surface,
					})
				}
			}
			if len(elements) > 0 {
				segments = append(segments, textmodel.Segment{Elements: elements})
			}
		}
		text.Pages[pi].Segments = segments
	}
	return text.Externalise(textmodel.LayerSegmented)
}

// endsSentence reports whether a punctuation run closes a Japanese sentence.
func endsSentence(s string) bool {
	return strings.ContainsAny(s, "。！？!?")
}
