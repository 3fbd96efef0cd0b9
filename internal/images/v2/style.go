package imagesv2

import (
	"context"
	"fmt"
)

// ProcessStyle expands the user's style advice into candidate style
// descriptions, samples an exemplar image for each, and promotes the best.
// The promoted style description anchors every later element and page
// generation.
func (e *Engine) ProcessStyle(ctx context.Context, internalID, styleAdvice string) (*Alternate, error) {
	if err := e.fs.Write(ctx, StyleAdviceKey(internalID), []byte(styleAdvice)); err != nil {
		return nil, err
	}
	story, err := e.LoadStory(ctx, internalID)
	if err != nil {
		return nil, err
	}

	prompt := fmt.Sprintf(`You are art-directing the illustrations for the following story.

Story:
%s
The user has asked for this style: %s

Expand the style request into a detailed, self-contained style description an
illustrator could follow exactly: medium, palette, line quality, lighting,
level of detail, mood. Do not describe any specific scene.
Return only the style description.`, e.storyText(story), styleAdvice)

	round, err := e.sampleRound(ctx, internalID, sampleSpec{
		unit:            StyleUnit(),
		expansionPrompt: prompt,
		operation:       "generate_style_image",
	})
	if err != nil {
		return nil, err
	}
	if _, err := e.appendAlternates(ctx, internalID, StyleUnit(), round.alternates); err != nil {
		return nil, err
	}
	return e.Promote(ctx, internalID, StyleUnit())
}

// promotedStyleDescription reads the promoted style text, or "" before
// ProcessStyle has run.
func (e *Engine) promotedStyleDescription(ctx context.Context, internalID string) (string, error) {
	key := PromotedDescriptionKey(internalID, StyleUnit())
	ok, err := e.fs.Exists(ctx, key)
	if err != nil || !ok {
		return "", err
	}
	data, err := e.fs.Read(ctx, key)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
