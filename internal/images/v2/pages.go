package imagesv2

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/clara-platform/clara-backend/internal/core/clerror"
)

// relevantInfo names the earlier pages and declared elements a page's
// illustration depends on. Pages must precede the page itself; elements must
// be declared in elements.json.
type relevantInfo struct {
	Pages    []int    `json:"pages"`
	Elements []string `json:"elements"`
}

// ProcessPages generates and promotes an illustration for every requested
// page, or for the whole story when pages is empty. Page failures are
// recorded in the page's directory and do not stop the remaining pages.
func (e *Engine) ProcessPages(ctx context.Context, internalID string, pages []int) error {
	story, err := e.LoadStory(ctx, internalID)
	if err != nil {
		return err
	}
	if len(pages) == 0 {
		for _, p := range story {
			pages = append(pages, p.Number)
		}
	}
	style, err := e.promotedStyleDescription(ctx, internalID)
	if err != nil {
		return err
	}
	elements, err := e.LoadElements(ctx, internalID)
	if err != nil {
		return err
	}
	for _, page := range pages {
		if err := e.processPage(ctx, internalID, story, page, style, elements); err != nil {
			if ctx.Err() != nil {
				return err
			}
			e.log.Error("page generation failed", "project", internalID, "page", page, "error", err)
			unitDir := UnitDir(internalID, PageUnit(page))
			if writeErr := e.fs.Write(ctx, errorKey(unitDir), []byte(err.Error())); writeErr != nil {
				return writeErr
			}
		}
	}
	return nil
}

func (e *Engine) processPage(ctx context.Context, internalID string, story []StoryPage, page int, style string, elements []Element) error {
	pageText := ""
	for _, p := range story {
		if p.Number == page {
			pageText = p.Text
			break
		}
	}
	if pageText == "" {
		return clerror.New(clerror.ResourceMissing, "story has no page %d", page)
	}

	relevant, err := e.relevantInfoForPage(ctx, internalID, story, page, elements)
	if err != nil {
		return err
	}

	unit := PageUnit(page)
	prompt, err := e.pageExpansionPrompt(ctx, internalID, pageText, style, relevant, elements)
	if err != nil {
		return err
	}

	descOffset, err := e.nextDescriptionIndex(ctx, internalID, unit)
	if err != nil {
		return err
	}
	rounds := e.params.MaxDescriptionGenerationRounds
	if rounds < 1 {
		rounds = 1
	}

	var all []Alternate
	policyRewrites := 0
	for round := 0; round < rounds; round++ {
		res, err := e.sampleRound(ctx, internalID, sampleSpec{
			unit:                  unit,
			expansionPrompt:       prompt,
			operation:             "generate_page_image",
			firstDescriptionIndex: descOffset,
		})
		if err != nil {
			return err
		}
		descOffset += e.params.NExpandedDescriptions
		all, err = e.appendAlternates(ctx, internalID, unit, res.alternates)
		if err != nil {
			return err
		}

		if bestScore(all) >= e.params.AcceptableScore {
			break
		}
		if res.generated > 0 && res.policyRejected == res.generated {
			// Every image of the round was refused by the generator's
			// content policy: soften the wording and retry without
			// consuming a round.
			if policyRewrites >= maxPolicyRewrites {
				return clerror.New(clerror.ContentPolicyRejected,
					"page %d: image generation refused after %d rewrites", page, policyRewrites)
			}
			policyRewrites++
			lastDescDir := DescriptionDir(internalID, unit, descOffset-1)
			if err := e.fs.Copy(ctx, expandedDescriptionKey(lastDescDir), oldDescriptionKey(lastDescDir)); err != nil {
				return err
			}
			prompt, err = e.softenPrompt(ctx, internalID, lastDescDir, prompt)
			if err != nil {
				return err
			}
			round--
		}
	}

	if len(all) == 0 {
		return clerror.New(clerror.AICallFailed, "page %d produced no usable images", page)
	}
	_, err = e.Promote(ctx, internalID, unit)
	return err
}

func bestScore(alternates []Alternate) int {
	best := 0
	for _, alt := range alternates {
		if alt.Score > best {
			best = alt.Score
		}
	}
	return best
}

// relevantInfoForPage asks the model which earlier pages and which declared
// elements matter for this page, then clamps the reply to what actually
// exists. The result is cached in the page directory.
func (e *Engine) relevantInfoForPage(ctx context.Context, internalID string, story []StoryPage, page int, elements []Element) (*relevantInfo, error) {
	key := RelevantInfoKey(internalID, page)
	if ok, err := e.fs.Exists(ctx, key); err != nil {
		return nil, err
	} else if ok {
		info := &relevantInfo{}
		if err := e.readJSON(ctx, key, info); err != nil {
			return nil, err
		}
		return info, nil
	}

	var names []string
	for _, el := range elements {
		names = append(names, el.Name)
	}
	prompt := fmt.Sprintf(`Story:
%s
We are illustrating page %d. The declared recurring elements are: %s.

Which earlier pages does the illustration of page %d need to stay visually
consistent with, and which of the declared elements appear on it?
Reply with a JSON object {"pages": [<page numbers before %d>], "elements": [<names from the declared list>]}.`,
		e.storyText(story), page, strings.Join(names, ", "), page, page)

	response, call, err := e.text.GenerateJSON(ctx, "", prompt, "relevant_pages_and_elements", nil)
	e.recordCost(ctx, internalID, "find_relevant_info", call)
	if err != nil {
		return nil, err
	}

	info := &relevantInfo{}
	if raw, ok := response["pages"].([]any); ok {
		for _, p := range raw {
			n, ok := p.(float64)
			if ok && int(n) < page && int(n) > 0 {
				info.Pages = append(info.Pages, int(n))
			}
		}
	}
	declared := make(map[string]string, len(elements))
	for _, el := range elements {
		declared[strings.ToLower(el.Name)] = el.Name
	}
	if raw, ok := response["elements"].([]any); ok {
		for _, el := range raw {
			name, ok := el.(string)
			if !ok {
				continue
			}
			if canonical, ok := declared[strings.ToLower(name)]; ok {
				info.Elements = append(info.Elements, canonical)
			}
		}
	}
	if err := e.writeJSON(ctx, key, info); err != nil {
		return nil, err
	}
	return info, nil
}

// pageExpansionPrompt builds the description request for a page. The model is
// told to open with an "Essential aspects" section, which the evaluator
// treats as hard requirements.
func (e *Engine) pageExpansionPrompt(ctx context.Context, internalID, pageText, style string, relevant *relevantInfo, elements []Element) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, `You are describing one illustration for a page of a story.

Page text:
%s

Illustration style:
%s
`, pageText, style)

	declared := make(map[string]Element, len(elements))
	for _, el := range elements {
		declared[el.Name] = el
	}
	for _, name := range relevant.Elements {
		desc, err := e.promotedElementDescription(ctx, internalID, name)
		if err != nil {
			return "", err
		}
		if desc == "" {
			desc = declared[name].Text
		}
		fmt.Fprintf(&b, "\n%s appears on this page and must be drawn exactly as described:\n%s\n", name, desc)
	}
	for _, n := range relevant.Pages {
		prior, err := e.promotedPageDescription(ctx, internalID, n)
		if err != nil {
			return "", err
		}
		if prior != "" {
			fmt.Fprintf(&b, "\nFor continuity, page %d was illustrated as:\n%s\n", n, prior)
		}
	}

	b.WriteString(`
Write the full description of the illustration. Begin with a section titled
"Essential aspects" listing the things the image must show, then describe
composition, setting, poses and atmosphere. Return only the description.`)
	return b.String(), nil
}

func (e *Engine) promotedElementDescription(ctx context.Context, internalID, name string) (string, error) {
	return e.promotedText(ctx, PromotedDescriptionKey(internalID, ElementUnit(name)))
}

func (e *Engine) promotedPageDescription(ctx context.Context, internalID string, page int) (string, error) {
	return e.promotedText(ctx, PromotedDescriptionKey(internalID, PageUnit(page)))
}

func (e *Engine) promotedText(ctx context.Context, key string) (string, error) {
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

// softenPrompt rewrites a content-policy-rejected description request into a
// gentler one and returns the replacement expansion prompt.
func (e *Engine) softenPrompt(ctx context.Context, internalID, rejectedDescDir, prompt string) (string, error) {
	rejected, err := e.fs.Read(ctx, oldDescriptionKey(rejectedDescDir))
	if err != nil {
		return "", err
	}
	softenRequest := fmt.Sprintf(`The image generator refused the following illustration description for
content policy reasons:

%s

Rewrite the original request below so the resulting description keeps the
scene's meaning but avoids anything an image generator could refuse: tone
down violence, injury, distress and anything ambiguous. Return only the
rewritten request.

Original request:
%s`, string(rejected), prompt)

	softened, call, err := e.text.GenerateText(ctx, "", softenRequest)
	e.recordCost(ctx, internalID, "rewrite_rejected_description", call)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(softened), nil
}

// nextDescriptionIndex finds the first unused description_v index of a unit,
// so a re-run never touches an existing write-once directory.
func (e *Engine) nextDescriptionIndex(ctx context.Context, internalID string, u Unit) (int, error) {
	keys, err := e.fs.List(ctx, UnitDir(internalID, u))
	if err != nil {
		return 0, err
	}
	next := 0
	prefix := UnitDir(internalID, u) + "/description_v"
	for _, key := range keys {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		rest := strings.TrimPrefix(key, prefix)
		if i := strings.IndexByte(rest, '/'); i > 0 {
			rest = rest[:i]
		}
		n, err := strconv.Atoi(rest)
		if err == nil && n+1 > next {
			next = n + 1
		}
	}
	return next, nil
}
