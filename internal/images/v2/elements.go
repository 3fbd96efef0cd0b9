package imagesv2

import (
	"context"
	"fmt"
	"strings"

	"github.com/clara-platform/clara-backend/internal/core/clerror"
)

// Element is one recurring named entity of the story: a character, animal,
// object or location that must look the same on every page.
type Element struct {
	Name string `json:"name"`
	Text string `json:"text"`
}

func (e *Engine) LoadElements(ctx context.Context, internalID string) ([]Element, error) {
	key := ElementsKey(internalID)
	ok, err := e.fs.Exists(ctx, key)
	if err != nil || !ok {
		return nil, err
	}
	var elements []Element
	if err := e.readJSON(ctx, key, &elements); err != nil {
		return nil, err
	}
	return elements, nil
}

func (e *Engine) saveElements(ctx context.Context, internalID string, elements []Element) error {
	return e.writeJSON(ctx, ElementsKey(internalID), elements)
}

// ExtractElements asks the model for the story's recurring entities and
// stores them as elements.json. Users can add and delete elements afterwards.
func (e *Engine) ExtractElements(ctx context.Context, internalID string) ([]Element, error) {
	story, err := e.LoadStory(ctx, internalID)
	if err != nil {
		return nil, err
	}
	prompt := fmt.Sprintf(`Read the following story and list the recurring named entities that must
look identical whenever they appear in its illustrations: characters, animals,
significant objects, locations.

Story:
%s
Reply with a JSON object {"elements": [{"name": "<short name>", "text": "<one-line description>"}, ...]}.`,
		e.storyText(story))

	response, call, err := e.text.GenerateJSON(ctx, "", prompt, "story_elements", nil)
	e.recordCost(ctx, internalID, "extract_elements", call)
	if err != nil {
		return nil, err
	}
	raw, ok := response["elements"].([]any)
	if !ok {
		return nil, clerror.New(clerror.AICallFailed, "reply lacks an elements list")
	}
	var elements []Element
	for _, entry := range raw {
		m, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		name, _ := m["name"].(string)
		text, _ := m["text"].(string)
		if strings.TrimSpace(name) == "" {
			continue
		}
		elements = append(elements, Element{Name: name, Text: text})
	}
	if err := e.saveElements(ctx, internalID, elements); err != nil {
		return nil, err
	}
	return elements, nil
}

// AddElement registers a user-supplied element.
func (e *Engine) AddElement(ctx context.Context, internalID string, element Element) error {
	if strings.TrimSpace(element.Name) == "" {
		return clerror.New(clerror.Validation, "element name must not be empty")
	}
	elements, err := e.LoadElements(ctx, internalID)
	if err != nil {
		return err
	}
	for _, existing := range elements {
		if strings.EqualFold(existing.Name, element.Name) {
			return clerror.New(clerror.Validation, "element %q already exists", element.Name)
		}
	}
	return e.saveElements(ctx, internalID, append(elements, element))
}

// DeleteElement removes an element and its directory.
func (e *Engine) DeleteElement(ctx context.Context, internalID, name string) error {
	elements, err := e.LoadElements(ctx, internalID)
	if err != nil {
		return err
	}
	kept := elements[:0]
	found := false
	for _, existing := range elements {
		if strings.EqualFold(existing.Name, name) {
			found = true
			continue
		}
		kept = append(kept, existing)
	}
	if !found {
		return clerror.New(clerror.ResourceMissing, "element %q not found", name)
	}
	if err := e.fs.RemoveAll(ctx, UnitDir(internalID, ElementUnit(name))); err != nil {
		return err
	}
	return e.saveElements(ctx, internalID, kept)
}

// ProcessElements generates and promotes a reference image for every
// declared element, in the promoted style.
func (e *Engine) ProcessElements(ctx context.Context, internalID string) error {
	elements, err := e.LoadElements(ctx, internalID)
	if err != nil {
		return err
	}
	if len(elements) == 0 {
		if _, err := e.ExtractElements(ctx, internalID); err != nil {
			return err
		}
		if elements, err = e.LoadElements(ctx, internalID); err != nil {
			return err
		}
	}
	style, err := e.promotedStyleDescription(ctx, internalID)
	if err != nil {
		return err
	}
	for _, element := range elements {
		if err := e.processElement(ctx, internalID, element, style); err != nil {
			return fmt.Errorf("element %q: %w", element.Name, err)
		}
	}
	return nil
}

func (e *Engine) processElement(ctx context.Context, internalID string, element Element, style string) error {
	prompt := fmt.Sprintf(`You are writing the reference description for a recurring entity in an
illustrated story, so every page can draw it identically.

Entity: %s
Known facts: %s
Illustration style:
%s

Write a complete physical description covering, where applicable: species or
object type, size, build, colours, clothing and accessories, distinguishing
marks, typical posture or expression. The entity must appear alone on a plain
background. Return only the description.`, element.Name, element.Text, style)

	round, err := e.sampleRound(ctx, internalID, sampleSpec{
		unit:            ElementUnit(element.Name),
		expansionPrompt: prompt,
		operation:       "generate_element_image",
	})
	if err != nil {
		return err
	}
	if _, err := e.appendAlternates(ctx, internalID, ElementUnit(element.Name), round.alternates); err != nil {
		return err
	}
	_, err = e.Promote(ctx, internalID, ElementUnit(element.Name))
	return err
}
