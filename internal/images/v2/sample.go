package imagesv2

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/clara-platform/clara-backend/internal/ai"
	"github.com/clara-platform/clara-backend/internal/core/clerror"
)

// maxParallelSamples bounds concurrent image generations within one unit.
const maxParallelSamples = 4

// evaluation is the stored result of scoring one image against its target
// description, 0 (unusable) to 4 (faithful).
type evaluation struct {
	Score    int    `json:"score"`
	Comments string `json:"comments"`
}

// Alternate is one successfully produced candidate image, addressed by its
// description and image indices. Paths are relative to the unit directory;
// the UI never references files outside this manifest.
type Alternate struct {
	DescriptionIndex int    `json:"description_index"`
	ImageIndex       int    `json:"image_index"`
	Image            string `json:"image"`
	Interpretation   string `json:"interpretation"`
	Evaluation       string `json:"evaluation"`
	Score            int    `json:"score"`
}

// imageInfo aggregates one description's image scores.
type imageInfo struct {
	AvScore   float64 `json:"av_score"`
	BestScore int     `json:"best_score"`
}

// sampleSpec parameterises one sampling round over a unit.
type sampleSpec struct {
	unit Unit

	// expansionPrompt asks the text model for one expanded description.
	expansionPrompt string

	// evaluationTarget is what generated images are scored against; empty
	// means the expanded description itself.
	evaluationTarget string

	// operation tags cost entries, e.g. "generate_style_image".
	operation string

	// firstDescriptionIndex offsets description numbering so later rounds
	// never overwrite earlier write-once directories.
	firstDescriptionIndex int
}

// roundResult is what one sampling round produced.
type roundResult struct {
	alternates     []Alternate
	policyRejected int
	generated      int
}

// sampleRound expands n descriptions and generates n images per description
// in parallel, writing the write-once artefact tree as it goes. Image-level
// failures become error.txt entries rather than failing the round.
func (e *Engine) sampleRound(ctx context.Context, internalID string, spec sampleSpec) (*roundResult, error) {
	result := &roundResult{}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelSamples)
	for k := 0; k < e.params.NExpandedDescriptions; k++ {
		descIndex := spec.firstDescriptionIndex + k
		g.Go(func() error {
			description, call, err := e.expandDescription(gctx, spec)
			e.recordCost(gctx, internalID, "expand_description", call)
			if err != nil {
				return err
			}
			descDir := DescriptionDir(internalID, spec.unit, descIndex)
			if err := e.fs.Write(gctx, expandedDescriptionKey(descDir), []byte(description)); err != nil {
				return err
			}
			alternates, policy, err := e.sampleDescription(gctx, internalID, spec, descIndex, description)
			if err != nil {
				return err
			}
			mu.Lock()
			result.alternates = append(result.alternates, alternates...)
			result.policyRejected += policy
			result.generated += e.params.NImagesPerDescription
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return result, err
	}
	return result, nil
}

func (e *Engine) expandDescription(ctx context.Context, spec sampleSpec) (string, ai.Call, error) {
	response, call, err := e.text.GenerateText(ctx, "", spec.expansionPrompt)
	if err != nil {
		return "", call, err
	}
	return strings.TrimSpace(response), call, nil
}

// sampleDescription generates, interprets and evaluates every image of one
// description. Each image directory ends up with either the full artefact
// set or error.txt plus a zero evaluation.
func (e *Engine) sampleDescription(ctx context.Context, internalID string, spec sampleSpec, descIndex int, description string) ([]Alternate, int, error) {
	var mu sync.Mutex
	var alternates []Alternate
	policyRejected := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelSamples)
	for j := 0; j < e.params.NImagesPerDescription; j++ {
		g.Go(func() error {
			imgDir := ImageDir(internalID, spec.unit, descIndex, j)
			alt, err := e.produceImage(gctx, internalID, spec, imgDir, descIndex, j, description)
			if err != nil {
				if gctx.Err() != nil {
					return err
				}
				if writeErr := e.writeImageError(gctx, imgDir, err); writeErr != nil {
					return writeErr
				}
				if clerror.Is(err, clerror.ContentPolicyRejected) {
					mu.Lock()
					policyRejected++
					mu.Unlock()
				}
				return nil
			}
			mu.Lock()
			alternates = append(alternates, *alt)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	info := imageInfo{}
	for _, alt := range alternates {
		info.AvScore += float64(alt.Score)
		if alt.Score > info.BestScore {
			info.BestScore = alt.Score
		}
	}
	if len(alternates) > 0 {
		info.AvScore /= float64(len(alternates))
	}
	if err := e.writeJSON(ctx, imageInfoKey(DescriptionDir(internalID, spec.unit, descIndex)), info); err != nil {
		return nil, 0, err
	}
	return alternates, policyRejected, nil
}

func (e *Engine) produceImage(ctx context.Context, internalID string, spec sampleSpec, imgDir string, descIndex, imageIndex int, description string) (*Alternate, error) {
	img, genCall, err := e.imager.GenerateImage(ctx, description)
	e.recordCost(ctx, internalID, spec.operation, genCall)
	if err != nil {
		return nil, err
	}
	if err := e.fs.Write(ctx, imageKey(imgDir), img.Bytes); err != nil {
		return nil, err
	}

	interpretation, intCall, err := e.interpreter.InterpretImage(ctx,
		"Describe this image in detail: subjects, composition, setting, artistic style.",
		img.Bytes, img.MimeType)
	e.recordCost(ctx, internalID, "interpret_"+string(spec.unit.Kind)+"_image", intCall)
	if err != nil {
		return nil, err
	}
	if err := e.fs.Write(ctx, interpretationKey(imgDir), []byte(interpretation)); err != nil {
		return nil, err
	}

	target := spec.evaluationTarget
	if target == "" {
		target = description
	}
	eval, evalCall, err := e.evaluateImage(ctx, target, interpretation)
	e.recordCost(ctx, internalID, "evaluate_"+string(spec.unit.Kind)+"_image", evalCall)
	if err != nil {
		return nil, err
	}
	if err := e.writeJSON(ctx, evaluationKey(imgDir), eval); err != nil {
		return nil, err
	}
	if err := e.writeJSON(ctx, costDetailKey(imgDir), map[string]float64{
		"generate":  genCall.Cost,
		"interpret": intCall.Cost,
		"evaluate":  evalCall.Cost,
	}); err != nil {
		return nil, err
	}

	unitDir := UnitDir(internalID, spec.unit) + "/"
	return &Alternate{
		DescriptionIndex: descIndex,
		ImageIndex:       imageIndex,
		Image:            strings.TrimPrefix(imageKey(imgDir), unitDir),
		Interpretation:   strings.TrimPrefix(interpretationKey(imgDir), unitDir),
		Evaluation:       strings.TrimPrefix(evaluationKey(imgDir), unitDir),
		Score:            eval.Score,
	}, nil
}

// writeImageError marks a failed image directory: error.txt and a zero
// evaluation, never a partial artefact set.
func (e *Engine) writeImageError(ctx context.Context, imgDir string, cause error) error {
	if err := e.fs.Write(ctx, errorKey(imgDir), []byte(cause.Error())); err != nil {
		return err
	}
	return e.writeJSON(ctx, evaluationKey(imgDir), evaluation{Score: 0, Comments: "generation failed"})
}

// evaluateImage scores an interpretation against the target description.
func (e *Engine) evaluateImage(ctx context.Context, target, interpretation string) (evaluation, ai.Call, error) {
	prompt := fmt.Sprintf(`You are evaluating whether a generated image matches its intended description.

Intended description:
%s

What the image actually shows (independent interpretation):
%s

Score the match from 0 (unusable) to 4 (faithful in every important respect).
If the intended description opens with an "Essential aspects" section, any missing
essential aspect caps the score at 1.
Reply with a JSON object {"score": <0-4>, "comments": "<brief justification>"}.`,
		target, interpretation)

	response, call, err := e.text.GenerateJSON(ctx, "", prompt, "image_evaluation", nil)
	if err != nil {
		return evaluation{}, call, err
	}
	score, ok := response["score"].(float64)
	if !ok || score < 0 || score > 4 {
		return evaluation{}, call, clerror.New(clerror.AICallFailed, "evaluation reply lacks a 0-4 score")
	}
	comments, _ := response["comments"].(string)
	return evaluation{Score: int(score), Comments: comments}, call, nil
}
