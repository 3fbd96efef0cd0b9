// Package vision wraps the Cloud Vision API as a fallback image interpreter.
// It produces a flat textual description from label and object annotations,
// which the evaluation prompts consume the same way as a multimodal LLM
// interpretation. No cost is charged against user credit for Vision calls.
package vision

import (
	"context"
	"fmt"
	"strings"
	"time"

	vision "cloud.google.com/go/vision/v2/apiv1"
	visionpb "cloud.google.com/go/vision/v2/apiv1/visionpb"

	"github.com/clara-platform/clara-backend/internal/ai"
	"github.com/clara-platform/clara-backend/internal/core/clerror"
	"github.com/clara-platform/clara-backend/internal/platform/logger"
)

type Interpreter struct {
	log    *logger.Logger
	client *vision.ImageAnnotatorClient
}

func NewInterpreter(ctx context.Context, log *logger.Logger) (*Interpreter, error) {
	client, err := vision.NewImageAnnotatorClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create vision client: %w", err)
	}
	return &Interpreter{
		log:    log.With("service", "VisionInterpreter"),
		client: client,
	}, nil
}

func (v *Interpreter) Close() error { return v.client.Close() }

func (v *Interpreter) InterpretImage(ctx context.Context, _ string, image []byte, _ string) (string, ai.Call, error) {
	call := ai.Call{Prompt: "(vision label detection)", Timestamp: time.Now()}
	start := time.Now()
	req := &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{
			{
				Image: &visionpb.Image{Content: image},
				Features: []*visionpb.Feature{
					{Type: visionpb.Feature_LABEL_DETECTION, MaxResults: 20},
					{Type: visionpb.Feature_OBJECT_LOCALIZATION, MaxResults: 20},
				},
			},
		},
	}
	resp, err := v.client.BatchAnnotateImages(ctx, req)
	call.Duration = time.Since(start)
	if err != nil {
		return "", call, clerror.Wrap(clerror.AICallFailed, err, "vision annotate")
	}
	if len(resp.Responses) == 0 {
		return "", call, clerror.New(clerror.AICallFailed, "vision returned no responses")
	}
	r := resp.Responses[0]
	var parts []string
	for _, l := range r.LabelAnnotations {
		parts = append(parts, l.Description)
	}
	for _, o := range r.LocalizedObjectAnnotations {
		parts = append(parts, o.Name)
	}
	desc := "The image contains: " + strings.Join(dedupe(parts), ", ")
	call.Response = desc
	return desc, call, nil
}

func dedupe(in []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(in))
	for _, s := range in {
		key := strings.ToLower(strings.TrimSpace(s))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
	}
	return out
}
