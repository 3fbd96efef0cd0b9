package imagesv2

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/clara-platform/clara-backend/internal/ai"
	"github.com/clara-platform/clara-backend/internal/config"
	"github.com/clara-platform/clara-backend/internal/platform/filestore"
	"github.com/clara-platform/clara-backend/internal/platform/logger"
)

// maxPolicyRewrites caps how many times a description rejected by the image
// generator's content policy is softened and retried.
const maxPolicyRewrites = 3

type Engine struct {
	fs          filestore.Store
	text        ai.TextClient
	imager      ai.ImageClient
	interpreter ai.Interpreter
	params      config.ImagesConfig
	log         *logger.Logger

	costMu sync.Mutex
}

func NewEngine(fs filestore.Store, text ai.TextClient, imager ai.ImageClient, interpreter ai.Interpreter, params config.ImagesConfig, baseLog *logger.Logger) *Engine {
	return &Engine{
		fs:          fs,
		text:        text,
		imager:      imager,
		interpreter: interpreter,
		params:      params,
		log:         baseLog.With("component", "ImagesV2"),
	}
}

// StoryPage is one numbered page of the story the image set illustrates.
type StoryPage struct {
	Number int    `json:"number"`
	Text   string `json:"text"`
}

// WriteStory stores the numbered page list the engine works from.
func (e *Engine) WriteStory(ctx context.Context, internalID string, pages []StoryPage) error {
	data, err := json.MarshalIndent(pages, "", "  ")
	if err != nil {
		return err
	}
	return e.fs.Write(ctx, StoryKey(internalID), data)
}

func (e *Engine) LoadStory(ctx context.Context, internalID string) ([]StoryPage, error) {
	data, err := e.fs.Read(ctx, StoryKey(internalID))
	if err != nil {
		return nil, fmt.Errorf("read story: %w", err)
	}
	var pages []StoryPage
	if err := json.Unmarshal(data, &pages); err != nil {
		return nil, fmt.Errorf("decode story: %w", err)
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].Number < pages[j].Number })
	return pages, nil
}

func (e *Engine) storyText(pages []StoryPage) string {
	var out string
	for _, p := range pages {
		out += fmt.Sprintf("Page %d:\n%s\n\n", p.Number, p.Text)
	}
	return out
}

// operationCost aggregates the spend of one operation kind.
type operationCost struct {
	TotalCost float64 `json:"total_cost"`
	Calls     int     `json:"calls"`
}

// recordCost folds calls into the project's per-operation cost JSON. The
// file is read-modify-write under a lock; jobs for one project run on one
// worker at a time so this is the only writer.
func (e *Engine) recordCost(ctx context.Context, internalID, operation string, calls ...ai.Call) {
	if len(calls) == 0 {
		return
	}
	e.costMu.Lock()
	defer e.costMu.Unlock()

	costs := make(map[string]operationCost)
	if ok, err := e.fs.Exists(ctx, CostKey(internalID)); err == nil && ok {
		if data, err := e.fs.Read(ctx, CostKey(internalID)); err == nil {
			_ = json.Unmarshal(data, &costs)
		}
	}
	entry := costs[operation]
	for _, c := range calls {
		entry.TotalCost += c.Cost
		entry.Calls++
	}
	costs[operation] = entry
	data, err := json.MarshalIndent(costs, "", "  ")
	if err != nil {
		return
	}
	if err := e.fs.Write(ctx, CostKey(internalID), data); err != nil {
		e.log.Error("write cost file", "project", internalID, "error", err)
	}
}

// Costs returns the project's per-operation spend.
func (e *Engine) Costs(ctx context.Context, internalID string) (map[string]operationCost, error) {
	costs := make(map[string]operationCost)
	ok, err := e.fs.Exists(ctx, CostKey(internalID))
	if err != nil || !ok {
		return costs, err
	}
	data, err := e.fs.Read(ctx, CostKey(internalID))
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &costs); err != nil {
		return nil, err
	}
	return costs, nil
}

func (e *Engine) writeJSON(ctx context.Context, key string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return e.fs.Write(ctx, key, data)
}

func (e *Engine) readJSON(ctx context.Context, key string, v any) error {
	data, err := e.fs.Read(ctx, key)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
