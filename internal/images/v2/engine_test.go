package imagesv2

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clara-platform/clara-backend/internal/ai"
	"github.com/clara-platform/clara-backend/internal/config"
	"github.com/clara-platform/clara-backend/internal/core/clerror"
	"github.com/clara-platform/clara-backend/internal/data/repos/testutil"
	"github.com/clara-platform/clara-backend/internal/platform/filestore"
)

// fakeText answers expansion, extraction and evaluation prompts
// deterministically. When rejectExpansions is set, expansions carry a marker
// the fake imager refuses, until a soften request has been answered.
type fakeText struct {
	mu               sync.Mutex
	rejectExpansions bool
	rejectAlways     bool
	softenCalls      int
	evalScore        float64
}

func (f *fakeText) GenerateText(ctx context.Context, system, user string) (string, ai.Call, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	call := ai.Call{Prompt: user, Cost: 0.01}
	if strings.Contains(user, "content policy reasons") {
		f.softenCalls++
		if !f.rejectAlways {
			f.rejectExpansions = false
		}
		return "SOFTENED REQUEST", call, nil
	}
	if f.rejectExpansions || f.rejectAlways {
		return "FORBIDDEN scene with too much peril", call, nil
	}
	return "a detailed description derived from the request", call, nil
}

func (f *fakeText) GenerateJSON(ctx context.Context, system, user, schemaName string, schema map[string]any) (map[string]any, ai.Call, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	call := ai.Call{Prompt: user, Cost: 0.01}
	switch schemaName {
	case "image_evaluation":
		score := f.evalScore
		if score == 0 {
			score = 4
		}
		return map[string]any{"score": score, "comments": "looks right"}, call, nil
	case "story_elements":
		return map[string]any{"elements": []any{
			map[string]any{"name": "Humpty Dumpty", "text": "a large egg with a face"},
			map[string]any{"name": "the wall", "text": "a high stone wall"},
		}}, call, nil
	case "relevant_pages_and_elements":
		return map[string]any{
			"pages":    []any{float64(1)},
			"elements": []any{"Humpty Dumpty", "Unknown Stranger"},
		}, call, nil
	}
	return nil, call, clerror.New(clerror.AICallFailed, "unexpected schema %q", schemaName)
}

// fakeImager refuses descriptions carrying FORBIDDEN and otherwise returns
// bytes derived from the prompt.
type fakeImager struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeImager) GenerateImage(ctx context.Context, prompt string) (ai.ImageResult, ai.Call, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	f.mu.Unlock()
	call := ai.Call{Prompt: prompt, Cost: 0.04}
	if strings.Contains(prompt, "FORBIDDEN") {
		return ai.ImageResult{}, call, clerror.New(clerror.ContentPolicyRejected, "image request refused")
	}
	return ai.ImageResult{
		Bytes:    []byte(fmt.Sprintf("JPEGDATA-%d|%s", n, prompt)),
		MimeType: "image/jpeg",
	}, call, nil
}

type fakeInterpreter struct{}

func (fakeInterpreter) InterpretImage(ctx context.Context, prompt string, image []byte, mimeType string) (string, ai.Call, error) {
	return "interpretation of " + string(image), ai.Call{Cost: 0.005}, nil
}

type v2Fixture struct {
	engine      *Engine
	fs          filestore.Store
	text        *fakeText
	imager      *fakeImager
	internalID  string
	ctx         context.Context
}

func newV2Fixture(t *testing.T) *v2Fixture {
	t.Helper()
	local, err := filestore.NewLocal(t.TempDir())
	require.NoError(t, err)
	text := &fakeText{}
	imager := &fakeImager{}
	engine := NewEngine(local, text, imager, fakeInterpreter{}, config.ImagesConfig{
		NExpandedDescriptions:          2,
		NImagesPerDescription:          2,
		MaxDescriptionGenerationRounds: 2,
		AcceptableScore:                3,
	}, testutil.Logger(t))
	return &v2Fixture{
		engine:     engine,
		fs:         local,
		text:       text,
		imager:     imager,
		internalID: "humpty_dumpty_1",
		ctx:        context.Background(),
	}
}

func (f *v2Fixture) writeHumptyStory(t *testing.T) {
	t.Helper()
	require.NoError(t, f.engine.WriteStory(f.ctx, f.internalID, []StoryPage{
		{Number: 1, Text: "Humpty Dumpty sat on a wall."},
		{Number: 2, Text: "Humpty Dumpty had a great fall."},
		{Number: 3, Text: "All the king's horses and all the king's men"},
		{Number: 4, Text: "Couldn't put Humpty together again."},
	}))
}

func TestProcessStylePromotesByteEqualAlternate(t *testing.T) {
	f := newV2Fixture(t)
	f.writeHumptyStory(t)

	best, err := f.engine.ProcessStyle(f.ctx, f.internalID, "soft watercolour")
	require.NoError(t, err)
	require.NotNil(t, best)

	alternates, err := f.engine.loadAlternates(f.ctx, f.internalID, StyleUnit())
	require.NoError(t, err)
	assert.Len(t, alternates, 4)

	promoted, err := f.fs.Read(f.ctx, PromotedImageKey(f.internalID, StyleUnit()))
	require.NoError(t, err)
	source, err := f.fs.Read(f.ctx, UnitDir(f.internalID, StyleUnit())+"/"+best.Image)
	require.NoError(t, err)
	assert.Equal(t, source, promoted)

	style, err := f.engine.promotedStyleDescription(f.ctx, f.internalID)
	require.NoError(t, err)
	assert.NotEmpty(t, style)
}

func TestExtractAddDeleteElements(t *testing.T) {
	f := newV2Fixture(t)
	f.writeHumptyStory(t)

	elements, err := f.engine.ExtractElements(f.ctx, f.internalID)
	require.NoError(t, err)
	require.Len(t, elements, 2)
	assert.Equal(t, "Humpty Dumpty", elements[0].Name)
	assert.Equal(t, "the wall", elements[1].Name)

	err = f.engine.AddElement(f.ctx, f.internalID, Element{Name: "humpty dumpty"})
	assert.True(t, clerror.Is(err, clerror.Validation))

	require.NoError(t, f.engine.AddElement(f.ctx, f.internalID, Element{Name: "the king's men", Text: "soldiers on horseback"}))

	require.NoError(t, f.engine.DeleteElement(f.ctx, f.internalID, "the wall"))
	elements, err = f.engine.LoadElements(f.ctx, f.internalID)
	require.NoError(t, err)
	require.Len(t, elements, 2)

	err = f.engine.DeleteElement(f.ctx, f.internalID, "the wall")
	assert.True(t, clerror.Is(err, clerror.ResourceMissing))
}

func TestProcessPagesPromotesEveryPage(t *testing.T) {
	f := newV2Fixture(t)
	f.writeHumptyStory(t)

	_, err := f.engine.ProcessStyle(f.ctx, f.internalID, "soft watercolour")
	require.NoError(t, err)
	require.NoError(t, f.engine.ProcessElements(f.ctx, f.internalID))
	require.NoError(t, f.engine.ProcessPages(f.ctx, f.internalID, nil))

	for page := 1; page <= 4; page++ {
		ok, err := f.fs.Exists(f.ctx, PromotedImageKey(f.internalID, PageUnit(page)))
		require.NoError(t, err)
		assert.True(t, ok, "page %d has no promoted image", page)

		ok, err = f.fs.Exists(f.ctx, RelevantInfoKey(f.internalID, page))
		require.NoError(t, err)
		assert.True(t, ok, "page %d has no relevant info", page)
	}

	// Evaluations score 4, so one round per page suffices.
	alternates, err := f.engine.loadAlternates(f.ctx, f.internalID, PageUnit(1))
	require.NoError(t, err)
	assert.Len(t, alternates, 4)

	costs, err := f.engine.Costs(f.ctx, f.internalID)
	require.NoError(t, err)
	assert.Greater(t, costs["generate_page_image"].TotalCost, 0.0)
	assert.Greater(t, costs["find_relevant_info"].Calls, 0)
}

func TestRelevantInfoClampsToDeclaredElements(t *testing.T) {
	f := newV2Fixture(t)
	f.writeHumptyStory(t)
	_, err := f.engine.ExtractElements(f.ctx, f.internalID)
	require.NoError(t, err)

	story, err := f.engine.LoadStory(f.ctx, f.internalID)
	require.NoError(t, err)
	elements, err := f.engine.LoadElements(f.ctx, f.internalID)
	require.NoError(t, err)

	info, err := f.engine.relevantInfoForPage(f.ctx, f.internalID, story, 2, elements)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, info.Pages)
	assert.Equal(t, []string{"Humpty Dumpty"}, info.Elements)
}

func TestContentPolicyRejectionSoftensAndRetries(t *testing.T) {
	f := newV2Fixture(t)
	f.writeHumptyStory(t)
	f.text.rejectExpansions = true

	require.NoError(t, f.engine.ProcessPages(f.ctx, f.internalID, []int{2}))

	ok, err := f.fs.Exists(f.ctx, PromotedImageKey(f.internalID, PageUnit(2)))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, f.text.softenCalls)

	// The rejected round's description was archived before the rewrite.
	descDirs, err := f.fs.List(f.ctx, UnitDir(f.internalID, PageUnit(2)))
	require.NoError(t, err)
	archived := false
	for _, key := range descDirs {
		if strings.HasSuffix(key, "/expanded_description_old.txt") {
			archived = true
		}
	}
	assert.True(t, archived)

	// Rejected image directories carry error.txt and a zero evaluation, no
	// image file.
	imgDir := ImageDir(f.internalID, PageUnit(2), 0, 0)
	ok, err = f.fs.Exists(f.ctx, errorKey(imgDir))
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = f.fs.Exists(f.ctx, evaluationKey(imgDir))
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = f.fs.Exists(f.ctx, imageKey(imgDir))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestContentPolicyRewriteCap(t *testing.T) {
	f := newV2Fixture(t)
	f.writeHumptyStory(t)
	f.text.rejectAlways = true

	require.NoError(t, f.engine.ProcessPages(f.ctx, f.internalID, []int{1}))

	assert.Equal(t, maxPolicyRewrites, f.text.softenCalls)
	data, err := f.fs.Read(f.ctx, errorKey(UnitDir(f.internalID, PageUnit(1))))
	require.NoError(t, err)
	assert.Contains(t, string(data), "refused")
	ok, err := f.fs.Exists(f.ctx, PromotedImageKey(f.internalID, PageUnit(1)))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPromoteWithoutAlternates(t *testing.T) {
	f := newV2Fixture(t)
	_, err := f.engine.Promote(f.ctx, f.internalID, PageUnit(9))
	assert.True(t, clerror.Is(err, clerror.ResourceMissing))
}

func writeAlternateFiles(t *testing.T, f *v2Fixture, page, desc, img, score int) Alternate {
	t.Helper()
	unit := PageUnit(page)
	descDir := DescriptionDir(f.internalID, unit, desc)
	imgDir := ImageDir(f.internalID, unit, desc, img)
	require.NoError(t, f.fs.Write(f.ctx, expandedDescriptionKey(descDir), []byte(fmt.Sprintf("description %d", desc))))
	require.NoError(t, f.fs.Write(f.ctx, imageKey(imgDir), []byte(fmt.Sprintf("image %d/%d", desc, img))))
	require.NoError(t, f.fs.Write(f.ctx, interpretationKey(imgDir), []byte("seen")))
	require.NoError(t, f.fs.Write(f.ctx, evaluationKey(imgDir), []byte(fmt.Sprintf(`{"score": %d, "comments": ""}`, score))))
	unitDir := UnitDir(f.internalID, unit) + "/"
	return Alternate{
		DescriptionIndex: desc,
		ImageIndex:       img,
		Image:            strings.TrimPrefix(imageKey(imgDir), unitDir),
		Interpretation:   strings.TrimPrefix(interpretationKey(imgDir), unitDir),
		Evaluation:       strings.TrimPrefix(evaluationKey(imgDir), unitDir),
		Score:            score,
	}
}

func TestPromotePrefersHighestAverageDescription(t *testing.T) {
	f := newV2Fixture(t)
	page := 2
	// One outstanding image cannot carry a description whose other samples
	// failed the evaluation; the consistently good description wins.
	spike := writeAlternateFiles(t, f, page, 0, 0, 4)
	dud := writeAlternateFiles(t, f, page, 0, 1, 0)
	steady0 := writeAlternateFiles(t, f, page, 1, 0, 3)
	steady1 := writeAlternateFiles(t, f, page, 1, 1, 3)
	_, err := f.engine.appendAlternates(f.ctx, f.internalID, PageUnit(page),
		[]Alternate{spike, dud, steady0, steady1})
	require.NoError(t, err)

	best, err := f.engine.Promote(f.ctx, f.internalID, PageUnit(page))
	require.NoError(t, err)
	assert.Equal(t, 1, best.DescriptionIndex)
	assert.Equal(t, 1, best.ImageIndex)

	promoted, err := f.fs.Read(f.ctx, PromotedImageKey(f.internalID, PageUnit(page)))
	require.NoError(t, err)
	assert.Equal(t, []byte("image 1/1"), promoted)

	// Votes pick between the winning description's images but cannot pull
	// promotion back to the weaker description.
	require.NoError(t, f.engine.AddVote(f.ctx, f.internalID, page, uuid.New(), 0, 0, VoteUp))
	require.NoError(t, f.engine.AddVote(f.ctx, f.internalID, page, uuid.New(), 1, 0, VoteUp))
	best, err = f.engine.Promote(f.ctx, f.internalID, PageUnit(page))
	require.NoError(t, err)
	assert.Equal(t, 1, best.DescriptionIndex)
	assert.Equal(t, 0, best.ImageIndex)
}

func TestVotesSwayPromotionAndAreIdempotent(t *testing.T) {
	f := newV2Fixture(t)
	page := 1
	weak := writeAlternateFiles(t, f, page, 0, 0, 2)
	strong := writeAlternateFiles(t, f, page, 0, 1, 3)
	_, err := f.engine.appendAlternates(f.ctx, f.internalID, PageUnit(page), []Alternate{weak, strong})
	require.NoError(t, err)

	best, err := f.engine.Promote(f.ctx, f.internalID, PageUnit(page))
	require.NoError(t, err)
	assert.Equal(t, 1, best.ImageIndex)

	// Two up votes from one user count once; the second replaces the first.
	voter := uuid.New()
	require.NoError(t, f.engine.AddVote(f.ctx, f.internalID, page, voter, 0, 0, VoteUp))
	require.NoError(t, f.engine.AddVote(f.ctx, f.internalID, page, voter, 0, 0, VoteUp))
	fb, err := f.engine.loadFeedback(f.ctx, f.internalID, page)
	require.NoError(t, err)
	assert.Len(t, fb.Votes, 1)

	// One vote only ties the scores; the second voter tips it.
	require.NoError(t, f.engine.AddVote(f.ctx, f.internalID, page, uuid.New(), 0, 0, VoteUp))
	best, err = f.engine.Promote(f.ctx, f.internalID, PageUnit(page))
	require.NoError(t, err)
	assert.Equal(t, 0, best.ImageIndex)

	promoted, err := f.fs.Read(f.ctx, PromotedImageKey(f.internalID, PageUnit(page)))
	require.NoError(t, err)
	assert.Equal(t, []byte("image 0/0"), promoted)

	err = f.engine.AddVote(f.ctx, f.internalID, page, voter, 0, 0, "sideways")
	assert.True(t, clerror.Is(err, clerror.Validation))
}

func TestRefreshAIVotesSkipsHumanVotedImages(t *testing.T) {
	f := newV2Fixture(t)
	page := 3
	good := writeAlternateFiles(t, f, page, 0, 0, 4)
	bad := writeAlternateFiles(t, f, page, 0, 1, 1)
	_, err := f.engine.appendAlternates(f.ctx, f.internalID, PageUnit(page), []Alternate{good, bad})
	require.NoError(t, err)

	// A human already voted the bad image up; the AI must not override it.
	require.NoError(t, f.engine.AddVote(f.ctx, f.internalID, page, uuid.New(), 0, 1, VoteUp))
	require.NoError(t, f.engine.RefreshAIVotes(f.ctx, f.internalID, page))

	fb, err := f.engine.loadFeedback(f.ctx, f.internalID, page)
	require.NoError(t, err)
	require.Len(t, fb.Votes, 2)
	human, aiVotes := netVotes(fb)
	assert.Equal(t, 1, human[[2]int{0, 1}])
	assert.Equal(t, 1, aiVotes[[2]int{0, 0}])
	assert.Zero(t, aiVotes[[2]int{0, 1}])
}

func TestEnsurePlaceholder(t *testing.T) {
	f := newV2Fixture(t)
	wrote, err := f.engine.EnsurePlaceholder(f.ctx, f.internalID, PageUnit(1))
	require.NoError(t, err)
	assert.True(t, wrote)

	data, err := f.fs.Read(f.ctx, PromotedImageKey(f.internalID, PageUnit(1)))
	require.NoError(t, err)
	assert.NotEmpty(t, data)

	wrote, err = f.engine.EnsurePlaceholder(f.ctx, f.internalID, PageUnit(1))
	require.NoError(t, err)
	assert.False(t, wrote)
}
