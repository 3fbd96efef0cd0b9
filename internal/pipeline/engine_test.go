package pipeline

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/clara-platform/clara-backend/internal/ai"
	"github.com/clara-platform/clara-backend/internal/core/clerror"
	"github.com/clara-platform/clara-backend/internal/data/repos/testutil"
	"github.com/clara-platform/clara-backend/internal/textmodel"
	"github.com/clara-platform/clara-backend/internal/tools"
)

// fakeTextClient answers annotation prompts deterministically: every word w
// gets the gloss w+"-fr", lemmas are lowercased surfaces. It can be told to
// return a short reply for its first n calls.
type fakeTextClient struct {
	mu        sync.Mutex
	calls     int
	failFirst int
}

func (f *fakeTextClient) GenerateText(ctx context.Context, system, user string) (string, ai.Call, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	f.mu.Unlock()

	call := ai.Call{Prompt: user, Cost: 0.01, Duration: time.Millisecond, Timestamp: time.Now()}
	if n <= f.failFirst {
		return `[["oops", "wrong"]]`, call, nil
	}
	words, ok := wordsFromPrompt(user)
	if !ok {
		// Free-text prompt; any plausible reply will do.
		return "Generated text.", call, nil
	}
	arity := 2
	if strings.Contains(user, "lemma") {
		arity = 3
	}
	var tuples [][]string
	for _, w := range words {
		if arity == 3 {
			tuples = append(tuples, []string{w, strings.ToLower(w), "NOUN"})
		} else {
			tuples = append(tuples, []string{w, w + "-fr"})
		}
	}
	out, _ := json.Marshal(tuples)
	return string(out), call, nil
}

func (f *fakeTextClient) GenerateJSON(ctx context.Context, system, user, schemaName string, schema map[string]any) (map[string]any, ai.Call, error) {
	call := ai.Call{Prompt: user, Cost: 0.01, Timestamp: time.Now()}
	return map[string]any{"analysis": "none found", "mwes": []any{}}, call, nil
}

// wordsFromPrompt recovers the JSON word list substituted into the tail of an
// annotation prompt.
func wordsFromPrompt(prompt string) ([]string, bool) {
	start := strings.LastIndex(prompt, "[")
	end := strings.LastIndex(prompt, "]")
	if start < 0 || end <= start {
		return nil, false
	}
	var words []string
	if err := json.Unmarshal([]byte(prompt[start:end+1]), &words); err != nil {
		return nil, false
	}
	return words, true
}

type engineFixture struct {
	*storeFixture
	engine *Engine
	client *fakeTextClient
}

func newEngineFixture(t *testing.T, maxElements int) *engineFixture {
	t.Helper()
	sf := newStoreFixture(t)
	logg := testutil.Logger(t)
	client := &fakeTextClient{}
	templates := NewTemplateStore(sf.local, logg)
	annotator := NewAnnotator(client, templates, 2, maxElements, logg)
	engine := NewEngine(sf.store, templates, annotator, client, tools.Registry{}, logg)
	return &engineFixture{storeFixture: sf, engine: engine, client: client}
}

func TestGenerateGlossAnnotatesEveryWord(t *testing.T) {
	f := newEngineFixture(t, 100)
	ctx := context.Background()

	f.write(t, textmodel.LayerSegmented, "Hello world.||Goodbye.")

	res, err := f.engine.Generate(ctx, f.dbc, Request{
		Project: f.proj,
		Layer:   textmodel.LayerGloss,
		UserID:  f.proj.OwnerID,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !strings.Contains(res.Text, "Hello#Hello-fr#") || !strings.Contains(res.Text, "Goodbye#Goodbye-fr#") {
		t.Fatalf("glosses missing from output: %q", res.Text)
	}
	if len(res.Calls) == 0 || res.Calls[0].Cost == 0 {
		t.Fatalf("expected recorded model calls, got %+v", res.Calls)
	}

	// The write must be reloadable and internalise cleanly.
	stored, err := f.store.ReadCurrent(ctx, f.proj, textmodel.LayerGloss)
	if err != nil {
		t.Fatalf("ReadCurrent: %v", err)
	}
	text, err := textmodel.Internalise(stored, "english", "french", textmodel.LayerGloss)
	if err != nil {
		t.Fatalf("stored gloss does not internalise: %v", err)
	}
	for _, el := range text.ContentElements() {
		if g, _ := el.Annotation("gloss"); el.Type == textmodel.Word && g == "" {
			t.Fatalf("word %q has empty gloss", el.Content)
		}
	}
}

func TestGenerateChunksRespectSegmentBoundaries(t *testing.T) {
	f := newEngineFixture(t, 3)
	ctx := context.Background()

	// Four segments of 1-3 words with a 3-word chunk limit forces several
	// model calls.
	f.write(t, textmodel.LayerSegmented, "One two.||Three four.||Five six seven.||Eight.")

	res, err := f.engine.Generate(ctx, f.dbc, Request{
		Project: f.proj,
		Layer:   textmodel.LayerGloss,
		UserID:  f.proj.OwnerID,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(res.Calls) < 3 {
		t.Fatalf("expected multiple chunked calls, got %d", len(res.Calls))
	}
	// Reassembly preserves segment order regardless of which chunk finished
	// first.
	last := -1
	for _, w := range []string{"One", "Three", "Five", "Eight"} {
		idx := strings.Index(res.Text, w+"#")
		if idx <= last {
			t.Fatalf("chunk results out of order in %q", res.Text)
		}
		last = idx
	}
}

func TestGenerateRetriesOnLengthMismatch(t *testing.T) {
	f := newEngineFixture(t, 100)
	f.client.failFirst = 1
	ctx := context.Background()

	f.write(t, textmodel.LayerSegmented, "Hello world.")

	res, err := f.engine.Generate(ctx, f.dbc, Request{
		Project: f.proj,
		Layer:   textmodel.LayerGloss,
		UserID:  f.proj.OwnerID,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(res.Calls) != 2 {
		t.Fatalf("expected a retry after the mismatched reply, got %d calls", len(res.Calls))
	}
	if !strings.Contains(res.Text, "world#world-fr#") {
		t.Fatalf("retry did not produce annotations: %q", res.Text)
	}
}

func TestGenerateRequiresPredecessor(t *testing.T) {
	f := newEngineFixture(t, 100)

	_, err := f.engine.Generate(context.Background(), f.dbc, Request{
		Project: f.proj,
		Layer:   textmodel.LayerGloss,
		UserID:  f.proj.OwnerID,
	})
	if !clerror.Is(err, clerror.ResourceMissing) {
		t.Fatalf("expected resource missing, got %v", err)
	}
}

func TestGenerateRejectsStalePredecessor(t *testing.T) {
	f := newEngineFixture(t, 100)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	f.write(t, textmodel.LayerPlain, "Hello world again.")
	f.write(t, textmodel.LayerSegmented, "Hello world.")
	f.touch(t, textmodel.LayerSegmented, base)
	f.touch(t, textmodel.LayerPlain, base.Add(time.Minute))

	_, err := f.engine.Generate(ctx, f.dbc, Request{
		Project: f.proj,
		Layer:   textmodel.LayerGloss,
		UserID:  f.proj.OwnerID,
	})
	if !clerror.Is(err, clerror.Validation) {
		t.Fatalf("expected validation error for stale predecessor, got %v", err)
	}
}

func TestManualEditPersists(t *testing.T) {
	f := newEngineFixture(t, 100)
	ctx := context.Background()

	f.write(t, textmodel.LayerSegmented, "Hello world.")

	edited := "Hello#Hello-fr# world#monde#."
	if _, err := f.engine.Manual(ctx, f.dbc, Request{
		Project: f.proj, Layer: textmodel.LayerGloss, UserID: f.proj.OwnerID, Text: edited,
	}); err != nil {
		t.Fatalf("Manual: %v", err)
	}

	stored, err := f.store.ReadCurrent(ctx, f.proj, textmodel.LayerGloss)
	if err != nil {
		t.Fatalf("ReadCurrent: %v", err)
	}
	if stored != edited {
		t.Fatalf("edit did not persist: %q", stored)
	}
}

func TestManualRejectsMalformedText(t *testing.T) {
	f := newEngineFixture(t, 100)

	_, err := f.engine.Manual(context.Background(), f.dbc, Request{
		Project: f.proj, Layer: textmodel.LayerGloss, UserID: f.proj.OwnerID,
		Text: "Hello#unterminated",
	})
	if !clerror.Is(err, clerror.InternalisationFailed) {
		t.Fatalf("expected internalisation error, got %v", err)
	}
}

func TestManualMWESaveValidates(t *testing.T) {
	f := newEngineFixture(t, 100)
	ctx := context.Background()

	base, err := textmodel.Internalise("He kicked the bucket.", "english", "french", textmodel.LayerSegmented)
	if err != nil {
		t.Fatalf("Internalise: %v", err)
	}

	base.Pages[0].Segments[0].MWEs = [][]string{{"kicked", "the", "bucket"}}
	good, err := base.Externalise(textmodel.LayerMWE)
	if err != nil {
		t.Fatalf("Externalise: %v", err)
	}
	if _, err := f.engine.Manual(ctx, f.dbc, Request{
		Project: f.proj, Layer: textmodel.LayerMWE, UserID: f.proj.OwnerID, Text: good,
	}); err != nil {
		t.Fatalf("valid MWE save failed: %v", err)
	}

	base.Pages[0].Segments[0].MWEs = [][]string{{"died"}}
	bad, err := base.Externalise(textmodel.LayerMWE)
	if err != nil {
		t.Fatalf("Externalise: %v", err)
	}
	_, err = f.engine.Manual(ctx, f.dbc, Request{
		Project: f.proj, Layer: textmodel.LayerMWE, UserID: f.proj.OwnerID, Text: bad,
	})
	if !clerror.Is(err, clerror.Validation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestConcurrentWritesToSameLayerRejected(t *testing.T) {
	f := newEngineFixture(t, 100)

	f.write(t, textmodel.LayerSegmented, "Hello world.")

	key := lockKey(f.proj, textmodel.LayerGloss)
	if err := f.engine.locks.acquire(key); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer f.engine.locks.release(key)

	_, err := f.engine.Manual(context.Background(), f.dbc, Request{
		Project: f.proj, Layer: textmodel.LayerGloss, UserID: f.proj.OwnerID,
		Text: "Hello#salut# world#monde#.",
	})
	if !clerror.Is(err, clerror.Concurrency) {
		t.Fatalf("expected concurrency error, got %v", err)
	}
}

func TestTrivialGlossProducesPlaceholders(t *testing.T) {
	f := newEngineFixture(t, 100)
	ctx := context.Background()

	f.write(t, textmodel.LayerSegmented, "Hello world.")
	res, err := f.engine.Trivial(ctx, f.dbc, Request{
		Project: f.proj, Layer: textmodel.LayerGloss, UserID: f.proj.OwnerID,
	})
	if err != nil {
		t.Fatalf("Trivial: %v", err)
	}
	if !strings.Contains(res.Text, "Hello#-#") {
		t.Fatalf("expected placeholder glosses, got %q", res.Text)
	}
}

func TestGenerateMergesLemmaAndGloss(t *testing.T) {
	f := newEngineFixture(t, 100)
	ctx := context.Background()

	f.write(t, textmodel.LayerLemma, "kicked#kick/VERB# the#the#")
	f.write(t, textmodel.LayerGloss, "kicked#frappé# the#le#")

	res, err := f.engine.Generate(ctx, f.dbc, Request{
		Project: f.proj, Layer: textmodel.LayerLemmaAndGloss, UserID: f.proj.OwnerID,
	})
	if err != nil {
		t.Fatalf("Generate lemma_and_gloss: %v", err)
	}
	if !strings.Contains(res.Text, "kicked#kick/VERB/frappé#") {
		t.Fatalf("merge missing combined annotation: %q", res.Text)
	}
	if !strings.Contains(res.Text, "the#the/NO_POS/le#") {
		t.Fatalf("merge did not default the missing POS: %q", res.Text)
	}
}

func TestGenerateRecordsVersionRow(t *testing.T) {
	f := newEngineFixture(t, 100)
	ctx := context.Background()

	f.write(t, textmodel.LayerSegmented, "Hello world.")
	res, err := f.engine.Generate(ctx, f.dbc, Request{
		Project: f.proj, Layer: textmodel.LayerGloss, UserID: f.proj.OwnerID,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.Version == nil || res.Version.Layer != string(textmodel.LayerGloss) {
		t.Fatalf("expected a gloss version row, got %+v", res.Version)
	}

	state, err := f.store.State(ctx, f.dbc, f.proj, textmodel.LayerGloss)
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if state != StateCurrent {
		t.Fatalf("expected gloss current after generate, got %s", state)
	}
}
