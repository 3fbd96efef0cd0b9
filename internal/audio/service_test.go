package audio

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/clara-platform/clara-backend/internal/ai"
	audiorepo "github.com/clara-platform/clara-backend/internal/data/repos/audio"
	"github.com/clara-platform/clara-backend/internal/data/repos/testutil"
	"github.com/clara-platform/clara-backend/internal/platform/dbctx"
	"github.com/clara-platform/clara-backend/internal/platform/filestore"
)

type fakeTTS struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeTTS) EngineID() string { return "fake_tts" }

func (f *fakeTTS) Synthesize(ctx context.Context, language, voice, text string) ([]byte, ai.Call, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	call := ai.Call{Prompt: text, Cost: 0.002, Timestamp: time.Now()}
	return []byte("MP3:" + text), call, nil
}

func (f *fakeTTS) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type audioFixture struct {
	service *Service
	repo    audiorepo.AudioRepo
	local   *filestore.Local
	dbc     dbctx.Context
	tts     *fakeTTS
}

func newAudioFixture(t *testing.T) *audioFixture {
	t.Helper()
	local, err := filestore.NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	logg := testutil.Logger(t)
	repo := audiorepo.NewAudioRepo(testutil.DB(t), logg)
	return &audioFixture{
		service: NewService(repo, local, logg),
		repo:    repo,
		local:   local,
		dbc:     dbctx.Context{Ctx: context.Background()},
		tts:     &fakeTTS{},
	}
}

func segmentItems() []Item {
	return []Item{
		{Text: "Hello world."},
		{Text: "Goodbye."},
		{Text: "Hello", Context: "Hello world."},
		{Text: "world", Context: "Hello world."},
	}
}

func TestEnsureSynthesisesMissesOnly(t *testing.T) {
	f := newAudioFixture(t)
	ctx := context.Background()

	req := EnsureRequest{Engine: f.tts, Language: "english", Voice: "alloy", Items: segmentItems()}
	first, err := f.service.Ensure(ctx, f.dbc, req)
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if first.Synthesised != 4 || f.tts.callCount() != 4 {
		t.Fatalf("expected 4 fresh syntheses, got %d (engine calls %d)", first.Synthesised, f.tts.callCount())
	}
	for item, path := range first.Paths {
		ok, err := f.local.Exists(ctx, path)
		if err != nil || !ok {
			t.Fatalf("audio file for %q missing at %s: %v", item.Text, path, err)
		}
	}

	// Same text, engine, language and voice again: zero new files.
	second, err := f.service.Ensure(ctx, f.dbc, req)
	if err != nil {
		t.Fatalf("Ensure again: %v", err)
	}
	if second.Synthesised != 0 || f.tts.callCount() != 4 {
		t.Fatalf("expected full cache hit, got %d new (engine calls %d)", second.Synthesised, f.tts.callCount())
	}
	for item, path := range first.Paths {
		if second.Paths[item] != path {
			t.Fatalf("cached path changed for %q: %s vs %s", item.Text, path, second.Paths[item])
		}
	}
}

func TestEnsureDistinguishesContext(t *testing.T) {
	f := newAudioFixture(t)
	ctx := context.Background()

	items := []Item{
		{Text: "bank"},
		{Text: "bank", Context: "She sat on the river bank."},
	}
	res, err := f.service.Ensure(ctx, f.dbc, EnsureRequest{
		Engine: f.tts, Language: "english", Voice: "alloy", Items: items,
	})
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if res.Synthesised != 2 {
		t.Fatalf("expected separate entries per context, got %d", res.Synthesised)
	}
	if res.Paths[items[0]] == res.Paths[items[1]] {
		t.Fatalf("contexted and plain entries share a path: %s", res.Paths[items[0]])
	}
}

func TestEnsureSkipsEmptyAndDuplicateItems(t *testing.T) {
	f := newAudioFixture(t)

	res, err := f.service.Ensure(context.Background(), f.dbc, EnsureRequest{
		Engine: f.tts, Language: "english", Voice: "alloy",
		Items: []Item{{Text: ""}, {Text: "Hello"}, {Text: "Hello"}},
	})
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if res.Synthesised != 1 || f.tts.callCount() != 1 {
		t.Fatalf("expected 1 synthesis, got %d (engine calls %d)", res.Synthesised, f.tts.callCount())
	}
}

func TestEnsureRecordsCosts(t *testing.T) {
	f := newAudioFixture(t)

	res, err := f.service.Ensure(context.Background(), f.dbc, EnsureRequest{
		Engine: f.tts, Language: "english", Voice: "alloy",
		Items: []Item{{Text: "Hello"}},
	})
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if len(res.Calls) != 1 {
		t.Fatalf("expected 1 recorded call, got %d", len(res.Calls))
	}
	if res.Calls[0].Cost == 0 {
		t.Fatalf("synthesis call lost its cost")
	}

	var total float64
	for _, c := range res.Calls {
		total += c.Cost
	}
	if fmt.Sprintf("%.3f", total) != "0.002" {
		t.Fatalf("unexpected total cost %f", total)
	}
}
