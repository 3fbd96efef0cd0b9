package audio

import (
	"context"
	"testing"

	types "github.com/clara-platform/clara-backend/internal/domain"
	"github.com/clara-platform/clara-backend/internal/data/repos/testutil"
	"github.com/clara-platform/clara-backend/internal/platform/dbctx"
)

func TestAddOrUpdateReplacesWithoutDuplicates(t *testing.T) {
	gdb := testutil.DB(t)
	repo := NewAudioRepo(gdb, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background()}

	key := Key{
		EngineID: "openai_tts",
		Language: "english",
		VoiceID:  "alloy",
		Text:     "Hello world.",
		Context:  "",
	}
	if err := repo.AddOrUpdate(dbc, key, "audio/one.mp3"); err != nil {
		t.Fatalf("AddOrUpdate: %v", err)
	}
	if err := repo.AddOrUpdate(dbc, key, "audio/two.mp3"); err != nil {
		t.Fatalf("AddOrUpdate replace: %v", err)
	}

	path, ok, err := repo.Lookup(dbc, key)
	if err != nil || !ok {
		t.Fatalf("Lookup = %v, %v", ok, err)
	}
	if path != "audio/two.mp3" {
		t.Fatalf("expected replaced path, got %q", path)
	}

	var count int64
	if err := gdb.Model(&types.AudioEntry{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly one row, got %d", count)
	}
}

func TestContextDistinguishesEntries(t *testing.T) {
	gdb := testutil.DB(t)
	repo := NewAudioRepo(gdb, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background()}

	standalone := Key{EngineID: "openai_tts", Language: "english", VoiceID: "alloy", Text: "world"}
	inSegment := standalone
	inSegment.Context = "Hello world."

	if err := repo.AddOrUpdate(dbc, standalone, "audio/word.mp3"); err != nil {
		t.Fatalf("AddOrUpdate: %v", err)
	}
	if err := repo.AddOrUpdate(dbc, inSegment, "audio/word_in_segment.mp3"); err != nil {
		t.Fatalf("AddOrUpdate: %v", err)
	}

	p1, ok, _ := repo.Lookup(dbc, standalone)
	p2, ok2, _ := repo.Lookup(dbc, inSegment)
	if !ok || !ok2 {
		t.Fatal("expected both entries present")
	}
	if p1 == p2 {
		t.Fatalf("context should separate entries, both returned %q", p1)
	}
}

func TestDeleteByLanguage(t *testing.T) {
	gdb := testutil.DB(t)
	repo := NewAudioRepo(gdb, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background()}

	en := Key{EngineID: "openai_tts", Language: "english", VoiceID: "alloy", Text: "hello"}
	fr := Key{EngineID: "openai_tts", Language: "french", VoiceID: "alloy", Text: "bonjour"}
	_ = repo.AddOrUpdate(dbc, en, "a.mp3")
	_ = repo.AddOrUpdate(dbc, fr, "b.mp3")

	if err := repo.DeleteByLanguage(dbc, "english"); err != nil {
		t.Fatalf("DeleteByLanguage: %v", err)
	}
	_, ok, _ := repo.Lookup(dbc, en)
	if ok {
		t.Fatal("english entry should be gone")
	}
	_, ok, _ = repo.Lookup(dbc, fr)
	if !ok {
		t.Fatal("french entry should survive")
	}
}
