// Package audio orchestrates the shared audio cache: TTS synthesis on cache
// miss, human-recorded audio imported from zipfiles, and manual alignment
// metadata. Cached files are content-addressed by their natural key, so the
// same text with the same engine, language, voice and context is synthesised
// at most once across all projects.
package audio

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/clara-platform/clara-backend/internal/ai"
	audiorepo "github.com/clara-platform/clara-backend/internal/data/repos/audio"
	"github.com/clara-platform/clara-backend/internal/platform/dbctx"
	"github.com/clara-platform/clara-backend/internal/platform/filestore"
	"github.com/clara-platform/clara-backend/internal/platform/logger"
)

// HumanVoiceEngineID keys human-recorded entries in the cache; the voice is
// the voice talent's identifier.
const HumanVoiceEngineID = "human_voice"

// maxParallelSynth bounds concurrent TTS calls within one request.
const maxParallelSynth = 5

type Service struct {
	repo audiorepo.AudioRepo
	fs   filestore.Store
	log  *logger.Logger
}

func NewService(repo audiorepo.AudioRepo, fs filestore.Store, baseLog *logger.Logger) *Service {
	return &Service{repo: repo, fs: fs, log: baseLog.With("service", "AudioService")}
}

// Item is one piece of text that needs audio. Context distinguishes a word
// spoken inside a segment from the same word stand-alone.
type Item struct {
	Text    string
	Context string
}

// EnsureRequest asks for audio files covering every item, synthesising only
// the cache misses.
type EnsureRequest struct {
	Engine   ai.TTSClient
	Language string
	Voice    string
	Items    []Item
}

// EnsureResult maps each requested item to its cached file path and reports
// how many items were synthesised fresh.
type EnsureResult struct {
	Paths       map[Item]string
	Synthesised int
	Calls       []ai.Call
}

// audioKey builds the repository key for an item under the given engine
// settings.
func audioKey(engineID, language, voice string, item Item) audiorepo.Key {
	return audiorepo.Key{
		EngineID: engineID,
		Language: language,
		VoiceID:  voice,
		Text:     item.Text,
		Context:  item.Context,
	}
}

// audioFileKey is the deterministic store path for an item, so concurrent
// synthesis of the same key converges on one file.
func audioFileKey(engineID, language, voice string, item Item) string {
	sum := sha256.Sum256([]byte(item.Text + "\x00" + item.Context))
	return fmt.Sprintf("audio/%s/%s/%s/%s.mp3", engineID, language, voice, hex.EncodeToString(sum[:16]))
}

// Ensure resolves audio for every item, hitting the cache first and
// synthesising misses in parallel. Items whose text is empty are skipped.
func (s *Service) Ensure(ctx context.Context, dbc dbctx.Context, req EnsureRequest) (*EnsureResult, error) {
	engineID := req.Engine.EngineID()
	result := &EnsureResult{Paths: make(map[Item]string, len(req.Items))}

	var misses []Item
	seen := make(map[Item]bool, len(req.Items))
	for _, item := range req.Items {
		if item.Text == "" || seen[item] {
			continue
		}
		seen[item] = true
		path, ok, err := s.repo.Lookup(dbc, audioKey(engineID, req.Language, req.Voice, item))
		if err != nil {
			return nil, err
		}
		if ok {
			result.Paths[item] = path
			continue
		}
		misses = append(misses, item)
	}
	if len(misses) == 0 {
		return result, nil
	}
	s.log.Info("synthesising audio",
		"engine", engineID, "language", req.Language, "voice", req.Voice,
		"cached", len(result.Paths), "missing", len(misses))

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelSynth)
	for _, item := range misses {
		g.Go(func() error {
			data, call, err := req.Engine.Synthesize(gctx, req.Language, req.Voice, item.Text)
			mu.Lock()
			result.Calls = append(result.Calls, call)
			mu.Unlock()
			if err != nil {
				return fmt.Errorf("synthesise %q: %w", item.Text, err)
			}
			path := audioFileKey(engineID, req.Language, req.Voice, item)
			if err := s.fs.Write(gctx, path, data); err != nil {
				return err
			}
			mu.Lock()
			result.Paths[item] = path
			result.Synthesised++
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return result, err
	}
	// Cache rows are written after all files land so a failed batch leaves
	// no dangling paths.
	for _, item := range misses {
		if err := s.repo.AddOrUpdate(dbc, audioKey(engineID, req.Language, req.Voice, item), result.Paths[item]); err != nil {
			return result, err
		}
	}
	return result, nil
}

// DeleteLanguage drops every cache row for a language. Files are left in
// place; the store is content-addressed and rewrites are idempotent.
func (s *Service) DeleteLanguage(dbc dbctx.Context, language string) error {
	return s.repo.DeleteByLanguage(dbc, language)
}
