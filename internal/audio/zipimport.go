package audio

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"

	"github.com/clara-platform/clara-backend/internal/core/clerror"
	audiorepo "github.com/clara-platform/clara-backend/internal/data/repos/audio"
	"github.com/clara-platform/clara-backend/internal/platform/dbctx"
)

// MetadataEntry is one row of the audio exchange format shared with external
// recorder tools: a piece of text, its optional segment context, and the
// audio file that speaks it.
type MetadataEntry struct {
	Text    string `json:"text"`
	Context string `json:"context"`
	File    string `json:"file"`
}

// metadataNames are the accepted locations of the metadata file inside an
// uploaded zip, tried in order.
var metadataNames = []string{"metadata.json", "audio_metadata.json"}

// ZipImportRequest imports a zipfile of human-recorded audio into the shared
// cache under the human-voice engine.
type ZipImportRequest struct {
	Zip      []byte
	Language string

	// VoiceTalentID becomes the cache voice, so different talents never
	// collide.
	VoiceTalentID string
}

// ZipImportResult reports what was imported.
type ZipImportResult struct {
	Imported int
	Paths    map[Item]string
}

// ImportZip validates and imports a recorder zipfile: the metadata must be
// unique on (text, context) and every referenced file must be present in the
// archive.
func (s *Service) ImportZip(ctx context.Context, dbc dbctx.Context, req ZipImportRequest) (*ZipImportResult, error) {
	reader, err := zip.NewReader(bytes.NewReader(req.Zip), int64(len(req.Zip)))
	if err != nil {
		return nil, clerror.Wrap(clerror.Validation, err, "uploaded file is not a zip archive")
	}

	files := make(map[string]*zip.File, len(reader.File))
	for _, f := range reader.File {
		files[path.Clean(f.Name)] = f
	}

	entries, err := readZipMetadata(files)
	if err != nil {
		return nil, err
	}

	seen := make(map[Item]bool, len(entries))
	for _, e := range entries {
		item := Item{Text: e.Text, Context: e.Context}
		if e.Text == "" {
			return nil, clerror.New(clerror.Validation, "metadata entry for file %q has empty text", e.File)
		}
		if seen[item] {
			return nil, clerror.New(clerror.Validation,
				"duplicate metadata entry for text %q context %q", e.Text, e.Context)
		}
		seen[item] = true
		if _, ok := files[path.Clean(e.File)]; !ok {
			return nil, clerror.New(clerror.Validation,
				"metadata references %q but the zip does not contain it", e.File)
		}
	}

	result := &ZipImportResult{Paths: make(map[Item]string, len(entries))}
	for _, e := range entries {
		data, err := readZipFile(files[path.Clean(e.File)])
		if err != nil {
			return nil, fmt.Errorf("read %s from zip: %w", e.File, err)
		}
		item := Item{Text: e.Text, Context: e.Context}
		dst := audioFileKey(HumanVoiceEngineID, req.Language, req.VoiceTalentID, item)
		if err := s.fs.Write(ctx, dst, data); err != nil {
			return nil, err
		}
		key := audiorepo.Key{
			EngineID: HumanVoiceEngineID,
			Language: req.Language,
			VoiceID:  req.VoiceTalentID,
			Text:     e.Text,
			Context:  e.Context,
		}
		if err := s.repo.AddOrUpdate(dbc, key, dst); err != nil {
			return nil, err
		}
		result.Paths[item] = dst
		result.Imported++
	}
	s.log.Info("imported audio zip",
		"language", req.Language, "voice", req.VoiceTalentID, "entries", result.Imported)
	return result, nil
}

func readZipMetadata(files map[string]*zip.File) ([]MetadataEntry, error) {
	for _, name := range metadataNames {
		f, ok := files[name]
		if !ok {
			continue
		}
		data, err := readZipFile(f)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		var entries []MetadataEntry
		if err := json.Unmarshal(data, &entries); err != nil {
			return nil, clerror.Wrap(clerror.Validation, err, "%s is not a JSON list of audio entries", name)
		}
		return entries, nil
	}
	return nil, clerror.New(clerror.Validation, "zip contains no metadata.json")
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
