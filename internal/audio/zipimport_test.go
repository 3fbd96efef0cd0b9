package audio

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"testing"

	audiorepo "github.com/clara-platform/clara-backend/internal/data/repos/audio"
	"github.com/clara-platform/clara-backend/internal/core/clerror"
)

func buildZip(t *testing.T, entries []MetadataEntry, files map[string][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	meta, err := json.Marshal(entries)
	if err != nil {
		t.Fatalf("marshal metadata: %v", err)
	}
	mw, err := w.Create("metadata.json")
	if err != nil {
		t.Fatalf("create metadata.json: %v", err)
	}
	if _, err := mw.Write(meta); err != nil {
		t.Fatalf("write metadata.json: %v", err)
	}
	for name, data := range files {
		fw, err := w.Create(name)
		if err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
		if _, err := fw.Write(data); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

func TestImportZipStoresEveryEntry(t *testing.T) {
	f := newAudioFixture(t)
	ctx := context.Background()

	zipData := buildZip(t,
		[]MetadataEntry{
			{Text: "Hello world.", Context: "", File: "audio/seg1.mp3"},
			{Text: "Hello", Context: "Hello world.", File: "audio/word1.mp3"},
		},
		map[string][]byte{
			"audio/seg1.mp3":  []byte("SEG1"),
			"audio/word1.mp3": []byte("WORD1"),
		})

	res, err := f.service.ImportZip(ctx, f.dbc, ZipImportRequest{
		Zip: zipData, Language: "english", VoiceTalentID: "talent_7",
	})
	if err != nil {
		t.Fatalf("ImportZip: %v", err)
	}
	if res.Imported != 2 {
		t.Fatalf("expected 2 imports, got %d", res.Imported)
	}

	path, ok, err := f.repo.Lookup(f.dbc, audiorepo.Key{
		EngineID: HumanVoiceEngineID, Language: "english", VoiceID: "talent_7",
		Text: "Hello world.", Context: "",
	})
	if err != nil || !ok {
		t.Fatalf("segment entry missing: %v", err)
	}
	data, err := f.local.Read(ctx, path)
	if err != nil {
		t.Fatalf("Read %s: %v", path, err)
	}
	if string(data) != "SEG1" {
		t.Fatalf("imported file content mismatch: %q", data)
	}
}

func TestImportZipRejectsDuplicateKeys(t *testing.T) {
	f := newAudioFixture(t)

	zipData := buildZip(t,
		[]MetadataEntry{
			{Text: "Hello", Context: "", File: "a.mp3"},
			{Text: "Hello", Context: "", File: "b.mp3"},
		},
		map[string][]byte{"a.mp3": []byte("A"), "b.mp3": []byte("B")})

	_, err := f.service.ImportZip(context.Background(), f.dbc, ZipImportRequest{
		Zip: zipData, Language: "english", VoiceTalentID: "talent_7",
	})
	if !clerror.Is(err, clerror.Validation) {
		t.Fatalf("expected validation error for duplicate (text, context), got %v", err)
	}
}

func TestImportZipRejectsMissingFile(t *testing.T) {
	f := newAudioFixture(t)

	zipData := buildZip(t,
		[]MetadataEntry{{Text: "Hello", Context: "", File: "missing.mp3"}},
		map[string][]byte{"other.mp3": []byte("X")})

	_, err := f.service.ImportZip(context.Background(), f.dbc, ZipImportRequest{
		Zip: zipData, Language: "english", VoiceTalentID: "talent_7",
	})
	if !clerror.Is(err, clerror.Validation) {
		t.Fatalf("expected validation error for missing file, got %v", err)
	}
}

func TestImportZipRejectsNonZipPayload(t *testing.T) {
	f := newAudioFixture(t)

	_, err := f.service.ImportZip(context.Background(), f.dbc, ZipImportRequest{
		Zip: []byte("not a zip"), Language: "english", VoiceTalentID: "talent_7",
	})
	if !clerror.Is(err, clerror.Validation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
