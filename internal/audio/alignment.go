package audio

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/clara-platform/clara-backend/internal/core/clerror"
	"github.com/clara-platform/clara-backend/internal/textmodel"
)

// Alignment formats. The job payload names the format explicitly; the parser
// never sniffs.
const (
	FormatAudacity = "audacity"
	FormatJSON     = "json"
)

// AlignedSegment is one labelled span of a recording.
type AlignedSegment struct {
	Text    string `json:"text"`
	StartMS int    `json:"start_ms"`
	EndMS   int    `json:"end_ms"`
}

// ParseAlignment decodes manual alignment metadata in the named format.
// Audacity labels are three tab-separated columns per line: start seconds,
// end seconds, label text.
func ParseAlignment(data []byte, format string) ([]AlignedSegment, error) {
	switch format {
	case FormatAudacity:
		return parseAudacityLabels(data)
	case FormatJSON:
		var segments []AlignedSegment
		if err := json.Unmarshal(data, &segments); err != nil {
			return nil, clerror.Wrap(clerror.Validation, err,
				"alignment metadata is not a JSON list of {text, start_ms, end_ms}")
		}
		return segments, nil
	default:
		return nil, clerror.New(clerror.Validation,
			"unknown alignment metadata format %q, expected %q or %q", format, FormatAudacity, FormatJSON)
	}
}

func parseAudacityLabels(data []byte) ([]AlignedSegment, error) {
	var segments []AlignedSegment
	for i, line := range strings.Split(string(data), "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		cols := strings.Split(line, "\t")
		if len(cols) < 3 {
			return nil, clerror.New(clerror.Validation,
				"label line %d has %d tab-separated columns, expected 3", i+1, len(cols))
		}
		start, err := strconv.ParseFloat(strings.TrimSpace(cols[0]), 64)
		if err != nil {
			return nil, clerror.Wrap(clerror.Validation, err, "label line %d has a bad start time", i+1)
		}
		end, err := strconv.ParseFloat(strings.TrimSpace(cols[1]), 64)
		if err != nil {
			return nil, clerror.Wrap(clerror.Validation, err, "label line %d has a bad end time", i+1)
		}
		segments = append(segments, AlignedSegment{
			Text:    strings.TrimSpace(strings.Join(cols[2:], "\t")),
			StartMS: int(start * 1000),
			EndMS:   int(end * 1000),
		})
	}
	return segments, nil
}

// SegmentAlignment binds one text segment to its span in the recording.
type SegmentAlignment struct {
	SegmentText string `json:"segment_text"`
	StartMS     int    `json:"start_ms"`
	EndMS       int    `json:"end_ms"`
}

// AlignToSegments pairs labels with the text's word-bearing segments in
// order. Counts must match exactly; the diagnostic names both counts so the
// user can fix the label file.
func AlignToSegments(t *textmodel.Text, labels []AlignedSegment) ([]SegmentAlignment, error) {
	var segTexts []string
	for pi := range t.Pages {
		for si := range t.Pages[pi].Segments {
			if t.Pages[pi].Segments[si].WordCount() > 0 {
				segTexts = append(segTexts, t.Pages[pi].Segments[si].SurfaceText())
			}
		}
	}
	if len(labels) != len(segTexts) {
		return nil, clerror.New(clerror.Validation,
			"alignment metadata has %d labels but the text has %d segments; they must match one-to-one",
			len(labels), len(segTexts))
	}
	out := make([]SegmentAlignment, len(labels))
	for i, label := range labels {
		out[i] = SegmentAlignment{
			SegmentText: segTexts[i],
			StartMS:     label.StartMS,
			EndMS:       label.EndMS,
		}
	}
	return out, nil
}

// MetadataKey is the store key of a project's audio metadata file.
func MetadataKey(internalID string) string {
	return fmt.Sprintf("projects/%s/audio_metadata.json", internalID)
}

// projectAudioMetadata is the persisted shape of a manual alignment: the
// source recording plus the per-segment spans.
type projectAudioMetadata struct {
	AudioFile  string             `json:"audio_file"`
	Kind       string             `json:"kind"`
	Alignments []SegmentAlignment `json:"alignments"`
}

// SaveAlignment stores a manual alignment for a project so the rendering
// composer can cue segment playback from the single recording.
func (s *Service) SaveAlignment(ctx context.Context, internalID, audioFile, kind string, alignments []SegmentAlignment) error {
	data, err := json.MarshalIndent(projectAudioMetadata{
		AudioFile:  audioFile,
		Kind:       kind,
		Alignments: alignments,
	}, "", "  ")
	if err != nil {
		return err
	}
	return s.fs.Write(ctx, MetadataKey(internalID), data)
}

// LoadAlignment reads a project's stored manual alignment, if any.
func (s *Service) LoadAlignment(ctx context.Context, internalID string) (string, []SegmentAlignment, error) {
	key := MetadataKey(internalID)
	ok, err := s.fs.Exists(ctx, key)
	if err != nil || !ok {
		return "", nil, err
	}
	data, err := s.fs.Read(ctx, key)
	if err != nil {
		return "", nil, err
	}
	var meta projectAudioMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return "", nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return meta.AudioFile, meta.Alignments, nil
}
