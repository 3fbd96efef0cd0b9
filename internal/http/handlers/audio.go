package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	audiosvc "github.com/clara-platform/clara-backend/internal/audio"
	"github.com/clara-platform/clara-backend/internal/core/clerror"
	"github.com/clara-platform/clara-backend/internal/pipeline"
	"github.com/clara-platform/clara-backend/internal/services"
	"github.com/clara-platform/clara-backend/internal/textmodel"
)

// AudioHandler imports human-recorded audio: zipfiles of per-text recordings
// into the shared cache, and manual alignments of one long recording against
// a project's segments.
type AudioHandler struct {
	audio    *audiosvc.Service
	layers   *pipeline.LayerStore
	projects *services.ProjectService
}

func NewAudioHandler(audio *audiosvc.Service, layers *pipeline.LayerStore, projects *services.ProjectService) *AudioHandler {
	return &AudioHandler{audio: audio, layers: layers, projects: projects}
}

// ImportZip accepts a multipart upload with a "zipfile" part. The zip's
// metadata.json maps each recording to its text and optional context.
func (h *AudioHandler) ImportZip(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	p, err := h.projects.Get(dbc(c), id)
	if err != nil {
		abortWith(c, err)
		return
	}
	file, _, err := c.Request.FormFile("zipfile")
	if err != nil {
		abortWith(c, clerror.Wrap(clerror.Validation, err, "missing zipfile upload"))
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		abortWith(c, clerror.Wrap(clerror.Validation, err, "read zipfile upload"))
		return
	}

	voiceTalent := c.PostForm("voice_talent_id")
	if voiceTalent == "" {
		abortWith(c, clerror.New(clerror.Validation, "voice_talent_id is required"))
		return
	}
	res, err := h.audio.ImportZip(c.Request.Context(), dbc(c), audiosvc.ZipImportRequest{
		Zip:           data,
		Language:      p.L2,
		VoiceTalentID: voiceTalent,
	})
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"imported": res.Imported})
}

// ImportAlignment stores a manual alignment: the request body is the label
// file, metadata_format names its syntax, audio_file the recording the spans
// index into.
func (h *AudioHandler) ImportAlignment(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	p, err := h.projects.Get(dbc(c), id)
	if err != nil {
		abortWith(c, err)
		return
	}
	format := c.Query("metadata_format")
	audioFile := c.Query("audio_file")
	if audioFile == "" {
		abortWith(c, clerror.New(clerror.Validation, "audio_file query parameter is required"))
		return
	}
	kind := c.Query("kind")
	if kind == "" {
		kind = "plain"
	}
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		abortWith(c, clerror.Wrap(clerror.Validation, err, "read alignment body"))
		return
	}
	labels, err := audiosvc.ParseAlignment(body, format)
	if err != nil {
		abortWith(c, err)
		return
	}

	ctx := c.Request.Context()
	raw, err := h.layers.ReadCurrent(ctx, p, textmodel.LayerSegmented)
	if err != nil {
		abortWith(c, err)
		return
	}
	text, err := textmodel.Internalise(raw, p.L2, p.L1, textmodel.LayerSegmented)
	if err != nil {
		abortWith(c, err)
		return
	}
	alignments, err := audiosvc.AlignToSegments(text, labels)
	if err != nil {
		abortWith(c, err)
		return
	}
	if err := h.audio.SaveAlignment(ctx, p.InternalID, audioFile, kind, alignments); err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"aligned_segments": len(alignments)})
}
