package services

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/clara-platform/clara-backend/internal/core/clerror"
	projectrepo "github.com/clara-platform/clara-backend/internal/data/repos/project"
	types "github.com/clara-platform/clara-backend/internal/domain"
	"github.com/clara-platform/clara-backend/internal/pipeline"
	"github.com/clara-platform/clara-backend/internal/platform/dbctx"
	"github.com/clara-platform/clara-backend/internal/platform/filestore"
	"github.com/clara-platform/clara-backend/internal/platform/logger"
	"github.com/clara-platform/clara-backend/internal/render"
)

// ProjectService owns the project lifecycle: the database row and the
// project's on-disk tree are created and destroyed together.
type ProjectService struct {
	fs       filestore.Store
	projects projectrepo.ProjectRepo
	log      *logger.Logger
}

func NewProjectService(fs filestore.Store, projects projectrepo.ProjectRepo, baseLog *logger.Logger) *ProjectService {
	return &ProjectService{
		fs:       fs,
		projects: projects,
		log:      baseLog.With("service", "ProjectService"),
	}
}

// CreateProjectRequest fixes L2 and L1 for the project's lifetime.
type CreateProjectRequest struct {
	OwnerID uuid.UUID `json:"owner_id"`
	Title   string    `json:"title"`
	L2      string    `json:"l2"`
	L1      string    `json:"l1"`

	SimpleMode              bool   `json:"simple_mode"`
	UsesCoherentImagesV1    bool   `json:"uses_coherent_images_v1"`
	UsesCoherentImagesV2    bool   `json:"uses_coherent_images_v2"`
	UseTranslationForImages bool   `json:"use_translation_for_images"`
	UsesPictureGlossing     bool   `json:"uses_picture_glossing"`
	PictureGlossStyle       string `json:"picture_gloss_style"`
	Community               string `json:"community"`
}

func (s *ProjectService) Create(dbc dbctx.Context, req CreateProjectRequest) (*types.Project, error) {
	if strings.TrimSpace(req.Title) == "" {
		return nil, clerror.New(clerror.Validation, "project title is empty")
	}
	if strings.TrimSpace(req.L2) == "" || strings.TrimSpace(req.L1) == "" {
		return nil, clerror.New(clerror.Validation, "project needs both an L2 and an L1 language")
	}
	if req.OwnerID == uuid.Nil {
		return nil, clerror.New(clerror.Validation, "project owner is missing")
	}

	id := uuid.New()
	now := time.Now()
	p := &types.Project{
		ID:                      id,
		InternalID:              internalID(req.Title, id),
		Title:                   strings.TrimSpace(req.Title),
		L2:                      strings.ToLower(strings.TrimSpace(req.L2)),
		L1:                      strings.ToLower(strings.TrimSpace(req.L1)),
		OwnerID:                 req.OwnerID,
		SimpleMode:              req.SimpleMode,
		UsesCoherentImagesV1:    req.UsesCoherentImagesV1,
		UsesCoherentImagesV2:    req.UsesCoherentImagesV2,
		UseTranslationForImages: req.UseTranslationForImages,
		UsesPictureGlossing:     req.UsesPictureGlossing,
		PictureGlossStyle:       req.PictureGlossStyle,
		Community:               req.Community,
		CreatedAt:               now,
		UpdatedAt:               now,
	}
	return s.projects.Create(dbc, p)
}

// internalID derives the filesystem-safe directory name: a slug of the title
// plus the first ID block, so two projects with the same title never collide.
func internalID(title string, id uuid.UUID) string {
	var b strings.Builder
	lastUnderscore := true
	for _, r := range strings.ToLower(title) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastUnderscore = false
		case !lastUnderscore:
			b.WriteByte('_')
			lastUnderscore = true
		}
		if b.Len() >= 40 {
			break
		}
	}
	slug := strings.Trim(b.String(), "_")
	if slug == "" {
		slug = "project"
	}
	return fmt.Sprintf("%s_%s", slug, id.String()[:8])
}

func (s *ProjectService) Get(dbc dbctx.Context, id uuid.UUID) (*types.Project, error) {
	p, err := s.projects.GetByID(dbc, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, clerror.New(clerror.ResourceMissing, "project %s not found", id)
	}
	return p, nil
}

func (s *ProjectService) ListByOwner(dbc dbctx.Context, ownerID uuid.UUID) ([]*types.Project, error) {
	return s.projects.ListByOwner(dbc, ownerID)
}

// immutableSettings lists the fields UpdateSettings refuses. The repo drops
// them silently as a second line of defence; the service rejects loudly.
var immutableSettings = map[string]bool{"l2": true, "l1": true, "internal_id": true, "owner_id": true, "id": true}

func (s *ProjectService) UpdateSettings(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	for key := range updates {
		if immutableSettings[key] {
			return clerror.New(clerror.Validation, "project field %q cannot be changed after creation", key)
		}
	}
	if _, err := s.Get(dbc, id); err != nil {
		return err
	}
	return s.projects.UpdateFlags(dbc, id, updates)
}

// Destroy deletes the project row and its entire on-disk footprint: the
// project tree, both rendered variants, and any export zip.
func (s *ProjectService) Destroy(ctx context.Context, dbc dbctx.Context, id uuid.UUID) error {
	p, err := s.Get(dbc, id)
	if err != nil {
		return err
	}
	prefixes := []string{
		pipeline.ProjectPrefix(p.InternalID),
		fmt.Sprintf("rendered_texts/%s", p.InternalID),
		fmt.Sprintf("exports/%s.zip", p.InternalID),
	}
	for _, prefix := range prefixes {
		if err := s.fs.RemoveAll(ctx, prefix); err != nil {
			return fmt.Errorf("remove %s: %w", prefix, err)
		}
	}
	if err := s.projects.Delete(dbc, id); err != nil {
		return err
	}
	s.log.Info("project destroyed", "project", id, "internal_id", p.InternalID)
	return nil
}

// AudioPreferencesRequest sets one kind's HumanAudioInfo row.
type AudioPreferencesRequest struct {
	Kind          string `json:"kind"` // plain | phonetic
	Method        string `json:"method"`
	VoiceTalentID string `json:"voice_talent_id"`

	UseForWords    bool   `json:"use_for_words"`
	UseForSegments bool   `json:"use_for_segments"`
	UseContext     bool   `json:"use_context"`
	PreferredTTS   string `json:"preferred_tts_engine"`

	AudioFile               string `json:"audio_file"`
	ManualAlignMetadataFile string `json:"manual_align_metadata_file"`
}

var validAudioMethods = map[string]bool{
	"tts_only": true, "upload_individual": true, "upload_zipfile": true,
	"record": true, "manual_align": true,
}

func (s *ProjectService) SetAudioPreferences(dbc dbctx.Context, projectID uuid.UUID, req AudioPreferencesRequest) error {
	if req.Kind != string(types.AudioKindPlain) && req.Kind != string(types.AudioKindPhonetic) {
		return clerror.New(clerror.Validation, "unknown audio kind %q", req.Kind)
	}
	if req.Method == "" {
		req.Method = "tts_only"
	}
	if !validAudioMethods[req.Method] {
		return clerror.New(clerror.Validation, "unknown audio method %q", req.Method)
	}
	if _, err := s.Get(dbc, projectID); err != nil {
		return err
	}
	return s.projects.UpsertHumanAudioInfo(dbc, &types.HumanAudioInfo{
		ProjectID:               projectID,
		Kind:                    req.Kind,
		Method:                  req.Method,
		VoiceTalentID:           req.VoiceTalentID,
		UseForWords:             req.UseForWords,
		UseForSegments:          req.UseForSegments,
		UseContext:              req.UseContext,
		PreferredTTS:            req.PreferredTTS,
		AudioFile:               req.AudioFile,
		ManualAlignMetadataFile: req.ManualAlignMetadataFile,
	})
}

// RenderedKey resolves a request path inside a rendered variant to its store
// key, rejecting traversal outside the variant directory.
func RenderedKey(internalID, kind, rel string) (string, error) {
	rel = strings.TrimPrefix(rel, "/")
	if rel == "" {
		rel = "page_1.html"
	}
	if strings.Contains(rel, "..") {
		return "", clerror.New(clerror.Validation, "invalid rendered file path %q", rel)
	}
	return fmt.Sprintf("%s/%s", render.RootKey(internalID, kind), rel), nil
}
