package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	textrepo "github.com/clara-platform/clara-backend/internal/data/repos/text"
	"github.com/clara-platform/clara-backend/internal/core/clerror"
	types "github.com/clara-platform/clara-backend/internal/domain"
	"github.com/clara-platform/clara-backend/internal/platform/dbctx"
	"github.com/clara-platform/clara-backend/internal/platform/filestore"
	"github.com/clara-platform/clara-backend/internal/platform/logger"
	"github.com/clara-platform/clara-backend/internal/textmodel"
)

// LayerStore owns the on-disk lifecycle of text layers: the current file per
// layer, the append-only archive, and the version metadata rows. Every
// successful write lands an archive snapshot; the previous current file is
// never overwritten without one.
type LayerStore struct {
	fs       filestore.Store
	versions textrepo.TextVersionRepo
	log      *logger.Logger
}

func NewLayerStore(fs filestore.Store, versions textrepo.TextVersionRepo, baseLog *logger.Logger) *LayerStore {
	return &LayerStore{fs: fs, versions: versions, log: baseLog.With("component", "LayerStore")}
}

// WriteRequest carries one layer write.
type WriteRequest struct {
	Project     *types.Project
	Layer       textmodel.Layer
	Text        string
	Source      string // ai_generated | human_revised | rule_based | loaded_from_archive
	UserID      uuid.UUID
	Description string
	Label       string
}

// Write installs a new current file for the layer and appends an archive
// snapshot plus its metadata row.
func (s *LayerStore) Write(ctx context.Context, dbc dbctx.Context, req WriteRequest) (*types.TextVersion, error) {
	stamp := fmt.Sprintf("%s_%s", time.Now().UTC().Format("20060102T150405"), uuid.New().String()[:8])
	archiveKey := ArchiveKey(req.Project.InternalID, req.Layer, stamp)
	currentKey := CurrentKey(req.Project.InternalID, req.Layer)

	if err := s.fs.Write(ctx, archiveKey, []byte(req.Text)); err != nil {
		return nil, fmt.Errorf("write archive %s: %w", archiveKey, err)
	}
	if err := s.fs.Write(ctx, currentKey, []byte(req.Text)); err != nil {
		return nil, fmt.Errorf("write current %s: %w", currentKey, err)
	}
	v, err := s.versions.Append(dbc, &types.TextVersion{
		ProjectID:   req.Project.ID,
		Layer:       string(req.Layer),
		File:        archiveKey,
		Description: req.Description,
		Source:      req.Source,
		UserID:      req.UserID,
		Label:       req.Label,
		CreatedAt:   time.Now(),
	})
	if err != nil {
		return nil, fmt.Errorf("append version row: %w", err)
	}
	s.log.Info("layer written", "project", req.Project.InternalID, "layer", req.Layer, "source", req.Source)
	return v, nil
}

// ReadCurrent returns the layer's current text, or a ResourceMissing error
// when the layer has no current file.
func (s *LayerStore) ReadCurrent(ctx context.Context, project *types.Project, layer textmodel.Layer) (string, error) {
	key := CurrentKey(project.InternalID, layer)
	ok, err := s.fs.Exists(ctx, key)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", clerror.New(clerror.ResourceMissing, "project %s has no %s text", project.InternalID, layer)
	}
	data, err := s.fs.Read(ctx, key)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// LoadArchived copies an archived snapshot back to current through a fresh
// write, so the restore itself leaves an archive entry.
func (s *LayerStore) LoadArchived(ctx context.Context, dbc dbctx.Context, project *types.Project, archiveID, userID uuid.UUID) (*types.TextVersion, error) {
	v, err := s.versions.GetByID(dbc, archiveID)
	if err != nil {
		return nil, err
	}
	if v == nil || v.ProjectID != project.ID {
		return nil, clerror.New(clerror.ResourceMissing, "archive version %s not found", archiveID)
	}
	data, err := s.fs.Read(ctx, v.File)
	if err != nil {
		return nil, fmt.Errorf("read archive %s: %w", v.File, err)
	}
	return s.Write(ctx, dbc, WriteRequest{
		Project:     project,
		Layer:       textmodel.Layer(v.Layer),
		Text:        string(data),
		Source:      types.SourceLoadedFromArchive,
		UserID:      userID,
		Description: fmt.Sprintf("restored from %s", v.File),
	})
}

// Delete removes the layer's current file. Archive snapshots and version
// rows survive, so the layer moves to the empty state rather than absent.
func (s *LayerStore) Delete(ctx context.Context, project *types.Project, layer textmodel.Layer) error {
	key := CurrentKey(project.InternalID, layer)
	ok, err := s.fs.Exists(ctx, key)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	return s.fs.Remove(ctx, key)
}

// State derives the layer's lifecycle state from the file tree and version
// history. A layer is stale when its predecessor's current file is newer.
func (s *LayerStore) State(ctx context.Context, dbc dbctx.Context, project *types.Project, layer textmodel.Layer) (LayerState, error) {
	key := CurrentKey(project.InternalID, layer)
	ok, err := s.fs.Exists(ctx, key)
	if err != nil {
		return "", err
	}
	if !ok {
		history, err := s.versions.ListByProjectLayer(dbc, project.ID, string(layer))
		if err != nil {
			return "", err
		}
		if len(history) > 0 {
			return StateEmpty, nil
		}
		return StateAbsent, nil
	}
	pred := Predecessor(layer)
	if pred == "" {
		return StateCurrent, nil
	}
	predKey := CurrentKey(project.InternalID, pred)
	predExists, err := s.fs.Exists(ctx, predKey)
	if err != nil {
		return "", err
	}
	if !predExists {
		// A deleted predecessor invalidates this layer; one that never
		// existed (a plain text typed in directly) does not.
		predHistory, err := s.versions.ListByProjectLayer(dbc, project.ID, string(pred))
		if err != nil {
			return "", err
		}
		if len(predHistory) > 0 {
			return StateStale, nil
		}
		return StateCurrent, nil
	}
	own, err := s.fs.ModTime(ctx, key)
	if err != nil {
		return "", err
	}
	predTime, err := s.fs.ModTime(ctx, predKey)
	if err != nil {
		return "", err
	}
	if predTime.After(own) {
		return StateStale, nil
	}
	return StateCurrent, nil
}

// UpToDate reports whether the layer is current.
func (s *LayerStore) UpToDate(ctx context.Context, dbc dbctx.Context, project *types.Project, layer textmodel.Layer) (bool, error) {
	state, err := s.State(ctx, dbc, project, layer)
	if err != nil {
		return false, err
	}
	return state == StateCurrent, nil
}
