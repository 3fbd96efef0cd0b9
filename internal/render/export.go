package render

import (
	"archive/zip"
	"bytes"
	"context"
	"strings"

	"github.com/clara-platform/clara-backend/internal/core/clerror"
	"github.com/clara-platform/clara-backend/internal/pipeline"
)

// ExportRendered zips one rendered variant for download or publication. The
// zip entries are rooted at the variant directory, so unzipping yields the
// same self-contained tree the composer wrote.
func (c *Composer) ExportRendered(ctx context.Context, internalID, kind string) ([]byte, error) {
	return c.zipPrefix(ctx, RootKey(internalID, kind))
}

// ExportProject zips the whole project tree: text layers with their
// archives, audio metadata, the image trees and every rendered variant.
func (c *Composer) ExportProject(ctx context.Context, internalID string) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	entries := 0
	for _, prefix := range []string{pipeline.ProjectPrefix(internalID), "rendered_texts/" + internalID} {
		n, err := c.addPrefix(ctx, zw, prefix)
		if err != nil {
			zw.Close()
			return nil, err
		}
		entries += n
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	if entries == 0 {
		return nil, clerror.New(clerror.ResourceMissing, "project %s has nothing to export", internalID)
	}
	return buf.Bytes(), nil
}

func (c *Composer) zipPrefix(ctx context.Context, prefix string) ([]byte, error) {
	keys, err := c.fs.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, clerror.New(clerror.ResourceMissing, "nothing rendered under %s", prefix)
	}
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, key := range keys {
		if err := c.addEntry(ctx, zw, key, strings.TrimPrefix(key, prefix+"/")); err != nil {
			zw.Close()
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *Composer) addPrefix(ctx context.Context, zw *zip.Writer, prefix string) (int, error) {
	keys, err := c.fs.List(ctx, prefix)
	if err != nil {
		return 0, err
	}
	for _, key := range keys {
		if err := c.addEntry(ctx, zw, key, key); err != nil {
			return 0, err
		}
	}
	return len(keys), nil
}

func (c *Composer) addEntry(ctx context.Context, zw *zip.Writer, key, name string) error {
	data, err := c.fs.Read(ctx, key)
	if err != nil {
		return err
	}
	w, err := zw.Create(name)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}
