package filestore

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Local stores files under a root directory (the CLARA path in production,
// a t.TempDir in tests).
type Local struct {
	root string
}

func NewLocal(root string) (*Local, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("missing file store root")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create file store root: %w", err)
	}
	return &Local{root: root}, nil
}

func (s *Local) Root() string { return s.root }

func (s *Local) abs(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}

func (s *Local) Read(_ context.Context, key string) ([]byte, error) {
	return os.ReadFile(s.abs(key))
}

func (s *Local) Write(_ context.Context, key string, data []byte) error {
	path := s.abs(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	// Write through a temp file so a concurrent reader never sees a torn file.
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}

func (s *Local) Copy(_ context.Context, srcKey, dstKey string) error {
	src, err := os.Open(s.abs(srcKey))
	if err != nil {
		return err
	}
	defer src.Close()
	dstPath := s.abs(dstKey)
	if err := os.MkdirAll(filepath.Dir(dstPath), 0o755); err != nil {
		return err
	}
	dst, err := os.Create(dstPath)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		return err
	}
	return dst.Close()
}

func (s *Local) Exists(_ context.Context, key string) (bool, error) {
	_, err := os.Stat(s.abs(key))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func (s *Local) List(_ context.Context, prefix string) ([]string, error) {
	base := s.abs(prefix)
	info, err := os.Stat(base)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	if !info.IsDir() {
		return []string{prefix}, nil
	}
	var keys []string
	err = filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

func (s *Local) Remove(_ context.Context, key string) error {
	err := os.Remove(s.abs(key))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (s *Local) RemoveAll(_ context.Context, prefix string) error {
	return os.RemoveAll(s.abs(prefix))
}

func (s *Local) ModTime(_ context.Context, key string) (time.Time, error) {
	info, err := os.Stat(s.abs(key))
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}
