package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// Local is a filesystem-backed blob store rooted at a base directory.
// Locators are absolute paths.
type Local struct {
	baseDir string
}

// NewLocal creates a Local store, creating the base directory if needed.
func NewLocal(baseDir string) (*Local, error) {
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, eris.Wrap(err, "storage: resolve base dir")
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, eris.Wrap(err, "storage: create base dir")
	}
	return &Local{baseDir: abs}, nil
}

func (l *Local) path(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", eris.Errorf("storage: invalid key %q", key)
	}
	return filepath.Join(l.baseDir, clean), nil
}

func (l *Local) Save(ctx context.Context, key string, content []byte) (string, error) {
	p, err := l.path(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", eris.Wrapf(err, "storage: create dirs for %s", key)
	}
	if err := os.WriteFile(p, content, 0o644); err != nil {
		return "", eris.Wrapf(err, "storage: write %s", key)
	}
	return p, nil
}

func (l *Local) Load(ctx context.Context, key string) ([]byte, error) {
	p, err := l.path(key)
	if err != nil {
		return nil, err
	}
	content, err := os.ReadFile(p)
	if os.IsNotExist(err) {
		return nil, eris.Wrapf(ErrNotFound, "%s", key)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "storage: read %s", key)
	}
	return content, nil
}

func (l *Local) Delete(ctx context.Context, key string) (bool, error) {
	p, err := l.path(key)
	if err != nil {
		return false, err
	}
	err = os.Remove(p)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrapf(err, "storage: delete %s", key)
	}
	return true, nil
}

func (l *Local) Exists(ctx context.Context, key string) (bool, error) {
	p, err := l.path(key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(p)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrapf(err, "storage: stat %s", key)
	}
	return true, nil
}
