package datastore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// imageFiles writes capture images under a root directory laid out as
// YYYY/MM/DD/<id>.jpg with thumbnails next to them as <id>_thumb.jpg.
type imageFiles struct {
	root string
}

func (f imageFiles) paths(id string, at time.Time) (image, thumb string) {
	dir := filepath.Join(at.Format("2006"), at.Format("01"), at.Format("02"))
	return filepath.Join(dir, id+".jpg"), filepath.Join(dir, id+"_thumb.jpg")
}

// write stores data at rel atomically.
func (f imageFiles) write(rel string, data []byte) error {
	abs, err := f.abs(rel)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(abs), ".capture-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), abs)
}

func (f imageFiles) read(rel string) ([]byte, error) {
	abs, err := f.abs(rel)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(abs)
}

func (f imageFiles) remove(rel string) error {
	if rel == "" {
		return nil
	}
	abs, err := f.abs(rel)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// abs resolves rel inside root, refusing paths that escape it.
func (f imageFiles) abs(rel string) (string, error) {
	clean := filepath.Clean(rel)
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes the output directory", rel)
	}
	return filepath.Join(f.root, clean), nil
}
