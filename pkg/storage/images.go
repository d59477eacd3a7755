package storage

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sync"

	"bicodown/pkg/identifier"
)

// ImageDirName is the picture directory inside a content directory
const ImageDirName = "images"

// ImageStore saves comment pictures and remembers which ones exist
type ImageStore struct {
	dir        string
	downloaded map[string]bool
	mu         sync.RWMutex
}

// NewImageStore creates dir if needed and indexes the files already in it
func NewImageStore(dir string) (*ImageStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create image directory: %w", err)
	}

	s := &ImageStore{
		dir:        dir,
		downloaded: make(map[string]bool),
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read image directory: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() && filepath.Ext(entry.Name()) != ".tmp" {
			s.downloaded[entry.Name()] = true
		}
	}

	return s, nil
}

// ImageName is the file name of a picture: "<uname>_<basename of url>"
func ImageName(uname, rawURL string) string {
	base := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		base = u.Path
	}
	return identifier.SanitizeFilename(uname + "_" + path.Base(base))
}

// Has reports whether name is already on disk
func (s *ImageStore) Has(name string) bool {
	s.mu.RLock()
	known := s.downloaded[name]
	s.mu.RUnlock()
	if known {
		return true
	}

	if _, err := os.Stat(filepath.Join(s.dir, name)); err == nil {
		s.mu.Lock()
		s.downloaded[name] = true
		s.mu.Unlock()
		return true
	}
	return false
}

// Save writes r to name through a temporary file and rename
func (s *ImageStore) Save(r io.Reader, name string) error {
	filename := filepath.Join(s.dir, name)
	tempFile := filename + ".tmp"

	out, err := os.Create(tempFile)
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}

	_, err = io.Copy(out, r)
	closeErr := out.Close()

	if err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to save image data: %w", err)
	}
	if closeErr != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to close file: %w", closeErr)
	}

	if err := os.Rename(tempFile, filename); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}

	s.mu.Lock()
	s.downloaded[name] = true
	s.mu.Unlock()

	return nil
}

// Dir returns the image directory
func (s *ImageStore) Dir() string {
	return s.dir
}

// Count returns the number of pictures on disk
func (s *ImageStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.downloaded)
}
