package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"bicodown/pkg/identifier"
)

// ContentInfoFile is the metadata file written next to the dataset
const ContentInfoFile = "content_info.json"

// ResolveOutputDir picks the directory for id under base. An existing
// "<id>_*" directory is reused and its title returned; otherwise the
// directory is named after title. The directory is created.
func ResolveOutputDir(base, id, title string) (string, string, error) {
	entries, err := os.ReadDir(base)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", "", fmt.Errorf("failed to read output directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() && strings.HasPrefix(entry.Name(), id+"_") {
			existing := identifier.TitleFromDirName(entry.Name())
			if existing == "" {
				existing = title
			}
			return filepath.Join(base, entry.Name()), existing, nil
		}
	}

	dir := filepath.Join(base, identifier.DirName(id, title))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", "", fmt.Errorf("failed to create output directory: %w", err)
	}
	return dir, title, nil
}

// SaveContentInfo writes info as content_info.json. An existing file is
// kept unless overwrite is set. It reports whether the file was written.
func SaveContentInfo(dir string, info interface{}, overwrite bool) (bool, error) {
	path := filepath.Join(dir, ContentInfoFile)
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return false, nil
		}
	}

	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return false, fmt.Errorf("failed to marshal content info: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return false, fmt.Errorf("failed to write content info: %w", err)
	}
	return true, nil
}
