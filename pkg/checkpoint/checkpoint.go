package checkpoint

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"bicodown/pkg/logger"
)

// Version of the checkpoint file format
const Version = 1

// Checkpoint is the persisted state of harvesting one content identifier
type Checkpoint struct {
	Identifier string    `json:"identifier"`
	OID        int64     `json:"oid"`
	RunID      string    `json:"run_id"`
	LastPage   int       `json:"last_page"`
	Cursor     string    `json:"cursor"`
	SeenRPIDs  []int64   `json:"seen_rpids"`
	Downloaded int       `json:"downloaded"`
	Total      int       `json:"total"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	Version    int       `json:"version"`

	seen map[int64]struct{}
}

func (c *Checkpoint) index() {
	if c.seen != nil {
		return
	}
	c.seen = make(map[int64]struct{}, len(c.SeenRPIDs))
	for _, id := range c.SeenRPIDs {
		c.seen[id] = struct{}{}
	}
}

// HasSeen reports whether rpid was persisted by an earlier run
func (c *Checkpoint) HasSeen(rpid int64) bool {
	c.index()
	_, ok := c.seen[rpid]
	return ok
}

// Seen returns a copy of the persisted rpids
func (c *Checkpoint) Seen() []int64 {
	out := make([]int64, len(c.SeenRPIDs))
	copy(out, c.SeenRPIDs)
	return out
}

func (c *Checkpoint) addSeen(rpids []int64) {
	c.index()
	for _, id := range rpids {
		if _, ok := c.seen[id]; ok {
			continue
		}
		c.seen[id] = struct{}{}
		c.SeenRPIDs = append(c.SeenRPIDs, id)
	}
}

// Manager handles checkpoint operations for one identifier
type Manager struct {
	checkpointPath string
	logger         logger.Logger
}

// NewManager creates a manager storing under the platform data directory
func NewManager(identifier string) (*Manager, error) {
	dataDir, err := getDataDirectory()
	if err != nil {
		return nil, fmt.Errorf("failed to get data directory: %w", err)
	}
	return NewManagerInDir(filepath.Join(dataDir, "checkpoints"), identifier)
}

// NewManagerInDir creates a manager storing under dir
func NewManagerInDir(dir, identifier string) (*Manager, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoints directory: %w", err)
	}

	return &Manager{
		checkpointPath: filepath.Join(dir, fmt.Sprintf("%s.checkpoint.json", identifier)),
		logger:         logger.GetLogger(),
	}, nil
}

// WithLogger replaces the manager's logger
func (m *Manager) WithLogger(l logger.Logger) *Manager {
	m.logger = l
	return m
}

// Path is the checkpoint file location
func (m *Manager) Path() string {
	return m.checkpointPath
}

// Create starts a fresh checkpoint and saves it
func (m *Manager) Create(identifier string, oid int64, runID string) (*Checkpoint, error) {
	now := time.Now()
	checkpoint := &Checkpoint{
		Identifier: identifier,
		OID:        oid,
		RunID:      runID,
		SeenRPIDs:  []int64{},
		CreatedAt:  now,
		UpdatedAt:  now,
		Version:    Version,
	}

	if err := m.Save(checkpoint); err != nil {
		return nil, fmt.Errorf("failed to save initial checkpoint: %w", err)
	}

	m.logger.InfoWithFields("Checkpoint created", map[string]interface{}{
		"identifier": identifier,
		"run_id":     runID,
		"path":       m.checkpointPath,
	})

	return checkpoint, nil
}

// Load loads an existing checkpoint, or nil when there is none
func (m *Manager) Load() (*Checkpoint, error) {
	file, err := os.Open(m.checkpointPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open checkpoint file: %w", err)
	}
	defer file.Close()

	var checkpoint Checkpoint
	if err := json.NewDecoder(file).Decode(&checkpoint); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint: %w", err)
	}
	if checkpoint.Version > Version {
		return nil, fmt.Errorf("checkpoint version %d is newer than supported %d", checkpoint.Version, Version)
	}

	m.logger.InfoWithFields("Checkpoint loaded", map[string]interface{}{
		"identifier": checkpoint.Identifier,
		"downloaded": checkpoint.Downloaded,
		"seen":       len(checkpoint.SeenRPIDs),
		"updated_at": checkpoint.UpdatedAt,
	})

	return &checkpoint, nil
}

// Save saves the checkpoint to disk atomically
func (m *Manager) Save(checkpoint *Checkpoint) error {
	checkpoint.UpdatedAt = time.Now()

	tempPath := m.checkpointPath + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create temporary checkpoint file: %w", err)
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(checkpoint); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync checkpoint file: %w", err)
	}

	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close checkpoint file: %w", err)
	}

	if err := os.Rename(tempPath, m.checkpointPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace checkpoint file: %w", err)
	}

	m.logger.DebugWithFields("Checkpoint saved", map[string]interface{}{
		"identifier": checkpoint.Identifier,
		"downloaded": checkpoint.Downloaded,
		"last_page":  checkpoint.LastPage,
	})

	return nil
}

// Delete removes the checkpoint file
func (m *Manager) Delete() error {
	if err := os.Remove(m.checkpointPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}

	m.logger.Info("Checkpoint deleted")
	return nil
}

// Exists checks if a checkpoint file exists
func (m *Manager) Exists() bool {
	_, err := os.Stat(m.checkpointPath)
	return err == nil
}

// UpdateProgress records a persisted page
func (m *Manager) UpdateProgress(checkpoint *Checkpoint, page int, cursor string, rpids []int64, downloaded int) error {
	checkpoint.LastPage = page
	checkpoint.Cursor = cursor
	checkpoint.Downloaded = downloaded
	checkpoint.addSeen(rpids)
	return m.Save(checkpoint)
}

// Tracker binds a checkpoint to its manager so a harvest can report
// progress without knowing about files.
type Tracker struct {
	m  *Manager
	cp *Checkpoint
}

// Track returns a Tracker for checkpoint
func (m *Manager) Track(checkpoint *Checkpoint) *Tracker {
	return &Tracker{m: m, cp: checkpoint}
}

// Record saves a persisted page
func (t *Tracker) Record(page int, cursor string, rpids []int64, downloaded int) error {
	return t.m.UpdateProgress(t.cp, page, cursor, rpids, downloaded)
}

// Checkpoint returns the tracked checkpoint
func (t *Tracker) Checkpoint() *Checkpoint {
	return t.cp
}

// Info returns a summary of the checkpoint, or nil when there is none
func (m *Manager) Info() (map[string]interface{}, error) {
	checkpoint, err := m.Load()
	if err != nil || checkpoint == nil {
		return nil, err
	}

	return map[string]interface{}{
		"identifier": checkpoint.Identifier,
		"run_id":     checkpoint.RunID,
		"downloaded": checkpoint.Downloaded,
		"seen":       len(checkpoint.SeenRPIDs),
		"last_page":  checkpoint.LastPage,
		"created_at": checkpoint.CreatedAt,
		"updated_at": checkpoint.UpdatedAt,
		"age":        time.Since(checkpoint.UpdatedAt),
	}, nil
}

// Backup copies the checkpoint to a .backup file next to it
func (m *Manager) Backup() error {
	if !m.Exists() {
		return nil
	}

	src, err := os.Open(m.checkpointPath)
	if err != nil {
		return fmt.Errorf("failed to open checkpoint for backup: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(m.checkpointPath + ".backup")
	if err != nil {
		return fmt.Errorf("failed to create backup file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("failed to copy checkpoint to backup: %w", err)
	}

	m.logger.Debug("Checkpoint backed up")
	return nil
}

// List returns the identifiers with a checkpoint under dir, sorted
func List(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.checkpoint.json"))
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(matches))
	for _, path := range matches {
		name := filepath.Base(path)
		ids = append(ids, name[:len(name)-len(".checkpoint.json")])
	}
	sort.Strings(ids)
	return ids, nil
}

// Dir is the default checkpoint directory
func Dir() (string, error) {
	dataDir, err := getDataDirectory()
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, "checkpoints"), nil
}

// getDataDirectory returns the appropriate data directory for the current OS
func getDataDirectory() (string, error) {
	var dataDir string

	switch runtime.GOOS {
	case "linux":
		if xdgDataHome := os.Getenv("XDG_DATA_HOME"); xdgDataHome != "" {
			dataDir = filepath.Join(xdgDataHome, "bicodown")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			dataDir = filepath.Join(home, ".local", "share", "bicodown")
		}
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dataDir = filepath.Join(home, "Library", "Application Support", "bicodown")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return "", fmt.Errorf("APPDATA environment variable not set")
		}
		dataDir = filepath.Join(appData, "bicodown")
	default:
		return "", fmt.Errorf("unsupported operating system: %s", runtime.GOOS)
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}

	return dataDir, nil
}
