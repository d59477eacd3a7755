package storage

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"bicodown/pkg/logger"
	"bicodown/pkg/models"
)

// Writer appends comment batches to per-content CSV files. The first
// overwrite call for a path truncates it; every later call appends.
type Writer struct {
	mu      sync.Mutex
	started map[string]bool
	logger  logger.Logger
}

// NewWriter creates a Writer
func NewWriter(log logger.Logger) *Writer {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Writer{started: map[string]bool{}, logger: log}
}

// CSVPath is where the dataset of id lives inside dir
func CSVPath(dir, id string) string {
	return filepath.Join(dir, id+".csv")
}

// Upsert writes batch to {dir}/{id}.csv and returns the number of rows
// written. Rows without an author name are skipped.
func (w *Writer) Upsert(id string, batch []models.Comment, dir, title string, overwrite bool) (int, error) {
	if len(batch) == 0 {
		return 0, nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, fmt.Errorf("failed to create output directory: %w", err)
	}

	path := CSVPath(dir, id)
	truncate := overwrite && !w.started[path]
	_, statErr := os.Stat(path)
	fresh := truncate || errors.Is(statErr, os.ErrNotExist)

	flags := os.O_CREATE | os.O_WRONLY | os.O_APPEND
	if truncate {
		flags = os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return 0, fmt.Errorf("failed to open dataset: %w", err)
	}

	written, err := writeRows(f, batch, fresh)
	closeErr := f.Close()
	if err != nil {
		return written, fmt.Errorf("failed to write dataset: %w", err)
	}
	if closeErr != nil {
		return written, fmt.Errorf("failed to close dataset: %w", closeErr)
	}
	w.started[path] = true

	display := id
	if title != "" {
		display = fmt.Sprintf("%s (%s)", id, title)
	}
	action := "appended"
	if truncate {
		action = "overwrote"
	} else if fresh {
		action = "created"
	}
	w.logger.InfoWithFields("Comments written", map[string]interface{}{
		"dataset": display,
		"action":  action,
		"rows":    written,
	})

	return written, nil
}

func writeRows(out io.Writer, batch []models.Comment, header bool) (int, error) {
	cw := csv.NewWriter(out)
	if header {
		if err := cw.Write(models.CSVHeader()); err != nil {
			return 0, err
		}
	}

	written := 0
	for i := range batch {
		if batch[i].Uname == "" {
			continue
		}
		if err := cw.Write(batch[i].Record()); err != nil {
			return written, err
		}
		written++
	}
	cw.Flush()
	return written, cw.Error()
}

// ReadComments loads every row of a dataset file
func ReadComments(path string) ([]models.Comment, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}

	var comments []models.Comment
	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return comments, fmt.Errorf("failed to read row %d: %w", len(comments)+2, err)
		}
		row := make(map[string]string, len(header))
		for i, name := range header {
			if i < len(rec) {
				row[name] = rec[i]
			}
		}
		comments = append(comments, models.FromRecord(row))
	}
	return comments, nil
}
