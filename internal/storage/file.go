package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"NetSentry/internal/model"
)

// FileStore persists alerts and stats snapshots as JSON lines in per-day
// files under a root directory. It backs deployments that run without
// ClickHouse; files are append-only and rotate at midnight UTC.
type FileStore struct {
	dir string

	mu        sync.Mutex
	day       string
	alerts    *os.File
	snapshots *os.File
}

// NewFileStore creates the root directory and returns a store.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// ensureFiles opens the current day's files, rotating when the date changed.
// Callers must hold mu.
func (s *FileStore) ensureFiles(now time.Time) error {
	day := now.UTC().Format("2006-01-02")
	if day == s.day && s.alerts != nil {
		return nil
	}
	s.closeFiles()

	alerts, err := os.OpenFile(filepath.Join(s.dir, "alerts_"+day+".jsonl"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open alerts file: %w", err)
	}
	snapshots, err := os.OpenFile(filepath.Join(s.dir, "stats_"+day+".jsonl"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		alerts.Close()
		return fmt.Errorf("failed to open stats file: %w", err)
	}
	s.day = day
	s.alerts = alerts
	s.snapshots = snapshots
	return nil
}

func (s *FileStore) closeFiles() {
	if s.alerts != nil {
		s.alerts.Close()
		s.alerts = nil
	}
	if s.snapshots != nil {
		s.snapshots.Close()
		s.snapshots = nil
	}
}

func (s *FileStore) appendLine(file *os.File, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = file.Write(append(data, '\n'))
	return err
}

// SaveAlert implements model.AlertStore.
func (s *FileStore) SaveAlert(ctx context.Context, alert *model.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureFiles(alert.CreatedAt); err != nil {
		return err
	}
	if err := s.appendLine(s.alerts, alert); err != nil {
		return fmt.Errorf("failed to append alert: %w", err)
	}
	return nil
}

// SaveSnapshot implements model.SnapshotStore.
func (s *FileStore) SaveSnapshot(ctx context.Context, snapshot *model.TrafficStatsSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureFiles(snapshot.WindowEnd); err != nil {
		return err
	}
	if err := s.appendLine(s.snapshots, snapshot); err != nil {
		return fmt.Errorf("failed to append snapshot: %w", err)
	}
	return nil
}

// Close closes the open files.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeFiles()
	return nil
}
