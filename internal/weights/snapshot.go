package weights

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrSnapshotCorrupt marks a snapshot that exists but cannot be decoded.
var ErrSnapshotCorrupt = errors.New("weight snapshot is corrupt")

// Snapshotter persists the whole weight map as one unit.
type Snapshotter interface {
	// Load returns the saved weights. A snapshot that does not exist yet
	// yields an empty map and no error.
	Load(ctx context.Context) (map[string]int64, error)

	// Save replaces the saved weights with data.
	Save(ctx context.Context, data map[string]int64) error

	// Close releases resources held by the snapshotter.
	Close() error
}

const snapshotFormat = 1

type snapshotDoc struct {
	Format  int              `yaml:"format"`
	SavedAt time.Time        `yaml:"saved_at"`
	Weights map[string]int64 `yaml:"weights"`
}

// FileSnapshotter stores weights in a YAML file, replaced atomically on save.
type FileSnapshotter struct {
	path   string
	logger *slog.Logger
	mu     sync.Mutex
}

// NewFileSnapshotter returns a snapshotter writing to path.
func NewFileSnapshotter(path string, logger *slog.Logger) *FileSnapshotter {
	return &FileSnapshotter{path: path, logger: logger}
}

// Path returns the snapshot file location.
func (f *FileSnapshotter) Path() string { return f.path }

// Load reads the snapshot file. A corrupt file is moved aside and an empty
// map is returned so the bot can start with fresh weights.
func (f *FileSnapshotter) Load(_ context.Context) (map[string]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		f.logger.Info("no weight snapshot found; starting empty", "path", f.path)
		return map[string]int64{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading snapshot %s: %w", f.path, err)
	}

	weights, err := decodeSnapshot(data)
	if err != nil {
		aside := fmt.Sprintf("%s.corrupt-%d", f.path, time.Now().Unix())
		if renameErr := os.Rename(f.path, aside); renameErr != nil {
			return nil, fmt.Errorf("moving corrupt snapshot aside: %w", renameErr)
		}
		f.logger.Warn("weight snapshot corrupt; moved aside and starting empty", "path", f.path, "moved_to", aside, "error", err)
		return map[string]int64{}, nil
	}
	return weights, nil
}

func decodeSnapshot(data []byte) (map[string]int64, error) {
	var doc snapshotDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSnapshotCorrupt, err)
	}
	if doc.Format != snapshotFormat {
		return nil, fmt.Errorf("%w: unsupported format %d", ErrSnapshotCorrupt, doc.Format)
	}
	if doc.Weights == nil {
		doc.Weights = map[string]int64{}
	}
	return doc.Weights, nil
}

// Save writes data to a temporary file and renames it over the snapshot.
func (f *FileSnapshotter) Save(_ context.Context, data map[string]int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	out, err := yaml.Marshal(snapshotDoc{
		Format:  snapshotFormat,
		SavedAt: time.Now().UTC(),
		Weights: data,
	})
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating snapshot dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(out); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("writing temp snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("syncing temp snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp snapshot: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("replacing snapshot: %w", err)
	}
	return nil
}

// Close is a no-op.
func (f *FileSnapshotter) Close() error { return nil }

// MemorySnapshotter keeps the snapshot in memory. Used in tests and dry runs.
type MemorySnapshotter struct {
	mu    sync.Mutex
	data  map[string]int64
	saves int
	// FailSaves makes the next n saves fail.
	FailSaves int
}

// NewMemorySnapshotter returns a snapshotter seeded with initial (may be nil).
func NewMemorySnapshotter(initial map[string]int64) *MemorySnapshotter {
	return &MemorySnapshotter{data: copyWeights(initial)}
}

// Load returns a copy of the saved weights.
func (m *MemorySnapshotter) Load(_ context.Context) (map[string]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyWeights(m.data), nil
}

// Save stores a copy of data.
func (m *MemorySnapshotter) Save(_ context.Context, data map[string]int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailSaves > 0 {
		m.FailSaves--
		return errors.New("memory snapshotter: injected failure")
	}
	m.data = copyWeights(data)
	m.saves++
	return nil
}

// Saves returns the number of successful saves.
func (m *MemorySnapshotter) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

// Close is a no-op.
func (m *MemorySnapshotter) Close() error { return nil }

func copyWeights(in map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
