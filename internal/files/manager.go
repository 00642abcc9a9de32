package files

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const (
	dirPermissions = 0o755

	// DefaultLedgerFile is the workbook holding one sheet per lecture.
	DefaultLedgerFile = "attendance.xlsx"
	// DefaultArchiveDir receives crops of faces that matched nobody on the roster.
	DefaultArchiveDir = "unknown_faces"
	// DefaultCacheFile stores enrollment encodings keyed by image digest.
	DefaultCacheFile = "encodings.db"
)

// Manager centralizes where hadir state lives on disk and how files are named.
type Manager struct {
	basePath string
}

// NewManager constructs a Manager rooted at the provided directory. If basePath
// is empty, it falls back to ~/.hadir (or another location determined by
// ResolveBasePath).
func NewManager(basePath string) (*Manager, error) {
	var err error
	if basePath == "" {
		basePath, err = ResolveBasePath()
		if err != nil {
			return nil, err
		}
	}
	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, err
	}

	return &Manager{basePath: abs}, nil
}

// BasePath returns the root directory storing the ledger and archives.
func (m *Manager) BasePath() string {
	return m.basePath
}

// Resolve anchors a relative name under the base path. Absolute paths are returned unchanged.
func (m *Manager) Resolve(name string) string {
	if filepath.IsAbs(name) {
		return filepath.Clean(name)
	}
	return filepath.Join(m.basePath, name)
}

// LedgerPath resolves the workbook location, defaulting to DefaultLedgerFile.
func (m *Manager) LedgerPath(name string) string {
	if name == "" {
		name = DefaultLedgerFile
	}
	return m.Resolve(name)
}

// ArchiveDir resolves the unknown-face archive directory, defaulting to DefaultArchiveDir.
func (m *Manager) ArchiveDir(name string) string {
	if name == "" {
		name = DefaultArchiveDir
	}
	return m.Resolve(name)
}

// CachePath resolves the enrollment cache database, defaulting to DefaultCacheFile.
func (m *Manager) CachePath(name string) string {
	if name == "" {
		name = DefaultCacheFile
	}
	return m.Resolve(name)
}

// EnsureParent guarantees the directory containing path exists and returns path.
func (m *Manager) EnsureParent(path string) (string, error) {
	if m == nil {
		return "", errors.New("files.Manager is nil")
	}
	if err := os.MkdirAll(filepath.Dir(path), dirPermissions); err != nil {
		return "", fmt.Errorf("create directories: %w", err)
	}
	return path, nil
}
