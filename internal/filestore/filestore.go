package filestore

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// StorageFailed is returned by Save in place of a reference when the
// backend rejected the upload. Callers store it as the entry's file path.
const StorageFailed = "storage_failed"

// Backend persists one object and returns its public reference.
type Backend interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Name() string
}

type Store struct {
	backend Backend
	tempDir string
	logger  *slog.Logger

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

func New(backend Backend, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		backend: backend,
		tempDir: os.TempDir(),
		logger:  logger,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

func (s *Store) Backend() string {
	return s.backend.Name()
}

// Save uploads data under logicalPath and returns its public reference, or
// StorageFailed. Storage problems never fail ingestion.
func (s *Store) Save(ctx context.Context, data []byte, logicalPath, contentType string) string {
	key, err := cleanKey(logicalPath)
	if err != nil {
		s.logger.Error("file storage rejected path", "path", logicalPath, "error", err)
		return StorageFailed
	}
	if len(data) == 0 {
		s.logger.Error("file storage got empty payload", "path", key)
		return StorageFailed
	}
	ref, err := s.backend.Put(ctx, key, data, contentType)
	if err != nil {
		s.logger.Error("file storage failed", "backend", s.backend.Name(), "path", key, "error", err)
		return StorageFailed
	}
	return ref
}

// NewKey builds a unique, time-ordered object key such as
// "images/01J9Z3...jpg" for media that has no platform file id.
func (s *Store) NewKey(dir, ext string) string {
	s.mu.Lock()
	id, err := ulid.New(ulid.Timestamp(time.Now()), s.entropy)
	s.mu.Unlock()
	var name string
	if err != nil {
		name = uuid.NewString()
	} else {
		name = strings.ToLower(id.String())
	}
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return path.Join(dir, name+ext)
}

// SaveTemp writes data to a local temporary file. The caller removes it.
func (s *Store) SaveTemp(data []byte, suffix string) (string, error) {
	if suffix != "" && !strings.HasPrefix(suffix, ".") {
		suffix = "." + suffix
	}
	name := filepath.Join(s.tempDir, "nexuslog-"+uuid.NewString()+suffix)
	if err := os.WriteFile(name, data, 0o600); err != nil {
		return "", fmt.Errorf("write temp file: %w", err)
	}
	return name, nil
}

func cleanKey(logicalPath string) (string, error) {
	p := strings.TrimSpace(strings.ReplaceAll(logicalPath, "\\", "/"))
	if p == "" {
		return "", errors.New("path is required")
	}
	// Cleaning against a rooted path drops any leading "..".
	p = path.Clean("/" + p)[1:]
	if p == "" {
		return "", errors.New("path is required")
	}
	return p, nil
}

type LocalBackend struct {
	dir          string
	publicPrefix string
}

// NewLocal stores files under dir and references them as
// publicPrefix/<key>, e.g. "/static/uploads/images/a.jpg".
func NewLocal(dir, publicPrefix string) (*LocalBackend, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("local storage dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &LocalBackend{dir: dir, publicPrefix: strings.TrimRight(publicPrefix, "/")}, nil
}

func (b *LocalBackend) Name() string { return "local" }

func (b *LocalBackend) Put(_ context.Context, key string, data []byte, _ string) (string, error) {
	target := filepath.Join(b.dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("create dir: %w", err)
	}
	tmp := target + ".part"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("rename file: %w", err)
	}
	return b.publicPrefix + "/" + key, nil
}
