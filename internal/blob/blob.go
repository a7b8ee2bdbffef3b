// Package blob stores stage artifacts (abstract text, full text, PDFs, OCR
// output, RAG chunks) under content-addressed keys. Artifacts are written
// once and never mutated, so readers need no coordination with writers.
package blob

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotFound is returned when no artifact exists for a ref.
var ErrNotFound = errors.New("artifact not found")

// Store is the artifact store consumed by the pipeline engine.
type Store interface {
	// Put stores data and returns its artifact ref. Storing the same bytes
	// twice returns the same ref.
	Put(ctx context.Context, data []byte) (string, error)
	// Get returns the bytes for an artifact ref, or ErrNotFound.
	Get(ctx context.Context, ref string) ([]byte, error)
}

// FileStore is a Store backed by a directory tree sharded on the first two
// hex digits of the content hash.
type FileStore struct {
	baseDir string
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates a FileStore rooted at baseDir, creating it if needed.
func NewFileStore(baseDir string) (*FileStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", baseDir, err)
	}
	return &FileStore{baseDir: baseDir}, nil
}

// Ref computes the artifact ref for data without storing it.
func Ref(data []byte) string {
	sum := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(sum[:])
}

func (s *FileStore) path(ref string) (string, error) {
	hexDigest, ok := strings.CutPrefix(ref, "sha256:")
	if !ok || len(hexDigest) != sha256.Size*2 {
		return "", fmt.Errorf("malformed artifact ref %q", ref)
	}
	return filepath.Join(s.baseDir, hexDigest[:2], hexDigest), nil
}

// Put stores data under its content hash.
func (s *FileStore) Put(ctx context.Context, data []byte) (string, error) {
	ref := Ref(data)
	path, err := s.path(ref)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(path); err == nil {
		return ref, nil // already stored, content-addressed so identical
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if tmpName != "" {
			os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return "", fmt.Errorf("rename %s -> %s: %w", tmpName, path, err)
	}
	tmpName = ""
	return ref, nil
}

// Get returns the stored bytes for a ref.
func (s *FileStore) Get(ctx context.Context, ref string) ([]byte, error) {
	path, err := s.path(ref)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("ref %s: %w", ref, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read artifact %s: %w", ref, err)
	}
	return data, nil
}
