package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"
)

var (
	ErrBlobNotFound = errors.New("blob not found")
	ErrBlobTooLarge = errors.New("blob exceeds size limit")
	ErrInvalidKey   = errors.New("invalid blob key")
)

// BlobStore parks attachment bytes on disk between the moment a file is
// attached and the moment it is sent. Blobs are content addressed, so the
// same file attached twice is stored once. Blobs older than ttl are treated
// as gone and removed by Sweep.
type BlobStore struct {
	dir     string
	ttl     time.Duration
	maxSize int64
	mu      sync.Mutex
	now     func() time.Time
}

// NewBlobStore creates dir if needed. A zero maxSize disables the limit and
// a zero ttl keeps blobs until deleted.
func NewBlobStore(dir string, ttl time.Duration, maxSize int64) (*BlobStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create blob directory: %w", err)
	}
	return &BlobStore{dir: dir, ttl: ttl, maxSize: maxSize, now: time.Now}, nil
}

// Put stores data and returns its key.
func (s *BlobStore) Put(data []byte) (string, error) {
	if s.maxSize > 0 && int64(len(data)) > s.maxSize {
		return "", fmt.Errorf("%w: %d > %d bytes", ErrBlobTooLarge, len(data), s.maxSize)
	}

	sum := sha256.Sum256(data)
	key := hex.EncodeToString(sum[:])
	path := filepath.Join(s.dir, key)

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if _, err := os.Stat(path); err == nil {
		// refresh the expiry of an existing blob
		if err := os.Chtimes(path, now, now); err != nil {
			return "", fmt.Errorf("failed to touch blob: %w", err)
		}
		return key, nil
	}

	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp blob: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to write blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to close blob: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to store blob: %w", err)
	}
	if err := os.Chtimes(path, now, now); err != nil {
		return "", fmt.Errorf("failed to touch blob: %w", err)
	}
	return key, nil
}

// Get returns the bytes stored under key.
func (s *BlobStore) Get(key string) ([]byte, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrBlobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stat blob: %w", err)
	}
	if s.expired(info) {
		os.Remove(path)
		return nil, ErrBlobNotFound
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read blob: %w", err)
	}
	return data, nil
}

// Delete removes a blob. Deleting a missing blob is not an error.
func (s *BlobStore) Delete(key string) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete blob: %w", err)
	}
	return nil
}

// Sweep removes expired blobs and returns how many were removed.
func (s *BlobStore) Sweep() (int, error) {
	if s.ttl <= 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to list blobs: %w", err)
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !validKey(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if s.expired(info) {
			if err := os.Remove(filepath.Join(s.dir, entry.Name())); err == nil {
				removed++
			}
		}
	}
	return removed, nil
}

func (s *BlobStore) expired(info fs.FileInfo) bool {
	return s.ttl > 0 && s.now().Sub(info.ModTime()) > s.ttl
}

func (s *BlobStore) path(key string) (string, error) {
	if !validKey(key) {
		return "", ErrInvalidKey
	}
	return filepath.Join(s.dir, key), nil
}

func validKey(key string) bool {
	if len(key) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(key)
	return err == nil
}
