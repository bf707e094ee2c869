// Package params is the persistent key-value store shared with the rest of the stack.
package params

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Keys read or written by the daemon.
const (
	IsOnroad               = "IsOnroad"
	ObdMultiplexingEnabled = "ObdMultiplexingEnabled"
	ObdMultiplexingChanged = "ObdMultiplexingChanged"
	FirmwareQueryDone      = "FirmwareQueryDone"
	ControlsReady          = "ControlsReady"
	CarParams              = "CarParams"
	IsDriverViewEnabled    = "IsDriverViewEnabled"
)

// ErrInvalidKey is returned for keys that cannot name a file.
var ErrInvalidKey = errors.New("params: invalid key")

// Store reads and writes params. A missing key reads as empty/false.
type Store interface {
	Get(key string) ([]byte, error)
	GetBool(key string) bool
	Put(key string, value []byte) error
	PutBool(key string, value bool) error
}

func encodeBool(v bool) []byte {
	if v {
		return []byte("1")
	}
	return []byte("0")
}

func decodeBool(b []byte) bool {
	return strings.TrimSpace(string(b)) == "1"
}

// FileStore keeps one file per key under Dir.
type FileStore struct {
	Dir string
}

// NewFileStore creates dir if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create params dir: %w", err)
	}
	return &FileStore{Dir: dir}, nil
}

func (s *FileStore) path(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return filepath.Join(s.Dir, key), nil
}

// Get returns the raw value, nil when the key is unset.
func (s *FileStore) Get(key string) ([]byte, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read param %s: %w", key, err)
	}
	return b, nil
}

// GetBool reports whether key holds "1". Read errors are false.
func (s *FileStore) GetBool(key string) bool {
	b, err := s.Get(key)
	return err == nil && decodeBool(b)
}

// Put writes value atomically through a temp file in Dir.
func (s *FileStore) Put(key string, value []byte) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.Dir, "."+key+".tmp*")
	if err != nil {
		return fmt.Errorf("write param %s: %w", key, err)
	}
	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write param %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write param %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write param %s: %w", key, err)
	}
	return nil
}

// PutBool stores "1" or "0".
func (s *FileStore) PutBool(key string, value bool) error {
	return s.Put(key, encodeBool(value))
}

// MemStore is an in-memory Store.
type MemStore struct {
	mu sync.Mutex
	m  map[string][]byte
}

// NewMemStore returns an empty store.
func NewMemStore() *MemStore {
	return &MemStore{m: make(map[string][]byte)}
}

func (s *MemStore) Get(key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.m[key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), v...), nil
}

func (s *MemStore) GetBool(key string) bool {
	b, _ := s.Get(key)
	return decodeBool(b)
}

func (s *MemStore) Put(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = append([]byte(nil), value...)
	return nil
}

func (s *MemStore) PutBool(key string, value bool) error {
	return s.Put(key, encodeBool(value))
}

// Delete removes key.
func (s *MemStore) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, key)
}
