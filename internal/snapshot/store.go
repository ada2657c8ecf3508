package snapshot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

var (
	// ErrNotFound is returned when no snapshot exists for a service.
	ErrNotFound = errors.New("snapshot not found")
	// ErrExists is returned by Save when a snapshot already exists and
	// overwriting was not forced.
	ErrExists = errors.New("snapshot already exists")
)

// DefaultEnvironment names the snapshot set used when no environment label
// is given.
const DefaultEnvironment = "default"

// CheckEnvironment rejects environment labels that would escape the
// snapshot or report directory once used in a path: labels holding a path
// separator or "..". The empty label is valid and means DefaultEnvironment.
func CheckEnvironment(env string) error {
	if strings.ContainsAny(env, `/\`) || strings.Contains(env, "..") {
		return fmt.Errorf("invalid environment label %q: must not contain a path separator or \"..\"", env)
	}
	return nil
}

// Backend is the blob storage a Store persists snapshots into.
type Backend interface {
	Put(ctx context.Context, key string, data []byte) error
	// Get returns ErrNotFound for a missing key.
	Get(ctx context.Context, key string) ([]byte, error)
	Exists(ctx context.Context, key string) (bool, error)
}

// Store saves and loads snapshots keyed by environment label and service.
type Store struct {
	backend Backend
}

// NewStore returns a Store over backend.
func NewStore(backend Backend) *Store {
	return &Store{backend: backend}
}

// Key returns the storage key of a service snapshot: <env>/<service>.json.
func Key(env string, svc Service) string {
	if env == "" {
		env = DefaultEnvironment
	}
	return path.Join(env, string(svc)+".json")
}

// Save persists snap. An existing snapshot is only replaced when force is
// set; otherwise Save returns ErrExists.
func (s *Store) Save(ctx context.Context, snap *Snapshot, force bool) error {
	if err := CheckEnvironment(snap.Environment); err != nil {
		return err
	}
	key := Key(snap.Environment, snap.Service)
	if !force {
		exists, err := s.backend.Exists(ctx, key)
		if err != nil {
			return fmt.Errorf("check snapshot %s: %w", key, err)
		}
		if exists {
			return fmt.Errorf("%s: %w", key, ErrExists)
		}
	}
	data, err := snap.Encode()
	if err != nil {
		return err
	}
	if err := s.backend.Put(ctx, key, data); err != nil {
		return fmt.Errorf("save snapshot %s: %w", key, err)
	}
	return nil
}

// Load reads the snapshot of svc in environment env.
func (s *Store) Load(ctx context.Context, env string, svc Service) (*Snapshot, error) {
	if err := CheckEnvironment(env); err != nil {
		return nil, err
	}
	key := Key(env, svc)
	data, err := s.backend.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", key, err)
	}
	snap, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	if snap.Service != svc {
		return nil, fmt.Errorf("%s: holds service %q, want %q", key, snap.Service, svc)
	}
	return snap, nil
}

// FileBackend stores snapshots below a local directory.
type FileBackend struct {
	Root string
}

func NewFileBackend(root string) *FileBackend {
	return &FileBackend{Root: root}
}

func (b *FileBackend) Put(_ context.Context, key string, data []byte) error {
	p := filepath.Join(b.Root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	return os.WriteFile(p, data, 0o600)
}

func (b *FileBackend) Get(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(b.Root, filepath.FromSlash(key)))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return data, err
}

func (b *FileBackend) Exists(_ context.Context, key string) (bool, error) {
	_, err := os.Stat(filepath.Join(b.Root, filepath.FromSlash(key)))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}
