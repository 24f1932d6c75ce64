package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/polarismesh/polaris-go/pkg/polerr"
)

// ErrNotFound mirrors infrastructure/state.ErrNotFound for a missing key.
var ErrNotFound = errors.New("cache: key not found in failover store")

// PersistenceBackend is the disk failover contract, carried over verbatim
// (method set and semantics) from infrastructure/state.PersistenceBackend
// so the resource cache can failover to any backend implementing it, not
// just the file-based one below.
type PersistenceBackend interface {
	Save(ctx context.Context, key string, data []byte) error
	Load(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]string, error)
	Close(ctx context.Context) error
}

// FileBackend persists resources as one file per key under a root
// directory. Writes are atomic: the payload is written to a temp file in
// the same directory and renamed into place, so a crash mid-write never
// leaves a corrupt file for the next cold start to trip over.
type FileBackend struct {
	mu   sync.Mutex
	root string
}

// NewFileBackend builds a FileBackend rooted at dir, creating it if needed.
func NewFileBackend(dir string) (*FileBackend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, polerr.Internal(fmt.Sprintf("create persist dir %q: %v", dir, err))
	}
	return &FileBackend{root: dir}, nil
}

func (b *FileBackend) path(key string) string {
	return filepath.Join(b.root, encodeKey(key))
}

// encodeKey maps an arbitrary cache key to a filesystem-safe filename.
func encodeKey(key string) string {
	replacer := strings.NewReplacer("/", "_", "#", "__", ":", "-")
	return replacer.Replace(key) + ".json"
}

func (b *FileBackend) Save(_ context.Context, key string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	final := b.path(key)
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}

func (b *FileBackend) Load(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(b.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

func (b *FileBackend) Delete(_ context.Context, key string) error {
	err := os.Remove(b.path(key))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (b *FileBackend) List(_ context.Context, prefix string) ([]string, error) {
	entries, err := os.ReadDir(b.root)
	if err != nil {
		return nil, err
	}
	var out []string
	encodedPrefix := encodeKey(prefix)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasPrefix(e.Name(), strings.TrimSuffix(encodedPrefix, ".json")) {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}

func (b *FileBackend) Close(context.Context) error { return nil }

// persistValue is the on-disk envelope: the value is re-encoded as JSON so
// arbitrary CacheItem payloads survive a restart without a registry of
// concrete types.
type persistValue struct {
	Revision string          `json:"revision"`
	Payload  json.RawMessage `json:"payload"`
}
