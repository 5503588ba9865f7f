package lock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"github.com/oshokin/mc-provisioner/internal/config"
	"github.com/oshokin/mc-provisioner/internal/domain/artifact"
)

// Repository defines persistence operations for the lock file.
type Repository interface {
	Path() string
	Load(ctx context.Context) (*artifact.Lock, error)
	Save(ctx context.Context, lock *artifact.Lock) error
}

var _ Repository = (*FileRepository)(nil)

// FileRepository persists the lock to a YAML file on disk.
type FileRepository struct {
	// path is the filesystem location of the lock file.
	path string
	// mu protects concurrent access to the lock file.
	mu sync.Mutex
}

// ErrNotFound is returned when the lock file does not exist yet.
var ErrNotFound = errors.New("lock file not found")

// document is the on-disk layout.
type document struct {
	RunID       string      `yaml:"run_id"`
	Generated   time.Time   `yaml:"generated"`
	GeneratedBy *actorEntry `yaml:"generated_by,omitempty"`
	Artifacts   []pinEntry  `yaml:"artifacts"`
}

type actorEntry struct {
	Hostname string `yaml:"hostname"`
	Username string `yaml:"username"`
}

type pinEntry struct {
	Group     string `yaml:"group"`
	Name      string `yaml:"name"`
	Path      string `yaml:"path"`
	Algorithm string `yaml:"algorithm"`
	Digest    string `yaml:"digest"`
	Size      int64  `yaml:"size"`
	// HumanSize is informational and ignored on load.
	HumanSize string `yaml:"human_size,omitempty"`
	Source    string `yaml:"source,omitempty"`
}

// NewFileRepository creates a repository that reads/writes YAML at the provided path.
func NewFileRepository(path string) *FileRepository {
	return &FileRepository{
		path: filepath.Clean(path),
	}
}

// Path returns the location of the lock file.
func (r *FileRepository) Path() string {
	return r.path
}

// Load reads the lock from disk.
func (r *FileRepository) Load(_ context.Context) (*artifact.Lock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	contents, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("read lock file: %w", err)
	}

	var doc document
	if err = yaml.Unmarshal(contents, &doc); err != nil {
		return nil, fmt.Errorf("decode lock file: %w", err)
	}

	return fromDocument(&doc), nil
}

// Save writes the lock to disk.
func (r *FileRepository) Save(_ context.Context, lock *artifact.Lock) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := yaml.Marshal(toDocument(lock))
	if err != nil {
		return fmt.Errorf("encode lock: %w", err)
	}

	if err = os.WriteFile(r.path, data, config.DefaultFilePermissions); err != nil {
		return fmt.Errorf("write lock file: %w", err)
	}

	return nil
}

// fromDocument converts the on-disk layout into the domain Lock.
func fromDocument(doc *document) *artifact.Lock {
	pins := make([]artifact.Pin, 0, len(doc.Artifacts))
	for _, entry := range doc.Artifacts {
		pins = append(pins, artifact.Pin{
			Group:     entry.Group,
			Name:      entry.Name,
			Path:      entry.Path,
			Algorithm: entry.Algorithm,
			Digest:    entry.Digest,
			Size:      entry.Size,
			Source:    entry.Source,
		})
	}

	var actor *artifact.Actor
	if doc.GeneratedBy != nil {
		actor = &artifact.Actor{
			Hostname: doc.GeneratedBy.Hostname,
			Username: doc.GeneratedBy.Username,
		}
	}

	return &artifact.Lock{
		RunID:       doc.RunID,
		Generated:   doc.Generated,
		GeneratedBy: actor,
		Artifacts:   pins,
	}
}

// toDocument converts the domain Lock into the on-disk layout.
func toDocument(lock *artifact.Lock) *document {
	entries := make([]pinEntry, 0, len(lock.Artifacts))
	for _, pin := range lock.Artifacts {
		entries = append(entries, pinEntry{
			Group:     pin.Group,
			Name:      pin.Name,
			Path:      filepath.ToSlash(pin.Path),
			Algorithm: pin.Algorithm,
			Digest:    pin.Digest,
			Size:      pin.Size,
			HumanSize: humanize.Bytes(uint64(max(pin.Size, 0))),
			Source:    pin.Source,
		})
	}

	var actor *actorEntry
	if lock.GeneratedBy != nil {
		actor = &actorEntry{
			Hostname: lock.GeneratedBy.Hostname,
			Username: lock.GeneratedBy.Username,
		}
	}

	return &document{
		RunID:       lock.RunID,
		Generated:   lock.Generated.UTC(),
		GeneratedBy: actor,
		Artifacts:   entries,
	}
}
