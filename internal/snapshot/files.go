package snapshot

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/natefinch/atomic"
)

const ext = ".json"

// fileStore keeps one file per snapshot id under dir.
type fileStore struct {
	dir string
}

func (s *fileStore) path(id string) string {
	return filepath.Join(s.dir, id+ext)
}

// Save writes the file atomically: readers see the old content or the new,
// never a partial file.
func (s *fileStore) Save(id string, r io.Reader) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create dir: %w", err)
	}
	p := s.path(id)
	if err := atomic.WriteFile(p, r); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	return p, nil
}

func (s *fileStore) Open(id string) (io.ReadCloser, error) {
	f, err := os.Open(s.path(id))
	if err != nil {
		return nil, fmt.Errorf("open snapshot: %w", err)
	}
	return f, nil
}

func (s *fileStore) Delete(id string) error {
	if err := os.Remove(s.path(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove snapshot: %w", err)
	}
	return nil
}

// IDs returns the ids of all stored snapshots. A missing dir holds none.
func (s *fileStore) IDs() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot dir: %w", err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ext) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(e.Name(), ext))
	}
	return ids, nil
}
