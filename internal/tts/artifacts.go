package tts

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ArtifactStore persists synthesized audio under a static directory and
// maps files to their public URLs. File names embed the owning client id
// so cleanup can target one session without touching the others.
type ArtifactStore struct {
	dir     string
	urlBase string
}

func NewArtifactStore(dir, urlBase string) (*ArtifactStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create audio dir: %w", err)
	}
	return &ArtifactStore{dir: dir, urlBase: strings.TrimRight(urlBase, "/")}, nil
}

// Save writes one audio artifact and returns its public URL.
func (s *ArtifactStore) Save(clientID string, data []byte) (string, error) {
	name := fmt.Sprintf("%d_%s_%s.wav", time.Now().UnixMilli(), sanitizeID(clientID), uuid.NewString()[:8])
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write audio artifact: %w", err)
	}
	return s.urlBase + "/" + name, nil
}

// CleanupClient removes every artifact owned by the given client id.
func (s *ArtifactStore) CleanupClient(clientID string) error {
	marker := "_" + sanitizeID(clientID) + "_"
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("read audio dir: %w", err)
	}
	var firstErr error
	for _, entry := range entries {
		if entry.IsDir() || !strings.Contains(entry.Name(), marker) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, entry.Name())); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Dir returns the backing directory, for static file serving.
func (s *ArtifactStore) Dir() string { return s.dir }

func sanitizeID(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			return r
		default:
			return '-'
		}
	}, id)
}
