// Package blob stores attachment files received with vendor messages.
package blob

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"
)

// Store persists attachment content and returns the path it was saved to.
type Store interface {
	Save(content []byte, suggestedName string) (string, error)
}

// FSStore writes attachments to a directory on the local filesystem.
type FSStore struct {
	dir string
}

// NewFSStore creates the attachment directory if needed.
func NewFSStore(dir string) (*FSStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating attachment dir %s: %w", dir, err)
	}
	return &FSStore{dir: dir}, nil
}

// unsafeChars matches everything that is not allowed in a stored filename.
var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// Save writes the content under a timestamped, sanitized version of the
// suggested name so concurrent saves of identically named attachments
// never collide.
func (s *FSStore) Save(content []byte, suggestedName string) (string, error) {
	name := unsafeChars.ReplaceAllString(filepath.Base(suggestedName), "_")
	if name == "" || name == "." {
		name = "attachment"
	}

	path := filepath.Join(s.dir, fmt.Sprintf("%d-%s", time.Now().UnixNano(), name))
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return "", fmt.Errorf("saving attachment %s: %w", name, err)
	}

	return path, nil
}
