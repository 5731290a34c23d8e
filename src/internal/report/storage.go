package report

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/url"
)

// Storage persists rendered documents.
type Storage interface {
	Save(ctx context.Context, name string, content []byte) (string, error)
}

// URLStorage writes documents to any afs-addressable location. A plain path is treated
// as a local file path; mem:// and other registered schemes work the same way.
type URLStorage struct {
	BaseURL string
	fs      afs.Service
}

func NewURLStorage(baseURL string) *URLStorage {
	return &URLStorage{BaseURL: baseURL, fs: afs.New()}
}

// Location resolves a document name against the base URL. Names that already carry
// a scheme or an absolute path are used as given.
func (s *URLStorage) Location(name string) string {
	if strings.Contains(name, "://") || strings.HasPrefix(name, "/") || s.BaseURL == "" {
		return url.Normalize(name, file.Scheme)
	}
	return url.Join(url.Normalize(s.BaseURL, file.Scheme), name)
}

func (s *URLStorage) Save(ctx context.Context, name string, content []byte) (string, error) {
	location := s.Location(name)
	if err := s.fs.Upload(ctx, location, 0644, bytes.NewReader(content)); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", location, err)
	}
	return location, nil
}

// Load reads a previously saved document.
func (s *URLStorage) Load(ctx context.Context, name string) ([]byte, error) {
	location := s.Location(name)
	data, err := s.fs.DownloadWithURL(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", location, err)
	}
	return data, nil
}

// SanitizeFilenameComponent maps s to a string safe to use in file names.
func SanitizeFilenameComponent(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "unknown"
	}

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if (r >= 'a' && r <= 'z') ||
			(r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') ||
			r == '.' || r == '_' || r == '-' {
			b.WriteRune(r)
			continue
		}
		b.WriteByte('_')
	}
	out := strings.Trim(b.String(), "._-")
	if out == "" {
		return "unknown"
	}
	return out
}
