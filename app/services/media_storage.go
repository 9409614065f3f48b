package services

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/chatrasa/chatrasa/config"
	"github.com/google/uuid"
)

// MediaStorage persists downloaded inbound media and returns the URL the
// stored copy is served from
type MediaStorage interface {
	Store(vendorID uint, data []byte, mimeType string) (string, error)
}

// LocalMediaStorage implements MediaStorage on the local filesystem,
// sharded per vendor
type LocalMediaStorage struct {
	config *config.StorageConfig
}

// NewLocalMediaStorage creates a new local media storage
func NewLocalMediaStorage(cfg *config.StorageConfig) MediaStorage {
	return &LocalMediaStorage{config: cfg}
}

// Store writes the media bytes under a fresh name and returns its public URL
func (s *LocalMediaStorage) Store(vendorID uint, data []byte, mimeType string) (string, error) {
	dir := filepath.Join(s.config.MediaDir, fmt.Sprintf("vendor_%d", vendorID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create media directory: %w", err)
	}

	name := uuid.New().String() + extensionForMime(mimeType)
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write media file: %w", err)
	}

	if s.config.MediaPublicURL != "" {
		return fmt.Sprintf("%s/vendor_%d/%s", strings.TrimSuffix(s.config.MediaPublicURL, "/"), vendorID, name), nil
	}
	return path, nil
}

func extensionForMime(mimeType string) string {
	switch mimeType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	case "audio/ogg":
		return ".ogg"
	case "video/mp4":
		return ".mp4"
	case "application/pdf":
		return ".pdf"
	default:
		return ".bin"
	}
}

// MockMediaStorage implements MediaStorage for testing
type MockMediaStorage struct {
	mu     sync.Mutex
	Stored []MockStoredMedia
}

// MockStoredMedia records one stored media blob
type MockStoredMedia struct {
	VendorID uint
	Data     []byte
	MimeType string
	URL      string
}

// NewMockMediaStorage creates a new mock media storage
func NewMockMediaStorage() *MockMediaStorage {
	return &MockMediaStorage{Stored: make([]MockStoredMedia, 0)}
}

// Store records the media and returns a synthetic URL
func (m *MockMediaStorage) Store(vendorID uint, data []byte, mimeType string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	url := fmt.Sprintf("mock://media/%d/%d", vendorID, len(m.Stored))
	m.Stored = append(m.Stored, MockStoredMedia{VendorID: vendorID, Data: data, MimeType: mimeType, URL: url})
	return url, nil
}
