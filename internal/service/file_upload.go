package service

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/noah-isme/portal-estudiante-api/internal/dto"
	appErrors "github.com/noah-isme/portal-estudiante-api/pkg/errors"
	"github.com/noah-isme/portal-estudiante-api/pkg/storage"
)

// UploadPolicy bounds what the portal accepts as a document or support file.
type UploadPolicy struct {
	MaxFileSize  int64
	AllowedMIMEs []string
}

var defaultUploadMIMEs = []string{"application/pdf", "image/jpeg", "image/png"}

func (p UploadPolicy) withDefaults() UploadPolicy {
	if p.MaxFileSize <= 0 {
		p.MaxFileSize = 10 * 1024 * 1024
	}
	if len(p.AllowedMIMEs) == 0 {
		p.AllowedMIMEs = defaultUploadMIMEs
	}
	return p
}

// inspect checks size and sniffs the content type, leaving the reader rewound.
func (p UploadPolicy) inspect(upload dto.FileUpload) (string, error) {
	if upload.Content == nil || upload.Size <= 0 {
		return "", appErrors.Clone(appErrors.ErrValidation, "file is required")
	}
	if upload.Size > p.MaxFileSize {
		return "", appErrors.Clone(appErrors.ErrPayloadTooLarge, fmt.Sprintf("file exceeds %d bytes limit", p.MaxFileSize))
	}
	detected, err := mimetype.DetectReader(upload.Content)
	if err != nil {
		return "", appErrors.Internal(err, "failed to inspect file")
	}
	if _, err := upload.Content.Seek(0, io.SeekStart); err != nil {
		return "", appErrors.Internal(err, "failed to reset upload stream")
	}
	for _, allowed := range p.AllowedMIMEs {
		if detected.Is(strings.TrimSpace(allowed)) {
			return strings.ToLower(strings.TrimSpace(allowed)), nil
		}
	}
	return "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file type %s is not allowed", detected.String()))
}

func objectName(prefix, userID, original, mimeType string) string {
	ext := strings.ToLower(filepath.Ext(original))
	if ext == "" {
		if known := mimetype.Lookup(mimeType); known != nil {
			ext = known.Extension()
		}
	}
	if ext == "" {
		ext = ".bin"
	}
	return fmt.Sprintf("%s/%s/%s_%s%s", sanitize(prefix), sanitize(userID), sanitize(strings.TrimSuffix(filepath.Base(original), filepath.Ext(original))), randomSuffix(), ext)
}

// ObjectStores routes reads to the backend recorded on each row while new
// uploads go to the primary backend.
type ObjectStores struct {
	primary storage.ObjectStore
	byName  map[string]storage.ObjectStore
}

// NewObjectStores registers primary plus any legacy backends.
func NewObjectStores(primary storage.ObjectStore, others ...storage.ObjectStore) *ObjectStores {
	set := &ObjectStores{primary: primary, byName: map[string]storage.ObjectStore{}}
	for _, store := range append([]storage.ObjectStore{primary}, others...) {
		if store != nil {
			if _, exists := set.byName[store.Provider()]; !exists {
				set.byName[store.Provider()] = store
			}
		}
	}
	return set
}

// Primary returns the backend receiving new uploads.
func (s *ObjectStores) Primary() storage.ObjectStore {
	return s.primary
}

// For returns the backend named provider.
func (s *ObjectStores) For(provider string) (storage.ObjectStore, error) {
	store, ok := s.byName[provider]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrStorage, fmt.Sprintf("storage backend %q is not configured", provider))
	}
	return store, nil
}

func (s *ObjectStores) upload(ctx context.Context, upload dto.FileUpload, name, mimeType string) (*storage.Object, error) {
	if s == nil || s.primary == nil {
		return nil, appErrors.Clone(appErrors.ErrStorage, "storage backend is not configured")
	}
	obj, err := s.primary.Upload(ctx, upload.Content, name, mimeType)
	if err != nil {
		return nil, appErrors.Storage(err, "failed to store file")
	}
	if obj.SizeBytes == 0 {
		obj.SizeBytes = upload.Size
	}
	return obj, nil
}
