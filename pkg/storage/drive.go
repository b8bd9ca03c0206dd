package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const driveFileFields = "id, name, mimeType, size, webViewLink, createdTime"

// DriveStorage keeps binaries inside a Google Drive folder.
type DriveStorage struct {
	service  *drive.Service
	folderID string
}

// DriveCredentials selects how the Drive client authenticates.
type DriveCredentials struct {
	File string
	JSON string
}

// ClientOptions converts credentials into Google API client options.
func (c DriveCredentials) ClientOptions() []option.ClientOption {
	opts := []option.ClientOption{option.WithScopes(drive.DriveScope)}
	switch {
	case c.JSON != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(c.JSON)))
	case c.File != "":
		opts = append(opts, option.WithCredentialsFile(c.File))
	}
	return opts
}

// NewDriveStorage builds a Drive backed object store rooted at folderID.
func NewDriveStorage(ctx context.Context, folderID string, opts ...option.ClientOption) (*DriveStorage, error) {
	if folderID == "" {
		return nil, errors.New("drive folder id is required")
	}
	svc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create drive client: %w", err)
	}
	return &DriveStorage{service: svc, folderID: folderID}, nil
}

// Provider implements ObjectStore.
func (s *DriveStorage) Provider() string { return ProviderDrive }

// Upload streams the reader into a new Drive file under the configured folder.
func (s *DriveStorage) Upload(ctx context.Context, r io.Reader, filename, mimeType string) (*Object, error) {
	meta := &drive.File{
		Name:     filename,
		Parents:  []string{s.folderID},
		MimeType: mimeType,
	}
	file, err := s.service.Files.Create(meta).
		Media(r, googleapi.ContentType(mimeType)).
		Fields(driveFileFields).
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("upload to drive: %w", err)
	}
	return objectFromDrive(file), nil
}

// Get downloads the file content. Callers must close the returned reader.
func (s *DriveStorage) Get(ctx context.Context, id string) (io.ReadCloser, error) {
	resp, err := s.service.Files.Get(id).SupportsAllDrives(true).Context(ctx).Download()
	if err != nil {
		if isDriveNotFound(err) {
			return nil, fmt.Errorf("download %s: %w", id, ErrObjectNotFound)
		}
		return nil, fmt.Errorf("download from drive: %w", err)
	}
	return resp.Body, nil
}

// Delete removes the file. Missing files are not an error.
func (s *DriveStorage) Delete(ctx context.Context, id string) error {
	err := s.service.Files.Delete(id).SupportsAllDrives(true).Context(ctx).Do()
	if err != nil && !isDriveNotFound(err) {
		return fmt.Errorf("delete from drive: %w", err)
	}
	return nil
}

// List pages through every non-trashed file in the folder.
func (s *DriveStorage) List(ctx context.Context) ([]Object, error) {
	query := fmt.Sprintf("'%s' in parents and trashed=false", s.folderID)
	objects := make([]Object, 0)
	err := s.service.Files.List().
		Q(query).
		Fields(googleapi.Field("nextPageToken, files(" + driveFileFields + ")")).
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true).
		Pages(ctx, func(page *drive.FileList) error {
			for _, f := range page.Files {
				objects = append(objects, *objectFromDrive(f))
			}
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("list drive folder: %w", err)
	}
	return objects, nil
}

func objectFromDrive(f *drive.File) *Object {
	obj := &Object{
		ID:          f.Id,
		Name:        f.Name,
		MimeType:    f.MimeType,
		SizeBytes:   f.Size,
		WebViewLink: f.WebViewLink,
	}
	if f.CreatedTime != "" {
		if ts, err := time.Parse(time.RFC3339, f.CreatedTime); err == nil {
			obj.CreatedAt = ts.UTC()
		}
	}
	return obj
}

func isDriveNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}
