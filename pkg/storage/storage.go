package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// Provider names persisted alongside document rows.
const (
	ProviderLocal = "local"
	ProviderDrive = "drive"
)

// ErrObjectNotFound is returned when the referenced object does not exist.
var ErrObjectNotFound = errors.New("storage object not found")

// Object describes a stored binary.
type Object struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	MimeType    string    `json:"mimeType"`
	SizeBytes   int64     `json:"sizeBytes"`
	WebViewLink string    `json:"webViewLink,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ObjectStore is the external file service documents and supports delegate bytes to.
type ObjectStore interface {
	Provider() string
	Upload(ctx context.Context, r io.Reader, filename, mimeType string) (*Object, error)
	Get(ctx context.Context, id string) (io.ReadCloser, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]Object, error)
}
