package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

var ErrLibraryDisabled = errors.New("photo library is not configured")

type LibraryPhoto struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
}

// PhotoLibrary is the business's own photo collection.
type PhotoLibrary interface {
	RecentPhotos(ctx context.Context, limit int) ([]LibraryPhoto, error)
}

// DriveService serves the library from one Google Drive folder.
type DriveService struct {
	files    *drive.Service
	folderID string
}

func NewDriveService(ctx context.Context, credentialsFile, folderID string) (*DriveService, error) {
	srv, err := drive.NewService(ctx,
		option.WithCredentialsFile(credentialsFile),
		option.WithScopes(drive.DriveReadonlyScope),
	)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return &DriveService{files: srv, folderID: folderID}, nil
}

// NewDriveServiceWithClient talks to endpoint through client without Google auth (tests).
func NewDriveServiceWithClient(ctx context.Context, endpoint string, client *http.Client, folderID string) (*DriveService, error) {
	srv, err := drive.NewService(ctx, option.WithEndpoint(endpoint), option.WithHTTPClient(client))
	if err != nil {
		return nil, err
	}
	return &DriveService{files: srv, folderID: folderID}, nil
}

func (d *DriveService) RecentPhotos(ctx context.Context, limit int) ([]LibraryPhoto, error) {
	if d == nil || d.files == nil {
		return nil, ErrLibraryDisabled
	}
	if limit <= 0 {
		limit = 10
	}

	q := fmt.Sprintf("'%s' in parents and trashed = false and mimeType contains 'image/'", d.folderID)
	list, err := d.files.Files.List().
		Q(q).
		Fields("files(id,name,description,mimeType,modifiedTime)").
		OrderBy("modifiedTime desc").
		PageSize(int64(limit)).
		Context(ctx).
		Do()
	if err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("list drive photos: %w", err)
	}

	photos := make([]LibraryPhoto, 0, len(list.Files))
	for _, f := range list.Files {
		photos = append(photos, LibraryPhoto{
			ID:          f.Id,
			Name:        f.Name,
			URL:         "https://drive.google.com/uc?export=view&id=" + f.Id,
			Description: f.Description,
		})
	}
	return photos, nil
}
