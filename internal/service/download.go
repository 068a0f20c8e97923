package service

import (
	"context"
	"errors"
	"io"

	"github.com/open-craft/sga-api/internal/storage"
)

// Download is a stored file opened for streaming to the client.
type Download struct {
	Content  io.ReadCloser
	Filename string
	Mimetype string
}

func openBlob(ctx context.Context, store storage.Store, path, filename, mimetype, supportEmail string, staffFacing bool) (Download, error) {
	content, err := store.Open(ctx, path)
	if err != nil {
		if errors.Is(err, storage.ErrNotExist) {
			return Download{}, BlobNotFoundError{
				Filename:     filename,
				Path:         path,
				StaffFacing:  staffFacing,
				SupportEmail: supportEmail,
			}
		}
		return Download{}, err
	}

	return Download{Content: content, Filename: filename, Mimetype: mimetype}, nil
}
