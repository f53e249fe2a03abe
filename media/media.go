// Package media uploads profile images to Cloudinary.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"

	"marketplace/config"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
)

var ErrNotConfigured = errors.New("media storage is not configured")

// Uploader stores an image under publicID and returns its public URL.
type Uploader interface {
	UploadImage(ctx context.Context, file io.Reader, publicID string) (string, error)
}

type Cloudinary struct {
	cld    *cloudinary.Cloudinary
	folder string
}

// NewCloudinary returns nil when no CLOUDINARY_URL is configured.
func NewCloudinary(cfg config.MediaConfig) (*Cloudinary, error) {
	if cfg.CloudinaryURL == "" {
		return nil, nil
	}
	cld, err := cloudinary.NewFromURL(cfg.CloudinaryURL)
	if err != nil {
		return nil, fmt.Errorf("cloudinary config: %w", err)
	}
	return &Cloudinary{cld: cld, folder: cfg.Folder}, nil
}

func (c *Cloudinary) UploadImage(ctx context.Context, file io.Reader, publicID string) (string, error) {
	overwrite := true
	res, err := c.cld.Upload.Upload(ctx, file, uploader.UploadParams{
		Folder:         c.folder,
		PublicID:       publicID,
		Overwrite:      &overwrite,
		Transformation: "c_limit,w_400,h_400,q_auto",
	})
	if err != nil {
		return "", fmt.Errorf("cloudinary upload: %w", err)
	}
	if res.Error.Message != "" {
		return "", fmt.Errorf("cloudinary upload: %s", res.Error.Message)
	}
	return res.SecureURL, nil
}
