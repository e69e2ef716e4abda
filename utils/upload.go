package utils

import (
	"errors"
	"fmt"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

var (
	ErrUploadTooLarge  = errors.New("file is too large")
	ErrUnsupportedType = errors.New("only jpeg, png, gif and webp images are allowed")
)

var imageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// ImageUpload stores images on local disk under a public URL prefix.
type ImageUpload struct {
	Dir          string
	PublicPrefix string
	MaxBytes     int64
}

// Save validates and writes the file, returning its public URL.
func (u ImageUpload) Save(c *fiber.Ctx, file *multipart.FileHeader) (string, error) {
	if u.MaxBytes > 0 && file.Size > u.MaxBytes {
		return "", ErrUploadTooLarge
	}

	contentType := strings.ToLower(strings.TrimSpace(strings.Split(file.Header.Get("Content-Type"), ";")[0]))
	ext, ok := imageExtensions[contentType]
	if !ok {
		return "", ErrUnsupportedType
	}

	if err := os.MkdirAll(u.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}

	name := uuid.NewString() + ext
	if err := c.SaveFile(file, filepath.Join(u.Dir, name)); err != nil {
		return "", fmt.Errorf("save upload: %w", err)
	}
	return u.PublicPrefix + "/" + name, nil
}

// Remove deletes a previously stored file given its public URL. Foreign URLs are ignored.
func (u ImageUpload) Remove(publicURL string) {
	if !strings.HasPrefix(publicURL, u.PublicPrefix+"/") {
		return
	}
	name := filepath.Base(strings.TrimPrefix(publicURL, u.PublicPrefix+"/"))
	_ = os.Remove(filepath.Join(u.Dir, name))
}
