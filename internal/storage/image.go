// Package storage keeps uploaded post images on local disk.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	_ "image/png"  // Register PNG decoder
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"pulsefeed/internal/config"
	"pulsefeed/internal/models"

	"github.com/chai2010/webp"
	"github.com/google/uuid"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // Register WebP decoder
)

const (
	DefaultUploadDir       = "images"
	DefaultMaxUploadSizeMB = 10
	DefaultMaxDimension    = 2048
	WebPQuality            = 75

	// PublicPrefix is the URL prefix image references are served under.
	PublicPrefix = "images"
)

// ErrInvalidReference is returned for references outside the image directory.
var ErrInvalidReference = errors.New("invalid image reference")

// ImageStore normalizes uploads to WebP and stores them under a flat directory.
type ImageStore struct {
	dir          string
	maxBytes     int64
	maxDimension int
}

// NewImageStore builds a store from config, falling back to defaults.
func NewImageStore(cfg *config.Config) *ImageStore {
	dir := DefaultUploadDir
	maxMB := DefaultMaxUploadSizeMB
	maxDim := DefaultMaxDimension
	if cfg != nil {
		if cfg.ImageUploadDir != "" {
			dir = cfg.ImageUploadDir
		}
		if cfg.ImageMaxUploadSizeMB > 0 {
			maxMB = cfg.ImageMaxUploadSizeMB
		}
		if cfg.ImageMaxDimension > 0 {
			maxDim = cfg.ImageMaxDimension
		}
	}
	return &ImageStore{
		dir:          dir,
		maxBytes:     int64(maxMB) * 1024 * 1024,
		maxDimension: maxDim,
	}
}

// Dir returns the directory files are written to.
func (s *ImageStore) Dir() string { return s.dir }

// Save validates and re-encodes content, returning the public reference
// ("images/<uuid>.webp").
func (s *ImageStore) Save(ctx context.Context, content []byte) (string, error) {
	if len(content) == 0 {
		return "", models.NewValidationError("No image provided.")
	}
	if int64(len(content)) > s.maxBytes {
		return "", models.NewValidationError(fmt.Sprintf("File too large (max %dMB)", s.maxBytes/(1024*1024)))
	}
	if !isAllowedImageMIME(http.DetectContentType(content)) {
		return "", models.NewValidationError("Invalid image type")
	}

	decoded, _, err := image.Decode(bytes.NewReader(content))
	if err != nil {
		return "", models.NewValidationError("Invalid image file")
	}
	if err := ctx.Err(); err != nil {
		return "", models.NewInternalError(err)
	}

	resized := resizeToFit(decoded, s.maxDimension, s.maxDimension)
	buf := bytes.NewBuffer(nil)
	if err := webp.Encode(buf, resized, &webp.Options{Quality: WebPQuality}); err != nil {
		return "", models.NewInternalError(err)
	}

	name := uuid.NewString() + ".webp"
	if err := writeBytesToFile(filepath.Join(s.dir, name), buf.Bytes()); err != nil {
		return "", models.NewInternalError(err)
	}
	return path.Join(PublicPrefix, name), nil
}

// Delete removes the file behind ref. A file that is already gone is not an error.
func (s *ImageStore) Delete(_ context.Context, ref string) error {
	name, err := s.fileName(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Exists reports whether ref points at a stored file.
func (s *ImageStore) Exists(ref string) bool {
	name, err := s.fileName(ref)
	if err != nil {
		return false
	}
	_, err = os.Stat(filepath.Join(s.dir, name))
	return err == nil
}

func (s *ImageStore) fileName(ref string) (string, error) {
	ref = strings.TrimPrefix(strings.TrimSpace(ref), "/")
	name, ok := strings.CutPrefix(ref, PublicPrefix+"/")
	if !ok || name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", ErrInvalidReference
	}
	return name, nil
}

func resizeToFit(src image.Image, maxWidth, maxHeight int) image.Image {
	bounds := src.Bounds()
	w := bounds.Dx()
	h := bounds.Dy()
	if w <= 0 || h <= 0 {
		return src
	}
	if w <= maxWidth && h <= maxHeight {
		return src
	}

	scale := float64(maxWidth) / float64(w)
	if scaleH := float64(maxHeight) / float64(h); scaleH < scale {
		scale = scaleH
	}
	newW := max(int(float64(w)*scale), 1)
	newH := max(int(float64(h)*scale), 1)

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, xdraw.Over, nil)
	return dst
}

func isAllowedImageMIME(contentType string) bool {
	switch contentType {
	case "image/jpeg", "image/png", "image/gif", "image/webp":
		return true
	default:
		return false
	}
}

func writeBytesToFile(p string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		return err
	}
	return os.WriteFile(p, data, 0o600)
}
