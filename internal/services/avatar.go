package services

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"math"
	"path"
	"path/filepath"
	"strings"

	"github.com/inkwell-blog/inkwell/internal/storage"
	"github.com/inkwell-blog/inkwell/types"
	"golang.org/x/image/draw"
)

const (
	// ProfilePicsPrefix is the object key prefix for avatars.
	ProfilePicsPrefix = "profile_pics"

	avatarMaxSide     = 125
	avatarNameBytes   = 8
	avatarJPEGQuality = 90
	defaultAvatarMax  = 5 << 20

	// MaxAvatarPixels bounds the decoded size of an upload. Compressed
	// images can declare far more pixels than their byte size suggests.
	MaxAvatarPixels = 25_000_000
)

var avatarContentTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
}

// ObjectStore is the subset of object storage the avatar service needs.
type ObjectStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	ReadAll(ctx context.Context, key string, limit int64) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// AvatarUpload is a profile picture submitted with the account form.
type AvatarUpload struct {
	Filename string
	Data     []byte
}

// AvatarService resizes and stores profile pictures.
type AvatarService struct {
	store    ObjectStore
	maxBytes int64
	random   io.Reader
}

func NewAvatarService(store ObjectStore, maxBytes int64) *AvatarService {
	if maxBytes <= 0 {
		maxBytes = defaultAvatarMax
	}
	return &AvatarService{store: store, maxBytes: maxBytes, random: rand.Reader}
}

// MaxBytes is the largest upload Save accepts.
func (s *AvatarService) MaxBytes() int64 {
	return s.maxBytes
}

// Save decodes the upload, shrinks it to fit 125x125 and stores it under a
// random 16 hex character name that keeps the original extension. It
// returns the new image file name.
func (s *AvatarService) Save(ctx context.Context, upload AvatarUpload) (string, error) {
	ext := filepath.Ext(upload.Filename)
	contentType, ok := avatarContentTypes[strings.ToLower(ext)]
	if !ok {
		return "", newValidationError("picture", "File does not have an approved extension: jpg, png")
	}
	if len(upload.Data) == 0 {
		return "", newValidationError("picture", "Picture is empty.")
	}
	if int64(len(upload.Data)) > s.maxBytes {
		return "", newValidationError("picture", fmt.Sprintf("Picture must be smaller than %d bytes.", s.maxBytes))
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(upload.Data))
	if err != nil {
		return "", newValidationError("picture", "Picture could not be read as an image.")
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > MaxAvatarPixels {
		return "", newValidationError("picture", fmt.Sprintf("Picture must be at most %d pixels.", MaxAvatarPixels))
	}

	src, _, err := image.Decode(bytes.NewReader(upload.Data))
	if err != nil {
		return "", newValidationError("picture", "Picture could not be read as an image.")
	}

	var buf bytes.Buffer
	thumb := Thumbnail(src, avatarMaxSide, avatarMaxSide)
	switch contentType {
	case "image/png":
		err = png.Encode(&buf, thumb)
	default:
		err = jpeg.Encode(&buf, thumb, &jpeg.Options{Quality: avatarJPEGQuality})
	}
	if err != nil {
		return "", fmt.Errorf("encode avatar: %w", err)
	}

	name, err := s.randomName(ext)
	if err != nil {
		return "", err
	}
	if err := s.store.Put(ctx, AvatarKey(name), &buf, int64(buf.Len()), contentType); err != nil {
		return "", fmt.Errorf("store avatar: %w", err)
	}
	return name, nil
}

// Open returns the stored bytes and media type of an avatar.
func (s *AvatarService) Open(ctx context.Context, name string) ([]byte, string, error) {
	contentType, ok := avatarContentTypes[strings.ToLower(path.Ext(name))]
	if !ok || !validAvatarName(name) {
		return nil, "", ErrNotFound
	}

	data, err := s.store.ReadAll(ctx, AvatarKey(name), s.maxBytes)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, "", ErrNotFound
		}
		return nil, "", err
	}
	return data, contentType, nil
}

// Delete removes a stored avatar. The shared default image is never removed.
func (s *AvatarService) Delete(ctx context.Context, name string) error {
	if name == "" || name == types.DefaultImageFile || !validAvatarName(name) {
		return nil
	}
	return s.store.Delete(ctx, AvatarKey(name))
}

// AvatarKey maps an image file name to its object key.
func AvatarKey(name string) string {
	return path.Join(ProfilePicsPrefix, name)
}

func validAvatarName(name string) bool {
	return name != "" && path.Base(name) == name && !strings.ContainsAny(name, `/\`) && !strings.HasPrefix(name, ".")
}

func (s *AvatarService) randomName(ext string) (string, error) {
	buf := make([]byte, avatarNameBytes)
	if _, err := io.ReadFull(s.random, buf); err != nil {
		return "", fmt.Errorf("generate avatar name: %w", err)
	}
	return hex.EncodeToString(buf) + ext, nil
}

// Thumbnail shrinks src to fit within maxW x maxH keeping its aspect ratio.
// Images that already fit are returned unchanged.
func Thumbnail(src image.Image, maxW, maxH int) image.Image {
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= maxW && h <= maxH {
		return src
	}

	scale := math.Min(float64(maxW)/float64(w), float64(maxH)/float64(h))
	nw := min(maxW, max(1, int(math.Round(float64(w)*scale))))
	nh := min(maxH, max(1, int(math.Round(float64(h)*scale))))

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Src, nil)
	return dst
}
