// Package hash decodes image files and turns them into fingerprints and metadata.
package hash

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/corona10/goimagehash"
	"github.com/disintegration/imaging"
	"github.com/rwcarlsen/goexif/exif"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"imagedupes/internal/fingerprint"
	"imagedupes/internal/models"
)

// Hasher decodes images and computes their fingerprints
type Hasher struct {
	hashSize int
	kind     fingerprint.Kind
}

// Option configures a Hasher
type Option func(*Hasher)

// WithHashSize sets the grid side length used by the average hash
func WithHashSize(n int) Option {
	return func(h *Hasher) {
		if fingerprint.ValidateHashSize(n) == nil {
			h.hashSize = n
		}
	}
}

// WithKind selects the fingerprint algorithm
func WithKind(k fingerprint.Kind) Option {
	return func(h *Hasher) {
		if k != "" {
			h.kind = k
		}
	}
}

// NewHasher creates a new Hasher
func NewHasher(opts ...Option) *Hasher {
	h := &Hasher{
		hashSize: fingerprint.DefaultHashSize,
		kind:     fingerprint.KindAverage,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HashSize returns the configured grid side length
func (h *Hasher) HashSize() int {
	return h.hashSize
}

// Kind returns the configured fingerprint algorithm
func (h *Hasher) Kind() fingerprint.Kind {
	return h.kind
}

// ParseKind converts a flag value to a fingerprint kind.
func ParseKind(s string) (fingerprint.Kind, error) {
	switch fingerprint.Kind(s) {
	case fingerprint.KindAverage, fingerprint.KindPerceptual:
		return fingerprint.Kind(s), nil
	case "":
		return fingerprint.KindAverage, nil
	default:
		return "", fmt.Errorf("unknown hash algorithm %q (want average or perceptual)", s)
	}
}

// HashImage decodes an image, computes its fingerprint and extracts metadata
func (h *Hasher) HashImage(path string) (*models.ImageInfo, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	img, format, err := decode(file)
	if err != nil {
		return nil, err
	}

	fp, err := h.Fingerprint(img)
	if err != nil {
		return nil, fmt.Errorf("failed to compute hash: %w", err)
	}

	bounds := img.Bounds()
	info := &models.ImageInfo{
		Path:        path,
		Fingerprint: fp,
		Width:       bounds.Dx(),
		Height:      bounds.Dy(),
		Format:      strings.ToLower(format),
		FileSize:    stat.Size(),
		ModTime:     stat.ModTime(),
		HasExif:     checkExif(path),
	}
	info.Score = h.CalculateScore(info)

	return info, nil
}

// HashImageContext runs HashImage but gives up when ctx is done. The decode
// itself cannot be interrupted and finishes in the background.
func (h *Hasher) HashImageContext(ctx context.Context, path string) (*models.ImageInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	type result struct {
		info *models.ImageInfo
		err  error
	}
	done := make(chan result, 1)

	go func() {
		info, err := h.HashImage(path)
		done <- result{info, err}
	}()

	select {
	case r := <-done:
		return r.info, r.err
	case <-ctx.Done():
		return nil, fmt.Errorf("hashing %s: %w", path, ctx.Err())
	}
}

// decode reads the format from the header, then decodes the image with its
// EXIF orientation applied.
func decode(r io.ReadSeeker) (image.Image, string, error) {
	_, format, err := image.DecodeConfig(r)
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode image: %w", err)
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, "", fmt.Errorf("failed to rewind file: %w", err)
	}

	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode image: %w", err)
	}
	return img, format, nil
}

// Fingerprint computes the configured fingerprint of a decoded image
func (h *Hasher) Fingerprint(img image.Image) (fingerprint.Fingerprint, error) {
	if h.kind == fingerprint.KindPerceptual {
		ph, err := goimagehash.PerceptionHash(img)
		if err != nil {
			return fingerprint.Fingerprint{}, err
		}
		return fingerprint.Fingerprint{
			Bits:     ph.GetHash(),
			HashSize: fingerprint.DefaultHashSize,
			Kind:     fingerprint.KindPerceptual,
		}, nil
	}

	return fingerprint.Extract(GridFromImage(img, h.hashSize))
}

// GridFromImage resizes img to exactly size x size with a Lanczos filter,
// ignoring aspect ratio, and desaturates it. An empty image yields a grid
// without samples, which Extract rejects.
func GridFromImage(img image.Image, size int) fingerprint.Grid {
	if size < 1 || img.Bounds().Empty() {
		return fingerprint.Grid{Size: size}
	}
	grid := fingerprint.NewGrid(size)

	small := imaging.Grayscale(imaging.Resize(img, size, size, imaging.Lanczos))
	for y := 0; y < size; y++ {
		row := small.Pix[y*small.Stride:]
		for x := 0; x < size; x++ {
			// r == g == b after Grayscale
			grid.Pix[y*size+x] = row[x*4]
		}
	}
	return grid
}

// checkExif checks if an image file contains EXIF data
func checkExif(path string) bool {
	file, err := os.Open(path)
	if err != nil {
		return false
	}
	defer file.Close()

	_, err = exif.Decode(file)
	return err == nil
}

// CalculateScore computes the quality score for an image
func (h *Hasher) CalculateScore(info *models.ImageInfo) float64 {
	resolution := float64(info.Width * info.Height)
	formatMultiplier := models.FormatQualityMultiplier(info.Format)
	metadataMultiplier := models.MetadataMultiplier(info.HasExif)

	return resolution * formatMultiplier * metadataMultiplier
}

// IsSupportedImage checks if a file has a decodable image extension
func IsSupportedImage(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp", ".bmp", ".tiff", ".tif":
		return true
	default:
		return false
	}
}
