package models

import (
	"time"

	"imagedupes/internal/fingerprint"
)

// ImageInfo holds metadata and the fingerprint for an image
type ImageInfo struct {
	ID          int64                   `json:"id"`
	Path        string                  `json:"path"`
	Fingerprint fingerprint.Fingerprint `json:"-"`
	Width       int                     `json:"width"`
	Height      int                     `json:"height"`
	Format      string                  `json:"format"`
	FileSize    int64                   `json:"file_size"`
	ModTime     time.Time               `json:"mod_time"`
	HasExif     bool                    `json:"has_exif"`
	Score       float64                 `json:"score"`
	GroupID     int                     `json:"group_id,omitempty"`
	Position    int                     `json:"position"` // index inside its cluster, 0 = seed
}

// DuplicateGroup represents a cluster of similar images
type DuplicateGroup struct {
	ID     int          `json:"id"`
	Images []*ImageInfo `json:"images"` // cluster order, seed first
	Keep   *ImageInfo   `json:"keep"`
	Remove []*ImageInfo `json:"remove"`
}

// ScanResult holds the result of a folder scan
type ScanResult struct {
	ScanID          string            `json:"scan_id"`
	TotalScanned    int               `json:"total_scanned"`
	TotalSkipped    int               `json:"total_skipped"`
	TotalGroups     int               `json:"total_groups"`
	TotalDuplicates int               `json:"total_duplicates"`
	Groups          []*DuplicateGroup `json:"groups"`
}

// FormatQualityMultiplier returns quality multiplier for image format
func FormatQualityMultiplier(format string) float64 {
	switch format {
	case "png", "tiff", "bmp":
		return 1.2 // Lossless formats
	case "webp":
		return 1.1
	case "jpeg", "jpg":
		return 1.0
	case "gif":
		return 0.9 // Limited colors
	default:
		return 1.0
	}
}

// MetadataMultiplier returns quality multiplier based on metadata presence
func MetadataMultiplier(hasExif bool) float64 {
	if hasExif {
		return 1.1
	}
	return 1.0
}
