package domain

import (
	"path/filepath"
	"strings"
)

// MediaKind is the declared kind of an uploaded file.
type MediaKind string

const (
	MediaKindRaster  MediaKind = "raster"
	MediaKindVector  MediaKind = "vector"
	MediaKindUnknown MediaKind = "unknown"
)

// FormatJPEG is the canonical raster format tag.
const FormatJPEG = "image/jpeg"

// SourceItem is one uploaded file as received. Index is its position in the
// run input and is the only ordering key used downstream.
type SourceItem struct {
	Index    int
	Filename string
	Data     []byte
	Kind     MediaKind
	Size     int64
}

// NewSourceItem builds a SourceItem and infers its media kind from the
// filename extension.
func NewSourceItem(index int, filename string, data []byte) SourceItem {
	return SourceItem{
		Index:    index,
		Filename: filepath.Base(filename),
		Data:     data,
		Kind:     KindFromFilename(filename),
		Size:     int64(len(data)),
	}
}

// KindFromFilename maps an upload name to its declared media kind.
func KindFromFilename(name string) MediaKind {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".png", ".gif", ".bmp", ".tif", ".tiff", ".webp":
		return MediaKindRaster
	case ".svg":
		return MediaKindVector
	default:
		return MediaKindUnknown
	}
}

// NormalizedAsset is the canonical raster form of a SourceItem.
type NormalizedAsset struct {
	Source SourceItem
	Data   []byte
	Width  int
	Height int
	Format string
}

// ProcessedAsset is a normalized asset with metadata embedded and its final
// output name.
type ProcessedAsset struct {
	Index      int
	Source     string
	OutputName string
	Record     MetadataRecord
	Data       []byte
}
