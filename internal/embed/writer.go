package embed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/barasher/go-exiftool"

	"metapro/internal/domain"
)

// MetadataWriter replaces the metadata of the file at path with rec.
type MetadataWriter interface {
	Write(ctx context.Context, path string, rec domain.MetadataRecord) error
}

// ExiftoolWriter drives a long-lived exiftool process. Existing tags are
// wiped before the new ones are written.
type ExiftoolWriter struct {
	mu sync.Mutex
	et *exiftool.Exiftool
}

// NewExiftoolWriter starts exiftool, from binaryPath when set or from PATH.
func NewExiftoolWriter(binaryPath string) (*ExiftoolWriter, error) {
	opts := []func(*exiftool.Exiftool) error{exiftool.ClearFieldsBeforeWriting()}
	if binaryPath != "" {
		opts = append(opts, exiftool.SetExiftoolBinaryPath(binaryPath))
	}
	et, err := exiftool.NewExiftool(opts...)
	if err != nil {
		return nil, fmt.Errorf("start exiftool: %w", err)
	}
	return &ExiftoolWriter{et: et}, nil
}

func (w *ExiftoolWriter) Write(ctx context.Context, path string, rec domain.MetadataRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	files := []exiftool.FileMetadata{fileMetadata(path, rec)}
	w.et.WriteMetadata(files)
	if files[0].Err != nil {
		return fmt.Errorf("exiftool: write %s: %w", path, files[0].Err)
	}
	return nil
}

// fileMetadata carries only the tags to write; the writer's -All= clears
// everything else.
func fileMetadata(path string, rec domain.MetadataRecord) exiftool.FileMetadata {
	fm := exiftool.EmptyFileMetadata()
	fm.File = path
	fm.SetString("Title", rec.Title)
	fm.SetString("ObjectName", rec.Title)
	fm.SetString("Headline", rec.Title)
	fm.SetStrings("Keywords", rec.Keywords)
	fm.SetStrings("Subject", rec.Keywords)
	if rec.Category != "" {
		fm.SetString("Category", rec.Category)
	}
	if rec.Releases != "" {
		fm.SetString("ModelReleaseID", rec.Releases)
	}
	return fm
}

func (w *ExiftoolWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.et.Close()
}

// SidecarWriter strips embedded metadata segments from the JPEG and writes
// the record to a .txt file next to it.
type SidecarWriter struct{}

func (SidecarWriter) Write(ctx context.Context, path string, rec domain.MetadataRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	stripped, err := StripJPEGMetadata(data)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, stripped, 0o644); err != nil {
		return err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Title: %s\n", rec.Title)
	fmt.Fprintf(&b, "Keywords: %s\n", strings.Join(rec.Keywords, ","))
	if rec.Category != "" {
		fmt.Fprintf(&b, "Category: %s\n", rec.Category)
	}
	if rec.Releases != "" {
		fmt.Fprintf(&b, "Releases: %s\n", rec.Releases)
	}
	return os.WriteFile(SidecarPath(path), []byte(b.String()), 0o644)
}

// SidecarPath returns the .txt path paired with an image path.
func SidecarPath(path string) string {
	if i := strings.LastIndexByte(path, '.'); i > strings.LastIndexAny(path, `/\`) {
		return path[:i] + ".txt"
	}
	return path + ".txt"
}

// StripJPEGMetadata drops APP1..APP15 and COM segments, keeping APP0 (JFIF)
// and everything from the first non-metadata segment on.
func StripJPEGMetadata(data []byte) ([]byte, error) {
	if len(data) < 4 || data[0] != 0xFF || data[1] != 0xD8 {
		return nil, errors.New("not a jpeg stream")
	}
	var out bytes.Buffer
	out.Grow(len(data))
	out.Write(data[:2])
	pos := 2
	for pos+4 <= len(data) {
		if data[pos] != 0xFF {
			return nil, errors.New("malformed jpeg segment")
		}
		marker := data[pos+1]
		if marker == 0xFF {
			pos++
			continue
		}
		isMeta := (marker >= 0xE1 && marker <= 0xEF) || marker == 0xFE
		if !isMeta && marker != 0xE0 {
			break
		}
		length := int(data[pos+2])<<8 | int(data[pos+3])
		end := pos + 2 + length
		if length < 2 || end > len(data) {
			return nil, errors.New("truncated jpeg segment")
		}
		if !isMeta {
			out.Write(data[pos:end])
		}
		pos = end
	}
	out.Write(data[pos:])
	return out.Bytes(), nil
}
