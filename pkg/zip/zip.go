// Package zip packs finished assets into a single flat archive.
package zip

import (
	"archive/zip"
	"bytes"
	"fmt"
	"path"
	"time"
)

type Asset struct {
	Filename string
	Data     []byte
	Modified time.Time
}

// ArchiveAssets writes every asset at the archive root under its base name.
// Duplicate names are rejected so no entry silently shadows another.
func ArchiveAssets(assets []Asset) ([]byte, error) {
	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)
	seen := make(map[string]struct{}, len(assets))
	for _, asset := range assets {
		name := path.Base(asset.Filename)
		if name == "." || name == "/" || name == "" {
			_ = zw.Close()
			return nil, fmt.Errorf("zip: invalid entry name %q", asset.Filename)
		}
		if _, dup := seen[name]; dup {
			_ = zw.Close()
			return nil, fmt.Errorf("zip: duplicate entry %q", name)
		}
		seen[name] = struct{}{}

		hdr := &zip.FileHeader{Name: name, Method: zip.Deflate, Modified: asset.Modified}
		w, err := zw.CreateHeader(hdr)
		if err != nil {
			_ = zw.Close()
			return nil, fmt.Errorf("zip: create %s: %w", name, err)
		}
		if _, err := w.Write(asset.Data); err != nil {
			_ = zw.Close()
			return nil, fmt.Errorf("zip: write %s: %w", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("zip: finalize: %w", err)
	}
	return buf.Bytes(), nil
}

// Entries lists the names stored in archive, in order.
func Entries(archive []byte) ([]string, error) {
	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	return names, nil
}
