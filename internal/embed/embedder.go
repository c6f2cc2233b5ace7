// Package embed writes generated metadata into finished assets and gives
// them their final, unique filenames.
package embed

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"metapro/internal/domain"
	"metapro/internal/infra"
)

const outputExt = ".jpg"

// Embedder materializes assets in a destination directory.
type Embedder struct {
	dir    string
	writer MetadataWriter
	namer  *Namer
	logger *infra.Logger
}

func NewEmbedder(dir string, writer MetadataWriter, logger *infra.Logger) (*Embedder, error) {
	if dir == "" {
		return nil, errors.New("embed: destination directory is required")
	}
	if writer == nil {
		return nil, errors.New("embed: metadata writer is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("embed: ensure destination: %w", err)
	}
	return &Embedder{dir: dir, writer: writer, namer: NewNamer(dir), logger: infra.OrDiscard(logger)}, nil
}

// Dir returns the destination directory.
func (e *Embedder) Dir() string { return e.dir }

// Embed writes asset under a name derived from rec.Title, replaces its
// metadata with rec and returns the final bytes. Errors wrap
// domain.ErrEmbedFailure and leave nothing behind in the destination.
func (e *Embedder) Embed(ctx context.Context, asset domain.NormalizedAsset, rec domain.MetadataRecord) (domain.ProcessedAsset, error) {
	name, err := e.namer.Reserve(stemFor(rec.Title, asset.Source.Filename), outputExt)
	if err != nil {
		return domain.ProcessedAsset{}, fmt.Errorf("%w: reserve name: %v", domain.ErrEmbedFailure, err)
	}
	path := filepath.Join(e.dir, name)

	data, err := e.write(ctx, path, asset.Data, rec)
	if err != nil {
		_ = os.Remove(path)
		e.namer.Release(name)
		e.logger.Warn().Err(err).Int("index", asset.Source.Index).Str("file", asset.Source.Filename).Msg("embed failed")
		return domain.ProcessedAsset{}, fmt.Errorf("%w: %s: %v", domain.ErrEmbedFailure, asset.Source.Filename, err)
	}

	e.logger.Debug().Int("index", asset.Source.Index).Str("source", asset.Source.Filename).Str("output", name).Msg("asset embedded")
	return domain.ProcessedAsset{
		Index:      asset.Source.Index,
		Source:     asset.Source.Filename,
		OutputName: name,
		Record:     rec,
		Data:       data,
	}, nil
}

func (e *Embedder) write(ctx context.Context, path string, data []byte, rec domain.MetadataRecord) ([]byte, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return nil, err
	}
	if err := f.Close(); err != nil {
		return nil, err
	}
	if err := e.writer.Write(ctx, path, rec); err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}
