// Package normalize turns uploaded raster and vector files into the single
// canonical raster form (opaque JPEG) used for description and embedding.
package normalize

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"os"

	// Registered decoders for the accepted raster encodings.
	_ "image/gif"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"metapro/internal/domain"
	"metapro/internal/infra"
)

// Capability names one conversion the normalizer can perform.
type Capability string

const (
	CapabilityRasterDecode    Capability = "raster-decode"
	CapabilityVectorRasterize Capability = "vector-rasterize"
)

const (
	defaultVectorWidth = 2048
	canonicalQuality   = 100
)

// Converter produces a NormalizedAsset from one SourceItem.
type Converter interface {
	Capability() Capability
	Convert(ctx context.Context, item domain.SourceItem) (domain.NormalizedAsset, error)
}

// Options controls how the normalizer is configured.
type Options struct {
	VectorWidth  int
	VectorHeight int
	Background   color.Color
	Logger       *infra.Logger
}

// Normalizer selects a converter by declared media kind.
type Normalizer struct {
	converters map[domain.MediaKind]Converter
	logger     *infra.Logger
}

// New builds a Normalizer with the raster-decode and vector-rasterize
// capabilities.
func New(opts Options) *Normalizer {
	bg := opts.Background
	if bg == nil {
		bg = color.White
	}
	width := opts.VectorWidth
	if width <= 0 {
		width = defaultVectorWidth
	}
	return &Normalizer{
		converters: map[domain.MediaKind]Converter{
			domain.MediaKindRaster: &rasterConverter{background: bg},
			domain.MediaKindVector: &vectorConverter{width: width, height: opts.VectorHeight, background: bg},
		},
		logger: infra.OrDiscard(opts.Logger),
	}
}

// Capabilities lists what this normalizer can convert.
func (n *Normalizer) Capabilities() []Capability {
	out := make([]Capability, 0, len(n.converters))
	for _, kind := range []domain.MediaKind{domain.MediaKindRaster, domain.MediaKindVector} {
		if c, ok := n.converters[kind]; ok {
			out = append(out, c.Capability())
		}
	}
	return out
}

// Normalize converts item into the canonical raster form.
func (n *Normalizer) Normalize(ctx context.Context, item domain.SourceItem) (domain.NormalizedAsset, error) {
	if err := ctx.Err(); err != nil {
		return domain.NormalizedAsset{}, err
	}
	conv, ok := n.converters[item.Kind]
	if !ok {
		return domain.NormalizedAsset{}, fmt.Errorf("%w: %s has media kind %q", domain.ErrUnsupportedFormat, item.Filename, item.Kind)
	}
	asset, err := conv.Convert(ctx, item)
	if err != nil {
		return domain.NormalizedAsset{}, err
	}
	n.logger.Debug().
		Str("filename", item.Filename).
		Str("capability", string(conv.Capability())).
		Int("width", asset.Width).
		Int("height", asset.Height).
		Msg("normalize: asset ready")
	return asset, nil
}

// Materialize writes the asset to a temporary file under dir. The caller owns
// the file and must call release once done with it.
func Materialize(dir string, asset domain.NormalizedAsset) (path string, release func(), err error) {
	f, err := os.CreateTemp(dir, "metapro-*.jpg")
	if err != nil {
		return "", nil, fmt.Errorf("create temp file: %w", err)
	}
	name := f.Name()
	release = func() { _ = os.Remove(name) }
	if _, err := f.Write(asset.Data); err != nil {
		_ = f.Close()
		release()
		return "", nil, fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		release()
		return "", nil, fmt.Errorf("close temp file: %w", err)
	}
	return name, release, nil
}

type rasterConverter struct {
	background color.Color
}

func (r *rasterConverter) Capability() Capability { return CapabilityRasterDecode }

func (r *rasterConverter) Convert(ctx context.Context, item domain.SourceItem) (domain.NormalizedAsset, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(item.Data))
	if err != nil {
		return domain.NormalizedAsset{}, fmt.Errorf("%w: %s: %v", domain.ErrUnsupportedFormat, item.Filename, err)
	}
	if format == "jpeg" {
		return domain.NormalizedAsset{
			Source: item,
			Data:   item.Data,
			Width:  cfg.Width,
			Height: cfg.Height,
			Format: domain.FormatJPEG,
		}, nil
	}
	img, _, err := image.Decode(bytes.NewReader(item.Data))
	if err != nil {
		return domain.NormalizedAsset{}, fmt.Errorf("%w: decode %s: %v", domain.ErrUnsupportedFormat, item.Filename, err)
	}
	data, err := encodeOpaque(img, r.background)
	if err != nil {
		return domain.NormalizedAsset{}, err
	}
	b := img.Bounds()
	return domain.NormalizedAsset{
		Source: item,
		Data:   data,
		Width:  b.Dx(),
		Height: b.Dy(),
		Format: domain.FormatJPEG,
	}, nil
}

// encodeOpaque flattens img onto bg and encodes it as maximum quality JPEG.
func encodeOpaque(img image.Image, bg color.Color) ([]byte, error) {
	b := img.Bounds()
	canvas := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(canvas, canvas.Bounds(), &image.Uniform{bg}, image.Point{}, draw.Src)
	draw.Draw(canvas, canvas.Bounds(), img, b.Min, draw.Over)
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, canvas, &jpeg.Options{Quality: canonicalQuality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
