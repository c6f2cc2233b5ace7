package normalize

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"

	"metapro/internal/domain"
)

type vectorConverter struct {
	width      int
	height     int
	background color.Color
}

func (v *vectorConverter) Capability() Capability { return CapabilityVectorRasterize }

func (v *vectorConverter) Convert(ctx context.Context, item domain.SourceItem) (domain.NormalizedAsset, error) {
	icon, err := oksvg.ReadIconStream(bytes.NewReader(item.Data), oksvg.IgnoreErrorMode)
	if err != nil {
		return domain.NormalizedAsset{}, fmt.Errorf("%w: parse svg %s: %v", domain.ErrUnsupportedFormat, item.Filename, err)
	}
	w, h := v.targetSize(icon.ViewBox.W, icon.ViewBox.H)
	icon.SetTarget(0, 0, float64(w), float64(h))

	canvas := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(canvas, canvas.Bounds(), &image.Uniform{v.background}, image.Point{}, draw.Src)
	scanner := rasterx.NewScannerGV(w, h, canvas, canvas.Bounds())
	icon.Draw(rasterx.NewDasher(w, h, scanner), 1)

	data, err := encodeOpaque(canvas, v.background)
	if err != nil {
		return domain.NormalizedAsset{}, err
	}
	return domain.NormalizedAsset{
		Source: item,
		Data:   data,
		Width:  w,
		Height: h,
		Format: domain.FormatJPEG,
	}, nil
}

// targetSize keeps the view box aspect ratio unless both dimensions are fixed.
func (v *vectorConverter) targetSize(vbW, vbH float64) (int, int) {
	w := v.width
	if v.height > 0 {
		return w, v.height
	}
	if vbW <= 0 || vbH <= 0 {
		return w, w
	}
	h := int(math.Round(float64(w) * vbH / vbW))
	if h < 1 {
		h = 1
	}
	return w, h
}
