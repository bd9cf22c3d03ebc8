/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package preview draws the die boundary before and after doubling so a
// change can be eyeballed without opening a layout viewer.
//
// The output format follows the file extension: .pdf (vector, gofpdf),
// .png (raster, labels via x/image basicfont) or .svg.
package preview

import (
	"errors"
	"fmt"
	"image/color"
	"math/big"
	"path/filepath"
	"strings"

	"diearea/internal/def"
)

// ErrDegenerate is returned when the rectangles span no area to scale into the canvas.
var ErrDegenerate = errors.New("preview: die area has zero width or height")

// Options controls the canvas. Zero values select defaults.
// Size is the square canvas edge in points (PDF, SVG) or pixels (PNG).
type Options struct {
	Size        float64
	Margin      float64
	BeforeColor color.RGBA
	AfterColor  color.RGBA
	Title       string
}

func (o Options) withDefaults() Options {
	if o.Size <= 0 {
		o.Size = 512
	}
	if o.Margin <= 0 || o.Margin*2 >= o.Size {
		o.Margin = o.Size / 10
	}
	if o.BeforeColor == (color.RGBA{}) {
		o.BeforeColor = color.RGBA{R: 40, G: 90, B: 160, A: 255}
	}
	if o.AfterColor == (color.RGBA{}) {
		o.AfterColor = color.RGBA{R: 200, G: 40, B: 40, A: 255}
	}
	if o.Title == "" {
		o.Title = "DIEAREA"
	}
	return o
}

// Render writes a preview of before and after to path.
func Render(path string, before, after def.Rect, opt Options) error {
	opt = opt.withDefaults()
	f, err := newFrame(opt, before, after)
	if err != nil {
		return err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return renderPDF(path, f, before, after, opt)
	case ".png":
		return renderPNG(path, f, before, after, opt)
	case ".svg":
		return renderSVG(path, f, before, after, opt)
	default:
		return fmt.Errorf("preview: unsupported format %q (want .pdf, .png or .svg)", filepath.Ext(path))
	}
}

// box is a rectangle in canvas coordinates (origin top-left, y down).
type box struct{ X, Y, W, H float64 }

// frame maps DEF coordinates (y up) onto the canvas with a uniform scale.
// Offsets are taken in exact arithmetic before converting to float64.
type frame struct {
	minX, minY *big.Int
	scale      float64
	size       float64
	margin     float64
}

func newFrame(opt Options, rs ...def.Rect) (frame, error) {
	var minX, minY, maxX, maxY *big.Int
	for _, r := range rs {
		x0, x1 := order(r.LX, r.UX)
		y0, y1 := order(r.LY, r.UY)
		if minX == nil {
			minX, maxX, minY, maxY = x0, x1, y0, y1
			continue
		}
		minX, _ = order(minX, x0)
		_, maxX = order(maxX, x1)
		minY, _ = order(minY, y0)
		_, maxY = order(maxY, y1)
	}
	w, h := span(minX, maxX), span(minY, maxY)
	if w <= 0 || h <= 0 {
		return frame{}, ErrDegenerate
	}
	inner := opt.Size - 2*opt.Margin
	return frame{
		minX:   minX,
		minY:   minY,
		scale:  min(inner/w, inner/h),
		size:   opt.Size,
		margin: opt.Margin,
	}, nil
}

func (f frame) box(r def.Rect) box {
	x0, x1 := order(r.LX, r.UX)
	y0, y1 := order(r.LY, r.UY)
	return box{
		X: f.margin + span(f.minX, x0)*f.scale,
		Y: f.size - f.margin - span(f.minY, y1)*f.scale,
		W: span(x0, x1) * f.scale,
		H: span(y0, y1) * f.scale,
	}
}

// order returns a and b ascending; nil reads as zero.
func order(a, b *big.Int) (*big.Int, *big.Int) {
	if a == nil {
		a = new(big.Int)
	}
	if b == nil {
		b = new(big.Int)
	}
	if a.Cmp(b) > 0 {
		return b, a
	}
	return a, b
}

// span is b-a as a float64.
func span(a, b *big.Int) float64 {
	f, _ := new(big.Float).SetInt(new(big.Int).Sub(b, a)).Float64()
	return f
}

func labels(before, after def.Rect) (string, string) {
	return "before: " + before.String(), "after:  " + after.String()
}
