/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package preview

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"os"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"diearea/internal/def"
)

// renderPNG rasterizes the preview; one canvas unit is one pixel.
func renderPNG(path string, f frame, before, after def.Rect, opt Options) error {
	n := int(math.Ceil(opt.Size))
	img := image.NewRGBA(image.Rect(0, 0, n, n))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)

	strokeBox(img, f.box(before), opt.BeforeColor, 2, 0)
	strokeBox(img, f.box(after), opt.AfterColor, 1, 4)

	lb, la := labels(before, after)
	y := int(f.margin / 2)
	drawLabel(img, int(f.margin), y-2, lb, opt.BeforeColor)
	drawLabel(img, int(f.margin), y+12, la, opt.AfterColor)

	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create png: %w", err)
	}
	if err := png.Encode(out, img); err != nil {
		_ = out.Close()
		return fmt.Errorf("encode png: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close png: %w", err)
	}
	return nil
}

// strokeBox draws a border of the given width. A dash > 0 leaves gaps of that many pixels.
func strokeBox(img *image.RGBA, b box, col color.RGBA, width, dash int) {
	x0, y0 := int(math.Round(b.X)), int(math.Round(b.Y))
	x1, y1 := int(math.Round(b.X+b.W)), int(math.Round(b.Y+b.H))
	on := func(i int) bool { return dash <= 0 || (i/dash)%2 == 0 }
	for w := 0; w < width; w++ {
		for x := x0; x <= x1; x++ {
			if on(x - x0) {
				img.SetRGBA(x, y0+w, col)
				img.SetRGBA(x, y1-w, col)
			}
		}
		for y := y0; y <= y1; y++ {
			if on(y - y0) {
				img.SetRGBA(x0+w, y, col)
				img.SetRGBA(x1-w, y, col)
			}
		}
	}
}

func drawLabel(img *image.RGBA, x, y int, s string, col color.RGBA) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(col),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}
