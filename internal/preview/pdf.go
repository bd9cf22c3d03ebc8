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
	"image/color"

	"github.com/jung-kurt/gofpdf"

	"diearea/internal/def"
	"diearea/internal/version"
)

// renderPDF draws both rectangles as vector strokes on a single square page in points.
func renderPDF(path string, f frame, before, after def.Rect, opt Options) error {
	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		UnitStr: "pt",
		Size:    gofpdf.SizeType{Wd: opt.Size, Ht: opt.Size},
	})
	pdf.SetTitle(opt.Title, false)
	pdf.SetCreator("diearea "+version.String(), false)
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()

	b := f.box(before)
	setDrawColor(pdf, opt.BeforeColor)
	pdf.SetLineWidth(1.5)
	pdf.Rect(b.X, b.Y, b.W, b.H, "D")

	a := f.box(after)
	setDrawColor(pdf, opt.AfterColor)
	pdf.SetLineWidth(1)
	pdf.SetDashPattern([]float64{4, 3}, 0)
	pdf.Rect(a.X, a.Y, a.W, a.H, "D")
	pdf.SetDashPattern([]float64{}, 0)

	lb, la := labels(before, after)
	pdf.SetFont("Helvetica", "", 9)
	y := f.margin / 2
	pdf.SetTextColor(int(opt.BeforeColor.R), int(opt.BeforeColor.G), int(opt.BeforeColor.B))
	pdf.Text(f.margin, y-6, lb)
	pdf.SetTextColor(int(opt.AfterColor.R), int(opt.AfterColor.G), int(opt.AfterColor.B))
	pdf.Text(f.margin, y+6, la)

	if err := pdf.OutputFileAndClose(path); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

func setDrawColor(pdf *gofpdf.Fpdf, c color.RGBA) {
	pdf.SetDrawColor(int(c.R), int(c.G), int(c.B))
}
