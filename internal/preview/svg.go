/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package preview

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"image/color"
	"os"

	"diearea/internal/def"
)

func renderSVG(path string, f frame, before, after def.Rect, opt Options) error {
	var buf bytes.Buffer
	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	fmt.Fprintf(&buf, `<svg xmlns="http://www.w3.org/2000/svg" width="%.0f" height="%.0f" viewBox="0 0 %.2f %.2f">`+"\n",
		opt.Size, opt.Size, opt.Size, opt.Size)
	buf.WriteString("<title>")
	_ = xml.EscapeText(&buf, []byte(opt.Title))
	buf.WriteString("</title>\n")
	fmt.Fprintf(&buf, `<rect x="0" y="0" width="%.2f" height="%.2f" fill="#ffffff"/>`+"\n", opt.Size, opt.Size)

	b := f.box(before)
	fmt.Fprintf(&buf, `<rect id="before" x="%.2f" y="%.2f" width="%.2f" height="%.2f" fill="none" stroke="%s" stroke-width="1.5"/>`+"\n",
		b.X, b.Y, b.W, b.H, hex(opt.BeforeColor))
	a := f.box(after)
	fmt.Fprintf(&buf, `<rect id="after" x="%.2f" y="%.2f" width="%.2f" height="%.2f" fill="none" stroke="%s" stroke-width="1" stroke-dasharray="4 3"/>`+"\n",
		a.X, a.Y, a.W, a.H, hex(opt.AfterColor))

	lb, la := labels(before, after)
	y := f.margin / 2
	writeText(&buf, f.margin, y-6, lb, opt.BeforeColor)
	writeText(&buf, f.margin, y+6, la, opt.AfterColor)
	buf.WriteString("</svg>\n")

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write svg: %w", err)
	}
	return nil
}

func writeText(buf *bytes.Buffer, x, y float64, s string, col color.RGBA) {
	fmt.Fprintf(buf, `<text x="%.2f" y="%.2f" font-family="Helvetica, Arial, sans-serif" font-size="9" fill="%s" xml:space="preserve">`, x, y, hex(col))
	_ = xml.EscapeText(buf, []byte(s))
	buf.WriteString("</text>\n")
}

func hex(c color.RGBA) string { return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B) }
