/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package def rewrites the DIEAREA statement of a DEF (Design Exchange Format) file.
//
// The transformation is deliberately narrow: the first statement matching
// `DIEAREA ( lx ly ) ( ux uy )` is parsed, its upper-right corner is doubled
// and the exact text of that match is replaced wherever it occurs verbatim.
// Everything else in the file passes through byte for byte.
package def

import (
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strings"
)

// ErrNoDieArea is returned when the input holds no DIEAREA statement.
// Its text is the diagnostic the CLI prints verbatim.
var ErrNoDieArea = errors.New("No DIEAREA statement found.") //nolint:staticcheck // printed verbatim

// sp is DEF whitespace. RE2's \s leaves out the vertical tab, so the class is spelled out.
const sp = `[\t\n\v\f\r ]`

var dieAreaRx = regexp.MustCompile(`DIEAREA` + sp + `*\(` + sp + `*(\d+)` + sp + `+(\d+)` + sp + `*\)` +
	sp + `*\(` + sp + `*(\d+)` + sp + `+(\d+)` + sp + `*\)`)

// Rect is a die boundary in DEF database units. (LX, LY) is the lower-left
// corner and (UX, UY) the upper-right one. Coordinates have no upper bound;
// a nil coordinate reads as zero.
type Rect struct {
	LX, LY, UX, UY *big.Int
}

// NewRect builds a Rect from machine integers.
func NewRect(lx, ly, ux, uy int64) Rect {
	return Rect{LX: big.NewInt(lx), LY: big.NewInt(ly), UX: big.NewInt(ux), UY: big.NewInt(uy)}
}

// String renders r as a space-normalized DIEAREA statement.
func (r Rect) String() string {
	return fmt.Sprintf("DIEAREA ( %s %s ) ( %s %s )", coord(r.LX), coord(r.LY), coord(r.UX), coord(r.UY))
}

// Equal reports whether r and o describe the same corners.
func (r Rect) Equal(o Rect) bool {
	return coord(r.LX).Cmp(coord(o.LX)) == 0 && coord(r.LY).Cmp(coord(o.LY)) == 0 &&
		coord(r.UX).Cmp(coord(o.UX)) == 0 && coord(r.UY).Cmp(coord(o.UY)) == 0
}

// Width and Height are signed; a malformed statement may have UX < LX.
func (r Rect) Width() *big.Int  { return new(big.Int).Sub(coord(r.UX), coord(r.LX)) }
func (r Rect) Height() *big.Int { return new(big.Int).Sub(coord(r.UY), coord(r.LY)) }

// Int64 returns the corners as machine integers; ok is false when any of
// them does not fit.
func (r Rect) Int64() (v [4]int64, ok bool) {
	for i, n := range []*big.Int{coord(r.LX), coord(r.LY), coord(r.UX), coord(r.UY)} {
		if !n.IsInt64() {
			return [4]int64{}, false
		}
		v[i] = n.Int64()
	}
	return v, true
}

var zero = new(big.Int)

func coord(n *big.Int) *big.Int {
	if n == nil {
		return zero
	}
	return n
}

// Statement is the first DIEAREA match found in a text.
type Statement struct {
	Literal string // exact matched text, original whitespace included
	Offset  int    // byte offset of Literal
	Line    int    // 1-based line of Offset
	Rect    Rect
}

// Find locates and parses the first DIEAREA statement in text.
func Find(text string) (Statement, error) {
	loc := dieAreaRx.FindStringSubmatchIndex(text)
	if loc == nil {
		return Statement{}, ErrNoDieArea
	}
	var v [4]*big.Int
	for i := range v {
		s := text[loc[2+2*i]:loc[3+2*i]]
		n, ok := new(big.Int).SetString(s, 10)
		if !ok {
			return Statement{}, fmt.Errorf("DIEAREA coordinate %q is not a decimal integer", s)
		}
		v[i] = n
	}
	return Statement{
		Literal: text[loc[0]:loc[1]],
		Offset:  loc[0],
		Line:    strings.Count(text[:loc[0]], "\n") + 1,
		Rect:    Rect{LX: v[0], LY: v[1], UX: v[2], UY: v[3]},
	}, nil
}

// Double returns a copy of r with its upper-right corner multiplied by two.
// The lower-left corner is left untouched.
func Double(r Rect) Rect {
	return Rect{
		LX: new(big.Int).Set(coord(r.LX)),
		LY: new(big.Int).Set(coord(r.LY)),
		UX: new(big.Int).Lsh(coord(r.UX), 1),
		UY: new(big.Int).Lsh(coord(r.UY), 1),
	}
}

// Result describes a completed transformation.
type Result struct {
	Before       Rect
	After        Rect
	Literal      string
	Replacement  string
	Replacements int // verbatim occurrences of Literal that were rewritten
	Line         int
}

// Transform doubles the die area of the first DIEAREA statement in text.
//
// The matched literal is replaced at every position where it appears
// verbatim, not only at the first match. Duplicated blocks that repeat the
// statement character for character are therefore all rewritten, while a
// second statement with different spacing or numbers is left alone.
func Transform(text string) (string, Result, error) {
	st, err := Find(text)
	if err != nil {
		return "", Result{}, err
	}
	after := Double(st.Rect)
	res := Result{
		Before:       st.Rect,
		After:        after,
		Literal:      st.Literal,
		Replacement:  after.String(),
		Replacements: strings.Count(text, st.Literal),
		Line:         st.Line,
	}
	return strings.ReplaceAll(text, st.Literal, res.Replacement), res, nil
}
