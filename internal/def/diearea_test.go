/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package def

import (
	"errors"
	"strings"
	"testing"
)

const sampleDEF = `VERSION 5.8 ;
DIVIDERCHAR "/" ;
BUSBITCHARS "[]" ;
DESIGN spm ;
UNITS DISTANCE MICRONS 1000 ;
DIEAREA ( 0 0 ) ( 1000 2000 ) ;
ROW ROW_0 unithd 5520 10880 FS DO 90 BY 1 STEP 460 0 ;
END DESIGN
`

func TestTransformDoublesUpperRight(t *testing.T) {
	out, res, err := Transform(sampleDEF)
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if !strings.Contains(out, "DIEAREA ( 0 0 ) ( 2000 4000 ) ;") {
		t.Fatalf("doubled statement missing:\n%s", out)
	}
	want := strings.Replace(sampleDEF, "DIEAREA ( 0 0 ) ( 1000 2000 )", "DIEAREA ( 0 0 ) ( 2000 4000 )", 1)
	if out != want {
		t.Fatalf("output differs outside the statement:\n got %q\nwant %q", out, want)
	}
	if !res.Before.Equal(NewRect(0, 0, 1000, 2000)) || !res.After.Equal(NewRect(0, 0, 2000, 4000)) {
		t.Fatalf("unexpected rects: %+v", res)
	}
	if res.Replacements != 1 || res.Line != 6 {
		t.Fatalf("Replacements=%d Line=%d, want 1 and 6", res.Replacements, res.Line)
	}
}

func TestTransformIrregularWhitespace(t *testing.T) {
	cases := []struct{ in, want string }{
		{"DIEAREA(  5   10 )(  15    20 )", "DIEAREA ( 5 10 ) ( 30 40 )"},
		{"DIEAREA\t(\t5\t10\t)\t(\t15\t20\t)", "DIEAREA ( 5 10 ) ( 30 40 )"},
		{"DIEAREA\n( 5\n10 )\r\n( 15 \n 20\n)", "DIEAREA ( 5 10 ) ( 30 40 )"},
		{"DIEAREA ( 007 0010 ) ( 0015 020 )", "DIEAREA ( 7 10 ) ( 30 40 )"},
		{"DIEAREA ( 100 200 ) ( 100 200 )", "DIEAREA ( 100 200 ) ( 200 400 )"},
		{"DIEAREA\v(\v5 10\v)\f( 15\v20 )", "DIEAREA ( 5 10 ) ( 30 40 )"},
	}
	for _, tc := range cases {
		out, _, err := Transform("head\n" + tc.in + " ;\ntail\n")
		if err != nil {
			t.Fatalf("Transform(%q): %v", tc.in, err)
		}
		if out != "head\n"+tc.want+" ;\ntail\n" {
			t.Fatalf("Transform(%q) = %q, want statement %q", tc.in, out, tc.want)
		}
	}
}

func TestTransformNoStatement(t *testing.T) {
	inputs := []string{
		"",
		"VERSION 5.8 ;\nEND DESIGN\n",
		"DIEAREA ( 0 0 ) ( 10 ) ;",
		"DIEAREA ( -5 0 ) ( 10 10 ) ;",
		"diearea ( 0 0 ) ( 10 10 ) ;",
		"DIEAREA ( 0 0 ) ( 1",
	}
	for _, in := range inputs {
		_, _, err := Transform(in)
		if !errors.Is(err, ErrNoDieArea) {
			t.Fatalf("Transform(%q) err = %v, want ErrNoDieArea", in, err)
		}
	}
	if ErrNoDieArea.Error() != "No DIEAREA statement found." {
		t.Fatalf("diagnostic changed: %q", ErrNoDieArea.Error())
	}
}

func TestTransformPassThroughBytes(t *testing.T) {
	prefix := "# comment \xff\xfe with odd bytes\r\n\tindent  \n"
	suffix := "\nPINS 0 ;\r\nEND DESIGN\x00trailer"
	in := prefix + "DIEAREA ( 1 2 ) ( 3 4 )" + suffix
	out, _, err := Transform(in)
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if !strings.HasPrefix(out, prefix) || !strings.HasSuffix(out, suffix) {
		t.Fatalf("surrounding bytes changed: %q", out)
	}
	if out != prefix+"DIEAREA ( 1 2 ) ( 6 8 )"+suffix {
		t.Fatalf("unexpected output %q", out)
	}
}

// Running twice doubles twice: the rewrite has no memory of earlier runs.
func TestTransformIsNotIdempotent(t *testing.T) {
	once, _, err := Transform(sampleDEF)
	if err != nil {
		t.Fatalf("first Transform: %v", err)
	}
	twice, res, err := Transform(once)
	if err != nil {
		t.Fatalf("second Transform: %v", err)
	}
	if !strings.Contains(twice, "DIEAREA ( 0 0 ) ( 4000 8000 )") {
		t.Fatalf("second run should double again:\n%s", twice)
	}
	if !res.Before.Equal(NewRect(0, 0, 2000, 4000)) {
		t.Fatalf("second run read %+v", res.Before)
	}
}

// Every verbatim copy of the matched literal is rewritten; a differently
// spelled second statement is not.
func TestTransformRepeatedLiteral(t *testing.T) {
	in := "A DIEAREA ( 0 0 ) ( 10 20 ) ;\n" +
		"B DIEAREA ( 0 0 ) ( 10 20 ) ;\n" +
		"C DIEAREA ( 0 0 )  ( 10 20 ) ;\n" +
		"D DIEAREA ( 0 0 ) ( 10 20 ) ;\n"
	out, res, err := Transform(in)
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	want := "A DIEAREA ( 0 0 ) ( 20 40 ) ;\n" +
		"B DIEAREA ( 0 0 ) ( 20 40 ) ;\n" +
		"C DIEAREA ( 0 0 )  ( 10 20 ) ;\n" +
		"D DIEAREA ( 0 0 ) ( 20 40 ) ;\n"
	if out != want {
		t.Fatalf("got\n%s\nwant\n%s", out, want)
	}
	if res.Replacements != 3 {
		t.Fatalf("Replacements = %d, want 3", res.Replacements)
	}
}

func TestTransformOnlyFirstStatementParsed(t *testing.T) {
	in := "DIEAREA ( 0 0 ) ( 10 10 ) ;\nDIEAREA ( 0 0 ) ( 99 99 ) ;\n"
	out, res, err := Transform(in)
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if out != "DIEAREA ( 0 0 ) ( 20 20 ) ;\nDIEAREA ( 0 0 ) ( 99 99 ) ;\n" {
		t.Fatalf("unexpected output %q", out)
	}
	if res.Replacements != 1 {
		t.Fatalf("Replacements = %d", res.Replacements)
	}
}

// A replacement equal to a later statement does not cascade.
func TestTransformNoCascade(t *testing.T) {
	in := "DIEAREA ( 0 0 ) ( 5 5 )\nDIEAREA ( 0 0 ) ( 10 10 )\n"
	out, _, err := Transform(in)
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if out != "DIEAREA ( 0 0 ) ( 10 10 )\nDIEAREA ( 0 0 ) ( 10 10 )\n" {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestFindReportsPosition(t *testing.T) {
	st, err := Find(sampleDEF)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if st.Line != 6 {
		t.Fatalf("Line = %d, want 6", st.Line)
	}
	if sampleDEF[st.Offset:st.Offset+len(st.Literal)] != st.Literal {
		t.Fatalf("Offset %d does not point at literal %q", st.Offset, st.Literal)
	}
	if st.Literal != "DIEAREA ( 0 0 ) ( 1000 2000 )" {
		t.Fatalf("Literal = %q", st.Literal)
	}
	if st.Rect.Width().Int64() != 1000 || st.Rect.Height().Int64() != 2000 {
		t.Fatalf("size = %dx%d", st.Rect.Width(), st.Rect.Height())
	}
}

// Coordinates are not limited to machine integers.
func TestTransformBeyondInt64(t *testing.T) {
	cases := []struct{ in, want string }{
		{"DIEAREA ( 0 0 ) ( 5000000000000000000 1 )", "DIEAREA ( 0 0 ) ( 10000000000000000000 2 )"},
		{"DIEAREA ( 99999999999999999999 7 ) ( 99999999999999999999 1 )",
			"DIEAREA ( 99999999999999999999 7 ) ( 199999999999999999998 2 )"},
	}
	for _, tc := range cases {
		out, res, err := Transform(tc.in + " ;")
		if err != nil {
			t.Fatalf("Transform(%q): %v", tc.in, err)
		}
		if out != tc.want+" ;" {
			t.Fatalf("Transform(%q) = %q, want %q", tc.in, out, tc.want)
		}
		if _, ok := res.After.Int64(); ok {
			t.Fatalf("%s should not fit in int64", res.After)
		}
	}
}

func TestDoubleDoesNotAlias(t *testing.T) {
	r := NewRect(3, 4, 5, 6)
	d := Double(r)
	if !d.Equal(NewRect(3, 4, 10, 12)) {
		t.Fatalf("Double = %s", d)
	}
	d.LX.SetInt64(99)
	if r.LX.Int64() != 3 {
		t.Fatalf("Double shares the lower-left corner with its input")
	}
	if v, ok := d.Int64(); !ok || v != [4]int64{99, 4, 10, 12} {
		t.Fatalf("Int64 = %v, %v", v, ok)
	}
}

func TestRectString(t *testing.T) {
	if s := NewRect(1, 2, 3, 4).String(); s != "DIEAREA ( 1 2 ) ( 3 4 )" {
		t.Fatalf("String() = %q", s)
	}
	if s := (Rect{}).String(); s != "DIEAREA ( 0 0 ) ( 0 0 )" {
		t.Fatalf("zero String() = %q", s)
	}
}
