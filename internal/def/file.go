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
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	applog "diearea/internal/log"
)

// DefExt is the file extension of DEF layouts.
const DefExt = ".def"

// DoubleFile reads inPath, doubles its die area and writes the result to outPath,
// creating or truncating it. On ErrNoDieArea the output file is not touched.
// Failures are logged at info level only; the caller reports the returned error.
func DoubleFile(inPath, outPath string) (Result, error) {
	l := applog.WithOperation(applog.WithComponent("def"), "double").With(
		slog.String("in", inPath),
		slog.String("out", outPath),
	)
	data, err := os.ReadFile(inPath)
	if err != nil {
		l.Info("read input failed", slog.Any("err", err))
		return Result{}, fmt.Errorf("read input: %w", err)
	}
	text, res, err := Transform(string(data))
	if err != nil {
		if errors.Is(err, ErrNoDieArea) {
			l.Info("no DIEAREA statement", slog.Int("bytes", len(data)))
		} else {
			l.Info("transform failed", slog.Any("err", err))
		}
		return Result{}, err
	}
	if res.Replacements > 1 {
		l.Info("DIEAREA literal repeated; every copy rewritten",
			slog.Int("count", res.Replacements),
			slog.String("literal", res.Literal))
	}
	if err := writeFileSync(outPath, []byte(text)); err != nil {
		l.Info("write output failed", slog.Any("err", err))
		return Result{}, fmt.Errorf("write output: %w", err)
	}
	l.Info("die area doubled",
		slog.Int("line", res.Line),
		slog.String("before", res.Before.String()),
		slog.String("after", res.After.String()))
	return res, nil
}

// Inspect reads path and returns its first DIEAREA statement.
func Inspect(path string) (Statement, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Statement{}, fmt.Errorf("read input: %w", err)
	}
	return Find(string(data))
}

// StepOutputPath returns the output location a flow step uses for a design:
// <stepDir>/<designName>.def.
func StepOutputPath(stepDir, designName string) (string, error) {
	name := strings.TrimSpace(designName)
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("invalid design name %q", designName)
	}
	return filepath.Join(stepDir, name+DefExt), nil
}

// DoubleIntoStep runs DoubleFile with the output placed in stepDir, which is
// created when missing. It returns the output path.
func DoubleIntoStep(inPath, stepDir, designName string) (string, Result, error) {
	out, err := StepOutputPath(stepDir, designName)
	if err != nil {
		return "", Result{}, err
	}
	if err := os.MkdirAll(stepDir, 0o755); err != nil {
		return "", Result{}, fmt.Errorf("create step dir: %w", err)
	}
	res, err := DoubleFile(inPath, out)
	if err != nil {
		return "", Result{}, err
	}
	return out, res, nil
}

// writeFileSync writes data to path and flushes it when path is a regular file.
func writeFileSync(path string, data []byte) (err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	if _, err := f.Write(data); err != nil {
		return err
	}
	if fi, err := f.Stat(); err == nil && fi.Mode().IsRegular() {
		return f.Sync()
	}
	return nil
}
