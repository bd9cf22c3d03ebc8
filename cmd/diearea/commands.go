/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"diearea/internal/config"
	"diearea/internal/def"
	"diearea/internal/history"
	"diearea/internal/preview"
	"diearea/internal/telemetry"
)

type app struct {
	cfg    config.AppConfig
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	log    *slog.Logger
	now    func() time.Time
}

func (a *app) usageError(msg string) int {
	fmt.Fprintln(a.stderr, msg)
	usage(a.stderr)
	return exitUsage
}

// fail reports err on stderr and maps it to an exit code. The missing-statement
// diagnostic is printed alone so flow runners can match it.
func (a *app) fail(err error) int {
	if errors.Is(err, def.ErrNoDieArea) {
		fmt.Fprintln(a.stderr, def.ErrNoDieArea.Error())
		return exitNoDieArea
	}
	fmt.Fprintln(a.stderr, "Error:", err)
	return exitFailure
}

func (a *app) double(in, out string) int {
	started := a.now()
	res, err := def.DoubleFile(in, out)
	a.finish(started, in, out, res, err)
	if err != nil {
		return a.fail(err)
	}
	return exitOK
}

func (a *app) step(design, in, stepDir string) int {
	started := a.now()
	out, res, err := def.DoubleIntoStep(in, stepDir, design)
	a.finish(started, in, out, res, err)
	if err != nil {
		return a.fail(err)
	}
	fmt.Fprintln(a.stdout, out)
	return exitOK
}

// finish records the run in the history (when enabled) and emits the telemetry event.
// Neither may change the outcome of the run.
func (a *app) finish(started time.Time, in, out string, res def.Result, err error) {
	run := history.NewRun(started, in, out, res, err)
	telemetry.Event(telemetry.EventRun, map[string]any{
		"outcome":      string(run.Outcome),
		"replacements": run.Replacements,
		"duration_ms":  a.now().Sub(started).Milliseconds(),
	})
	if !a.cfg.History.Enabled {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	st, oerr := history.Open(ctx, a.cfg)
	if oerr != nil {
		a.log.Warn("history unavailable", slog.Any("err", oerr))
		return
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			a.log.Warn("history close", slog.Any("err", cerr))
		}
	}()
	if _, rerr := st.Record(ctx, run); rerr != nil {
		a.log.Warn("history record failed", slog.Any("err", rerr))
	}
}

func (a *app) inspect(in string) int {
	st, err := def.Inspect(in)
	if err != nil {
		return a.fail(err)
	}
	w := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "line:\t%d\n", st.Line)
	fmt.Fprintf(w, "offset:\t%d\n", st.Offset)
	fmt.Fprintf(w, "literal:\t%s\n", strconv.Quote(st.Literal))
	fmt.Fprintf(w, "lower-left:\t%d %d\n", st.Rect.LX, st.Rect.LY)
	fmt.Fprintf(w, "upper-right:\t%d %d\n", st.Rect.UX, st.Rect.UY)
	fmt.Fprintf(w, "doubled:\t%s\n", def.Double(st.Rect))
	_ = w.Flush()
	return exitOK
}

func (a *app) preview(in, out string) int {
	st, err := def.Inspect(in)
	if err != nil {
		return a.fail(err)
	}
	if err := preview.Render(out, st.Rect, def.Double(st.Rect), preview.Options{Title: in}); err != nil {
		return a.fail(err)
	}
	fmt.Fprintln(a.stdout, out)
	return exitOK
}

// configCmd prints the config file location or writes the effective
// configuration (defaults plus env overrides) there.
func (a *app) configCmd(args []string) int {
	if len(args) == 0 {
		return a.usageError("config requires path or init")
	}
	path, err := config.ConfigPath()
	if err != nil {
		return a.fail(err)
	}
	switch {
	case args[0] == "path" && len(args) == 1:
		fmt.Fprintln(a.stdout, path)
		return exitOK
	case args[0] == "init" && len(args) <= 2:
		force := len(args) == 2 && args[1] == "--force"
		if len(args) == 2 && !force {
			return a.usageError("config init takes only --force")
		}
		if _, err := os.Stat(path); err == nil && !force {
			return a.fail(fmt.Errorf("%s exists; use --force to overwrite", path))
		}
		if err := config.Save(a.cfg, ""); err != nil {
			return a.fail(fmt.Errorf("write config: %w", err))
		}
		a.log.Info("config written", slog.String("path", path))
		fmt.Fprintln(a.stdout, path)
		return exitOK
	}
	return a.usageError("config requires path or init [--force]")
}

func (a *app) history(args []string) int {
	if len(args) > 0 {
		switch args[0] {
		case "set-password":
			line, err := bufio.NewReader(a.stdin).ReadString('\n')
			if err != nil && !errors.Is(err, io.EOF) {
				return a.fail(err)
			}
			if err := config.SetPostgresPassword(line); err != nil {
				return a.fail(err)
			}
			fmt.Fprintln(a.stdout, "password stored")
			return exitOK
		case "forget-password":
			if err := config.ForgetPostgresPassword(); err != nil {
				return a.fail(err)
			}
			return exitOK
		}
	}
	if len(args) > 1 {
		return a.usageError("history takes at most one [limit]")
	}
	limit := 20
	if len(args) == 1 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			return a.usageError("history limit must be a positive integer")
		}
		limit = n
	}
	if !a.cfg.History.Enabled {
		fmt.Fprintf(a.stderr, "history is disabled; set history.enabled in the config or %s=1\n", config.EnvHistory)
		return exitFailure
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	st, err := history.Open(ctx, a.cfg)
	if err != nil {
		return a.fail(err)
	}
	defer func() { _ = st.Close() }()
	runs, err := st.Recent(ctx, limit)
	if err != nil {
		return a.fail(err)
	}

	w := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTARTED\tOUTCOME\tINPUT\tOUTPUT\tDIEAREA")
	for _, r := range runs {
		area := "-"
		if r.After != nil {
			area = strings.TrimPrefix(r.After.String(), "DIEAREA ")
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.StartedAt.Local().Format(time.DateTime), r.Outcome, r.Input, r.Output, area)
	}
	_ = w.Flush()
	return exitOK
}
