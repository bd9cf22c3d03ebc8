/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Command diearea doubles the upper-right corner of the DIEAREA statement in a DEF file.
//
//	diearea <input.def> <output.def>
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"diearea/internal/config"
	"diearea/internal/crash"
	applog "diearea/internal/log"
	"diearea/internal/telemetry"
	"diearea/internal/version"
)

// Exit codes. exitNoDieArea is what a shell reports for exit(-1).
const (
	exitOK        = 0
	exitFailure   = 1
	exitUsage     = 2
	exitNoDieArea = 255
)

func main() {
	os.Exit(runMain())
}

func runMain() int {
	defer crash.Recover("", os.Args)

	cfg, cfgErr := config.Load()

	tc := telemetry.New(telemetry.FromEnv(cfg.Telemetry.OptIn))
	telemetry.Install(tc)
	defer tc.Close()

	code := run(cfg, cfgErr, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	tc.Flush(ctx)
	return code
}

func usage(w io.Writer) {
	fmt.Fprintf(w, "diearea %s: double the upper-right corner of a DEF DIEAREA statement\n", version.String())
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  diearea <input.def> <output.def>             Write input with DIEAREA upper-right doubled")
	fmt.Fprintln(w, "  diearea inspect <input.def>                  Show the DIEAREA statement that would be rewritten")
	fmt.Fprintln(w, "  diearea preview <input.def> <out.pdf|png|svg> Draw the die before and after doubling")
	fmt.Fprintln(w, "  diearea step <design> <input.def> <step-dir>  Write <step-dir>/<design>.def")
	fmt.Fprintln(w, "  diearea history [limit]                      List recorded runs")
	fmt.Fprintln(w, "  diearea history set-password                 Store the history database password (read from stdin)")
	fmt.Fprintln(w, "  diearea history forget-password              Remove the stored password")
	fmt.Fprintln(w, "  diearea config path                          Print the config file location")
	fmt.Fprintln(w, "  diearea config init [--force]                Write the effective configuration to that file")
	fmt.Fprintln(w, "  diearea version|-v|--version                 Show version")
}

// run dispatches a command line (without the program name) and returns the exit code.
// Console logging goes to stderr, the same stream as the diagnostics.
// cfgErr is the config.Load error, if any; cfg is usable either way.
func run(cfg config.AppConfig, cfgErr error, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	applog.Init(applog.Options{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		AddSource: cfg.Logging.Source,
		File:      cfg.Logging.File,
		Console:   stderr,
	})
	defer func() { _ = applog.Close() }()

	a := &app{cfg: cfg, stdin: stdin, stdout: stdout, stderr: stderr, log: applog.WithComponent("cli"), now: time.Now}
	if cfgErr != nil {
		a.log.Warn("config ignored", slog.Any("err", cfgErr))
	}
	a.log.Debug("start", slog.Int("args", len(args)))

	if len(args) > 0 {
		switch args[0] {
		case "version", "--version", "-v":
			fmt.Fprintln(stdout, version.String())
			return exitOK
		case "help", "--help", "-h":
			usage(stdout)
			return exitOK
		case "inspect":
			if len(args) != 2 {
				return a.usageError("inspect requires <input.def>")
			}
			return a.inspect(args[1])
		case "preview":
			if len(args) != 3 {
				return a.usageError("preview requires <input.def> and <out.pdf|png|svg>")
			}
			return a.preview(args[1], args[2])
		case "step":
			if len(args) != 4 {
				return a.usageError("step requires <design>, <input.def> and <step-dir>")
			}
			return a.step(args[1], args[2], args[3])
		case "history":
			return a.history(args[1:])
		case "config":
			return a.configCmd(args[1:])
		}
	}
	if len(args) != 2 {
		return a.usageError("expected <input.def> <output.def>")
	}
	return a.double(args[0], args[1])
}
