/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package crash turns an unexpected panic into a crash report and a clean exit code.
package crash

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"strings"
	"time"

	applog "diearea/internal/log"
	"diearea/internal/telemetry"
	"diearea/internal/version"
)

// ExitCode is used when a panic was recovered.
const ExitCode = 2

// exitFn is swapped in tests so Recover does not end the test binary.
var exitFn = os.Exit

// Recover captures a panic, logs it with its stack, writes crash-<stamp>.log
// into reportDir (the temp dir when empty), offers the report to telemetry and
// exits with ExitCode. args are included in the report to help reproduce the run.
//
// Usage: defer crash.Recover(dir, os.Args)
func Recover(reportDir string, args []string) {
	r := recover()
	if r == nil {
		return
	}
	l := applog.WithComponent("crash")
	stack := debug.Stack()
	l.Error("panic recovered", slog.Any("panic", r), slog.String("stack", string(stack)))

	reportPath, err := writeReport(reportDir, r, args, stack)
	if err != nil {
		l.Error("write crash report failed", slog.Any("err", err))
	}
	fmt.Fprintf(os.Stderr, "diearea: internal error: %v\n", r)
	if err == nil {
		fmt.Fprintf(os.Stderr, "A crash report was saved to: %s\n", reportPath)
	}
	fmt.Fprintf(os.Stderr, "Version: %s\nOS/Arch: %s/%s\n", version.String(), runtime.GOOS, runtime.GOARCH)
	exitFn(ExitCode)
}

func writeReport(dir string, panicVal any, args []string, stack []byte) (string, error) {
	if strings.TrimSpace(dir) == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	now := time.Now()
	path := filepath.Join(dir, fmt.Sprintf("crash-%s-%d.log", now.Format("20060102-150405"), os.Getpid()))

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "diearea crash report\n")
	fmt.Fprintf(&buf, "Timestamp: %s\n", now.Format(time.RFC3339))
	fmt.Fprintf(&buf, "Version: %s\n", version.String())
	fmt.Fprintf(&buf, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	if len(args) > 0 {
		fmt.Fprintf(&buf, "Args: %q\n", args)
	}
	fmt.Fprintf(&buf, "\nPanic: %v\n\n", panicVal)
	fmt.Fprintf(&buf, "Stack:\n%s\n", stack)

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return path, err
	}
	// Anonymous upload strips the args line; it may contain local paths.
	telemetry.UploadCrash(stripArgs(buf.Bytes()))
	return path, nil
}

func stripArgs(report []byte) []byte {
	var out bytes.Buffer
	for _, line := range bytes.SplitAfter(report, []byte("\n")) {
		if bytes.HasPrefix(line, []byte("Args: ")) {
			continue
		}
		out.Write(line)
	}
	return out.Bytes()
}
