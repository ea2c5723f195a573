/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package crash captures panics in the firmware's foreground loop, writes a
// crash report to the SD card (for later USB retrieval), and exits the
// process with status 2. It does not touch the persisted settings.
package crash

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"runtime/debug"
	"time"

	applog "papyrix/internal/log"
	"papyrix/internal/sdcard"
	"papyrix/internal/version"
)

// ReportDirName is the SD-card directory crash reports are written under.
const ReportDirName = "crash"

// exitFn is swapped in tests to avoid terminating the test process.
var exitFn = os.Exit

// Recover captures a panic, logs it with a stack trace, and writes a crash
// report file to sd (if non-nil). Usage: defer crash.Recover(sd).
func Recover(sd *sdcard.Facade) {
	if r := recover(); r != nil {
		l := applog.WithComponent("crash")
		stack := debug.Stack()
		l.Error("panic recovered", slog.Any("panic", r), slog.String("stack", string(stack)))

		reportPath, err := writeReport(sd, r, stack)
		if err != nil {
			l.Error("failed to write crash report", slog.Any("err", err))
		} else {
			fmt.Fprintf(os.Stderr, "A fatal error occurred. A crash report was saved to: %s\n", reportPath)
		}
		fmt.Fprintf(os.Stderr, "Version: %s  OS/Arch: %s/%s\n", version.Version, runtime.GOOS, runtime.GOARCH)
		exitFn(2)
	}
}

func writeReport(sd *sdcard.Facade, panicVal any, stack []byte) (string, error) {
	stamp := time.Now().Format("20060102-150405")
	path := ReportDirName + "/crash-" + stamp + ".log"

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "Papyrix crash report\n")
	fmt.Fprintf(&buf, "Timestamp: %s\n", time.Now().Format(time.RFC3339))
	fmt.Fprintf(&buf, "Version: %s\n", version.Version)
	fmt.Fprintf(&buf, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Fprintf(&buf, "\nPanic: %v\n\nStack:\n%s\n", panicVal, string(stack))

	if sd == nil {
		return path, fmt.Errorf("crash: no storage facade, report not persisted")
	}
	if err := sd.Mkdir(ReportDirName); err != nil {
		return path, err
	}
	if err := sd.WriteFileAtomic(path, buf.Bytes()); err != nil {
		return path, err
	}
	return path, nil
}
