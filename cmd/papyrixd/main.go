/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Command papyrixd is the headless firmware-mode entry point: it loads the
// device configuration, opens the catalog and persisted settings, and hosts
// either a one-shot maintenance command (scan, open) or the long-running
// shell/Calibre-sync loop a real device would run continuously.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"papyrix/internal/calibre"
	"papyrix/internal/catalog"
	"papyrix/internal/config"
	"papyrix/internal/crash"
	"papyrix/internal/epub"
	applog "papyrix/internal/log"
	"papyrix/internal/reader"
	"papyrix/internal/sdcard"
	"papyrix/internal/settings"
	"papyrix/internal/shell"
	"papyrix/internal/theme"
	"papyrix/internal/version"
)

func main() {
	applog.Init(applog.FromEnv())
	log := applog.WithComponent("papyrixd")

	cfg, err := config.Load()
	if err != nil {
		log.Error("failed to load device configuration", "err", err)
		os.Exit(1)
	}
	sd := sdcard.New(cfg.Device.BooksRoot)
	defer crash.Recover(sd)

	if len(os.Args) < 2 {
		printUsage()
		return
	}

	switch os.Args[1] {
	case "version", "--version", "-v":
		fmt.Printf("papyrixd %s\n", version.Version)
	case "scan":
		runScan(cfg, sd, log)
	case "open":
		runOpen(cfg, sd, log, os.Args[2:])
	case "serve":
		runServe(cfg, sd, log)
	default:
		printUsage()
	}
}

func printUsage() {
	fmt.Println("papyrixd - Papyrix firmware core, headless mode")
	fmt.Println("usage: papyrixd <version|scan|open|serve> [args]")
	fmt.Println("  scan            rebuild the library catalog from book.bin files under booksRoot")
	fmt.Println("  open <path> [spineIndex] [page]   build/open a book's cache and print one page")
	fmt.Println("  serve           run the shell state machine and accept one Calibre sync session")
}

func ensureLayout(sd *sdcard.Facade, cfg config.DeviceRuntimeConfig) (themeDir, settingsPath string, err error) {
	themeDir = filepath.Join(cfg.Device.BooksRoot, ".papyrix", "themes")
	settingsPath = filepath.Join(cfg.Device.BooksRoot, ".papyrix", "settings.bin")
	if err = sd.Mkdir(".papyrix"); err != nil {
		return
	}
	err = theme.EnsureBuiltins(themeDir)
	return
}

func runScan(cfg config.DeviceRuntimeConfig, sd *sdcard.Facade, log *slog.Logger) {
	if _, _, err := ensureLayout(sd, cfg); err != nil {
		log.Error("failed to prepare device layout", "err", err)
		os.Exit(1)
	}
	ctx := context.Background()
	cat, rebuilt, err := catalog.DetectAndRebuildIndex(ctx, cfg.Device.BooksRoot)
	if err != nil {
		log.Error("catalog scan failed", "err", err)
		os.Exit(1)
	}
	defer cat.Close()
	entries, err := cat.All(ctx)
	if err != nil {
		log.Error("catalog listing failed", "err", err)
		os.Exit(1)
	}
	fmt.Printf("catalog ready (rebuilt=%v): %d book(s)\n", rebuilt, len(entries))
	for _, e := range entries {
		fmt.Printf("  %-40s %s / %s\n", e.Path, e.Title, e.Author)
	}
}

func runOpen(cfg config.DeviceRuntimeConfig, sd *sdcard.Facade, log *slog.Logger, args []string) {
	if len(args) < 1 {
		fmt.Println("usage: papyrixd open <path> [spineIndex] [page]")
		os.Exit(2)
	}
	themeDir, _, err := ensureLayout(sd, cfg)
	if err != nil {
		log.Error("failed to prepare device layout", "err", err)
		os.Exit(1)
	}

	spineIndex, page := 0, 0
	if len(args) > 1 {
		spineIndex, _ = strconv.Atoi(args[1])
	}
	if len(args) > 2 {
		page, _ = strconv.Atoi(args[2])
	}

	cacheRoot := filepath.Join(cfg.Device.BooksRoot, catalogCacheDirName)
	e := epub.Open(args[0], cacheRoot)
	if err := e.Load(true); err != nil {
		log.Error("failed to load epub", "path", args[0], "err", err)
		os.Exit(1)
	}
	defer e.Close()

	cfgRender, err := reader.RenderConfigFor(themeDir, "default", 480, 800)
	if err != nil {
		log.Error("failed to load theme", "err", err)
		os.Exit(1)
	}

	provider, font, err := reader.LoadProvider(sd, cfgRender.FontID)
	if err != nil {
		log.Error("failed to load streaming font; bake one with cmd/epdfontbake first", "err", err)
		os.Exit(1)
	}
	defer font.Close()

	if spineIndex >= e.SpineCount() {
		log.Error("spine index out of range", "spineIndex", spineIndex, "spineCount", e.SpineCount())
		os.Exit(1)
	}

	cache, hdr, err := reader.OpenChapter(e, spineIndex, cfgRender, provider, page)
	if err != nil {
		log.Error("failed to build page cache", "err", err)
		os.Exit(1)
	}
	if page >= int(hdr.PageCount) {
		log.Error("page out of range", "page", page, "pageCount", hdr.PageCount)
		os.Exit(1)
	}
	pg, err := cache.LoadPage(page)
	if err != nil {
		log.Error("failed to load page", "err", err)
		os.Exit(1)
	}
	fmt.Printf("%s by %s - spine %d/%d, page %d/%d\n", e.Title(), e.Author(), spineIndex, e.SpineCount(), page, hdr.PageCount)
	fmt.Print(reader.PageText(pg))
}

// runServe hosts the shell state machine for one full boot-to-sleep style
// session: it walks Startup -> Home, forces a Calibre sync (no physical
// network UI exists headlessly, so this subcommand stands in for a user
// selecting "Wireless sync" from the device's home menu), accepts one
// Calibre connection, then returns to Home and exits.
func runServe(cfg config.DeviceRuntimeConfig, sd *sdcard.Facade, log *slog.Logger) {
	_, settingsPath, err := ensureLayout(sd, cfg)
	if err != nil {
		log.Error("failed to prepare device layout", "err", err)
		os.Exit(1)
	}
	ctx := context.Background()
	cat, _, err := catalog.DetectAndRebuildIndex(ctx, cfg.Device.BooksRoot)
	if err != nil {
		log.Error("failed to open catalog", "err", err)
		os.Exit(1)
	}
	defer cat.Close()

	st, err := settings.Load(settingsPath)
	if err != nil {
		log.Error("failed to load settings", "err", err)
		os.Exit(1)
	}

	core := &shell.Core{
		Log:          log,
		Settings:     st,
		SettingsPath: settingsPath,
		Hooks: shell.Hooks{
			NetworkShutdown: func() { log.Info("network shutdown requested") },
		},
	}

	netState := &shell.NetworkState{}
	calState := &shell.CalibreSyncState{}
	machine := shell.NewMachine(log)
	machine.Register(shell.StartupState{})
	machine.Register(shell.HomeState{})
	machine.Register(shell.FileListState{})
	machine.Register(shell.ReaderState{})
	machine.Register(shell.SettingsActivityState{})
	machine.Register(&shell.SyncState{})
	machine.Register(netState)
	machine.Register(calState)
	machine.Register(shell.ErrorActivityState{})
	machine.Register(&shell.SleepActivityState{})

	machine.Init(core, shell.Startup)
	machine.Update(core) // Startup -> Home (or a persisted return-to state)
	machine.Init(core, shell.Network)
	netState.Ready = true // headless: "Wi-Fi connected" has no UI to drive it

	sink := newDeviceSink(cfg, sd, cat)
	sessionDone := make(chan error, 1)
	go func() { sessionDone <- runCalibreSync(ctx, cfg, sink, log) }()

	deadline := time.Now().Add(2 * calibre.DiscoveryInterval * calibre.MaxDiscoveryBroadcasts)
	for time.Now().Before(deadline) {
		machine.Update(core)
		if machine.CurrentID() == shell.CalibreSync {
			select {
			case syncErr := <-sessionDone:
				if syncErr != nil {
					log.Warn("calibre sync ended", "err", syncErr)
				}
				calState.Done = true
			default:
			}
		}
		if machine.CurrentID() == shell.Home {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	log.Info("serve: session complete", "finalState", machine.CurrentID())
}

func runCalibreSync(ctx context.Context, cfg config.DeviceRuntimeConfig, sink calibre.BookSink, log *slog.Logger) error {
	ports := make([]int, len(cfg.Network.CalibreDiscoveryPorts))
	copy(ports, cfg.Network.CalibreDiscoveryPorts)

	discovered, err := calibre.Discover(ctx, ports, log)
	if err != nil {
		return err
	}
	conn, err := calibre.Dial(ctx, discovered)
	if err != nil {
		return err
	}
	defer conn.Close()

	session := calibre.NewSession(conn, sink, log)
	return session.Run(func() bool { return ctx.Err() != nil })
}
