/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnvOverridesLogging(t *testing.T) {
	t.Setenv(EnvLogLevel, "error")
	t.Setenv(EnvLogFormat, "json")
	t.Setenv(EnvLogFile, "/tmp/papyrix.log")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "error", cfg.Logging.Level)
	require.Equal(t, "json", cfg.Logging.Format)
	require.Equal(t, "/tmp/papyrix.log", cfg.Logging.File)
}

func TestEnvOverridesBooksRoot(t *testing.T) {
	t.Setenv(EnvBooksRoot, "/mnt/sdcard/books")
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "/mnt/sdcard/books", cfg.Device.BooksRoot)
}

func TestMergeIncludesDeviceFields(t *testing.T) {
	dst := Defaults()
	src := Defaults()
	src.Device.Name = "Custom Device"
	src.Device.AcceptedExtensions = []string{"epub"}
	mergeInto(&dst, &src)
	require.Equal(t, "Custom Device", dst.Device.Name)
	require.Equal(t, []string{"epub"}, dst.Device.AcceptedExtensions)
}

func TestAcceptsExtension(t *testing.T) {
	cfg := Defaults()
	require.True(t, cfg.AcceptsExtension("EPUB"))
	require.True(t, cfg.AcceptsExtension(".txt"))
	require.False(t, cfg.AcceptsExtension("pdf"))
}

func TestDiscoveryPortStrings(t *testing.T) {
	cfg := Defaults()
	ports := cfg.DiscoveryPortStrings()
	require.Equal(t, []string{"54982", "48123", "39001", "44044", "59678"}, ports)
}
