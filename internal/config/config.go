/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package config holds DeviceRuntimeConfig: the coarse, rarely-changed YAML
// configuration a device image ships with (books root, Calibre device name
// and accepted extensions, discovery ports, logging, simulator window size).
// This is distinct from the tiny binary "persisted settings" blob in
// internal/settings, which keeps spec's exact byte layout and covers the
// small, frequently-touched cross-reboot UI state instead.
package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// DeviceConfig describes the device identity and book storage layout.
type DeviceConfig struct {
	Name               string   `yaml:"name"`
	AcceptedExtensions []string `yaml:"acceptedExtensions"`
	BooksRoot          string   `yaml:"booksRoot"`
	CatalogPath        string   `yaml:"catalogPath"`

	// PasswordHash is the Calibre device password hash, stored in plain
	// YAML (real firmware has no OS keyring).
	PasswordHash string `yaml:"passwordHash"`
}

// NetworkConfig describes Wi-Fi and Calibre discovery parameters.
type NetworkConfig struct {
	WifiSSID              string `yaml:"wifiSSID"`
	CalibreDiscoveryPorts []int  `yaml:"calibreDiscoveryPorts"`
}

// LoggingConfig mirrors internal/log.Options for YAML persistence.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// SimulatorConfig sizes the desktop fyne window in cmd/papyrix-sim.
type SimulatorConfig struct {
	WindowWidth  int `yaml:"windowWidth"`
	WindowHeight int `yaml:"windowHeight"`
}

// DeviceRuntimeConfig is the full YAML-persisted device configuration.
type DeviceRuntimeConfig struct {
	ConfigVersion int             `yaml:"configVersion"`
	Device        DeviceConfig    `yaml:"device"`
	Network       NetworkConfig   `yaml:"network"`
	Logging       LoggingConfig   `yaml:"logging"`
	Simulator     SimulatorConfig `yaml:"simulator"`
}

// Defaults returns the out-of-box configuration described in SPEC_FULL.md §6.6.
func Defaults() DeviceRuntimeConfig {
	return DeviceRuntimeConfig{
		ConfigVersion: 1,
		Device: DeviceConfig{
			Name:               "Papyrix",
			AcceptedExtensions: []string{"epub", "txt", "md"},
			BooksRoot:          "/books",
			CatalogPath:        "/books/.papyrix/catalog.db",
		},
		Network: NetworkConfig{
			WifiSSID:              "",
			CalibreDiscoveryPorts: []int{54982, 48123, 39001, 44044, 59678},
		},
		Logging:   LoggingConfig{Level: "info", Format: "console", File: ""},
		Simulator: SimulatorConfig{WindowWidth: 480, WindowHeight: 800},
	}
}

// Environment variable overrides.
const (
	EnvLogLevel   = "PAPYRIX_LOG_LEVEL"
	EnvLogFormat  = "PAPYRIX_LOG_FORMAT"
	EnvLogFile    = "PAPYRIX_LOG_FILE"
	EnvBooksRoot  = "PAPYRIX_BOOKS_ROOT"
	EnvDeviceName = "PAPYRIX_DEVICE_NAME"
)

const (
	keyringService     = "Papyrix"
	keyringCalibrePass = "calibre_device_password"
)

// TokenStore abstracts the OS keyring so tests can stub it. The real
// implementation wraps github.com/zalando/go-keyring; only used on the
// desktop simulator build, since real firmware has no OS keyring and falls
// back to the YAML-stored hash (see DESIGN.md's Open Question resolution).
type TokenStore interface {
	Get(service, key string) (string, error)
	Set(service, key, value string) error
	Delete(service, key string) error
}

var tokenStore TokenStore = &osKeyring{}

// CalibrePassword returns the stored Calibre device password hash, if any.
func CalibrePassword() (string, error) {
	return tokenStore.Get(keyringService, keyringCalibrePass)
}

// SetCalibrePassword persists the Calibre device password hash to the OS keyring.
func SetCalibrePassword(value string) error {
	return tokenStore.Set(keyringService, keyringCalibrePass, value)
}

// ConfigPath returns the per-OS device configuration file path.
func ConfigPath() (string, error) {
	var base string
	switch runtime.GOOS {
	case "windows":
		base = os.Getenv("AppData")
		if base == "" {
			base = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		base = filepath.Join(base, "Papyrix")
	case "darwin":
		base = filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "Papyrix")
	default:
		base = filepath.Join(os.Getenv("HOME"), ".config", "papyrix")
	}
	return filepath.Join(base, "config.yaml"), nil
}

// Load reads the device configuration from ConfigPath(), falling back to
// Defaults() when absent, and applies environment overrides on top.
func Load() (DeviceRuntimeConfig, error) {
	cfg := Defaults()
	path, err := ConfigPath()
	if err != nil {
		return cfg, err
	}
	if data, err := os.ReadFile(path); err == nil {
		var fileCfg DeviceRuntimeConfig
		if err := yaml.Unmarshal(data, &fileCfg); err == nil {
			mergeInto(&cfg, &fileCfg)
		}
	}
	applyEnvOverrides(&cfg)
	return cfg, nil
}

// Save persists cfg to ConfigPath(), creating parent directories as needed.
func Save(cfg DeviceRuntimeConfig) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func mergeInto(dst *DeviceRuntimeConfig, src *DeviceRuntimeConfig) {
	if src.ConfigVersion != 0 {
		dst.ConfigVersion = src.ConfigVersion
	}
	if strings.TrimSpace(src.Device.Name) != "" {
		dst.Device.Name = src.Device.Name
	}
	if len(src.Device.AcceptedExtensions) > 0 {
		dst.Device.AcceptedExtensions = src.Device.AcceptedExtensions
	}
	if strings.TrimSpace(src.Device.BooksRoot) != "" {
		dst.Device.BooksRoot = src.Device.BooksRoot
	}
	if strings.TrimSpace(src.Device.CatalogPath) != "" {
		dst.Device.CatalogPath = src.Device.CatalogPath
	}
	if strings.TrimSpace(src.Device.PasswordHash) != "" {
		dst.Device.PasswordHash = src.Device.PasswordHash
	}
	dst.Network.WifiSSID = src.Network.WifiSSID
	if len(src.Network.CalibreDiscoveryPorts) > 0 {
		dst.Network.CalibreDiscoveryPorts = src.Network.CalibreDiscoveryPorts
	}
	if strings.TrimSpace(src.Logging.Level) != "" {
		dst.Logging.Level = strings.ToLower(strings.TrimSpace(src.Logging.Level))
	}
	if strings.TrimSpace(src.Logging.Format) != "" {
		dst.Logging.Format = strings.ToLower(strings.TrimSpace(src.Logging.Format))
	}
	if strings.TrimSpace(src.Logging.File) != "" {
		dst.Logging.File = src.Logging.File
	}
	if src.Simulator.WindowWidth > 0 {
		dst.Simulator.WindowWidth = src.Simulator.WindowWidth
	}
	if src.Simulator.WindowHeight > 0 {
		dst.Simulator.WindowHeight = src.Simulator.WindowHeight
	}
}

func applyEnvOverrides(cfg *DeviceRuntimeConfig) {
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFormat)); v != "" {
		cfg.Logging.Format = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFile)); v != "" {
		cfg.Logging.File = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvBooksRoot)); v != "" {
		cfg.Device.BooksRoot = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvDeviceName)); v != "" {
		cfg.Device.Name = v
	}
}

// EnvOverrideFor reports which environment variable, if any, currently
// overrides the named dotted config key.
func EnvOverrideFor(key string) (string, bool) {
	env := map[string]string{
		"logging.level":     EnvLogLevel,
		"logging.format":    EnvLogFormat,
		"logging.file":      EnvLogFile,
		"device.booksRoot":  EnvBooksRoot,
		"device.name":       EnvDeviceName,
	}
	name, ok := env[key]
	if !ok {
		return "", false
	}
	if os.Getenv(name) != "" {
		return name, true
	}
	return "", false
}

// AcceptsExtension reports whether ext (without a leading dot, any case)
// is in the device's configured accepted extension set.
func (c DeviceRuntimeConfig) AcceptsExtension(ext string) bool {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, e := range c.Device.AcceptedExtensions {
		if strings.EqualFold(e, ext) {
			return true
		}
	}
	return false
}

// ResolvedPasswordHash returns the Calibre device password hash as stored in
// the YAML configuration. Real firmware has nowhere else to keep it. It does
// not consult the OS keyring; CalibrePassword is a separate lookup.
func (c DeviceRuntimeConfig) ResolvedPasswordHash() string {
	return c.Device.PasswordHash
}

// DiscoveryPortStrings renders the configured Calibre discovery ports as
// strconv-friendly strings, used when building UDP broadcast targets.
func (c DeviceRuntimeConfig) DiscoveryPortStrings() []string {
	out := make([]string, 0, len(c.Network.CalibreDiscoveryPorts))
	for _, p := range c.Network.CalibreDiscoveryPorts {
		out = append(out, strconv.Itoa(p))
	}
	return out
}
