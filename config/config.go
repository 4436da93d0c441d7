// Package config loads the user's floppy.toml: which geometry preset to
// default to, the recovery profile's default tunables, and logging
// verbosity. Grounded on the teacher's config.go (embedded default,
// BurntSushi/toml decode, package-level globals, create-on-first-run),
// generalized from the teacher's drive/image-name mapping to this
// engine's geometry/recovery/logging settings.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/BurntSushi/toml"
)

//go:embed floppy.toml
var defaultConfigData []byte

// Package-level state populated by Initialize, mirroring the teacher's
// global-variable convention for configuration consumed throughout the
// CLI without threading a Config value through every call.
var (
	DefaultGeometry   string
	Geometries        map[string]GeometrySpec
	RecoveryLevel     string
	RecoveryMaxPasses int
	RecoveryQuiet     int
	RevolutionsPerCap int
	LogLevel          string
)

// Config is the entire TOML configuration structure.
type Config struct {
	Default  string         `toml:"default"`
	Geometry []GeometrySpec `toml:"geometry"`
	Recovery RecoverySpec   `toml:"recovery"`
	Logging  LoggingSpec    `toml:"logging"`
}

// GeometrySpec is one named disk geometry preset, overriding or
// extending sector.Presets.
type GeometrySpec struct {
	Name            string `toml:"name"`
	Cylinders       int    `toml:"cylinders"`
	Heads           int    `toml:"heads"`
	SectorsPerTrack int    `toml:"sectors_per_track"`
	SectorSize      int    `toml:"sector_size"`
	RPM             int    `toml:"rpm"`
	DataRateKbps    int    `toml:"data_rate_kbps"`
}

// RecoverySpec is the default recovery profile a session starts from
// absent explicit CLI flags.
type RecoverySpec struct {
	Level                 string `toml:"level"`
	MaxPasses             int    `toml:"max_passes"`
	QuietPasses           int    `toml:"quiet_passes"`
	RevolutionsPerCapture int    `toml:"revolutions_per_capture"`
}

// LoggingSpec configures the zerolog-style level the CLI runs at.
type LoggingSpec struct {
	Level string `toml:"level"`
}

// configPath determines the config file path based on the operating
// system, matching the teacher's Windows-AppData / Unix-home split.
func configPath() (string, error) {
	var configDir string
	var err error

	switch runtime.GOOS {
	case "windows":
		configDir, err = os.UserConfigDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine user config directory: %w", err)
		}
		configDir = filepath.Join(configDir, "fluxkit")
	default:
		configDir, err = os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine user home directory: %w", err)
		}
	}

	return filepath.Join(configDir, ".fluxkit"), nil
}

// Initialize loads and validates floppy.toml, creating it from the
// embedded default on first run.
func Initialize() error {
	path, err := configPath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		configDir := filepath.Dir(path)
		if err := os.MkdirAll(configDir, 0o755); err != nil {
			return fmt.Errorf("config: create directory %s: %w", configDir, err)
		}
		if err := os.WriteFile(path, defaultConfigData, 0o644); err != nil {
			return fmt.Errorf("config: write default config to %s: %w", path, err)
		}
	}

	var conf Config
	if _, err := toml.DecodeFile(path, &conf); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}

	if conf.Default == "" {
		return fmt.Errorf("config: %s: `default` key is missing or empty", path)
	}

	geometries := make(map[string]GeometrySpec, len(conf.Geometry))
	for _, g := range conf.Geometry {
		if g.Cylinders <= 0 || g.Heads <= 0 || g.SectorsPerTrack <= 0 || g.SectorSize <= 0 {
			return fmt.Errorf("config: geometry %q has a non-positive field", g.Name)
		}
		geometries[g.Name] = g
	}
	if _, ok := geometries[conf.Default]; !ok {
		return fmt.Errorf("config: default geometry %q not found in geometry list", conf.Default)
	}

	DefaultGeometry = conf.Default
	Geometries = geometries
	RecoveryLevel = conf.Recovery.Level
	RecoveryMaxPasses = conf.Recovery.MaxPasses
	RecoveryQuiet = conf.Recovery.QuietPasses
	RevolutionsPerCap = conf.Recovery.RevolutionsPerCapture
	LogLevel = conf.Logging.Level

	return nil
}

// GeometryByName returns a loaded geometry preset by name.
func GeometryByName(name string) (GeometrySpec, bool) {
	g, ok := Geometries[name]
	return g, ok
}
