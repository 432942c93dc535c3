package esexec

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

// ResetType distinguishes the two ways the host platform starts up,
// determining which startup-script path is tried first.
type ResetType int

const (
	ResetTypePowerOn ResetType = iota
	ResetTypeProcessor
)

// Config is the build/deploy-time configuration this package needs:
// table capacities, scan cadence, and the two startup-script paths. It
// is loaded from a TOML file with github.com/BurntSushi/toml.
type Config struct {
	MaxApps  int `toml:"max_apps" yaml:"max_apps"`
	MaxLibs  int `toml:"max_libs" yaml:"max_libs"`
	MaxTasks int `toml:"max_tasks" yaml:"max_tasks"`

	ScanRate         time.Duration `toml:"scan_rate" yaml:"scan_rate"`
	KillTimeoutTicks uint32        `toml:"kill_timeout_ticks" yaml:"kill_timeout_ticks"`

	VolatileStartupScript    string `toml:"volatile_startup_script" yaml:"volatile_startup_script"`
	NonvolatileStartupScript string `toml:"nonvolatile_startup_script" yaml:"nonvolatile_startup_script"`

	MaxAPIName int `toml:"max_api_name" yaml:"max_api_name"`
	MaxPathLen int `toml:"max_path_len" yaml:"max_path_len"`

	CloudEventTarget string `toml:"cloud_event_target" yaml:"cloud_event_target"`
	HTTPListenAddr   string `toml:"http_listen_addr" yaml:"http_listen_addr"`
}

// DefaultConfig returns the configuration this package ships with when
// no TOML file is supplied: modest table sizes, a one-second scan rate,
// and a five-tick kill timeout.
func DefaultConfig() Config {
	return Config{
		MaxApps:                  32,
		MaxLibs:                  16,
		MaxTasks:                 64,
		ScanRate:                 time.Second,
		KillTimeoutTicks:         DefaultKillTimeoutTicks,
		VolatileStartupScript:    "/ram/cf_startup.scr",
		NonvolatileStartupScript: "/cf/cf_startup.scr",
		MaxAPIName:               64,
		MaxPathLen:               256,
		HTTPListenAddr:           ":8080",
	}
}

// LoadConfig reads a TOML file at path over DefaultConfig, so a partial
// file only overrides the fields it mentions.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

// StartupScriptPath chooses between the volatile and nonvolatile script
// paths for the given reset type, per spec.md section 6: the volatile
// path is tried first on a processor reset, and the nonvolatile path is
// used on power-on reset or when the volatile open fails.
func (c Config) StartupScriptPath(reset ResetType) string {
	if reset == ResetTypeProcessor {
		return c.VolatileStartupScript
	}
	return c.NonvolatileStartupScript
}
