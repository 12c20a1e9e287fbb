package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/teranos/goload/errors"
)

// Load builds a Config from cobra/pflag flags layered over environment
// variables (GOLOAD_*), an optional goload.toml in the working directory,
// and the package defaults — in that precedence order, flag highest.
//
// Grounded in the teacher's am.Load()/initViper() precedence chain, trimmed
// to goload's single-file, single-prefix needs.
func Load(flags *pflag.FlagSet) (Config, error) {
	v := viper.New()

	v.SetEnvPrefix("GOLOAD")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path := findConfigFile(); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.Wrapf(err, "failed to read config file %s", path)
		}
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, errors.Wrap(err, "failed to bind flags")
		}
	}

	cfg := Config{
		Users:            v.GetInt("users"),
		HatchRate:        v.GetFloat64("hatch-rate"),
		RunTime:          v.GetDuration("run-time"),
		ThrottleRequests: v.GetInt("throttle-requests"),
		MetricsFile:      v.GetString("metrics-file"),
		OnlySummary:      v.GetBool("only-summary"),
		Manager:          v.GetBool("manager"),
		Worker:           v.GetBool("worker"),
		ManagerBindHost:  v.GetString("manager-bind-host"),
		ManagerBindPort:  v.GetInt("manager-bind-port"),
		ExpectWorkers:    v.GetInt("expect-workers"),
		NoHashCheck:      v.GetBool("no-hash-check"),
		ManagerHost:      v.GetString("manager-host"),
		Host:             v.GetString("host"),
		Timeout:          v.GetDuration("timeout"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("users", d.Users)
	v.SetDefault("hatch-rate", d.HatchRate)
	v.SetDefault("run-time", d.RunTime)
	v.SetDefault("throttle-requests", d.ThrottleRequests)
	v.SetDefault("manager-bind-host", d.ManagerBindHost)
	v.SetDefault("manager-bind-port", d.ManagerBindPort)
	v.SetDefault("timeout", d.Timeout)
}

// findConfigFile looks for goload.toml in the working directory only; unlike
// the teacher's multi-tier system/user/project search, goload's config is
// per-run and scoped to the directory a test is launched from.
func findConfigFile() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	path := filepath.Join(dir, "goload.toml")
	if _, err := os.Stat(path); err == nil {
		return path
	}

	return ""
}
