package config

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaultsWithNoFlagsOrEnv(t *testing.T) {
	cfg, err := Load(nil)
	require.NoError(t, err)
	require.Equal(t, Default().Users, cfg.Users)
	require.Equal(t, Default().HatchRate, cfg.HatchRate)
	require.Equal(t, Default().ManagerBindPort, cfg.ManagerBindPort)
}

func TestLoadEnvOverridesDefault(t *testing.T) {
	t.Setenv("GOLOAD_USERS", "50")
	t.Setenv("GOLOAD_HATCH_RATE", "2.5")

	cfg, err := Load(nil)
	require.NoError(t, err)
	require.Equal(t, 50, cfg.Users)
	require.Equal(t, 2.5, cfg.HatchRate)
}

func TestLoadFlagOverridesEnv(t *testing.T) {
	t.Setenv("GOLOAD_USERS", "50")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("users", 1, "")
	require.NoError(t, flags.Set("users", "10"))

	cfg, err := Load(flags)
	require.NoError(t, err)
	require.Equal(t, 10, cfg.Users)
}
