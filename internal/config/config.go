// Package config loads relay configuration from environment variables.
//
// All settings are optional; spec.md §6 names PORT, MAX_LOGIN_ATTEMPTS, and
// LOCKOUT_MINUTES as its knobs, defaulting respectively to
// 3456, 5, and 15. The remaining fields are ambient (logging, storage paths,
// Wake-on-LAN broadcast address) and follow the teacher's own env-driven
// configuration style, just bound through viper instead of hand-rolled
// getEnv/getEnvInt helpers.
package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Config holds every knob the relay reads at boot.
type Config struct {
	Port             int    `mapstructure:"port"`
	MaxLoginAttempts int    `mapstructure:"max_login_attempts"`
	LockoutMinutes   int    `mapstructure:"lockout_minutes"`
	UserStorePath    string `mapstructure:"user_store_path"`
	WoLBroadcastAddr string `mapstructure:"wol_broadcast_addr"`
	AgentFilesDir    string `mapstructure:"agent_files_dir"`
	LogLevel         string `mapstructure:"log_level"`
	LogPretty        bool   `mapstructure:"log_pretty"`
}

// Load reads configuration from the environment, applying spec.md's defaults
// for every unset value.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("port", 3456)
	v.SetDefault("max_login_attempts", 5)
	v.SetDefault("lockout_minutes", 15)
	v.SetDefault("user_store_path", "./data/users.json")
	v.SetDefault("wol_broadcast_addr", "255.255.255.255")
	v.SetDefault("agent_files_dir", "./agent-files")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_pretty", false)

	must := func(key, env string) {
		_ = v.BindEnv(key, env)
	}
	must("port", "PORT")
	must("max_login_attempts", "MAX_LOGIN_ATTEMPTS")
	must("lockout_minutes", "LOCKOUT_MINUTES")
	must("user_store_path", "USER_STORE_PATH")
	must("wol_broadcast_addr", "WOL_BROADCAST_ADDR")
	must("agent_files_dir", "AGENT_FILES_DIR")
	must("log_level", "LOG_LEVEL")
	must("log_pretty", "LOG_PRETTY")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
