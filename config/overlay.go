package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Overlay keys. Each can be set by a bound command-line flag or by the
// matching BOMDESK_* environment variable (dashes become underscores).
const (
	KeyPort     = "port"
	KeyDriver   = "driver"
	KeyDBPath   = "db-path"
	KeyLogLevel = "log-level"
)

// NewOverlay returns a viper instance reading BOMDESK_* environment variables.
// Callers bind their flags to it before calling Apply.
func NewOverlay() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("bomdesk")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// Apply copies every overlay value that was explicitly set onto cfg.
func (c *Config) Apply(v *viper.Viper) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v.IsSet(KeyPort) && v.GetInt(KeyPort) > 0 {
		c.Web.Port = v.GetInt(KeyPort)
	}
	if s := v.GetString(KeyDriver); v.IsSet(KeyDriver) && s != "" {
		c.Database.Driver = s
	}
	if s := v.GetString(KeyDBPath); v.IsSet(KeyDBPath) && s != "" {
		c.Database.SQLite.Path = s
	}
	if s := v.GetString(KeyLogLevel); v.IsSet(KeyLogLevel) && s != "" {
		c.Logging.Level = s
	}
}
