// Package config loads the settings file of a glosar run. The format follows
// the file extension (json, toml, yaml); a missing file yields the defaults.
// Every key can be overridden from the environment with the GLOSAR_ prefix,
// dots replaced by underscores (GLOSAR_RUN_PAUSE_ON_MISSING=false).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/loykin/glosar/internal/engine"
	"github.com/loykin/glosar/internal/launcher"
	"github.com/loykin/glosar/internal/logger"
	"github.com/loykin/glosar/internal/portal"
)

const EnvPrefix = "GLOSAR"

type History struct {
	Enabled bool     `mapstructure:"enabled"`
	DSNs    []string `mapstructure:"dsns"`
}

type Server struct {
	// Listen empty disables the control API.
	Listen   string `mapstructure:"listen"`
	BasePath string `mapstructure:"base_path"`
}

type Metrics struct {
	Listen string `mapstructure:"listen"`
}

type Config struct {
	DebugPort    int    `mapstructure:"debug_port"`
	TimeoutMS    int    `mapstructure:"timeout_ms"`
	ChromeBinary string `mapstructure:"chrome_binary"`
	PortalURL    string `mapstructure:"portal_url"`
	ProfileDir   string `mapstructure:"profile_dir"`
	ReportsDir   string `mapstructure:"reports_dir"`

	Selectors portal.Selectors `mapstructure:"selectors"`
	Run       engine.Config    `mapstructure:"run"`
	Log       logger.Config    `mapstructure:"log"`
	History   History          `mapstructure:"history"`
	Server    Server           `mapstructure:"server"`
	Metrics   Metrics          `mapstructure:"metrics"`
}

// CDPURL is the DevTools HTTP endpoint of the debug browser.
func (c Config) CDPURL() string { return launcher.DebugURL(c.DebugPort) }

func (c Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

func (c Config) LauncherOptions() launcher.Options {
	return launcher.Options{
		Port:       c.DebugPort,
		ProfileDir: c.ProfileDir,
		Binary:     c.ChromeBinary,
		StartURL:   c.PortalURL,
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("debug_port", 9222)
	v.SetDefault("timeout_ms", 15000)
	v.SetDefault("chrome_binary", "")
	v.SetDefault("portal_url", launcher.DefaultStartURL)
	v.SetDefault("profile_dir", filepath.Join(os.TempDir(), "glosar-chrome-profile"))
	v.SetDefault("reports_dir", "reports")

	s := portal.DefaultSelectors()
	v.SetDefault("selectors.numero_guia", s.NumeroGuia)
	v.SetDefault("selectors.senha", s.Senha)
	v.SetDefault("selectors.lote", s.Lote)
	v.SetDefault("selectors.protocolo", s.Protocolo)
	v.SetDefault("selectors.total_guias", s.TotalGuias)
	v.SetDefault("selectors.valor_glosa", s.ValorGlosa)
	v.SetDefault("selectors.justificativa", s.Justificativa)
	v.SetDefault("selectors.justificativa_3052", s.Justificativa3052)
	v.SetDefault("selectors.proxima_guia", s.ProximaGuia)

	r := engine.DefaultConfig()
	v.SetDefault("run.pause_on_missing", r.PauseOnMissing)
	v.SetDefault("run.wait_for_manual_action", r.WaitForManualAction)
	v.SetDefault("run.delay_after_next", r.DelayAfterNext)
	v.SetDefault("run.capture_screenshot_on_error", r.CaptureScreenshotOnError)
	v.SetDefault("run.diagnostics_dir", r.DiagnosticsDir)
	v.SetDefault("run.checkpoint_poll", r.CheckpointPoll)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.color", true)
	v.SetDefault("log.file.path", "")
	v.SetDefault("log.file.max_size_mb", logger.DefaultMaxSizeMB)
	v.SetDefault("log.file.max_backups", logger.DefaultMaxBackups)
	v.SetDefault("log.file.max_age_days", logger.DefaultMaxAgeDays)
	v.SetDefault("log.file.compress", false)

	v.SetDefault("history.enabled", false)
	v.SetDefault("history.dsns", []string{})

	v.SetDefault("server.listen", "127.0.0.1:8787")
	v.SetDefault("server.base_path", "/api")
	v.SetDefault("metrics.listen", "")
}

// Load reads path (which may be empty or absent) on top of the defaults and
// the GLOSAR_ environment.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		// Mitigate G304: sanitize user-provided path by cleaning it before use.
		clean := filepath.Clean(path)
		if _, err := os.Stat(clean); err == nil {
			v.SetConfigFile(clean)
			if err := v.ReadInConfig(); err != nil {
				return Config{}, fmt.Errorf("read config %s: %w", clean, err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return Config{}, err
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	c.Selectors = c.Selectors.WithDefaults()
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate rejects settings a run cannot start with.
func (c Config) Validate() error {
	if c.DebugPort <= 0 || c.DebugPort > 65535 {
		return fmt.Errorf("debug_port out of range: %d", c.DebugPort)
	}
	if c.TimeoutMS <= 0 {
		return fmt.Errorf("timeout_ms must be positive: %d", c.TimeoutMS)
	}
	if c.Run.DelayAfterNext < 0 {
		return fmt.Errorf("run.delay_after_next must not be negative: %s", c.Run.DelayAfterNext)
	}
	if c.Run.CheckpointPoll <= 0 {
		return fmt.Errorf("run.checkpoint_poll must be positive: %s", c.Run.CheckpointPoll)
	}
	if c.History.Enabled && len(c.History.DSNs) == 0 {
		return errors.New("history.enabled requires at least one entry in history.dsns")
	}
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}
