package app

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"tumble/engine/logging"
)

// Config is the relay daemon's environment-driven configuration.
type Config struct {
	Addr           string   `env:"RELAY_ADDR" envDefault:":8335"`
	TickRate       int      `env:"RELAY_TICK_RATE" envDefault:"20"`
	LogSinks       []string `env:"RELAY_LOG_SINKS" envDefault:"console"`
	LogMinSeverity string   `env:"RELAY_LOG_MIN_SEVERITY" envDefault:"info"`
	LogJSONPath    string   `env:"RELAY_LOG_JSON_PATH"`
	CaptureDir     string   `env:"RELAY_CAPTURE_DIR" envDefault:"captures"`
	MaxFrameBytes  int      `env:"RELAY_MAX_FRAME_BYTES"`
	PprofTrace     bool     `env:"RELAY_ENABLE_PPROF_TRACE"`
}

// ParseConfig reads the RELAY_* environment.
func ParseConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("app: parse env: %w", err)
	}
	if cfg.TickRate <= 0 {
		return Config{}, fmt.Errorf("app: RELAY_TICK_RATE must be positive, got %d", cfg.TickRate)
	}
	return cfg, nil
}

func (c Config) tickInterval() time.Duration {
	return time.Second / time.Duration(c.TickRate)
}

func (c Config) loggingConfig() logging.Config {
	lc := logging.DefaultConfig()
	if len(c.LogSinks) > 0 {
		lc.EnabledSinks = c.LogSinks
	}
	lc.MinimumSeverity = severityByName(c.LogMinSeverity)
	lc.JSON.FilePath = c.LogJSONPath
	return lc
}

func severityByName(name string) logging.Severity {
	switch name {
	case "debug":
		return logging.SeverityDebug
	case "warn":
		return logging.SeverityWarn
	case "error":
		return logging.SeverityError
	default:
		return logging.SeverityInfo
	}
}
