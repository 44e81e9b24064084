package config

import (
	"time"

	"github.com/creasty/defaults"

	srvErrors "github.com/spicaengine/fnscheduler/pkg/errors"
)

type Configuration struct {
	Server    Server         `mapstructure:"server"`
	Transport Transport      `mapstructure:"transport"`
	Scheduler Scheduler      `mapstructure:"scheduler"`
	Runtime   Runtime        `mapstructure:"runtime"`
	Store     Store          `mapstructure:"store"`
	Auth      Authentication `mapstructure:"auth"`
	LogFormat string         `mapstructure:"logFormat" default:"console"`
	LogLevel  string         `mapstructure:"logLevel" default:"info"`
}

type Server struct {
	ServerMode string `mapstructure:"serverMode" default:"dev"`
	HTTPPort   int    `mapstructure:"httpPort" default:"8080"`
}

// Transport is the listener workers connect to.
type Transport struct {
	Address string `mapstructure:"address" default:"127.0.0.1:5678"`
}

type Scheduler struct {
	MaxConcurrency int `mapstructure:"maxConcurrency" default:"1"`
	// Timeout is the ceiling, in seconds, for any single execution.
	Timeout             int           `mapstructure:"timeout" default:"60"`
	InvocationLogs      bool          `mapstructure:"invocationLogs" default:"false"`
	Debug               bool          `mapstructure:"debug" default:"false"`
	ScaleInterval       time.Duration `mapstructure:"scaleInterval" default:"30s"`
	ResponseTimeSamples int           `mapstructure:"responseTimeSamples" default:"100"`
	AutoScaling         AutoScaling   `mapstructure:"autoScaling"`
}

type AutoScaling struct {
	Enabled            bool          `mapstructure:"enabled" default:"false"`
	ScaleUpThreshold   float64       `mapstructure:"scaleUpThreshold" default:"0.8"`
	ScaleDownThreshold float64       `mapstructure:"scaleDownThreshold" default:"0.2"`
	WorkerIdleTimeout  time.Duration `mapstructure:"workerIdleTimeout" default:"5m"`
	MinWorkers         int           `mapstructure:"minWorkers" default:"1"`
	MaxWorkers         int           `mapstructure:"maxWorkers" default:"10"`
	ScaleCooldown      time.Duration `mapstructure:"scaleCooldown" default:"10s"`
	TargetResponseTime time.Duration `mapstructure:"targetResponseTime" default:"5s"`
}

type Runtime struct {
	Entrypoint  string            `mapstructure:"entrypoint"`
	Interpreter []string          `mapstructure:"interpreter"`
	WorkDir     string            `mapstructure:"workDir"`
	Env         map[string]string `mapstructure:"env"`
}

type Store struct {
	// DataFolder holds the DuckDB file. Empty keeps the history in memory.
	DataFolder string `mapstructure:"dataFolder"`
	// HistoryLimit caps the stored scaling actions. Zero keeps them all.
	HistoryLimit int `mapstructure:"historyLimit" default:"10000"`
}

type Authentication struct {
	Enabled       bool   `mapstructure:"enabled" default:"false"`
	JWTSecretFile string `mapstructure:"jwtSecretFile"`
}

// NewConfigurationWithDefaults returns a configuration with every default tag applied.
func NewConfigurationWithDefaults() (*Configuration, error) {
	cfg := &Configuration{}
	if err := defaults.Set(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// NewSchedulerWithDefaults is a convenience for callers embedding the scheduler.
func NewSchedulerWithDefaults() Scheduler {
	s := Scheduler{}
	_ = defaults.Set(&s)
	return s
}

func (c *Configuration) Validate() error {
	if err := c.Scheduler.Validate(); err != nil {
		return err
	}
	if c.Transport.Address == "" {
		return srvErrors.NewInvalidConfigurationError("transport.address", "must not be empty")
	}
	if c.Store.HistoryLimit < 0 {
		return srvErrors.NewInvalidConfigurationError("store.historyLimit", "must not be negative")
	}
	if c.Auth.Enabled && c.Auth.JWTSecretFile == "" {
		return srvErrors.NewInvalidConfigurationError("auth.jwtSecretFile", "required when auth is enabled")
	}
	switch c.Server.ServerMode {
	case "dev", "prod":
	default:
		return srvErrors.NewInvalidConfigurationError("server.serverMode", "must be dev or prod")
	}
	return nil
}

func (s Scheduler) Validate() error {
	if s.MaxConcurrency < 1 {
		return srvErrors.NewInvalidConfigurationError("scheduler.maxConcurrency", "must be at least 1")
	}
	if s.Timeout < 1 {
		return srvErrors.NewInvalidConfigurationError("scheduler.timeout", "must be at least 1 second")
	}
	if s.ScaleInterval <= 0 {
		return srvErrors.NewInvalidConfigurationError("scheduler.scaleInterval", "must be positive")
	}
	if s.ResponseTimeSamples < 1 {
		return srvErrors.NewInvalidConfigurationError("scheduler.responseTimeSamples", "must be at least 1")
	}
	if !s.AutoScaling.Enabled {
		return nil
	}

	a := s.AutoScaling
	switch {
	case a.MinWorkers < 0:
		return srvErrors.NewInvalidConfigurationError("autoScaling.minWorkers", "must not be negative")
	case a.MaxWorkers < 1:
		return srvErrors.NewInvalidConfigurationError("autoScaling.maxWorkers", "must be at least 1")
	case a.MinWorkers > a.MaxWorkers:
		return srvErrors.NewInvalidConfigurationError("autoScaling.minWorkers", "must not exceed maxWorkers")
	case a.ScaleUpThreshold <= 0:
		return srvErrors.NewInvalidConfigurationError("autoScaling.scaleUpThreshold", "must be positive")
	case a.ScaleDownThreshold < 0 || a.ScaleDownThreshold >= a.ScaleUpThreshold:
		return srvErrors.NewInvalidConfigurationError("autoScaling.scaleDownThreshold", "must be in [0, scaleUpThreshold)")
	case a.ScaleCooldown < 0:
		return srvErrors.NewInvalidConfigurationError("autoScaling.scaleCooldown", "must not be negative")
	case a.WorkerIdleTimeout < 0:
		return srvErrors.NewInvalidConfigurationError("autoScaling.workerIdleTimeout", "must not be negative")
	}
	return nil
}

// DebugMap flattens the configuration for startup logging. The JWT secret
// path is shown, never the secret.
func (c *Configuration) DebugMap() map[string]any {
	a := c.Scheduler.AutoScaling
	return map[string]any{
		"server.serverMode":                  c.Server.ServerMode,
		"server.httpPort":                    c.Server.HTTPPort,
		"transport.address":                  c.Transport.Address,
		"scheduler.maxConcurrency":           c.Scheduler.MaxConcurrency,
		"scheduler.timeout":                  c.Scheduler.Timeout,
		"scheduler.invocationLogs":           c.Scheduler.InvocationLogs,
		"scheduler.debug":                    c.Scheduler.Debug,
		"scheduler.scaleInterval":            c.Scheduler.ScaleInterval.String(),
		"scheduler.autoScaling.enabled":      a.Enabled,
		"scheduler.autoScaling.minWorkers":   a.MinWorkers,
		"scheduler.autoScaling.maxWorkers":   a.MaxWorkers,
		"scheduler.autoScaling.scaleUp":      a.ScaleUpThreshold,
		"scheduler.autoScaling.scaleDown":    a.ScaleDownThreshold,
		"scheduler.autoScaling.cooldown":     a.ScaleCooldown.String(),
		"scheduler.autoScaling.idleTimeout":  a.WorkerIdleTimeout.String(),
		"scheduler.autoScaling.responseTime": a.TargetResponseTime.String(),
		"runtime.entrypoint":                 c.Runtime.Entrypoint,
		"runtime.interpreter":                c.Runtime.Interpreter,
		"store.dataFolder":                   c.Store.DataFolder,
		"store.historyLimit":                 c.Store.HistoryLimit,
		"auth.enabled":                       c.Auth.Enabled,
		"auth.jwtSecretFile":                 c.Auth.JWTSecretFile,
		"logFormat":                          c.LogFormat,
		"logLevel":                           c.LogLevel,
	}
}
