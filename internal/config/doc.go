// Package config defines the configuration structure for the function scheduler.
//
// Defaults come from `default` struct tags applied by creasty/defaults; the cmd
// layer overlays a YAML file and FNSCHED_* environment variables through viper,
// then flags through cobra.
//
// # Configuration Structure
//
//	Configuration
//	├── Server         - ops HTTP API
//	├── Transport      - listener workers connect to
//	├── Scheduler      - placement, timeouts, auto-scaling
//	├── Runtime        - how worker processes are started
//	├── Store          - scaling history location
//	├── Auth           - ops API authentication
//	├── LogFormat      - console | json
//	└── LogLevel       - debug | info | warn | error
//
// # Scheduler Configuration
//
//	┌─────────────────────┬─────────┬──────────────────────────────────────────┐
//	│ Field               │ Default │ Description                              │
//	├─────────────────────┼─────────┼──────────────────────────────────────────┤
//	│ MaxConcurrency      │ 1       │ Live workers bound to one target, max    │
//	│ Timeout             │ 60      │ Execution ceiling in seconds             │
//	│ InvocationLogs      │ false   │ Capture function output into the logger  │
//	│ Debug               │ false   │ Log every placement decision             │
//	│ ScaleInterval       │ 30s     │ Scale-down evaluation period             │
//	│ ResponseTimeSamples │ 100     │ Size of the response-time window         │
//	└─────────────────────┴─────────┴──────────────────────────────────────────┘
//
// # AutoScaling Configuration
//
//	┌────────────────────┬─────────┬────────────────────────────────────────────┐
//	│ Field              │ Default │ Description                                │
//	├────────────────────┼─────────┼────────────────────────────────────────────┤
//	│ Enabled            │ false   │ Legacy mode (one spare worker) when false  │
//	│ ScaleUpThreshold   │ 0.8     │ pending/workers ratio that adds a worker   │
//	│ ScaleDownThreshold │ 0.2     │ ratio under which idle workers are removed │
//	│ WorkerIdleTimeout  │ 5m      │ Unused time before a worker counts as idle │
//	│ MinWorkers         │ 1       │ Floor kept by the scale tick               │
//	│ MaxWorkers         │ 10      │ Ceiling for reactive scale-up              │
//	│ ScaleCooldown      │ 10s     │ Minimum time between two scaling actions   │
//	│ TargetResponseTime │ 5s      │ Average latency that adds a worker         │
//	└────────────────────┴─────────┴────────────────────────────────────────────┘
//
// # Usage Example
//
//	cfg, err := config.NewConfigurationWithDefaults()
//	if err != nil {
//	    return err
//	}
//	cfg.Scheduler.AutoScaling.Enabled = true
//	if err := cfg.Validate(); err != nil {
//	    return err
//	}
//	zap.S().Infow("configuration loaded", "config", cfg.DebugMap())
package config
