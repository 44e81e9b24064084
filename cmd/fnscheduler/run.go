package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spicaengine/fnscheduler/internal/config"
	"github.com/spicaengine/fnscheduler/internal/enqueuers"
	"github.com/spicaengine/fnscheduler/internal/handlers"
	"github.com/spicaengine/fnscheduler/internal/metrics"
	"github.com/spicaengine/fnscheduler/internal/models"
	"github.com/spicaengine/fnscheduler/internal/server"
	"github.com/spicaengine/fnscheduler/internal/store"
	"github.com/spicaengine/fnscheduler/internal/store/migrations"
	"github.com/spicaengine/fnscheduler/pkg/eventqueue"
	"github.com/spicaengine/fnscheduler/pkg/runtime"
	"github.com/spicaengine/fnscheduler/pkg/scheduler"
)

const (
	dbFile          = "fnscheduler.duckdb"
	shutdownTimeout = 30 * time.Second
)

// flagKeys maps each run flag to its configuration key.
var flagKeys = map[string]string{
	"server-mode":          "server.serverMode",
	"http-port":            "server.httpPort",
	"transport-address":    "transport.address",
	"max-concurrency":      "scheduler.maxConcurrency",
	"timeout":              "scheduler.timeout",
	"invocation-logs":      "scheduler.invocationLogs",
	"debug":                "scheduler.debug",
	"scale-interval":       "scheduler.scaleInterval",
	"auto-scaling":         "scheduler.autoScaling.enabled",
	"min-workers":          "scheduler.autoScaling.minWorkers",
	"max-workers":          "scheduler.autoScaling.maxWorkers",
	"scale-up-threshold":   "scheduler.autoScaling.scaleUpThreshold",
	"scale-down-threshold": "scheduler.autoScaling.scaleDownThreshold",
	"scale-cooldown":       "scheduler.autoScaling.scaleCooldown",
	"worker-idle-timeout":  "scheduler.autoScaling.workerIdleTimeout",
	"target-response-time": "scheduler.autoScaling.targetResponseTime",
	"entrypoint":           "runtime.entrypoint",
	"interpreter":          "runtime.interpreter",
	"work-dir":             "runtime.workDir",
	"data-folder":          "store.dataFolder",
	"history-limit":        "store.historyLimit",
	"auth-enabled":         "auth.enabled",
	"jwt-secret-file":      "auth.jwtSecretFile",
	"log-level":            "logLevel",
	"log-format":           "logFormat",
}

func NewRunCommand(v *viper.Viper) *cobra.Command {
	var configFile string
	defaults, err := config.NewConfigurationWithDefaults()
	if err != nil {
		panic(err)
	}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the scheduler, the worker transport and the ops API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfiguration(cmd, v, configFile)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}

	f := cmd.Flags()
	f.StringVar(&configFile, "config", "", "optional YAML configuration file")
	registerFlags(f, defaults)
	return cmd
}

func registerFlags(f *pflag.FlagSet, d *config.Configuration) {
	s, a := d.Scheduler, d.Scheduler.AutoScaling

	f.String("server-mode", d.Server.ServerMode, "ops API mode: dev or prod")
	f.Int("http-port", d.Server.HTTPPort, "ops API port")
	f.String("transport-address", d.Transport.Address, "address workers connect to, host:port or unix:/path")
	f.Int("max-concurrency", s.MaxConcurrency, "workers a single function may use at once")
	f.Int("timeout", s.Timeout, "execution timeout ceiling in seconds")
	f.Bool("invocation-logs", s.InvocationLogs, "capture function output as structured logs")
	f.Bool("debug", s.Debug, "log every placement decision at info level")
	f.Duration("scale-interval", s.ScaleInterval, "period of the scale-down check")
	f.Bool("auto-scaling", a.Enabled, "grow and shrink the pool with load")
	f.Int("min-workers", a.MinWorkers, "auto-scaling lower bound")
	f.Int("max-workers", a.MaxWorkers, "auto-scaling upper bound")
	f.Float64("scale-up-threshold", a.ScaleUpThreshold, "utilization above which the pool grows")
	f.Float64("scale-down-threshold", a.ScaleDownThreshold, "utilization below which idle workers are retired")
	f.Duration("scale-cooldown", a.ScaleCooldown, "minimum time between scaling actions")
	f.Duration("worker-idle-timeout", a.WorkerIdleTimeout, "idle time after which a worker may be retired")
	f.Duration("target-response-time", a.TargetResponseTime, "average response time above which the pool grows")
	f.String("entrypoint", d.Runtime.Entrypoint, "script every worker process runs")
	f.StringSlice("interpreter", d.Runtime.Interpreter, "interpreter command for the entrypoint")
	f.String("work-dir", d.Runtime.WorkDir, "working directory of worker processes")
	f.String("data-folder", d.Store.DataFolder, "folder of the scaling history database, empty for in-memory")
	f.Int("history-limit", d.Store.HistoryLimit, "scaling actions to keep, 0 keeps all")
	f.Bool("auth-enabled", d.Auth.Enabled, "require a bearer JWT on the ops API")
	f.String("jwt-secret-file", d.Auth.JWTSecretFile, "file holding the JWT signing secret")
}

// loadConfiguration layers defaults, the optional file, environment and
// flags, in increasing precedence.
func loadConfiguration(cmd *cobra.Command, v *viper.Viper, file string) (*config.Configuration, error) {
	cfg, err := config.NewConfigurationWithDefaults()
	if err != nil {
		return nil, err
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	for name, key := range flagKeys {
		flag := cmd.Flags().Lookup(name)
		if flag == nil {
			flag = cmd.InheritedFlags().Lookup(name)
		}
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return nil, err
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(ctx context.Context, cfg *config.Configuration) error {
	log := zap.S().Named("main")
	log.Infow("starting fnscheduler", "config", cfg.DebugMap())

	dbPath := ":memory:"
	if cfg.Store.DataFolder != "" {
		if err := os.MkdirAll(cfg.Store.DataFolder, 0o750); err != nil {
			return fmt.Errorf("failed to create data folder: %w", err)
		}
		dbPath = filepath.Join(cfg.Store.DataFolder, dbFile)
	}
	db, err := store.NewDB(dbPath)
	if err != nil {
		return err
	}
	if err := migrations.Run(ctx, db); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	st := store.NewStore(db)
	defer st.Close()

	queue := eventqueue.New(cfg.Transport.Address)
	systemPayloads := eventqueue.NewPayloadQueue(models.EventTypeSystem)
	queue.AddQueue(systemPayloads)

	rt := runtime.NewExecRuntime(
		runtime.WithInterpreter(cfg.Runtime.Interpreter...),
		runtime.WithWorkDir(cfg.Runtime.WorkDir),
		runtime.WithEnv(cfg.Runtime.Env),
	)
	var history metrics.Recorder = st.Scaling()
	if limit := cfg.Store.HistoryLimit; limit > 0 {
		retention := store.NewRetention(st.Scaling(), limit)
		if removed, err := retention.Trim(ctx); err != nil {
			log.Warnw("failed to trim scaling history", "error", err)
		} else if removed > 0 {
			log.Infow("trimmed scaling history", "removed", removed, "keep", limit)
		}
		history = retention
	}
	if last, err := st.Scaling().Latest(ctx); err == nil {
		log.Infow("resuming after last scaling action", "direction", last.Direction, "reason", last.Reason, "at", last.At)
	}
	recorder := metrics.NewCountingRecorder(history)

	sched := scheduler.New(cfg.Scheduler, rt, queue,
		scheduler.WithRecorder(recorder),
		scheduler.WithEntrypoint(cfg.Runtime.Entrypoint),
	)
	system := enqueuers.NewSystem(queue, systemPayloads)
	if err := sched.RegisterEnqueuer(system); err != nil {
		return err
	}
	if err := sched.Start(ctx); err != nil {
		return err
	}

	reg := metrics.NewRegistry(metrics.NewStatusCollector(sched), recorder.Collector())
	h := handlers.New(sched, st.Scaling(), system)
	srv, err := server.NewServer(cfg, func(router *gin.RouterGroup) {
		h.Register(router)
	}, server.WithMetrics(metrics.Handler(reg)))
	if err != nil {
		return err
	}

	serveErr := make(chan error, 1)
	go func() {
		if err := srv.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	var result error
	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case result = <-serveErr:
		log.Errorw("ops api failed", "error", result)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		log.Warnw("failed to stop ops api", "error", err)
	}
	if err := sched.Kill(shutdownCtx); err != nil {
		result = errors.Join(result, err)
	}
	return result
}
