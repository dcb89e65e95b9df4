// Package appliance assembles and runs the full device: storage gateway,
// recognition loop, enrollment coordinator, supervision tasks, and the HTTP
// control plane.
package appliance

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/facegate/facegate-go/internal/api"
	"github.com/facegate/facegate-go/internal/attendance"
	"github.com/facegate/facegate-go/internal/conf"
	"github.com/facegate/facegate-go/internal/enroll"
	"github.com/facegate/facegate-go/internal/logging"
	"github.com/facegate/facegate-go/internal/observability"
	"github.com/facegate/facegate-go/internal/recognize"
	"github.com/facegate/facegate-go/internal/storage"
	"github.com/facegate/facegate-go/internal/supervisor"
)

// Run starts the appliance and blocks until SIGINT/SIGTERM. A boot-time
// storage failure is the one fatal path: it is reported loudly and the
// process exits instead of limping along with no persistence.
func Run(cfg *conf.Config) error {
	log := logging.ForService("appliance")

	if cfg.Main.Log.Enabled {
		fileLog, closeLog, err := logging.NewFileLogger(
			cfg.Main.Log.Path, cfg.Main.Name, slog.LevelInfo,
			logging.FileLoggerOptions{
				MaxSizeMB:  cfg.Main.Log.MaxSize,
				MaxBackups: cfg.Main.Log.MaxBackups,
				MaxAgeDays: cfg.Main.Log.MaxAge,
			})
		if err != nil {
			log.Warn("file logging disabled", "path", cfg.Main.Log.Path, "error", err)
		} else {
			defer func() { _ = closeLog() }()
			slog.SetDefault(fileLog)
		}
	}

	metrics, err := observability.NewMetrics()
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}

	gateway := storage.New(cfg.Storage, storage.NewDirMedium(cfg.Storage.Root),
		storage.WithMetrics(metrics.Storage))
	if err := gateway.Open(); err != nil {
		logging.Fatal("storage medium failed to mount, appliance halted",
			"root", cfg.Storage.Root, "error", err)
	}

	settings, err := gateway.LoadSettings()
	if err != nil {
		log.Warn("using default device settings", "error", err)
	}

	templates, _, err := gateway.LoadTemplates()
	if err != nil {
		log.Warn("template store unreadable, starting with an empty set", "error", err)
	}
	matcher := recognize.NewCosineMatcher(templates)

	coordinator := enroll.New(gateway, matcher,
		cfg.Recognition.ConfirmTimes, cfg.Recognition.MaxTemplates, metrics.Attendance)

	pipeline := newPipeline(log)
	controller := attendance.New(cfg.Recognition, pipeline, matcher, gateway, coordinator, settings,
		attendance.WithMetrics(metrics.Attendance))

	watchdog := supervisor.NewWatchdog(cfg.Supervisor.WatchdogTimeout, func() {
		log.Error("recognition loop wedged, disabling auto mode until it recovers")
		controller.SetAutoMode(false)
	}, metrics.Supervisor)
	attendance.WithWatchdog(watchdog.Feed)(controller)

	link := supervisor.NewLinkMonitor(cfg.Supervisor, metrics.Supervisor)
	timeSync := supervisor.NewTimeSync(settings.NTPServer, settings.UTCOffsetMinutes,
		cfg.Supervisor.TimeSyncInterval, metrics.Supervisor)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	for _, task := range []func(context.Context){
		controller.Run, watchdog.Run, link.Run, timeSync.Run,
	} {
		wg.Add(1)
		go func(run func(context.Context)) {
			defer wg.Done()
			run(ctx)
		}(task)
	}

	var server *echo.Echo
	if cfg.WebServer.Enabled {
		server = echo.New()
		server.HideBanner = true
		api.New(server, gateway, controller, coordinator,
			api.WithMetrics(metrics),
			api.WithTimeSync(timeSync),
			api.WithStreamSource(pipeline))

		go func() {
			addr := ":" + cfg.WebServer.Port
			log.Info("control plane listening", "addr", addr)
			if err := server.Start(addr); err != nil && err != http.ErrServerClosed {
				log.Error("control plane stopped", "error", err)
			}
		}()
	}

	log.Info("appliance running",
		"name", cfg.Main.Name,
		"storage_root", cfg.Storage.Root,
		"auto_mode", controller.AutoMode())

	<-ctx.Done()
	log.Info("shutting down")

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warn("control plane shutdown incomplete", "error", err)
		}
	}
	wg.Wait()
	return nil
}

// newPipeline returns the camera pipeline for this build. Platform backends
// register themselves here; without one the appliance runs disconnected and
// serves the control plane only.
func newPipeline(log *slog.Logger) recognize.Pipeline {
	log.Warn("no camera backend compiled in, recognition runs disconnected")
	return recognize.Disconnected{}
}

