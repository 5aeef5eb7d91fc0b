package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/spf13/cobra"

	"github.com/smazurov/camrelay/cmd"
	"github.com/smazurov/camrelay/internal/api"
	"github.com/smazurov/camrelay/internal/camera"
	"github.com/smazurov/camrelay/internal/cloud/natsgw"
	"github.com/smazurov/camrelay/internal/config"
	"github.com/smazurov/camrelay/internal/events"
	"github.com/smazurov/camrelay/internal/ffmpeg"
	"github.com/smazurov/camrelay/internal/fleet"
	"github.com/smazurov/camrelay/internal/idle"
	"github.com/smazurov/camrelay/internal/led"
	"github.com/smazurov/camrelay/internal/logging"
	"github.com/smazurov/camrelay/internal/metrics"
	camnats "github.com/smazurov/camrelay/internal/nats"
	"github.com/smazurov/camrelay/internal/pipeline"
	"github.com/smazurov/camrelay/internal/systemd"
	"github.com/smazurov/camrelay/internal/worker"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `doc:"Path to configuration file" short:"c" default:"config.toml"`

	Debug bool `doc:"Debug logging and ffmpeg stderr" default:"false" toml:"debug" env:"DEBUG"`

	// Server settings
	Port string `doc:"HTTP API listen address" short:"p" default:":8090" toml:"server.port" env:"SERVER_PORT"`

	// FFmpeg settings
	FFmpegOutput      string `doc:"Output arguments, {name} is the camera name" default:"-f rtsp rtsp://127.0.0.1:8554/{name}" toml:"ffmpeg.output" env:"FFMPEG_OUTPUT"`
	FFmpegBinary      string `doc:"ffmpeg binary" default:"ffmpeg" toml:"ffmpeg.binary" env:"FFMPEG_BINARY"`
	FFmpegProbeBinary string `doc:"ffprobe binary" default:"ffprobe" toml:"ffmpeg.probe_binary" env:"FFMPEG_PROBE_BINARY"`

	// Camera settings
	CameraMotionTimeout     time.Duration `doc:"Seconds of no motion before returning to idle" default:"60s" toml:"camera.motion_timeout" env:"CAMERA_MOTION_TIMEOUT"`
	CameraDefaultResolution string        `doc:"Resolution until a live feed was probed" default:"1280x720" toml:"camera.default_resolution" env:"CAMERA_DEFAULT_RESOLUTION"`
	CameraIdleFromLastImage bool          `doc:"Render the idle video from the last snapshot" default:"false" toml:"camera.idle_from_last_image" env:"CAMERA_IDLE_FROM_LAST_IMAGE"`
	CameraIdleImage         string        `doc:"Image rendered when no snapshot is usable" default:"" toml:"camera.idle_image" env:"CAMERA_IDLE_IMAGE"`
	CameraIdleVideo         string        `doc:"Static idle video fallback" default:"idle.ts" toml:"camera.idle_video" env:"CAMERA_IDLE_VIDEO"`
	CameraWorkDir           string        `doc:"Directory for rendered idle videos" default:"" toml:"camera.work_dir" env:"CAMERA_WORK_DIR"`
	CameraPictureQueueSize  int           `doc:"Snapshots buffered per camera" default:"10" toml:"camera.picture_queue_size" env:"CAMERA_PICTURE_QUEUE_SIZE"`

	// Device settings
	DeviceStatusInterval time.Duration `doc:"Status heartbeat interval" default:"120s" toml:"device.status_interval" env:"DEVICE_STATUS_INTERVAL"`

	// Vendor gateway settings
	VendorRefreshSchedule string        `doc:"Cron spec for reconnecting the vendor session" default:"@every 1h" toml:"vendor.refresh_schedule" env:"VENDOR_REFRESH_SCHEDULE"`
	VendorPrefix          string        `doc:"Vendor gateway subject prefix" default:"vendor" toml:"vendor.prefix" env:"VENDOR_PREFIX"`
	VendorRequestTimeout  time.Duration `doc:"Vendor call timeout" default:"30s" toml:"vendor.request_timeout" env:"VENDOR_REQUEST_TIMEOUT"`

	// NATS settings
	NatsURL      string `doc:"NATS server URL" default:"nats://127.0.0.1:4222" toml:"nats.url" env:"NATS_URL"`
	NatsEmbedded bool   `doc:"Run an embedded NATS server" default:"false" toml:"nats.embedded" env:"NATS_EMBEDDED"`
	NatsPort     int    `doc:"Embedded NATS server port" default:"4222" toml:"nats.port" env:"NATS_PORT"`
	NatsPrefix   string `doc:"Subject prefix for published topics" default:"camrelay" toml:"nats.prefix" env:"NATS_PREFIX"`

	// Worker settings
	WorkerSize int `doc:"Concurrent vendor calls" default:"4" toml:"worker.size" env:"WORKER_SIZE"`

	// Auth settings
	AuthUsername string `doc:"Basic auth username, empty disables auth" default:"" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `doc:"Basic auth password" default:"" toml:"auth.password" env:"AUTH_PASSWORD"`

	// Activity LED settings
	LedEnabled bool   `doc:"Show camera activity on a board LED" default:"false" toml:"led.enabled" env:"LED_ENABLED"`
	LedName    string `doc:"sysfs LED name, empty picks the board default" default:"" toml:"led.name" env:"LED_NAME"`

	// Logging settings
	LoggingLevel  string `doc:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat string `doc:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
}

func main() {
	var root *cobra.Command

	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		if loadErr := config.LoadConfig(opts, root); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		loggingConfig, logErr := config.LoadLogging(opts.Config)
		if logErr != nil {
			loggingConfig = logging.Config{Modules: map[string]string{}}
		}
		loggingConfig.Level = opts.LoggingLevel
		loggingConfig.Format = opts.LoggingFormat
		if opts.Debug {
			loggingConfig.Level = "debug"
		}
		logging.Initialize(loggingConfig)
		logger := logging.GetLogger("main")

		defaultRes, resErr := ffmpeg.ParseResolution(opts.CameraDefaultResolution)
		if resErr != nil {
			logger.Error("Invalid default resolution", "value", opts.CameraDefaultResolution, "error", resErr)
			os.Exit(1)
		}
		if _, outErr := ffmpeg.OutputArgs(opts.FFmpegOutput, "probe"); outErr != nil {
			logger.Error("Invalid ffmpeg output", "value", opts.FFmpegOutput, "error", outErr)
			os.Exit(1)
		}

		bus := events.New()
		notifier := systemd.NewNotifier()
		pool := worker.New(opts.WorkerSize)
		builder := ffmpeg.NewBuilder(opts.FFmpegBinary, opts.FFmpegProbeBinary, opts.Debug)
		idleGen := idle.New(idle.Config{
			Builder:       builder,
			WorkDir:       opts.CameraWorkDir,
			DefaultImage:  opts.CameraIdleImage,
			DefaultVideo:  opts.CameraIdleVideo,
			FromLastImage: opts.CameraIdleFromLastImage,
		})

		var embedded *camnats.Server
		natsURL := opts.NatsURL
		if opts.NatsEmbedded {
			embedded = camnats.NewServer(camnats.ServerOptions{Port: opts.NatsPort})
		}

		newPipeline := func(name string) camera.Pipeline {
			output, _ := ffmpeg.OutputArgs(opts.FFmpegOutput, name)
			return pipeline.New(pipeline.Config{
				Camera:   name,
				Commands: pipeline.FFmpegCommands{Builder: builder, Output: output},
				Debug:    opts.Debug,
				Bus:      bus,
			})
		}

		cameraConfig := camera.Config{
			MotionTimeout:     opts.CameraMotionTimeout,
			StatusInterval:    opts.DeviceStatusInterval,
			DefaultResolution: defaultRes,
			PictureQueueSize:  opts.CameraPictureQueueSize,
		}

		var (
			cams      *fleet.Fleet
			publisher *camnats.Publisher
			server    *api.Server
			leds      *led.Manager
			watcher   *config.Watcher[logging.Config]
			cancel    context.CancelFunc
			done      = make(chan struct{})
		)

		hooks.OnStart(func() {
			ctx, stop := context.WithCancel(context.Background())
			cancel = stop

			if embedded != nil {
				if err := embedded.Start(); err != nil {
					logger.Error("Failed to start embedded NATS server", "error", err)
					os.Exit(1)
				}
				natsURL = embedded.ClientURL()
			}

			cams = fleet.New(fleet.Config{
				Camera:          cameraConfig,
				StatusInterval:  opts.DeviceStatusInterval,
				RefreshSchedule: opts.VendorRefreshSchedule,
			}, fleet.Deps{
				Connect: natsgw.Connector(natsgw.Options{
					URL:            natsURL,
					Subjects:       natsgw.Subjects{Prefix: opts.VendorPrefix},
					RequestTimeout: opts.VendorRequestTimeout,
				}),
				NewPipeline: newPipeline,
				Idle:        idleGen,
				Prober:      builder,
				Pool:        pool,
				Bus:         bus,
			})

			publisher = camnats.NewPublisher(camnats.Options{
				URL:      natsURL,
				Subjects: camnats.Subjects{Prefix: opts.NatsPrefix},
			}, bus, cams)
			if err := publisher.Start(); err != nil {
				logger.Error("Failed to start NATS publisher", "error", err)
				os.Exit(1)
			}

			watcher = config.NewWatcher(opts.Config, config.LoadLogging)
			watcher.OnReload(func(cfg logging.Config) {
				if opts.Debug {
					cfg.Level = "debug"
				}
				logging.SetLevels(cfg)
			})
			if err := watcher.Start(ctx); err != nil {
				logger.Warn("Config watcher disabled", "path", opts.Config, "error", err)
			}

			if opts.LedEnabled {
				leds = led.NewManager(led.New(opts.LedName), bus)
				leds.Start()
			}

			server = api.NewServer(&api.Options{
				AuthUsername:      opts.AuthUsername,
				AuthPassword:      opts.AuthPassword,
				Fleet:             cams,
				Bus:               bus,
				PrometheusHandler: metrics.Handler(),
			})

			go func() {
				defer close(done)
				if err := cams.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("Fleet stopped", "error", err)
				}
			}()

			// SIGHUP refreshes the vendor session. humacli handles
			// SIGINT and SIGTERM and calls OnStop.
			hup := make(chan os.Signal, 1)
			signal.Notify(hup, syscall.SIGHUP)
			go func() {
				for {
					select {
					case <-ctx.Done():
						signal.Stop(hup)
						return
					case <-hup:
						logger.Info("SIGHUP received, refreshing vendor session")
						notifier.Status("refreshing vendor session")
						cams.Refresh()
					}
				}
			}()

			notifier.Ready(ctx)
			if err := server.Start(opts.Port); err != nil {
				logger.Error("Failed to start HTTP server", "error", err)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down")
			notifier.Stopping()
			if server != nil {
				if err := server.Stop(); err != nil {
					logger.Error("Error stopping HTTP server", "error", err)
				}
			}

			// Cameras first: their processes get SIGTERM in parallel.
			if cams != nil {
				cams.Stop(syscall.SIGTERM)
				select {
				case <-done:
				case <-time.After(15 * time.Second):
					logger.Warn("Timed out waiting for cameras to stop")
				}
			}
			if cancel != nil {
				cancel()
			}

			if leds != nil {
				leds.Stop()
			}
			if publisher != nil {
				publisher.Stop()
			}
			if embedded != nil {
				embedded.Stop()
			}
			pool.Close()
		})
	})

	root = cli.Root()
	root.Use = "camrelay"
	root.Short = "Relay vendor cloud cameras as always-on streams"

	root.AddCommand(cmd.CreateControlCmd())
	root.AddCommand(cmd.CreateIdleVideoCmd())

	cli.Run()
}
