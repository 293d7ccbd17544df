package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/smokyabdulrahman/mosque-dashboard/internal/clock"
	"github.com/smokyabdulrahman/mosque-dashboard/internal/config"
	"github.com/smokyabdulrahman/mosque-dashboard/internal/dashboard"
	"github.com/smokyabdulrahman/mosque-dashboard/internal/notify"
	"github.com/smokyabdulrahman/mosque-dashboard/internal/server"
	"github.com/smokyabdulrahman/mosque-dashboard/internal/sound"
	"github.com/smokyabdulrahman/mosque-dashboard/internal/store"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the dashboard server",
		Long:  "Run the dashboard: refresh prayer times and weather, drive adhan and iqama audio,\nand serve the kiosk page with its websocket feed.",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := effectiveConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.RequireLocation(); err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ts, err := clock.NewTimeSource(clock.NewRealClock(), cfg.Location.Timezone)
	if err != nil {
		return err
	}

	files, err := store.New(cfg.CacheDir)
	if err != nil {
		return err
	}
	approvals, closeApprovals, err := openApprovalStore(ctx, cfg, files)
	if err != nil {
		return err
	}
	defer closeApprovals()

	hub := server.NewHub(logger, server.HubConfig{})

	var browser *server.BrowserPlayer
	var player sound.Player
	switch cfg.Audio.Backend {
	case config.BackendBrowser:
		browser = server.NewBrowserPlayer(hub, server.AudioPrefix, logger)
		player = browser
	case config.BackendSpeaker:
		player = sound.NewSpeakerPlayer(cfg.Audio.Dir, logger.Named("speaker"))
	default:
		player = mutePlayer{}
	}
	policy := sound.NewPolicy(player, logger.Named("sound"),
		sound.WithApprovalStore(approvals, approvalOrigin(cfg)))
	defer policy.Close()

	notifier := openNotifier(cfg, logger)
	defer notifier.Close()

	dash := dashboard.New(dashboard.Options{
		Config:    cfg,
		Time:      ts,
		Prayers:   newPrayerClient(),
		Weather:   newWeatherClient(),
		Cache:     files,
		Sound:     policy,
		Notifier:  notifier,
		Publisher: hub,
		Logger:    logger,
	})

	srv := server.New(dash, hub, browser, server.Options{
		Listen:   cfg.Server.Listen,
		AudioDir: cfg.Audio.Dir,
		Title:    cfg.Mosque.Name,
		Opacity:  cfg.Display.BackgroundOpacity,
	}, logger)

	logger.Info("Starting mosque dashboard",
		zap.String("config", cfg.Source()),
		zap.String("timezone", cfg.Location.Timezone),
		zap.String("audio_backend", cfg.Audio.Backend),
		zap.Bool("mqtt", cfg.MQTT.Enabled))

	if browser != nil {
		// Pages connect after boot, so Start's probe finds none.
		hub.OnRegister(func(*server.Client) {
			probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			policy.Reprobe(probeCtx)
		})
	}

	go hub.Run(ctx)
	go policy.Start(ctx)

	dashDone := make(chan error, 1)
	go func() { dashDone <- dash.Run(ctx) }()

	err = srv.Run(ctx)
	// The server can fail before any signal; stop everything else too.
	stop()
	if dashErr := <-dashDone; dashErr != nil && err == nil {
		err = dashErr
	}
	logger.Info("Mosque dashboard stopped")
	return err
}

// openApprovalStore returns the configured approval store and a func that
// releases it.
func openApprovalStore(ctx context.Context, cfg *config.Config, files *store.FileStore) (sound.ApprovalStore, func(), error) {
	if cfg.Audio.ApprovalStore != config.ApprovalRedis {
		return files, func() {}, nil
	}
	rs, err := store.NewRedisStore(ctx, store.RedisOptions{
		Addr:     cfg.Redis.Addr,
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open approval store: %w", err)
	}
	return rs, func() { _ = rs.Close() }, nil
}

// approvalOrigin names what the audio approval applies to: the page's
// listen address for browser playback, the host device otherwise.
func approvalOrigin(cfg *config.Config) string {
	if cfg.Audio.Backend == config.BackendBrowser {
		return "browser:" + cfg.Server.Listen
	}
	return cfg.Audio.Backend
}

// openNotifier connects to MQTT when enabled. A broker that cannot be
// reached disables notifications rather than the dashboard.
func openNotifier(cfg *config.Config, logger *zap.Logger) notify.Notifier {
	if !cfg.MQTT.Enabled {
		return notify.Nop{}
	}
	pub, err := notify.Connect(notify.Options{
		Broker:      cfg.MQTT.Broker,
		ClientID:    cfg.MQTT.ClientID,
		Username:    cfg.MQTT.Username,
		Password:    cfg.MQTT.Password,
		TopicPrefix: cfg.MQTT.TopicPrefix,
	}, logger)
	if err != nil {
		logger.Warn("MQTT notifications disabled", zap.Error(err))
		return notify.Nop{}
	}
	return pub
}

// mutePlayer accepts every request and plays nothing.
type mutePlayer struct{}

func (mutePlayer) Play(ctx context.Context, _ string) error { return ctx.Err() }
func (mutePlayer) Probe(context.Context) error              { return nil }

var _ sound.Player = mutePlayer{}
