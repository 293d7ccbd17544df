package cli

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/smokyabdulrahman/mosque-dashboard/internal/api"
	"github.com/smokyabdulrahman/mosque-dashboard/internal/clock"
	"github.com/smokyabdulrahman/mosque-dashboard/internal/config"
	"github.com/smokyabdulrahman/mosque-dashboard/internal/display"
	"github.com/smokyabdulrahman/mosque-dashboard/internal/geo"
	"github.com/smokyabdulrahman/mosque-dashboard/internal/weather"
)

// Global flags shared across all subcommands.
var (
	FlagConfig     string
	FlagJSON       bool
	FlagTimeFormat string
	FlagLogLevel   string
)

// loadedConfig holds the config loaded during PersistentPreRunE, with the
// environment applied. loadedPath is the file it came from (or would be
// saved to). Both are available to all subcommand handlers.
var (
	loadedConfig *config.Config
	loadedPath   string
)

// Constructors for the outside world. Tests point them at fakes.
var (
	newPrayerClient  = api.NewClient
	newWeatherClient = weather.NewClient
	newClock         = func() clock.Clock { return clock.NewRealClock() }
	detectLocation   = geo.DetectLocation
)

// NewRootCmd creates the root command for the mosque-dashboard CLI.
// The version parameter is set by the calling binary via ldflags.
func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "mosque-dashboard",
		Short:   "Mosque prayer times dashboard",
		Long:    "A prayer times dashboard for mosque screens, with adhan and iqama audio,\npowered by the Al Adhan and Open-Meteo APIs.",
		Version: version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// A missing .env is normal; secrets may come from the environment.
			if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("failed to load .env: %w", err)
			}

			path, err := config.Path(FlagConfig)
			if err != nil {
				return err
			}
			cfg, err := config.LoadFrom(path)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			cfg.ApplyEnv()
			loadedConfig = cfg
			loadedPath = path
			return nil
		},
		// Default action: show today's prayer schedule.
		RunE:          runToday,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Register global persistent flags.
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&FlagConfig, "config", "", "Config file (default: ~/.config/mosque-dashboard/config.yaml)")
	pf.BoolVar(&FlagJSON, "json", false, "Output as JSON (where supported)")
	pf.StringVar(&FlagTimeFormat, "time-format", "", "Time format: 12h or 24h (overrides config)")
	pf.StringVar(&FlagLogLevel, "log-level", "", "Log level: debug, info, warn or error (overrides config)")

	// Register subcommands.
	rootCmd.AddCommand(newTodayCmd())
	rootCmd.AddCommand(newNextCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newWeatherCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newMethodsCmd())
	rootCmd.AddCommand(newLocateCmd())

	return rootCmd
}

// effectiveConfig returns the merged configuration values,
// applying the priority: CLI flags > environment > config file > defaults.
// It uses cobra's Changed() to detect whether a flag was explicitly set.
func effectiveConfig(cmd *cobra.Command) (*config.Config, error) {
	var cfg config.Config
	if loadedConfig != nil {
		cfg = *loadedConfig
	} else {
		cfg = config.Defaults()
	}

	flags := cmd.Flags()
	root := cmd.Root().PersistentFlags()

	if flagWasSet(flags, root, "time-format") {
		if err := cfg.Set("display.time_format", FlagTimeFormat); err != nil {
			return nil, err
		}
	}
	if flagWasSet(flags, root, "log-level") {
		if err := cfg.Set("log_level", FlagLogLevel); err != nil {
			return nil, err
		}
	}

	return &cfg, nil
}

// flagWasSet checks if a flag was explicitly set on either the local or persistent flag set.
func flagWasSet(local, persistent *pflag.FlagSet, name string) bool {
	if f := local.Lookup(name); f != nil && f.Changed {
		return true
	}
	if f := persistent.Lookup(name); f != nil && f.Changed {
		return true
	}
	return false
}

// newLogger builds the daemon logger: JSON at info and above, the
// human-readable development encoder at debug.
func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	zcfg := zap.NewProductionConfig()
	if lvl.Level() == zapcore.DebugLevel {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = lvl
	return zcfg.Build()
}

// warnf prints a non-fatal problem to stderr.
func warnf(cmd *cobra.Command, format string, a ...any) {
	fmt.Fprintf(cmd.ErrOrStderr(), "%s %s\n", display.Yellow("warning:"), fmt.Sprintf(format, a...))
}
