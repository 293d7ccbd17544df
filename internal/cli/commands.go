package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/smokyabdulrahman/mosque-dashboard/internal/api"
	"github.com/smokyabdulrahman/mosque-dashboard/internal/config"
	"github.com/smokyabdulrahman/mosque-dashboard/internal/display"
	"github.com/smokyabdulrahman/mosque-dashboard/internal/geo"
)

var flagForce bool

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or modify configuration",
		Long:  "Display current configuration, or use subcommands to modify it.\nWhen run without subcommands, shows the current configuration.",
		RunE:  runConfigShow,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get <key>",
		Short: "Print a config value",
		Args:  cobra.ExactArgs(1),
		RunE:  runConfigGet,
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a config value",
		Long: fmt.Sprintf("Set a configuration value. Valid keys: %s\n\nExamples:\n  mosque-dashboard config set mosque.name \"مسجد النور\"\n  mosque-dashboard config set prayer.method 4\n  mosque-dashboard config set prayer.iqama.Maghrib 10\n  mosque-dashboard config set display.time_format 12h\n  mosque-dashboard config set audio.adhan makkah.mp3,madinah.mp3",
			strings.Join(config.ValidKeys, ", ")),
		Args: cobra.ExactArgs(2),
		RunE: runConfigSet,
	})

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file with default values",
		RunE:  runConfigInit,
	}
	initCmd.Flags().BoolVar(&flagForce, "force", false, "Overwrite an existing config file")
	cmd.AddCommand(initCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "Reset config to defaults",
		Long:  "Delete the config file and restore all settings to defaults.",
		RunE:  runConfigReset,
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print config file path",
		RunE:  runConfigPath,
	})

	return cmd
}

// runConfigShow displays the current configuration.
func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := effectiveConfig(cmd)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	source := loadedPath
	if cfg.Source() == "" {
		source += ", not created yet"
	}
	fmt.Fprintf(w, "  Configuration (%s)\n\n", source)

	for _, key := range config.ShowKeys {
		val, _ := cfg.Get(key)
		shown := val
		if shown == "" {
			shown = display.Gray("(not set)")
		}
		// Add descriptive labels for method and school.
		if key == "prayer.method" && val != "" {
			shown = formatMethodValue(val)
		}
		if key == "prayer.school" && val != "" {
			shown = formatSchoolValue(val)
		}
		fmt.Fprintf(w, "  %-28s %s\n", key, shown)
	}
	return nil
}

// runConfigGet prints one key, suitable for scripts.
func runConfigGet(cmd *cobra.Command, args []string) error {
	cfg, err := effectiveConfig(cmd)
	if err != nil {
		return err
	}
	val, err := cfg.Get(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), val)
	return nil
}

// runConfigSet sets a config key to the given value.
func runConfigSet(cmd *cobra.Command, args []string) error {
	key, value := args[0], args[1]

	// Reload without the environment so secrets and overrides stay out of
	// the file.
	cfg, err := config.LoadFrom(loadedPath)
	if err != nil {
		return err
	}

	if err := cfg.Set(key, value); err != nil {
		return err
	}

	if err := cfg.SaveTo(loadedPath); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s\n", key, value)
	return nil
}

// runConfigInit writes the defaults to the config path.
func runConfigInit(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(loadedPath); err == nil && !flagForce {
		return fmt.Errorf("config file %s already exists (use --force to overwrite)", loadedPath)
	}

	cfg := config.Defaults()
	if err := cfg.SaveTo(loadedPath); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\nSet your location with `mosque-dashboard locate` or `mosque-dashboard config set`.\n", loadedPath)
	return nil
}

// runConfigReset deletes the config file.
func runConfigReset(cmd *cobra.Command, args []string) error {
	if err := os.Remove(loadedPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove config file: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Configuration reset to defaults.")
	return nil
}

// runConfigPath prints the config file path.
func runConfigPath(cmd *cobra.Command, args []string) error {
	fmt.Fprintln(cmd.OutOrStdout(), loadedPath)
	return nil
}

// formatMethodValue adds the method name to the numeric value.
func formatMethodValue(val string) string {
	id, err := strconv.Atoi(val)
	if err != nil {
		return val
	}
	if name := api.MethodName(id); name != "" {
		return fmt.Sprintf("%s (%s)", val, name)
	}
	return val
}

// formatSchoolValue adds the school name to the numeric value.
func formatSchoolValue(val string) string {
	switch val {
	case "0":
		return "0 (Shafi)"
	case "1":
		return "1 (Hanafi)"
	default:
		return val
	}
}

func newMethodsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "methods",
		Short: "List all calculation methods",
		Long:  "Print the table of all supported Al Adhan API calculation methods.",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			fmt.Fprintln(w, "Supported calculation methods:")
			fmt.Fprintln(w)

			tbl := display.NewTable([]string{"ID", "Name"})
			for _, m := range api.Methods {
				tbl.AddRow([]string{strconv.Itoa(m.ID), m.Name})
			}
			fmt.Fprint(w, tbl.Render())

			fmt.Fprintln(w)
			fmt.Fprintln(w, "Use `mosque-dashboard config set prayer.method <ID>` to select a calculation method.")
			fmt.Fprintln(w, "If unset, the API picks a default based on your location.")
			return nil
		},
	}
}

func newLocateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "locate",
		Short: "Detect the location and save it to the config",
		Long:  "Look up latitude, longitude and timezone from this host's public IP address\nand store them in the config file.",
		Args:  cobra.NoArgs,
		RunE:  runLocate,
	}
}

func runLocate(cmd *cobra.Command, args []string) error {
	cfg, err := effectiveConfig(cmd)
	if err != nil {
		return err
	}
	cache := openCache(cmd, cfg)

	ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
	defer cancel()

	loc, err := detectLocation(ctx)
	switch {
	case err == nil:
		if cache != nil {
			_ = cache.SaveGeo(loc) // best-effort
		}
	case cache != nil && cache.LoadGeo() != nil:
		warnf(cmd, "detection failed, using cached location: %v", err)
		loc = cache.LoadGeo()
	default:
		return fmt.Errorf("location detection failed: %w", err)
	}

	saved, err := config.LoadFrom(loadedPath)
	if err != nil {
		return err
	}
	saved.Location = config.Location{
		Latitude:  loc.Latitude,
		Longitude: loc.Longitude,
		Timezone:  loc.Timezone,
	}
	if err := saved.SaveTo(loadedPath); err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "  %s\n", display.Bold(describeLocation(loc)))
	fmt.Fprintf(w, "  %.4f, %.4f  %s\n", loc.Latitude, loc.Longitude, loc.Timezone)
	fmt.Fprintf(w, "  Saved to %s\n", loadedPath)
	return nil
}

// describeLocation builds a "City, Country" string from available data.
func describeLocation(loc *geo.Location) string {
	if loc.City != "" && loc.Country != "" {
		return loc.City + ", " + loc.Country
	}
	// Fall back to coordinates.
	return fmt.Sprintf("%.4f, %.4f", loc.Latitude, loc.Longitude)
}
