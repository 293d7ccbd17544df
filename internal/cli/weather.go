package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/smokyabdulrahman/mosque-dashboard/internal/display"
)

func newWeatherCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "weather",
		Short: "Show the current weather",
		Long:  "Display the current temperature and condition at the configured location.",
		RunE:  runWeather,
	}
}

func runWeather(cmd *cobra.Command, args []string) error {
	cfg, err := effectiveConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.RequireLocation(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
	defer cancel()

	reading, err := newWeatherClient().Current(ctx, cfg.Location.Latitude, cfg.Location.Longitude, cfg.Location.Timezone)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if FlagJSON {
		data, err := json.MarshalIndent(reading, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Fprintln(w, string(data))
		return nil
	}

	fmt.Fprintf(w, "  %s %s  %s\n", reading.Icon, display.Boldf("%d°C", reading.TemperatureC), reading.Description)
	return nil
}
