package main

import (
	"os"

	"github.com/spf13/cobra"

	"contourtrack/internal/dashboard"
)

var dashboardOut string

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Render Grafana dashboards for the GreptimeDB tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return dashboard.Render(dashboardOut, dashboard.Params{
			StationID:   cfg.StationID,
			SampleTable: os.Getenv("GREPTIMEDB_TABLE"),
			EventTable:  os.Getenv("CONTOUR_EVENT_TABLE"),
			Threshold:   int(cfg.Sampling.Threshold),
		})
	},
}

func init() {
	dashboardCmd.Flags().StringVar(&dashboardOut, "out", "build", "Directory to write rendered dashboards to")
}
