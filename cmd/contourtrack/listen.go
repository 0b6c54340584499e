package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"contourtrack/internal/admin"
	"contourtrack/internal/config"
	"contourtrack/internal/contour"
	"contourtrack/internal/logging"
	"contourtrack/internal/motesim"
	"contourtrack/internal/station"
	"contourtrack/internal/transport"
)

var (
	listenPrintOnly bool
	listenTUI       bool
	listenAdminAddr string
)

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Run the base station",
	Long: "listen connects to the mote network over the configured link, tracks the " +
		"contour of the sampled field and beacons sampling settings back to the motes. " +
		"With link kind \"sim\" an in-process simulated field stands in for the motes.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if listenAdminAddr != "" {
			cfg.AdminAddr = listenAdminAddr
		}
		v, err := cfg.ParsedVariant()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		var logOut io.Writer = os.Stderr
		if listenTUI {
			logOut = io.Discard
		}
		ctx, err = withLogger(ctx, cfg, logOut)
		if err != nil {
			return err
		}
		log := logging.FromContext(ctx)

		writer, tui, err := newWriters(cfg, writerOptions{printOnly: listenPrintOnly, tui: listenTUI, record: true})
		if err != nil {
			return err
		}
		defer func() {
			if err := writer.Close(); err != nil {
				log.Error("closing writers", "err", err)
			}
		}()

		opts := stationOptions(cfg, v)
		conn, field, err := openLink(ctx, cfg, v)
		if err != nil {
			return err
		}
		if field != nil && len(opts.Order) == 0 {
			opts.Order = field.IDs()
		}
		st := station.New(conn, writer, opts)

		if cfg.AdminAddr != "" {
			srv := admin.NewServer(st)
			go func() {
				log.Info("admin UI listening", "addr", cfg.AdminAddr)
				if err := srv.Start(ctx, cfg.AdminAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("admin server failed", "err", err)
				}
			}()
		}
		if tui != nil {
			tui.SetAdminStatus(cfg.AdminAddr != "")
			tui.SetThresholdFunc(func(n int) error { return st.SetThreshold(ctx, n) })
		}

		err = st.Run(ctx)
		stop()
		if field != nil {
			<-field.done
		}
		log.Info("station stopped", "received", st.Stats().Received)
		return err
	},
}

// simField is an in-process mote field running on the far end of a pipe.
type simField struct {
	*motesim.Field
	done chan struct{}
}

// openLink connects the configured link. For the "sim" kind it starts a
// simulated field on one end of a pipe and returns the other.
func openLink(ctx context.Context, cfg *config.StationConfig, v contour.Variant) (transport.PacketConn, *simField, error) {
	if cfg.Link.Kind != transport.LinkSim {
		conn, err := transport.Open(ctx, cfg.Link)
		return conn, nil, err
	}
	stationEnd, motesEnd := transport.Pipe()
	f := &simField{Field: motesim.New(fieldOptions(cfg, v)), done: make(chan struct{})}
	go func() {
		defer close(f.done)
		if err := f.Run(ctx, motesEnd, cfg.Addr, cfg.Group); err != nil {
			logging.FromContext(ctx).Error("mote field failed", "err", err)
		}
	}()
	return stationEnd, f, nil
}

func stationOptions(cfg *config.StationConfig, v contour.Variant) station.Options {
	return station.Options{
		StationID:    cfg.StationID,
		Variant:      v,
		Addr:         cfg.Addr,
		Group:        cfg.Group,
		Interval:     cfg.Sampling.Interval,
		Threshold:    cfg.Sampling.Threshold,
		BeaconPeriod: cfg.BeaconPeriod,
		Order:        cfg.Order,
		StatsWindow:  cfg.StatsWindow,
	}
}

func fieldOptions(cfg *config.StationConfig, v contour.Variant) motesim.Options {
	sc := cfg.Simulation
	return motesim.Options{
		Rows:      sc.Rows,
		Cols:      sc.Cols,
		Variant:   v,
		Sources:   sc.Sources,
		Base:      sc.Base,
		Peak:      sc.Peak,
		Radius:    sc.Radius,
		Noise:     sc.Noise,
		Step:      sc.Step,
		Seed:      sc.Seed,
		Interval:  cfg.Sampling.Interval,
		Threshold: cfg.Sampling.Threshold,
	}
}

func init() {
	listenCmd.Flags().BoolVar(&listenPrintOnly, "print-only", false, "Print reports to STDOUT instead of writing to GreptimeDB")
	listenCmd.Flags().BoolVar(&listenTUI, "tui", false, "Show the interactive terminal UI")
	listenCmd.Flags().StringVar(&listenAdminAddr, "admin", "", "Admin UI listen address (overrides admin_addr)")
}
