package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"contourtrack/internal/logging"
	"contourtrack/internal/motesim"
	"contourtrack/internal/transport"
)

var simListen string

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Serve a simulated mote field over the serial forwarder protocol",
	Long: "simulate exposes a field of simulated ContourTracking motes on a TCP " +
		"serial forwarder port. Every client gets its own field.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if simListen != "" {
			cfg.Simulation.ListenSF = simListen
		}
		if cfg.Simulation.ListenSF == "" {
			cfg.Simulation.ListenSF = ":9002"
		}
		v, err := cfg.ParsedVariant()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		ctx, err = withLogger(ctx, cfg, os.Stderr)
		if err != nil {
			return err
		}
		log := logging.FromContext(ctx)

		ln, err := net.Listen("tcp", cfg.Simulation.ListenSF)
		if err != nil {
			return fmt.Errorf("listen %s: %w", cfg.Simulation.ListenSF, err)
		}
		log.Info("serial forwarder listening", "addr", ln.Addr().String(), "variant", v)

		return transport.ServeSF(ctx, ln, func(c *transport.SFConn) {
			f := motesim.New(fieldOptions(cfg, v))
			log.Info("client connected", "motes", len(f.IDs()))
			if err := f.Run(ctx, c, cfg.Addr, cfg.Group); err != nil {
				log.Warn("client link failed", "err", err)
			}
			log.Info("client disconnected")
		})
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simListen, "listen", "", "Serial forwarder listen address (overrides simulation.listen_sf)")
}
