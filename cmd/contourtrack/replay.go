package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"contourtrack/internal/sink"
	"contourtrack/internal/station"
	"contourtrack/internal/telemetry"
	"contourtrack/internal/transport"
)

var (
	replayInput     string
	replaySpeed     float64
	replayPrintOnly bool
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay a JSONL report log through a station",
	Long: "replay feeds the reports of a log written by the file sink back through an " +
		"offline station, rebuilding the contour and its events.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if replayInput == "" {
			return fmt.Errorf("input file required")
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
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

		// The replayed log already went to the file sink once.
		cfg.Sinks.LogFile = ""
		writer, _, err := newWriters(cfg, writerOptions{printOnly: replayPrintOnly, record: true})
		if err != nil {
			return err
		}
		defer writer.Close()

		feed := &stationFeed{ctx: ctx}
		opts := stationOptions(cfg, v)
		opts.Now = func() time.Time { return feed.at }
		feed.st = station.New(discardConn{}, writer, opts)
		return sink.ReplayLogFile(replayInput, feed, replaySpeed)
	},
}

// stationFeed hands replayed rows to a station, keeping the station clock
// on the time each row was originally received.
type stationFeed struct {
	ctx context.Context
	st  *station.Station
	at  time.Time
}

func (f *stationFeed) Write(row telemetry.ReportRow) error {
	if err := f.ctx.Err(); err != nil {
		return err
	}
	f.at = row.Timestamp
	return f.st.HandleReport(f.ctx, row.Report())
}

// discardConn swallows the beacons an offline station sends.
type discardConn struct{}

func (discardConn) ReadPacket() ([]byte, error) { return nil, transport.ErrClosed }
func (discardConn) WritePacket([]byte) error    { return nil }
func (discardConn) Close() error                { return nil }

func init() {
	replayCmd.Flags().StringVar(&replayInput, "input", "", "Path to report log file (JSONL)")
	replayCmd.Flags().Float64Var(&replaySpeed, "speed", 1.0, "Playback speed multiplier (0 = no delay)")
	replayCmd.Flags().BoolVar(&replayPrintOnly, "print-only", false, "Print reports to STDOUT instead of writing to GreptimeDB")
}
