package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"contourtrack/internal/grid"
	"contourtrack/internal/logging"
	"contourtrack/internal/recorder"
	"contourtrack/internal/sink"
	"contourtrack/internal/telemetry"
)

var (
	playInput string
	playSpeed float64
	playStart time.Duration
	playTUI   bool
)

var playCmd = &cobra.Command{
	Use:   "play",
	Short: "Play back a contour recording",
	Long:  "play steps through the snapshots a station recorded, drawing the grid and its contour events.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if playInput == "" {
			return fmt.Errorf("input file required")
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		rec, err := recorder.Load(playInput)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		var logOut io.Writer = os.Stderr
		if playTUI {
			logOut = io.Discard
		}
		ctx, err = withLogger(ctx, cfg, logOut)
		if err != nil {
			return err
		}
		log := logging.FromContext(ctx)
		log.Info("loaded recording",
			"session", rec.Header.Session,
			"station_id", rec.Header.StationID,
			"variant", rec.Header.Variant,
			"snapshots", len(rec.Snapshots),
			"duration", rec.Duration())
		if rec.Truncated {
			log.Warn("recording ends inside a snapshot; the partial record was skipped")
		}

		var front sink.Writer
		if playTUI {
			front = sink.NewTUIWriter(cfg)
		} else {
			front = sink.NewStdoutWriter(cfg)
		}
		out := sink.NewMultiWriter([]sink.Writer{front}, nil)
		defer out.Close()
		_, drawsSnapshots := front.(sink.SnapshotWriter)
		enc := json.NewEncoder(os.Stdout)

		p := recorder.NewPlayer(rec)
		if _, ok := p.Seek(playStart); !ok {
			return fmt.Errorf("recording %s has no snapshots", playInput)
		}
		return p.Play(ctx, playSpeed, func(s grid.Snapshot) error {
			if drawsSnapshots {
				if err := out.WriteSnapshot(s); err != nil {
					return err
				}
			} else if err := enc.Encode(s); err != nil {
				return err
			}
			if s.Event == nil {
				return nil
			}
			return out.WriteEvent(eventRow(rec.Header.StationID, s))
		})
	},
}

func eventRow(stationID string, s grid.Snapshot) telemetry.ContourEventRow {
	return telemetry.ContourEventRow{
		StationID: stationID,
		Kind:      string(s.Event.Kind),
		PrevBlobs: s.Event.PrevBlobs,
		Blobs:     s.Event.Blobs,
		MoteIDs:   s.Event.Motes,
		Threshold: s.Threshold,
		Clock:     s.LatestClock,
		Timestamp: s.Taken.UTC(),
	}
}

func init() {
	playCmd.Flags().StringVar(&playInput, "input", "", "Path to a contour recording")
	playCmd.Flags().Float64Var(&playSpeed, "speed", 1.0, "Playback speed multiplier (0 = no delay)")
	playCmd.Flags().DurationVar(&playStart, "start", 0, "Offset into the recording to start from")
	playCmd.Flags().BoolVar(&playTUI, "tui", false, "Show the interactive terminal UI")
}
