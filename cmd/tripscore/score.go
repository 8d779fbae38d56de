package main

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"tripscore/internal/catalog"
	"tripscore/internal/config"
	"tripscore/internal/detector"
	"tripscore/internal/engine"
	"tripscore/internal/ingest"
	"tripscore/internal/logging"
	"tripscore/internal/model"
)

type scoreOptions struct {
	detections string
	frames     string
	endpoint   string
	pretty     bool
}

func scoreCmd(flags *globalFlags) *cobra.Command {
	opts := &scoreOptions{}
	cmd := &cobra.Command{
		Use:   "score <trip.json> [trip.json...]",
		Short: "Score trip files and print their reports as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := loadConfig(flags)
			if err != nil {
				return err
			}
			cfg := mgr.Get()
			cat, err := loadCatalog(cfg)
			if err != nil {
				return err
			}
			logger := logging.New(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)

			trips := make([]model.Trip, 0, len(args))
			for _, path := range args {
				trip, err := ingest.ReadTripFile(path, cat)
				if err != nil {
					return err
				}
				if err := opts.enrich(cmd.Context(), &trip, cfg, cat); err != nil {
					return err
				}
				trips = append(trips, trip)
			}

			eng := engine.New(cat, cfg.Scoring, logger)
			results, err := eng.ScoreBatch(cmd.Context(), trips, cfg.Workers.Count)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			if opts.pretty {
				enc.SetIndent("", "  ")
			}
			failed := 0
			for _, res := range results {
				if res.Err != nil {
					failed++
					logger.Error("trip scoring failed", "trip_id", res.TripID, "err", res.Err)
					continue
				}
				if err := enc.Encode(res.Report); err != nil {
					return err
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d trips failed", failed, len(results))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.detections, "detections", "", "Extra sign detections CSV applied to every trip")
	cmd.Flags().StringVar(&opts.frames, "frames", "", "Directory of dashcam frames to run through the sign detector")
	cmd.Flags().StringVar(&opts.endpoint, "detector", "", "Sign detector endpoint (overrides detector.endpoint)")
	cmd.Flags().BoolVar(&opts.pretty, "pretty", false, "Indent JSON output")
	return cmd
}

func (o *scoreOptions) enrich(ctx context.Context, trip *model.Trip, cfg *config.Config, cat *catalog.Catalog) error {
	if o.detections != "" {
		if err := ingest.AppendDetectionsFile(trip, o.detections, cat); err != nil {
			return err
		}
	}
	if o.frames == "" {
		return nil
	}
	dcfg := cfg.Detector
	if o.endpoint != "" {
		dcfg.Endpoint = o.endpoint
	}
	det, err := detector.NewHTTP(dcfg, cat)
	if err != nil {
		return err
	}
	frames, err := detector.LoadFrames(o.frames, trip.StartTime)
	if err != nil {
		return err
	}
	dets, err := detector.DetectFrames(ctx, det, frames, dcfg.Concurrency)
	if err != nil {
		return err
	}
	trip.Detections = append(trip.Detections, dets...)
	return nil
}
