package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"tripscore/internal/catalog"
	"tripscore/internal/config"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// a missing .env is normal outside development
	_ = godotenv.Load()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type globalFlags struct {
	configPath string
	logLevel   string
}

func rootCmd() *cobra.Command {
	flags := &globalFlags{}
	cmd := &cobra.Command{
		Use:   "tripscore",
		Short: "Trip safety scoring and sign correlation",
		Long: `tripscore turns a closed trip's kinematic events and traffic sign
detections into a safety report: posted-limit timeline, limit violations,
per-category scores, recommendations and an overall 0-100 score.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", os.Getenv("TRIPSCORE_CONFIG"), "Config file path (YAML or JSON)")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Override log level (debug, info, warn, error)")

	cmd.AddCommand(serveCmd(flags))
	cmd.AddCommand(scoreCmd(flags))
	cmd.AddCommand(catalogCmd(flags))
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "tripscore version %s (build: %s)\n", Version, BuildTime)
		},
	})
	return cmd
}

func loadConfig(flags *globalFlags) (*config.Manager, error) {
	mgr, err := config.NewManager(config.ResolvePath(flags.configPath))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if flags.logLevel != "" {
		mgr.Get().LogLevel = flags.logLevel
	}
	return mgr, nil
}

func loadCatalog(cfg *config.Config) (*catalog.Catalog, error) {
	if cfg.Catalog.Path == "" {
		return catalog.Default(), nil
	}
	cat, err := catalog.LoadFile(cfg.Catalog.Path)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	return cat, nil
}

func catalogCmd(flags *globalFlags) *cobra.Command {
	var speedOnly bool
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "List the traffic sign classes",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := loadConfig(flags)
			if err != nil {
				return err
			}
			cat, err := loadCatalog(mgr.Get())
			if err != nil {
				return err
			}
			entries := cat.All()
			if speedOnly {
				entries = cat.SpeedLimits()
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tCATEGORY\tLIMIT")
			for _, e := range entries {
				limit := "-"
				if e.LimitKPH != nil {
					limit = fmt.Sprintf("%d km/h", *e.LimitKPH)
				} else if e.Kind != catalog.KindNone {
					limit = string(e.Kind)
				}
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", e.ID, e.Name, e.Category, limit)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&speedOnly, "speed-limits", false, "Only list classes that change the posted limit")
	return cmd
}
