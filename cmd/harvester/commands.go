package main

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/deusflow/newsharvest/internal/app"
	"github.com/deusflow/newsharvest/internal/config"
	"github.com/deusflow/newsharvest/internal/logger"
	"github.com/deusflow/newsharvest/internal/sources"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "harvester",
		Short:         "Harvest, rewrite and publish news",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newRunCmd(),
		newOnceCmd(),
		newSourcesCmd(),
		newStoreStatsCmd(),
	)
	return root
}

// newRunCmd schedules every active source until interrupted.
func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the scheduler for all active sources",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			log := logger.Init()

			a, err := app.New(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			if cfg.EnableMonitoring {
				go func() {
					h := app.MonitoringHandler(a.Metrics(), a.Stats)
					if err := app.ServeMonitoring(ctx, cfg.MonitoringPort, h, log); err != nil {
						logger.Error("Monitoring server error", "error", err)
					}
				}()
			}

			sched := a.Scheduler()
			if err := sched.Start(ctx); err != nil {
				return err
			}
			logger.Info("Harvester started", "interval", cfg.PollInterval, "sources", len(a.Jobs()))

			<-ctx.Done()
			logger.Info("Shutting down")
			sched.Stop()
			return nil
		},
	}
}

func newOnceCmd() *cobra.Command {
	var key string
	cmd := &cobra.Command{
		Use:   "once",
		Short: "Run a single cycle for one source",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			log := logger.Init()

			a, err := app.New(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			rep, err := a.RunOnce(cmd.Context(), key)
			fmt.Fprintf(cmd.OutOrStdout(),
				"cycle %s: scraped=%d duplicates=%d rewritten=%d irrelevant=%d persisted=%d images=%d sent=%d skipped=%d failed=%d (%s)\n",
				rep.CycleID, rep.Scraped, rep.KnownLinks+rep.Duplicates, rep.Rewritten, rep.Irrelevant,
				rep.Persisted, rep.ImagesUpdated, rep.Sent, rep.Skipped, rep.SendFailed, rep.Duration.Round(time.Millisecond))
			return err
		},
	}
	cmd.Flags().StringVar(&key, "source", "", "source key from the catalog")
	_ = cmd.MarkFlagRequired("source")
	return cmd
}

func newSourcesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "List the source catalog",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Read()
			if err != nil {
				return err
			}
			reg, err := sources.LoadRegistry(cfg.SourcesConfigPath)
			if err != nil {
				return err
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"ID", "Key", "Name", "Strategy", "Period", "Status", "Instructions", "URL"})
			for _, s := range reg.All() {
				t.AppendRow(table.Row{s.ID, s.Key, s.Name, s.Strategy, s.Period, s.Status, len(s.ActiveInstructions()), s.URL})
			}
			t.Render()
			return nil
		},
	}
}

func newStoreStatsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "store-stats",
		Short: "Show storage statistics and the most recent articles",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Read()
			if err != nil {
				return err
			}
			log := logger.Init()

			st, err := app.OpenStore(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer st.Close()

			stats, err := st.Stats(cmd.Context())
			if err != nil {
				return err
			}
			recent, err := st.RecentArticles(cmd.Context(), limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			counts := table.NewWriter()
			counts.SetOutputMirror(out)
			counts.SetStyle(table.StyleLight)
			counts.AppendHeader(table.Row{"Metric", "Value"})
			for _, k := range sortedKeys(stats) {
				counts.AppendRow(table.Row{k, stats[k]})
			}
			counts.Render()

			articles := table.NewWriter()
			articles.SetOutputMirror(out)
			articles.SetStyle(table.StyleLight)
			articles.AppendHeader(table.Row{"ID", "Source", "Status", "Created", "Title"})
			for _, a := range recent {
				articles.AppendRow(table.Row{a.ID, a.Source, a.Status, a.CreatedTime().Format(time.DateTime), ellipsize(a.Title, 60)})
			}
			articles.Render()
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "number of recent articles to show")
	return cmd
}

// sortedKeys puts total_items first, the rest alphabetically.
func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b string) int {
		switch {
		case a == b:
			return 0
		case a == "total_items":
			return -1
		case b == "total_items":
			return 1
		}
		return strings.Compare(a, b)
	})
	return keys
}

func ellipsize(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
