package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/user/opswatch/internal/history"
	"github.com/user/opswatch/internal/types"
)

var (
	historyMax    int
	historyMaxAge time.Duration
)

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyListCmd, historySummaryCmd, historyClassifyCmd)
	historyCmd.PersistentFlags().IntVar(&historyMax, "max", 0, "max records to load (default from config)")
	historyCmd.PersistentFlags().DurationVar(&historyMaxAge, "max-age", 0, "age horizon, e.g. 24h (default from config)")
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect recorded monitoring cycles",
}

// loadRecent applies config defaults to the history flags and loads the
// bounded record window.
func loadRecent(ctx context.Context) ([]*types.CycleRecord, *history.Loader, error) {
	cfg := loadConfig()
	setupLogging(cfg)

	maxCount := historyMax
	if maxCount <= 0 {
		maxCount = cfg.History.MaxRecords
	}
	maxAge := historyMaxAge
	if maxAge <= 0 {
		maxAge = cfg.HistoryMaxAge()
	}

	store := history.NewRecordStore(cfg.DataDir)
	loader := history.NewLoader(store, history.TrendPolicy{
		Window:    cfg.History.TrendWindow,
		Threshold: cfg.History.TrendThreshold,
	})
	records, err := loader.LoadRecent(ctx, maxCount, maxAge)
	if err != nil {
		return nil, nil, fmt.Errorf("load recent cycles: %w", err)
	}
	return records, loader, nil
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent cycle records",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		records, _, err := loadRecent(cmd.Context())
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Println("No cycle records found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTATUS\tFINDINGS\tCAPTURED")
		for _, r := range records {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\n",
				r.ID,
				r.Status,
				len(r.Findings),
				r.CapturedAt.Format("2006-01-02 15:04:05"),
			)
		}
		return w.Flush()
	},
}

var historySummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Print a digest of recent cycles",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		records, loader, err := loadRecent(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Println(loader.Summarize(records))
		return nil
	},
}

var historyClassifyCmd = &cobra.Command{
	Use:   "classify <findings.json>",
	Short: "Classify current findings against recent cycles",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read findings: %w", err)
		}
		var findings []types.Finding
		if err := json.Unmarshal(data, &findings); err != nil {
			return fmt.Errorf("parse findings: %w", err)
		}

		records, loader, err := loadRecent(cmd.Context())
		if err != nil {
			return err
		}

		out, err := json.MarshalIndent(loader.Classify(findings, records), "", "  ")
		if err != nil {
			return fmt.Errorf("marshal classification: %w", err)
		}
		fmt.Println(string(out))
		return nil
	},
}
